package game

// RoundLog owns round bookkeeping: the append-only list of completed rounds,
// the current round count derived from it, and which scenarios have already
// been served this session. Pure state, no external calls.
type RoundLog struct {
	maxRounds int
	completed []Round
	usedIdx   map[int]struct{}
	usedText  map[string]struct{}
}

func NewRoundLog(maxRounds int) *RoundLog {
	return &RoundLog{
		maxRounds: maxRounds,
		usedIdx:   make(map[int]struct{}),
		usedText:  make(map[string]struct{}),
	}
}

// Current is the number of rounds whose reaction has been recorded. It is
// monotonically non-decreasing and never exceeds the round limit.
func (l *RoundLog) Current() int {
	return len(l.completed)
}

func (l *RoundLog) MaxRounds() int {
	return l.maxRounds
}

// Full reports whether the show has run its configured number of rounds.
func (l *RoundLog) Full() bool {
	return len(l.completed) >= l.maxRounds
}

// Append records a completed round. Appending past the round limit is a
// programming error upstream and is refused.
func (l *RoundLog) Append(r Round) bool {
	if l.Full() {
		return false
	}
	l.completed = append(l.completed, r)
	return true
}

// Completed returns a copy of the round records, oldest first.
func (l *RoundLog) Completed() []Round {
	out := make([]Round, len(l.completed))
	copy(out, l.completed)
	return out
}

// MarkScenario records that a supply index and its text have been served.
func (l *RoundLog) MarkScenario(idx int, text string) {
	l.usedIdx[idx] = struct{}{}
	l.usedText[text] = struct{}{}
}

// SeenScenario reports whether this exact scenario text was already served
// this session.
func (l *RoundLog) SeenScenario(text string) bool {
	_, ok := l.usedText[text]
	return ok
}
