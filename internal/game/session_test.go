package game

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSupply struct {
	texts []string
	err   error
	calls int
}

func (f *fakeSupply) NextScenario(_ context.Context, roundIndex int, _ Mode) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if roundIndex >= len(f.texts) {
		return "", fmt.Errorf("round %d: %w", roundIndex, ErrNoScenario)
	}
	return f.texts[roundIndex], nil
}

type fakeReactor struct {
	reactErr   error
	closingErr error
	reacted    []Round
}

func (f *fakeReactor) React(_ context.Context, round Round) (string, error) {
	f.reacted = append(f.reacted, round)
	if f.reactErr != nil {
		return "", f.reactErr
	}
	return fmt.Sprintf("what a round %d", round.Index+1), nil
}

func (f *fakeReactor) ClosingRemarks(_ context.Context, rounds []Round) (string, error) {
	if f.closingErr != nil {
		return "", f.closingErr
	}
	return fmt.Sprintf("good night after %d rounds", len(rounds)), nil
}

type emitted struct {
	room    string
	event   string
	payload any
}

type recordingEmitter struct {
	events []emitted
}

func (e *recordingEmitter) Emit(room, event string, payload any) {
	e.events = append(e.events, emitted{room: room, event: event, payload: payload})
}

func (e *recordingEmitter) count(event string) int {
	n := 0
	for _, ev := range e.events {
		if ev.event == event {
			n++
		}
	}
	return n
}

func (e *recordingEmitter) last(event string) (emitted, bool) {
	for i := len(e.events) - 1; i >= 0; i-- {
		if e.events[i].event == event {
			return e.events[i], true
		}
	}
	return emitted{}, false
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// newTestSession builds a session whose generator calls run synchronously
// and whose clock is controlled by the test. Events are fed straight into
// process, the same single-threaded path the loop uses.
func newTestSession(cfg SessionConfig, supply ScenarioSupply, reactor ReactionGenerator) (*Session, *recordingEmitter, *fakeClock) {
	em := &recordingEmitter{}
	s := NewSession("TEST1", cfg, Deps{
		Supply:  supply,
		Reactor: reactor,
		Emitter: em,
		Logger:  zerolog.Nop(),
	})
	clk := &fakeClock{now: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
	s.now = clk.Now
	s.runGen = func(job func() genResult) {
		s.process(job())
	}
	return s, em, clk
}

func join(s *Session, id, name string) {
	s.process(&Join{EventID: "join-" + id, Identity: id, Name: name, At: s.now()})
}

func say(s *Session, eventID, id, text string) {
	s.process(&Utterance{EventID: eventID, Identity: id, Text: text, At: s.now()})
}

var utterSeq int

func sayNext(s *Session, id, text string) {
	utterSeq++
	say(s, fmt.Sprintf("utt-%d", utterSeq), id, text)
}

func command(s *Session, id string, kind CommandKind) {
	utterSeq++
	s.process(&Command{EventID: fmt.Sprintf("cmd-%d", utterSeq), Identity: id, Kind: kind, At: s.now()})
}

func TestSoloShowRunsThreeRoundsToDone(t *testing.T) {
	supply := &fakeSupply{texts: []string{"scenario one", "scenario two", "scenario three"}}
	reactor := &fakeReactor{}
	s, em, _ := newTestSession(SessionConfig{Mode: ModeSolo, MaxRounds: 3}, supply, reactor)

	join(s, "alex", "Alex")
	if s.phase != PhaseAwaitingImprov {
		t.Fatalf("expected phase %s after join, got %s", PhaseAwaitingImprov, s.phase)
	}
	start, ok := em.last(EventScenarioStart)
	if !ok {
		t.Fatal("scenario_start should have been emitted")
	}
	if start.payload.(ScenarioStart).Scenario != "scenario one" {
		t.Fatalf("expected first scenario, got %v", start.payload)
	}

	for i := 0; i < 3; i++ {
		sayNext(s, "alex", "improvising wildly")
		sayNext(s, "alex", "aaand end scene")
	}

	if s.phase != PhaseDone {
		t.Fatalf("expected phase %s, got %s", PhaseDone, s.phase)
	}
	if got := s.rounds.Current(); got != 3 {
		t.Fatalf("expected 3 completed rounds, got %d", got)
	}
	if em.count(EventHostReaction) != 3 {
		t.Fatalf("expected 3 host reactions, got %d", em.count(EventHostReaction))
	}
	done, ok := em.last(EventGameCompleted)
	if !ok {
		t.Fatal("game_completed should have been emitted")
	}
	if done.payload.(GameCompleted).ClosingSummary != "good night after 3 rounds" {
		t.Fatalf("unexpected closing summary: %v", done.payload)
	}
	for _, r := range s.rounds.Completed() {
		if r.EndedBy != EndByCue {
			t.Fatalf("expected cue-ended round, got %s", r.EndedBy)
		}
	}
}

func TestRoundCountMatchesRoundsLength(t *testing.T) {
	supply := &fakeSupply{texts: []string{"a", "b"}}
	s, _, _ := newTestSession(SessionConfig{Mode: ModeSolo, MaxRounds: 2}, supply, &fakeReactor{})

	join(s, "p", "Pat")
	if got := s.rounds.Current(); got != 0 {
		t.Fatalf("expected round 0 during first round, got %d", got)
	}
	sayNext(s, "p", "end scene")
	if got := s.rounds.Current(); got != 1 {
		t.Fatalf("expected round 1 after first reaction, got %d", got)
	}
	if len(s.rounds.Completed()) != 1 {
		t.Fatalf("rounds length should equal the round counter, got %d", len(s.rounds.Completed()))
	}
	if got := s.rounds.Current(); got > s.rounds.MaxRounds() {
		t.Fatalf("round counter exceeded the limit: %d", got)
	}
}

func TestRelayHandoffAndRedirect(t *testing.T) {
	supply := &fakeSupply{texts: []string{"relay scene"}}
	reactor := &fakeReactor{}
	s, em, _ := newTestSession(SessionConfig{Mode: ModeRelay, MaxRounds: 1}, supply, reactor)

	join(s, "ana", "Ana")
	if s.phase != PhaseIntro {
		t.Fatalf("relay with one player should stay in %s, got %s", PhaseIntro, s.phase)
	}
	join(s, "ben", "Ben")
	if s.phase != PhaseP1Turn {
		t.Fatalf("expected phase %s, got %s", PhaseP1Turn, s.phase)
	}
	if s.players["ana"].Role != RoleP1 || s.players["ben"].Role != RoleP2 {
		t.Fatal("roles should be assigned in join order")
	}

	sayNext(s, "ana", "setting the scene")
	sayNext(s, "ana", "passing it on to you")
	if s.phase != PhaseP2Turn {
		t.Fatalf("expected phase %s after handoff cue, got %s", PhaseP2Turn, s.phase)
	}
	handoff, ok := em.last(EventTurnHandoff)
	if !ok {
		t.Fatal("turn_handoff should have been emitted")
	}
	h := handoff.payload.(TurnHandoff)
	if h.FromRole != RoleP1 || h.ToRole != RoleP2 || h.ToName != "Ben" {
		t.Fatalf("unexpected handoff payload: %+v", h)
	}

	// Ana speaking during Ben's turn is redirected, once, and stays out of
	// the round's segments.
	noticesBefore := em.count(EventHostNotice)
	sayNext(s, "ana", "wait I have more")
	sayNext(s, "ana", "really, more")
	if em.count(EventHostNotice) != noticesBefore+1 {
		t.Fatalf("expected exactly one redirect notice, got %d", em.count(EventHostNotice)-noticesBefore)
	}

	sayNext(s, "ben", "finishing strong, end scene")
	if s.phase != PhaseDone {
		t.Fatalf("expected phase %s after final reaction, got %s", PhaseDone, s.phase)
	}
	rounds := s.rounds.Completed()
	if len(rounds) != 1 {
		t.Fatalf("expected 1 round, got %d", len(rounds))
	}
	for _, seg := range rounds[0].Segments {
		if seg.Text == "wait I have more" || seg.Text == "really, more" {
			t.Fatalf("redirected utterance leaked into segments: %+v", seg)
		}
	}
	var sawP1, sawP2 bool
	for _, seg := range rounds[0].Segments {
		switch seg.Role {
		case RoleP1:
			sawP1 = true
		case RoleP2:
			sawP2 = true
		}
	}
	if !sawP1 || !sawP2 {
		t.Fatalf("both performers should appear in segments: %+v", rounds[0].Segments)
	}
}

func TestDuplicateUtteranceNotDoubleCounted(t *testing.T) {
	supply := &fakeSupply{texts: []string{"scene"}}
	s, _, _ := newTestSession(SessionConfig{Mode: ModeSolo, MaxRounds: 1, MaxUtterances: 3}, supply, &fakeReactor{})

	join(s, "p", "Pat")
	say(s, "dup-1", "p", "first line")
	say(s, "dup-1", "p", "first line")
	if s.turnUtterances != 1 {
		t.Fatalf("duplicate delivery should count once, got %d", s.turnUtterances)
	}
	if len(s.segments) != 1 {
		t.Fatalf("duplicate delivery should record one segment, got %d", len(s.segments))
	}
}

func TestTurnLimitEndsScene(t *testing.T) {
	supply := &fakeSupply{texts: []string{"scene"}}
	reactor := &fakeReactor{}
	s, _, _ := newTestSession(SessionConfig{Mode: ModeSolo, MaxRounds: 1, MaxUtterances: 2}, supply, reactor)

	join(s, "p", "Pat")
	sayNext(s, "p", "one")
	sayNext(s, "p", "two")
	if len(reactor.reacted) != 1 {
		t.Fatal("turn limit should have ended the scene")
	}
	if reactor.reacted[0].EndedBy != EndByTurnLimit {
		t.Fatalf("expected %s, got %s", EndByTurnLimit, reactor.reacted[0].EndedBy)
	}
}

func TestTurnTimeoutViaTick(t *testing.T) {
	supply := &fakeSupply{texts: []string{"scene"}}
	reactor := &fakeReactor{}
	s, _, clk := newTestSession(SessionConfig{Mode: ModeSolo, MaxRounds: 1, TurnCeiling: 30 * time.Second}, supply, reactor)

	join(s, "p", "Pat")
	sayNext(s, "p", "thinking...")
	clk.advance(29 * time.Second)
	s.process(tick{At: clk.Now()})
	if len(reactor.reacted) != 0 {
		t.Fatal("scene should not time out before the ceiling")
	}
	clk.advance(2 * time.Second)
	s.process(tick{At: clk.Now()})
	if len(reactor.reacted) != 1 {
		t.Fatal("scene should time out past the ceiling")
	}
	if reactor.reacted[0].EndedBy != EndByTimeout {
		t.Fatalf("expected %s, got %s", EndByTimeout, reactor.reacted[0].EndedBy)
	}
}

func TestReactionFailureFallsBackAndAdvances(t *testing.T) {
	supply := &fakeSupply{texts: []string{"scene one", "scene two"}}
	reactor := &fakeReactor{reactErr: context.DeadlineExceeded}
	s, em, _ := newTestSession(SessionConfig{Mode: ModeSolo, MaxRounds: 2}, supply, reactor)

	join(s, "p", "Pat")
	sayNext(s, "p", "end scene")

	if got := s.rounds.Current(); got != 1 {
		t.Fatalf("round should still advance on generator timeout, got %d", got)
	}
	reaction, ok := em.last(EventHostReaction)
	if !ok {
		t.Fatal("fallback reaction should have been broadcast")
	}
	if reaction.payload.(HostReaction).Reaction != fallbackReaction {
		t.Fatalf("expected fallback reaction, got %v", reaction.payload)
	}
	if s.phase != PhaseAwaitingImprov {
		t.Fatalf("show should continue into the next round, got %s", s.phase)
	}
}

func TestEndGameIsImmediateAndCancelsPendingGenerator(t *testing.T) {
	supply := &fakeSupply{texts: []string{"scene one", "scene two"}}
	reactor := &fakeReactor{}
	s, em, _ := newTestSession(SessionConfig{Mode: ModeSolo, MaxRounds: 2}, supply, reactor)

	// Hold generator jobs so a call stays in flight.
	var held []func() genResult
	s.runGen = func(job func() genResult) {
		held = append(held, job)
	}
	join(s, "p", "Pat")
	if s.pending != genScenario {
		t.Fatalf("scenario fetch should be pending, got %q", s.pending)
	}

	command(s, "p", CmdEndGame)
	if s.phase != PhaseDone {
		t.Fatalf("EndGame must transition to %s in one step, got %s", PhaseDone, s.phase)
	}

	// The cancelled scenario result arrives late and must be discarded.
	stale := held[0]()
	s.process(stale)
	if em.count(EventScenarioStart) != 0 {
		t.Fatal("stale scenario result should have been discarded")
	}

	// The closing-remarks call was queued by finish; run it.
	closing := held[len(held)-1]()
	s.process(closing)
	if em.count(EventGameCompleted) != 1 {
		t.Fatalf("expected one game_completed, got %d", em.count(EventGameCompleted))
	}
}

func TestEventsDuringGeneratorCallAreQueued(t *testing.T) {
	supply := &fakeSupply{texts: []string{"scene one", "scene two"}}
	reactor := &fakeReactor{}
	s, _, _ := newTestSession(SessionConfig{Mode: ModeSolo, MaxRounds: 2}, supply, reactor)

	var held []func() genResult
	syncRun := func(job func() genResult) { s.process(job()) }
	s.runGen = func(job func() genResult) { held = append(held, job) }

	join(s, "p", "Pat")
	// Utterance arrives while the scenario call is still in flight.
	say(s, "early-1", "p", "am I on?")
	if s.turnUtterances != 0 {
		t.Fatal("utterance should have been queued, not processed")
	}

	s.runGen = syncRun
	s.process(held[0]())
	if s.phase != PhaseAwaitingImprov {
		t.Fatalf("expected %s after scenario result, got %s", PhaseAwaitingImprov, s.phase)
	}
	if s.turnUtterances != 1 {
		t.Fatalf("queued utterance should replay after the transition, got %d", s.turnUtterances)
	}
}

func TestDoneIsTerminal(t *testing.T) {
	supply := &fakeSupply{texts: []string{"only scene"}}
	s, em, _ := newTestSession(SessionConfig{Mode: ModeSolo, MaxRounds: 1}, supply, &fakeReactor{})

	join(s, "p", "Pat")
	sayNext(s, "p", "end scene")
	if s.phase != PhaseDone {
		t.Fatalf("expected %s, got %s", PhaseDone, s.phase)
	}

	before := len(em.events)
	sayNext(s, "p", "encore!")
	command(s, "p", CmdEndScene)
	command(s, "p", CmdEndGame)
	join(s, "late", "Late")
	if s.rounds.Current() != 1 {
		t.Fatalf("round counter must not move after Done, got %d", s.rounds.Current())
	}
	if len(em.events) != before {
		t.Fatalf("no events should be emitted after Done, got %d new", len(em.events)-before)
	}
}

func TestRelayCapacityGuard(t *testing.T) {
	supply := &fakeSupply{texts: []string{"scene"}}
	s, _, _ := newTestSession(SessionConfig{Mode: ModeRelay, MaxRounds: 1}, supply, &fakeReactor{})

	join(s, "a", "Ana")
	if !s.SeatAvailable() {
		t.Fatal("one seat should remain after the first join")
	}
	join(s, "b", "Ben")
	if s.SeatAvailable() {
		t.Fatal("no seat should remain after the second join")
	}
	join(s, "c", "Cleo")
	if len(s.players) != 2 {
		t.Fatalf("third participant must not be admitted, got %d players", len(s.players))
	}
}

func TestScenarioTextNeverRepeats(t *testing.T) {
	// A misbehaving supply returns the same text every round.
	supply := &fakeSupply{texts: []string{"same scene", "same scene", "same scene"}}
	s, _, _ := newTestSession(SessionConfig{Mode: ModeSolo, MaxRounds: 3}, supply, &fakeReactor{})

	join(s, "p", "Pat")
	sayNext(s, "p", "end scene")
	sayNext(s, "p", "end scene")
	sayNext(s, "p", "end scene")

	seen := make(map[string]bool)
	for _, r := range s.rounds.Completed() {
		if seen[r.Scenario] {
			t.Fatalf("scenario repeated within a session: %q", r.Scenario)
		}
		seen[r.Scenario] = true
	}
}

func TestSupplyExhaustionClosesShowGracefully(t *testing.T) {
	supply := &fakeSupply{texts: []string{"only scene"}}
	s, em, _ := newTestSession(SessionConfig{Mode: ModeSolo, MaxRounds: 3}, supply, &fakeReactor{})

	join(s, "p", "Pat")
	sayNext(s, "p", "end scene")

	if s.phase != PhaseDone {
		t.Fatalf("exhausted supply should close the show, got %s", s.phase)
	}
	if s.rounds.Current() != 1 {
		t.Fatalf("completed rounds should be preserved, got %d", s.rounds.Current())
	}
	if em.count(EventGameCompleted) != 1 {
		t.Fatal("game_completed should still be broadcast")
	}
}

func TestNameDefaultsFromFirstUtterance(t *testing.T) {
	supply := &fakeSupply{texts: []string{"scene"}}
	s, _, _ := newTestSession(SessionConfig{Mode: ModeSolo, MaxRounds: 1}, supply, &fakeReactor{})

	join(s, "anon", "")
	sayNext(s, "anon", "Call me Izzy")
	if s.players["anon"].Name != "Call me Izzy" {
		t.Fatalf("name should default from the first utterance, got %q", s.players["anon"].Name)
	}
}

func TestUnknownIdentityDropped(t *testing.T) {
	supply := &fakeSupply{texts: []string{"scene"}}
	s, _, _ := newTestSession(SessionConfig{Mode: ModeSolo, MaxRounds: 1}, supply, &fakeReactor{})

	join(s, "p", "Pat")
	sayNext(s, "stranger", "let me in")
	command(s, "stranger", CmdEndGame)
	if s.turnUtterances != 0 {
		t.Fatal("unknown identity must not contribute to the turn")
	}
	if s.phase != PhaseAwaitingImprov {
		t.Fatalf("unknown identity must not end the game, got %s", s.phase)
	}
}

func TestEndSceneCommandEndsTurn(t *testing.T) {
	supply := &fakeSupply{texts: []string{"scene"}}
	reactor := &fakeReactor{}
	s, _, _ := newTestSession(SessionConfig{Mode: ModeRelay, MaxRounds: 1}, supply, reactor)

	join(s, "a", "Ana")
	join(s, "b", "Ben")
	// The non-active participant may still end a stuck scene.
	command(s, "b", CmdEndScene)
	if s.phase != PhaseP2Turn {
		t.Fatalf("EndScene should hand off regardless of sender, got %s", s.phase)
	}
	command(s, "a", CmdEndScene)
	if len(reactor.reacted) != 1 {
		t.Fatal("EndScene during P2Turn should trigger the reaction")
	}
	if reactor.reacted[0].EndedBy != EndByCommand {
		t.Fatalf("expected %s, got %s", EndByCommand, reactor.reacted[0].EndedBy)
	}
}
