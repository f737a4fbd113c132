package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/improvlabs/sceneshow/internal/telemetry"
)

var (
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoScenario signals a supply that has nothing left to serve. Unlike a
	// timeout it cannot be papered over with a placeholder forever; the show
	// closes gracefully.
	ErrNoScenario = errors.New("scenario supply exhausted")
)

// Deps are a session's collaborators. Everything the phase machine touches
// besides its own state goes through these.
type Deps struct {
	Supply  ScenarioSupply
	Reactor ReactionGenerator
	Emitter Emitter
	Archive Archiver
	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
}

// Session is the per-room game state machine. All mutation happens on a
// single logical thread: events are funneled through the inbox and processed
// strictly one at a time, which is the whole correctness mechanism for turn
// arbitration under concurrent participants.
type Session struct {
	Code string
	Mode Mode

	cfg      SessionConfig
	deps     Deps
	arbiter  *Arbiter
	detector *Detector
	rounds   *RoundLog

	phase     Phase
	players   map[string]*Player
	joinOrder []string

	scenario       string
	draft          *Round
	closing        string
	turnStartedAt  time.Time
	turnUtterances int
	segments       []Segment
	seen           map[string]struct{}

	pending   genKind
	epoch     int
	genCancel context.CancelFunc
	deferred  []Inbound

	inbox    chan Inbound
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// seats is read by the join boundary outside the event loop; the loop is
	// still the only writer and the authoritative guard.
	seats atomic.Int32

	snapMu sync.Mutex
	snap   StateUpdate
	doneAt time.Time

	// test seams
	now    func() time.Time
	runGen func(job func() genResult)
}

func NewSession(code string, cfg SessionConfig, deps Deps) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		Code:     code,
		Mode:     cfg.Mode,
		cfg:      cfg,
		deps:     deps,
		arbiter:  &Arbiter{},
		detector: NewDetector(cfg),
		rounds:   NewRoundLog(cfg.MaxRounds),
		phase:    PhaseIntro,
		players:  make(map[string]*Player),
		seen:     make(map[string]struct{}),
		inbox:    make(chan Inbound, 64),
		quit:     make(chan struct{}),
		now:      time.Now,
	}
	s.runGen = func(job func() genResult) {
		go func() {
			s.Deliver(job())
		}()
	}
	s.storeSnapshot()
	return s
}

// Start launches the session's event loop.
func (s *Session) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop tears the session down: the loop exits, any in-flight generator call
// is cancelled and no further events are processed.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.quit) })
	s.wg.Wait()
}

// Deliver enqueues an inbound event for processing in arrival order. Events
// delivered after teardown are dropped.
func (s *Session) Deliver(ev Inbound) {
	select {
	case s.inbox <- ev:
	case <-s.quit:
	}
}

// SeatAvailable is the join-boundary capacity check; a third participant in
// relay mode is rejected here and never reaches the phase machine.
func (s *Session) SeatAvailable() bool {
	return s.seats.Load() < int32(s.Mode.PlayerCount())
}

// Snapshot returns the latest full state, safe to serve to a late-joining
// view or the HTTP API.
func (s *Session) Snapshot() StateUpdate {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return s.snap
}

// DoneSince reports when the session reached Done; zero if it has not.
func (s *Session) DoneSince() time.Time {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return s.doneAt
}

func (s *Session) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case ev := <-s.inbox:
			s.process(ev)
		case t := <-ticker.C:
			s.process(tick{At: t})
		case <-s.quit:
			s.cancelGen()
			return
		}
	}
}

// process is the single entry point for state mutation. Never called from
// more than one goroutine.
func (s *Session) process(ev Inbound) {
	defer s.storeSnapshot()

	// While a generator call is in flight the room is suspended: content
	// events queue and are replayed after the transition completes. EndGame
	// and generator results still cut through.
	if s.pending != genNone {
		switch e := ev.(type) {
		case genResult:
			s.handleGenResult(e)
			return
		case *Command:
			if e.Kind == CmdEndGame {
				s.handleCommand(e)
				return
			}
			s.deferred = append(s.deferred, ev)
			return
		case tick:
			return
		default:
			s.deferred = append(s.deferred, ev)
			return
		}
	}

	switch e := ev.(type) {
	case *Join:
		s.handleJoin(e)
	case *Utterance:
		s.handleUtterance(e)
	case *Command:
		s.handleCommand(e)
	case genResult:
		// Stale by definition: nothing is pending.
		s.deps.Logger.Debug().Str("room", s.Code).Str("kind", string(e.kind)).Msg("discarding stale generator result")
	case tick:
		s.handleTick(e)
	}
}

func (s *Session) handleJoin(e *Join) {
	if s.phase != PhaseIntro || s.duplicate(e.EventID) {
		return
	}
	if _, ok := s.players[e.Identity]; ok {
		return
	}
	if len(s.players) >= s.Mode.PlayerCount() {
		s.deps.Logger.Warn().Str("room", s.Code).Str("identity", e.Identity).Msg("join past capacity dropped")
		return
	}

	role := RoleSolo
	if s.Mode == ModeRelay {
		role = RoleP1
		if len(s.joinOrder) == 1 {
			role = RoleP2
		}
	}
	p := &Player{Identity: e.Identity, Name: strings.TrimSpace(e.Name), Role: role, JoinedAt: e.At}
	s.players[e.Identity] = p
	s.joinOrder = append(s.joinOrder, e.Identity)
	s.seats.Store(int32(len(s.players)))
	s.deps.Logger.Info().Str("room", s.Code).Str("identity", e.Identity).Str("role", string(role)).Msg("player joined")

	s.emitState()
	if len(s.players) == s.Mode.PlayerCount() {
		s.fetchScenario()
	}
}

func (s *Session) handleUtterance(e *Utterance) {
	if s.duplicate(e.EventID) {
		return
	}
	p, ok := s.players[e.Identity]
	if !ok {
		// Unknown identity: dropped, no state change.
		s.deps.Logger.Debug().Str("room", s.Code).Str("identity", e.Identity).Msg("utterance from unknown identity dropped")
		return
	}

	switch s.arbiter.Admit(s.phase, p.Role) {
	case VerdictIgnore:
		return
	case VerdictRedirect:
		if s.arbiter.TakeNotice() {
			active, _ := ActiveRole(s.phase)
			s.emit(EventHostNotice, HostNotice{
				Text: fmt.Sprintf("Hang tight, %s! It's %s's turn right now.", s.displayName(p), s.roleName(active)),
			})
		}
		return
	case VerdictAccept:
	}

	text := strings.TrimSpace(e.Text)
	if text == "" {
		return
	}
	if p.Name == "" {
		p.Name = defaultName(text)
	}
	s.turnUtterances++
	s.segments = append(s.segments, Segment{Role: p.Role, Text: text})

	dec := s.detector.AfterUtterance(text, s.turnUtterances, s.now().Sub(s.turnStartedAt), s.Mode == ModeRelay)
	if dec.Over {
		s.endScene(dec.Reason)
	}
}

func (s *Session) handleCommand(e *Command) {
	if s.duplicate(e.EventID) {
		return
	}
	if _, ok := s.players[e.Identity]; !ok {
		s.deps.Logger.Debug().Str("room", s.Code).Str("identity", e.Identity).Msg("command from unknown identity dropped")
		return
	}
	if s.phase.Terminal() {
		return
	}

	switch e.Kind {
	case CmdEndGame:
		// Always honored, from any participant, mid-turn or mid-generation:
		// a stuck scene must always be escapable.
		s.cancelGen()
		s.deferred = nil
		s.finish()
	case CmdEndScene:
		if s.phase.Performance() {
			s.endScene(EndByCommand)
		}
	case CmdStartImprov:
		if s.phase == PhaseIntro && len(s.players) == s.Mode.PlayerCount() {
			s.fetchScenario()
		}
	default:
		s.deps.Logger.Debug().Str("room", s.Code).Str("kind", string(e.Kind)).Msg("malformed command dropped")
	}
}

func (s *Session) handleTick(e tick) {
	if !s.phase.Performance() {
		return
	}
	dec := s.detector.AfterTick(e.At.Sub(s.turnStartedAt))
	if dec.Over {
		s.endScene(dec.Reason)
	}
}

// endScene closes the active performer's turn: a relay P1 turn hands off to
// P2, everything else heads into the host reaction.
func (s *Session) endScene(reason EndReason) {
	switch s.phase {
	case PhaseP1Turn:
		s.phase = PhaseP2Turn
		s.beginTurn()
		to := s.playerByRole(RoleP2)
		s.emit(EventTurnHandoff, TurnHandoff{FromRole: RoleP1, ToRole: RoleP2, ToName: s.displayName(to)})
		s.emit(EventHostNotice, HostNotice{
			Text: fmt.Sprintf("And scene! %s, take it away!", s.roleName(RoleP2)),
		})
	case PhaseAwaitingImprov, PhaseP2Turn:
		s.draft = &Round{
			Index:    s.rounds.Current(),
			Scenario: s.scenario,
			Segments: s.segments,
			EndedBy:  reason,
		}
		if s.phase == PhaseAwaitingImprov {
			s.phase = PhaseReacting
		} else {
			s.phase = PhaseHostReact
		}
		s.fetchReaction(*s.draft)
	}
}

func (s *Session) fetchScenario() {
	idx := s.rounds.Current()
	mode := s.Mode
	supply := s.deps.Supply
	s.beginGen(genScenario, func(ctx context.Context) (string, error) {
		return supply.NextScenario(ctx, idx, mode)
	})
}

func (s *Session) fetchReaction(draft Round) {
	reactor := s.deps.Reactor
	s.beginGen(genReaction, func(ctx context.Context) (string, error) {
		return reactor.React(ctx, draft)
	})
}

func (s *Session) fetchClosing() {
	reactor := s.deps.Reactor
	rounds := s.rounds.Completed()
	s.beginGen(genClosing, func(ctx context.Context) (string, error) {
		return reactor.ClosingRemarks(ctx, rounds)
	})
}

// beginGen suspends the room on a generator call. At most one call is in
// flight per session; the result comes back through the inbox tagged with an
// epoch so cancelled calls are discarded.
func (s *Session) beginGen(kind genKind, call func(ctx context.Context) (string, error)) {
	s.epoch++
	epoch := s.epoch
	s.pending = kind
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GenTimeout)
	s.genCancel = cancel
	room := s.Code
	tracer := s.deps.Metrics.GetTracer()
	s.runGen(func() genResult {
		defer cancel()
		genCtx, span := telemetry.StartSpan(tracer, ctx, "generator."+string(kind), room)
		text, err := call(genCtx)
		telemetry.EndSpan(span, err)
		return genResult{kind: kind, epoch: epoch, text: text, err: err}
	})
}

func (s *Session) cancelGen() {
	if s.genCancel != nil {
		s.genCancel()
		s.genCancel = nil
	}
	// Bump the epoch so a late result, if it arrives, is stale.
	s.epoch++
	s.pending = genNone
}

func (s *Session) handleGenResult(r genResult) {
	if r.epoch != s.epoch {
		return
	}
	s.pending = genNone
	s.genCancel = nil
	if r.err != nil {
		s.deps.Metrics.AddGeneratorFailure(string(r.kind))
		s.deps.Logger.Warn().Str("room", s.Code).Str("kind", string(r.kind)).Err(r.err).Msg("generator call failed, falling back")
	}

	switch r.kind {
	case genScenario:
		s.applyScenario(r)
	case genReaction:
		s.applyReaction(r)
	case genClosing:
		s.applyClosing(r)
	}
	s.replayDeferred()
}

func (s *Session) applyScenario(r genResult) {
	if s.phase.Terminal() {
		return
	}
	if errors.Is(r.err, ErrNoScenario) {
		s.emit(EventHostNotice, HostNotice{Text: "The host has run out of scenarios, so this is where our show ends!"})
		s.finish()
		return
	}
	text := strings.TrimSpace(r.text)
	if r.err != nil || text == "" || s.rounds.SeenScenario(text) {
		text = fallbackScenario(s.rounds.Current())
	}
	idx := s.rounds.Current()
	s.rounds.MarkScenario(idx, text)
	s.scenario = text

	if s.Mode == ModeRelay {
		s.phase = PhaseP1Turn
	} else {
		s.phase = PhaseAwaitingImprov
	}
	s.segments = nil
	s.beginTurn()
	active, _ := ActiveRole(s.phase)
	s.emit(EventScenarioStart, ScenarioStart{Scenario: text, RoundIndex: idx, ActiveRole: active})
	s.emitState()
}

func (s *Session) applyReaction(r genResult) {
	if s.phase.Terminal() || s.draft == nil {
		return
	}
	reaction := strings.TrimSpace(r.text)
	if r.err != nil || reaction == "" {
		reaction = fallbackReaction
	}
	round := *s.draft
	round.Reaction = reaction
	s.draft = nil
	if !s.rounds.Append(round) {
		s.deps.Logger.Error().Str("room", s.Code).Int("index", round.Index).Msg("round append past limit refused")
		return
	}
	s.scenario = ""
	s.deps.Metrics.AddRoundCompleted()
	s.emit(EventHostReaction, HostReaction{Scenario: round.Scenario, Reaction: round.Reaction, RoundIndex: round.Index})
	s.emitState()

	if s.rounds.Full() {
		s.finish()
		return
	}
	s.fetchScenario()
}

func (s *Session) applyClosing(r genResult) {
	closing := strings.TrimSpace(r.text)
	if r.err != nil || closing == "" {
		closing = fallbackClosing
	}
	s.closing = closing
	s.emit(EventGameCompleted, GameCompleted{ClosingSummary: closing})
	s.archive()
}

// finish moves the session to Done. The transition happens exactly once and
// within the current event-processing step; the closing remarks follow
// asynchronously, bounded by the generator timeout.
func (s *Session) finish() {
	if s.phase.Terminal() {
		return
	}
	s.phase = PhaseDone
	s.snapMu.Lock()
	s.doneAt = s.now()
	s.snapMu.Unlock()
	s.deps.Logger.Info().Str("room", s.Code).Int("rounds", s.rounds.Current()).Msg("show complete")
	s.emitState()
	s.fetchClosing()
}

func (s *Session) replayDeferred() {
	if len(s.deferred) == 0 {
		return
	}
	queued := s.deferred
	s.deferred = nil
	for _, ev := range queued {
		s.process(ev)
	}
}

func (s *Session) beginTurn() {
	s.turnStartedAt = s.now()
	s.turnUtterances = 0
	s.arbiter.ResetTurn()
}

func (s *Session) duplicate(eventID string) bool {
	if eventID == "" {
		return false
	}
	if _, ok := s.seen[eventID]; ok {
		return true
	}
	s.seen[eventID] = struct{}{}
	return false
}

func (s *Session) archive() {
	if s.deps.Archive == nil {
		return
	}
	rec := ShowRecord{
		Code:    s.Code,
		Mode:    s.Mode,
		Players: s.playerList(),
		Rounds:  s.rounds.Completed(),
		Closing: s.closing,
		EndedAt: s.now(),
	}
	if err := s.deps.Archive.Archive(rec); err != nil {
		s.deps.Logger.Warn().Str("room", s.Code).Err(err).Msg("show archive failed")
	}
}

func (s *Session) emit(event string, payload any) {
	if s.deps.Emitter == nil {
		return
	}
	s.deps.Emitter.Emit(s.Code, event, payload)
}

func (s *Session) emitState() {
	s.emit(EventStateUpdate, s.buildState())
}

func (s *Session) buildState() StateUpdate {
	st := StateUpdate{
		Phase:        s.phase,
		CurrentRound: s.rounds.Current(),
		MaxRounds:    s.rounds.MaxRounds(),
		Rounds:       s.rounds.Completed(),
		Players:      s.playerList(),
	}
	if role, ok := ActiveRole(s.phase); ok {
		st.ActiveRole = role
	}
	return st
}

func (s *Session) storeSnapshot() {
	st := s.buildState()
	s.snapMu.Lock()
	s.snap = st
	s.snapMu.Unlock()
}

func (s *Session) playerList() []Player {
	out := make([]Player, 0, len(s.joinOrder))
	for _, id := range s.joinOrder {
		out = append(out, *s.players[id])
	}
	return out
}

func (s *Session) playerByRole(role Role) *Player {
	for _, p := range s.players {
		if p.Role == role {
			return p
		}
	}
	return nil
}

func (s *Session) displayName(p *Player) string {
	if p == nil || p.Name == "" {
		return "our performer"
	}
	return p.Name
}

func (s *Session) roleName(role Role) string {
	if p := s.playerByRole(role); p != nil && p.Name != "" {
		return p.Name
	}
	switch role {
	case RoleP1:
		return "player one"
	case RoleP2:
		return "player two"
	default:
		return "our performer"
	}
}

func defaultName(utterance string) string {
	name := strings.TrimSpace(utterance)
	runes := []rune(name)
	if len(runes) > 40 {
		name = string(runes[:40])
	}
	return name
}

func fallbackScenario(idx int) string {
	return fmt.Sprintf("Round %d, freestyle: you are live on air and absolutely nothing is going to plan. Go!", idx+1)
}

const (
	fallbackReaction = "The host is momentarily speechless, then breaks into enthusiastic applause!"
	fallbackClosing  = "And that's our show! Give it up for tonight's performers. Good night, everybody!"
)
