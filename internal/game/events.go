package game

import (
	"context"
	"time"
)

// Inbound is the sealed set of events a session processes. Everything that
// mutates a session arrives as one of these, strictly one at a time.
type Inbound interface {
	inboundEvent()
}

type Join struct {
	EventID  string
	Identity string
	Name     string
	At       time.Time
}

type Utterance struct {
	EventID  string
	Identity string
	Text     string
	At       time.Time
}

type CommandKind string

const (
	CmdStartImprov CommandKind = "StartImprov"
	CmdEndScene    CommandKind = "EndScene"
	CmdEndGame     CommandKind = "EndGame"
)

type Command struct {
	EventID  string
	Identity string
	Kind     CommandKind
	At       time.Time
}

// tick drives time-based scene ends; produced by the session's own loop.
type tick struct {
	At time.Time
}

type genKind string

const (
	genNone     genKind = ""
	genScenario genKind = "scenario"
	genReaction genKind = "reaction"
	genClosing  genKind = "closing"
)

// genResult is posted back to the session when a generator call finishes.
// Epoch guards against results from cancelled calls.
type genResult struct {
	kind  genKind
	epoch int
	text  string
	err   error
}

func (*Join) inboundEvent()      {}
func (*Utterance) inboundEvent() {}
func (*Command) inboundEvent()   {}
func (tick) inboundEvent()       {}
func (genResult) inboundEvent()  {}

// Outbound event names, broadcast to every participant in a room.
const (
	EventStateUpdate   = "game_state_update"
	EventScenarioStart = "scenario_start"
	EventTurnHandoff   = "turn_handoff"
	EventHostReaction  = "host_reaction"
	EventHostNotice    = "host_notice"
	EventGameCompleted = "game_completed"
)

// StateUpdate is a full snapshot, safe to resync a late-joining view.
type StateUpdate struct {
	Phase        Phase    `json:"phase"`
	CurrentRound int      `json:"currentRound"`
	MaxRounds    int      `json:"maxRounds"`
	Rounds       []Round  `json:"rounds"`
	Players      []Player `json:"players"`
	ActiveRole   Role     `json:"activeRole,omitempty"`
}

type ScenarioStart struct {
	Scenario   string `json:"scenario"`
	RoundIndex int    `json:"roundIndex"`
	ActiveRole Role   `json:"activeRole"`
}

type TurnHandoff struct {
	FromRole Role   `json:"fromRole"`
	ToRole   Role   `json:"toRole"`
	ToName   string `json:"toName,omitempty"`
}

type HostReaction struct {
	Scenario   string `json:"scenario"`
	Reaction   string `json:"reaction"`
	RoundIndex int    `json:"roundIndex"`
}

type HostNotice struct {
	Text string `json:"text"`
}

type GameCompleted struct {
	ClosingSummary string `json:"closingSummary"`
}

// Emitter carries outbound events to every participant in a room. The ws
// package implements it on top of socket.io.
type Emitter interface {
	Emit(room string, event string, payload any)
}

// ScenarioSupply yields the scenario text for a round. Implementations must
// not repeat within a session for round indices below their distinct-item
// count; ErrNoScenario signals exhaustion.
type ScenarioSupply interface {
	NextScenario(ctx context.Context, roundIndex int, mode Mode) (string, error)
}

// ReactionGenerator produces host commentary. React receives the completed
// round without its reaction; ClosingRemarks receives the full show.
type ReactionGenerator interface {
	React(ctx context.Context, round Round) (string, error)
	ClosingRemarks(ctx context.Context, rounds []Round) (string, error)
}

// ShowRecord is handed to the archiver once a session reaches Done.
type ShowRecord struct {
	Code    string
	Mode    Mode
	Players []Player
	Rounds  []Round
	Closing string
	EndedAt time.Time
}

type Archiver interface {
	Archive(rec ShowRecord) error
}
