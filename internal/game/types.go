package game

import (
	"time"
)

type Mode string

const (
	ModeSolo  Mode = "solo"
	ModeRelay Mode = "relay"
)

// PlayerCount is how many performers a session in this mode needs before
// the show can start.
func (m Mode) PlayerCount() int {
	if m == ModeRelay {
		return 2
	}
	return 1
}

type Phase string

const (
	PhaseIntro          Phase = "Intro"
	PhaseAwaitingImprov Phase = "AwaitingImprov"
	PhaseReacting       Phase = "Reacting"
	PhaseP1Turn         Phase = "P1Turn"
	PhaseP2Turn         Phase = "P2Turn"
	PhaseHostReact      Phase = "HostReact"
	PhaseDone           Phase = "Done"
)

// Performance reports whether a performer's utterances are authoritative in
// this phase.
func (p Phase) Performance() bool {
	return p == PhaseAwaitingImprov || p == PhaseP1Turn || p == PhaseP2Turn
}

func (p Phase) Terminal() bool {
	return p == PhaseDone
}

type Role string

const (
	RoleSolo Role = "Solo"
	RoleP1   Role = "P1"
	RoleP2   Role = "P2"
)

type Player struct {
	Identity string    `json:"identity"`
	Name     string    `json:"name"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Segment is one performer's contribution to a round, in performance order.
type Segment struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// EndReason records why a performer's turn ended. It flavors the host's
// reaction but never changes the transition taken.
type EndReason string

const (
	EndByCue       EndReason = "explicit_cue"
	EndByTurnLimit EndReason = "turn_limit"
	EndByTimeout   EndReason = "timeout"
	EndByCommand   EndReason = "command"
)

// Round is one completed scenario-to-reaction cycle. Records are append-only.
type Round struct {
	Index    int       `json:"index"`
	Scenario string    `json:"scenario"`
	Reaction string    `json:"reaction"`
	Segments []Segment `json:"segments,omitempty"`
	EndedBy  EndReason `json:"endedBy"`
}

// SessionConfig fixes a session's shape at creation time.
type SessionConfig struct {
	Mode          Mode          `json:"mode"`
	MaxRounds     int           `json:"maxRounds"`
	MaxUtterances int           `json:"maxUtterances"`
	TurnCeiling   time.Duration `json:"turnCeiling"`
	GenTimeout    time.Duration `json:"genTimeout"`
	EndCues       []string      `json:"endCues"`
	HandoffCues   []string      `json:"handoffCues"`
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Mode == "" {
		c.Mode = ModeSolo
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = 3
	}
	if c.MaxUtterances <= 0 {
		c.MaxUtterances = 6
	}
	if c.TurnCeiling <= 0 {
		c.TurnCeiling = 45 * time.Second
	}
	if c.GenTimeout <= 0 {
		c.GenTimeout = 15 * time.Second
	}
	if len(c.EndCues) == 0 {
		c.EndCues = []string{"end scene", "okay done", "that's my scene"}
	}
	if len(c.HandoffCues) == 0 {
		c.HandoffCues = []string{"passing it on", "over to you", "take it away"}
	}
	return c
}
