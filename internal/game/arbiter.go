package game

// Verdict is the arbiter's classification of a performance-content event.
// Redirect means the sender should get a gentle "not your turn" notice
// rather than a silent drop.
type Verdict int

const (
	VerdictAccept Verdict = iota
	VerdictRedirect
	VerdictIgnore
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccept:
		return "accept"
	case VerdictRedirect:
		return "redirect"
	default:
		return "ignore"
	}
}

// Arbiter decides whose input is authoritative. Explicit commands never pass
// through it; a stuck scene must always be escapable.
type Arbiter struct {
	noticeSent bool
}

// Admit classifies an utterance from sender given the current phase. Only
// the active performer's input is accepted during a performance phase;
// everyone else gets redirected. Outside performance phases everything is
// ignored.
func (a *Arbiter) Admit(phase Phase, sender Role) Verdict {
	active, ok := ActiveRole(phase)
	if !ok {
		return VerdictIgnore
	}
	if sender == active {
		return VerdictAccept
	}
	return VerdictRedirect
}

// TakeNotice reports whether a redirect notice may still be emitted this
// turn and consumes the allowance. At most one notice per turn.
func (a *Arbiter) TakeNotice() bool {
	if a.noticeSent {
		return false
	}
	a.noticeSent = true
	return true
}

// ResetTurn restores the notice allowance at the start of a performer turn.
func (a *Arbiter) ResetTurn() {
	a.noticeSent = false
}

// ActiveRole maps a performance phase to the role whose input is
// authoritative there. ok is false outside performance phases.
func ActiveRole(phase Phase) (Role, bool) {
	switch phase {
	case PhaseAwaitingImprov:
		return RoleSolo, true
	case PhaseP1Turn:
		return RoleP1, true
	case PhaseP2Turn:
		return RoleP2, true
	default:
		return "", false
	}
}
