package game

import (
	"strings"
	"time"
)

// Detector decides when the active performer's turn is over. Rules are
// evaluated in order after every utterance and on the periodic tick; the
// first match wins.
type Detector struct {
	endCues       []string
	handoffCues   []string
	maxUtterances int
	ceiling       time.Duration
}

type EndDecision struct {
	Over   bool
	Reason EndReason
}

func NewDetector(cfg SessionConfig) *Detector {
	return &Detector{
		endCues:       lowerAll(cfg.EndCues),
		handoffCues:   lowerAll(cfg.HandoffCues),
		maxUtterances: cfg.MaxUtterances,
		ceiling:       cfg.TurnCeiling,
	}
}

// AfterUtterance evaluates the turn after one more utterance has been
// accepted. relay widens the cue set to include handoff phrases.
func (d *Detector) AfterUtterance(text string, utterances int, elapsed time.Duration, relay bool) EndDecision {
	lowered := strings.ToLower(text)
	if matchesAny(lowered, d.endCues) {
		return EndDecision{Over: true, Reason: EndByCue}
	}
	if relay && matchesAny(lowered, d.handoffCues) {
		return EndDecision{Over: true, Reason: EndByCue}
	}
	if utterances >= d.maxUtterances {
		return EndDecision{Over: true, Reason: EndByTurnLimit}
	}
	if elapsed >= d.ceiling {
		return EndDecision{Over: true, Reason: EndByTimeout}
	}
	return EndDecision{}
}

// AfterTick evaluates only the time ceiling; utterance rules cannot fire
// without a new utterance.
func (d *Detector) AfterTick(elapsed time.Duration) EndDecision {
	if elapsed >= d.ceiling {
		return EndDecision{Over: true, Reason: EndByTimeout}
	}
	return EndDecision{}
}

func matchesAny(lowered string, cues []string) bool {
	for _, cue := range cues {
		if cue != "" && strings.Contains(lowered, cue) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}
