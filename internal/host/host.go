// Package host is the show's AI persona: it turns finished performances into
// reactions and the whole show into closing remarks.
package host

import (
	"context"
	"fmt"
	"strings"

	"github.com/improvlabs/sceneshow/internal/ai"
	"github.com/improvlabs/sceneshow/internal/game"
)

type Host struct {
	provider ai.Provider
	model    string
	system   string
}

func New(provider ai.Provider, model, systemPrompt string) *Host {
	return &Host{provider: provider, model: model, system: systemPrompt}
}

func (h *Host) React(ctx context.Context, round game.Round) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Round %d scenario: %s\n\nThe performance:\n", round.Index+1, round.Scenario)
	for _, seg := range round.Segments {
		fmt.Fprintf(&b, "[%s] %s\n", seg.Role, seg.Text)
	}
	b.WriteString("\n" + endingFlavor(round.EndedBy))
	b.WriteString(" React to the performance as the host.")
	return h.provider.CompleteWithSystem(ctx, h.model, h.system, b.String())
}

func (h *Host) ClosingRemarks(ctx context.Context, rounds []game.Round) (string, error) {
	var b strings.Builder
	b.WriteString("The show is over. Here is what happened:\n")
	for _, r := range rounds {
		fmt.Fprintf(&b, "Round %d: %s\nYour reaction was: %s\n", r.Index+1, r.Scenario, r.Reaction)
	}
	b.WriteString("\nDeliver short closing remarks summing up the whole show and thanking the performers.")
	return h.provider.CompleteWithSystem(ctx, h.model, h.system, b.String())
}

// endingFlavor tells the persona how the scene stopped; a scene that timed
// out warrants different commentary than a cleanly cued one.
func endingFlavor(reason game.EndReason) string {
	switch reason {
	case game.EndByTimeout:
		return "The scene ran out the clock and had to be cut off."
	case game.EndByTurnLimit:
		return "The performers kept going until the turn limit reined them in."
	case game.EndByCommand:
		return "The scene was ended by request."
	default:
		return "The scene ended on a clean cue."
	}
}
