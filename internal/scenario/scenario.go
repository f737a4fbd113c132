// Package scenario supplies the situations performers improvise against.
package scenario

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/improvlabs/sceneshow/internal/ai"
	"github.com/improvlabs/sceneshow/internal/game"
)

var builtin = []string{
	"You are a weather forecaster who has just realized, live on air, that you cannot pronounce the word 'precipitation'.",
	"You are a museum tour guide, and every exhibit you stop at has been stolen overnight.",
	"You are an astronaut giving a press conference, but you are fairly sure you left the station's front door open.",
	"You are a wedding DJ whose entire playlist has been replaced with whale sounds.",
	"You are a celebrity chef narrating a recipe for a dish you clearly have never cooked.",
	"You are a pirate captain trying to motivate a crew that has unionized.",
	"You are a sports commentator for a sport whose rules are being invented as the match goes on.",
	"You are a flight attendant calmly announcing increasingly alarming turbulence updates.",
	"You are a tech founder pitching an app that is, on close inspection, just a rock.",
	"You are a medieval town crier who has been handed modern celebrity gossip.",
	"You are a nature documentarian whispering about the mysterious habits of office workers.",
	"You are a ghost realtor giving a tour of the house you are haunting.",
}

// Deck serves a per-session shuffled copy of the built-in scenarios, one per
// round index, so no scenario repeats within a show.
type Deck struct {
	items []string
	perm  []int
}

func NewDeck(seed int64) *Deck {
	return NewDeckFrom(builtin, seed)
}

func NewDeckFrom(items []string, seed int64) *Deck {
	d := &Deck{items: items, perm: rand.New(rand.NewSource(seed)).Perm(len(items))}
	return d
}

func (d *Deck) Size() int {
	return len(d.items)
}

func (d *Deck) NextScenario(_ context.Context, roundIndex int, _ game.Mode) (string, error) {
	if roundIndex < 0 || roundIndex >= len(d.items) {
		return "", fmt.Errorf("round %d: %w", roundIndex, game.ErrNoScenario)
	}
	return d.items[d.perm[roundIndex]], nil
}

// LLM generates scenarios with a language model, falling back to the deck
// when the model fails or returns nothing usable.
type LLM struct {
	provider ai.Provider
	model    string
	theme    string
	deck     *Deck
}

func NewLLM(provider ai.Provider, model, theme string, fallback *Deck) *LLM {
	return &LLM{provider: provider, model: model, theme: theme, deck: fallback}
}

func (l *LLM) NextScenario(ctx context.Context, roundIndex int, mode game.Mode) (string, error) {
	prompt := fmt.Sprintf(
		"Invent one short improv scenario for round %d of a game show. Address the performer as 'you'. One or two sentences, no preamble.",
		roundIndex+1,
	)
	if mode == game.ModeRelay {
		prompt += " The scene will be started by one performer and finished by a second, so leave room for a twist."
	}
	if l.theme != "" {
		prompt += " Theme: " + l.theme + "."
	}
	text, err := l.provider.Complete(ctx, l.model, prompt)
	if err == nil {
		if text = strings.TrimSpace(text); text != "" {
			return text, nil
		}
	}
	if l.deck != nil {
		return l.deck.NextScenario(ctx, roundIndex, mode)
	}
	if err != nil {
		return "", err
	}
	return "", fmt.Errorf("round %d: %w", roundIndex, game.ErrNoScenario)
}
