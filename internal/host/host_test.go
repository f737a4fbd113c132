package host

import (
	"context"
	"strings"
	"testing"

	"github.com/improvlabs/sceneshow/internal/game"
)

type capturingProvider struct {
	system string
	prompt string
	reply  string
}

func (p *capturingProvider) Complete(_ context.Context, _ string, prompt string) (string, error) {
	p.prompt = prompt
	return p.reply, nil
}

func (p *capturingProvider) CompleteWithSystem(_ context.Context, _ string, system string, prompt string) (string, error) {
	p.system = system
	p.prompt = prompt
	return p.reply, nil
}

func TestReactPromptCarriesPerformance(t *testing.T) {
	p := &capturingProvider{reply: "bravo!"}
	h := New(p, "test-model", "you are the host")

	round := game.Round{
		Index:    1,
		Scenario: "a haunted bakery",
		Segments: []game.Segment{
			{Role: game.RoleP1, Text: "the croissants are floating"},
			{Role: game.RoleP2, Text: "and they demand rent"},
		},
		EndedBy: game.EndByCue,
	}
	got, err := h.React(context.Background(), round)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "bravo!" {
		t.Fatalf("expected provider reply, got %q", got)
	}
	if p.system != "you are the host" {
		t.Fatalf("system prompt not passed through, got %q", p.system)
	}
	for _, want := range []string{"a haunted bakery", "the croissants are floating", "and they demand rent", "[P1]", "[P2]"} {
		if !strings.Contains(p.prompt, want) {
			t.Fatalf("prompt should contain %q:\n%s", want, p.prompt)
		}
	}
}

func TestReactPromptFlavorsEndReason(t *testing.T) {
	p := &capturingProvider{reply: "ok"}
	h := New(p, "test-model", "host")

	_, _ = h.React(context.Background(), game.Round{EndedBy: game.EndByTimeout})
	if !strings.Contains(p.prompt, "clock") {
		t.Fatalf("timeout flavor missing from prompt:\n%s", p.prompt)
	}
	_, _ = h.React(context.Background(), game.Round{EndedBy: game.EndByCue})
	if !strings.Contains(p.prompt, "clean cue") {
		t.Fatalf("cue flavor missing from prompt:\n%s", p.prompt)
	}
}

func TestClosingRemarksCoverTheWholeShow(t *testing.T) {
	p := &capturingProvider{reply: "good night"}
	h := New(p, "test-model", "host")

	rounds := []game.Round{
		{Index: 0, Scenario: "scene a", Reaction: "reaction a"},
		{Index: 1, Scenario: "scene b", Reaction: "reaction b"},
	}
	got, err := h.ClosingRemarks(context.Background(), rounds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "good night" {
		t.Fatalf("expected provider reply, got %q", got)
	}
	for _, want := range []string{"scene a", "scene b", "reaction a", "reaction b"} {
		if !strings.Contains(p.prompt, want) {
			t.Fatalf("closing prompt should contain %q:\n%s", want, p.prompt)
		}
	}
}
