// Package export appends completed shows to a plain-text results file.
package export

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/improvlabs/sceneshow/internal/game"
)

type Writer struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Writer {
	return &Writer{path: path}
}

func (w *Writer) Archive(rec game.ShowRecord) error {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Show %s (%s) at %s ===\n", rec.Code, rec.Mode, rec.EndedAt.UTC().Format("2006-01-02 15:04:05"))
	names := make([]string, 0, len(rec.Players))
	for _, p := range rec.Players {
		name := p.Name
		if name == "" {
			name = string(p.Role)
		}
		names = append(names, fmt.Sprintf("%s (%s)", name, p.Role))
	}
	fmt.Fprintf(&b, "Performers: %s\n", strings.Join(names, ", "))
	for _, r := range rec.Rounds {
		fmt.Fprintf(&b, "\nRound %d: %s\n", r.Index+1, r.Scenario)
		for _, seg := range r.Segments {
			fmt.Fprintf(&b, "  [%s] %s\n", seg.Role, seg.Text)
		}
		fmt.Fprintf(&b, "  Host: %s\n", r.Reaction)
	}
	fmt.Fprintf(&b, "\nClosing: %s\n\n", rec.Closing)

	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open results file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("write results file: %w", err)
	}
	return nil
}
