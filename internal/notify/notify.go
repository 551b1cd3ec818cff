// Package notify posts run summaries to chat.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/idpforge/internal/domain"
)

// Notifier delivers the summary of a finished run.
type Notifier interface {
	Notify(ctx context.Context, run *domain.Run) error
}

// Nop drops every summary.
type Nop struct{}

func (Nop) Notify(context.Context, *domain.Run) error { return nil }

// Summary renders run as chat lines: a headline, then one line per stage.
func Summary(run *domain.Run) []string {
	ok := 0
	for _, s := range run.Stages {
		if s.Status == domain.StageSucceeded {
			ok++
		}
	}
	id := run.ID
	if len(id) > 8 {
		id = id[:8]
	}
	lines := []string{fmt.Sprintf("idpforge run %s %s in %s: %d/%d stages, %d artifacts",
		id, run.Status, run.Duration().Round(100*time.Millisecond), ok, len(run.Stages), run.ArtifactCount())}
	for _, s := range run.Stages {
		mark := "✅"
		switch s.Status {
		case domain.StageFailed:
			mark = "❌"
		case domain.StageSkipped:
			mark = "⏭️"
		}
		line := fmt.Sprintf("  %s %s (%d tools, %d files)", mark, s.Agent, s.ToolCalls, len(s.Artifacts))
		if s.Error != "" {
			line += ": " + s.Error
		}
		lines = append(lines, line)
	}
	if run.OutputDir != "" {
		lines = append(lines, "  output: "+run.OutputDir)
	}
	return lines
}

// splitMessage breaks text into IRC-sized chunks. Every newline starts a
// new chunk and lines longer than maxLen are cut at maxLen bytes.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLen {
			chunks = append(chunks, line[:maxLen])
			line = line[maxLen:]
		}
		if line != "" {
			chunks = append(chunks, line)
		}
	}
	return chunks
}
