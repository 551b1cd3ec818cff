package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/soyeahso/idpforge/internal/config"
	"github.com/soyeahso/idpforge/internal/procgroup"
)

// DefaultShellTimeout bounds a hook command when the entry sets no timeout.
const DefaultShellTimeout = 10 * time.Second

// ShellHandler returns a Handler that runs command through `sh -c`. The
// payload is written to the command's stdin as JSON and the event name is
// exported as IDPFORGE_EVENT.
func ShellHandler(command string, timeout time.Duration) Handler {
	if timeout <= 0 {
		timeout = DefaultShellTimeout
	}
	return func(ctx context.Context, p Payload) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding hook payload: %w", err)
		}

		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Stdin = bytes.NewReader(body)
		cmd.Env = append(os.Environ(), "IDPFORGE_EVENT="+p.Event)
		procgroup.Bind(cmd, 0)

		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("hook %q: %w: %s", command, err, msg)
			}
			return fmt.Errorf("hook %q: %w", command, err)
		}
		return nil
	}
}

// RegisterConfigured installs a ShellHandler for every configured hook entry.
// Handlers are named "config:<index>" so they can be removed with Off.
func RegisterConfigured(m *Manager, cfg config.HooksConfig) int {
	n := 0
	for event, entries := range cfg {
		if !Known(event) {
			m.log.Warn().Str("event", event).Msg("ignoring hook for unknown event")
			continue
		}
		for i, e := range entries {
			if e.Command == "" {
				continue
			}
			timeout := time.Duration(e.Timeout) * time.Millisecond
			m.On(event, fmt.Sprintf("config:%d", i), ShellHandler(e.Command, timeout))
			n++
		}
	}
	return n
}
