// Package procgroup makes context cancellation reach every process a command
// spawns, not only the direct child.
package procgroup

import (
	"os/exec"
	"time"
)

// DefaultWaitDelay bounds how long Wait keeps draining output pipes after the
// group was killed.
const DefaultWaitDelay = 500 * time.Millisecond

// Bind starts cmd in its own process group and makes exec.CommandContext
// cancellation kill the whole group. cmd must not be started yet.
func Bind(cmd *exec.Cmd, waitDelay time.Duration) {
	if waitDelay <= 0 {
		waitDelay = DefaultWaitDelay
	}
	set(cmd)
	cmd.Cancel = func() error { return killGroup(cmd) }
	cmd.WaitDelay = waitDelay
}
