//go:build unix

package procgroup

import (
	"bytes"
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBind_CancelKillsChildren(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// the backgrounded sleep keeps stderr open after sh itself is gone
	cmd := exec.CommandContext(ctx, "sh", "-c", "sleep 5 & sleep 5")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	Bind(cmd, 0)

	start := time.Now()
	err := cmd.Run()
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func TestBind_SetsGroupAndDelay(t *testing.T) {
	cmd := exec.Command("true")
	Bind(cmd, 0)
	require.NotNil(t, cmd.SysProcAttr)
	assert.True(t, cmd.SysProcAttr.Setpgid)
	assert.Equal(t, DefaultWaitDelay, cmd.WaitDelay)
	assert.NotNil(t, cmd.Cancel)

	require.NoError(t, cmd.Run())
}
