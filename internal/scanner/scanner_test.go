package scanner

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/idpforge/internal/logging"
)

func silentLog() *logging.Logger { return logging.New(nil, "silent") }

func TestComposeScan_Command(t *testing.T) {
	dir := t.TempDir()
	compose := filepath.Join(dir, "docker-compose", "app-stack.yml")
	fake := &FakeExecutor{Result: Result{Stdout: []byte(`{"Results":[{"Target":"go.mod"},{"Target":"Dockerfile"}]}`), ExitCode: 1}}

	rep, err := New(fake, 0, silentLog()).ComposeScan(context.Background(), compose, "security-scanner")
	require.NoError(t, err)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, filepath.Dir(compose), calls[0].Dir)
	assert.Equal(t, "docker", calls[0].Name)
	assert.Equal(t, []string{"compose", "-f", compose, "run", "--rm", "security-scanner", "filesystem", "--format", "json", "/scan"}, calls[0].Args)

	assert.Equal(t, 1, rep.ExitCode)
	assert.Equal(t, 2, rep.Findings)
	assert.Empty(t, rep.ParseError)
	assert.JSONEq(t, `{"Results":[{"Target":"go.mod"},{"Target":"Dockerfile"}]}`, string(rep.Data))
}

func TestComposeScan_InvalidJSON(t *testing.T) {
	fake := &FakeExecutor{Result: Result{Stdout: []byte("Usage: trivy ...")}}

	rep, err := New(fake, 0, silentLog()).ComposeScan(context.Background(), "stack.yml", "scanner")
	require.NoError(t, err)
	assert.Zero(t, rep.Findings)
	assert.Contains(t, rep.ParseError, "parsing scanner output")
	assert.Nil(t, rep.Data)
}

func TestComposeScan_Failure(t *testing.T) {
	long := make([]byte, 800)
	for i := range long {
		long[i] = 'x'
	}
	fake := &FakeExecutor{Result: Result{Stderr: long, ExitCode: 125}}

	_, err := New(fake, 0, silentLog()).ComposeScan(context.Background(), "stack.yml", "scanner")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 125, exitErr.Code)
	assert.Len(t, exitErr.Stderr, 500)
}

func TestComposeScan_Timeout(t *testing.T) {
	fake := &FakeExecutor{RunFunc: func(ctx context.Context, c Call) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	}}

	_, err := New(fake, 20*time.Millisecond, silentLog()).ComposeScan(context.Background(), "stack.yml", "scanner")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestComposeScan_ExecError(t *testing.T) {
	fake := &FakeExecutor{Err: errors.New("docker: not found")}
	_, err := New(fake, 0, silentLog()).ComposeScan(context.Background(), "stack.yml", "scanner")
	assert.ErrorContains(t, err, "docker: not found")
}

func TestSnykScan(t *testing.T) {
	fake := &FakeExecutor{}
	_, err := New(fake, 0, silentLog()).SnykScan(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, fake.Calls())

	fake = &FakeExecutor{
		Paths:  map[string]string{"snyk": "/usr/local/bin/snyk"},
		Result: Result{Stdout: []byte(`{"vulnerabilities":[{},{},{}]}`), ExitCode: 1},
	}
	rep, err := New(fake, 0, silentLog()).SnykScan(context.Background(), "/src")
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Findings)
	assert.Equal(t, []string{"test", "--json"}, fake.Calls()[0].Args)
}

func TestExecExecutor(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	e := ExecExecutor{}

	res, err := e.Run(context.Background(), t.TempDir(), "sh", "-c", "echo out; echo err >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "out\n", string(res.Stdout))
	assert.Equal(t, "err\n", string(res.Stderr))

	_, err = e.Run(context.Background(), "", "definitely-not-a-binary-idpforge")
	assert.Error(t, err)
}

func TestScan_TimeoutReachesChildProcesses(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	fake := &FakeExecutor{
		Paths: map[string]string{"snyk": "/usr/local/bin/snyk"},
		RunFunc: func(ctx context.Context, c Call) (Result, error) {
			// a wrapper whose real work runs in a child holding stderr
			return ExecExecutor{}.Run(ctx, "", "sh", "-c", "sleep 5 & sleep 5")
		},
	}
	start := time.Now()
	_, err := New(fake, 100*time.Millisecond, silentLog()).SnykScan(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestSnykScan_AllProjects(t *testing.T) {
	fake := &FakeExecutor{
		Paths: map[string]string{"snyk": "/usr/local/bin/snyk"},
		Result: Result{
			Stdout:   []byte(`[{"vulnerabilities":[{},{}]},{"vulnerabilities":[]},{"vulnerabilities":[{}]}]`),
			ExitCode: 1,
		},
	}
	rep, err := New(fake, 0, silentLog()).SnykScan(context.Background(), "/src")
	require.NoError(t, err)
	assert.Empty(t, rep.ParseError)
	assert.Equal(t, 3, rep.Findings)
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abcd", 2))
	// "é" is two bytes; cutting inside it drops the whole rune
	assert.Equal(t, "caf", truncate("café", 4))
	assert.True(t, utf8.ValidString(truncate("日本語のエラー", 7)))
}
