// Package scanner runs container security scanners through docker compose
// and summarizes their JSON output.
package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/soyeahso/idpforge/internal/logging"
	"github.com/soyeahso/idpforge/internal/procgroup"
)

// DefaultTimeout bounds a single scan.
const DefaultTimeout = 120 * time.Second

// ErrTimeout is returned when a scan exceeds its deadline.
var ErrTimeout = errors.New("scan timeout")

// ErrUnavailable is returned when the scanner binary cannot be found.
var ErrUnavailable = errors.New("scanner not available")

// Result is the raw outcome of a command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Executor runs external commands. Implementations must honour ctx.
type Executor interface {
	Run(ctx context.Context, dir, name string, args ...string) (Result, error)
	LookPath(name string) (string, error)
}

// ExecExecutor runs commands with os/exec.
type ExecExecutor struct{}

func (ExecExecutor) Run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	// snyk and docker compose run their work in child processes
	procgroup.Bind(cmd, 0)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}

func (ExecExecutor) LookPath(name string) (string, error) { return exec.LookPath(name) }

// Report summarizes one scan.
type Report struct {
	Tool       string
	Command    []string
	ExitCode   int
	Findings   int
	Data       json.RawMessage
	ParseError string
	Duration   time.Duration
}

// Scanner runs scans with a per-scan timeout.
type Scanner struct {
	exec    Executor
	timeout time.Duration
	log     *logging.Logger
}

// New creates a Scanner. A zero timeout means DefaultTimeout; a nil
// executor means ExecExecutor.
func New(e Executor, timeout time.Duration, log *logging.Logger) *Scanner {
	if e == nil {
		e = ExecExecutor{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Scanner{exec: e, timeout: timeout, log: log.Sub("scanner")}
}

// Timeout returns the per-scan deadline.
func (s *Scanner) Timeout() time.Duration { return s.timeout }

// ComposeScan runs the scanner service defined in the compose file against
// the mounted project directory:
//
//	docker compose -f <compose> run --rm <service> filesystem --format json /scan
//
// Exit codes 0 and 1 both mean the scan completed (1 signals findings).
func (s *Scanner) ComposeScan(ctx context.Context, composePath, service string) (*Report, error) {
	abs, err := filepath.Abs(composePath)
	if err != nil {
		return nil, err
	}
	args := []string{"compose", "-f", abs, "run", "--rm", service, "filesystem", "--format", "json", "/scan"}
	return s.run(ctx, "trivy", filepath.Dir(abs), "docker", args)
}

// SnykScan runs "snyk test --json" in dir when the snyk CLI is installed.
func (s *Scanner) SnykScan(ctx context.Context, dir string) (*Report, error) {
	if _, err := s.exec.LookPath("snyk"); err != nil {
		return nil, fmt.Errorf("snyk: %w", ErrUnavailable)
	}
	return s.run(ctx, "snyk", dir, "snyk", []string{"test", "--json"})
}

func (s *Scanner) run(ctx context.Context, tool, dir, name string, args []string) (*Report, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	s.log.Info().Str("tool", tool).Str("dir", dir).Strs("args", args).Msg("running scan")
	res, err := s.exec.Run(ctx, dir, name, args...)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%s: %w (%s exceeded)", tool, ErrTimeout, s.timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tool, err)
	}

	rep := &Report{
		Tool:     tool,
		Command:  append([]string{name}, args...),
		ExitCode: res.ExitCode,
		Duration: time.Since(start),
	}
	if res.ExitCode != 0 && res.ExitCode != 1 {
		return rep, &ExitError{Tool: tool, Code: res.ExitCode, Stderr: truncate(string(res.Stderr), 500)}
	}

	out := bytes.TrimSpace(res.Stdout)
	count, perr := countFindings(out)
	switch {
	case perr != nil:
		rep.ParseError = perr.Error()
	case len(out) > 0:
		rep.Findings = count
		rep.Data = json.RawMessage(out)
	}
	s.log.Info().Str("tool", tool).Int("exit", res.ExitCode).Int("findings", rep.Findings).Dur("took", rep.Duration).Msg("scan finished")
	return rep, nil
}

// ExitError reports a scanner that failed rather than completed.
type ExitError struct {
	Tool   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.Code, e.Stderr)
}

// findingsDoc covers trivy's {"Results": [...]} and snyk's
// {"vulnerabilities": [...]} shapes.
type findingsDoc struct {
	Results         []json.RawMessage `json:"Results"`
	Vulnerabilities []json.RawMessage `json:"vulnerabilities"`
}

func (d findingsDoc) count() int {
	if d.Vulnerabilities != nil {
		return len(d.Vulnerabilities)
	}
	return len(d.Results)
}

// countFindings also accepts the array snyk prints for multi-project scans
// (--all-projects), summing every project.
func countFindings(out []byte) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	if out[0] == '[' {
		var docs []findingsDoc
		if err := json.Unmarshal(out, &docs); err != nil {
			return 0, fmt.Errorf("parsing scanner output: %w", err)
		}
		total := 0
		for _, d := range docs {
			total += d.count()
		}
		return total, nil
	}
	var doc findingsDoc
	if err := json.Unmarshal(out, &doc); err != nil {
		return 0, fmt.Errorf("parsing scanner output: %w", err)
	}
	return doc.count(), nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
