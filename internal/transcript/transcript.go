// Package transcript writes the human-readable demo logs of a pipeline run:
// one file per agent, the hand-offs between agents, the orchestrator's own
// output and every file written. A nil *Transcript is valid and records
// nothing.
package transcript

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/soyeahso/idpforge/internal/domain"
)

// Log file names under the logs directory.
const (
	A2AFile    = "a2a-messages.log"
	OutputFile = "output.log"
	FilesFile  = "files.log"
)

// Style is how an agent appears in logs and on the console.
type Style struct {
	Emoji string
	Name  string
	Color color.Attribute
}

var fallbackStyle = Style{Emoji: "🤖", Color: color.Reset}

// Orchestrator is the pseudo-agent that receives the final hand-off.
const Orchestrator = "orchestrator"

// reasoningWords mark a message as the agent thinking aloud.
var reasoningWords = []string{"reason", "analy", "reading", "checking", "looking"}

// Transcript appends to the log files of one run.
type Transcript struct {
	dir     string
	console io.Writer
	styles  map[string]Style
	agents  []string
	now     func() time.Time

	mu   sync.Mutex
	last string
}

// LogFile returns the per-agent log name: platform_architect becomes
// platform-architect.log.
func LogFile(agent string) string {
	return strings.ReplaceAll(agent, "_", "-") + ".log"
}

// New truncates the log files in dir and writes their headers. agents are
// the agent names in pipeline order. A nil console disables echoing.
func New(dir string, console io.Writer, agents []string, styles map[string]Style) (*Transcript, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logs dir: %w", err)
	}
	t := &Transcript{
		dir:     dir,
		console: console,
		styles:  styles,
		agents:  agents,
		now:     time.Now,
	}
	names := []string{A2AFile, OutputFile}
	for _, a := range agents {
		names = append(names, LogFile(a))
	}
	names = append(names, FilesFile)

	started := t.now().Format(time.RFC3339)
	for _, name := range names {
		header := fmt.Sprintf("# %s - Started at %s\n%s\n\n", name, started, strings.Repeat("=", 60))
		if err := os.WriteFile(filepath.Join(dir, name), []byte(header), 0o644); err != nil {
			return nil, fmt.Errorf("creating %s: %w", name, err)
		}
	}
	return t, nil
}

// Dir returns the logs directory.
func (t *Transcript) Dir() string {
	if t == nil {
		return ""
	}
	return t.dir
}

func (t *Transcript) style(agent string) Style {
	if s, ok := t.styles[agent]; ok {
		return s
	}
	s := fallbackStyle
	s.Name = agent
	return s
}

func (t *Transcript) known(agent string) bool {
	for _, a := range t.agents {
		if a == agent {
			return true
		}
	}
	return false
}

func (t *Transcript) stamp() string {
	return "[" + t.now().Format("15:04:05") + "]"
}

func (t *Transcript) append(name, text string) {
	f, err := os.OpenFile(filepath.Join(t.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = io.WriteString(f, text)
}

// Output records an orchestrator line.
func (t *Transcript) Output(msg string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.append(OutputFile, t.stamp()+" "+msg+"\n")
	if t.console != nil {
		fmt.Fprintln(t.console, msg)
	}
}

// Agent records a message from agent. When the authoring agent differs
// from the previous one, the change is logged as a hand-off carrying msg.
func (t *Transcript) Agent(agent, msg string) {
	if t == nil || strings.TrimSpace(msg) == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	prefix := "📝 "
	lower := strings.ToLower(msg)
	for _, w := range reasoningWords {
		if strings.Contains(lower, w) {
			prefix = "🤔 "
			break
		}
	}
	t.agentLine(agent, prefix+msg)
	st := t.style(agent)
	if t.console != nil {
		color.New(st.Color).Fprintf(t.console, "📤 [%s %s]: %s\n", st.Emoji, st.Name, msg)
	}
	if t.last != "" && t.last != agent {
		t.handoff(t.last, agent, "Passing context: "+msg)
	}
	t.last = agent
}

// ToolCall records a tool invocation by agent.
func (t *Transcript) ToolCall(agent, tool string, failed bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	line := "🔧 Running: " + tool + "()"
	if failed {
		line += " ❌"
	}
	t.agentLine(agent, line)
	if t.console != nil {
		color.New(t.style(agent).Color).Fprintf(t.console, "🔧 [%s]: Running %s()\n", agent, tool)
	}
}

// Completed marks agent as done.
func (t *Transcript) Completed(agent string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.agentLine(agent, "✅ COMPLETED")
}

// Handoff records an explicit message between two agents.
func (t *Transcript) Handoff(from, to, msg string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handoff(from, to, msg)
}

// File records an artifact written to the output directory.
func (t *Transcript) File(a domain.Artifact) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	who := a.Agent
	if who == "" {
		who = "-"
	}
	t.append(FilesFile, fmt.Sprintf("%s [%s] %s (%s, %d bytes)\n", t.stamp(), who, a.Path, a.Kind, a.Size))
}

func (t *Transcript) agentLine(agent, line string) {
	name := OutputFile
	if t.known(agent) {
		name = LogFile(agent)
	}
	t.append(name, t.stamp()+" "+line+"\n")
}

func (t *Transcript) handoff(from, to, msg string) {
	f, g := t.style(from), t.style(to)
	t.append(A2AFile, fmt.Sprintf("%s [%s %s → %s %s]\n    📨 %s\n\n", t.stamp(), f.Emoji, f.Name, g.Emoji, g.Name, msg))
}
