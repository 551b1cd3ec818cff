// Package workspace is the shared output directory the agents hand
// artifacts through. Every write is atomic and reported to an optional
// observer so the pipeline can index what each stage produced.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/soyeahso/idpforge/internal/domain"
)

// Well-known artifact paths, relative to the workspace root.
const (
	UserTaskFile                = "user-task.txt"
	PlatformConfigFile          = "platform-config.yaml"
	PlatformDecisionsFile       = "platform-decisions.json"
	InfrastructureDecisionsFile = "infrastructure-decisions.json"
	SecurityReportFile          = "security-report.json"
	CICDDecisionsFile           = "cicd-decisions.json"
	ObservabilityDecisionsFile  = "observability-decisions.json"
	DevExDecisionsFile          = "devex-decisions.json"
	PortalDecisionsFile         = "web-portal-decisions.json"
	DigitalOceanPlanFile        = "digitalocean-plan.json"
	ComposeFile                 = "docker-compose/app-stack.yml"
	PrometheusFile              = "docker-compose/prometheus.yml"
	DashboardsDir               = "grafana-dashboards"
	CICDDir                     = "cicd"
	CLIToolDir                  = "cli-tool"
	PortalDir                   = "portal"
	LogsDir                     = "logs"
)

// DecisionFiles lists the per-agent decision documents in pipeline order.
var DecisionFiles = []string{
	PlatformDecisionsFile,
	InfrastructureDecisionsFile,
	SecurityReportFile,
	CICDDecisionsFile,
	ObservabilityDecisionsFile,
	DevExDecisionsFile,
}

// ErrOutsideRoot is returned for paths that would escape the workspace.
var ErrOutsideRoot = errors.New("path escapes workspace root")

// Observer is told about every file written through a Workspace.
type Observer func(a domain.Artifact, data []byte)

type shared struct {
	mu       sync.RWMutex
	observer Observer
}

// Workspace is rooted at the pipeline output directory. Copies returned by
// ForAgent share the root and the observer.
type Workspace struct {
	root   string
	agent  string
	shared *shared
	now    func() time.Time
}

// New returns a workspace rooted at dir. The directory is created lazily on
// the first write.
func New(dir string) *Workspace {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = filepath.Clean(dir)
	}
	return &Workspace{root: abs, shared: &shared{}, now: time.Now}
}

// ForAgent returns a view that attributes writes to the named agent.
func (w *Workspace) ForAgent(agent string) *Workspace {
	cp := *w
	cp.agent = agent
	return &cp
}

// Agent returns the agent writes are attributed to, if any.
func (w *Workspace) Agent() string { return w.agent }

// SetObserver installs fn for this workspace and every view derived from it.
// A nil fn disables notifications.
func (w *Workspace) SetObserver(fn Observer) {
	w.shared.mu.Lock()
	w.shared.observer = fn
	w.shared.mu.Unlock()
}

// Root returns the absolute workspace directory.
func (w *Workspace) Root() string { return w.root }

// Abs resolves rel against the root.
func (w *Workspace) Abs(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%s: %w", rel, ErrOutsideRoot)
	}
	return filepath.Join(w.root, clean), nil
}

// MustAbs is Abs for the well-known constant paths.
func (w *Workspace) MustAbs(rel string) string {
	p, err := w.Abs(rel)
	if err != nil {
		panic(err)
	}
	return p
}

// Exists reports whether rel exists.
func (w *Workspace) Exists(rel string) bool {
	p, err := w.Abs(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// EnsureDir creates the root directory.
func (w *Workspace) EnsureDir() error {
	return os.MkdirAll(w.root, 0o755)
}

// WriteFile atomically replaces rel with data.
func (w *Workspace) WriteFile(rel string, data []byte, mode os.FileMode) error {
	path, err := w.Abs(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(rel), err)
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(mode))
	if err != nil {
		return fmt.Errorf("create pending %s: %w", rel, err)
	}
	defer pending.Cleanup() //nolint:errcheck

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", rel, err)
	}

	w.notify(rel, data)
	return nil
}

func (w *Workspace) notify(rel string, data []byte) {
	w.shared.mu.RLock()
	fn := w.shared.observer
	w.shared.mu.RUnlock()
	if fn == nil {
		return
	}
	fn(domain.Artifact{
		Path:      filepath.ToSlash(rel),
		Kind:      KindOf(rel),
		Agent:     w.agent,
		Size:      int64(len(data)),
		WrittenAt: w.now().UTC(),
	}, data)
}

// WriteJSON writes v as indented JSON.
func (w *Workspace) WriteJSON(rel string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", rel, err)
	}
	return w.WriteFile(rel, append(data, '\n'), 0o644)
}

// WriteYAML writes v as YAML with two-space indentation.
func (w *Workspace) WriteYAML(rel string, v any) error {
	data, err := MarshalYAML(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", rel, err)
	}
	return w.WriteFile(rel, data, 0o644)
}

// MarshalYAML encodes v the way the workspace writes YAML files.
func MarshalYAML(v any) ([]byte, error) {
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// ReadFile returns the contents of rel.
func (w *Workspace) ReadFile(rel string) ([]byte, error) {
	p, err := w.Abs(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// ReadJSON decodes rel into v.
func (w *Workspace) ReadJSON(rel string, v any) error {
	data, err := w.ReadFile(rel)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", rel, err)
	}
	return nil
}

// ReadYAML decodes rel into v.
func (w *Workspace) ReadYAML(rel string, v any) error {
	data, err := w.ReadFile(rel)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", rel, err)
	}
	return nil
}

// List returns every regular file under the root as slash-separated
// relative paths, sorted. A missing root yields an empty list.
func (w *Workspace) List() ([]string, error) {
	var out []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == w.root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// KindOf classifies an artifact path.
func KindOf(rel string) domain.ArtifactKind {
	rel = filepath.ToSlash(rel)
	base := filepath.Base(rel)
	switch {
	case rel == PlatformConfigFile || rel == PrometheusFile:
		return domain.ArtifactConfig
	case rel == SecurityReportFile:
		return domain.ArtifactReport
	case strings.HasSuffix(base, "-decisions.json") || rel == DigitalOceanPlanFile:
		return domain.ArtifactDecision
	case strings.HasPrefix(rel, "docker-compose/"):
		return domain.ArtifactCompose
	case strings.HasPrefix(rel, DashboardsDir+"/"):
		return domain.ArtifactDashboard
	case strings.HasPrefix(rel, PortalDir+"/"):
		return domain.ArtifactPortal
	case strings.HasPrefix(rel, CICDDir+"/"), strings.HasPrefix(rel, CLIToolDir+"/"), strings.HasSuffix(base, ".sh"):
		return domain.ArtifactScript
	}
	return domain.ArtifactOther
}
