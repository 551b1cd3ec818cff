// Package pipeline runs the agent chain: one agent after another over a
// shared session and a shared output directory.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/idpforge/internal/agent"
	"github.com/soyeahso/idpforge/internal/agents"
	"github.com/soyeahso/idpforge/internal/domain"
	"github.com/soyeahso/idpforge/internal/hooks"
	"github.com/soyeahso/idpforge/internal/llm"
	"github.com/soyeahso/idpforge/internal/logging"
	"github.com/soyeahso/idpforge/internal/metrics"
	"github.com/soyeahso/idpforge/internal/notify"
	"github.com/soyeahso/idpforge/internal/transcript"
	"github.com/soyeahso/idpforge/internal/workspace"
)

// DefaultTask is used when a run is started without a task.
const DefaultTask = "Build an Internal Developer Platform"

// FinalMessage is the orchestrator's closing hand-off.
const FinalMessage = "IDP generated successfully. Portal ready."

// Recorder persists runs. *store.DB satisfies it.
type Recorder interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	RecordStage(ctx context.Context, runID string, position int, st domain.StageResult) error
	RecordArtifact(ctx context.Context, runID string, a domain.Artifact, content []byte) error
	FinishRun(ctx context.Context, run *domain.Run) error
}

// Options tune how stages call the model.
type Options struct {
	Provider          string
	Fallbacks         []string
	Model             string
	MaxTokens         int
	Temperature       *float64
	MaxToolIterations int
	StageTimeout      time.Duration

	// ContinueOnError runs the remaining stages after a failed one.
	ContinueOnError bool

	// RunID names the run and its session. Empty generates a run id and
	// uses the default session.
	RunID string
}

// Config wires a Sequential. Registry, Sessions and Workspace are required;
// everything else may be nil.
type Config struct {
	Name       string
	Stages     []*agents.Definition
	Registry   *llm.Registry
	Sessions   agent.SessionStore
	Workspace  *workspace.Workspace
	Hooks      *hooks.Manager
	Store      Recorder
	Notifier   notify.Notifier
	Transcript *transcript.Transcript
	Options    Options
}

// Sequential runs its stages strictly in order, each exactly once.
type Sequential struct {
	name       string
	stages     []*agents.Definition
	registry   *llm.Registry
	sessions   agent.SessionStore
	ws         *workspace.Workspace
	hooks      *hooks.Manager
	store      Recorder
	notifier   notify.Notifier
	transcript *transcript.Transcript
	opts       Options
	log        *logging.Logger
	now        func() time.Time
}

// New builds a sequential pipeline.
func New(cfg Config, log *logging.Logger) *Sequential {
	name := cfg.Name
	if name == "" {
		name = "idp_orchestrator"
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Sequential{
		name:       name,
		stages:     cfg.Stages,
		registry:   cfg.Registry,
		sessions:   cfg.Sessions,
		ws:         cfg.Workspace,
		hooks:      cfg.Hooks,
		store:      cfg.Store,
		notifier:   cfg.Notifier,
		transcript: cfg.Transcript,
		opts:       cfg.Options,
		log:        log.Sub("pipeline"),
		now:        time.Now,
	}
}

// Name returns the pipeline name.
func (s *Sequential) Name() string { return s.name }

// Stages returns the agent names in execution order.
func (s *Sequential) Stages() []string {
	out := make([]string, len(s.stages))
	for i, d := range s.stages {
		out[i] = d.Name
	}
	return out
}

// collector attributes written artifacts to the running stage.
type collector struct {
	mu    sync.Mutex
	stage *domain.StageResult
}

func (c *collector) set(st *domain.StageResult) {
	c.mu.Lock()
	c.stage = st
	c.mu.Unlock()
}

func (c *collector) add(a domain.Artifact) {
	c.mu.Lock()
	if c.stage != nil {
		c.stage.Artifacts = append(c.stage.Artifacts, a)
	}
	c.mu.Unlock()
}

// Run executes every stage and returns the run record. When a stage fails
// the pipeline stops, the remaining stages are marked skipped and the
// partial run is returned together with the error.
func (s *Sequential) Run(ctx context.Context, task string) (*domain.Run, error) {
	if len(s.stages) == 0 {
		return nil, errors.New("pipeline has no stages")
	}
	task = strings.TrimSpace(task)
	if task == "" {
		task = DefaultTask
	}

	key := domain.DefaultSessionKey()
	runID := s.opts.RunID
	if runID != "" {
		key.SessionID = runID
	} else {
		runID = uuid.NewString()
	}
	sess := s.sessions.GetOrCreate(key)
	s.sessions.Reset(sess.ID)

	run := &domain.Run{
		ID:        runID,
		SessionID: key.String(),
		Task:      task,
		OutputDir: s.ws.Root(),
		Provider:  s.opts.Provider,
		Status:    domain.RunRunning,
		StartedAt: s.now(),
	}
	log := s.log.With("runId", run.ID)

	// Persistence and notifications outlive a cancelled run.
	bg := context.WithoutCancel(ctx)
	if s.store != nil {
		if err := s.store.CreateRun(bg, run); err != nil {
			log.Warn().Err(err).Msg("run not recorded")
		}
	}

	col := &collector{}
	s.ws.SetObserver(func(a domain.Artifact, data []byte) {
		col.add(a)
		metrics.RecordArtifact(string(a.Kind))
		s.transcript.File(a)
		if s.store != nil {
			if err := s.store.RecordArtifact(bg, run.ID, a, data); err != nil {
				log.Warn().Err(err).Str("path", a.Path).Msg("artifact not recorded")
			}
		}
		// Fires inside tool calls; shell hooks must not hold up the agent.
		s.hooks.EmitAsync(ctx, hooks.EventArtifactWritten, map[string]any{
			"run_id": run.ID,
			"agent":  a.Agent,
			"path":   a.Path,
			"kind":   string(a.Kind),
			"size":   a.Size,
		})
	})
	defer s.ws.SetObserver(nil)

	s.hooks.Emit(ctx, hooks.EventPipelineStart, map[string]any{
		"run_id": run.ID,
		"task":   task,
		"agents": s.Stages(),
	})
	s.transcript.Output("🚀 ORCHESTRATOR STARTING")
	s.transcript.Output("📋 Task: " + task)
	s.transcript.Output("✅ Session created: " + sess.ID)
	log.Info().Str("task", task).Int("stages", len(s.stages)).Str("sessionId", run.SessionID).Msg("pipeline starting")

	runErr := s.ws.WriteFile(workspace.UserTaskFile, []byte(task), 0o644)
	if runErr == nil {
		runErr = s.runStages(ctx, run, sess.ID, task, col)
	}

	run.FinishedAt = s.now()
	if runErr != nil {
		run.Status = domain.RunFailed
		run.Error = runErr.Error()
	} else {
		run.Status = domain.RunSucceeded
	}
	if s.store != nil {
		if err := s.store.FinishRun(bg, run); err != nil {
			log.Warn().Err(err).Msg("run result not recorded")
		}
	}

	// artifact hooks settle before the final event
	s.hooks.Wait()

	summary := map[string]any{
		"run_id":    run.ID,
		"status":    string(run.Status),
		"artifacts": run.ArtifactCount(),
		"duration":  run.Duration().String(),
	}
	if runErr != nil {
		summary["error"] = runErr.Error()
		s.hooks.Emit(bg, hooks.EventPipelineError, summary)
		s.transcript.Output("❌ Error: " + runErr.Error())
		log.Error().Err(runErr).Dur("duration", run.Duration()).Msg("pipeline failed")
	} else {
		s.hooks.Emit(bg, hooks.EventPipelineComplete, summary)
		s.transcript.Output(strings.Repeat("=", 60))
		s.transcript.Output("✅ ORCHESTRATOR COMPLETED")
		s.transcript.Handoff(s.stages[len(s.stages)-1].Name, transcript.Orchestrator, FinalMessage)
		log.Info().Int("artifacts", run.ArtifactCount()).Dur("duration", run.Duration()).Msg("pipeline complete")
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(bg, run); err != nil {
			log.Warn().Err(err).Msg("run notification failed")
		}
	}
	return run, runErr
}

func (s *Sequential) runStages(ctx context.Context, run *domain.Run, sessionID, task string, col *collector) error {
	enhanced := EnhancedTask(task, s.stages)
	var (
		handoff []string
		failed  error
	)
	for i, def := range s.stages {
		st := domain.StageResult{Agent: def.Name, StartedAt: s.now()}
		if failed != nil && !s.opts.ContinueOnError {
			st.Status = domain.StageSkipped
			s.finishStage(ctx, run, i, st)
			continue
		}
		if err := ctx.Err(); err != nil {
			if failed == nil {
				failed = err
			}
			st.Status = domain.StageSkipped
			s.finishStage(ctx, run, i, st)
			continue
		}

		col.set(&st)
		err := s.runStage(ctx, run, sessionID, i, def, StageInput(enhanced, handoff), &st)
		col.set(nil)
		s.finishStage(ctx, run, i, st)

		if err != nil {
			if failed == nil {
				failed = fmt.Errorf("stage %s: %w", def.Name, err)
			}
			continue
		}
		handoff = append(handoff, fmt.Sprintf("%s (%s): %s", def.DisplayName, def.OutputKey, st.Output))
	}
	return failed
}

func (s *Sequential) runStage(ctx context.Context, run *domain.Run, sessionID string, position int, def *agents.Definition, input string, st *domain.StageResult) error {
	log := s.log.With("runId", run.ID).With("agent", def.Name)

	runner := agent.NewRunner(agent.RunnerConfig{
		AgentID:           def.Name,
		AgentName:         def.DisplayName,
		Instruction:       def.Instruction,
		Provider:          s.opts.Provider,
		Fallbacks:         s.opts.Fallbacks,
		Model:             s.opts.Model,
		MaxTokens:         s.opts.MaxTokens,
		Temperature:       s.opts.Temperature,
		MaxToolIterations: s.opts.MaxToolIterations,
		OutputDir:         s.ws.Root(),
	}, s.registry, s.sessions, agent.NewToolRegistry(def.Tools...), s.log)
	runner.SetHooks(s.hooks)

	s.hooks.Emit(ctx, hooks.EventAgentStart, map[string]any{
		"run_id":   run.ID,
		"agent":    def.Name,
		"position": position,
	})
	log.Info().Int("position", position).Msg("stage starting")

	stageCtx := ctx
	if s.opts.StageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, s.opts.StageTimeout)
		defer cancel()
	}

	start := s.now()
	res, err := runner.Run(stageCtx, sessionID, input)
	st.Duration = s.now().Sub(start)
	metrics.RecordAgentRun(def.Name, err == nil, st.Duration)

	if err != nil {
		st.Status = domain.StageFailed
		st.Error = err.Error()
		s.hooks.Emit(ctx, hooks.EventAgentError, map[string]any{
			"run_id": run.ID,
			"agent":  def.Name,
			"error":  err.Error(),
		})
		s.transcript.Agent(def.Name, "❌ "+err.Error())
		log.Error().Err(err).Dur("duration", st.Duration).Msg("stage failed")
		return err
	}

	st.Status = domain.StageSucceeded
	st.Output = res.Response
	st.ToolCalls = len(res.ToolCalls)
	if def.OutputKey != "" {
		s.sessions.SetState(sessionID, def.OutputKey, res.Response)
	}

	for _, tc := range res.ToolCalls {
		s.transcript.ToolCall(def.Name, tc.Name, tc.Error != "" || agents.StatusOf(tc.Output) == agents.StatusError)
	}
	s.transcript.Agent(def.Name, res.Response)
	s.transcript.Completed(def.Name)

	s.hooks.Emit(ctx, hooks.EventAgentComplete, map[string]any{
		"run_id":     run.ID,
		"agent":      def.Name,
		"tool_calls": st.ToolCalls,
		"artifacts":  len(st.Artifacts),
		"duration":   st.Duration.String(),
	})
	log.Info().
		Int("toolCalls", st.ToolCalls).
		Int("artifacts", len(st.Artifacts)).
		Dur("duration", st.Duration).
		Msg("stage complete")
	return nil
}

func (s *Sequential) finishStage(ctx context.Context, run *domain.Run, position int, st domain.StageResult) {
	run.Stages = append(run.Stages, st)
	if s.store == nil {
		return
	}
	if err := s.store.RecordStage(context.WithoutCancel(ctx), run.ID, position, st); err != nil {
		s.log.Warn().Err(err).Str("agent", st.Agent).Msg("stage not recorded")
	}
}

// NewTranscript opens the demo logs for defs under dir.
func NewTranscript(dir string, console io.Writer, defs []*agents.Definition) (*transcript.Transcript, error) {
	names := make([]string, len(defs))
	styles := make(map[string]transcript.Style, len(defs))
	for i, d := range defs {
		names[i] = d.Name
		styles[d.Name] = transcript.Style{Emoji: d.Emoji, Name: d.DisplayName, Color: d.Color}
	}
	return transcript.New(dir, console, names, styles)
}
