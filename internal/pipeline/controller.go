package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"recap/internal/logging"
	servicesctx "recap/internal/services"
)

// StageFunc executes one pipeline stage. It receives the episode context and
// a view of its declared predecessors' outputs, and returns this stage's
// result record. Stage-internal retries belong inside the function; the
// controller's only retry concept is re-running with the same resume root.
type StageFunc func(ctx context.Context, ep *Episode, in Inputs) (Result, error)

// Controller sequences stage execution for one episode at a time. A single
// Controller value may serve concurrent runs as long as they target different
// episode roots; a per-root lock file rejects double-writers.
type Controller struct {
	workDir  string
	stages   map[int]StageFunc
	reporter Reporter
	logger   *slog.Logger
}

// ControllerOption configures optional controller behavior.
type ControllerOption func(*Controller)

// WithReporter sets the progress sink. Defaults to NopReporter.
func WithReporter(reporter Reporter) ControllerOption {
	return func(c *Controller) {
		if reporter != nil {
			c.reporter = reporter
		}
	}
}

// WithStageFunc registers the function for one stage number.
func WithStageFunc(stage int, fn StageFunc) ControllerOption {
	return func(c *Controller) {
		c.stages[stage] = fn
	}
}

// WithStageFuncs registers a stage function table.
func WithStageFuncs(fns map[int]StageFunc) ControllerOption {
	return func(c *Controller) {
		for n, fn := range fns {
			c.stages[n] = fn
		}
	}
}

// NewController constructs a controller. workDir is where fresh episode roots
// are created.
func NewController(workDir string, logger *slog.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		workDir:  workDir,
		stages:   make(map[int]StageFunc),
		reporter: NopReporter{},
		logger:   logging.NewComponentLogger(logger, "controller"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunRequest describes one pipeline invocation.
type RunRequest struct {
	// Stages to execute; order is irrelevant, execution is always ascending.
	Stages []int
	// Source is the origin URL for fresh runs.
	Source string
	// ResumeRoot points at an existing episode directory. When set, completed
	// stages are skipped and validation consults artifacts on disk.
	ResumeRoot string
}

// Run validates the request, then executes the requested stages in ascending
// order. On stage failure the partial manifest is returned together with a
// StageExecutionError; downstream stages stay pending. Cancellation between
// stages stops scheduling without rolling anything back.
func (c *Controller) Run(ctx context.Context, req RunRequest) (*Manifest, error) {
	validation, err := Validate(req.Stages, req.ResumeRoot)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		return nil, &DependencyError{Result: validation}
	}

	requested := normalizeStages(req.Stages)

	root := req.ResumeRoot
	if root == "" {
		if c.workDir == "" {
			return nil, errors.New("controller work directory is not configured")
		}
		root = filepath.Join(c.workDir, episodeDirName(req.Source))
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create episode root: %w", err)
	}

	lock := flock.New(filepath.Join(root, ".recap.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire episode lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("episode %s is already being processed", root)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	ep := NewEpisode(uuid.NewString(), root, req.Source)
	manifest := newManifest(ep, requested)

	runCtx := servicesctx.WithEpisodeID(ctx, ep.ID)
	logger := logging.WithContext(runCtx, c.logger)
	logger.Info("pipeline run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("episode_root", root),
		logging.Int("stage_count", len(requested)),
		logging.Bool("resume", req.ResumeRoot != ""),
	)

	var session *MonitorSession
	if req.ResumeRoot != "" {
		monitor := NewMonitor(root)
		session, err = monitor.StartMonitoring(requested...)
		if err != nil {
			return nil, err
		}
		defer session.Stop()
	}

	for idx, number := range requested {
		record := manifest.Record(number)
		desc, _ := DescriptorByNumber(number)

		if ctx.Err() != nil {
			manifest.Status = RunCanceled
			logger.Info("pipeline run canceled",
				logging.String(logging.FieldEventType, "run_canceled"),
				logging.Int("next_stage", number),
			)
			break
		}

		stageCtx := servicesctx.WithStage(runCtx, desc.Name)
		stageLogger := logging.WithContext(stageCtx, c.logger)

		if session != nil && session.IsStageComplete(number) {
			if c.markSkipped(stageCtx, stageLogger, ep, manifest, record, desc, idx, len(requested)) {
				continue
			}
			// Artifacts matched but could not be loaded; fall through and
			// re-run the stage.
		}

		if err := c.loadPredecessorOutputs(ep, desc); err != nil {
			c.failStage(stageCtx, stageLogger, ep, manifest, record, desc, idx, len(requested), err)
			c.reporter.RunFinished(stageCtx, manifest)
			return manifest, &StageExecutionError{Stage: number, Label: desc.Label, Cause: err}
		}

		record.Status = StatusRunning
		record.StartedAt = time.Now().UTC()
		c.reporter.StageProgress(stageCtx, c.event(ep, desc, idx, len(requested), StatusRunning, ""))
		stageLogger.Info("stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.Int("stage_number", number),
			logging.String("stage_label", desc.Label),
		)

		fn, ok := c.stages[number]
		if !ok {
			err := fmt.Errorf("no stage function registered for stage %d (%s)", number, desc.Name)
			c.failStage(stageCtx, stageLogger, ep, manifest, record, desc, idx, len(requested), err)
			c.reporter.RunFinished(stageCtx, manifest)
			return manifest, &StageExecutionError{Stage: number, Label: desc.Label, Cause: err}
		}

		result, execErr := fn(stageCtx, ep, c.inputsFor(ep, desc))
		if execErr != nil {
			c.failStage(stageCtx, stageLogger, ep, manifest, record, desc, idx, len(requested), execErr)
			if errors.Is(execErr, context.Canceled) {
				manifest.Status = RunCanceled
			}
			c.reporter.RunFinished(stageCtx, manifest)
			return manifest, &StageExecutionError{Stage: number, Label: desc.Label, Cause: execErr}
		}

		ep.SetOutput(number, result)
		record.Status = StatusSucceeded
		record.FinishedAt = time.Now().UTC()
		c.reporter.StageProgress(stageCtx, c.event(ep, desc, idx, len(requested), StatusSucceeded, ""))
		stageLogger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Int("stage_number", number),
			logging.Duration("stage_duration", record.FinishedAt.Sub(record.StartedAt)),
		)
	}

	manifest.Outputs = ep.OutputMap()
	if manifest.Status == "" {
		manifest.Status = RunSucceeded
	}
	c.reporter.RunFinished(runCtx, manifest)
	logger.Info("pipeline run finished",
		logging.String(logging.FieldEventType, "run_finished"),
		logging.String("run_status", string(manifest.Status)),
	)
	return manifest, nil
}

// markSkipped transitions a stage directly to skipped, reusing discovered
// artifacts as its output. Returns false when the artifacts cannot serve as a
// result record.
func (c *Controller) markSkipped(ctx context.Context, logger *slog.Logger, ep *Episode, manifest *Manifest, record *StageRecord, desc Descriptor, idx, total int) bool {
	result, err := DiscoverResult(ep.Root, desc.Number)
	if err != nil {
		logger.Warn("stage artifacts present but unreadable; re-running stage",
			logging.String(logging.FieldEventType, "resume_discover_failed"),
			logging.Int("stage_number", desc.Number),
			logging.Error(err),
		)
		return false
	}
	ep.SetOutput(desc.Number, result)
	record.Status = StatusSkipped
	now := time.Now().UTC()
	record.StartedAt = now
	record.FinishedAt = now
	c.reporter.StageProgress(ctx, c.event(ep, desc, idx, total, StatusSkipped, "outputs already present"))
	logger.Info("stage skipped",
		logging.String(logging.FieldEventType, "stage_skipped"),
		logging.Int("stage_number", desc.Number),
	)
	return true
}

func (c *Controller) failStage(ctx context.Context, logger *slog.Logger, ep *Episode, manifest *Manifest, record *StageRecord, desc Descriptor, idx, total int, err error) {
	record.Status = StatusFailed
	record.FinishedAt = time.Now().UTC()
	record.Err = err
	record.Message = err.Error()
	manifest.Status = RunFailed
	manifest.Outputs = ep.OutputMap()
	c.reporter.StageProgress(ctx, c.event(ep, desc, idx, total, StatusFailed, err.Error()))
	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.Int("stage_number", desc.Number),
		logging.String(logging.FieldErrorHint, "fix the underlying issue and re-run with the same episode root"),
		logging.Error(err),
	)
}

// loadPredecessorOutputs backfills outputs for declared predecessors that were
// neither executed nor skipped in this run (validation already confirmed
// their artifacts exist on disk).
func (c *Controller) loadPredecessorOutputs(ep *Episode, desc Descriptor) error {
	for _, pred := range desc.Predecessors {
		if _, ok := ep.Output(pred); ok {
			continue
		}
		result, err := DiscoverResult(ep.Root, pred)
		if err != nil {
			predDesc, _ := DescriptorByNumber(pred)
			return fmt.Errorf("load %s output: %w", predDesc.Name, err)
		}
		ep.SetOutput(pred, result)
	}
	return nil
}

func (c *Controller) inputsFor(ep *Episode, desc Descriptor) Inputs {
	outputs := make(map[int]Result, len(desc.Predecessors))
	for _, pred := range desc.Predecessors {
		if result, ok := ep.Output(pred); ok {
			outputs[pred] = result
		}
	}
	return Inputs{outputs: outputs}
}

func (c *Controller) event(ep *Episode, desc Descriptor, idx, total int, status StageStatus, message string) Event {
	event := Event{
		Stage:       desc.Number,
		Index:       idx + 1,
		TotalStages: total,
		Label:       desc.Label,
		Status:      status,
		Message:     message,
	}
	if ep != nil {
		event.EpisodeID = ep.ID
	}
	return event
}

// episodeDirName derives a filesystem-friendly directory name for a source
// URL. YouTube video ids are used verbatim when recognizable; a short unique
// suffix keeps repeat runs of the same source apart.
func episodeDirName(source string) string {
	base := "episode"
	if id := youtubeVideoID(source); id != "" {
		base = id
	} else if trimmed := sanitizeSourceName(source); trimmed != "" {
		base = trimmed
	}
	return base + "-" + uuid.NewString()[:8]
}

func youtubeVideoID(source string) string {
	parsed, err := url.Parse(strings.TrimSpace(source))
	if err != nil || parsed.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(parsed.Host, "www.")
	switch host {
	case "youtube.com", "m.youtube.com":
		if id := parsed.Query().Get("v"); id != "" {
			return id
		}
		if strings.HasPrefix(parsed.Path, "/shorts/") {
			return strings.Trim(strings.TrimPrefix(parsed.Path, "/shorts/"), "/")
		}
	case "youtu.be":
		return strings.Trim(parsed.Path, "/")
	}
	return ""
}

func sanitizeSourceName(source string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(source) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
		if b.Len() >= 40 {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}
