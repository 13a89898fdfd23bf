package session

import (
	"context"
	"log/slog"

	"recap/internal/logging"
	"recap/internal/pipeline"
)

// Recorder adapts a Store to the pipeline's progress interface. Persistence
// failures are logged and swallowed; run history must never fail a run.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder wires a store into the pipeline reporting path.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logging.NewComponentLogger(logger, "session"),
	}
}

// StageProgress persists one stage status transition.
func (r *Recorder) StageProgress(ctx context.Context, event pipeline.Event) {
	if r == nil || r.store == nil {
		return
	}
	if err := r.store.RecordEvent(ctx, event); err != nil {
		r.logger.Warn("failed to persist progress event",
			logging.String(logging.FieldEpisodeID, event.EpisodeID),
			logging.Int("stage_number", event.Stage),
			logging.Error(err),
		)
	}
}

// RunFinished persists the terminal manifest.
func (r *Recorder) RunFinished(ctx context.Context, manifest *pipeline.Manifest) {
	if r == nil || r.store == nil || manifest == nil {
		return
	}
	if err := r.store.RecordRun(ctx, manifest); err != nil {
		r.logger.Warn("failed to persist run record",
			logging.String(logging.FieldEpisodeID, manifest.EpisodeID),
			logging.String("run_status", string(manifest.Status)),
			logging.Error(err),
		)
	}
}

var _ pipeline.Reporter = (*Recorder)(nil)
