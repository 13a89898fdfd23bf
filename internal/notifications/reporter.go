package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"recap/internal/logging"
	"recap/internal/pipeline"
)

// Reporter forwards pipeline progress to the notification service. Delivery
// failures are logged and swallowed; push notifications must never fail a run.
type Reporter struct {
	service Service
	logger  *slog.Logger

	mu      sync.Mutex
	started map[string]time.Time
}

// NewReporter wires a notification service into the pipeline reporting path.
func NewReporter(service Service, logger *slog.Logger) *Reporter {
	return &Reporter{
		service: service,
		logger:  logging.NewComponentLogger(logger, "notifications"),
		started: make(map[string]time.Time),
	}
}

// StageProgress sends per-stage notifications for stage completions.
func (r *Reporter) StageProgress(ctx context.Context, event pipeline.Event) {
	if r == nil || r.service == nil {
		return
	}

	r.mu.Lock()
	if _, ok := r.started[event.EpisodeID]; !ok {
		r.started[event.EpisodeID] = time.Now()
	}
	r.mu.Unlock()

	if event.Status != pipeline.StatusSucceeded {
		return
	}
	if err := r.service.NotifyStageCompleted(ctx, event.Label); err != nil {
		r.logger.Warn("stage notification failed",
			logging.String(logging.FieldEpisodeID, event.EpisodeID),
			logging.Int("stage_number", event.Stage),
			logging.Error(err),
		)
	}
}

// RunFinished sends the terminal notification for a run.
func (r *Reporter) RunFinished(ctx context.Context, manifest *pipeline.Manifest) {
	if r == nil || r.service == nil || manifest == nil {
		return
	}

	r.mu.Lock()
	startedAt, ok := r.started[manifest.EpisodeID]
	delete(r.started, manifest.EpisodeID)
	r.mu.Unlock()

	duration := time.Duration(0)
	if ok {
		duration = time.Since(startedAt)
	}

	var err error
	switch manifest.Status {
	case pipeline.RunSucceeded:
		err = r.service.NotifyRunCompleted(ctx, manifest.Root, duration)
	case pipeline.RunFailed:
		label, cause := failedStage(manifest)
		err = r.service.NotifyRunFailed(ctx, label, cause)
	default:
		// Canceled runs are intentional; no notification.
	}
	if err != nil {
		r.logger.Warn("run notification failed",
			logging.String(logging.FieldEpisodeID, manifest.EpisodeID),
			logging.String("run_status", string(manifest.Status)),
			logging.Error(err),
		)
	}
}

func failedStage(manifest *pipeline.Manifest) (string, error) {
	for _, record := range manifest.Records {
		if record.Status == pipeline.StatusFailed {
			return record.Label, record.Err
		}
	}
	return "", nil
}

var _ pipeline.Reporter = (*Reporter)(nil)
