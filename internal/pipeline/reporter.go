package pipeline

import "context"

// Event is one progress notification pushed to the session reporter.
type Event struct {
	EpisodeID   string      `json:"episode_id"`
	Stage       int         `json:"stage_number"`
	Index       int         `json:"stage_index"`
	TotalStages int         `json:"total_stages"`
	Label       string      `json:"stage_label"`
	Status      StageStatus `json:"status"`
	Message     string      `json:"message,omitempty"`
}

// Reporter receives progress events from the controller. Implementations must
// tolerate being called from concurrent runs against different episodes.
type Reporter interface {
	StageProgress(ctx context.Context, event Event)
	RunFinished(ctx context.Context, manifest *Manifest)
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) StageProgress(context.Context, Event) {}

func (NopReporter) RunFinished(context.Context, *Manifest) {}

// FanoutReporter forwards events to every child reporter.
type FanoutReporter []Reporter

func (f FanoutReporter) StageProgress(ctx context.Context, event Event) {
	for _, r := range f {
		if r != nil {
			r.StageProgress(ctx, event)
		}
	}
}

func (f FanoutReporter) RunFinished(ctx context.Context, manifest *Manifest) {
	for _, r := range f {
		if r != nil {
			r.RunFinished(ctx, manifest)
		}
	}
}
