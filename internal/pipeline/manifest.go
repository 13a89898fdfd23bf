package pipeline

import "time"

// StageStatus is the lifecycle of one stage within a run.
type StageStatus string

const (
	StatusPending   StageStatus = "pending"
	StatusRunning   StageStatus = "running"
	StatusSucceeded StageStatus = "succeeded"
	StatusFailed    StageStatus = "failed"
	StatusSkipped   StageStatus = "skipped"
)

// Run-level terminal statuses.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// StageRecord tracks one requested stage through a run.
type StageRecord struct {
	Stage      int         `json:"stage_number"`
	Label      string      `json:"stage_label"`
	Status     StageStatus `json:"status"`
	StartedAt  time.Time   `json:"started_at,omitempty"`
	FinishedAt time.Time   `json:"finished_at,omitempty"`
	Message    string      `json:"error,omitempty"`

	// Err carries the original stage error for programmatic callers.
	Err error `json:"-"`
}

// Manifest is the complete account of a run: what succeeded, what was
// skipped, and exactly where and why execution stopped. It is returned for
// both full and partial runs.
type Manifest struct {
	EpisodeID string         `json:"episode_id"`
	Root      string         `json:"episode_root"`
	Source    string         `json:"source,omitempty"`
	Requested []int          `json:"requested_stages"`
	Records   []*StageRecord `json:"stages"`
	Outputs   map[int]Result `json:"outputs,omitempty"`
	Status    RunStatus      `json:"status"`
}

// Record returns the execution record for a stage, or nil when the stage was
// not part of the request.
func (m *Manifest) Record(stage int) *StageRecord {
	for _, rec := range m.Records {
		if rec.Stage == stage {
			return rec
		}
	}
	return nil
}

func newManifest(ep *Episode, requested []int) *Manifest {
	records := make([]*StageRecord, 0, len(requested))
	for _, n := range requested {
		desc, _ := DescriptorByNumber(n)
		records = append(records, &StageRecord{
			Stage:  n,
			Label:  desc.Label,
			Status: StatusPending,
		})
	}
	return &Manifest{
		EpisodeID: ep.ID,
		Root:      ep.Root,
		Source:    ep.Source,
		Requested: requested,
		Records:   records,
	}
}
