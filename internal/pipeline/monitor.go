package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Monitor answers per-stage completion questions for a single episode root by
// testing each stage's output patterns against the live directory tree. Reads
// are best-effort snapshots; nothing is cached between calls, and no locks are
// taken against concurrent writers.
type Monitor struct {
	root string
}

// NewMonitor builds a monitor scoped to one episode root. Separate roots get
// separate monitors, so multiple episodes can be watched concurrently without
// cross-contamination.
func NewMonitor(root string) *Monitor {
	return &Monitor{root: root}
}

// StageComplete reports whether every output pattern of the stage matches at
// least one regular file under the episode root. A missing directory tree is
// incomplete, not an error; an inaccessible one yields a MonitoringError.
func (m *Monitor) StageComplete(number int) (bool, error) {
	desc, ok := DescriptorByNumber(number)
	if !ok {
		return false, &InvalidStageRequestError{Reason: fmt.Sprintf("unknown stage %d", number)}
	}
	return stageComplete(m.root, desc)
}

// StartMonitoring opens a monitoring session covering the given stages.
func (m *Monitor) StartMonitoring(stages ...int) (*MonitorSession, error) {
	normalized := normalizeStages(stages)
	if len(normalized) == 0 {
		return nil, &InvalidStageRequestError{Reason: "no stages to monitor"}
	}
	tracked := make(map[int]struct{}, len(normalized))
	for _, n := range normalized {
		if _, ok := DescriptorByNumber(n); !ok {
			return nil, &InvalidStageRequestError{Reason: fmt.Sprintf("unknown stage %d", n)}
		}
		tracked[n] = struct{}{}
	}
	return &MonitorSession{monitor: m, tracked: tracked}, nil
}

// MonitorSession is a handle over a set of tracked stages. Completion is
// re-evaluated against the filesystem on every call, never cached.
type MonitorSession struct {
	monitor *Monitor
	tracked map[int]struct{}

	mu      sync.Mutex
	stopped bool
}

// IsStageComplete reports completion for a tracked stage. Untracked stages and
// monitoring failures report false.
func (s *MonitorSession) IsStageComplete(number int) bool {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return false
	}
	if _, ok := s.tracked[number]; !ok {
		return false
	}
	complete, err := s.monitor.StageComplete(number)
	if err != nil {
		return false
	}
	return complete
}

// Stop ends the session. Subsequent completion queries report false.
func (s *MonitorSession) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func stageComplete(root string, desc Descriptor) (bool, error) {
	if root == "" {
		return false, nil
	}
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &MonitoringError{Root: root, Cause: err}
	}

	for _, pattern := range desc.OutputPatterns {
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			return false, &MonitoringError{Root: root, Cause: fmt.Errorf("pattern %q: %w", pattern, err)}
		}
		if !anyRegularFile(matches) {
			return false, nil
		}
	}
	return true, nil
}

func anyRegularFile(paths []string) bool {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return true
		}
	}
	return false
}
