package pipeline

import "fmt"

// InvalidStageRequestError reports structurally invalid validator input:
// an empty request or a stage number outside 1..7.
type InvalidStageRequestError struct {
	Reason string
}

func (e *InvalidStageRequestError) Error() string {
	return "invalid stage request: " + e.Reason
}

// DependencyError is returned by Run when validation rejects the requested
// stage combination. The embedded result carries the unmet stages so callers
// can render an actionable message.
type DependencyError struct {
	Result ValidationResult
}

func (e *DependencyError) Error() string {
	return "unsatisfied stage dependencies: " + e.Result.Message
}

// StageExecutionError wraps a stage function failure with the failing stage's
// identity. It halts downstream execution; the partial manifest is still
// returned alongside it.
type StageExecutionError struct {
	Stage int
	Label string
	Cause error
}

func (e *StageExecutionError) Error() string {
	return fmt.Sprintf("stage %d (%s) failed: %v", e.Stage, e.Label, e.Cause)
}

func (e *StageExecutionError) Unwrap() error { return e.Cause }

// MonitoringError reports that an episode directory could not be inspected.
// Completion checks treat it as "stage incomplete"; validation surfaces it
// when a resume decision depended on the check.
type MonitoringError struct {
	Root  string
	Cause error
}

func (e *MonitoringError) Error() string {
	return fmt.Sprintf("monitor episode root %s: %v", e.Root, e.Cause)
}

func (e *MonitoringError) Unwrap() error { return e.Cause }
