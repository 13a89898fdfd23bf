package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationType distinguishes the two dependency-checking modes.
type ValidationType string

const (
	// ValidationStrict requires every predecessor to be part of the request.
	ValidationStrict ValidationType = "strict-sequential"
	// ValidationSmart additionally accepts predecessors whose output
	// artifacts already exist under the episode root.
	ValidationSmart ValidationType = "smart-file-check"
)

// ValidationResult reports whether a requested stage set is runnable.
type ValidationResult struct {
	Valid               bool           `json:"valid"`
	Message             string         `json:"message"`
	MissingDependencies []int          `json:"missing_dependencies,omitempty"`
	Type                ValidationType `json:"validation_type"`
}

// Validate decides whether the requested stages form a runnable subset.
//
// Without an episode root (a fresh run) the check is strict: every transitive
// predecessor of a requested stage must itself be requested. With a root (a
// resume) each missing predecessor may instead be satisfied by its output
// artifacts on disk.
//
// Merely-unsatisfiable combinations return Valid=false with a message naming
// every unmet stage; only structurally invalid input (empty set, stage number
// outside 1..7) produces an error.
func Validate(requested []int, episodeRoot string) (ValidationResult, error) {
	normalized := normalizeStages(requested)
	if len(normalized) == 0 {
		return ValidationResult{}, &InvalidStageRequestError{Reason: "at least one stage is required"}
	}
	for _, n := range normalized {
		if _, ok := DescriptorByNumber(n); !ok {
			return ValidationResult{}, &InvalidStageRequestError{Reason: fmt.Sprintf("stage number %d is outside 1..%d", n, TotalStages)}
		}
	}

	mode := ValidationStrict
	if episodeRoot != "" {
		mode = ValidationSmart
	}

	requestedSet := make(map[int]struct{}, len(normalized))
	for _, n := range normalized {
		requestedSet[n] = struct{}{}
	}

	missingSet := make(map[int]struct{})
	var monitorIssue error
	var monitor *Monitor
	if mode == ValidationSmart {
		monitor = NewMonitor(episodeRoot)
	}

	for _, n := range normalized {
		for _, pred := range PredecessorClosure(n) {
			if _, ok := requestedSet[pred]; ok {
				continue
			}
			if _, ok := missingSet[pred]; ok {
				continue
			}
			if mode == ValidationSmart {
				complete, err := monitor.StageComplete(pred)
				if err != nil {
					monitorIssue = err
				} else if complete {
					continue
				}
			}
			missingSet[pred] = struct{}{}
		}
	}

	if len(missingSet) == 0 {
		return ValidationResult{
			Valid:   true,
			Message: "all stage dependencies satisfied",
			Type:    mode,
		}, nil
	}

	missing := make([]int, 0, len(missingSet))
	for n := range missingSet {
		missing = append(missing, n)
	}
	sort.Ints(missing)

	names := make([]string, 0, len(missing))
	for _, n := range missing {
		desc, _ := DescriptorByNumber(n)
		names = append(names, fmt.Sprintf("%d (%s)", n, desc.Label))
	}
	message := "unmet predecessor stages: " + strings.Join(names, ", ")
	if mode == ValidationSmart {
		message += "; no matching output artifacts found under " + episodeRoot
		if monitorIssue != nil {
			message += "; " + monitorIssue.Error()
		}
	}

	return ValidationResult{
		Valid:               false,
		Message:             message,
		MissingDependencies: missing,
		Type:                mode,
	}, nil
}
