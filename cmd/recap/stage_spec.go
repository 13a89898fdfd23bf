package main

import (
	"fmt"
	"strconv"
	"strings"

	"recap/internal/pipeline"
)

// parseStageSpec turns a --stages flag value into stage numbers. Accepted
// forms: "all", a single number ("3"), a comma list ("1,3,5"), a range
// ("2-5"), or any comma-separated mix of numbers and ranges.
func parseStageSpec(spec string) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.EqualFold(spec, "all") {
		stages := make([]int, 0, pipeline.TotalStages)
		for n := 1; n <= pipeline.TotalStages; n++ {
			stages = append(stages, n)
		}
		return stages, nil
	}

	seen := make(map[int]struct{})
	var stages []int
	add := func(n int) error {
		if n < 1 || n > pipeline.TotalStages {
			return fmt.Errorf("stage %d is outside 1..%d", n, pipeline.TotalStages)
		}
		if _, dup := seen[n]; !dup {
			seen[n] = struct{}{}
			stages = append(stages, n)
		}
		return nil
	}

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err := strconv.Atoi(strings.TrimSpace(lo))
			if err != nil {
				return nil, fmt.Errorf("stage range %q: %w", part, err)
			}
			end, err := strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("stage range %q: %w", part, err)
			}
			if end < start {
				return nil, fmt.Errorf("stage range %q: end before start", part)
			}
			for n := start; n <= end; n++ {
				if err := add(n); err != nil {
					return nil, err
				}
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", part, err)
		}
		if err := add(n); err != nil {
			return nil, err
		}
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("stage spec %q selects no stages", spec)
	}
	return stages, nil
}

func formatStageList(stages []int) string {
	parts := make([]string, 0, len(stages))
	for _, n := range stages {
		parts = append(parts, strconv.Itoa(n))
	}
	return strings.Join(parts, ", ")
}
