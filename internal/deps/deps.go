package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"recap/internal/config"
)

// Requirement defines an external binary a pipeline stage shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Stages      []int
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Stages      []int
	Available   bool
	Detail      string
}

// Requirements lists the binaries the configured pipeline depends on.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "yt-dlp",
			Command:     cfg.Downloader.Binary,
			Description: "Source video and audio download",
			Stages:      []int{1},
		},
		{
			Name:        "WhisperX",
			Command:     cfg.Transcriber.Binary,
			Description: "Word-aligned transcription",
			Stages:      []int{2},
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpeg.Binary,
			Description: "Clip extraction and final assembly",
			Stages:      []int{6, 7},
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Stages:      req.Stages,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// MissingForStages returns the unavailable requirements among those needed by
// the given stage selection.
func MissingForStages(cfg *config.Config, stages []int) []Status {
	requested := make(map[int]struct{}, len(stages))
	for _, n := range stages {
		requested[n] = struct{}{}
	}

	var needed []Requirement
	for _, req := range Requirements(cfg) {
		for _, n := range req.Stages {
			if _, ok := requested[n]; ok {
				needed = append(needed, req)
				break
			}
		}
	}

	var missing []Status
	for _, status := range CheckBinaries(needed) {
		if !status.Available {
			missing = append(missing, status)
		}
	}
	return missing
}
