package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"recap/internal/fileutil"
)

// Result is the tagged output record a stage hands back to the controller.
// One concrete variant exists per stage, so downstream consumers get
// structural guarantees instead of key-existence checks.
type Result interface {
	StageNumber() int
}

// MediaResult is produced by the media extraction stage.
type MediaResult struct {
	VideoPath    string `json:"video_path"`
	AudioPath    string `json:"audio_path"`
	MetadataPath string `json:"metadata_path"`
	Title        string `json:"title,omitempty"`
}

func (*MediaResult) StageNumber() int { return StageMediaExtraction }

// TranscriptResult is produced by the transcript generation stage.
type TranscriptResult struct {
	Path string `json:"path"`
}

func (*TranscriptResult) StageNumber() int { return StageTranscription }

// AnalysisResult is produced by the content analysis stage.
type AnalysisResult struct {
	Path         string `json:"path"`
	SegmentCount int    `json:"segment_count,omitempty"`
}

func (*AnalysisResult) StageNumber() int { return StageContentAnalysis }

// ScriptResult is produced by the narrative generation stage.
type ScriptResult struct {
	Path         string `json:"path"`
	SectionCount int    `json:"section_count,omitempty"`
}

func (*ScriptResult) StageNumber() int { return StageNarrativeGeneration }

// NarrationResult is produced by the audio generation stage. The same record
// is persisted as narration/sections.json, written after every section file,
// so its presence marks the stage complete.
type NarrationResult struct {
	Status             string   `json:"status"`
	TotalSections      int      `json:"total_sections"`
	SuccessfulSections int      `json:"successful_sections"`
	OutputDir          string   `json:"output_directory"`
	GeneratedFiles     []string `json:"generated_files"`
}

func (*NarrationResult) StageNumber() int { return StageAudioGeneration }

// ClipResult is produced by the video clipping stage and persisted as
// clips/clips.json.
type ClipResult struct {
	Status      string  `json:"status"`
	TotalClips  int     `json:"total_clips"`
	SuccessRate float64 `json:"success_rate"`
	OutputDir   string  `json:"output_directory"`
}

func (*ClipResult) StageNumber() int { return StageVideoClipping }

// CompileResult is produced by the video compilation stage.
type CompileResult struct {
	Path string `json:"path"`
}

func (*CompileResult) StageNumber() int { return StageVideoCompilation }

// DiscoverResult reconstructs a stage's result record from artifacts already
// present under the episode root. It is used when a stage is skipped on
// resume: later stages still receive their predecessors' outputs.
func DiscoverResult(root string, number int) (Result, error) {
	desc, ok := DescriptorByNumber(number)
	if !ok {
		return nil, &InvalidStageRequestError{Reason: fmt.Sprintf("unknown stage %d", number)}
	}

	switch number {
	case StageMediaExtraction:
		video, err := firstMatch(root, "media/video.*")
		if err != nil {
			return nil, err
		}
		audio, err := firstMatch(root, "media/audio.*")
		if err != nil {
			return nil, err
		}
		return &MediaResult{
			VideoPath:    video,
			AudioPath:    audio,
			MetadataPath: filepath.Join(root, "media", "source.json"),
		}, nil
	case StageTranscription:
		return &TranscriptResult{Path: filepath.Join(root, "transcripts", "transcript.json")}, nil
	case StageContentAnalysis:
		return &AnalysisResult{Path: filepath.Join(root, "analysis", "segments.json")}, nil
	case StageNarrativeGeneration:
		return &ScriptResult{Path: filepath.Join(root, "script", "script.json")}, nil
	case StageAudioGeneration:
		var result NarrationResult
		if err := fileutil.ReadJSON(filepath.Join(root, "narration", "sections.json"), &result); err != nil {
			return nil, fmt.Errorf("read narration record: %w", err)
		}
		return &result, nil
	case StageVideoClipping:
		var result ClipResult
		if err := fileutil.ReadJSON(filepath.Join(root, "clips", "clips.json"), &result); err != nil {
			return nil, fmt.Errorf("read clip record: %w", err)
		}
		return &result, nil
	case StageVideoCompilation:
		return &CompileResult{Path: filepath.Join(root, "final", "final_video.mp4")}, nil
	}
	return nil, fmt.Errorf("no artifact mapping for stage %s", desc.Name)
}

func firstMatch(root, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil {
		return "", fmt.Errorf("glob %s: %w", pattern, err)
	}
	for _, match := range matches {
		info, err := os.Stat(match)
		if err == nil && info.Mode().IsRegular() {
			return match, nil
		}
	}
	return "", fmt.Errorf("no file matches %s under %s", pattern, root)
}
