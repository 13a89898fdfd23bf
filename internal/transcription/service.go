package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"recap/internal/config"
	"recap/internal/logging"
	"recap/internal/pipeline"
	"recap/internal/services"
)

const stageName = "transcription"

// CommandRunner executes an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) (string, error)

// Word is a single word with timing from WhisperX output.
type Word struct {
	Word    string  `json:"word"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
}

// Segment is one transcribed span from WhisperX output.
type Segment struct {
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
	Words   []Word  `json:"words,omitempty"`
}

// Transcript is the transcripts/transcript.json document.
type Transcript struct {
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
}

// Service wraps the WhisperX CLI for the transcript generation stage.
type Service struct {
	cfg    config.Transcriber
	run    CommandRunner
	logger *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithCommandRunner sets a custom command runner (for testing).
func WithCommandRunner(run CommandRunner) Option {
	return func(s *Service) {
		s.run = run
	}
}

// NewService builds the transcript generation stage adapter.
func NewService(cfg config.Transcriber, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		run:    runCommand,
		logger: logging.NewComponentLogger(logger, stageName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StageFunc adapts the service to the controller's stage interface.
func (s *Service) StageFunc() pipeline.StageFunc {
	return s.Execute
}

// Execute transcribes the extracted audio and writes
// transcripts/transcript.json via rename, so the completion marker only ever
// appears fully written.
func (s *Service) Execute(ctx context.Context, ep *pipeline.Episode, in pipeline.Inputs) (pipeline.Result, error) {
	media, err := in.Media()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "execute", "missing media output", err)
	}

	outputDir := filepath.Join(ep.Root, "transcripts")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "prepare output dir", outputDir, err)
	}

	args := s.buildArgs(media.AudioPath, outputDir)
	s.logger.Info("transcribing audio",
		logging.String("audio", media.AudioPath),
		logging.String("model", s.cfg.Model),
		logging.Bool("diarize", s.cfg.Diarize),
	)
	if _, err := s.run(ctx, s.cfg.Binary, args...); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "run whisperx", media.AudioPath, err)
	}

	rawPath := rawOutputPath(media.AudioPath, outputDir)
	finalPath := filepath.Join(outputDir, "transcript.json")
	if err := finalizeTranscript(rawPath, finalPath); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "finalize transcript", rawPath, err)
	}

	return &pipeline.TranscriptResult{Path: finalPath}, nil
}

func (s *Service) buildArgs(audioPath, outputDir string) []string {
	args := []string{
		audioPath,
		"--model", s.cfg.Model,
		"--output_dir", outputDir,
		"--output_format", "json",
	}
	if s.cfg.Language != "" {
		args = append(args, "--language", s.cfg.Language)
	}
	if s.cfg.Diarize {
		args = append(args, "--diarize")
		if s.cfg.HFToken != "" {
			args = append(args, "--hf_token", s.cfg.HFToken)
		}
	}
	if s.cfg.CUDAEnabled {
		args = append(args, "--device", "cuda")
	} else {
		args = append(args, "--device", "cpu", "--compute_type", "int8")
	}
	return args
}

// rawOutputPath is where WhisperX writes its JSON for a given input file.
func rawOutputPath(audioPath, outputDir string) string {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return filepath.Join(outputDir, base+".json")
}

// finalizeTranscript validates the WhisperX output and renames it into place.
func finalizeTranscript(rawPath, finalPath string) error {
	data, err := os.ReadFile(rawPath)
	if err != nil {
		return fmt.Errorf("read whisperx output: %w", err)
	}
	var transcript Transcript
	if err := json.Unmarshal(data, &transcript); err != nil {
		return fmt.Errorf("parse whisperx output: %w", err)
	}
	if len(transcript.Segments) == 0 {
		return fmt.Errorf("whisperx produced no segments")
	}
	return os.Rename(rawPath, finalPath)
}

// Load reads a transcript document from disk.
func Load(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var transcript Transcript
	if err := json.Unmarshal(data, &transcript); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	return &transcript, nil
}

// Text concatenates the segment texts into one string.
func (t *Transcript) Text() string {
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}
