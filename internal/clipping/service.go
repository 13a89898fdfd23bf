package clipping

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"recap/internal/config"
	"recap/internal/fileutil"
	"recap/internal/logging"
	"recap/internal/narrative"
	"recap/internal/pipeline"
	"recap/internal/services"
)

const stageName = "clipping"

// Clip status values recorded in clips/clips.json.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
)

// CommandRunner executes an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) (string, error)

// Service cuts source-video clips at the timestamps the script responds to.
type Service struct {
	cfg    config.FFmpeg
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

// NewService builds the video clipping stage adapter.
func NewService(cfg config.FFmpeg, logger *slog.Logger, opts ...Option) *Service {
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

// Execute extracts one source clip per timestamped script section into
// <root>/clips and writes clips.json last. Individual clip failures are
// tolerated; the stage fails only when no clip could be cut.
func (s *Service) Execute(ctx context.Context, ep *pipeline.Episode, in pipeline.Inputs) (pipeline.Result, error) {
	media, err := in.Media()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "execute", "missing media output", err)
	}
	scriptOut, err := in.Script()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "execute", "missing script output", err)
	}

	script, err := narrative.LoadScript(scriptOut.Path)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "load script", scriptOut.Path, err)
	}

	sections := clippableSections(script)
	if len(sections) == 0 {
		return nil, services.Wrap(services.ErrValidation, stageName, "execute", "script references no source segments", nil)
	}

	outputDir := filepath.Join(ep.Root, "clips")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "prepare output dir", outputDir, err)
	}

	if s.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	succeeded := 0
	var lastErr error
	for _, section := range sections {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		target := filepath.Join(outputDir, fmt.Sprintf("clip_%03d.mp4", section.Index))
		if err := s.cut(ctx, media.VideoPath, section.Start, section.End, target); err != nil {
			lastErr = err
			s.logger.Warn("clip extraction failed",
				logging.Int("section", section.Index),
				logging.Error(err),
			)
			continue
		}
		succeeded++
	}

	if succeeded == 0 {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "cut clips", "all clips failed", lastErr)
	}

	status := StatusSuccess
	if succeeded < len(sections) {
		status = StatusPartial
	}
	result := &pipeline.ClipResult{
		Status:      status,
		TotalClips:  len(sections),
		SuccessRate: float64(succeeded) / float64(len(sections)),
		OutputDir:   outputDir,
	}

	manifestPath := filepath.Join(outputDir, "clips.json")
	if err := fileutil.WriteJSONAtomic(manifestPath, result); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "write clip manifest", manifestPath, err)
	}

	s.logger.Info("clips extracted",
		logging.Int("requested", len(sections)),
		logging.Int("succeeded", succeeded),
		logging.String("status", status),
	)
	return result, nil
}

func (s *Service) cut(ctx context.Context, source string, start, end float64, target string) error {
	args := []string{
		"-y",
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", source,
		"-c", "copy",
		target,
	}
	if _, err := s.run(ctx, s.cfg.Binary, args...); err != nil {
		return err
	}
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("clip not written: %w", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(target)
		return fmt.Errorf("clip is empty")
	}
	return nil
}

func clippableSections(script *narrative.Script) []narrative.Section {
	sections := make([]narrative.Section, 0, len(script.Sections))
	for _, section := range script.Sections {
		if section.SegmentIndex < 0 || section.End <= section.Start {
			continue
		}
		sections = append(sections, section)
	}
	return sections
}

func formatSeconds(value float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", value), "0"), ".")
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}
