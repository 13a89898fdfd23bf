package extraction

import (
	"context"
	"encoding/json"
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
	"recap/internal/pipeline"
	"recap/internal/services"
)

const stageName = "extraction"

// CommandRunner executes an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) (string, error)

// SourceMetadata is the media/source.json document describing the downloaded
// episode. It is written after both media files so its presence marks the
// stage complete.
type SourceMetadata struct {
	VideoID         string  `json:"video_id"`
	Title           string  `json:"title"`
	Channel         string  `json:"channel,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	SourceURL       string  `json:"source_url"`
	VideoFile       string  `json:"video_file"`
	AudioFile       string  `json:"audio_file"`
	DownloadedAt    string  `json:"downloaded_at"`
}

// Service downloads the source video and audio pair with yt-dlp.
type Service struct {
	cfg    config.Downloader
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

// NewService builds the media extraction stage adapter.
func NewService(cfg config.Downloader, logger *slog.Logger, opts ...Option) *Service {
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

// Execute downloads the video and audio streams into <root>/media and writes
// source.json last.
func (s *Service) Execute(ctx context.Context, ep *pipeline.Episode, _ pipeline.Inputs) (pipeline.Result, error) {
	source := strings.TrimSpace(ep.Source)
	if source == "" {
		return nil, services.Wrap(services.ErrValidation, stageName, "execute", "episode has no source url", nil)
	}

	if s.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	mediaDir := filepath.Join(ep.Root, "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "prepare media dir", mediaDir, err)
	}

	meta, err := s.probe(ctx, source)
	if err != nil {
		return nil, err
	}

	s.logger.Info("downloading media",
		logging.String("video_id", meta.VideoID),
		logging.String("title", meta.Title),
	)

	if _, err := s.run(ctx, s.cfg.Binary,
		"--no-playlist",
		"-f", s.cfg.VideoFormat,
		"-o", filepath.Join(mediaDir, "video.%(ext)s"),
		source,
	); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "download video", source, err)
	}

	if _, err := s.run(ctx, s.cfg.Binary,
		"--no-playlist",
		"-f", s.cfg.AudioFormat,
		"-o", filepath.Join(mediaDir, "audio.%(ext)s"),
		source,
	); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "download audio", source, err)
	}

	videoPath, err := findArtifact(mediaDir, "video.*")
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "locate video file", mediaDir, err)
	}
	audioPath, err := findArtifact(mediaDir, "audio.*")
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "locate audio file", mediaDir, err)
	}

	meta.SourceURL = source
	meta.VideoFile = filepath.Base(videoPath)
	meta.AudioFile = filepath.Base(audioPath)
	meta.DownloadedAt = time.Now().UTC().Format(time.RFC3339)

	metadataPath := filepath.Join(mediaDir, "source.json")
	if err := fileutil.WriteJSONAtomic(metadataPath, meta); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "write source metadata", metadataPath, err)
	}

	return &pipeline.MediaResult{
		VideoPath:    videoPath,
		AudioPath:    audioPath,
		MetadataPath: metadataPath,
		Title:        meta.Title,
	}, nil
}

// probe fetches video metadata without downloading anything.
func (s *Service) probe(ctx context.Context, source string) (*SourceMetadata, error) {
	output, err := s.run(ctx, s.cfg.Binary, "--no-playlist", "--skip-download", "--dump-single-json", source)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "probe metadata", source, err)
	}

	var probe struct {
		ID       string  `json:"id"`
		Title    string  `json:"title"`
		Channel  string  `json:"channel"`
		Uploader string  `json:"uploader"`
		Duration float64 `json:"duration"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &probe); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "parse metadata", source, err)
	}

	channel := probe.Channel
	if channel == "" {
		channel = probe.Uploader
	}
	return &SourceMetadata{
		VideoID:         probe.ID,
		Title:           NormalizeTitle(probe.Title),
		Channel:         channel,
		DurationSeconds: probe.Duration,
	}, nil
}

func findArtifact(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", fmt.Errorf("glob %s: %w", pattern, err)
	}
	for _, match := range matches {
		if strings.HasSuffix(match, ".json") || strings.HasSuffix(match, ".part") {
			continue
		}
		info, err := os.Stat(match)
		if err == nil && info.Mode().IsRegular() {
			return match, nil
		}
	}
	return "", fmt.Errorf("no file matches %s", pattern)
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}
