package compilation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"recap/internal/config"
	"recap/internal/logging"
	"recap/internal/pipeline"
	"recap/internal/services"
)

const stageName = "compilation"

// FinalVideoName is the artifact the stage writes under <root>/final.
const FinalVideoName = "final_video.mp4"

// CommandRunner executes an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) (string, error)

// Service assembles the final episode video by interleaving narration
// segments with the source clips they respond to.
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

// NewService builds the video compilation stage adapter.
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

// Execute renders narration audio into video segments, interleaves them with
// the extracted clips in index order, and concatenates everything into
// <root>/final/final_video.mp4. The final artifact appears via rename only
// after ffmpeg finishes, so a partially written file is never visible under
// its final name.
func (s *Service) Execute(ctx context.Context, ep *pipeline.Episode, in pipeline.Inputs) (pipeline.Result, error) {
	narration, err := in.Narration()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "execute", "missing narration output", err)
	}
	clips, err := in.Clips()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "execute", "missing clips output", err)
	}

	narrationFiles, err := sortedMatches(narration.OutputDir, "section_*.mp3")
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "list narration", narration.OutputDir, err)
	}
	clipFiles, err := sortedMatches(clips.OutputDir, "clip_*.mp4")
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "list clips", clips.OutputDir, err)
	}
	if len(narrationFiles) == 0 {
		return nil, services.Wrap(services.ErrValidation, stageName, "execute", "no narration audio found", nil)
	}

	finalDir := filepath.Join(ep.Root, "final")
	workDir := filepath.Join(finalDir, "work")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "prepare work dir", workDir, err)
	}
	defer os.RemoveAll(workDir)

	if s.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	playlist, err := s.buildPlaylist(ctx, workDir, narrationFiles, clipFiles)
	if err != nil {
		return nil, err
	}

	listPath := filepath.Join(workDir, "concat.txt")
	if err := writeConcatList(listPath, playlist); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "write concat list", listPath, err)
	}

	partial := filepath.Join(workDir, "assembled.mp4")
	concatArgs := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-pix_fmt", "yuv420p",
		partial,
	}
	if _, err := s.run(ctx, s.cfg.Binary, concatArgs...); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "concat", "assemble final video", err)
	}
	if err := verifyOutput(partial); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "concat", partial, err)
	}

	finalPath := filepath.Join(finalDir, FinalVideoName)
	if err := os.Rename(partial, finalPath); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "publish", finalPath, err)
	}

	s.logger.Info("final video assembled",
		logging.Int("narration_segments", len(narrationFiles)),
		logging.Int("clips", len(clipFiles)),
		logging.String("path", finalPath),
	)
	return &pipeline.CompileResult{Path: finalPath}, nil
}

// buildPlaylist renders each narration mp3 into a video segment and
// interleaves it with the clip of the same index. A narration segment always
// precedes the clip it introduces; trailing clips without narration are
// appended in order.
func (s *Service) buildPlaylist(ctx context.Context, workDir string, narrationFiles, clipFiles []string) ([]string, error) {
	clipByIndex := make(map[int]string, len(clipFiles))
	for _, clip := range clipFiles {
		clipByIndex[artifactIndex(clip)] = clip
	}

	var playlist []string
	seen := make(map[int]bool)
	for _, audio := range narrationFiles {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		idx := artifactIndex(audio)
		segment := filepath.Join(workDir, fmt.Sprintf("narration_%03d.mp4", idx))
		if err := s.renderNarrationSegment(ctx, audio, segment); err != nil {
			return nil, services.Wrap(services.ErrExternalTool, stageName, "render narration", audio, err)
		}
		playlist = append(playlist, segment)
		if clip, ok := clipByIndex[idx]; ok {
			playlist = append(playlist, clip)
			seen[idx] = true
		}
	}
	for _, clip := range clipFiles {
		if !seen[artifactIndex(clip)] {
			playlist = append(playlist, clip)
		}
	}
	return playlist, nil
}

// renderNarrationSegment wraps a narration mp3 in a black 1080p video track
// so the concat demuxer sees uniform streams.
func (s *Service) renderNarrationSegment(ctx context.Context, audioPath, target string) error {
	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", "color=c=black:s=1920x1080:r=30",
		"-i", audioPath,
		"-shortest",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-pix_fmt", "yuv420p",
		target,
	}
	if _, err := s.run(ctx, s.cfg.Binary, args...); err != nil {
		return err
	}
	return verifyOutput(target)
}

func verifyOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output not written: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("output is empty")
	}
	return nil
}

func writeConcatList(path string, entries []string) error {
	var b strings.Builder
	for _, entry := range entries {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(entry, "'", `'\''`))
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func sortedMatches(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// artifactIndex extracts the numeric suffix from names like section_002.mp3
// or clip_002.mp4. Unparseable names sort to -1 and never pair with a clip.
func artifactIndex(path string) int {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	underscore := strings.LastIndex(base, "_")
	if underscore < 0 {
		return -1
	}
	var idx int
	if _, err := fmt.Sscanf(base[underscore+1:], "%d", &idx); err != nil {
		return -1
	}
	return idx
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}
