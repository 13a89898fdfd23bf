package voiceover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
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

const stageName = "voiceover"

// Narration status values recorded in narration/sections.json.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
)

// Service synthesizes narration audio through the ElevenLabs API.
type Service struct {
	cfg    config.ElevenLabs
	client *http.Client
	logger *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		s.client = client
	}
}

// NewService builds the audio generation stage adapter.
func NewService(cfg config.ElevenLabs, logger *slog.Logger, opts ...Option) *Service {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	s := &Service{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
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

// Execute synthesizes one mp3 per script section into <root>/narration and
// writes sections.json last. Individual section failures are tolerated; the
// stage fails only when no section could be synthesized.
func (s *Service) Execute(ctx context.Context, ep *pipeline.Episode, in pipeline.Inputs) (pipeline.Result, error) {
	scriptOut, err := in.Script()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "execute", "missing script output", err)
	}
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "execute", "elevenlabs api key is required", nil)
	}

	script, err := narrative.LoadScript(scriptOut.Path)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "load script", scriptOut.Path, err)
	}

	outputDir := filepath.Join(ep.Root, "narration")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "prepare output dir", outputDir, err)
	}

	var generated []string
	var lastErr error
	for _, section := range script.Sections {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		name := fmt.Sprintf("section_%03d.mp3", section.Index)
		target := filepath.Join(outputDir, name)
		if err := s.synthesize(ctx, section.Text, target); err != nil {
			lastErr = err
			s.logger.Warn("section synthesis failed",
				logging.Int("section", section.Index),
				logging.Error(err),
			)
			continue
		}
		generated = append(generated, name)
	}

	if len(generated) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "synthesize narration", "all sections failed", lastErr)
	}

	status := StatusSuccess
	if len(generated) < len(script.Sections) {
		status = StatusPartial
	}
	result := &pipeline.NarrationResult{
		Status:             status,
		TotalSections:      len(script.Sections),
		SuccessfulSections: len(generated),
		OutputDir:          outputDir,
		GeneratedFiles:     generated,
	}

	manifestPath := filepath.Join(outputDir, "sections.json")
	if err := fileutil.WriteJSONAtomic(manifestPath, result); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "write narration manifest", manifestPath, err)
	}

	s.logger.Info("narration synthesized",
		logging.Int("sections", len(script.Sections)),
		logging.Int("generated", len(generated)),
		logging.String("status", status),
	)
	return result, nil
}

// synthesize requests one section's audio and writes it atomically.
func (s *Service) synthesize(ctx context.Context, text, target string) error {
	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": s.cfg.ModelID,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimSuffix(s.cfg.BaseURL, "/") + "/v1/text-to-speech/" + s.cfg.VoiceID
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("xi-api-key", s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request synthesis: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("elevenlabs returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return fmt.Errorf("elevenlabs returned empty audio")
	}
	return fileutil.WriteFileAtomic(target, audio, 0o644)
}
