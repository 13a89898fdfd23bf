package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"recap/internal/config"
	"recap/internal/fileutil"
	"recap/internal/logging"
	"recap/internal/pipeline"
	"recap/internal/services"
	"recap/internal/services/gemini"
	"recap/internal/transcription"
)

const stageName = "analysis"

// Segment is one flagged span of the source video.
type Segment struct {
	Start    float64 `json:"start_time"`
	End      float64 `json:"end_time"`
	Category string  `json:"category"`
	Quote    string  `json:"quote,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// Document is the analysis/segments.json artifact.
type Document struct {
	Model    string    `json:"model"`
	Segments []Segment `json:"segments"`
}

// Service runs the content analysis stage against Gemini.
type Service struct {
	cfg    config.Gemini
	client *gemini.Client
	logger *slog.Logger
}

// NewService builds the content analysis stage adapter.
func NewService(cfg config.Gemini, client *gemini.Client, logger *slog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		client: client,
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

// StageFunc adapts the service to the controller's stage interface.
func (s *Service) StageFunc() pipeline.StageFunc {
	return s.Execute
}

// Execute sends the transcript to the analysis model and writes the flagged
// segments to analysis/segments.json.
func (s *Service) Execute(ctx context.Context, ep *pipeline.Episode, in pipeline.Inputs) (pipeline.Result, error) {
	transcriptOut, err := in.Transcript()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "execute", "missing transcript output", err)
	}

	transcript, err := transcription.Load(transcriptOut.Path)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "load transcript", transcriptOut.Path, err)
	}

	prompt := buildPrompt(transcript)
	s.logger.Info("analyzing transcript",
		logging.String("model", s.cfg.AnalysisModel),
		logging.Int("segment_count", len(transcript.Segments)),
	)

	var response struct {
		Segments []Segment `json:"segments"`
	}
	if err := s.client.GenerateJSON(ctx, s.cfg.AnalysisModel, prompt, &response); err != nil {
		return nil, err
	}

	segments, err := validateSegments(response.Segments)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "validate response", s.cfg.AnalysisModel, err)
	}

	doc := Document{Model: s.cfg.AnalysisModel, Segments: segments}
	path := filepath.Join(ep.Root, "analysis", "segments.json")
	if err := fileutil.WriteJSONAtomic(path, doc); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "write segments", path, err)
	}

	return &pipeline.AnalysisResult{Path: path, SegmentCount: len(segments)}, nil
}

func buildPrompt(transcript *transcription.Transcript) string {
	var b strings.Builder
	b.WriteString("You review video transcripts for a commentary channel. ")
	b.WriteString("Identify segments containing problematic, misleading, or otherwise noteworthy statements. ")
	b.WriteString("Respond with JSON only, shaped as ")
	b.WriteString(`{"segments":[{"start_time":0.0,"end_time":0.0,"category":"","quote":"","reason":""}]}.`)
	b.WriteString("\n\nTranscript with timestamps:\n")
	for _, seg := range transcript.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "[%.1f-%.1f] %s\n", seg.Start, seg.End, text)
	}
	return b.String()
}

// validateSegments drops malformed entries and rejects responses with none
// left, keeping the model honest about its output contract.
func validateSegments(segments []Segment) ([]Segment, error) {
	valid := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		if seg.Start < 0 || seg.End <= seg.Start {
			continue
		}
		if strings.TrimSpace(seg.Category) == "" {
			continue
		}
		valid = append(valid, seg)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("model returned no usable segments")
	}
	return valid, nil
}

// LoadDocument reads an analysis document from disk.
func LoadDocument(path string) (*Document, error) {
	var doc Document
	if err := fileutil.ReadJSON(path, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
