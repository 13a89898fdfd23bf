package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"recap/internal/analysis"
	"recap/internal/config"
	"recap/internal/fileutil"
	"recap/internal/logging"
	"recap/internal/pipeline"
	"recap/internal/services"
	"recap/internal/services/gemini"
)

const stageName = "narrative"

// Section is one narrated passage of the script. SegmentIndex points at the
// flagged analysis segment the passage responds to; -1 marks framing passages
// (intro, outro) that stand alone. Start and End are copied from the flagged
// segment so downstream stages can clip the source without re-reading the
// analysis artifact.
type Section struct {
	Index        int     `json:"index"`
	SegmentIndex int     `json:"segment_index"`
	Start        float64 `json:"start_time,omitempty"`
	End          float64 `json:"end_time,omitempty"`
	Text         string  `json:"text"`
}

// Script is the script/script.json artifact.
type Script struct {
	Model    string    `json:"model"`
	Sections []Section `json:"sections"`
}

// Service runs the narrative generation stage against Gemini.
type Service struct {
	cfg    config.Gemini
	client *gemini.Client
	logger *slog.Logger
}

// NewService builds the narrative generation stage adapter.
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

// Execute turns the flagged segments into a narrated script and writes
// script/script.json.
func (s *Service) Execute(ctx context.Context, ep *pipeline.Episode, in pipeline.Inputs) (pipeline.Result, error) {
	analysisOut, err := in.Analysis()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "execute", "missing analysis output", err)
	}

	doc, err := analysis.LoadDocument(analysisOut.Path)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "load analysis", analysisOut.Path, err)
	}
	if len(doc.Segments) == 0 {
		return nil, services.Wrap(services.ErrValidation, stageName, "execute", "analysis contains no segments", nil)
	}

	prompt := buildPrompt(doc)
	s.logger.Info("generating script",
		logging.String("model", s.cfg.ScriptModel),
		logging.Int("flagged_segments", len(doc.Segments)),
	)

	var response struct {
		Sections []Section `json:"sections"`
	}
	if err := s.client.GenerateJSON(ctx, s.cfg.ScriptModel, prompt, &response); err != nil {
		return nil, err
	}

	sections, err := normalizeSections(response.Sections, doc.Segments)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "validate response", s.cfg.ScriptModel, err)
	}

	script := Script{Model: s.cfg.ScriptModel, Sections: sections}
	path := filepath.Join(ep.Root, "script", "script.json")
	if err := fileutil.WriteJSONAtomic(path, script); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "write script", path, err)
	}

	return &pipeline.ScriptResult{Path: path, SectionCount: len(sections)}, nil
}

func buildPrompt(doc *analysis.Document) string {
	var b strings.Builder
	b.WriteString("You write narration for a video essay that responds to flagged claims from a source video. ")
	b.WriteString("Write one short spoken passage per flagged segment, plus an intro and an outro. ")
	b.WriteString("Respond with JSON only, shaped as ")
	b.WriteString(`{"sections":[{"index":0,"segment_index":-1,"text":""}]}. `)
	b.WriteString("Use segment_index -1 for the intro and outro.\n\nFlagged segments:\n")
	for i, seg := range doc.Segments {
		fmt.Fprintf(&b, "%d. [%.1f-%.1f] (%s) %s — %s\n", i, seg.Start, seg.End, seg.Category, seg.Quote, seg.Reason)
	}
	return b.String()
}

// normalizeSections renumbers the sections sequentially, drops empty
// passages, bounds segment references, and copies segment timestamps in.
func normalizeSections(sections []Section, segments []analysis.Segment) ([]Section, error) {
	valid := make([]Section, 0, len(sections))
	for _, section := range sections {
		text := strings.TrimSpace(section.Text)
		if text == "" {
			continue
		}
		if section.SegmentIndex >= len(segments) {
			section.SegmentIndex = -1
		}
		if section.SegmentIndex >= 0 {
			seg := segments[section.SegmentIndex]
			section.Start = seg.Start
			section.End = seg.End
		} else {
			section.Start = 0
			section.End = 0
		}
		section.Index = len(valid)
		section.Text = text
		valid = append(valid, section)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("model returned no usable sections")
	}
	return valid, nil
}

// LoadScript reads a script document from disk.
func LoadScript(path string) (*Script, error) {
	var script Script
	if err := fileutil.ReadJSON(path, &script); err != nil {
		return nil, err
	}
	return &script, nil
}
