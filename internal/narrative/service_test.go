package narrative_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"recap/internal/analysis"
	"recap/internal/config"
	"recap/internal/fileutil"
	"recap/internal/logging"
	"recap/internal/narrative"
	"recap/internal/pipeline"
	"recap/internal/services"
	"recap/internal/services/gemini"
)

func writeAnalysis(t *testing.T, root string) pipeline.Inputs {
	t.Helper()
	path := filepath.Join(root, "analysis", "segments.json")
	doc := analysis.Document{
		Model: "gemini-2.0-flash",
		Segments: []analysis.Segment{
			{Start: 10, End: 14, Category: "misinformation", Quote: "The moon landing was fake.", Reason: "conspiracy claim"},
		},
	}
	if err := fileutil.WriteJSONAtomic(path, doc); err != nil {
		t.Fatalf("write analysis: %v", err)
	}
	return pipeline.NewInputs(map[int]pipeline.Result{
		pipeline.StageContentAnalysis: &pipeline.AnalysisResult{Path: path, SegmentCount: 1},
	})
}

func geminiClient(generate gemini.GenerateFunc) *gemini.Client {
	cfg := config.Default().Gemini
	cfg.MaxRetries = 0
	return gemini.NewClientWithGenerator(generate, cfg, logging.NewNop())
}

func TestExecuteWritesNormalizedScript(t *testing.T) {
	root := t.TempDir()
	in := writeAnalysis(t, root)

	var seenModel string
	client := geminiClient(func(_ context.Context, model, prompt string) (string, error) {
		seenModel = model
		if !strings.Contains(prompt, "The moon landing was fake.") {
			t.Errorf("prompt missing flagged segment: %s", prompt)
		}
		return `{"sections":[
			{"index":5,"segment_index":-1,"text":"Welcome back to the channel."},
			{"index":9,"segment_index":0,"text":"  At ten seconds in, the video claims the moon landing was staged. It was not.  "},
			{"index":2,"segment_index":7,"text":"And that is all for today."},
			{"index":3,"segment_index":0,"text":"   "}
		]}`, nil
	})

	svc := narrative.NewService(config.Default().Gemini, client, logging.NewNop())
	ep := pipeline.NewEpisode("ep", root, "")
	result, err := svc.Execute(context.Background(), ep, in)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	scriptResult, ok := result.(*pipeline.ScriptResult)
	if !ok {
		t.Fatalf("result type %T", result)
	}
	if scriptResult.SectionCount != 3 {
		t.Fatalf("section count = %d, want 3 (blank section dropped)", scriptResult.SectionCount)
	}
	if seenModel != config.Default().Gemini.ScriptModel {
		t.Fatalf("model = %s", seenModel)
	}

	script, err := narrative.LoadScript(scriptResult.Path)
	if err != nil {
		t.Fatalf("LoadScript failed: %v", err)
	}
	for i, section := range script.Sections {
		if section.Index != i {
			t.Fatalf("sections not renumbered: %+v", script.Sections)
		}
	}
	if script.Sections[1].Text != "At ten seconds in, the video claims the moon landing was staged. It was not." {
		t.Fatalf("section text not trimmed: %q", script.Sections[1].Text)
	}
	if script.Sections[1].Start != 10 || script.Sections[1].End != 14 {
		t.Fatalf("segment timestamps not copied: %+v", script.Sections[1])
	}
	if script.Sections[2].SegmentIndex != -1 {
		t.Fatalf("out-of-range segment reference not bounded: %+v", script.Sections[2])
	}
}

func TestExecuteFailsOnEmptyScript(t *testing.T) {
	root := t.TempDir()
	in := writeAnalysis(t, root)

	client := geminiClient(func(context.Context, string, string) (string, error) {
		return `{"sections":[{"index":0,"segment_index":0,"text":""}]}`, nil
	})

	svc := narrative.NewService(config.Default().Gemini, client, logging.NewNop())
	ep := pipeline.NewEpisode("ep", root, "")
	_, err := svc.Execute(context.Background(), ep, in)
	if err == nil {
		t.Fatal("expected error for empty script")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error not classified: %v", err)
	}
}

func TestExecuteRequiresAnalysisInput(t *testing.T) {
	client := geminiClient(func(context.Context, string, string) (string, error) {
		t.Fatal("model must not be called")
		return "", nil
	})
	svc := narrative.NewService(config.Default().Gemini, client, logging.NewNop())
	ep := pipeline.NewEpisode("ep", t.TempDir(), "")
	_, err := svc.Execute(context.Background(), ep, pipeline.Inputs{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
