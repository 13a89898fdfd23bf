package clipping_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"recap/internal/clipping"
	"recap/internal/config"
	"recap/internal/fileutil"
	"recap/internal/logging"
	"recap/internal/narrative"
	"recap/internal/pipeline"
	"recap/internal/services"
)

func writeScript(t *testing.T, root string, sections []narrative.Section) pipeline.Inputs {
	t.Helper()
	mediaDir := filepath.Join(root, "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		t.Fatalf("mkdir media: %v", err)
	}
	videoPath := filepath.Join(mediaDir, "video.mp4")
	if err := os.WriteFile(videoPath, []byte("source video"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	scriptPath := filepath.Join(root, "script", "script.json")
	script := narrative.Script{Model: "gemini-2.0-pro", Sections: sections}
	if err := fileutil.WriteJSONAtomic(scriptPath, script); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return pipeline.NewInputs(map[int]pipeline.Result{
		pipeline.StageMediaExtraction:     &pipeline.MediaResult{VideoPath: videoPath},
		pipeline.StageNarrativeGeneration: &pipeline.ScriptResult{Path: scriptPath, SectionCount: len(sections)},
	})
}

// fakeCutter writes a non-empty file at the output path (the final argument)
// unless the clip target is listed in failures.
type fakeCutter struct {
	commands [][]string
	failures map[string]bool
}

func (f *fakeCutter) run(_ context.Context, name string, args ...string) (string, error) {
	f.commands = append(f.commands, append([]string{name}, args...))
	target := args[len(args)-1]
	if f.failures[filepath.Base(target)] {
		return "", fmt.Errorf("ffmpeg: exit status 1")
	}
	if err := os.WriteFile(target, []byte("clip data"), 0o644); err != nil {
		return "", err
	}
	return "", nil
}

func newService(run clipping.CommandRunner) *clipping.Service {
	return clipping.NewService(config.Default().FFmpeg, logging.NewNop(), clipping.WithCommandRunner(run))
}

func TestExecuteCutsTimestampedSections(t *testing.T) {
	root := t.TempDir()
	in := writeScript(t, root, []narrative.Section{
		{Index: 0, SegmentIndex: -1, Text: "Welcome back."},
		{Index: 1, SegmentIndex: 0, Start: 10, End: 14.5, Text: "First claim."},
		{Index: 2, SegmentIndex: 1, Start: 92, End: 107, Text: "Second claim."},
	})

	cutter := &fakeCutter{}
	svc := newService(cutter.run)
	ep := pipeline.NewEpisode("ep", root, "")

	result, err := svc.Execute(context.Background(), ep, in)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	clips, ok := result.(*pipeline.ClipResult)
	if !ok {
		t.Fatalf("result type %T", result)
	}
	if clips.Status != clipping.StatusSuccess || clips.TotalClips != 2 || clips.SuccessRate != 1 {
		t.Fatalf("unexpected result: %+v", clips)
	}

	if len(cutter.commands) != 2 {
		t.Fatalf("command count = %d, want 2", len(cutter.commands))
	}
	first := strings.Join(cutter.commands[0], " ")
	if !strings.Contains(first, "-ss 10 -to 14.5") || !strings.Contains(first, "-c copy") {
		t.Fatalf("unexpected ffmpeg invocation: %s", first)
	}
	if !strings.HasSuffix(first, filepath.Join(root, "clips", "clip_001.mp4")) {
		t.Fatalf("unexpected clip target: %s", first)
	}

	monitor := pipeline.NewMonitor(root)
	done, err := monitor.StageComplete(pipeline.StageVideoClipping)
	if err != nil {
		t.Fatalf("StageComplete: %v", err)
	}
	if !done {
		t.Fatal("clipping stage not detected as complete")
	}

	discovered, err := pipeline.DiscoverResult(root, pipeline.StageVideoClipping)
	if err != nil {
		t.Fatalf("DiscoverResult: %v", err)
	}
	if discovered.(*pipeline.ClipResult).TotalClips != 2 {
		t.Fatalf("discovered result mismatch: %+v", discovered)
	}
}

func TestExecuteToleratesPartialClipFailures(t *testing.T) {
	root := t.TempDir()
	in := writeScript(t, root, []narrative.Section{
		{Index: 0, SegmentIndex: 0, Start: 5, End: 9, Text: "A"},
		{Index: 1, SegmentIndex: 1, Start: 30, End: 41, Text: "B"},
		{Index: 2, SegmentIndex: 2, Start: 60, End: 75, Text: "C"},
	})

	cutter := &fakeCutter{failures: map[string]bool{"clip_001.mp4": true}}
	svc := newService(cutter.run)
	ep := pipeline.NewEpisode("ep", root, "")

	result, err := svc.Execute(context.Background(), ep, in)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	clips := result.(*pipeline.ClipResult)
	if clips.Status != clipping.StatusPartial {
		t.Fatalf("status = %s, want partial", clips.Status)
	}
	if clips.TotalClips != 3 || clips.SuccessRate < 0.66 || clips.SuccessRate > 0.67 {
		t.Fatalf("unexpected result: %+v", clips)
	}
}

func TestExecuteFailsWhenAllClipsFail(t *testing.T) {
	root := t.TempDir()
	in := writeScript(t, root, []narrative.Section{
		{Index: 0, SegmentIndex: 0, Start: 5, End: 9, Text: "A"},
	})

	cutter := &fakeCutter{failures: map[string]bool{"clip_000.mp4": true}}
	svc := newService(cutter.run)
	ep := pipeline.NewEpisode("ep", root, "")

	_, err := svc.Execute(context.Background(), ep, in)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error = %v, want external tool failure", err)
	}
	if _, statErr := os.Stat(filepath.Join(root, "clips", "clips.json")); !os.IsNotExist(statErr) {
		t.Fatal("clips.json must not exist after total failure")
	}
}

func TestExecuteRejectsScriptWithoutTimestamps(t *testing.T) {
	root := t.TempDir()
	in := writeScript(t, root, []narrative.Section{
		{Index: 0, SegmentIndex: -1, Text: "Intro only."},
	})

	svc := newService((&fakeCutter{}).run)
	ep := pipeline.NewEpisode("ep", root, "")

	_, err := svc.Execute(context.Background(), ep, in)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want validation failure", err)
	}
}

func TestExecuteRejectsMissingInputs(t *testing.T) {
	svc := newService((&fakeCutter{}).run)
	ep := pipeline.NewEpisode("ep", t.TempDir(), "")

	_, err := svc.Execute(context.Background(), ep, pipeline.NewInputs(nil))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want validation failure", err)
	}
}
