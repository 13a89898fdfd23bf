package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"recap/internal/logging"
	"recap/internal/pipeline"
)

// stubStages builds stage functions that write the expected artifacts so
// completion checks and discovery behave like real stage adapters.
type stubStages struct {
	mu       sync.Mutex
	invoked  []int
	failAt   int
	failErr  error
	execHook func(stage int, ep *pipeline.Episode, in pipeline.Inputs)
}

func (s *stubStages) calls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]int, len(s.invoked))
	copy(cp, s.invoked)
	return cp
}

func (s *stubStages) countFor(stage int) int {
	count := 0
	for _, n := range s.calls() {
		if n == stage {
			count++
		}
	}
	return count
}

func (s *stubStages) funcs(t *testing.T) map[int]pipeline.StageFunc {
	t.Helper()
	fns := make(map[int]pipeline.StageFunc, 7)
	for stage := 1; stage <= 7; stage++ {
		stage := stage
		fns[stage] = func(ctx context.Context, ep *pipeline.Episode, in pipeline.Inputs) (pipeline.Result, error) {
			s.mu.Lock()
			s.invoked = append(s.invoked, stage)
			s.mu.Unlock()

			if s.execHook != nil {
				s.execHook(stage, ep, in)
			}
			if s.failAt == stage {
				err := s.failErr
				if err == nil {
					err = fmt.Errorf("stage %d boom", stage)
				}
				return nil, err
			}

			writeStageArtifacts(t, ep.Root, stage)
			result, err := pipeline.DiscoverResult(ep.Root, stage)
			if err != nil {
				return nil, err
			}
			return result, nil
		}
	}
	return fns
}

type recordingReporter struct {
	mu       sync.Mutex
	events   []pipeline.Event
	finished []*pipeline.Manifest
}

func (r *recordingReporter) StageProgress(_ context.Context, event pipeline.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingReporter) RunFinished(_ context.Context, manifest *pipeline.Manifest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, manifest)
}

func newTestController(t *testing.T, stubs *stubStages, reporter pipeline.Reporter) *pipeline.Controller {
	t.Helper()
	opts := []pipeline.ControllerOption{pipeline.WithStageFuncs(stubs.funcs(t))}
	if reporter != nil {
		opts = append(opts, pipeline.WithReporter(reporter))
	}
	return pipeline.NewController(t.TempDir(), logging.NewNop(), opts...)
}

func TestRunExecutesAscendingRegardlessOfInputOrder(t *testing.T) {
	stubs := &stubStages{}
	reporter := &recordingReporter{}
	controller := newTestController(t, stubs, reporter)

	manifest, err := controller.Run(context.Background(), pipeline.RunRequest{
		Stages: []int{5, 1, 3, 2, 4},
		Source: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []int{1, 2, 3, 4, 5}
	got := stubs.calls()
	if len(got) != len(want) {
		t.Fatalf("invoked %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("invoked %v, want %v", got, want)
		}
	}

	if manifest.Status != pipeline.RunSucceeded {
		t.Fatalf("status = %s", manifest.Status)
	}
	for _, stage := range want {
		rec := manifest.Record(stage)
		if rec == nil || rec.Status != pipeline.StatusSucceeded {
			t.Fatalf("stage %d record = %+v", stage, rec)
		}
	}
	if len(reporter.finished) != 1 {
		t.Fatalf("expected one terminal event, got %d", len(reporter.finished))
	}
}

func TestRunRejectsUnsatisfiedDependencies(t *testing.T) {
	stubs := &stubStages{}
	controller := newTestController(t, stubs, nil)

	_, err := controller.Run(context.Background(), pipeline.RunRequest{
		Stages: []int{3, 5},
		Source: "https://youtu.be/abc123",
	})
	var depErr *pipeline.DependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("expected DependencyError, got %v", err)
	}
	want := []int{1, 2, 4}
	if len(depErr.Result.MissingDependencies) != len(want) {
		t.Fatalf("missing = %v, want %v", depErr.Result.MissingDependencies, want)
	}
	if len(stubs.calls()) != 0 {
		t.Fatal("no stage function may run when validation fails")
	}
}

func TestRunFailureHaltsDownstream(t *testing.T) {
	stubs := &stubStages{failAt: 3}
	reporter := &recordingReporter{}
	controller := newTestController(t, stubs, reporter)

	manifest, err := controller.Run(context.Background(), pipeline.RunRequest{
		Stages: []int{1, 2, 3, 4},
		Source: "https://youtu.be/failcase",
	})

	var stageErr *pipeline.StageExecutionError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageExecutionError, got %v", err)
	}
	if stageErr.Stage != 3 {
		t.Fatalf("failing stage = %d, want 3", stageErr.Stage)
	}
	if manifest == nil {
		t.Fatal("partial manifest must be returned on failure")
	}
	if manifest.Status != pipeline.RunFailed {
		t.Fatalf("status = %s", manifest.Status)
	}
	if rec := manifest.Record(1); rec.Status != pipeline.StatusSucceeded {
		t.Fatalf("stage 1 = %s", rec.Status)
	}
	if rec := manifest.Record(2); rec.Status != pipeline.StatusSucceeded {
		t.Fatalf("stage 2 = %s", rec.Status)
	}
	if rec := manifest.Record(3); rec.Status != pipeline.StatusFailed || rec.Err == nil {
		t.Fatalf("stage 3 = %+v", rec)
	}
	if rec := manifest.Record(4); rec.Status != pipeline.StatusPending {
		t.Fatalf("stage 4 = %s, want pending", rec.Status)
	}
	if stubs.countFor(4) != 0 {
		t.Fatal("stage 4 function must never be invoked after a stage 3 failure")
	}
}

func TestRunSkipsCompletedStagesOnResume(t *testing.T) {
	root := t.TempDir()
	writeStageArtifacts(t, root, 1)
	writeStageArtifacts(t, root, 2)

	stubs := &stubStages{}
	controller := newTestController(t, stubs, nil)

	manifest, err := controller.Run(context.Background(), pipeline.RunRequest{
		Stages:     []int{1, 2, 3},
		ResumeRoot: root,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rec := manifest.Record(1); rec.Status != pipeline.StatusSkipped {
		t.Fatalf("stage 1 = %s, want skipped", rec.Status)
	}
	if rec := manifest.Record(2); rec.Status != pipeline.StatusSkipped {
		t.Fatalf("stage 2 = %s, want skipped", rec.Status)
	}
	if rec := manifest.Record(3); rec.Status != pipeline.StatusSucceeded {
		t.Fatalf("stage 3 = %s, want succeeded", rec.Status)
	}
	if stubs.countFor(1) != 0 || stubs.countFor(2) != 0 {
		t.Fatalf("skipped stage functions were invoked: %v", stubs.calls())
	}
	if stubs.countFor(3) != 1 {
		t.Fatalf("stage 3 invoked %d times, want 1", stubs.countFor(3))
	}

	// Stage 3's run wrote its artifacts, so a second resume skips everything.
	stubs2 := &stubStages{}
	controller2 := newTestController(t, stubs2, nil)
	manifest2, err := controller2.Run(context.Background(), pipeline.RunRequest{
		Stages:     []int{1, 2, 3},
		ResumeRoot: root,
	})
	if err != nil {
		t.Fatalf("re-run failed: %v", err)
	}
	for _, stage := range []int{1, 2, 3} {
		if rec := manifest2.Record(stage); rec.Status != pipeline.StatusSkipped {
			t.Fatalf("re-run stage %d = %s, want skipped", stage, rec.Status)
		}
	}
	if len(stubs2.calls()) != 0 {
		t.Fatalf("re-run invoked %v, want none", stubs2.calls())
	}
}

func TestRunPartialRequestLoadsPredecessorArtifacts(t *testing.T) {
	root := t.TempDir()
	for stage := 1; stage <= 2; stage++ {
		writeStageArtifacts(t, root, stage)
	}

	var sawTranscript bool
	stubs := &stubStages{}
	stubs.execHook = func(stage int, _ *pipeline.Episode, in pipeline.Inputs) {
		if stage == 3 {
			if _, err := in.Transcript(); err == nil {
				sawTranscript = true
			}
		}
	}
	controller := newTestController(t, stubs, nil)

	manifest, err := controller.Run(context.Background(), pipeline.RunRequest{
		Stages:     []int{3},
		ResumeRoot: root,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if manifest.Record(3).Status != pipeline.StatusSucceeded {
		t.Fatalf("stage 3 = %s", manifest.Record(3).Status)
	}
	if !sawTranscript {
		t.Fatal("stage 3 should receive the transcript output discovered from disk")
	}
}

func TestRunStageSeesOnlyDeclaredPredecessors(t *testing.T) {
	var leaked bool
	stubs := &stubStages{}
	stubs.execHook = func(stage int, _ *pipeline.Episode, in pipeline.Inputs) {
		if stage == 7 {
			// Stage 7 declares 5 and 6; stage 4's output must be invisible.
			if _, ok := in.Result(4); ok {
				leaked = true
			}
			if _, err := in.Narration(); err != nil {
				t.Errorf("stage 7 missing narration input: %v", err)
			}
			if _, err := in.Clips(); err != nil {
				t.Errorf("stage 7 missing clips input: %v", err)
			}
		}
	}
	controller := newTestController(t, stubs, nil)

	if _, err := controller.Run(context.Background(), pipeline.RunRequest{
		Stages: []int{1, 2, 3, 4, 5, 6, 7},
		Source: "https://youtu.be/full",
	}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if leaked {
		t.Fatal("non-predecessor output leaked into stage 7 inputs")
	}
}

func TestRunCancellationLeavesRemainingPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stubs := &stubStages{}
	stubs.execHook = func(stage int, _ *pipeline.Episode, _ pipeline.Inputs) {
		if stage == 2 {
			cancel()
		}
	}
	controller := newTestController(t, stubs, nil)

	manifest, err := controller.Run(ctx, pipeline.RunRequest{
		Stages: []int{1, 2, 3, 4},
		Source: "https://youtu.be/cancelcase",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if manifest.Status != pipeline.RunCanceled {
		t.Fatalf("status = %s, want canceled", manifest.Status)
	}
	if rec := manifest.Record(2); rec.Status != pipeline.StatusSucceeded {
		t.Fatalf("stage 2 = %s (cancellation must not roll back finished work)", rec.Status)
	}
	for _, stage := range []int{3, 4} {
		if rec := manifest.Record(stage); rec.Status != pipeline.StatusPending {
			t.Fatalf("stage %d = %s, want pending", stage, rec.Status)
		}
	}
	if stubs.countFor(3) != 0 {
		t.Fatal("stage 3 must not start after cancellation")
	}
}

func TestRunProgressEventsCarryIndexAndTotal(t *testing.T) {
	stubs := &stubStages{}
	reporter := &recordingReporter{}
	controller := newTestController(t, stubs, reporter)

	if _, err := controller.Run(context.Background(), pipeline.RunRequest{
		Stages: []int{1, 2},
		Source: "https://youtu.be/events",
	}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(reporter.events) == 0 {
		t.Fatal("expected progress events")
	}
	for _, event := range reporter.events {
		if event.TotalStages != 2 {
			t.Fatalf("TotalStages = %d, want 2", event.TotalStages)
		}
		if event.Index < 1 || event.Index > 2 {
			t.Fatalf("Index = %d out of range", event.Index)
		}
		if event.EpisodeID == "" {
			t.Fatal("event missing episode id")
		}
		if event.Label == "" {
			t.Fatal("event missing stage label")
		}
	}
}

func TestRunMissingStageFunctionFailsThatStage(t *testing.T) {
	controller := pipeline.NewController(t.TempDir(), logging.NewNop())

	manifest, err := controller.Run(context.Background(), pipeline.RunRequest{
		Stages: []int{1},
		Source: "https://youtu.be/nofunc",
	})
	var stageErr *pipeline.StageExecutionError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageExecutionError, got %v", err)
	}
	if manifest.Record(1).Status != pipeline.StatusFailed {
		t.Fatalf("stage 1 = %s", manifest.Record(1).Status)
	}
}
