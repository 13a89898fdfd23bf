package session_test

import (
	"context"
	"testing"
	"time"

	"recap/internal/logging"
	"recap/internal/pipeline"
	"recap/internal/session"
	"recap/internal/testsupport"
)

func mustOpenStore(t *testing.T) *session.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store, err := session.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func sampleManifest(episodeID string) *pipeline.Manifest {
	started := time.Now().UTC().Add(-time.Minute)
	finished := time.Now().UTC()
	return &pipeline.Manifest{
		EpisodeID: episodeID,
		Root:      "/tmp/episodes/" + episodeID,
		Source:    "https://youtu.be/" + episodeID,
		Requested: []int{1, 2},
		Records: []*pipeline.StageRecord{
			{Stage: 1, Label: "Media Extraction", Status: pipeline.StatusSucceeded, StartedAt: started, FinishedAt: finished},
			{Stage: 2, Label: "Transcript Generation", Status: pipeline.StatusFailed, StartedAt: finished, FinishedAt: finished, Message: "whisperx exited 1"},
		},
		Status: pipeline.RunFailed,
	}
}

func TestRecordRunPersistsSessionAndStages(t *testing.T) {
	store := mustOpenStore(t)
	ctx := context.Background()

	manifest := sampleManifest("ep-record")
	if err := store.RecordRun(ctx, manifest); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	sess, err := store.ByEpisode(ctx, "ep-record")
	if err != nil {
		t.Fatalf("ByEpisode failed: %v", err)
	}
	if sess == nil {
		t.Fatal("expected session row")
	}
	if sess.Status != string(pipeline.RunFailed) {
		t.Fatalf("status = %s", sess.Status)
	}
	if sess.Root != manifest.Root || sess.Source != manifest.Source {
		t.Fatalf("session = %+v", sess)
	}
	if len(sess.RequestedStages) != 2 || sess.RequestedStages[0] != 1 || sess.RequestedStages[1] != 2 {
		t.Fatalf("requested stages = %v", sess.RequestedStages)
	}

	records, err := store.StageRecords(ctx, "ep-record")
	if err != nil {
		t.Fatalf("StageRecords failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Stage != 1 || records[0].Status != string(pipeline.StatusSucceeded) {
		t.Fatalf("record[0] = %+v", records[0])
	}
	if records[1].Status != string(pipeline.StatusFailed) || records[1].Message != "whisperx exited 1" {
		t.Fatalf("record[1] = %+v", records[1])
	}
	if records[0].StartedAt == nil || records[0].FinishedAt == nil {
		t.Fatal("expected stage timestamps to round-trip")
	}
}

func TestRecordRunReplacesStageRecords(t *testing.T) {
	store := mustOpenStore(t)
	ctx := context.Background()

	manifest := sampleManifest("ep-replace")
	if err := store.RecordRun(ctx, manifest); err != nil {
		t.Fatalf("first RecordRun failed: %v", err)
	}

	manifest.Records[1].Status = pipeline.StatusSucceeded
	manifest.Records[1].Message = ""
	manifest.Status = pipeline.RunSucceeded
	if err := store.RecordRun(ctx, manifest); err != nil {
		t.Fatalf("second RecordRun failed: %v", err)
	}

	sess, err := store.ByEpisode(ctx, "ep-replace")
	if err != nil {
		t.Fatalf("ByEpisode failed: %v", err)
	}
	if sess.Status != string(pipeline.RunSucceeded) {
		t.Fatalf("status = %s after retry", sess.Status)
	}

	records, err := store.StageRecords(ctx, "ep-replace")
	if err != nil {
		t.Fatalf("StageRecords failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records after replace, want 2", len(records))
	}
	if records[1].Status != string(pipeline.StatusSucceeded) || records[1].Message != "" {
		t.Fatalf("record[1] = %+v", records[1])
	}
}

func TestRecordEventCreatesSessionRow(t *testing.T) {
	store := mustOpenStore(t)
	ctx := context.Background()

	events := []pipeline.Event{
		{EpisodeID: "ep-events", Stage: 1, Index: 1, TotalStages: 2, Label: "Media Extraction", Status: pipeline.StatusRunning},
		{EpisodeID: "ep-events", Stage: 1, Index: 1, TotalStages: 2, Label: "Media Extraction", Status: pipeline.StatusSucceeded},
		{EpisodeID: "ep-events", Stage: 2, Index: 2, TotalStages: 2, Label: "Transcript Generation", Status: pipeline.StatusFailed, Message: "boom"},
	}
	for _, event := range events {
		if err := store.RecordEvent(ctx, event); err != nil {
			t.Fatalf("RecordEvent failed: %v", err)
		}
	}

	sess, err := store.ByEpisode(ctx, "ep-events")
	if err != nil {
		t.Fatalf("ByEpisode failed: %v", err)
	}
	if sess == nil || sess.Status != "running" {
		t.Fatalf("session = %+v", sess)
	}

	stored, err := store.Events(ctx, "ep-events")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("got %d events, want 3", len(stored))
	}
	if stored[0].Status != string(pipeline.StatusRunning) {
		t.Fatalf("events out of order: %+v", stored[0])
	}
	if stored[2].Message != "boom" {
		t.Fatalf("event message = %q", stored[2].Message)
	}
}

func TestRecentOrdersByUpdate(t *testing.T) {
	store := mustOpenStore(t)
	ctx := context.Background()

	if err := store.RecordRun(ctx, sampleManifest("ep-old")); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := store.RecordRun(ctx, sampleManifest("ep-new")); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	sessions, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].EpisodeID != "ep-new" {
		t.Fatalf("newest first, got %s", sessions[0].EpisodeID)
	}
}

func TestPruneRemovesOldSessions(t *testing.T) {
	store := mustOpenStore(t)
	ctx := context.Background()

	if err := store.RecordRun(ctx, sampleManifest("ep-prune")); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	removed, err := store.Prune(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("pruned %d sessions, want 1", removed)
	}
	sess, err := store.ByEpisode(ctx, "ep-prune")
	if err != nil {
		t.Fatalf("ByEpisode failed: %v", err)
	}
	if sess != nil {
		t.Fatal("session should be gone after prune")
	}
}

func TestRecorderImplementsReporter(t *testing.T) {
	store := mustOpenStore(t)
	ctx := context.Background()

	recorder := session.NewRecorder(store, logging.NewNop())
	recorder.StageProgress(ctx, pipeline.Event{
		EpisodeID: "ep-recorder", Stage: 1, Index: 1, TotalStages: 1,
		Label: "Media Extraction", Status: pipeline.StatusRunning,
	})
	recorder.RunFinished(ctx, &pipeline.Manifest{
		EpisodeID: "ep-recorder",
		Root:      "/tmp/ep-recorder",
		Requested: []int{1},
		Records: []*pipeline.StageRecord{
			{Stage: 1, Label: "Media Extraction", Status: pipeline.StatusSucceeded},
		},
		Status: pipeline.RunSucceeded,
	})

	sess, err := store.ByEpisode(ctx, "ep-recorder")
	if err != nil {
		t.Fatalf("ByEpisode failed: %v", err)
	}
	if sess == nil || sess.Status != string(pipeline.RunSucceeded) {
		t.Fatalf("session = %+v", sess)
	}
}
