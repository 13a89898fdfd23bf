package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"recap/internal/services"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestConsoleHandlerOutput(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger = NewComponentLogger(logger, "controller")
	logger.Info("stage started", String("stage", "analysis"), Int("stage_number", 3))

	line := buf.String()
	for _, want := range []string{"INFO", "controller: stage started", "stage=analysis", "stage_number=3"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Info("msg", String("label", "Media Extraction"))
	if !strings.Contains(buf.String(), `label="Media Extraction"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	base := slog.New(newConsoleHandler(&buf, lvl))

	ctx := services.WithEpisodeID(context.Background(), "ep-42")
	ctx = services.WithStage(ctx, "voiceover")

	WithContext(ctx, base).Info("running")
	line := buf.String()
	if !strings.Contains(line, "episode_id=ep-42") || !strings.Contains(line, "stage=voiceover") {
		t.Fatalf("context fields missing: %q", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatal("info record should have been filtered")
	}
	if !strings.Contains(out, "visible") {
		t.Fatal("warn record should have been written")
	}
}
