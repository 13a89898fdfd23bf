package main

import (
	"fmt"
	"log/slog"

	"recap/internal/analysis"
	"recap/internal/clipping"
	"recap/internal/compilation"
	"recap/internal/config"
	"recap/internal/extraction"
	"recap/internal/narrative"
	"recap/internal/notifications"
	"recap/internal/pipeline"
	"recap/internal/services/gemini"
	"recap/internal/session"
	"recap/internal/transcription"
	"recap/internal/voiceover"
)

// pipelineEnv bundles a fully wired controller with the resources that must
// outlive the run.
type pipelineEnv struct {
	controller *pipeline.Controller
	store      *session.Store
}

func (e *pipelineEnv) Close() error {
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// buildPipeline wires every stage adapter and reporter against the loaded
// configuration. extra reporters (e.g. console progress) are appended to the
// durable session recorder and the ntfy push reporter.
func buildPipeline(cfg *config.Config, logger *slog.Logger, extra ...pipeline.Reporter) (*pipelineEnv, error) {
	geminiClient, err := gemini.NewClient(cfg.Gemini, logger)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	store, err := session.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	reporters := pipeline.FanoutReporter{
		session.NewRecorder(store, logger),
		notifications.NewReporter(notifications.NewService(cfg), logger),
	}
	for _, r := range extra {
		if r != nil {
			reporters = append(reporters, r)
		}
	}

	controller := pipeline.NewController(cfg.Paths.WorkDir, logger,
		pipeline.WithReporter(reporters),
		pipeline.WithStageFuncs(map[int]pipeline.StageFunc{
			pipeline.StageMediaExtraction:     extraction.NewService(cfg.Downloader, logger).StageFunc(),
			pipeline.StageTranscription:       transcription.NewService(cfg.Transcriber, logger).StageFunc(),
			pipeline.StageContentAnalysis:     analysis.NewService(cfg.Gemini, geminiClient, logger).StageFunc(),
			pipeline.StageNarrativeGeneration: narrative.NewService(cfg.Gemini, geminiClient, logger).StageFunc(),
			pipeline.StageAudioGeneration:     voiceover.NewService(cfg.ElevenLabs, logger).StageFunc(),
			pipeline.StageVideoClipping:       clipping.NewService(cfg.FFmpeg, logger).StageFunc(),
			pipeline.StageVideoCompilation:    compilation.NewService(cfg.FFmpeg, logger).StageFunc(),
		}),
	)

	return &pipelineEnv{controller: controller, store: store}, nil
}
