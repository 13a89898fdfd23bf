package pipeline

import "fmt"

// Episode is the per-run bookkeeping value the controller threads through its
// call chain. It lives in memory for the duration of one run; the episode
// directory on disk is the durable record.
type Episode struct {
	// ID identifies this run for progress reporting.
	ID string
	// Root is the episode working directory. All stage artifacts live under it.
	Root string
	// Source is the origin URL or an empty string when resuming an existing root.
	Source string

	outputs map[int]Result
}

// NewEpisode builds an episode context.
func NewEpisode(id, root, source string) *Episode {
	return &Episode{
		ID:      id,
		Root:    root,
		Source:  source,
		outputs: make(map[int]Result),
	}
}

// SetOutput records a stage's result.
func (e *Episode) SetOutput(stage int, result Result) {
	e.outputs[stage] = result
}

// Output returns the recorded result for a stage.
func (e *Episode) Output(stage int) (Result, bool) {
	result, ok := e.outputs[stage]
	return result, ok
}

// OutputMap returns a copy of the stage-to-result mapping.
func (e *Episode) OutputMap() map[int]Result {
	cp := make(map[int]Result, len(e.outputs))
	for n, r := range e.outputs {
		cp[n] = r
	}
	return cp
}

// Inputs is the restricted view of predecessor outputs handed to a stage
// function. A stage can only see outputs of its declared predecessors.
type Inputs struct {
	outputs map[int]Result
}

// NewInputs builds an input view from explicit predecessor outputs. The
// controller constructs these itself; the constructor exists for callers
// driving stage functions directly.
func NewInputs(outputs map[int]Result) Inputs {
	cp := make(map[int]Result, len(outputs))
	for n, r := range outputs {
		cp[n] = r
	}
	return Inputs{outputs: cp}
}

// Result returns the output of a predecessor stage.
func (in Inputs) Result(stage int) (Result, bool) {
	r, ok := in.outputs[stage]
	return r, ok
}

// Media returns the media extraction output or an error when absent.
func (in Inputs) Media() (*MediaResult, error) {
	return inputAs[*MediaResult](in, StageMediaExtraction)
}

// Transcript returns the transcript generation output or an error when absent.
func (in Inputs) Transcript() (*TranscriptResult, error) {
	return inputAs[*TranscriptResult](in, StageTranscription)
}

// Analysis returns the content analysis output or an error when absent.
func (in Inputs) Analysis() (*AnalysisResult, error) {
	return inputAs[*AnalysisResult](in, StageContentAnalysis)
}

// Script returns the narrative generation output or an error when absent.
func (in Inputs) Script() (*ScriptResult, error) {
	return inputAs[*ScriptResult](in, StageNarrativeGeneration)
}

// Narration returns the audio generation output or an error when absent.
func (in Inputs) Narration() (*NarrationResult, error) {
	return inputAs[*NarrationResult](in, StageAudioGeneration)
}

// Clips returns the video clipping output or an error when absent.
func (in Inputs) Clips() (*ClipResult, error) {
	return inputAs[*ClipResult](in, StageVideoClipping)
}

func inputAs[T Result](in Inputs, stage int) (T, error) {
	var zero T
	raw, ok := in.outputs[stage]
	if !ok {
		desc, _ := DescriptorByNumber(stage)
		return zero, fmt.Errorf("missing %s output", desc.Name)
	}
	typed, ok := raw.(T)
	if !ok {
		desc, _ := DescriptorByNumber(stage)
		return zero, fmt.Errorf("unexpected %s output type %T", desc.Name, raw)
	}
	return typed, nil
}
