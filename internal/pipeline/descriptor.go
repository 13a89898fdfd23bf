package pipeline

import "sort"

// Stage numbers. The pipeline is strictly ordered: each stage consumes
// artifacts produced by lower-numbered stages.
const (
	StageMediaExtraction     = 1
	StageTranscription       = 2
	StageContentAnalysis     = 3
	StageNarrativeGeneration = 4
	StageAudioGeneration     = 5
	StageVideoClipping       = 6
	StageVideoCompilation    = 7
)

// Descriptor identifies one pipeline stage: its position, the stages whose
// outputs it consumes, and the glob patterns (relative to an episode root)
// that prove the stage already completed.
type Descriptor struct {
	Number         int
	Name           string
	Label          string
	Predecessors   []int
	OutputPatterns []string
}

var descriptors = []Descriptor{
	{
		Number:         StageMediaExtraction,
		Name:           "extraction",
		Label:          "Media Extraction",
		OutputPatterns: []string{"media/video.*", "media/audio.*", "media/source.json"},
	},
	{
		Number:         StageTranscription,
		Name:           "transcription",
		Label:          "Transcript Generation",
		Predecessors:   []int{StageMediaExtraction},
		OutputPatterns: []string{"transcripts/transcript.json"},
	},
	{
		Number:         StageContentAnalysis,
		Name:           "analysis",
		Label:          "Content Analysis",
		Predecessors:   []int{StageTranscription},
		OutputPatterns: []string{"analysis/segments.json"},
	},
	{
		Number:         StageNarrativeGeneration,
		Name:           "narrative",
		Label:          "Narrative Generation",
		Predecessors:   []int{StageContentAnalysis},
		OutputPatterns: []string{"script/script.json"},
	},
	{
		Number:         StageAudioGeneration,
		Name:           "voiceover",
		Label:          "Audio Generation",
		Predecessors:   []int{StageNarrativeGeneration},
		OutputPatterns: []string{"narration/*.mp3", "narration/sections.json"},
	},
	{
		Number:         StageVideoClipping,
		Name:           "clipping",
		Label:          "Video Clipping",
		Predecessors:   []int{StageMediaExtraction, StageNarrativeGeneration},
		OutputPatterns: []string{"clips/*.mp4", "clips/clips.json"},
	},
	{
		Number:         StageVideoCompilation,
		Name:           "compilation",
		Label:          "Video Compilation",
		Predecessors:   []int{StageAudioGeneration, StageVideoClipping},
		OutputPatterns: []string{"final/final_video.mp4"},
	},
}

// TotalStages is the number of pipeline stages.
const TotalStages = 7

// Stages returns the ordered stage descriptor table.
func Stages() []Descriptor {
	cp := make([]Descriptor, len(descriptors))
	copy(cp, descriptors)
	return cp
}

// DescriptorByNumber returns the descriptor for a stage number.
func DescriptorByNumber(number int) (Descriptor, bool) {
	if number < StageMediaExtraction || number > StageVideoCompilation {
		return Descriptor{}, false
	}
	return descriptors[number-1], true
}

// PredecessorClosure returns the transitive predecessor set of a stage in
// ascending order, excluding the stage itself.
func PredecessorClosure(number int) []int {
	seen := make(map[int]struct{})
	var walk func(n int)
	walk = func(n int) {
		desc, ok := DescriptorByNumber(n)
		if !ok {
			return
		}
		for _, pred := range desc.Predecessors {
			if _, done := seen[pred]; done {
				continue
			}
			seen[pred] = struct{}{}
			walk(pred)
		}
	}
	walk(number)

	closure := make([]int, 0, len(seen))
	for n := range seen {
		closure = append(closure, n)
	}
	sort.Ints(closure)
	return closure
}

// normalizeStages sorts ascending and removes duplicates. Execution order is
// always ascending by stage number regardless of the caller's input order.
func normalizeStages(stages []int) []int {
	seen := make(map[int]struct{}, len(stages))
	out := make([]int, 0, len(stages))
	for _, n := range stages {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
