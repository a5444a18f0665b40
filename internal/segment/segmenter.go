package segment

import (
	"context"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/llm"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/pkg/logger"
	"github.com/clipforge/clipforge/pkg/metrics"
)

// retryInstruction is appended to the unconstrained retry so models without
// structured output support still emit a bare array.
const retryInstruction = "\n\nRespond with only a JSON array, starting with [ and ending with ]. No explanations, no code fences, no wrapper object."

// Parse stages, in the order they are attempted.
const (
	StageSchema    = "schema"
	StageRepair    = "repair"
	StageRetry     = "retry"
	StageSynthetic = "synthetic"
)

// Segmenter drives segment generation: a schema-constrained request, lenient
// re-parsing of the same output, one unconstrained retry, and finally
// synthesized equal-length segments. It never fails outright; a transcript
// always yields some segmentation.
type Segmenter struct {
	gen llm.Generator
	cfg config.SegmentationConfig
}

func NewSegmenter(gen llm.Generator, cfg config.SegmentationConfig) *Segmenter {
	return &Segmenter{gen: gen, cfg: cfg}
}

// Result carries the recovered segments and the parse stage that produced
// them.
type Result struct {
	Segments []pipeline.Segment
	Stage    string
}

// Segment generates highlight segments for a transcript. focus is an optional
// caller instruction narrowing what to look for.
func (s *Segmenter) Segment(ctx context.Context, transcript []pipeline.Sentence, focus string) Result {
	user := BuildUserPrompt(transcript, focus)

	text, err := s.gen.Generate(ctx, llm.Request{
		System:     systemPrompt,
		User:       user,
		Schema:     SegmentsSchema(),
		SchemaName: "segments",
	})
	if err == nil {
		if segs, perr := ParseSchema(text); perr == nil {
			return s.accept(segs, StageSchema)
		}
		if segs, perr := Parse(text); perr == nil {
			logger.L().Warn("structured segmentation output needed repair")
			return s.accept(segs, StageRepair)
		}
		logger.L().Warn("structured segmentation output unusable, retrying unconstrained")
	} else {
		logger.L().Warn("structured segmentation request failed, retrying unconstrained", "error", err)
	}

	text, err = s.gen.Generate(ctx, llm.Request{System: systemPrompt, User: user + retryInstruction})
	if err == nil {
		if segs, perr := Parse(text); perr == nil {
			return s.accept(segs, StageRetry)
		}
		logger.L().Warn("unconstrained segmentation output unusable, synthesizing")
	} else {
		logger.L().Warn("unconstrained segmentation request failed, synthesizing", "error", err)
	}

	return s.accept(Synthesize(transcriptSpan(transcript), s.cfg.FallbackSegments), StageSynthetic)
}

func (s *Segmenter) accept(segs []pipeline.Segment, stage string) Result {
	metrics.RecordParserStage(stage)
	return Result{Segments: segs, Stage: stage}
}

// transcriptSpan returns the end time of the last sentence, or zero for an
// empty or untimed transcript.
func transcriptSpan(transcript []pipeline.Sentence) float64 {
	var span float64
	for _, s := range transcript {
		if s.End > span {
			span = s.End
		}
	}
	return span
}
