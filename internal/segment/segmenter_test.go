package segment

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/llm"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init(logger.Config{Level: "error"}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var testTranscript = []pipeline.Sentence{
	{Text: "Welcome to the show.", Start: 0, End: 4},
	{Text: "Today we cover release highlights.", Start: 4, End: 9},
	{Text: "Thanks for watching.", Start: 95, End: 100},
}

func TestSegmentSchemaStage(t *testing.T) {
	gen := &llm.MockGenerator{Responses: []string{
		`{"segments": [{"start": 0, "end": 30, "summary": "s", "tags": ["a"], "word_count": 12, "relevance_score": 8, "engagement_score": 7}]}`,
	}}
	s := NewSegmenter(gen, testSegCfg())

	res := s.Segment(context.Background(), testTranscript, "")
	assert.Equal(t, StageSchema, res.Stage)
	require.Len(t, res.Segments, 1)
	require.Len(t, gen.Calls, 1)
	assert.NotNil(t, gen.Calls[0].Schema, "first attempt must be schema constrained")
}

func TestSegmentRepairStage(t *testing.T) {
	gen := &llm.MockGenerator{Responses: []string{
		"```json\n[{\"start\": 0, \"end\": 30, \"summary\": \"fenced\"}]\n```",
	}}
	s := NewSegmenter(gen, testSegCfg())

	res := s.Segment(context.Background(), testTranscript, "")
	assert.Equal(t, StageRepair, res.Stage)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, "fenced", res.Segments[0].Summary)
	assert.Len(t, gen.Calls, 1, "repair reuses the first response, no second call")
}

func TestSegmentRetryStage(t *testing.T) {
	gen := &llm.MockGenerator{Responses: []string{
		"I'm sorry, I can't produce JSON right now.",
		`[{"start": 5, "end": 40, "summary": "second try"}]`,
	}}
	s := NewSegmenter(gen, testSegCfg())

	res := s.Segment(context.Background(), testTranscript, "")
	assert.Equal(t, StageRetry, res.Stage)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, "second try", res.Segments[0].Summary)
	require.Len(t, gen.Calls, 2)
	assert.Nil(t, gen.Calls[1].Schema, "retry must be unconstrained")
	assert.Contains(t, gen.Calls[1].User, "only a JSON array, starting with [",
		"retry asks explicitly for a bare array")
	assert.NotContains(t, gen.Calls[0].User, "only a JSON array",
		"first attempt relies on the schema instead")
}

func TestSegmentSyntheticOnGeneratorFailure(t *testing.T) {
	gen := &llm.MockGenerator{Err: errors.New("connection refused")}
	s := NewSegmenter(gen, testSegCfg())

	res := s.Segment(context.Background(), testTranscript, "")
	assert.Equal(t, StageSynthetic, res.Stage)
	require.Len(t, res.Segments, 5)
	assert.Equal(t, 100.0, res.Segments[4].End, "synthetic segments cover the transcript span")
}

func TestSegmentSyntheticDefaultSpan(t *testing.T) {
	gen := &llm.MockGenerator{Err: errors.New("connection refused")}
	s := NewSegmenter(gen, testSegCfg())

	res := s.Segment(context.Background(), nil, "")
	assert.Equal(t, StageSynthetic, res.Stage)
	require.Len(t, res.Segments, 5)
	assert.Equal(t, DefaultSpanSeconds, res.Segments[4].End)
}

func TestSegmentPromptIncludesFocus(t *testing.T) {
	gen := &llm.MockGenerator{Responses: []string{
		`{"segments": [{"start": 0, "end": 30, "summary": "s", "tags": [], "word_count": 1, "relevance_score": 5, "engagement_score": 5}]}`,
	}}
	s := NewSegmenter(gen, testSegCfg())

	s.Segment(context.Background(), testTranscript, "only product announcements")
	require.Len(t, gen.Calls, 1)
	assert.Contains(t, gen.Calls[0].User, "only product announcements")
	assert.Contains(t, gen.Calls[0].User, "[0.0-4.0] Welcome to the show.")
}
