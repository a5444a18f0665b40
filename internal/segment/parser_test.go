package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanResponseStripsReasoningAndFences(t *testing.T) {
	raw := "<think>The user wants clips, let me look at the timestamps.</think>\n" +
		"```json\n[{\"start\": 0, \"end\": 5}]\n```"
	assert.Equal(t, `[{"start": 0, "end": 5}]`, CleanResponse(raw))
}

func TestParseFencedArray(t *testing.T) {
	raw := "Here are the segments:\n```json\n" +
		`[{"start": 0, "end": 5, "summary": "x", "tags": ["a"], "word_count": 3, "relevance_score": 8, "engagement_score": 7}]` +
		"\n```"

	segs, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 0.0, segs[0].Start)
	assert.Equal(t, 5.0, segs[0].End)
	assert.Equal(t, "x", segs[0].Summary)
	assert.Equal(t, []string{"a"}, segs[0].Tags)
	assert.Equal(t, 3, segs[0].WordCount)
	assert.Equal(t, 8.0, segs[0].RelevanceScore)
}

func TestParseArrayEmbeddedInProse(t *testing.T) {
	raw := `Sure! Based on the transcript I found: [{"start": 10, "end": 40, "summary": "demo"}] Hope that helps.`

	segs, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 10.0, segs[0].Start)
}

func TestParseObjectWithKnownArrayField(t *testing.T) {
	for _, field := range []string{"segments", "results", "items", "data"} {
		raw := `{"` + field + `": [{"start": 1, "end": 9, "summary": "s"}]}`
		segs, err := Parse(raw)
		require.NoError(t, err, "field %q", field)
		assert.Len(t, segs, 1, "field %q", field)
	}
}

func TestParseWrapsSingleObject(t *testing.T) {
	segs, err := Parse(`{"start": 2, "end": 8, "summary": "only one"}`)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "only one", segs[0].Summary)
}

func TestParseDropsInvalidEntries(t *testing.T) {
	raw := `[
		{"start": 0, "end": 10, "summary": "good"},
		{"start": 20, "end": 20, "summary": "zero length"},
		{"start": 30, "end": 25, "summary": "reversed"},
		{"summary": "no times"},
		{"start": -5, "end": 10, "summary": "negative start"},
		{"start": "40", "end": "55.5", "summary": "string times"}
	]`

	segs, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "good", segs[0].Summary)
	assert.Equal(t, 55.5, segs[1].End)
}

func TestParseAliasFieldNames(t *testing.T) {
	raw := `[{"start_time": 1, "end_time": 30, "description": "aliased", "keywords": ["k"], "relevance": 7, "engagement": 4}]`

	segs, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "aliased", segs[0].Summary)
	assert.Equal(t, []string{"k"}, segs[0].Tags)
	assert.Equal(t, 7.0, segs[0].RelevanceScore)
	assert.Equal(t, 4.0, segs[0].EngagementScore)
}

func TestParseFillsMissingSummaryAndTags(t *testing.T) {
	raw := `[
		{"start": 0, "end": 10},
		{"start": 20, "end": 30, "summary": "named", "tags": ["topic"]},
		{"start": 40, "end": 50}
	]`

	segs, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, segs, 3)
	assert.Equal(t, "Segment 1", segs[0].Summary)
	assert.Equal(t, []string{"general"}, segs[0].Tags)
	assert.Equal(t, "named", segs[1].Summary)
	assert.Equal(t, []string{"topic"}, segs[1].Tags)
	assert.Equal(t, "Segment 3", segs[2].Summary)
}

func TestParseRejectsUnusableText(t *testing.T) {
	_, err := Parse("I could not find any interesting segments, sorry.")
	assert.Error(t, err)

	_, err = Parse(`[{"start": 5, "end": 5}]`)
	assert.Error(t, err, "all entries invalid must fail, not return empty")
}

func TestParseSchema(t *testing.T) {
	raw := `{"segments": [{"start": 0, "end": 12, "summary": "s", "tags": [], "word_count": 10, "relevance_score": 6, "engagement_score": 5}]}`

	segs, err := ParseSchema(raw)
	require.NoError(t, err)
	require.Len(t, segs, 1)

	_, err = ParseSchema(`[{"start": 0, "end": 12}]`)
	assert.Error(t, err, "bare array is not schema-constrained output")
}

func TestSynthesizeCoversSpan(t *testing.T) {
	segs := Synthesize(100, 5)
	require.Len(t, segs, 5)
	assert.Equal(t, 0.0, segs[0].Start)
	assert.Equal(t, 20.0, segs[0].End)
	assert.Equal(t, 80.0, segs[4].Start)
	assert.Equal(t, 100.0, segs[4].End)
	for i := 1; i < len(segs); i++ {
		assert.Equal(t, segs[i-1].End, segs[i].Start)
	}
}

func TestSynthesizeDefaultSpan(t *testing.T) {
	segs := Synthesize(0, 5)
	require.Len(t, segs, 5)
	assert.Equal(t, DefaultSpanSeconds, segs[4].End)
	assert.Equal(t, 5.0, segs[0].RelevanceScore)
	assert.Equal(t, 5.0, segs[0].EngagementScore)
}
