// Package segment turns transcripts into scored highlight segments. It builds
// the generation prompt, parses model output with progressively looser
// strategies, and normalizes and merges the resulting segments.
package segment

import (
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/clipforge/clipforge/internal/pipeline"
)

const systemPrompt = `You are a video editing assistant. You receive a timestamped transcript and identify the segments most worth clipping.

Rules:
- Use only timestamps that appear in the transcript.
- Each segment needs a one or two sentence summary and a few topical tags.
- Score relevance and engagement from 1 to 10.
- Respond with JSON only, no commentary.`

// BuildUserPrompt renders the transcript with timestamps and appends the
// caller's focus instructions when present.
func BuildUserPrompt(transcript []pipeline.Sentence, focus string) string {
	var b strings.Builder
	b.WriteString("Transcript:\n")
	for _, s := range transcript {
		fmt.Fprintf(&b, "[%.1f-%.1f] %s\n", s.Start, s.End, s.Text)
	}
	b.WriteString("\nIdentify the segments worth clipping and return them as JSON.")
	if focus != "" {
		b.WriteString("\nFocus: ")
		b.WriteString(focus)
	}
	return b.String()
}

// SegmentsSchema is the structured output schema: an object with a single
// "segments" array. Endpoints that honor it make the first parse attempt
// trivial.
func SegmentsSchema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"segments": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"start":            {Type: jsonschema.Number, Description: "Segment start in seconds"},
						"end":              {Type: jsonschema.Number, Description: "Segment end in seconds"},
						"summary":          {Type: jsonschema.String, Description: "One or two sentence summary"},
						"tags":             {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}},
						"word_count":       {Type: jsonschema.Integer},
						"relevance_score":  {Type: jsonschema.Number},
						"engagement_score": {Type: jsonschema.Number},
					},
					Required: []string{"start", "end", "summary", "tags", "word_count", "relevance_score", "engagement_score"},
				},
			},
		},
		Required: []string{"segments"},
	}
}
