package segment

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/clipforge/clipforge/internal/pipeline"
)

// DefaultSpanSeconds is assumed when the transcript carries no usable timing
// and synthetic segments must still cover something.
const DefaultSpanSeconds = 300.0

var (
	reasoningTagRe = regexp.MustCompile(`(?s)<(think|thinking|reasoning|reflection)>.*?</(think|thinking|reasoning|reflection)>`)
	codeFenceRe    = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

	// arrayFields are the wrapper keys models use when they return an object
	// instead of a bare array.
	arrayFields = []string{"segments", "results", "items", "data"}
)

// CleanResponse strips reasoning tags and code fences from raw model output.
func CleanResponse(text string) string {
	text = reasoningTagRe.ReplaceAllString(text, "")
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	return strings.TrimSpace(text)
}

// extractArray pulls a JSON array out of cleaned model output. It tries, in
// order: the text between the first '[' and last ']', a known array field
// inside an object, and finally wrapping a single object into an array.
func extractArray(text string) (string, error) {
	if start := strings.Index(text, "["); start >= 0 {
		if end := strings.LastIndex(text, "]"); end > start {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", errors.New("no JSON payload found in response")
	}
	object := text[start : end+1]

	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(object), &m); err != nil {
		return "", fmt.Errorf("response object is not valid JSON: %w", err)
	}
	for _, field := range arrayFields {
		if raw, ok := m[field]; ok && len(raw) > 0 && raw[0] == '[' {
			return string(raw), nil
		}
	}
	// A lone segment object still counts.
	return "[" + object + "]", nil
}

// Parse recovers segments from arbitrary model output. It cleans the text,
// extracts a JSON array and decodes it, dropping entries without a usable
// time range.
func Parse(text string) ([]pipeline.Segment, error) {
	arr, err := extractArray(CleanResponse(text))
	if err != nil {
		return nil, err
	}
	var raw []map[string]any
	if err := json.Unmarshal([]byte(arr), &raw); err != nil {
		return nil, fmt.Errorf("segment array is not valid JSON: %w", err)
	}
	return decodeRaw(raw)
}

// ParseSchema decodes schema-constrained output: an object whose "segments"
// field holds the array.
func ParseSchema(text string) ([]pipeline.Segment, error) {
	var envelope struct {
		Segments []map[string]any `json:"segments"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return nil, fmt.Errorf("structured response is not valid JSON: %w", err)
	}
	return decodeRaw(envelope.Segments)
}

func decodeRaw(raw []map[string]any) ([]pipeline.Segment, error) {
	segs := make([]pipeline.Segment, 0, len(raw))
	for _, entry := range raw {
		start, okStart := pickFloat(entry, "start", "start_time", "begin")
		end, okEnd := pickFloat(entry, "end", "end_time")
		if !okStart || !okEnd || start < 0 || end <= start {
			continue
		}
		seg := pipeline.Segment{Start: start, End: end}
		seg.Summary = pickString(entry, "summary", "description", "text")
		if seg.Summary == "" {
			seg.Summary = fmt.Sprintf("Segment %d", len(segs)+1)
		}
		seg.Tags = pickStrings(entry, "tags", "keywords")
		if len(seg.Tags) == 0 {
			seg.Tags = []string{"general"}
		}
		if wc, ok := pickFloat(entry, "word_count", "wordCount"); ok && wc > 0 {
			seg.WordCount = int(wc)
		}
		seg.RelevanceScore, _ = pickFloat(entry, "relevance_score", "relevance")
		seg.EngagementScore, _ = pickFloat(entry, "engagement_score", "engagement")
		segs = append(segs, seg)
	}
	if len(segs) == 0 {
		return nil, errors.New("no valid segments in response")
	}
	return segs, nil
}

func pickFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func pickString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func pickStrings(m map[string]any, keys ...string) []string {
	for _, k := range keys {
		arr, ok := m[k].([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// Synthesize produces count equal-length segments covering span seconds. It
// is the last resort when every generation attempt failed; the neutral scores
// keep downstream ranking stable.
func Synthesize(span float64, count int) []pipeline.Segment {
	if span <= 0 {
		span = DefaultSpanSeconds
	}
	if count <= 0 {
		count = 5
	}
	width := span / float64(count)
	segs := make([]pipeline.Segment, count)
	for i := range segs {
		segs[i] = pipeline.Segment{
			Start:           float64(i) * width,
			End:             float64(i+1) * width,
			Summary:         fmt.Sprintf("Part %d of %d", i+1, count),
			RelevanceScore:  5.0,
			EngagementScore: 5.0,
		}
	}
	return segs
}
