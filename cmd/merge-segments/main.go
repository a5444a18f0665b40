// merge-segments is an offline tool for reprocessing segmentation output. It
// reads raw model output (or an already parsed segment array) from a file or
// stdin, repairs and normalizes it, merges adjacent segments and prints the
// result as JSON, plain text or SRT cue markers.
//
// Usage:
//
//	merge-segments -in raw_output.txt -format srt
//	cat response.json | merge-segments -format text
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/segment"
)

func main() {
	inPath := flag.String("in", "-", "input file with raw model output, '-' for stdin")
	format := flag.String("format", "json", "output format: json, text or srt")
	span := flag.Float64("span", 0, "total media length in seconds, bounds segment extension (0 = unknown)")
	ranked := flag.Bool("ranked", false, "order output by composite score instead of start time")
	flag.Parse()

	if err := run(*inPath, *format, *span, *ranked); err != nil {
		fmt.Fprintf(os.Stderr, "merge-segments: %v\n", err)
		os.Exit(1)
	}
}

func run(inPath, format string, span float64, rankedOrder bool) error {
	raw, err := readInput(inPath)
	if err != nil {
		return err
	}

	segs, err := segment.Parse(string(raw))
	if err != nil {
		return fmt.Errorf("cannot recover segments from input: %w", err)
	}

	cfg := config.SegmentationConfig{
		FallbackSegments:   5,
		DefaultSpanSeconds: segment.DefaultSpanSeconds,
		GapToleranceSec:    3,
		MinDurationSec:     20,
		ExtendBeforeSec:    5,
		ExtendAfterSec:     10,
	}
	ranked, timeline := segment.Finalize(segs, cfg, span)

	out := timeline
	if rankedOrder {
		out = ranked
	}

	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "text":
		writeText(os.Stdout, out)
		return nil
	case "srt":
		writeSrt(os.Stdout, out)
		return nil
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeText(w io.Writer, segs []pipeline.Segment) {
	for _, s := range segs {
		fmt.Fprintf(w, "[%s --> %s] (%.1f) %s\n",
			formatTimestamp(s.Start), formatTimestamp(s.End), s.CompositeScore, s.Summary)
	}
}

func writeSrt(w io.Writer, segs []pipeline.Segment) {
	for i, s := range segs {
		fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			i+1, formatTimestampSrt(s.Start), formatTimestampSrt(s.End), s.Summary)
	}
}

// formatTimestamp renders seconds as HH:MM:SS.mmm.
func formatTimestamp(seconds float64) string {
	ms := int64(seconds * 1000)
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}

// formatTimestampSrt renders seconds as HH:MM:SS,mmm per the SRT spec.
func formatTimestampSrt(seconds float64) string {
	ms := int64(seconds * 1000)
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}
