// Package asr talks to the speech recognition and timestamp alignment
// services over HTTP.
package asr

import (
	"context"

	"github.com/clipforge/clipforge/internal/pipeline"
)

// TranscribeResult is the output of one transcription request.
type TranscribeResult struct {
	Language  string              `json:"language"`
	Sentences []pipeline.Sentence `json:"sentences"`
}

// Transcriber converts an audio file into timestamped sentences.
type Transcriber interface {
	// Transcribe processes the audio file at audioPath. modelSize selects the
	// recognition model ("tiny", "base", "small", ...); empty means the
	// service default.
	Transcribe(ctx context.Context, audioPath, modelSize string) (*TranscribeResult, error)

	// IsAvailable reports whether the backing service answers its health
	// endpoint.
	IsAvailable(ctx context.Context) bool
}

// Aligner refines sentence timestamps against the original audio.
type Aligner interface {
	Align(ctx context.Context, audioPath string, sentences []pipeline.Sentence) ([]pipeline.Sentence, error)
}
