package asr

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/clipforge/clipforge/internal/pipeline"
)

// MockTranscriber is a Transcriber for tests and offline development. It
// never fails and fabricates a short transcript derived from the file name.
type MockTranscriber struct{}

func NewMockTranscriber() *MockTranscriber {
	return &MockTranscriber{}
}

func (m *MockTranscriber) Transcribe(_ context.Context, audioPath, _ string) (*TranscribeResult, error) {
	name := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return &TranscribeResult{
		Language: "en",
		Sentences: []pipeline.Sentence{
			{Text: "This is a mock transcription of " + name + ".", Start: 0, End: 5},
			{Text: "It stands in for the real recognition service.", Start: 5, End: 10},
			{Text: "Timing values are fabricated but well formed.", Start: 10, End: 15},
		},
	}, nil
}

func (m *MockTranscriber) IsAvailable(context.Context) bool {
	return true
}

// MockAligner is an Aligner for tests. It returns the input unchanged unless
// Err is set.
type MockAligner struct {
	Err error
}

func (m *MockAligner) Align(_ context.Context, _ string, sentences []pipeline.Sentence) ([]pipeline.Sentence, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return sentences, nil
}
