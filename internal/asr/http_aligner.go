package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/clipforge/clipforge/internal/pipeline"
)

// HTTPAligner calls a forced alignment service that refines sentence
// timestamps against the audio. Alignment is an accuracy improvement, not a
// requirement; callers fall back to the unaligned sentences when it fails.
type HTTPAligner struct {
	baseURL string
	client  *http.Client
}

func NewHTTPAligner(baseURL string, timeout time.Duration) *HTTPAligner {
	return &HTTPAligner{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Align uploads the audio together with the sentences and returns the
// sentences with corrected timestamps.
func (a *HTTPAligner) Align(ctx context.Context, audioPath string, sentences []pipeline.Sentence) ([]pipeline.Sentence, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, pipeline.NewAlignError("cannot open audio file", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	sentenceJSON, err := json.Marshal(sentences)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sentences: %w", err)
	}
	if err := writer.WriteField("sentences", string(sentenceJSON)); err != nil {
		return nil, fmt.Errorf("failed to write form field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/align", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, pipeline.NewAlignError("alignment service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, pipeline.NewAlignError(
			fmt.Sprintf("alignment service returned %d: %s", resp.StatusCode, string(payload)), nil)
	}

	var aligned struct {
		Sentences []pipeline.Sentence `json:"sentences"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&aligned); err != nil {
		return nil, pipeline.NewAlignError("alignment response is not valid JSON", err)
	}
	if len(aligned.Sentences) == 0 {
		return nil, pipeline.NewAlignError("alignment returned no sentences", nil)
	}
	return aligned.Sentences, nil
}
