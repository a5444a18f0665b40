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
	"github.com/clipforge/clipforge/pkg/logger"
)

// HTTPTranscriber calls a speech recognition service that accepts multipart
// audio uploads on /transcribe.
type HTTPTranscriber struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTranscriber creates a transcriber client. timeout bounds one whole
// transcription request; long recordings need generous values.
func NewHTTPTranscriber(baseURL string, timeout time.Duration) *HTTPTranscriber {
	return &HTTPTranscriber{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Transcribe uploads the audio file and returns its timestamped sentences.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, audioPath, modelSize string) (*TranscribeResult, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, pipeline.NewInputError(fmt.Sprintf("cannot open audio file: %v", err))
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
	if modelSize != "" {
		if err := writer.WriteField("model_size", modelSize); err != nil {
			return nil, fmt.Errorf("failed to write form field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/transcribe", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, pipeline.NewASRUnavailableError("transcription service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, pipeline.NewASRHTTPError(
			fmt.Sprintf("transcription service returned %d: %s", resp.StatusCode, string(payload)), nil)
	}

	var result TranscribeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, pipeline.NewDataError("transcription response is not valid JSON", err)
	}

	logger.L().Debug("transcription complete",
		"file", filepath.Base(audioPath),
		"language", result.Language,
		"sentences", len(result.Sentences),
		"duration_ms", time.Since(start).Milliseconds())

	return &result, nil
}

// IsAvailable probes the service health endpoint.
func (t *HTTPTranscriber) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
