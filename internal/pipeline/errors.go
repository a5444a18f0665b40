package pipeline

import (
	"fmt"
	"time"
)

// ErrorCode identifies a failure class for clients and logs.
type ErrorCode string

const (
	// ErrCodeInputInvalid marks requests that can never succeed as given.
	ErrCodeInputInvalid ErrorCode = "INPUT_INVALID"
	// ErrCodeASRUnavailable marks transcription service connection failures.
	ErrCodeASRUnavailable ErrorCode = "ASR_UNAVAILABLE"
	// ErrCodeASRHTTPError marks non-2xx responses from the transcription service.
	ErrCodeASRHTTPError ErrorCode = "ASR_HTTP_ERROR"
	// ErrCodeAlignFailed marks alignment service failures.
	ErrCodeAlignFailed ErrorCode = "ALIGN_FAILED"
	// ErrCodeLLMUnavailable marks generation failures after all retries.
	ErrCodeLLMUnavailable ErrorCode = "LLM_UNAVAILABLE"
	// ErrCodeNoCapacity marks accelerator wait timeouts.
	ErrCodeNoCapacity ErrorCode = "NO_CAPACITY"
	// ErrCodeFFmpegFailed marks media tool invocation failures.
	ErrCodeFFmpegFailed ErrorCode = "FFMPEG_FAILED"
	// ErrCodeDataInvalid marks malformed upstream payloads.
	ErrCodeDataInvalid ErrorCode = "DATA_INVALID"
)

// PipeError is the structured error recorded on failed tasks and returned to
// API clients. Cause retains the underlying error for logs; only Code and
// Message are serialized.
type PipeError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"-"`
}

func (e *PipeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PipeError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the failure class may succeed on a later attempt.
func (e *PipeError) Retryable() bool {
	switch e.Code {
	case ErrCodeASRUnavailable, ErrCodeLLMUnavailable, ErrCodeNoCapacity:
		return true
	default:
		return false
	}
}

func newError(code ErrorCode, message string, cause error) *PipeError {
	return &PipeError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewInputError creates an error for invalid caller input.
func NewInputError(message string) *PipeError {
	return newError(ErrCodeInputInvalid, message, nil)
}

// NewASRUnavailableError creates an error for unreachable transcription
// backends.
func NewASRUnavailableError(message string, cause error) *PipeError {
	return newError(ErrCodeASRUnavailable, message, cause)
}

// NewASRHTTPError creates an error for a transcription request the backend
// rejected.
func NewASRHTTPError(message string, cause error) *PipeError {
	return newError(ErrCodeASRHTTPError, message, cause)
}

// NewAlignError creates an error for alignment backend failures.
func NewAlignError(message string, cause error) *PipeError {
	return newError(ErrCodeAlignFailed, message, cause)
}

// NewLLMUnavailableError creates an error for generation failures.
func NewLLMUnavailableError(message string, cause error) *PipeError {
	return newError(ErrCodeLLMUnavailable, message, cause)
}

// NewNoCapacityError creates an error for accelerator wait timeouts.
func NewNoCapacityError(message string) *PipeError {
	return newError(ErrCodeNoCapacity, message, nil)
}

// NewFFmpegError creates an error for failed media tool invocations.
func NewFFmpegError(message string, cause error) *PipeError {
	return newError(ErrCodeFFmpegFailed, message, cause)
}

// NewDataError creates an error for malformed upstream payloads.
func NewDataError(message string, cause error) *PipeError {
	return newError(ErrCodeDataInvalid, message, cause)
}

// AsPipeError converts err to a *PipeError, wrapping unknown errors under the
// given fallback code.
func AsPipeError(err error, fallback ErrorCode) *PipeError {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*PipeError); ok {
		return pe
	}
	return newError(fallback, err.Error(), err)
}
