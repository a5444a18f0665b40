// Package pipeline contains the task model, the in-memory task store and the
// coordinator that drives submitted media files through extraction,
// transcription and segmentation.
package pipeline

import "time"

// Status is the lifecycle state of a task.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Sentence is one transcript line with word-level derived timing.
type Sentence struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is one highlight candidate produced by segmentation. Times are in
// seconds from the start of the source file.
type Segment struct {
	Start           float64  `json:"start"`
	End             float64  `json:"end"`
	Summary         string   `json:"summary"`
	Tags            []string `json:"tags,omitempty"`
	WordCount       int      `json:"word_count"`
	RelevanceScore  float64  `json:"relevance_score"`
	EngagementScore float64  `json:"engagement_score"`
	CompositeScore  float64  `json:"composite_score"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// FileResult is the per-file output of a completed task. Segments are present
// in two orderings so callers never have to re-sort: ranked by composite score
// and chronological. Failed tasks carry an error on the task instead; results
// only exist on completion.
type FileResult struct {
	Filename   string     `json:"filename"`
	Filepath   string     `json:"filepath"`
	Language   string     `json:"language,omitempty"`
	Transcript []Sentence `json:"transcript,omitempty"`
	Ranked     []Segment  `json:"ranked_segments"`
	Timeline   []Segment  `json:"timeline_segments"`
}

// Task is one unit of pipeline work covering one or more input files.
type Task struct {
	ID        string   `json:"id"`
	Inputs    []string `json:"inputs"`
	LLMModel  string   `json:"llm_model"`
	Prompt    string   `json:"prompt,omitempty"`
	ModelSize string   `json:"model_size,omitempty"`
	Status    Status   `json:"status"`
	// Progress is a whole percentage, 0 through 100. Clients render it
	// directly; it is part of the API contract.
	Progress        int          `json:"progress"`
	ProgressMessage string       `json:"progress_message,omitempty"`
	Results         []FileResult `json:"results,omitempty"`
	Error           *PipeError   `json:"error,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	LastAccessedAt  time.Time    `json:"-"`
}
