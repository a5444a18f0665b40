// Package coordinator owns task execution: it queues submitted tasks, drives
// each file through audio extraction, transcription, alignment and
// segmentation, and records progress and results in the task store.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/accel"
	"github.com/clipforge/clipforge/internal/asr"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/media"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/segment"
	"github.com/clipforge/clipforge/pkg/logger"
	"github.com/clipforge/clipforge/pkg/metrics"
)

// Progress milestones in percent. Extraction and transcription cover the
// whole task; the remaining span is divided across files as each one is
// segmented.
const (
	bandExtracted   = 10
	bandTranscribed = 60
	bandSegmented   = 80
	bandFileDone    = 100
)

// AudioExtractor is the slice of the media processor the coordinator needs.
// *media.Processor satisfies it.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, inputPath string) (string, error)
	Cleanup(path string)
}

var _ AudioExtractor = (*media.Processor)(nil)

// Coordinator runs tasks one at a time in submission order. Single-task
// execution keeps accelerator contention predictable; concurrency lives
// inside a task, across its files.
type Coordinator struct {
	cfg         *config.Config
	store       *pipeline.TaskStore
	media       AudioExtractor
	transcriber asr.Transcriber
	aligner     asr.Aligner
	pool        *accel.Pool
	segmenters  map[string]*segment.Segmenter

	queue chan string
}

// Options bundles the coordinator's collaborators.
type Options struct {
	Config      *config.Config
	Store       *pipeline.TaskStore
	Media       AudioExtractor
	Transcriber asr.Transcriber
	Aligner     asr.Aligner
	Pool        *accel.Pool
	// Segmenters maps the configured model label to its segmenter.
	Segmenters map[string]*segment.Segmenter
}

func New(opts Options) *Coordinator {
	return &Coordinator{
		cfg:         opts.Config,
		store:       opts.Store,
		media:       opts.Media,
		transcriber: opts.Transcriber,
		aligner:     opts.Aligner,
		pool:        opts.Pool,
		segmenters:  opts.Segmenters,
		queue:       make(chan string, opts.Config.Store.MaxEntries),
	}
}

// Submit validates the request, stores a queued task and enqueues it. It
// returns the new task ID.
func (c *Coordinator) Submit(inputs []string, llmModel, prompt, modelSize string) (string, error) {
	if len(inputs) == 0 {
		return "", pipeline.NewInputError("at least one input file is required")
	}
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return "", pipeline.NewInputError(fmt.Sprintf("input file not found: %s", in))
		}
		if info.IsDir() {
			return "", pipeline.NewInputError(fmt.Sprintf("input is a directory: %s", in))
		}
	}
	if llmModel == "" {
		llmModel = c.cfg.LLM.Models[0].Label
	}
	if _, ok := c.segmenters[llmModel]; !ok {
		if _, err := c.cfg.ModelByLabel(llmModel); err != nil {
			return "", pipeline.NewInputError(err.Error())
		}
		return "", pipeline.NewInputError(fmt.Sprintf("LLM model not initialized: %s", llmModel))
	}

	task := &pipeline.Task{
		ID:        uuid.NewString(),
		Inputs:    inputs,
		LLMModel:  llmModel,
		Prompt:    prompt,
		ModelSize: modelSize,
		Status:    pipeline.StatusQueued,
		CreatedAt: time.Now(),
	}
	c.store.Put(task)

	select {
	case c.queue <- task.ID:
	default:
		c.store.Delete(task.ID)
		return "", pipeline.NewNoCapacityError("task queue is full")
	}

	logger.L().Info("task submitted", "task_id", task.ID, "files", len(inputs), "llm_model", llmModel)
	return task.ID, nil
}

// GetTask returns a snapshot of the task. Reading refreshes the task's
// access time, so polling clients keep their task alive.
func (c *Coordinator) GetTask(id string) (pipeline.Task, bool) {
	return c.store.Get(id)
}

// QueueSize returns the number of tasks waiting to start.
func (c *Coordinator) QueueSize() int {
	return len(c.queue)
}

// Workers returns a snapshot of the accelerator pool.
func (c *Coordinator) Workers() []accel.WorkerStatus {
	return c.pool.Status()
}

// Run processes queued tasks in FIFO order until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-c.queue:
			c.process(ctx, id)
		}
	}
}

func (c *Coordinator) process(ctx context.Context, id string) {
	task, ok := c.store.Get(id)
	if !ok {
		// Evicted while queued; nothing to do.
		logger.L().Warn("queued task no longer in store", "task_id", id)
		return
	}

	c.store.Update(id, func(t *pipeline.Task) {
		t.Status = pipeline.StatusProcessing
		t.ProgressMessage = "processing started"
	})

	results, perr := c.runTask(ctx, &task)
	if perr != nil {
		c.store.Update(id, func(t *pipeline.Task) {
			t.Status = pipeline.StatusFailed
			t.Error = perr
			t.ProgressMessage = perr.Message
		})
		metrics.RecordTask("failed")
		logger.L().Error("task failed", "task_id", id, "error", perr)
		return
	}

	c.store.Update(id, func(t *pipeline.Task) {
		t.Status = pipeline.StatusCompleted
		t.Results = results
		t.Progress = 100
		t.ProgressMessage = "completed"
	})
	metrics.RecordTask("completed")
	logger.L().Info("task completed", "task_id", id, "files", len(results))
}

// runTask drives every input through extraction, transcription and
// segmentation. Any per-file error aborts the whole task; the coordinator
// moves on to the next queued task. Derived audio is removed on every exit
// path.
func (c *Coordinator) runTask(ctx context.Context, task *pipeline.Task) ([]pipeline.FileResult, *pipeline.PipeError) {
	n := len(task.Inputs)

	audioPaths := make([]string, 0, n)
	defer func() {
		for _, p := range audioPaths {
			c.media.Cleanup(p)
		}
	}()

	for i, input := range task.Inputs {
		c.setProgress(task.ID, (i+1)*bandExtracted/n, "extracting audio from "+filepath.Base(input))
		extractStart := time.Now()
		audioPath, err := c.media.ExtractAudio(ctx, input)
		if err != nil {
			return nil, pipeline.AsPipeError(err, pipeline.ErrCodeFFmpegFailed)
		}
		audioPaths = append(audioPaths, audioPath)
		metrics.RecordStageDuration("extract", time.Since(extractStart).Seconds())
	}

	c.setProgress(task.ID, bandExtracted, fmt.Sprintf("transcribing %d files", n))
	transcriptions := make([]*asr.TranscribeResult, n)
	jobs := make([]accel.Job, n)
	for i := range jobs {
		i := i
		audioPath := audioPaths[i]
		jobs[i] = func(jobCtx context.Context, workerID int) error {
			var jobErr error
			transcriptions[i], jobErr = c.transcriber.Transcribe(jobCtx, audioPath, task.ModelSize)
			return jobErr
		}
	}
	transcribeStart := time.Now()
	for _, err := range c.pool.SubmitMany(ctx, task.ID, jobs) {
		if err != nil {
			return nil, pipeline.AsPipeError(err, pipeline.ErrCodeASRUnavailable)
		}
	}
	metrics.RecordStageDuration("transcribe", time.Since(transcribeStart).Seconds())
	c.setProgress(task.ID, bandTranscribed, "transcription finished")

	fileSpan := bandFileDone - bandTranscribed
	results := make([]pipeline.FileResult, 0, n)
	for i, input := range task.Inputs {
		c.setProgress(task.ID, bandTranscribed+(i*fileSpan+bandSegmented-bandTranscribed)/n,
			"segmenting "+filepath.Base(input))
		results = append(results, c.finishFile(ctx, task, audioPaths[i], transcriptions[i], input))
		c.setProgress(task.ID, bandTranscribed+(i+1)*fileSpan/n,
			fmt.Sprintf("finished %d of %d files", i+1, n))
	}
	return results, nil
}

// finishFile runs the post-transcription stages for one input: optional
// alignment, segmentation and the final orderings. None of them are fatal;
// alignment falls back to the original timestamps and segmentation always
// yields something.
func (c *Coordinator) finishFile(ctx context.Context, task *pipeline.Task, audioPath string, transcription *asr.TranscribeResult, input string) pipeline.FileResult {
	result := pipeline.FileResult{
		Filename:   filepath.Base(input),
		Filepath:   input,
		Language:   transcription.Language,
		Transcript: transcription.Sentences,
	}

	if c.cfg.ASR.EnableAlignment && c.aligner != nil {
		alignStart := time.Now()
		aligned, alignErr := c.aligner.Align(ctx, audioPath, result.Transcript)
		if alignErr != nil {
			// Alignment refines timing; losing it degrades accuracy, not
			// correctness. Keep the unaligned transcript.
			logger.L().Warn("alignment failed, keeping original timestamps",
				"task_id", task.ID, "file", result.Filename, "error", alignErr)
		} else {
			result.Transcript = aligned
			metrics.RecordStageDuration("align", time.Since(alignStart).Seconds())
		}
	}

	segmentStart := time.Now()
	segResult := c.segmenters[task.LLMModel].Segment(ctx, result.Transcript, task.Prompt)
	metrics.RecordStageDuration("segment", time.Since(segmentStart).Seconds())
	if segResult.Stage != segment.StageSchema {
		logger.L().Warn("segmentation needed fallback",
			"task_id", task.ID, "file", result.Filename, "stage", segResult.Stage)
	}

	span := transcriptSpan(result.Transcript)
	if segResult.Stage == segment.StageSynthetic {
		result.Ranked, result.Timeline = segment.Rank(segResult.Segments, c.cfg.Segmentation, span)
	} else {
		result.Ranked, result.Timeline = segment.Finalize(segResult.Segments, c.cfg.Segmentation, span)
	}
	return result
}

// setProgress raises the task progress. Progress never moves backwards, so
// interleaved per-file updates cannot make the bar jitter.
func (c *Coordinator) setProgress(id string, progress int, message string) {
	c.store.Update(id, func(t *pipeline.Task) {
		if progress > t.Progress {
			t.Progress = progress
		}
		t.ProgressMessage = message
	})
}

func transcriptSpan(sentences []pipeline.Sentence) float64 {
	var span float64
	for _, s := range sentences {
		if s.End > span {
			span = s.End
		}
	}
	return span
}
