package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/accel"
	"github.com/clipforge/clipforge/internal/asr"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/llm"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/segment"
	"github.com/clipforge/clipforge/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init(logger.Config{Level: "error"}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// fakeExtractor stands in for the ffmpeg processor. It fabricates an audio
// path and records cleanups.
type fakeExtractor struct {
	mu      sync.Mutex
	cleaned []string
	failFor string
}

func (f *fakeExtractor) ExtractAudio(_ context.Context, inputPath string) (string, error) {
	if f.failFor != "" && strings.Contains(inputPath, f.failFor) {
		return "", pipeline.NewFFmpegError("no audio stream", nil)
	}
	return inputPath + ".wav", nil
}

func (f *fakeExtractor) Cleanup(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, path)
}

func (f *fakeExtractor) cleanedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cleaned...)
}

// failingTranscriber fails every file whose path contains failFor; an empty
// failFor fails everything.
type failingTranscriber struct {
	failFor string
}

func (ft *failingTranscriber) Transcribe(_ context.Context, audioPath, _ string) (*asr.TranscribeResult, error) {
	if ft.failFor == "" || strings.Contains(audioPath, ft.failFor) {
		return nil, pipeline.NewASRUnavailableError("recognition backend down", nil)
	}
	return asr.NewMockTranscriber().Transcribe(context.Background(), audioPath, "")
}

func (ft *failingTranscriber) IsAvailable(context.Context) bool { return false }

const schemaResponse = `{"segments": [{"start": 0, "end": 30, "summary": "mock highlight", "tags": ["t"], "word_count": 12, "relevance_score": 8, "engagement_score": 7}]}`

func newTestCoordinator(t *testing.T, transcriber asr.Transcriber, extractor AudioExtractor) *Coordinator {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	gen := &llm.MockGenerator{Responses: []string{schemaResponse}}
	return New(Options{
		Config:      cfg,
		Store:       pipeline.NewTaskStore(time.Hour, 100, time.Hour),
		Media:       extractor,
		Transcriber: transcriber,
		Aligner:     &asr.MockAligner{},
		Pool:        accel.NewPool(1, 10*time.Millisecond, time.Second, nil),
		Segmenters: map[string]*segment.Segmenter{
			"default": segment.NewSegmenter(gen, cfg.Segmentation),
		},
	})
}

func writeInput(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("fake video"), 0o644))
	return path
}

func runUntilTerminal(t *testing.T, c *Coordinator, id string) pipeline.Task {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	var task pipeline.Task
	require.Eventually(t, func() bool {
		var ok bool
		task, ok = c.GetTask(id)
		return ok && task.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return task
}

func TestSubmitValidation(t *testing.T) {
	c := newTestCoordinator(t, asr.NewMockTranscriber(), &fakeExtractor{})

	_, err := c.Submit(nil, "default", "", "")
	requireInputError(t, err)

	_, err = c.Submit([]string{"/nonexistent/talk.mp4"}, "default", "", "")
	requireInputError(t, err)

	_, err = c.Submit([]string{writeInput(t, "talk.mp4")}, "no-such-model", "", "")
	requireInputError(t, err)
}

func requireInputError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	pe := pipeline.AsPipeError(err, "")
	assert.Equal(t, pipeline.ErrCodeInputInvalid, pe.Code)
}

func TestTaskCompletes(t *testing.T) {
	extractor := &fakeExtractor{}
	c := newTestCoordinator(t, asr.NewMockTranscriber(), extractor)

	input := writeInput(t, "talk.mp4")
	id, err := c.Submit([]string{input}, "", "find the highlights", "")
	require.NoError(t, err)

	queued, ok := c.GetTask(id)
	require.True(t, ok)
	assert.Equal(t, pipeline.StatusQueued, queued.Status)
	assert.Equal(t, "default", queued.LLMModel, "empty model selects the first configured option")

	task := runUntilTerminal(t, c, id)
	assert.Equal(t, pipeline.StatusCompleted, task.Status)
	assert.Equal(t, 100, task.Progress)
	assert.Nil(t, task.Error)

	require.Len(t, task.Results, 1)
	result := task.Results[0]
	assert.Equal(t, "talk.mp4", result.Filename)
	assert.Equal(t, "en", result.Language)
	assert.NotEmpty(t, result.Transcript)
	require.NotEmpty(t, result.Ranked)
	require.NotEmpty(t, result.Timeline)
	assert.Equal(t, "mock highlight", result.Ranked[0].Summary)
	assert.Greater(t, result.Ranked[0].CompositeScore, 0.0)

	assert.Equal(t, []string{input + ".wav"}, extractor.cleanedPaths())
}

func TestTaskFailsWhenEveryFileFails(t *testing.T) {
	extractor := &fakeExtractor{}
	c := newTestCoordinator(t, &failingTranscriber{}, extractor)

	id, err := c.Submit([]string{writeInput(t, "talk.mp4")}, "default", "", "")
	require.NoError(t, err)

	task := runUntilTerminal(t, c, id)
	assert.Equal(t, pipeline.StatusFailed, task.Status)
	require.NotNil(t, task.Error)
	assert.Equal(t, pipeline.ErrCodeASRUnavailable, task.Error.Code)

	assert.NotEmpty(t, extractor.cleanedPaths(), "derived audio is cleaned up even on failure")
}

func TestSingleFileFailureFailsWholeTask(t *testing.T) {
	extractor := &fakeExtractor{}
	c := newTestCoordinator(t, &failingTranscriber{failFor: "broken"}, extractor)

	good := writeInput(t, "good.mp4")
	broken := writeInput(t, "broken.mp4")
	id, err := c.Submit([]string{good, broken}, "default", "", "")
	require.NoError(t, err)

	task := runUntilTerminal(t, c, id)
	assert.Equal(t, pipeline.StatusFailed, task.Status, "one bad file fails the task")
	require.NotNil(t, task.Error)
	assert.Equal(t, pipeline.ErrCodeASRUnavailable, task.Error.Code)
	assert.Empty(t, task.Results, "a failed task carries no results")

	assert.ElementsMatch(t, []string{good + ".wav", broken + ".wav"}, extractor.cleanedPaths(),
		"every extracted file is cleaned up, the healthy one included")
}

func TestExtractionFailureFailsWholeTask(t *testing.T) {
	extractor := &fakeExtractor{failFor: "silent"}
	c := newTestCoordinator(t, asr.NewMockTranscriber(), extractor)

	good := writeInput(t, "good.mp4")
	silent := writeInput(t, "silent.mp4")
	id, err := c.Submit([]string{good, silent}, "default", "", "")
	require.NoError(t, err)

	task := runUntilTerminal(t, c, id)
	assert.Equal(t, pipeline.StatusFailed, task.Status)
	require.NotNil(t, task.Error)
	assert.Equal(t, pipeline.ErrCodeFFmpegFailed, task.Error.Code)
	assert.Empty(t, task.Results)

	assert.Equal(t, []string{good + ".wav"}, extractor.cleanedPaths(),
		"audio extracted before the failure is still removed")
}

func TestMultiFileTaskCompletes(t *testing.T) {
	extractor := &fakeExtractor{}
	c := newTestCoordinator(t, asr.NewMockTranscriber(), extractor)

	a := writeInput(t, "a.mp4")
	b := writeInput(t, "b.mp4")
	id, err := c.Submit([]string{a, b}, "default", "", "")
	require.NoError(t, err)

	task := runUntilTerminal(t, c, id)
	assert.Equal(t, pipeline.StatusCompleted, task.Status)
	assert.Equal(t, 100, task.Progress)
	require.Len(t, task.Results, 2)
	assert.Equal(t, "a.mp4", task.Results[0].Filename)
	assert.Equal(t, "b.mp4", task.Results[1].Filename)
	for _, r := range task.Results {
		assert.NotEmpty(t, r.Ranked)
		assert.NotEmpty(t, r.Timeline)
	}
	assert.ElementsMatch(t, []string{a + ".wav", b + ".wav"}, extractor.cleanedPaths())
}

func TestSegmentationFailureIsNeverFatal(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	gen := &llm.MockGenerator{Err: pipeline.NewLLMUnavailableError("endpoint down", nil)}
	c := New(Options{
		Config:      cfg,
		Store:       pipeline.NewTaskStore(time.Hour, 100, time.Hour),
		Media:       &fakeExtractor{},
		Transcriber: asr.NewMockTranscriber(),
		Aligner:     &asr.MockAligner{},
		Pool:        accel.NewPool(1, 10*time.Millisecond, time.Second, nil),
		Segmenters: map[string]*segment.Segmenter{
			"default": segment.NewSegmenter(gen, cfg.Segmentation),
		},
	})

	id, err := c.Submit([]string{writeInput(t, "talk.mp4")}, "default", "", "")
	require.NoError(t, err)

	task := runUntilTerminal(t, c, id)
	assert.Equal(t, pipeline.StatusCompleted, task.Status, "a dead LLM degrades to synthetic segments")
	require.Len(t, task.Results, 1)
	require.Len(t, task.Results[0].Ranked, cfg.Segmentation.FallbackSegments)
	assert.Len(t, task.Results[0].Timeline, cfg.Segmentation.FallbackSegments,
		"contiguous fallback segments stay separate")
}

func TestQueueIsFIFO(t *testing.T) {
	c := newTestCoordinator(t, asr.NewMockTranscriber(), &fakeExtractor{})

	first, err := c.Submit([]string{writeInput(t, "a.mp4")}, "default", "", "")
	require.NoError(t, err)
	second, err := c.Submit([]string{writeInput(t, "b.mp4")}, "default", "", "")
	require.NoError(t, err)

	assert.Equal(t, 2, c.QueueSize())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		t2, ok := c.GetTask(second)
		return ok && t2.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	t1, ok := c.GetTask(first)
	require.True(t, ok)
	assert.True(t, t1.Status.Terminal(), "first submitted task finishes no later than the second")
	assert.Equal(t, 0, c.QueueSize())
}

func TestWorkersSnapshot(t *testing.T) {
	c := newTestCoordinator(t, asr.NewMockTranscriber(), &fakeExtractor{})
	workers := c.Workers()
	require.Len(t, workers, 1)
	assert.False(t, workers[0].Busy)
}
