// Package media wraps the external ffmpeg binary for audio extraction, clip
// cutting and thumbnail capture.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/pkg/logger"
)

// Processor runs ffmpeg invocations. A weighted semaphore bounds how many run
// at once so a batch of files cannot saturate the host.
type Processor struct {
	ffmpegPath string
	workDir    string
	sem        *semaphore.Weighted
}

// NewProcessor creates a processor writing derived files under workDir and
// allowing maxConcurrent simultaneous ffmpeg runs.
func NewProcessor(ffmpegPath, workDir string, maxConcurrent int64) *Processor {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Processor{
		ffmpegPath: ffmpegPath,
		workDir:    workDir,
		sem:        semaphore.NewWeighted(maxConcurrent),
	}
}

// ExtractAudio converts the input into a mono 16 kHz WAV, the format the
// recognition service expects, and returns the output path.
func (p *Processor) ExtractAudio(ctx context.Context, inputPath string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outPath := filepath.Join(p.workDir, base+".wav")

	if err := p.run(ctx, extractAudioArgs(inputPath, outPath)); err != nil {
		return "", err
	}
	return outPath, nil
}

// ClipSegment cuts [start, end] seconds out of the input into outPath,
// re-encoding so cuts land on exact timestamps rather than keyframes.
func (p *Processor) ClipSegment(ctx context.Context, inputPath string, start, end float64, outPath string) error {
	return p.run(ctx, clipArgs(inputPath, start, end, outPath))
}

// ClipSegments cuts every segment into numbered files next to the work dir
// and returns the output paths in segment order.
func (p *Processor) ClipSegments(ctx context.Context, inputPath string, segments []pipeline.Segment) ([]string, error) {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	paths := make([]string, 0, len(segments))
	for i, seg := range segments {
		outPath := filepath.Join(p.workDir, fmt.Sprintf("%s_clip_%03d.mp4", base, i+1))
		if err := p.ClipSegment(ctx, inputPath, seg.Start, seg.End, outPath); err != nil {
			return nil, err
		}
		paths = append(paths, outPath)
	}
	return paths, nil
}

// ExtractThumbnail captures a single frame at the given offset.
func (p *Processor) ExtractThumbnail(ctx context.Context, inputPath string, atSeconds float64, outPath string) error {
	return p.run(ctx, thumbnailArgs(inputPath, atSeconds, outPath))
}

// Cleanup removes a derived file, logging rather than failing when the file
// is already gone.
func (p *Processor) Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.L().Warn("failed to remove derived file", "path", path, "error", err)
	}
}

func (p *Processor) run(ctx context.Context, args []string) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for media slot: %w", err)
	}
	defer p.sem.Release(1)

	start := time.Now()
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return pipeline.NewFFmpegError(
			fmt.Sprintf("ffmpeg failed: %s", tail(stderr.String(), 500)), err)
	}

	logger.L().Debug("ffmpeg run complete",
		"args", strings.Join(args, " "),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func extractAudioArgs(inputPath, outPath string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outPath,
	}
}

func clipArgs(inputPath string, start, end float64, outPath string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-ss", fmt.Sprintf("%.3f", start),
		"-to", fmt.Sprintf("%.3f", end),
		"-c:v", "libx264",
		"-preset", "fast",
		"-c:a", "aac",
		outPath,
	}
}

func thumbnailArgs(inputPath string, atSeconds float64, outPath string) []string {
	return []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", atSeconds),
		"-i", inputPath,
		"-vframes", "1",
		"-q:v", "2",
		outPath,
	}
}

// tail returns the last n bytes of s; ffmpeg puts the useful error at the
// end of its stderr stream.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
