// Package accel schedules inference jobs across a fixed set of accelerator
// workers, preferring the historically fastest idle worker.
package accel

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/pkg/logger"
	"github.com/clipforge/clipforge/pkg/metrics"
)

// Job runs on an acquired worker. workerID identifies the device the job must
// use.
type Job func(ctx context.Context, workerID int) error

// MemoryReleaser frees device memory after a job. Failures are logged and
// otherwise ignored; release is an optimization, not a correctness
// requirement.
type MemoryReleaser func(workerID int) error

type worker struct {
	id            int
	busy          bool
	currentTaskID string
	totalJobs     int
	totalTime     float64 // seconds
}

func (w *worker) averageTime() float64 {
	if w.totalJobs == 0 {
		return 0
	}
	return w.totalTime / float64(w.totalJobs)
}

// WorkerStatus is a point-in-time snapshot of one worker.
type WorkerStatus struct {
	ID            int     `json:"id"`
	Busy          bool    `json:"busy"`
	CurrentTaskID string  `json:"current_task_id,omitempty"`
	TotalJobs     int     `json:"total_jobs"`
	AverageTime   float64 `json:"average_time_seconds"`
}

// Pool owns the workers. Acquisition polls rather than queues: a submitter
// re-checks availability on an interval and gives up after the wait bound,
// which keeps slow jobs from building an unbounded backlog.
type Pool struct {
	mu      sync.Mutex
	workers []*worker
	poll    time.Duration
	wait    time.Duration
	release MemoryReleaser
}

// NewPool creates a pool of count workers. poll is the availability re-check
// interval, wait the total time a submitter may spend waiting for a worker.
// release may be nil.
func NewPool(count int, poll, wait time.Duration, release MemoryReleaser) *Pool {
	workers := make([]*worker, count)
	for i := range workers {
		workers[i] = &worker{id: i}
	}
	return &Pool{workers: workers, poll: poll, wait: wait, release: release}
}

// bestAvailableLocked returns the idle worker with the lowest average job
// time, or nil when all are busy. Workers without history sort first, so new
// workers get measured before the pool settles on favorites.
func (p *Pool) bestAvailableLocked() *worker {
	var best *worker
	for _, w := range p.workers {
		if w.busy {
			continue
		}
		if best == nil || w.averageTime() < best.averageTime() {
			best = w
		}
	}
	return best
}

// PickBestAvailable reports the worker Submit would choose right now.
func (p *Pool) PickBestAvailable() (WorkerStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.bestAvailableLocked()
	if w == nil {
		return WorkerStatus{}, false
	}
	return snapshot(w), true
}

func (p *Pool) tryAcquire(taskID string) *worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.bestAvailableLocked()
	if w == nil {
		return nil
	}
	w.busy = true
	w.currentTaskID = taskID
	return w
}

// Submit runs fn on the best available worker, waiting for one if all are
// busy. It returns a no-capacity error once the wait bound elapses. The
// worker is released on every exit path.
func (p *Pool) Submit(ctx context.Context, taskID string, fn Job) error {
	w := p.tryAcquire(taskID)
	if w == nil {
		deadline := time.NewTimer(p.wait)
		defer deadline.Stop()
		ticker := time.NewTicker(p.poll)
		defer ticker.Stop()

		for w == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-deadline.C:
				return pipeline.NewNoCapacityError(
					fmt.Sprintf("no accelerator available within %s", p.wait))
			case <-ticker.C:
				w = p.tryAcquire(taskID)
			}
		}
	}

	start := time.Now()
	defer p.finish(w, start)

	err := fn(ctx, w.id)
	status := "success"
	if err != nil {
		status = "failed"
	}
	metrics.RecordAcceleratorJob(strconv.Itoa(w.id), status)
	return err
}

// finish releases the worker, folds the job duration into its running
// average and triggers the best-effort memory release.
func (p *Pool) finish(w *worker, start time.Time) {
	elapsed := time.Since(start).Seconds()

	p.mu.Lock()
	w.busy = false
	w.currentTaskID = ""
	w.totalJobs++
	w.totalTime += elapsed
	p.mu.Unlock()

	if p.release != nil {
		if err := p.release(w.id); err != nil {
			logger.L().Warn("device memory release failed", "worker", w.id, "error", err)
		}
	}
}

// SubmitMany runs the jobs concurrently, each on its own worker slot. The
// returned slice has one entry per job in input order; a nil entry means the
// job at that position succeeded.
func (p *Pool) SubmitMany(ctx context.Context, taskID string, jobs []Job) []error {
	errs := make([]error, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			errs[i] = p.Submit(ctx, fmt.Sprintf("%s/%d", taskID, i), job)
		}(i, job)
	}
	wg.Wait()
	return errs
}

// Status returns a snapshot of every worker.
func (p *Pool) Status() []WorkerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]WorkerStatus, len(p.workers))
	for i, w := range p.workers {
		out[i] = snapshot(w)
	}
	return out
}

// Available returns the number of idle workers.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, w := range p.workers {
		if !w.busy {
			n++
		}
	}
	return n
}

func snapshot(w *worker) WorkerStatus {
	return WorkerStatus{
		ID:            w.id,
		Busy:          w.busy,
		CurrentTaskID: w.currentTaskID,
		TotalJobs:     w.totalJobs,
		AverageTime:   w.averageTime(),
	}
}
