package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clipforge/clipforge/pkg/logger"
	"github.com/clipforge/clipforge/pkg/metrics"
)

// TaskStore keeps task state in memory. Entries expire by idle time and the
// store is bounded; the reaper evicts least-recently-accessed entries first
// regardless of task status, so clients must not assume a running task's
// record survives indefinitely.
type TaskStore struct {
	mu         sync.Mutex
	tasks      map[string]*Task
	ttl        time.Duration
	maxEntries int
	reapEvery  time.Duration
}

// NewTaskStore creates a store with the given idle TTL, entry cap and reap
// interval.
func NewTaskStore(ttl time.Duration, maxEntries int, reapEvery time.Duration) *TaskStore {
	return &TaskStore{
		tasks:      make(map[string]*Task),
		ttl:        ttl,
		maxEntries: maxEntries,
		reapEvery:  reapEvery,
	}
}

// Put inserts or replaces a task and marks it as just accessed.
func (s *TaskStore) Put(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task.LastAccessedAt = time.Now()
	s.tasks[task.ID] = task
}

// Get returns a copy of the task and refreshes its access time. Reads count
// as activity so polled tasks stay alive.
func (s *TaskStore) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	task.LastAccessedAt = time.Now()
	return *task, true
}

// Update applies fn to the stored task under the store lock. It returns false
// if the task no longer exists, which callers must tolerate: the reaper may
// have evicted it mid-flight.
func (s *TaskStore) Update(id string, fn func(*Task)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return false
	}
	fn(task)
	task.LastAccessedAt = time.Now()
	return true
}

// Delete removes a task.
func (s *TaskStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}

// Len returns the number of stored tasks.
func (s *TaskStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Reap removes entries idle for longer than the TTL, then evicts the least
// recently accessed entries until the store is within its cap. Eviction is
// status-blind. It returns the number of removed entries.
func (s *TaskStore) Reap() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0

	for id, task := range s.tasks {
		if now.Sub(task.LastAccessedAt) > s.ttl {
			delete(s.tasks, id)
			removed++
			metrics.RecordEviction("ttl")
		}
	}

	if len(s.tasks) > s.maxEntries {
		byAccess := make([]*Task, 0, len(s.tasks))
		for _, task := range s.tasks {
			byAccess = append(byAccess, task)
		}
		sort.Slice(byAccess, func(i, j int) bool {
			return byAccess[i].LastAccessedAt.Before(byAccess[j].LastAccessedAt)
		})
		for _, task := range byAccess[:len(s.tasks)-s.maxEntries] {
			delete(s.tasks, task.ID)
			removed++
			metrics.RecordEviction("capacity")
		}
	}

	return removed
}

// StartReaper runs periodic reaping until ctx is cancelled.
func (s *TaskStore) StartReaper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.reapEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Reap(); n > 0 {
					logger.L().Info("task store reaped", "removed", n, "remaining", s.Len())
				}
			}
		}
	}()
}
