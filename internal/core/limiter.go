package core

// limiter.go bounds how many validation passes run at once.
//
// Each pass holds one slot for its task from the moment it is accepted until
// both of its sub-passes have finished. A pass that cannot get a slot within
// maxWait fails with ErrTooManyPasses. Shutdown uses WaitForDrain to block
// until every held slot is returned.

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrTooManyPasses is returned when all slots are occupied and the wait
// timeout expires. Clients should retry after a short delay.
var ErrTooManyPasses = errors.New("too many concurrent validations, please try again later")

// DefaultMaxConcurrentPasses is the default limit for parallel passes.
const DefaultMaxConcurrentPasses = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// PassLimiter hands out pass slots and tracks which tasks hold them.
type PassLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu       sync.Mutex
	byTask   map[string]int
	active   int
	rejected int
	idle     chan struct{} // closed while no slot is held
}

// NewPassLimiter creates a limiter that allows at most maxConcurrent
// simultaneous passes.
func NewPassLimiter(maxConcurrent int, maxWait time.Duration) *PassLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentPasses
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	idle := make(chan struct{})
	close(idle)
	return &PassLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		byTask:  make(map[string]int),
		idle:    idle,
	}
}

// Acquire takes a slot for a pass of task. The returned release func gives
// the slot back; calling it more than once is a no-op.
func (l *PassLimiter) Acquire(ctx context.Context, task string) (release func(), err error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.slots <- struct{}{}:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.mu.Lock()
		l.rejected++
		l.mu.Unlock()
		return nil, ErrTooManyPasses
	}

	l.mu.Lock()
	if l.active == 0 {
		l.idle = make(chan struct{})
	}
	l.active++
	l.byTask[task]++
	l.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { l.release(task) }) }, nil
}

func (l *PassLimiter) release(task string) {
	l.mu.Lock()
	l.active--
	if l.byTask[task]--; l.byTask[task] == 0 {
		delete(l.byTask, task)
	}
	if l.active == 0 {
		close(l.idle)
	}
	l.mu.Unlock()

	<-l.slots
}

// MaxConcurrent returns the maximum allowed concurrent passes.
func (l *PassLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// WaitForDrain blocks until no slot is held or ctx is done.
func (l *PassLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TaskSlots is the number of slots one task holds.
type TaskSlots struct {
	Task   string `json:"task"`
	Active int    `json:"active"`
}

// LimiterStatus is a snapshot of the limiter's state.
type LimiterStatus struct {
	Active        int         `json:"active"`
	Available     int         `json:"available"`
	MaxConcurrent int         `json:"maxConcurrent"`
	Rejected      int         `json:"rejected"`
	Tasks         []TaskSlots `json:"tasks"`
}

// Status returns the current slot usage, busiest task first.
func (l *PassLimiter) Status() LimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	tasks := make([]TaskSlots, 0, len(l.byTask))
	for task, n := range l.byTask {
		tasks = append(tasks, TaskSlots{Task: task, Active: n})
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Active != tasks[j].Active {
			return tasks[i].Active > tasks[j].Active
		}
		return tasks[i].Task < tasks[j].Task
	})

	return LimiterStatus{
		Active:        l.active,
		Available:     cap(l.slots) - l.active,
		MaxConcurrent: cap(l.slots),
		Rejected:      l.rejected,
		Tasks:         tasks,
	}
}
