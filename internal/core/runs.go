package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned for unknown or expired run ids.
var ErrRunNotFound = errors.New("run not found")

type activeRun struct {
	ID       string
	Task     string
	FileName string
	Cancel   context.CancelFunc
	Result   *ValidationResult
	Err      error
	Done     chan struct{}

	mu        sync.Mutex
	progress  RunProgress
	listeners []chan RunProgress
}

// StartValidation begins an asynchronous validation run and returns its id
// immediately. Use SubscribeProgress for updates and GetResult for the
// outcome.
//
// Returns ErrTooManyPasses if no pass slot becomes available in time.
func (s *Service) StartValidation(ctx context.Context, req ValidateRequest) (string, error) {
	if _, err := s.Template(req.Task); err != nil {
		return "", err
	}

	// Acquire pass slot (blocks until available or timeout)
	release, err := s.limiter.Acquire(ctx, req.Task)
	if err != nil {
		return "", err
	}

	runID := uuid.New().String()

	// The run outlives the request but keeps its values (request id).
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RunTimeout)

	run := &activeRun{
		ID:       runID,
		Task:     req.Task,
		FileName: req.FileName,
		Cancel:   cancel,
		Done:     make(chan struct{}),
		progress: RunProgress{
			RunID:    runID,
			Task:     req.Task,
			Phase:    PhaseStarting,
			FileName: req.FileName,
		},
	}

	s.mu.Lock()
	s.runs[runID] = run
	s.mu.Unlock()

	// Process in background with panic recovery to ensure limiter release
	go func() {
		defer release()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in validation run",
					"run_id", runID,
					"task", req.Task,
					"panic", r,
				)
				s.finishRun(run, nil, fmt.Errorf("internal error: %v", r))
			}
		}()
		s.processRun(runCtx, run, req)
	}()

	return runID, nil
}

func (s *Service) processRun(ctx context.Context, run *activeRun, req ValidateRequest) {
	run.update(func(p *RunProgress) { p.Phase = PhaseReading })

	result, err := s.execute(ctx, req, func(rows, errs int) {
		run.update(func(p *RunProgress) {
			p.Phase = PhaseValidating
			p.RowsProcessed = rows
			p.ErrorsFound = errs
		})
	})
	if result != nil {
		result.RunID = run.ID
	}
	s.finishRun(run, result, err)
}

// finishRun records the outcome, notifies listeners and schedules cleanup.
func (s *Service) finishRun(run *activeRun, result *ValidationResult, err error) {
	run.Result = result
	run.Err = err

	run.update(func(p *RunProgress) {
		switch {
		case err != nil:
			p.Phase = PhaseFailed
			p.Error = err.Error()
		case result.Incomplete:
			p.Phase = PhaseCancelled
			p.RowsProcessed = result.Summary.TotalRows
			p.ErrorsFound = result.Summary.ErrorCount
		default:
			p.Phase = PhaseComplete
			p.RowsProcessed = result.Summary.TotalRows
			p.ErrorsFound = result.Summary.ErrorCount
		}
	})

	run.Cancel()
	close(run.Done)
	run.closeListeners()
	s.cleanup(run.ID, s.cfg.ResultTTL)
}

// SubscribeProgress returns a channel that receives progress updates.
// The channel is closed when the run completes.
func (s *Service) SubscribeProgress(runID string) (<-chan RunProgress, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}

	ch := make(chan RunProgress, 10)

	run.mu.Lock()
	defer run.mu.Unlock()

	// Send current progress immediately
	ch <- run.progress

	select {
	case <-run.Done:
		close(ch)
	default:
		run.listeners = append(run.listeners, ch)
	}
	return ch, nil
}

// CancelRun requests cancellation of a run. The engine stops at the next
// batch boundary and the run completes with an incomplete result.
func (s *Service) CancelRun(runID string) error {
	run, err := s.getRun(runID)
	if err != nil {
		return err
	}
	run.Cancel()
	return nil
}

// GetResult returns the result of a run, blocking until it completes or
// ctx is done.
func (s *Service) GetResult(ctx context.Context, runID string) (*ValidationResult, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}

	select {
	case <-run.Done:
		return run.Result, run.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetProgress returns the current progress without blocking.
func (s *Service) GetProgress(runID string) (RunProgress, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return RunProgress{}, err
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	return run.progress, nil
}

// CancelAll cancels every tracked run. Used on shutdown.
func (s *Service) CancelAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, run := range s.runs {
		run.Cancel()
	}
}

func (s *Service) getRun(runID string) (*activeRun, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// update mutates progress and sends it to all listeners.
func (run *activeRun) update(fn func(*RunProgress)) {
	run.mu.Lock()
	defer run.mu.Unlock()

	fn(&run.progress)
	for _, ch := range run.listeners {
		select {
		case ch <- run.progress:
		default:
			// Listener is slow, skip this update
		}
	}
}

// closeListeners closes all listener channels.
func (run *activeRun) closeListeners() {
	run.mu.Lock()
	defer run.mu.Unlock()

	for _, ch := range run.listeners {
		close(ch)
	}
	run.listeners = nil
}

// cleanup removes the run from tracking after a delay.
func (s *Service) cleanup(runID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.runs, runID)
		s.mu.Unlock()
	})
}
