package workers

import (
	"context"
	"errors"
	"sync"
)

var errStopped = errors.New("worker stopped")

// Worker interface defines the contract for all workers
type Worker interface {
	// Start runs the worker until its work is done, it is stopped or ctx is cancelled
	Start(ctx context.Context) error

	// Stop gracefully stops the worker
	Stop() error

	// GetWorkerID returns the unique identifier for this worker
	GetWorkerID() string
}

// BaseWorker provides common functionality for all workers
type BaseWorker struct {
	WorkerID string
	StopChan chan struct{}

	mu      sync.Mutex
	running bool
	stopped bool
}

// NewBaseWorker creates a new base worker
func NewBaseWorker(workerID string) *BaseWorker {
	return &BaseWorker{
		WorkerID: workerID,
		StopChan: make(chan struct{}),
	}
}

// GetWorkerID returns the worker's unique identifier
func (w *BaseWorker) GetWorkerID() string {
	return w.WorkerID
}

// Stop gracefully stops the worker. It is safe to call more than once.
func (w *BaseWorker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.StopChan)
	}
	return nil
}

// IsRunning checks if the worker is currently running
func (w *BaseWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *BaseWorker) setRunning(running bool) {
	w.mu.Lock()
	w.running = running
	w.mu.Unlock()
}

// isStopped reports whether Stop has been called
func (w *BaseWorker) isStopped() bool {
	select {
	case <-w.StopChan:
		return true
	default:
		return false
	}
}
