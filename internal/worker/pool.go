package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrPoolStopped is returned by Execute once Stop has been called.
var ErrPoolStopped = errors.New("worker pool stopped")

type job struct {
	run  func(context.Context)
	done chan struct{}
}

// Pool manages a fixed number of listener goroutines shared by every
// consumer, bounding how many deliveries run at once.
type Pool struct {
	numWorkers int
	jobs       chan job
	stop       chan struct{}
	stopOnce   sync.Once
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewPool creates a listener pool with the given number of workers.
func NewPool(numWorkers int, logger *slog.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan job),
		stop:       make(chan struct{}),
		logger:     logger,
	}
}

// Start launches all worker goroutines. They run until Stop is called.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

// Execute hands fn to a free worker and blocks until it returns. It gives up
// without running fn if ctx is cancelled or the pool stops first.
func (p *Pool) Execute(ctx context.Context, fn func(context.Context)) error {
	j := job{run: fn, done: make(chan struct{})}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stop:
		return ErrPoolStopped
	}
	<-j.done
	return nil
}

// Stop tells the workers to exit and waits for the running jobs to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// worker is a single goroutine that runs jobs handed over by Execute.
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stop:
			return
		case j := <-p.jobs:
			p.run(ctx, id, j)
		}
	}
}

func (p *Pool) run(ctx context.Context, id int, j job) {
	defer close(j.done)
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("worker job panicked", "worker_id", id, "panic", rec)
		}
	}()
	j.run(ctx)
}
