// Package dispatcher runs a fixed-size pool of capture workers over the shared
// queue.
package dispatcher

import (
	"context"
	"sync"
)

// Runner is a worker loop that returns once it has nothing left to do.
type Runner interface {
	Run(ctx context.Context)
}

// Dispatcher fans queue work out to a fixed set of workers.
type Dispatcher struct {
	workers []Runner
}

// New creates a Dispatcher over workers.
func New(workers ...Runner) *Dispatcher {
	return &Dispatcher{workers: append([]Runner(nil), workers...)}
}

// Size returns the number of workers.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Start launches every worker and returns a channel closed once all of them
// have exited.
func (d *Dispatcher) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk Runner) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// Run starts all workers and blocks until every one has exited.
func (d *Dispatcher) Run(ctx context.Context) {
	<-d.Start(ctx)
}
