/*
 * This file is part of Artiswarm.
 *
 * Artiswarm is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * Artiswarm is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with Artiswarm.  If not, see <http://www.gnu.org/licenses/>.
 */

package util

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"artiswarm/log"

	"golang.org/x/sync/semaphore"
)

var (
	ErrPoolClosed = errors.New("work pool is shut down")
	ErrQueueFull  = errors.New("work pool queue is full")
)

type workItem struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// WorkPool runs piece hashing and other disk heavy work on a bounded number of goroutines.
// Workers are started on demand and exit after staying idle for idleTimeout.
type WorkPool struct {
	sem   *semaphore.Weighted
	queue chan workItem
	idle  time.Duration

	mu     sync.Mutex
	closed bool

	abandoned atomic.Bool
	workers   atomic.Int32
	wg        sync.WaitGroup

	logger *slog.Logger
}

func NewWorkPool(maxWorkers, queueSize int, idleTimeout time.Duration, logger *slog.Logger) *WorkPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	if queueSize < 0 {
		queueSize = 0
	}

	if idleTimeout <= 0 {
		idleTimeout = time.Minute
	}

	logger = log.OrDefault(logger)

	return &WorkPool{
		sem:    semaphore.NewWeighted(int64(maxWorkers)),
		queue:  make(chan workItem, queueSize),
		idle:   idleTimeout,
		logger: logger,
	}
}

// Submit queues fn and blocks until it has run or ctx is done.
func (p *WorkPool) Submit(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan error, 1)

	if err := p.enqueue(workItem{ctx: ctx, fn: fn, done: done}); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go queues fn without waiting for it. Errors returned by fn are logged.
func (p *WorkPool) Go(ctx context.Context, fn func(context.Context) error) error {
	return p.enqueue(workItem{ctx: ctx, fn: fn})
}

func (p *WorkPool) enqueue(item workItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- item:
	default:
		return ErrQueueFull
	}

	if p.sem.TryAcquire(1) {
		p.workers.Add(1)
		p.wg.Add(1)

		go p.work()
	}

	return nil
}

func (p *WorkPool) work() {
	defer p.wg.Done()
	defer p.workers.Add(-1)

	timer := time.NewTimer(p.idle)
	defer timer.Stop()

	for {
		select {
		case item, ok := <-p.queue:
			if !ok {
				p.sem.Release(1)
				return
			}

			p.run(item)

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}

			timer.Reset(p.idle)
		case <-timer.C:
			p.sem.Release(1)

			// Work queued while this worker held the last slot would otherwise wait for the next submit
			if len(p.queue) == 0 || !p.sem.TryAcquire(1) {
				return
			}

			timer.Reset(p.idle)
		}
	}
}

func (p *WorkPool) run(item workItem) {
	var err error

	switch {
	case p.abandoned.Load():
		err = ErrPoolClosed
	case item.ctx.Err() != nil:
		err = item.ctx.Err()
	default:
		err = p.call(item)
	}

	if item.done != nil {
		item.done <- err
	} else if err != nil {
		p.logger.Warn("background work failed", "err", err)
	}
}

func (p *WorkPool) call(item workItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("work panicked: %v", r)
		}
	}()

	return item.fn(item.ctx)
}

// Workers returns the number of live worker goroutines.
func (p *WorkPool) Workers() int {
	return int(p.workers.Load())
}

func (p *WorkPool) Pending() int {
	return len(p.queue)
}

// Shutdown stops accepting work and waits up to grace for queued work to finish.
// Work still queued after grace is abandoned and its submitters receive ErrPoolClosed.
func (p *WorkPool) Shutdown(grace time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}

	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	// Queued work needs at least one worker to drain the closed queue
	if p.sem.TryAcquire(1) {
		p.workers.Add(1)
		p.wg.Add(1)

		go p.work()
	}

	drained := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-time.After(grace):
		p.abandoned.Store(true)
		p.logger.Warn("work pool did not drain in time, abandoning queued work", "pending", len(p.queue))

		return fmt.Errorf("work pool did not drain within %s", grace)
	}
}
