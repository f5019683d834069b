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
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkPoolBoundsConcurrency(t *testing.T) {
	pool := NewWorkPool(2, 16, time.Second, nil)
	defer func() { _ = pool.Shutdown(time.Second) }()

	var (
		current, peak atomic.Int32
		wg            sync.WaitGroup
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := pool.Submit(context.Background(), func(context.Context) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}

				time.Sleep(20 * time.Millisecond)
				current.Add(-1)

				return nil
			})
			if err != nil {
				t.Errorf("Submit failed: %v", err)
			}
		}()
	}

	wg.Wait()

	if p := peak.Load(); p > 2 {
		t.Fatalf("Expected at most 2 concurrent tasks, observed %d", p)
	}
}

func TestWorkPoolSubmitReturnsError(t *testing.T) {
	pool := NewWorkPool(1, 1, time.Second, nil)
	defer func() { _ = pool.Shutdown(time.Second) }()

	expected := errors.New("bad piece")

	if err := pool.Submit(context.Background(), func(context.Context) error { return expected }); !errors.Is(err, expected) {
		t.Fatalf("Expected %v from Submit, got %v", expected, err)
	}

	err := pool.Submit(context.Background(), func(context.Context) error { panic("boom") })
	if err == nil {
		t.Fatalf("Expected panic to be converted into an error")
	}
}

func TestWorkPoolQueueFull(t *testing.T) {
	pool := NewWorkPool(1, 1, time.Second, nil)

	started := make(chan struct{})
	release := make(chan struct{})

	if err := pool.Go(context.Background(), func(context.Context) error {
		close(started)
		<-release

		return nil
	}); err != nil {
		t.Fatalf("First Go failed: %v", err)
	}

	<-started

	if err := pool.Go(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Second Go should have been queued, got %v", err)
	}

	if err := pool.Go(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Expected ErrQueueFull, got %v", err)
	}

	close(release)

	if err := pool.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestWorkPoolRejectsAfterShutdown(t *testing.T) {
	pool := NewWorkPool(2, 4, time.Second, nil)

	if err := pool.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown of idle pool failed: %v", err)
	}

	if err := pool.Submit(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("Expected ErrPoolClosed after shutdown, got %v", err)
	}

	if err := pool.Shutdown(time.Second); err != nil {
		t.Fatalf("Second Shutdown should be a no-op, got %v", err)
	}
}

func TestWorkPoolShutdownDrainsQueue(t *testing.T) {
	pool := NewWorkPool(1, 8, time.Second, nil)

	var ran atomic.Int32

	for i := 0; i < 5; i++ {
		if err := pool.Go(context.Background(), func(context.Context) error {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)

			return nil
		}); err != nil {
			t.Fatalf("Go failed: %v", err)
		}
	}

	if err := pool.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if n := ran.Load(); n != 5 {
		t.Fatalf("Expected all 5 queued tasks to run before shutdown returned, got %d", n)
	}
}

func TestWorkPoolShutdownTimeout(t *testing.T) {
	pool := NewWorkPool(1, 1, time.Second, nil)

	release := make(chan struct{})
	defer close(release)

	started := make(chan struct{})

	_ = pool.Go(context.Background(), func(context.Context) error {
		close(started)
		<-release

		return nil
	})

	<-started

	if err := pool.Shutdown(20 * time.Millisecond); err == nil {
		t.Fatalf("Expected Shutdown to report a timeout while work is blocked")
	}
}

func TestWorkPoolIdleWorkersExit(t *testing.T) {
	pool := NewWorkPool(2, 4, 10*time.Millisecond, nil)
	defer func() { _ = pool.Shutdown(time.Second) }()

	if err := pool.Submit(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for pool.Workers() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Idle worker did not exit, %d still alive", pool.Workers())
		}

		time.Sleep(5 * time.Millisecond)
	}
}
