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

// Package download supervises a single peer-to-peer transfer and decides when it has succeeded,
// stalled or lacks peers.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"artiswarm/engine"
)

var (
	ErrInsufficientPeers = errors.New("insufficient peers")
	ErrStalledTransfer   = errors.New("transfer stalled")
	ErrInterrupted       = errors.New("download interrupted")
	ErrSizeMismatch      = errors.New("downloaded size mismatch")
)

// Error is a definitive download failure. Reason is one of the Err* sentinels.
type Error struct {
	Reason error
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Reason.Error() + ": " + e.Cause.Error()
	}

	return e.Reason.Error()
}

func (e *Error) Is(target error) bool {
	return target == e.Reason
}

func (e *Error) Unwrap() error {
	return e.Cause
}

type State int32

const (
	WaitingForPeers State = iota
	Downloading
	Succeeded
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case WaitingForPeers:
		return "waiting_for_peers"
	case Downloading:
		return "downloading"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}

	return "unknown"
}

type Options struct {
	MinPeers             int
	PeerDiscoveryTimeout time.Duration
	IdleTimeout          time.Duration
	TotalPieces          int

	// TargetFile and ExpectedSize enable the size check after completion
	TargetFile   string
	ExpectedSize int64

	// Progress receives the byte count of every validated piece
	Progress func(bytes int64)
}

// Supervisor receives engine events for one download and is never reused.
type Supervisor struct {
	opts Options

	state     atomic.Int32
	connected atomic.Int32

	mu        sync.Mutex
	received  map[int]struct{}
	validated map[int]struct{}
	cause     error
	job       engine.Job

	complete     chan struct{}
	completeOnce sync.Once
	failed       chan struct{}
	failedOnce   sync.Once
}

func NewSupervisor(opts Options) *Supervisor {
	return &Supervisor{
		opts:      opts,
		received:  make(map[int]struct{}),
		validated: make(map[int]struct{}),
		complete:  make(chan struct{}),
		failed:    make(chan struct{}),
	}
}

// Attach records the job to detach when the wait is cancelled.
func (s *Supervisor) Attach(job engine.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.job = job
}

func (s *Supervisor) OnPeerConnected() {
	s.connected.Add(1)
}

func (s *Supervisor) OnPeerDisconnected() {
	for {
		n := s.connected.Load()
		if n <= 0 || s.connected.CompareAndSwap(n, n-1) {
			return
		}
	}
}

func (s *Supervisor) OnPieceReceived(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.received[index] = struct{}{}
}

func (s *Supervisor) OnPieceDownloaded(index int, bytes int64) {
	s.mu.Lock()
	_, seen := s.validated[index]
	s.validated[index] = struct{}{}
	s.received[index] = struct{}{}
	s.mu.Unlock()

	if !seen && s.opts.Progress != nil {
		s.opts.Progress(bytes)
	}
}

func (s *Supervisor) OnDownloadComplete() {
	s.completeOnce.Do(func() { close(s.complete) })
}

func (s *Supervisor) OnDownloadFailed(cause error) {
	if cause == nil {
		cause = errors.New("transfer failed")
	}

	s.mu.Lock()
	if s.cause == nil {
		s.cause = cause
	}
	s.mu.Unlock()

	s.failedOnce.Do(func() { close(s.failed) })
}

func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) ConnectedPeers() int {
	return int(s.connected.Load())
}

func (s *Supervisor) ReceivedPieces() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.received)
}

func (s *Supervisor) DownloadedPieces() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.validated)
}

func (s *Supervisor) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cause
}

type wakeup int

const (
	wokeTimeout wakeup = iota
	wokeComplete
	wokeFailed
	wokeCancelled
)

func (s *Supervisor) wait(ctx context.Context, d time.Duration) wakeup {
	// Signals that already fired win over an expired or zero timeout
	select {
	case <-s.complete:
		return wokeComplete
	case <-s.failed:
		return wokeFailed
	default:
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.complete:
		return wokeComplete
	case <-s.failed:
		return wokeFailed
	case <-ctx.Done():
		return wokeCancelled
	case <-timer.C:
		return wokeTimeout
	}
}

func (s *Supervisor) fail(reason, cause error) error {
	s.state.Store(int32(Failed))

	return &Error{Reason: reason, Cause: cause}
}

func (s *Supervisor) cancel(ctx context.Context) error {
	s.state.Store(int32(Cancelled))

	s.mu.Lock()
	job := s.job
	s.mu.Unlock()

	if job != nil {
		job.Detach()
	}

	return &Error{Reason: ErrInterrupted, Cause: ctx.Err()}
}

func (s *Supervisor) succeed() error {
	if s.opts.TargetFile != "" && s.opts.ExpectedSize > 0 {
		info, err := os.Stat(s.opts.TargetFile)
		if err != nil {
			return s.fail(ErrSizeMismatch, err)
		}

		if info.Size() != s.opts.ExpectedSize {
			return s.fail(ErrSizeMismatch, fmt.Errorf("expected %d bytes, got %d", s.opts.ExpectedSize, info.Size()))
		}
	}

	s.state.Store(int32(Succeeded))

	return nil
}

// AwaitCompletion blocks until the download succeeded or failed definitively.
// It first waits PeerDiscoveryTimeout for completion, then repeatedly requires MinPeers connected peers
// (unless every piece has already been received) and at least one newly validated piece per IdleTimeout.
// A failure reported by the engine is surfaced as soon as it is observed. When ctx is done the attached
// job is detached and ErrInterrupted is returned.
func (s *Supervisor) AwaitCompletion(ctx context.Context) error {
	switch s.wait(ctx, s.opts.PeerDiscoveryTimeout) {
	case wokeComplete:
		return s.succeed()
	case wokeCancelled:
		return s.cancel(ctx)
	case wokeFailed, wokeTimeout:
	}

	for {
		if cause := s.failure(); cause != nil {
			s.state.Store(int32(Failed))

			return fmt.Errorf("transfer failed: %w", cause)
		}

		if s.ConnectedPeers() < s.opts.MinPeers && s.ReceivedPieces() < s.opts.TotalPieces {
			return s.fail(ErrInsufficientPeers, fmt.Errorf("%d of %d required peers connected",
				s.ConnectedPeers(), s.opts.MinPeers))
		}

		s.state.CompareAndSwap(int32(WaitingForPeers), int32(Downloading))

		before := s.DownloadedPieces()

		switch s.wait(ctx, s.opts.IdleTimeout) {
		case wokeComplete:
			return s.succeed()
		case wokeCancelled:
			return s.cancel(ctx)
		case wokeFailed:
			continue
		case wokeTimeout:
		}

		if s.DownloadedPieces() <= before {
			return s.fail(ErrStalledTransfer, fmt.Errorf("no piece validated within %s", s.opts.IdleTimeout))
		}
	}
}

var _ engine.EventSink = (*Supervisor)(nil)
