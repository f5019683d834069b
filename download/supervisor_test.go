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

package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"artiswarm/engine/enginetest"
)

var tempPath string

func TestMain(m *testing.M) {
	var err error

	tempPath, err = os.MkdirTemp("", "artiswarm_download-")
	if err != nil {
		panic(err)
	}

	code := m.Run()

	_ = os.RemoveAll(tempPath)

	os.Exit(code)
}

func TestAwaitCompletionBeforeDiscoveryTimeout(t *testing.T) {
	s := NewSupervisor(Options{MinPeers: 1, PeerDiscoveryTimeout: time.Second, IdleTimeout: time.Second, TotalPieces: 4})

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.OnDownloadComplete()
	}()

	start := time.Now()

	if err := s.AwaitCompletion(context.Background()); err != nil {
		t.Fatalf("Expected success, got %v", err)
	}

	if elapsed := time.Since(start); elapsed >= time.Second {
		t.Fatalf("Completion signal did not wake discovery wait, took %s", elapsed)
	}

	if s.State() != Succeeded {
		t.Fatalf("Expected state %s, got %s", Succeeded, s.State())
	}
}

func TestAwaitCompletionInsufficientPeers(t *testing.T) {
	s := NewSupervisor(Options{MinPeers: 1, PeerDiscoveryTimeout: 10 * time.Millisecond,
		IdleTimeout: 50 * time.Millisecond, TotalPieces: 4})

	err := s.AwaitCompletion(context.Background())
	if !errors.Is(err, ErrInsufficientPeers) {
		t.Fatalf("Expected ErrInsufficientPeers, got %v", err)
	}

	var downloadErr *Error
	if !errors.As(err, &downloadErr) || downloadErr.Reason != ErrInsufficientPeers {
		t.Fatalf("Expected *Error with insufficient peers reason, got %#v", err)
	}

	if s.State() != Failed {
		t.Fatalf("Expected state %s, got %s", Failed, s.State())
	}
}

func TestAwaitCompletionStalled(t *testing.T) {
	s := NewSupervisor(Options{MinPeers: 1, PeerDiscoveryTimeout: 10 * time.Millisecond,
		IdleTimeout: 50 * time.Millisecond, TotalPieces: 4})
	s.OnPeerConnected()

	if err := s.AwaitCompletion(context.Background()); !errors.Is(err, ErrStalledTransfer) {
		t.Fatalf("Expected ErrStalledTransfer, got %v", err)
	}
}

func TestAwaitCompletionStalledAfterIdleTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a two second idle timeout")
	}

	s := NewSupervisor(Options{MinPeers: 1, IdleTimeout: 2000 * time.Millisecond, TotalPieces: 10})
	s.OnPeerConnected()

	start := time.Now()
	err := s.AwaitCompletion(context.Background())
	elapsed := time.Since(start)

	if !errors.Is(err, ErrStalledTransfer) {
		t.Fatalf("Expected ErrStalledTransfer, got %v", err)
	}

	if elapsed < 1900*time.Millisecond || elapsed > 3*time.Second {
		t.Fatalf("Expected stall to be detected after about 2s, took %s", elapsed)
	}
}

func TestAwaitCompletionKeepsWaitingWhilePiecesAdvance(t *testing.T) {
	var progress atomic.Int64

	s := NewSupervisor(Options{MinPeers: 1, PeerDiscoveryTimeout: 10 * time.Millisecond,
		IdleTimeout: 100 * time.Millisecond, TotalPieces: 5, Progress: func(b int64) { progress.Add(b) }})
	s.OnPeerConnected()

	go func() {
		for i := 0; i < 5; i++ {
			time.Sleep(30 * time.Millisecond)
			s.OnPieceReceived(i)
			s.OnPieceDownloaded(i, 100)
		}

		s.OnDownloadComplete()
	}()

	if err := s.AwaitCompletion(context.Background()); err != nil {
		t.Fatalf("Expected success while pieces keep arriving, got %v", err)
	}

	if p := progress.Load(); p != 500 {
		t.Fatalf("Expected 500 bytes of progress, got %d", p)
	}
}

func TestAwaitCompletionAllPiecesReceivedWithoutPeers(t *testing.T) {
	s := NewSupervisor(Options{MinPeers: 1, PeerDiscoveryTimeout: 10 * time.Millisecond,
		IdleTimeout: 200 * time.Millisecond, TotalPieces: 2})

	s.OnPieceReceived(0)
	s.OnPieceReceived(1)

	go func() {
		time.Sleep(30 * time.Millisecond)
		s.OnPieceDownloaded(0, 10)
		s.OnPieceDownloaded(1, 10)
		s.OnDownloadComplete()
	}()

	if err := s.AwaitCompletion(context.Background()); err != nil {
		t.Fatalf("Fully received download should not fail for missing peers, got %v", err)
	}
}

func TestAwaitCompletionSurfacesFailure(t *testing.T) {
	cause := errors.New("disk full")

	s := NewSupervisor(Options{MinPeers: 1, PeerDiscoveryTimeout: 10 * time.Millisecond,
		IdleTimeout: 5 * time.Second, TotalPieces: 4})
	s.OnPeerConnected()

	go func() {
		time.Sleep(50 * time.Millisecond)
		s.OnDownloadFailed(cause)
	}()

	start := time.Now()

	err := s.AwaitCompletion(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("Expected recorded cause to be surfaced, got %v", err)
	}

	if elapsed := time.Since(start); elapsed >= 5*time.Second {
		t.Fatalf("Failure was not surfaced until the idle timeout, took %s", elapsed)
	}

	if s.State() != Failed {
		t.Fatalf("Expected state %s, got %s", Failed, s.State())
	}
}

func TestAwaitCompletionCancelled(t *testing.T) {
	s := NewSupervisor(Options{MinPeers: 1, PeerDiscoveryTimeout: 5 * time.Second,
		IdleTimeout: 5 * time.Second, TotalPieces: 4})

	job := &enginetest.Job{}
	s.Attach(job)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := s.AwaitCompletion(ctx)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("Expected ErrInterrupted, got %v", err)
	}

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected cancellation cause to be wrapped, got %v", err)
	}

	if s.State() != Cancelled {
		t.Fatalf("Expected state %s, got %s", Cancelled, s.State())
	}

	if !job.Detached() {
		t.Fatalf("Expected job to be detached on cancellation")
	}
}

func TestAwaitCompletionSizeMismatch(t *testing.T) {
	target := filepath.Join(tempPath, "short.bin")
	if err := os.WriteFile(target, []byte("abc"), 0644); err != nil {
		t.Fatalf("Failed to write target: %v", err)
	}

	s := NewSupervisor(Options{PeerDiscoveryTimeout: time.Second, TargetFile: target, ExpectedSize: 4})
	s.OnDownloadComplete()

	if err := s.AwaitCompletion(context.Background()); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("Expected ErrSizeMismatch, got %v", err)
	}

	s = NewSupervisor(Options{PeerDiscoveryTimeout: time.Second, TargetFile: target, ExpectedSize: 3})
	s.OnDownloadComplete()

	if err := s.AwaitCompletion(context.Background()); err != nil {
		t.Fatalf("Expected matching size to succeed, got %v", err)
	}
}

func TestSupervisorCounters(t *testing.T) {
	calls := 0
	s := NewSupervisor(Options{Progress: func(int64) { calls++ }})

	s.OnPeerDisconnected()
	s.OnPeerConnected()
	s.OnPeerConnected()
	s.OnPeerDisconnected()

	if n := s.ConnectedPeers(); n != 1 {
		t.Fatalf("Expected 1 connected peer, got %d", n)
	}

	s.OnPieceReceived(3)
	s.OnPieceReceived(3)
	s.OnPieceDownloaded(1, 10)
	s.OnPieceDownloaded(1, 10)

	if n := s.ReceivedPieces(); n != 2 {
		t.Fatalf("Expected 2 distinct received pieces, got %d", n)
	}

	if n := s.DownloadedPieces(); n != 1 {
		t.Fatalf("Expected 1 distinct validated piece, got %d", n)
	}

	if calls != 1 {
		t.Fatalf("Expected progress to be reported once per piece, got %d", calls)
	}
}

func TestOutcome(t *testing.T) {
	table := []struct {
		err      error
		expected string
	}{
		{nil, "succeeded"},
		{&Error{Reason: ErrInsufficientPeers}, "insufficient_peers"},
		{&Error{Reason: ErrStalledTransfer}, "stalled"},
		{&Error{Reason: ErrInterrupted, Cause: context.Canceled}, "interrupted"},
		{&Error{Reason: ErrSizeMismatch}, "size_mismatch"},
		{errors.New("other"), "failed"},
	}

	for _, tt := range table {
		if got := Outcome(tt.err); got != tt.expected {
			t.Fatalf("Outcome(%v) = %s, expected %s", tt.err, got, tt.expected)
		}
	}
}
