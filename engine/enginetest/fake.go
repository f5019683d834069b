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

// Package enginetest provides an in-memory engine for tests of code driving an engine.Engine.
package enginetest

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"artiswarm/engine"

	"github.com/anacrolix/torrent/metainfo"
)

type DownloadFunc func(ctx context.Context, mi *metainfo.MetaInfo, destFile, destDir string,
	sink engine.EventSink) (engine.Job, error)

// Fake records every call and keeps seeding state keyed by torrent file path.
type Fake struct {
	// StartErr is returned by Start after address validation succeeded
	StartErr error
	// SeedErr is returned by Seed for every torrent when set
	SeedErr error
	// OnDownload handles Download, the default returns a job that never reports anything
	OnDownload DownloadFunc

	mu       sync.Mutex
	started  bool
	starts   int
	stops    int
	seeding  map[string]string
	seeded   []string
	unseeded []string
}

func New() *Fake {
	return &Fake{seeding: make(map[string]string)}
}

// SetSeedErr changes SeedErr while the fake is in use.
func (f *Fake) SetSeedErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.SeedErr = err
}

func (f *Fake) Start(localAddresses []string, trackerURI string, _ time.Duration) error {
	if err := engine.ValidateStart(localAddresses, trackerURI); err != nil {
		return err
	}

	if f.StartErr != nil {
		return f.StartErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.started = true
	f.starts++

	return nil
}

func (f *Fake) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.started = false
	f.stops++
	f.seeding = make(map[string]string)

	return nil
}

func (f *Fake) Seed(torrentFile, sourceParentDir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.started {
		return engine.ErrNotStarted
	}

	if f.SeedErr != nil {
		return f.SeedErr
	}

	f.seeding[torrentFile] = sourceParentDir
	f.seeded = append(f.seeded, torrentFile)

	return nil
}

func (f *Fake) StopSeeding(torrentFile string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.seeding[torrentFile]; !exists {
		return engine.ErrNotSeeding
	}

	delete(f.seeding, torrentFile)
	f.unseeded = append(f.unseeded, torrentFile)

	return nil
}

func (f *Fake) IsSeeding(torrentFile string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, exists := f.seeding[torrentFile]

	return exists
}

func (f *Fake) Download(ctx context.Context, mi *metainfo.MetaInfo, destFile, destDir string,
	sink engine.EventSink) (engine.Job, error) {
	f.mu.Lock()
	started := f.started
	f.mu.Unlock()

	if !started {
		return nil, engine.ErrNotStarted
	}

	if f.OnDownload != nil {
		return f.OnDownload(ctx, mi, destFile, destDir, sink)
	}

	return &Job{}, nil
}

func (f *Fake) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.started
}

// Calls returns how often Start and Stop succeeded.
func (f *Fake) Calls() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.starts, f.stops
}

// Seeding returns the torrent files currently seeded in sorted order.
func (f *Fake) Seeding() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	files := make([]string, 0, len(f.seeding))
	for file := range f.seeding {
		files = append(files, file)
	}

	sort.Strings(files)

	return files
}

// SeedHistory returns every torrent file passed to a successful Seed call, in call order.
func (f *Fake) SeedHistory() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.seeded...)
}

// Unseeded returns every torrent file passed to a successful StopSeeding call, in call order.
func (f *Fake) Unseeded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.unseeded...)
}

// Job records whether it was detached.
type Job struct {
	detached atomic.Bool
}

func (j *Job) Detach() {
	j.detached.Store(true)
}

func (j *Job) Detached() bool {
	return j.detached.Load()
}

var _ engine.Engine = (*Fake)(nil)
