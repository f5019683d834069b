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

// Package record appends download outcomes to hourly JSON-lines files.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"artiswarm/log"
)

var ErrClosed = errors.New("recorder is closed")

type Outcome struct {
	JobID    string
	Torrent  string
	InfoHash string
	Result   string
	Bytes    int64
	Duration time.Duration
}

type Recorder struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	channel chan []byte
	done    chan struct{}
}

func fileName(dir string, t time.Time) string {
	return filepath.Join(dir, "events_"+t.Format("2006-01-02T15")+".json")
}

func openFile(dir string, t time.Time) (*os.File, error) {
	return os.OpenFile(fileName(dir, t), os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
}

// Open starts a recorder writing into dir, which is created when missing.
func Open(dir string, logger *slog.Logger) (*Recorder, error) {
	return open(dir, time.Now, logger)
}

func open(dir string, now func() time.Time, logger *slog.Logger) (*Recorder, error) {
	logger = log.OrDefault(logger)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	start := now()

	file, err := openFile(dir, start)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		dir:     dir,
		now:     now,
		logger:  logger.With("component", "record"),
		channel: make(chan []byte, 64),
		done:    make(chan struct{}),
	}

	go r.write(file, start)

	return r, nil
}

func (r *Recorder) write(file *os.File, start time.Time) {
	defer close(r.done)

	for buf := range r.channel {
		now := r.now()
		if !now.Truncate(time.Hour).Equal(start.Truncate(time.Hour)) {
			start = now

			if err := file.Close(); err != nil {
				r.logger.Error("failed to close event file", "err", err)
			}

			next, err := openFile(r.dir, start)
			if err != nil {
				r.logger.Error("failed to open event file, dropping records until next hour", "err", err)

				file = nil
			} else {
				file = next
			}
		}

		if file == nil {
			continue
		}

		if _, err := file.Write(buf); err != nil {
			r.logger.Error("failed to write event", "err", err)
		}
	}

	if file != nil {
		if err := file.Close(); err != nil {
			r.logger.Error("failed to close event file", "err", err)
		}
	}
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// Record queues one outcome as a JSON array line. Recording on a nil Recorder does nothing.
func (r *Recorder) Record(o Outcome) error {
	if r == nil {
		return nil
	}

	b := make([]byte, 0, 128)
	buf := bytes.NewBuffer(b)

	buf.WriteString("[")
	buf.WriteString(strconv.FormatInt(r.now().Unix(), 10))
	buf.WriteString(",")
	writeString(buf, o.JobID)
	buf.WriteString(",")
	writeString(buf, o.Torrent)
	buf.WriteString(",")
	writeString(buf, o.InfoHash)
	buf.WriteString(",")
	writeString(buf, o.Result)
	buf.WriteString(",")
	buf.WriteString(strconv.FormatInt(o.Bytes, 10))
	buf.WriteString(",")
	buf.WriteString(strconv.FormatInt(o.Duration.Milliseconds(), 10))
	buf.WriteString("]\n")

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	r.channel <- buf.Bytes()

	return nil
}

// Close flushes queued records and closes the current file.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}

	r.closed = true
	close(r.channel)
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("event writer did not finish")
	}
}
