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

package registry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

const (
	journalSeparator = " || "
	maxJournalLine   = 1 << 20
)

// WriteJournal writes entries one per line in the given order.
func WriteJournal(w io.Writer, entries []Entry) error {
	writer := bufio.NewWriterSize(w, 1024*64)

	for _, e := range entries {
		if _, err := writer.WriteString(e.Source + journalSeparator + e.Torrent + "\n"); err != nil {
			return err
		}
	}

	return writer.Flush()
}

// ReadJournal parses entries from r. Lines with a wrong field count, an empty field or more than
// maxJournalLine bytes are skipped and counted; blank lines are ignored.
func ReadJournal(r io.Reader) (entries []Entry, skipped int, err error) {
	reader := bufio.NewReaderSize(r, 64*1024)

	var (
		line    []byte
		tooLong bool
	)

	for {
		chunk, isPrefix, readErr := reader.ReadLine()
		if errors.Is(readErr, io.EOF) {
			break
		} else if readErr != nil {
			return entries, skipped, readErr
		}

		if !tooLong {
			line = append(line, chunk...)

			if len(line) > maxJournalLine {
				tooLong = true
				line = line[:0]
			}
		}

		if isPrefix {
			continue
		}

		if tooLong {
			tooLong = false
			skipped++

			continue
		}

		text := string(line)
		line = line[:0]

		if strings.TrimSpace(text) == "" {
			continue
		}

		entry, ok := parseJournalLine(text)
		if !ok {
			skipped++
			continue
		}

		entries = append(entries, entry)
	}

	return entries, skipped, nil
}

func parseJournalLine(line string) (Entry, bool) {
	fields := strings.Split(line, strings.TrimSpace(journalSeparator))
	if len(fields) != 2 {
		return Entry{}, false
	}

	source, torrent := strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])
	if source == "" || torrent == "" {
		return Entry{}, false
	}

	return Entry{Source: source, Torrent: torrent}, true
}

func writeJournalFile(path string, entries []Entry) error {
	tmpPath := fmt.Sprintf("%s.tmp", path)

	if err := func() error {
		f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}

		//goland:noinspection GoUnhandledErrorResult
		defer f.Close()

		if err = WriteJournal(f, entries); err != nil {
			return err
		}

		return f.Sync()
	}(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, path)
}

// readJournalFile returns no entries and no error when the journal does not exist yet.
func readJournalFile(path string) ([]Entry, int, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	} else if err != nil {
		return nil, 0, err
	}

	//goland:noinspection GoUnhandledErrorResult
	defer f.Close()

	return ReadJournal(f)
}
