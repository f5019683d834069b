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
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type removalRecorder struct {
	mu      sync.Mutex
	removed []Entry
}

func (rec *removalRecorder) listener(source, torrent string) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.removed = append(rec.removed, Entry{Source: source, Torrent: torrent})
}

func (rec *removalRecorder) get() []Entry {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	return append([]Entry(nil), rec.removed...)
}

func newTestRegistry(t *testing.T, capacity int) (*Registry, *removalRecorder, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "registry.journal")
	rec := &removalRecorder{}

	r, err := New(path, capacity, rec.listener, nil)
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	return r, rec, path
}

func entry(name string) Entry {
	return Entry{Source: "/src/" + name, Torrent: "/torrents/" + name + ".torrent"}
}

func TestCapacityEviction(t *testing.T) {
	r, rec, _ := newTestRegistry(t, 3)

	for _, name := range []string{"A", "B", "C", "D", "E"} {
		e := entry(name)
		r.Register(e.Source, e.Torrent)
	}

	if diff := cmp.Diff([]Entry{entry("C"), entry("D"), entry("E")}, r.Entries()); diff != "" {
		t.Fatalf("Registry contents differ from expected (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]Entry{entry("A"), entry("B")}, rec.get()); diff != "" {
		t.Fatalf("Listener invocations differ from expected (-want +got):\n%s", diff)
	}
}

func TestSizeNeverExceedsCapacity(t *testing.T) {
	r, _, _ := newTestRegistry(t, 5)

	for i := 0; i < 500; i++ {
		name := fmt.Sprintf("file-%d", rand.Intn(20))

		if rand.Intn(4) == 0 {
			r.Remove("/src/" + name)
		} else {
			r.Register("/src/"+name, "/torrents/"+name)
		}

		if r.Len() > 5 {
			t.Fatalf("Registry size %d exceeded capacity 5 after %d operations", r.Len(), i+1)
		}
	}
}

func TestReRegisterRefreshesRecency(t *testing.T) {
	r, rec, _ := newTestRegistry(t, 3)

	for _, name := range []string{"A", "B", "C"} {
		e := entry(name)
		r.Register(e.Source, e.Torrent)
	}

	r.Register(entry("A").Source, "/torrents/A-v2.torrent")

	expected := []Entry{entry("B"), entry("C"), {Source: entry("A").Source, Torrent: "/torrents/A-v2.torrent"}}
	if diff := cmp.Diff(expected, r.Entries()); diff != "" {
		t.Fatalf("Re-registration produced unexpected contents (-want +got):\n%s", diff)
	}

	if n := len(rec.get()); n != 0 {
		t.Fatalf("Re-registration should not notify the listener, got %d calls", n)
	}

	// B is now the least recently used entry
	r.Register(entry("D").Source, entry("D").Torrent)

	if diff := cmp.Diff([]Entry{entry("B")}, rec.get()); diff != "" {
		t.Fatalf("Unexpected eviction after re-registration (-want +got):\n%s", diff)
	}
}

func TestLookupRefreshesRecency(t *testing.T) {
	r, rec, _ := newTestRegistry(t, 2)

	r.Register(entry("A").Source, entry("A").Torrent)
	r.Register(entry("B").Source, entry("B").Torrent)

	if torrent, ok := r.Lookup(entry("A").Source); !ok || torrent != entry("A").Torrent {
		t.Fatalf("Lookup returned %q (%v), expected %q", torrent, ok, entry("A").Torrent)
	}

	r.Register(entry("C").Source, entry("C").Torrent)

	if diff := cmp.Diff([]Entry{entry("B")}, rec.get()); diff != "" {
		t.Fatalf("Expected B to be evicted after A was looked up (-want +got):\n%s", diff)
	}

	if _, ok := r.Lookup("/src/missing"); ok {
		t.Fatalf("Lookup of unknown source should fail")
	}
}

func TestFlushAndReload(t *testing.T) {
	r, _, path := newTestRegistry(t, 10)

	for _, name := range []string{"A", "B", "C", "D"} {
		e := entry(name)
		r.Register(e.Source, e.Torrent)
	}

	r.Lookup(entry("B").Source)

	if err := r.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if r.Dirty() {
		t.Fatalf("Registry should be clean after flush")
	}

	reloaded, err := New(path, 10, nil, nil)
	if err != nil {
		t.Fatalf("Failed to reload registry: %v", err)
	}

	expected := []Entry{entry("A"), entry("C"), entry("D"), entry("B")}
	if diff := cmp.Diff(expected, reloaded.Entries()); diff != "" {
		t.Fatalf("Reloaded registry differs (-want +got):\n%s", diff)
	}

	if reloaded.Dirty() {
		t.Fatalf("Freshly loaded registry should not be dirty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read journal: %v", err)
	}

	if want := "/src/A || /torrents/A.torrent\n"; string(raw[:len(want)]) != want {
		t.Fatalf("Journal should start with %q, got %q", want, raw)
	}
}

func TestFlushSkippedWhenClean(t *testing.T) {
	r, _, path := newTestRegistry(t, 10)

	r.Register(entry("A").Source, entry("A").Torrent)

	if err := r.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("sentinel"), 0644); err != nil {
		t.Fatalf("Failed to overwrite journal: %v", err)
	}

	if err := r.Flush(); err != nil {
		t.Fatalf("Second flush failed: %v", err)
	}

	raw, _ := os.ReadFile(path)
	if string(raw) != "sentinel" {
		t.Fatalf("Clean registry should not rewrite journal, got %q", raw)
	}
}

func TestFlushFailureKeepsDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "registry.journal")

	r, err := New(path, 10, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	r.Register(entry("A").Source, entry("A").Torrent)

	if err = r.Flush(); err == nil {
		t.Fatalf("Flush into missing directory should fail")
	}

	if !r.Dirty() {
		t.Fatalf("Failed flush should leave registry dirty for retry")
	}
}

func TestLoadMissingJournal(t *testing.T) {
	r, rec, _ := newTestRegistry(t, 10)

	if r.Len() != 0 {
		t.Fatalf("Registry without journal should be empty, has %d entries", r.Len())
	}

	if len(rec.get()) != 0 {
		t.Fatalf("Listener should not be called when loading an empty registry")
	}
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.journal")
	journal := "/src/a || /t/a.torrent\n" +
		"no separator here\n" +
		"/x || /y || /z\n" +
		" || /t/empty.torrent\n" +
		"\n" +
		strings.Repeat("junk", 512*1024) + " || /t/huge.torrent\n" +
		"/src/c||/t/c.torrent\n"

	if err := os.WriteFile(path, []byte(journal), 0644); err != nil {
		t.Fatalf("Failed to write journal: %v", err)
	}

	r, err := New(path, 10, nil, nil)
	if err != nil {
		t.Fatalf("Load should not fail on malformed lines: %v", err)
	}

	expected := []Entry{{"/src/a", "/t/a.torrent"}, {"/src/c", "/t/c.torrent"}}
	if diff := cmp.Diff(expected, r.Entries()); diff != "" {
		t.Fatalf("Loaded entries differ (-want +got):\n%s", diff)
	}
}

func TestReadJournalSkipsOverlongLine(t *testing.T) {
	journal := "/src/a || /t/a.torrent\n" +
		strings.Repeat("x", 2*maxJournalLine) + "\n" +
		"/src/b || /t/b.torrent\n" +
		"/src/c || " + strings.Repeat("y", maxJournalLine)

	entries, skipped, err := ReadJournal(strings.NewReader(journal))
	if err != nil {
		t.Fatalf("ReadJournal failed: %v", err)
	}

	if skipped != 2 {
		t.Fatalf("Expected 2 skipped lines, got %d", skipped)
	}

	expected := []Entry{{"/src/a", "/t/a.torrent"}, {"/src/b", "/t/b.torrent"}}
	if diff := cmp.Diff(expected, entries); diff != "" {
		t.Fatalf("Read entries differ (-want +got):\n%s", diff)
	}
}

func TestLoadOverflowEvictsOldest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.journal")
	journal := "/src/1 || /t/1\n/src/2 || /t/2\n/src/3 || /t/3\n/src/4 || /t/4\n"

	if err := os.WriteFile(path, []byte(journal), 0644); err != nil {
		t.Fatalf("Failed to write journal: %v", err)
	}

	rec := &removalRecorder{}

	r, err := New(path, 2, rec.listener, nil)
	if err != nil {
		t.Fatalf("Failed to load registry: %v", err)
	}

	if diff := cmp.Diff([]Entry{{"/src/3", "/t/3"}, {"/src/4", "/t/4"}}, r.Entries()); diff != "" {
		t.Fatalf("Unexpected entries after overflowing load (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]Entry{{"/src/1", "/t/1"}, {"/src/2", "/t/2"}}, rec.get()); diff != "" {
		t.Fatalf("Unexpected listener calls after overflowing load (-want +got):\n%s", diff)
	}

	if !r.Dirty() {
		t.Fatalf("Registry trimmed during load should be dirty")
	}
}

func TestCleanupBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	r, rec, _ := newTestRegistry(t, 10)

	touch := func(name string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(name), 0644); err != nil {
			t.Fatalf("Failed to create %s: %v", p, err)
		}

		return p
	}

	healthy := Entry{touch("ok.bin"), touch("ok.torrent")}
	noSource := Entry{filepath.Join(dir, "gone.bin"), touch("gone.torrent")}
	noTorrent := Entry{touch("lost.bin"), filepath.Join(dir, "lost.torrent")}

	for _, e := range []Entry{healthy, noSource, noTorrent} {
		r.Register(e.Source, e.Torrent)
	}

	removed := r.CleanupBrokenFiles()
	sort.Strings(removed)

	expected := []string{noSource.Torrent, noTorrent.Torrent}
	sort.Strings(expected)

	if diff := cmp.Diff(expected, removed); diff != "" {
		t.Fatalf("Unexpected removed torrents (-want +got):\n%s", diff)
	}

	if n := len(rec.get()); n != 2 {
		t.Fatalf("Listener should be called once per removed entry, got %d calls", n)
	}

	if diff := cmp.Diff([]Entry{healthy}, r.Entries()); diff != "" {
		t.Fatalf("Healthy entry should remain (-want +got):\n%s", diff)
	}

	if again := r.CleanupBrokenFiles(); len(again) != 0 {
		t.Fatalf("Second sweep should remove nothing, removed %v", again)
	}

	if n := len(rec.get()); n != 2 {
		t.Fatalf("Second sweep should not call listener, total calls %d", n)
	}
}

func TestSetCapacityShrinks(t *testing.T) {
	r, rec, _ := newTestRegistry(t, 4)

	for _, name := range []string{"A", "B", "C", "D"} {
		e := entry(name)
		r.Register(e.Source, e.Torrent)
	}

	if err := r.SetCapacity(2); err != nil {
		t.Fatalf("SetCapacity failed: %v", err)
	}

	if r.Capacity() != 2 || r.Len() != 2 {
		t.Fatalf("Expected capacity 2 and length 2, got %d and %d", r.Capacity(), r.Len())
	}

	if diff := cmp.Diff([]Entry{entry("A"), entry("B")}, rec.get()); diff != "" {
		t.Fatalf("Unexpected evictions after shrinking (-want +got):\n%s", diff)
	}

	if err := r.SetCapacity(0); err == nil {
		t.Fatalf("SetCapacity(0) should fail")
	}
}

func TestRemove(t *testing.T) {
	r, rec, _ := newTestRegistry(t, 4)

	r.Register(entry("A").Source, entry("A").Torrent)

	if !r.Remove(entry("A").Source) {
		t.Fatalf("Remove of registered source should report presence")
	}

	if r.Remove(entry("A").Source) {
		t.Fatalf("Remove of unknown source should report absence")
	}

	if diff := cmp.Diff([]Entry{entry("A")}, rec.get()); diff != "" {
		t.Fatalf("Listener should fire exactly once for removal (-want +got):\n%s", diff)
	}

	if _, exists := r.Snapshot()[entry("A").Source]; exists {
		t.Fatalf("Removed source still present in snapshot")
	}
}

func TestNewInvalidCapacity(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "j"), 0, nil, nil); err == nil {
		t.Fatalf("Expected error for zero capacity")
	}
}

func TestParseJournalLine(t *testing.T) {
	testCases := []struct {
		line string
		ok   bool
		out  Entry
	}{
		{"/a || /b", true, Entry{"/a", "/b"}},
		{"  /a   ||   /b  ", true, Entry{"/a", "/b"}},
		{"C:\\build\\out.zip || C:\\t\\out.zip.torrent", true, Entry{"C:\\build\\out.zip", "C:\\t\\out.zip.torrent"}},
		{"/a", false, Entry{}},
		{"/a || ", false, Entry{}},
		{"/a || /b || /c", false, Entry{}},
	}

	for _, testCase := range testCases {
		got, ok := parseJournalLine(testCase.line)
		if ok != testCase.ok || got != testCase.out {
			t.Fatalf("parseJournalLine(%q) = %v, %v; expected %v, %v", testCase.line, got, ok, testCase.out, testCase.ok)
		}
	}
}
