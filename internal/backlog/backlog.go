// Package backlog implements the Backlog Store (spec §4.E): disk-
// persistent spill of undelivered batches, replay back to the
// dispatcher, and disk-space reclamation, all coordinated by per-entry
// advisory locks.
package backlog

import (
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/elastic/file-to-elasticsearch/internal/stats"
)

const (
	batchExt          = ".batch"
	reclaimEvery      = 10
	replayPerPass     = 25
	replayConcurrency = 5
)

// Dispatch is the callback the store hands replayed batches to (the
// Dispatcher, spec §4.D). It is invoked once per replayed id.
type Dispatch func(id string, bytes []byte)

// Store is the disk-backed backlog directory.
type Store struct {
	dir       string
	ceiling   int64 // 0 means unbounded
	locks     *lockRegistry
	spillSeen int

	dispatch Dispatch
	counters *stats.Counters
}

// New returns a Store rooted at dir. ceiling of 0 disables disk-pressure
// reclaim (spec §4.E "Reclaim ... only if BatchDiskSpace is set").
// counters is the same Counters the owning indexer session reports
// through the stats callback (spec §6); Reclaim increments
// cleanup_success/cleanup_fail on it directly as it runs. counters may
// be nil for tests that don't care about stats wiring.
func New(dir string, ceiling int64, counters *stats.Counters, dispatch Dispatch) *Store {
	return &Store{
		dir:      dir,
		ceiling:  ceiling,
		locks:    newLockRegistry(),
		dispatch: dispatch,
		counters: counters,
	}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+batchExt)
}

// Spill writes bytes to <id>.batch if it doesn't already exist (spec
// §4.E Spill). Every 10th spill triggers a Reclaim pass. Returns an error
// if the directory or file cannot be written. The store itself holds no
// timers; replay scheduling is left to the indexer's single executor
// (spec §5).
func (s *Store) Spill(id string, data []byte) error {
	p := s.path(id)
	if _, err := os.Stat(p); err == nil {
		// Already on disk; spec §3 invariant: a batch id corresponds to
		// at most one file on disk.
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(err, "creating backlog directory")
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return errors.Wrapf(err, "spilling batch %s", id)
	}
	s.spillSeen++
	if s.spillSeen%reclaimEvery == 0 {
		s.Reclaim()
	}
	return nil
}

// entry describes one backlog file on disk.
type entry struct {
	id    string
	path  string
	size  int64
	ctime time.Time
}

func (s *Store) listEntries() ([]entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	entries := make([]entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if filepath.Ext(name) != batchExt {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		id := name[:len(name)-len(batchExt)]
		entries = append(entries, entry{
			id:    id,
			path:  filepath.Join(s.dir, name),
			size:  info.Size(),
			ctime: ctime(info),
		})
	}
	return entries, nil
}

// Replay lists *.batch in the backlog directory, shuffles them, and hands
// up to 25 to the Dispatch callback, at most replayConcurrency at a time
// (spec §4.D dispatch is per-entry synchronous-under-lock, so a plain
// errgroup bounds how many of those synchronous calls run concurrently,
// the same fan-out-with-a-cap shape the teacher's indexer uses for
// flushing). It returns true if more than 25 remained (the caller should
// reschedule Replay in 15s; otherwise the normal 60s cadence applies),
// per spec §4.E.
func (s *Store) Replay() (moreThanMax bool, err error) {
	entries, err := s.listEntries()
	if err != nil {
		return false, err
	}
	rand.Shuffle(len(entries), func(i, j int) { entries[i], entries[j] = entries[j], entries[i] })

	n := len(entries)
	if n > replayPerPass {
		n = replayPerPass
	}

	var g errgroup.Group
	sem := make(chan struct{}, replayConcurrency)
	for _, e := range entries[:n] {
		e := e
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			s.replayOne(e)
			return nil
		})
	}
	g.Wait()

	return len(entries) > replayPerPass, nil
}

func (s *Store) replayOne(e entry) {
	if s.locks.acquire(e.path) == acquireFailed {
		return
	}
	defer s.locks.release(e.path)
	data, err := os.ReadFile(e.path)
	if err != nil {
		return
	}
	if s.dispatch != nil {
		s.dispatch(e.id, data)
	}
}

// Remove deletes a successfully-dispatched batch file, releasing its
// lock. A no-op if the file is already gone.
func (s *Store) Remove(id string) {
	p := s.path(id)
	s.locks.acquire(p)
	defer s.locks.release(p)
	os.Remove(p)
}

// Reclaim enforces the configured disk-space ceiling by deleting the
// oldest entries first until the total size is at or below the ceiling
// (spec §4.E, §8 boundary example). A no-op if no ceiling is configured.
func (s *Store) Reclaim() {
	if s.ceiling <= 0 {
		return
	}
	entries, err := s.listEntries()
	if err != nil {
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ctime.Before(entries[j].ctime) })

	var total int64
	for _, e := range entries {
		total += e.size
	}
	remaining := len(entries)

	for _, e := range entries {
		if total <= s.ceiling {
			break
		}
		// Never evict the last remaining entry even if still over the
		// ceiling: deleting it would empty the spill entirely, which
		// defeats the point of having one (spec §8 scenario 5).
		if remaining <= 1 {
			break
		}
		if s.locks.acquire(e.path) == acquireFailed {
			continue
		}
		if err := os.Remove(e.path); err != nil {
			// Whether a genuine I/O error or a delete race (file already
			// gone), this is non-fatal (spec §4.E, §7) and counted as
			// cleanup_fail.
			s.countCleanup(false)
			s.locks.release(e.path)
			continue
		}
		total -= e.size
		remaining--
		s.countCleanup(true)
		s.locks.release(e.path)
	}
}

func (s *Store) countCleanup(success bool) {
	if s.counters == nil {
		return
	}
	if success {
		s.counters.Add(stats.CleanupSuccess, 1)
		return
	}
	s.counters.Add(stats.CleanupFail, 1)
}

func removeQuiet(path string) {
	os.Remove(path)
}
