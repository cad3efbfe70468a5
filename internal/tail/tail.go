// Package tail implements the Line Source (spec §4.A): it polls a set of
// files at their configured intervals and emits (fileID, line) and
// (fileID, error) events on a single channel, terminating the stream once
// every file has been removed from the active set.
//
// File-rotation detection is explicitly out of scope (spec §1); this
// implementation treats an unreadable/vanished file as a terminal error
// for that file, matching the "follow-tail primitive as a black box"
// framing of the spec.
//
// Grounded on the poll-interval, shrinking-active-set watcher in
// _examples/other_examples/67080679_Deep-Commit-gswarm-sidecar__internal-logs-monitor.go.go
// and the receiver/ticker split in
// _examples/other_examples/4fca1c26_mozilla-services-heka__plugins-file-file_output.go.go.
package tail

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// FileID identifies one tailed file for the lifetime of a Source.
type FileID string

// Event is either a Line or an Err, never both.
type Event struct {
	FileID FileID
	Line   string
	Err    *TailError
}

// TailError describes a failure tailing a file (spec §4.A).
type TailError struct {
	Op      string
	Code    string
	Message string
}

func (e *TailError) Error() string {
	return e.Op + ": " + e.Message
}

// Instruction is the minimal per-file configuration the Line Source
// needs: a path and a poll interval. The richer config.TailInstruction
// embeds this information; callers adapt it when calling Start.
type Instruction struct {
	ID       FileID
	Path     string
	Interval time.Duration
}

type fileState struct {
	instr  Instruction
	file   *os.File
	reader *bufio.Reader
	offset int64
}

// Source polls a set of files and emits line/error events.
type Source struct {
	mu        sync.Mutex
	active    map[FileID]*fileState
	out       chan Event
	closeOnce sync.Once
}

// Start begins tailing every instruction and returns a channel of events.
// The channel is closed once every file has been removed from the active
// set (spec §4.A "end-of-input"). Startup requires at least one readable
// file; otherwise it returns a config error immediately, per spec §4.A
// and §7.
func Start(ctx context.Context, instructions []Instruction) (*Source, <-chan Event, error) {
	s := &Source{
		active: make(map[FileID]*fileState, len(instructions)),
		out:    make(chan Event, 64),
	}
	for _, instr := range instructions {
		f, err := os.Open(instr.Path)
		if err != nil {
			continue
		}
		// Start at end-of-file: only new appends are tailed.
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			continue
		}
		off, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			f.Close()
			continue
		}
		s.active[instr.ID] = &fileState{
			instr:  instr,
			file:   f,
			reader: bufio.NewReader(f),
			offset: off,
		}
	}
	if len(s.active) == 0 {
		return nil, nil, errors.New("no readable files to tail")
	}

	for id, st := range s.active {
		go s.pollLoop(ctx, id, st)
	}
	return s, s.out, nil
}

func (s *Source) pollLoop(ctx context.Context, id FileID, st *fileState) {
	interval := st.instr.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.remove(id)
			return
		case <-ticker.C:
			if !s.readAvailable(id, st) {
				return
			}
		}
	}
}

// readAvailable reads whole lines currently available in st and emits
// them. It returns false if the file has become unreadable and has been
// removed from the active set.
//
// st.offset tracks the byte position of the last confirmed line boundary.
// Rather than rewind the file handle by the length of a partial trailing
// line (which would require accounting for however far bufio.Reader has
// already prefetched past it), each poll reseeks to st.offset and starts
// a fresh reader, so a partial line at EOF is simply re-read in full once
// more has been appended.
func (s *Source) readAvailable(id FileID, st *fileState) bool {
	if _, err := st.file.Seek(st.offset, io.SeekStart); err != nil {
		s.emitError(id, &TailError{Op: "seek", Code: "io_error", Message: err.Error()})
		s.remove(id)
		return false
	}
	st.reader.Reset(st.file)
	for {
		line, err := st.reader.ReadString('\n')
		if len(line) > 0 && err == nil {
			st.offset += int64(len(line))
			s.emitLine(id, trimNewline(line))
			continue
		}
		if err == io.EOF {
			return true
		}
		s.emitError(id, &TailError{Op: "read", Code: "io_error", Message: err.Error()})
		s.remove(id)
		return false
	}
}

func trimNewline(s string) string {
	n := len(s)
	if n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}

func (s *Source) emitLine(id FileID, line string) {
	s.out <- Event{FileID: id, Line: line}
}

func (s *Source) emitError(id FileID, e *TailError) {
	s.out <- Event{FileID: id, Err: e}
}

func (s *Source) remove(id FileID) {
	s.mu.Lock()
	if st, ok := s.active[id]; ok {
		st.file.Close()
		delete(s.active, id)
	}
	done := len(s.active) == 0
	s.mu.Unlock()
	if done {
		s.closeOut()
	}
}

func (s *Source) closeOut() {
	s.closeOnce.Do(func() { close(s.out) })
}

// ActiveCount returns the number of files still being tailed.
func (s *Source) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
