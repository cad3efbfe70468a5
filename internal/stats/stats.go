// Package stats defines the counter snapshot handed to the optional
// stats callback (spec §6 "Stats callback").
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// Names of the counters produced by the indexer session, in the order
// spec §6 lists them.
const (
	Received       = "received"
	Docs           = "docs"
	HTTPReq        = "http_req"
	BulkSuccess    = "bulk_success"
	BulkFailure    = "bulk_failure"
	Indexed        = "indexed"
	Errors         = "errors"
	Batches        = "batches"
	Backlogged     = "backlogged"
	Consumed       = "consumed"
	CleanupSuccess = "cleanup_success"
	CleanupFail    = "cleanup_fail"
	WheelError     = "wheel_error"
)

var allNames = []string{
	Received, Docs, HTTPReq, BulkSuccess, BulkFailure, Indexed, Errors,
	Batches, Backlogged, Consumed, CleanupSuccess, CleanupFail, WheelError,
}

// Counters is a mutable set of named counters, safe for concurrent
// increments from multiple goroutines (HTTP response handlers, tail error
// callbacks) feeding back into a single-threaded owner.
type Counters struct {
	values map[string]*int64
}

// New returns a zeroed Counters with every known counter name present, so
// a snapshot always reports all names even if never incremented.
func New() *Counters {
	c := &Counters{values: make(map[string]*int64, len(allNames))}
	for _, name := range allNames {
		var v int64
		c.values[name] = &v
	}
	return c
}

// Add increments the named counter by delta. Unknown names are ignored.
func (c *Counters) Add(name string, delta int64) {
	if p, ok := c.values[name]; ok {
		atomic.AddInt64(p, delta)
	}
}

// Snapshot returns a point-in-time copy of every counter.
func (c *Counters) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(c.values))
	for name, p := range c.values {
		out[name] = atomic.LoadInt64(p)
	}
	return out
}

// Callback is invoked every StatsInterval with a counter snapshot. A
// callback that panics is disabled for the remainder of the session and
// the failure logged (spec §6, §7).
type Callback func(map[string]int64)

// Render formats a snapshot the way the default CLI stats handler does:
// sorted `k=v` pairs if any counter is non-zero-eligible (i.e. any
// counters exist at all), or "Nothing to report." if the map is empty.
// This resolves the stats-message-grammar ambiguity noted in spec §9.
func Render(snapshot map[string]int64) string {
	if len(snapshot) == 0 {
		return "Nothing to report."
	}
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, snapshot[name]))
	}
	return strings.Join(parts, " ")
}
