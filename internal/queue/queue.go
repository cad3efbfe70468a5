// Package queue implements the Bulk Queue (spec §4.C): it accumulates
// rendered bulk records and produces content-addressed Batches when
// triggered by size or timer.
//
// The queue itself holds no timers or goroutines; it is a plain,
// non-concurrent accumulator mutated only by the indexer session's single
// logical executor (spec §5), matching the ownership rule of spec §3.
package queue

import (
	"crypto/sha1"
	"encoding/hex"
)

// Batch is the concatenation of one or more bulk records, identified by
// the hex SHA-1 of its exact byte content (spec §3 "Batch", §8 invariant
// 1 and 6).
type Batch struct {
	ID    string
	Bytes []byte
}

// computeID returns the content-addressed id for bytes.
func computeID(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

// Queue is an ordered sequence of bulk records awaiting flush.
type Queue struct {
	records [][]byte
	size    int
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Append adds a single bulk record, preserving input order (spec §5
// ordering guarantees: documents keep input order within one enqueue
// call; this is simply called once per document in that order).
func (q *Queue) Append(record []byte) {
	q.records = append(q.records, record)
	q.size += len(record)
}

// Len returns the number of records currently queued.
func (q *Queue) Len() int {
	return len(q.records)
}

// Size returns the total byte size of queued records.
func (q *Queue) Size() int {
	return q.size
}

// Take atomically empties the queue and returns a Batch built from its
// prior contents, or (Batch{}, false) if the queue was empty (spec §4.C
// flush: "The queue is immediately empty after the take"; idempotence
// property in §8: flushing an empty queue is a no-op).
func (q *Queue) Take() (Batch, bool) {
	if len(q.records) == 0 {
		return Batch{}, false
	}
	total := 0
	for _, r := range q.records {
		total += len(r)
	}
	buf := make([]byte, 0, total)
	for _, r := range q.records {
		buf = append(buf, r...)
	}
	q.records = nil
	q.size = 0
	return Batch{ID: computeID(buf), Bytes: buf}, true
}
