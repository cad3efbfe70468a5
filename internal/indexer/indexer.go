// Package indexer implements the indexing session actor (spec §5): a
// single-threaded cooperative event loop that owns the queue, the
// in-memory batch table, and the start-time table, wiring the Bulk
// Queue, Dispatcher, and Backlog Store together exactly as spec §2's
// data-flow diagram describes (A -> B -> C -> (D on success | E on
// failure) -> D on replay).
//
// Grounded directly on the teacher's Indexer actor
// (model/modelindexer/indexer.go): its Close(ctx) draining semantics and
// Stats() snapshot are carried over in spirit; its errgroup.Group-bounded
// fan-out lives in internal/backlog's Replay rather than in this package.
// Where the teacher serializes state with a
// sync.Mutex around a dual-buffer (i.active / i.available), this module
// instead routes every command through a single actor goroutine's
// channel (spec §5: "no locks are required for in-process state"),
// because spec §4.C-E's richer backlog/replay/reclaim interactions don't
// fit the teacher's simpler single-buffer model as cleanly as a mailbox
// does.
package indexer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/elastic/file-to-elasticsearch/internal/backlog"
	"github.com/elastic/file-to-elasticsearch/internal/config"
	"github.com/elastic/file-to-elasticsearch/internal/dispatch"
	"github.com/elastic/file-to-elasticsearch/internal/document"
	"github.com/elastic/file-to-elasticsearch/internal/queue"
	"github.com/elastic/file-to-elasticsearch/internal/stats"
)

type command interface{ apply(s *session) }

type enqueueCmd struct{ docs []*document.Document }

type flushCmd struct{}

type dispatchResultCmd struct {
	result dispatch.Result
}

type shutdownCmd struct{ done chan struct{} }

// Session is the indexer actor's external handle.
type Session struct {
	cmds     chan command
	logger   *zap.SugaredLogger
	wg       sync.WaitGroup
	counters *stats.Counters
}

type session struct {
	cfg        config.IndexerConfig
	logger     *zap.SugaredLogger
	q          *queue.Queue
	backlogSt  *backlog.Store
	dispatcher *dispatch.Dispatcher
	counters   *stats.Counters

	batchTable map[string][]byte   // in-memory batches awaiting dispatch completion
	startTime  map[string]time.Time

	esReady bool
	closing bool

	cmds       chan command
	shutdownCh chan struct{} // closed once drained, set by shutdownCmd

	replayTimer *time.Timer
}

// New builds and starts an indexer session. The returned Session owns a
// background goroutine; call Close to shut it down cleanly.
func New(cfg config.IndexerConfig, logger *zap.SugaredLogger) *Session {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	counters := stats.New()
	s := &session{
		cfg:        cfg,
		logger:     logger,
		q:          queue.New(),
		dispatcher: dispatch.New(dispatch.Config{Servers: cfg.Servers, Timeout: cfg.Timeout}),
		counters:   counters,
		batchTable: make(map[string][]byte),
		startTime:  make(map[string]time.Time),
		cmds:       make(chan command, 256),
	}
	s.backlogSt = backlog.New(cfg.BatchDir, cfg.BatchDiskSpace, counters, s.onReplayDispatch)

	sess := &Session{cmds: s.cmds, logger: logger, counters: counters}
	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		s.run()
	}()
	go s.probe()
	return sess
}

// probe runs once at startup: it syncs any configured dynamic templates
// and checks cluster health (spec §4.D "Dynamic templates"), feeding the
// health result back to the actor so es_ready can flip true before the
// first flush if the cluster is already reachable, rather than waiting
// for a first successful bulk response.
func (s *session) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout+time.Second)
	defer cancel()
	if err := s.dispatcher.SyncTemplates(ctx, s.cfg.DynamicTemplates); err != nil {
		s.logger.Warnw("dynamic template sync failed", "error", err)
	}
	healthy := s.dispatcher.HealthCheck(ctx) == nil
	s.cmds <- probeCmd{healthy: healthy}
}

type probeCmd struct{ healthy bool }

func (p probeCmd) apply(s *session) {
	if p.healthy && !s.esReady {
		s.esReady = true
		s.triggerReplaySoon()
	}
}

// triggerReplaySoon kicks off an out-of-band Replay pass on its own
// goroutine, the same way the periodic replayTimer does, so that backlog
// drains promptly once the cluster is known to be reachable rather than
// waiting up to backlogReplayInterval for the next scheduled pass.
func (s *session) triggerReplaySoon() {
	go func() {
		more, _ := s.backlogSt.Replay()
		s.cmds <- replayDoneCmd{more: more}
	}()
}

type replayNowCmd struct{}

func (replayNowCmd) apply(s *session) {
	if !s.closing {
		s.triggerReplaySoon()
	}
}

// TriggerReplay forces an immediate out-of-band backlog replay pass
// instead of waiting for the next periodic tick. Exposed for operational
// tooling (e.g. an admin command) that wants to drain the backlog on
// demand once an operator confirms the cluster is back.
func (sess *Session) TriggerReplay() {
	sess.cmds <- replayNowCmd{}
}

// Enqueue adds one or more documents to the bulk queue (spec §4.C
// enqueue). Safe to call from multiple goroutines; per-caller order is
// preserved, matching spec §5's ordering guarantees.
func (sess *Session) Enqueue(docs ...*document.Document) {
	sess.cmds <- enqueueCmd{docs: docs}
}

// Flush forces an immediate flush of the current queue.
func (sess *Session) Flush() {
	sess.cmds <- flushCmd{}
}

// Stats returns a point-in-time counter snapshot (spec §6).
func (sess *Session) Stats() map[string]int64 {
	return sess.counters.Snapshot()
}

// ReportTailError records a Line Source error against wheel_error (spec
// §6, §7: "wheel_error" tracks failures from the tailing layer, named
// after its file-watching "wheel"). Safe to call from the caller's own
// event-reading goroutine; Counters.Add is itself concurrency-safe, so
// this bypasses the command channel rather than round-tripping through
// the actor for a plain counter bump.
func (sess *Session) ReportTailError() {
	sess.counters.Add(stats.WheelError, 1)
}

// RunStatsTicker invokes cb every interval with a counter snapshot until
// ctx is cancelled. A panicking callback is recovered, logged once, and
// disabled for the remainder of the session (spec §6, §7).
func (sess *Session) RunStatsTicker(ctx context.Context, interval time.Duration, cb stats.Callback) {
	if cb == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	disabled := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if disabled {
				continue
			}
			if !safeInvoke(cb, sess.Stats(), sess.logger) {
				disabled = true
			}
		}
	}
}

func safeInvoke(cb stats.Callback, snapshot map[string]int64, logger *zap.SugaredLogger) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("stats callback panicked, disabling for remainder of session", "panic", r)
			ok = false
		}
	}()
	cb(snapshot)
	return true
}

// Close shuts down the session, flushing any queued documents first
// (spec §5 cancellation/shutdown: one final flush, no new timers, process
// may exit once the executor is idle).
func (sess *Session) Close(ctx context.Context) {
	done := make(chan struct{})
	sess.cmds <- shutdownCmd{done: done}
	select {
	case <-done:
	case <-ctx.Done():
	}
	sess.wg.Wait()
}

func (s *session) run() {
	flushTimer := time.NewTimer(s.cfg.FlushInterval)
	defer flushTimer.Stop()
	s.replayTimer = time.NewTimer(backlogReplayInterval)
	defer s.replayTimer.Stop()

	for {
		select {
		case cmd, ok := <-s.cmds:
			if !ok {
				return
			}
			cmd.apply(s)
			if s.closing && s.q.Len() == 0 && len(s.batchTable) == 0 {
				if s.shutdownCh != nil {
					close(s.shutdownCh)
				}
				return
			}
		case <-flushTimer.C:
			if !s.closing {
				s.doFlush()
			}
			resetTimer(flushTimer, s.cfg.FlushInterval)
		case <-s.replayTimer.C:
			if !s.closing {
				// Replay performs blocking disk reads and HTTP dispatch
				// via onReplayDispatch; run it off the actor goroutine so
				// the mailbox keeps draining enqueue/flush commands
				// while a pass is in flight (spec §5 suspension points).
				s.triggerReplaySoon()
			}
		}
	}
}

const (
	backlogReplayInterval = 60 * time.Second
	backlogReplaySoon     = 15 * time.Second
)

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func (e enqueueCmd) apply(s *session) {
	now := time.Now()
	for _, doc := range e.docs {
		record := queue.Render(doc, s.cfg.DefaultIndex, s.cfg.DefaultType, now)
		s.q.Append(record)
		s.counters.Add("received", 1)
		s.counters.Add("docs", 1)
	}
	if s.q.Len() >= s.cfg.FlushSize {
		s.doFlush()
	}
}

func (flushCmd) apply(s *session) {
	if !s.closing {
		s.doFlush()
	}
}

func (s *session) doFlush() {
	batch, ok := s.q.Take()
	if !ok {
		return
	}
	s.counters.Add("batches", 1)
	s.startTime[batch.ID] = time.Now()
	s.batchTable[batch.ID] = batch.Bytes

	if s.esReady {
		s.sendAsync(batch.ID, batch.Bytes)
	} else {
		s.spillAndForget(batch.ID, batch.Bytes)
	}
}

func (s *session) sendAsync(id string, body []byte) {
	s.counters.Add("http_req", 1)
	go func() {
		result := s.dispatcher.Send(context.Background(), id, body)
		s.cmds <- dispatchResultCmd{result: result}
	}()
}

func (s *session) spillAndForget(id string, body []byte) {
	if err := s.backlogSt.Spill(id, body); err != nil {
		s.logger.Errorw("failed to spill batch", "id", id, "error", err)
		// Backlog I/O error: batch remains in memory and may be retried
		// on the next flush cycle (spec §7). It's already in
		// s.batchTable, so nothing further to do here.
		return
	}
	s.counters.Add("backlogged", 1)
	delete(s.batchTable, id)
}

func (d dispatchResultCmd) apply(s *session) {
	r := d.result
	_, hadStart := s.startTime[r.ID]
	if r.Err != nil || !r.Success {
		s.counters.Add("bulk_failure", 1)
		body, onDisk := s.batchTable[r.ID]
		if !onDisk {
			// Already handled (e.g. spilled directly); nothing to do.
			return
		}
		if err := s.backlogSt.Spill(r.ID, body); err != nil {
			s.logger.Errorw("failed to spill failed batch", "id", r.ID, "error", err)
			return
		}
		s.counters.Add("backlogged", 1)
		delete(s.batchTable, r.ID)
		// start_time intentionally retained to allow retry latency
		// accounting on the eventual replay (spec §4.D on_response).
		return
	}

	s.esReady = true
	s.counters.Add("bulk_success", 1)
	s.counters.Add("indexed", int64(r.Items))
	s.counters.Add("errors", int64(r.Errors))
	delete(s.batchTable, r.ID)
	if hadStart {
		delete(s.startTime, r.ID)
	}
	s.backlogSt.Remove(r.ID)
}

// onReplayDispatch is the callback the backlog store invokes for each
// replayed batch (spec §4.E Replay -> spec §4.D send). It is called
// synchronously by Store.Replay while still holding the entry's advisory
// lock (spec §4.E: "locks are held for the duration of read-and-dispatch"),
// so the HTTP call happens here rather than being handed off first; the
// result is then posted back onto the actor's command channel so it's
// applied by the single executor like any other state change.
func (s *session) onReplayDispatch(id string, body []byte) {
	s.counters.Add("consumed", 1)
	s.counters.Add("http_req", 1)
	result := s.dispatcher.Send(context.Background(), id, body)
	s.cmds <- replayResultCmd{id: id, result: result}
}

type replayResultCmd struct {
	id     string
	result dispatch.Result
}

func (r replayResultCmd) apply(s *session) {
	if r.result.Err != nil || !r.result.Success {
		s.counters.Add("bulk_failure", 1)
		// Stays on disk; will be picked up by a future Replay pass.
		return
	}
	s.esReady = true
	s.counters.Add("bulk_success", 1)
	s.counters.Add("indexed", int64(r.result.Items))
	s.counters.Add("errors", int64(r.result.Errors))
	s.backlogSt.Remove(r.id)
}

// replayDoneCmd reports that one Replay pass finished; if more than 25
// entries remained, the next pass is scheduled sooner (spec §4.E).
type replayDoneCmd struct{ more bool }

func (c replayDoneCmd) apply(s *session) {
	wait := backlogReplayInterval
	if c.more {
		wait = backlogReplaySoon
	}
	if !s.closing {
		resetTimer(s.replayTimer, wait)
	}
}

func (c shutdownCmd) apply(sess *session) {
	sess.closing = true
	sess.shutdownCh = c.done
	sess.doFlush()
}
