// Package tracing keeps the append-only audit log of investigations.
package tracing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventKind names an audit event.
type EventKind string

const (
	EventInvestigationCreated   EventKind = "investigation_created"
	EventInvestigationStarted   EventKind = "investigation_started"
	EventInvestigationFinished  EventKind = "investigation_finished"
	EventInvestigationCancelled EventKind = "investigation_cancelled"
	EventDeadlineExceeded       EventKind = "deadline_exceeded"
	EventTaskCreated            EventKind = "task_created"
	EventTaskState              EventKind = "task_state"
	EventAttemptStarted         EventKind = "attempt_started"
	EventAttemptFinished        EventKind = "attempt_finished"
	EventLateResultDiscarded    EventKind = "late_result_discarded"
	EventEvidenceMerged         EventKind = "evidence_merged"
	EventEvidenceRejected       EventKind = "evidence_rejected"
	EventStoreUnavailable       EventKind = "store_unavailable"
	EventReportGenerated        EventKind = "report_generated"
)

// Event is one entry in an investigation's audit log. Seq is the logical
// clock: strictly increasing per investigation, starting at 1.
type Event struct {
	InvestigationID string         `json:"investigationId"`
	Seq             uint64         `json:"seq"`
	Kind            EventKind      `json:"kind"`
	Detail          map[string]any `json:"detail,omitempty"`
	At              time.Time      `json:"at"`
}

// Recorder is what producers of trace events depend on.
type Recorder interface {
	Record(investigationID string, kind EventKind, detail map[string]any) Event
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(investigationID string, kind EventKind, detail map[string]any) Event {
	return Event{InvestigationID: investigationID, Kind: kind, Detail: detail}
}

// Sink receives events asynchronously after they are appended to the log.
type Sink interface {
	Write(ctx context.Context, ev Event) error
}

// Options configures a Tracer.
type Options struct {
	Sink        Sink
	Buffer      int
	Logger      *zap.Logger
	Now         func() time.Time
	SinkTimeout time.Duration
	// Resume returns the last sequence number already persisted for an
	// investigation. It is consulted the first time the tracer sees an id so
	// numbering continues across restarts.
	Resume func(investigationID string) uint64
}

// Tracer assigns sequence numbers, stores events in memory and forwards them
// to a sink without blocking the caller.
type Tracer struct {
	logs    sync.Map // investigation id -> *eventLog
	now     func() time.Time
	logger  *zap.Logger
	sink    Sink
	timeout time.Duration
	resume  func(string) uint64

	closeMu sync.RWMutex
	closed  bool
	queue   chan queued
	dropped atomic.Uint64
	wg      sync.WaitGroup
}

type eventLog struct {
	mu     sync.Mutex
	seq    uint64
	events []Event
	// released logs keep only their sequence counter; their events live in
	// the sink.
	released bool
}

// queued is a sink queue entry: an event, a release marker or a flush marker.
type queued struct {
	ev      Event
	release string
	flushed chan struct{}
}

// New constructs a tracer. With a sink configured a drain goroutine runs
// until Close.
func New(opts Options) *Tracer {
	t := &Tracer{
		now:     opts.Now,
		logger:  opts.Logger,
		sink:    opts.Sink,
		timeout: opts.SinkTimeout,
		resume:  opts.Resume,
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	if t.timeout <= 0 {
		t.timeout = 5 * time.Second
	}
	if t.sink != nil {
		buffer := opts.Buffer
		if buffer <= 0 {
			buffer = 1024
		}
		t.queue = make(chan queued, buffer)
		t.wg.Add(1)
		go t.drain()
	}
	return t
}

// Record appends an event and returns it with its sequence number assigned.
func (t *Tracer) Record(investigationID string, kind EventKind, detail map[string]any) Event {
	log := t.log(investigationID)

	log.mu.Lock()
	log.seq++
	ev := Event{
		InvestigationID: investigationID,
		Seq:             log.seq,
		Kind:            kind,
		Detail:          copyDetail(detail),
		At:              t.now().UTC(),
	}
	if !log.released {
		log.events = append(log.events, ev)
	}
	log.mu.Unlock()

	t.offer(ev)
	return ev
}

func (t *Tracer) log(investigationID string) *eventLog {
	if value, ok := t.logs.Load(investigationID); ok {
		return value.(*eventLog)
	}
	fresh := &eventLog{}
	if t.resume != nil {
		fresh.seq = t.resume(investigationID)
	}
	value, _ := t.logs.LoadOrStore(investigationID, fresh)
	return value.(*eventLog)
}

func (t *Tracer) offer(ev Event) {
	if t.queue == nil {
		return
	}
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	if t.closed {
		t.dropped.Add(1)
		return
	}
	select {
	case t.queue <- queued{ev: ev}:
	default:
		t.dropped.Add(1)
	}
}

// Events returns the events of an investigation with Seq > after, in order.
func (t *Tracer) Events(investigationID string, after uint64) []Event {
	value, ok := t.logs.Load(investigationID)
	if !ok {
		return []Event{}
	}
	log := value.(*eventLog)

	log.mu.Lock()
	defer log.mu.Unlock()
	out := make([]Event, 0, len(log.events))
	for _, ev := range log.events {
		if ev.Seq > after {
			ev.Detail = copyDetail(ev.Detail)
			out = append(out, ev)
		}
	}
	return out
}

// Release evicts the in-memory events of an investigation once everything
// recorded so far has been handed to the sink. Later events for it go to the
// sink only. Without a sink memory is the only copy and Release does nothing.
func (t *Tracer) Release(investigationID string) {
	if t.queue == nil {
		return
	}
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	if t.closed {
		t.evict(investigationID)
		return
	}
	select {
	case t.queue <- queued{release: investigationID}:
	default:
		t.evict(investigationID)
	}
}

// Flush waits until every event recorded before the call has been handed to
// the sink, or ctx ends.
func (t *Tracer) Flush(ctx context.Context) error {
	if t.queue == nil {
		return nil
	}
	flushed := make(chan struct{})
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return nil
	}
	select {
	case t.queue <- queued{flushed: flushed}:
		t.closeMu.RUnlock()
	case <-ctx.Done():
		t.closeMu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Forget drops everything the tracer holds for an investigation, including
// its sequence counter.
func (t *Tracer) Forget(investigationID string) {
	t.logs.Delete(investigationID)
}

func (t *Tracer) evict(investigationID string) {
	value, ok := t.logs.Load(investigationID)
	if !ok {
		return
	}
	log := value.(*eventLog)
	log.mu.Lock()
	log.events = nil
	log.released = true
	log.mu.Unlock()
}

// Dropped reports how many events the sink queue rejected.
func (t *Tracer) Dropped() uint64 {
	return t.dropped.Load()
}

// Close stops accepting sink traffic and waits for queued events to drain.
func (t *Tracer) Close() {
	if t.queue == nil {
		return
	}
	t.closeMu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.closeMu.Unlock()
	t.wg.Wait()
}

func (t *Tracer) drain() {
	defer t.wg.Done()
	for q := range t.queue {
		switch {
		case q.release != "":
			t.evict(q.release)
			continue
		case q.flushed != nil:
			close(q.flushed)
			continue
		}
		ev := q.ev
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		if err := t.sink.Write(ctx, ev); err != nil {
			t.logger.Warn("trace sink write failed",
				zap.String("investigation", ev.InvestigationID),
				zap.Uint64("seq", ev.Seq),
				zap.Error(err))
		}
		cancel()
	}
}

func copyDetail(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
