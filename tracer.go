package spanz

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"github.com/zoobzio/clockz"
)

type eventKind uint8

const (
	eventSpanStart eventKind = iota
	eventSpanEnd
	eventRecordRelease
	eventViolation
)

type handlerEntry struct {
	span      SpanHandler
	violation ViolationHandler
	id        uint64
	event     eventKind
	async     bool
}

// Tracer creates cursors, stamps time and dispatches span events.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers      []handlerEntry
	panicHook     func(handlerID uint64, r interface{})
	workers       *workerPool
	idPool        *IDPool
	clock         clockz.Clock
	logger        *slog.Logger
	maxDepth      int
	handlersLock  sync.RWMutex
	idPoolOnce    sync.Once
	running       sync.WaitGroup
	nextID        atomic.Uint64
	nextThread    atomic.Uint64
	droppedEvents atomic.Uint64
	created       atomic.Uint64
	released      atomic.Uint64
	started       atomic.Uint64
	ended         atomic.Uint64
	violations    atomic.Uint64
	cursors       atomic.Int64
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithClock sets the clock used for start and end times.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(t *Tracer) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithLogger sets the logger. Span events are logged at debug level and
// violations at warn level. The default logger discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMaxDepth bounds the level of spans. Opening a span at or beyond the
// bound reports ErrDepthExceeded; the span still opens. Zero disables the
// check.
func WithMaxDepth(n int) Option {
	return func(t *Tracer) {
		if n > 0 {
			t.maxDepth = n
		}
	}
}

// WithObserver registers an observer's start and end callbacks as
// synchronous handlers.
func WithObserver(o Observer) Option {
	return func(t *Tracer) {
		t.Observe(o)
	}
}

// New creates a new tracer.
// Uses the real clock for production behavior.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		handlers: make([]handlerEntry, 0),
		clock:    clockz.RealClock,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Clock returns the tracer's clock.
func (t *Tracer) Clock() clockz.Clock {
	return t.clock
}

// ensureIDPool initializes the ID pool if not already created.
func (t *Tracer) ensureIDPool() {
	t.idPoolOnce.Do(func() {
		// Pool size based on number of CPUs for optimal contention balance.
		poolSize := runtime.NumCPU() * 100
		t.idPool = NewIDPool(poolSize, t.newID)
	})
}

var recordIDEntropy = ulid.DefaultEntropy()

func (t *Tracer) newID() string {
	return ulid.MustNew(ulid.Timestamp(t.clock.Now()), recordIDEntropy).String()
}

// generateID returns a new record ID from the pool. A closed tracer has no
// pool and generates IDs directly.
func (t *Tracer) generateID() string {
	t.ensureIDPool()
	if t.idPool == nil {
		return t.newID()
	}
	return t.idPool.Get()
}

// Go runs fn on a new goroutine with its own cursor. The cursor is closed
// when fn returns; spans fn leaves open are logged.
func (t *Tracer) Go(fn func(c *Cursor)) {
	t.running.Add(1)
	go func() {
		defer t.running.Done()

		c := t.NewCursor()
		defer func() {
			if err := c.Close(); err != nil {
				t.logger.Warn("cursor closed with open spans", "thread", c.id, "err", err)
			}
		}()

		fn(c)
	}()
}

// Wait blocks until every goroutine started with Go has returned.
func (t *Tracer) Wait() {
	t.running.Wait()
}

// OnSpanStart registers a synchronous handler called when spans open.
func (t *Tracer) OnSpanStart(handler SpanHandler) uint64 {
	return t.registerSpanHandler(eventSpanStart, handler, false)
}

// OnSpanEnd registers a synchronous handler called when spans end.
func (t *Tracer) OnSpanEnd(handler SpanHandler) uint64 {
	return t.registerSpanHandler(eventSpanEnd, handler, false)
}

// OnSpanEndAsync registers an asynchronous handler called when spans end.
func (t *Tracer) OnSpanEndAsync(handler SpanHandler) uint64 {
	return t.registerSpanHandler(eventSpanEnd, handler, true)
}

// OnRecordRelease registers a synchronous handler called when the last owner
// of a record lets go of it.
func (t *Tracer) OnRecordRelease(handler SpanHandler) uint64 {
	return t.registerSpanHandler(eventRecordRelease, handler, false)
}

// OnViolation registers a synchronous handler called for caller contract
// violations.
func (t *Tracer) OnViolation(handler ViolationHandler) uint64 {
	if handler == nil {
		return 0
	}
	return t.register(handlerEntry{event: eventViolation, violation: handler})
}

// Observe registers the observer's callbacks and returns their handler IDs.
func (t *Tracer) Observe(o Observer) []uint64 {
	if o == nil {
		return nil
	}
	return []uint64{
		t.OnSpanStart(o.OnSpanStart),
		t.OnSpanEnd(o.OnSpanEnd),
	}
}

// AddCollector feeds ended spans into the collector.
func (t *Tracer) AddCollector(c *Collector) uint64 {
	return t.OnSpanEnd(func(s Span) {
		c.Collect(&s)
	})
}

func (t *Tracer) registerSpanHandler(event eventKind, handler SpanHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}
	return t.register(handlerEntry{event: event, span: handler, async: async})
}

func (t *Tracer) register(entry handlerEntry) uint64 {
	entry.id = t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, entry)

	return entry.id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	// Preserve order
	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// HasHandlers reports whether any handler is registered.
func (t *Tracer) HasHandlers() bool {
	t.handlersLock.RLock()
	defer t.handlersLock.RUnlock()
	return len(t.handlers) > 0
}

// SetPanicHook sets a function to be called when a handler panics.
// Set it before any span is traced.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.panicHook = hook
}

func (t *Tracer) recordCreated(_ *Record) {
	t.created.Add(1)
}

func (t *Tracer) recordReleased(r *Record) {
	t.released.Add(1)
	t.logDebug("record released", r)
	t.emit(eventRecordRelease, r)
}

func (t *Tracer) spanStarted(r *Record) {
	t.started.Add(1)
	t.logDebug("span started", r)
	t.emit(eventSpanStart, r)
}

func (t *Tracer) spanEnded(r *Record) {
	t.ended.Add(1)
	t.logDebug("span ended", r)
	t.emit(eventSpanEnd, r)
}

func (t *Tracer) violation(err error, r *Record) {
	t.violations.Add(1)

	v := Violation{Err: err, Span: r.Snapshot(), Thread: r.thread}
	t.logger.Warn("span violation",
		"err", err,
		"label", v.Span.Label,
		"thread", v.Thread,
		"level", v.Span.Level,
		"id", v.Span.ID,
	)

	handlers, _ := t.snapshotHandlers(eventViolation)
	for _, h := range handlers {
		entry := h
		t.safeCall(entry.id, func() { entry.violation(v) })
	}
}

func (t *Tracer) logDebug(msg string, r *Record) {
	if !t.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	t.logger.Debug(msg,
		"label", r.Label(),
		"thread", r.thread,
		"level", r.level,
		"id", r.id,
		"refs", r.refs.Load(),
		"parent", r.ParentState().String(),
	)
}

// snapshotHandlers copies the handlers registered for an event, along with
// the worker pool async handlers go to.
func (t *Tracer) snapshotHandlers(event eventKind) ([]handlerEntry, *workerPool) {
	t.handlersLock.RLock()
	defer t.handlersLock.RUnlock()

	var handlers []handlerEntry
	for _, h := range t.handlers {
		if h.event == event {
			handlers = append(handlers, h)
		}
	}
	return handlers, t.workers
}

// emit calls the handlers registered for an event with a snapshot of the
// record. No snapshot is taken when nothing listens.
func (t *Tracer) emit(event eventKind, r *Record) {
	handlers, workers := t.snapshotHandlers(event)
	if len(handlers) == 0 {
		return
	}

	span := r.Snapshot()
	for _, h := range handlers {
		entry := h
		call := func() { entry.span(span) }
		if !h.async {
			t.safeCall(entry.id, call)
			continue
		}
		if workers != nil {
			workers.submit(func() {
				t.safeCall(entry.id, call)
			})
		} else {
			go t.safeCall(entry.id, call)
		}
	}
}

func (t *Tracer) safeCall(id uint64, call func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("span handler panicked", "handler", id, "panic", r)
			if t.panicHook != nil {
				t.panicHook(id, r)
			}
		}
	}()
	call()
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
func (t *Tracer) EnableWorkerPool(workers, queueSize int) error {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	if t.workers != nil {
		return errors.New("worker pool already enabled")
	}
	if workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return errors.New("queueSize must be > 0")
	}

	t.workers = &workerPool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		dropped: &t.droppedEvents,
	}

	t.workers.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go t.workers.run()
	}

	return nil
}

// Stats is a point-in-time view of the tracer's counters.
type Stats struct {
	RecordsCreated  uint64 `json:"records_created"`
	RecordsReleased uint64 `json:"records_released"`
	LiveRecords     uint64 `json:"live_records"`
	SpansStarted    uint64 `json:"spans_started"`
	SpansEnded      uint64 `json:"spans_ended"`
	OpenSpans       uint64 `json:"open_spans"`
	Violations      uint64 `json:"violations"`
	DroppedEvents   uint64 `json:"dropped_events"`
	ActiveCursors   int64  `json:"active_cursors"`
}

// Stats returns the tracer's counters. Counters are read independently, so
// derived values may be momentarily inconsistent under concurrent use.
func (t *Tracer) Stats() Stats {
	s := Stats{
		RecordsReleased: t.released.Load(),
		RecordsCreated:  t.created.Load(),
		SpansEnded:      t.ended.Load(),
		SpansStarted:    t.started.Load(),
		Violations:      t.violations.Load(),
		DroppedEvents:   t.droppedEvents.Load(),
		ActiveCursors:   t.cursors.Load(),
	}
	if s.RecordsCreated > s.RecordsReleased {
		s.LiveRecords = s.RecordsCreated - s.RecordsReleased
	}
	if s.SpansStarted > s.SpansEnded {
		s.OpenSpans = s.SpansStarted - s.SpansEnded
	}
	return s
}

// DroppedEvents returns the number of events dropped due to a full worker queue.
func (t *Tracer) DroppedEvents() uint64 {
	return t.droppedEvents.Load()
}

// Close shuts down the tracer gracefully and cleans up resources.
// Spans may still be opened and ended afterwards, but no handler runs.
func (t *Tracer) Close() {
	// Stop new handler executions
	t.handlersLock.Lock()
	t.handlers = nil
	workers := t.workers
	t.workers = nil
	t.handlersLock.Unlock()

	// Wait for in-flight async tasks
	if workers != nil {
		workers.shutdown()
	}

	// No pool is created after Close.
	t.idPoolOnce.Do(func() {})
	if t.idPool != nil {
		t.idPool.Close()
	}
}

// workerPool manages a fixed number of workers for processing async handlers.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks   chan func()
	stop    chan struct{}
	dropped *atomic.Uint64
	wg      sync.WaitGroup
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			return
		}
	}
}

func (w *workerPool) submit(task func()) {
	select {
	case w.tasks <- task:
	default:
		w.dropped.Add(1)
	}
}

func (w *workerPool) shutdown() {
	close(w.stop)
	w.wg.Wait()
}
