package spanz

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector buffers ended spans in memory for later inspection.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	spans        []Span
	spansCh      chan Span
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closeOnce    sync.Once
	closed       atomic.Bool // Track if collector is closed.
	syncMode     atomic.Bool // Bypass channel for synchronous collection.
}

// NewCollector creates a new collector with the specified name and buffer size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:    name,
		spans:   make([]Span, 0, 8), // Start with small capacity.
		spansCh: make(chan Span, bufferSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.start()
	return c
}

// Name returns the name the collector was created with.
func (c *Collector) Name() string {
	return c.name
}

// start runs the collector's main loop, receiving spans from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining spans before shutdown.
			for {
				select {
				case span := <-c.spansCh:
					c.buffer(&span)
				default:
					return // Clean shutdown.
				}
			}
		case span := <-c.spansCh:
			c.buffer(&span)
		}
	}
}

// Close shuts down the collector, draining queued spans. Buffered spans can
// still be exported afterwards.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		select {
		case <-c.done:
			// Clean shutdown completed.
		case <-time.After(100 * time.Millisecond):
			// Drain is best effort.
		}
	})
}

// Collect attempts to buffer a span with backpressure protection.
// If the internal channel is full, the span is dropped and the drop counter is incremented.
// In sync mode, spans are collected directly for deterministic testing.
func (c *Collector) Collect(span *Span) {
	// Nil check to prevent panic in calling goroutine.
	if span == nil {
		c.droppedCount.Add(1)
		return
	}

	if c.closed.Load() {
		// Collector is closed - drop span.
		c.droppedCount.Add(1)
		return
	}

	if c.syncMode.Load() {
		c.buffer(span)
		return
	}

	select {
	case c.spansCh <- *span:
		// Successfully queued.
	default:
		// Channel full - drop span to prevent blocking.
		c.droppedCount.Add(1)
	}
}

// buffer appends a span to the internal buffer.
func (c *Collector) buffer(span *Span) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if buffer needs to grow - optimized growth strategy.
	if len(c.spans) >= cap(c.spans) {
		currentCap := cap(c.spans)
		var newCap int
		if currentCap < 1024 {
			// Double capacity for small buffers.
			newCap = currentCap * 2
		} else {
			// Grow by 50% for large buffers to avoid excessive memory usage.
			newCap = currentCap + currentCap/2
		}
		if newCap < 32 {
			newCap = 32
		}
		newSlice := make([]Span, len(c.spans), newCap)
		copy(newSlice, c.spans)
		c.spans = newSlice
	}
	c.spans = append(c.spans, *span)
}

// Export returns a copy of all buffered spans and clears the internal buffer.
// The returned slice is safe to modify without affecting the collector.
func (c *Collector) Export() []Span {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.spans) == 0 {
		return nil
	}

	result := make([]Span, len(c.spans))
	copy(result, c.spans)

	// Only shrink if buffer is very oversized to avoid allocation churn.
	if cap(c.spans) > 256 && len(c.spans) < cap(c.spans)/8 {
		newCap := cap(c.spans) / 4
		if newCap < 32 {
			newCap = 32
		}
		c.spans = make([]Span, 0, newCap)
	} else {
		c.spans = c.spans[:0] // Keep capacity, reset length.
	}

	return result
}

// Count returns the current number of buffered spans.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spans)
}

// DroppedCount returns the total number of spans dropped due to backpressure.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
// When enabled, spans are collected directly without using the channel.
// This makes tests deterministic by eliminating async behavior.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears all buffered spans and resets the drop counter.
// Does not affect the running goroutine - use Close for that.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.spans = c.spans[:0]
	c.droppedCount.Store(0)
}
