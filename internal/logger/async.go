package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes and stops a handler on shutdown.
type Closer interface {
	Close()
}

// nopCloser is the Closer for synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler decouples log emission from the hot path. Records go through
// a buffered channel to worker goroutines; when the buffer is full the
// record is dropped and counted rather than blocking a convene.
type AsyncHandler struct {
	inner   slog.Handler
	queue   chan slog.Record
	workers *sync.WaitGroup
	dropped *atomic.Int64
}

// NewAsyncHandler wraps inner with a queue of the given capacity drained by
// the given number of workers.
func NewAsyncHandler(inner slog.Handler, capacity, workers int) *AsyncHandler {
	h := &AsyncHandler{
		inner:   inner,
		queue:   make(chan slog.Record, capacity),
		workers: &sync.WaitGroup{},
		dropped: &atomic.Int64{},
	}
	for range workers {
		h.workers.Add(1)
		go h.drain()
	}
	return h
}

func (h *AsyncHandler) drain() {
	defer h.workers.Done()
	for rec := range h.queue {
		_ = h.inner.Handle(context.Background(), rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record, dropping it when the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.queue <- rec:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler sharing the queue over a derived inner handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(h.inner.WithAttrs(attrs))
}

// WithGroup returns a handler sharing the queue over a derived inner handler.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return h.derive(h.inner.WithGroup(name))
}

func (h *AsyncHandler) derive(inner slog.Handler) *AsyncHandler {
	return &AsyncHandler{
		inner:   inner,
		queue:   h.queue,
		workers: h.workers,
		dropped: h.dropped,
	}
}

// DroppedCount returns how many records were dropped under pressure.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close stops intake and blocks until the workers drain the queue.
func (h *AsyncHandler) Close() {
	close(h.queue)
	h.workers.Wait()
}
