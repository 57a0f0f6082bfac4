package opportunity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/events"
)

// Sink receives classifications for later lexicon tuning. Implementations
// must not block the caller.
type Sink interface {
	RecordUnknown(ctx context.Context, u events.UnknownIntent)
}

// UnknownStore is the persistence side of an AsyncSink.
type UnknownStore interface {
	RecordUnknown(ctx context.Context, u events.UnknownIntent) error
}

// AsyncSink buffers records and writes them from a single goroutine. When
// the buffer is full new records are dropped and counted.
type AsyncSink struct {
	store   UnknownStore
	ch      chan events.UnknownIntent
	done    chan struct{}
	timeout time.Duration
	dropped atomic.Int64

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewAsyncSink starts the writer goroutine. buffer <= 0 uses 256.
func NewAsyncSink(store UnknownStore, buffer int) *AsyncSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &AsyncSink{
		store:   store,
		ch:      make(chan events.UnknownIntent, buffer),
		done:    make(chan struct{}),
		timeout: 2 * time.Second,
	}
	go s.run()
	return s
}

// RecordUnknown enqueues u, or drops it when the buffer is full or the sink is closed.
func (s *AsyncSink) RecordUnknown(_ context.Context, u events.UnknownIntent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- u:
	default:
		n := s.dropped.Add(1)
		log.Warn().Int64("dropped_total", n).Msg("unknown_intent_sink_full")
	}
}

// Dropped returns how many records were discarded.
func (s *AsyncSink) Dropped() int64 { return s.dropped.Load() }

// Close stops accepting records and waits for the buffer to drain.
func (s *AsyncSink) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		<-s.done
	})
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for u := range s.ch {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.store.RecordUnknown(ctx, u); err != nil {
			log.Warn().Err(err).Str("tenant_id", u.TenantID).Msg("unknown_intent_record_failed")
		}
		cancel()
	}
}
