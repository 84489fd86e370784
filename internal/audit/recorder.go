package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Sink receives events from the Recorder. *Store is the production sink.
type Sink interface {
	Append(ctx context.Context, e Event) error
}

// Recorder decouples event emission from persistence. Record is fire-and-forget
// for callers: it never blocks the request path beyond a buffered channel send.
// A background worker drains the buffer into the sink, retrying transient
// failures with backoff. Events that still cannot be written are counted and
// logged rather than dropped silently.
type Recorder struct {
	sink    Sink
	logger  *zap.Logger
	ch      chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64

	retries  int
	backoff  time.Duration
	closeOne sync.Once
}

func NewRecorder(sink Sink, bufferSize int, logger *zap.Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 256
	}

	r := &Recorder{
		sink:    sink,
		logger:  logger,
		ch:      make(chan Event, bufferSize),
		done:    make(chan struct{}),
		retries: 3,
		backoff: 100 * time.Millisecond,
	}

	r.wg.Add(1)
	go r.run()

	return r
}

// Record enqueues an event. When the buffer is full the event is counted and
// logged as lost instead of blocking the request path.
func (r *Recorder) Record(e Event) {
	select {
	case r.ch <- e:
	case <-r.done:
		r.dropped.Add(1)
		r.logger.Warn("security event recorded after shutdown, event lost",
			zap.String("event_id", e.ID),
			zap.String("event_type", string(e.Type)))
	default:
		r.dropped.Add(1)
		r.logger.Error("security event buffer full, event lost",
			zap.String("event_id", e.ID),
			zap.String("event_type", string(e.Type)))
	}
}

// Dropped returns the number of events lost after exhausting retries.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close drains buffered events and stops the worker.
func (r *Recorder) Close() {
	r.closeOne.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for {
		select {
		case e := <-r.ch:
			r.persist(e)
		case <-r.done:
			for {
				select {
				case e := <-r.ch:
					r.persist(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) persist(e Event) {
	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(r.backoff * time.Duration(attempt))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = r.sink.Append(ctx, e)
		cancel()
		if err == nil {
			return
		}
	}

	r.dropped.Add(1)
	r.logger.Error("security event lost after retries",
		zap.String("event_id", e.ID),
		zap.String("event_type", string(e.Type)),
		zap.Error(err))
}
