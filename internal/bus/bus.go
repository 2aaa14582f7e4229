// Package bus fans request change events out to in-process
// subscribers.
//
// Events originate from two places: the local engine reports its own
// successful writes, and an optional backend feed reports writes made
// by other processes. Both go through Publish, so subscribers see one
// ordered stream regardless of origin. Delivery is lossless and
// per-subscriber FIFO; a slow subscriber grows its own queue and
// never blocks Publish or its peers.
package bus

import (
	"context"
	"log"
	"os"
	"sync"
	"time"
)

// Event is one observed change to a request.
type Event struct {
	Action    string    `json:"action"`
	RequestID string    `json:"request_id"`
	At        time.Time `json:"at"`
}

// Feed is a source of change events from outside this process. Run
// blocks until ctx is cancelled, calling publish for every observed
// change.
type Feed interface {
	Name() string
	Run(ctx context.Context, publish func(Event)) error
}

// subscriber holds one receiver's pending events. The drain goroutine
// moves them from queue to ch in order. done unblocks a send in
// flight when the subscription is cancelled, so drain can always exit
// and close ch even if the receiver stopped reading.
type subscriber struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
	ch     chan Event
	done   chan struct{}
}

// Bus is the in-process change propagation hub.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	logger *log.Logger

	feedOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an empty bus.
func New(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.New(os.Stderr, "[bus] ", log.LstdFlags)
	}
	return &Bus{
		subs:   make(map[int]*subscriber),
		logger: logger,
	}
}

// Publish delivers an event to every current subscriber. It never
// blocks; each subscriber's events are queued in publish order.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		if !s.closed {
			s.queue = append(s.queue, ev)
			s.cond.Signal()
		}
		s.mu.Unlock()
	}
}

// Subscribe registers a receiver. The returned channel carries events
// in publish order; calling the returned func unsubscribes and closes
// the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event), done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.mu.Unlock()

	go s.drain()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()

			s.mu.Lock()
			s.closed = true
			close(s.done)
			s.cond.Signal()
			s.mu.Unlock()
		})
	}
	return s.ch, cancel
}

// drain moves queued events to the subscriber channel until the
// subscription is cancelled. Cancellation discards anything still
// queued or in flight.
func (s *subscriber) drain() {
	defer close(s.ch)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- ev:
		case <-s.done:
			return
		}
	}
}

// AttachFeed starts the backend feed and republishes its events.
// Attaching is one-shot: later calls are ignored. A nil feed means
// this deployment has no live backend channel; the bus keeps working
// on local events alone.
func (b *Bus) AttachFeed(ctx context.Context, feed Feed) {
	b.feedOnce.Do(func() {
		if feed == nil {
			b.logger.Printf("no change feed available, continuing with local events only")
			return
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.logger.Printf("change feed %s attached", feed.Name())
			if err := feed.Run(ctx, b.Publish); err != nil && ctx.Err() == nil {
				b.logger.Printf("change feed %s stopped: %v", feed.Name(), err)
			}
		}()
	})
}

// Wait blocks until the attached feed goroutine has exited. Callers
// cancel the feed context first.
func (b *Bus) Wait() {
	b.wg.Wait()
}
