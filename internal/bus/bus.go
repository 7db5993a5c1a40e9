// Package bus provides the in-memory event log and live fan-out for drover.
package bus

import (
	"log"
	"sync"
	"time"

	"github.com/averros/drover/internal/models"
	"github.com/google/uuid"
)

const (
	// DefaultMaxEvents bounds the in-memory event log. Oldest entries are
	// trimmed first; trimming never reorders the remainder.
	DefaultMaxEvents = 600

	// DefaultHeartbeatEvery is the keep-alive interval for live subscribers.
	DefaultHeartbeatEvery = 15 * time.Second

	// subscriberBuffer is the per-subscriber channel depth. A subscriber
	// that falls further behind misses events; History is the catch-up path.
	subscriberBuffer = 32
)

// EventHeartbeat is delivered to live subscribers on a fixed interval and is
// never appended to the log.
const EventHeartbeat = "heartbeat"

// Sink receives every published event for durable storage. Sink failures are
// logged and swallowed; they never affect publishing.
type Sink interface {
	AppendEvent(ev models.Event) error
}

// Subscription is a live listener registration.
type Subscription struct {
	ID string
	C  <-chan models.Event
	ch chan models.Event
}

// Options configures a Bus.
type Options struct {
	MaxEvents      int
	HeartbeatEvery time.Duration
	Sink           Sink
}

// Bus is an append-only bounded event log with live fan-out.
type Bus struct {
	mu     sync.Mutex
	nextID int64
	events []models.Event
	subs   map[string]chan models.Event

	maxEvents      int
	heartbeatEvery time.Duration
	sink           Sink

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a Bus and starts its heartbeat loop.
func New(opts Options) *Bus {
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = DefaultMaxEvents
	}
	if opts.HeartbeatEvery <= 0 {
		opts.HeartbeatEvery = DefaultHeartbeatEvery
	}

	b := &Bus{
		subs:           make(map[string]chan models.Event),
		maxEvents:      opts.MaxEvents,
		heartbeatEvery: opts.HeartbeatEvery,
		sink:           opts.Sink,
		done:           make(chan struct{}),
	}

	b.wg.Add(1)
	go b.heartbeatLoop()

	return b
}

// Publish assigns the next sequence id, appends the event to the bounded log,
// hands it to the sink best-effort, and fans it out to live subscribers.
// Delivery to subscribers is at-most-once: a full subscriber channel drops
// the event rather than blocking the publisher.
func (b *Bus) Publish(eventType, message string, data models.Payload) models.Event {
	b.mu.Lock()
	b.nextID++
	ev := models.Event{
		ID:      b.nextID,
		At:      time.Now().UTC(),
		Type:    eventType,
		Message: message,
		Data:    data,
	}
	b.events = append(b.events, ev)
	if len(b.events) > b.maxEvents {
		b.events = b.events[len(b.events)-b.maxEvents:]
	}
	targets := make([]chan models.Event, 0, len(b.subs))
	for _, ch := range b.subs {
		targets = append(targets, ch)
	}
	b.mu.Unlock()

	if b.sink != nil {
		if err := b.sink.AppendEvent(ev); err != nil {
			log.Printf("event sink append failed for event %d: %v", ev.ID, err)
		}
	}

	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
		}
	}

	return ev
}

// Subscribe registers a live listener. The listener receives every
// subsequently published event plus periodic heartbeats.
func (b *Bus) Subscribe() *Subscription {
	ch := make(chan models.Event, subscriberBuffer)
	sub := &Subscription{
		ID: uuid.New().String(),
		C:  ch,
		ch: ch,
	}

	b.mu.Lock()
	b.subs[sub.ID] = ch
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes a listener. Safe to call more than once.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	delete(b.subs, sub.ID)
	b.mu.Unlock()
}

// History returns the most recent limit events in arrival order.
func (b *Bus) History(limit int) []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if limit <= 0 || limit > b.maxEvents {
		limit = b.maxEvents
	}
	if limit > len(b.events) {
		limit = len(b.events)
	}
	out := make([]models.Event, limit)
	copy(out, b.events[len(b.events)-limit:])
	return out
}

// SubscriberCount reports the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close stops the heartbeat loop. Pending subscriptions stay readable but
// receive nothing further.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	b.wg.Wait()
}

func (b *Bus) heartbeatLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			beat := models.Event{
				At:   time.Now().UTC(),
				Type: EventHeartbeat,
			}
			b.mu.Lock()
			targets := make([]chan models.Event, 0, len(b.subs))
			for _, ch := range b.subs {
				targets = append(targets, ch)
			}
			b.mu.Unlock()
			for _, ch := range targets {
				select {
				case ch <- beat:
				default:
				}
			}
		}
	}
}
