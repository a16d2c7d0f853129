// Package progress delivers download progress events to at most one live
// subscriber per download id.
package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/reelfetch/backend/internal/logger"
)

// Event statuses sent on the wire.
const (
	StatusConnected   = "connected"
	StatusDownloading = "downloading"
	StatusProcessing  = "processing"
	StatusCompleted   = "completed"
	StatusError       = "error"
)

var ErrUnknownDownload = errors.New("unknown download id")

// Event is one progress message.
type Event struct {
	Status     string `json:"status"`
	Progress   *int   `json:"progress,omitempty"`
	Stage      string `json:"stage,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Message    string `json:"message,omitempty"`
	DownloadID string `json:"downloadId,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusError
}

// Percent builds the Progress pointer for an event.
func Percent(p int) *int {
	return &p
}

// Subscription is one attached viewer. Its stream ends when Done is
// closed; any events still buffered should be drained first.
type Subscription struct {
	id     string
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) ID() string { return s.id }
func (s *Subscription) Events() <-chan Event { return s.events }
func (s *Subscription) Done() <-chan struct{} { return s.done }
func (s *Subscription) end() { s.once.Do(func() { close(s.done) }) }

type entry struct {
	ready     chan struct{}
	readyOnce sync.Once
	sub       *Subscription
}

func (e *entry) signal() {
	e.readyOnce.Do(func() { close(e.ready) })
}

// Broker pairs background jobs with their single viewer.
type Broker struct {
	mu      sync.Mutex
	entries map[string]*entry
	buffer  int
	// terminalWait bounds how long a terminal event waits for room in a
	// slow subscriber's buffer.
	terminalWait time.Duration
	log          *logger.Logger
}

// NewBroker creates a Broker
func NewBroker(log *logger.Logger) *Broker {
	if log == nil {
		log = logger.Default()
	}
	return &Broker{
		entries:      make(map[string]*entry),
		buffer:       32,
		terminalWait: 2 * time.Second,
		log:          log.WithComponent("progress"),
	}
}

// Register allocates the rendezvous for a new download id.
func (b *Broker) Register(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[id]; !ok {
		b.entries[id] = &entry{ready: make(chan struct{})}
	}
}

// WaitForSubscriber blocks until a viewer attaches, the timeout passes or
// ctx ends. It reports whether a viewer attached.
func (b *Broker) WaitForSubscriber(ctx context.Context, id string, timeout time.Duration) bool {
	b.mu.Lock()
	e, ok := b.entries[id]
	b.mu.Unlock()
	if !ok {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.ready:
		b.mu.Lock()
		attached := e.sub != nil
		b.mu.Unlock()
		return attached
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Subscribe attaches a viewer to id. The first event on the subscription
// is always the connected event. A previous viewer is detached.
func (b *Broker) Subscribe(id string) (*Subscription, error) {
	b.mu.Lock()
	e, ok := b.entries[id]
	if !ok {
		b.mu.Unlock()
		return nil, ErrUnknownDownload
	}

	sub := &Subscription{
		id:     id,
		events: make(chan Event, b.buffer),
		done:   make(chan struct{}),
	}
	sub.events <- Event{Status: StatusConnected, DownloadID: id}

	prev := e.sub
	e.sub = sub
	b.mu.Unlock()

	if prev != nil {
		prev.end()
		b.log.Debug(context.Background(), "progress subscriber replaced", map[string]interface{}{"download_id": id})
	}
	e.signal()
	return sub, nil
}

// Unsubscribe detaches sub when the client goes away. The download keeps
// running.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.end()

	b.mu.Lock()
	e, ok := b.entries[sub.id]
	live := ok && e.sub == sub
	if live {
		e.sub = nil
	}
	b.mu.Unlock()

	if live {
		b.log.Info(context.Background(), "progress subscriber disconnected", map[string]interface{}{
			"download_id": sub.id,
			"kind":        "connection-lost",
		})
	}
}

// Publish delivers ev to the live viewer, if any. Progress events are
// dropped when the viewer is not keeping up; terminal events wait briefly.
func (b *Broker) Publish(id string, ev Event) bool {
	b.mu.Lock()
	var sub *Subscription
	if e, ok := b.entries[id]; ok {
		sub = e.sub
	}
	b.mu.Unlock()
	if sub == nil {
		return false
	}

	if !ev.Terminal() {
		select {
		case sub.events <- ev:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(b.terminalWait)
	defer timer.Stop()
	select {
	case sub.events <- ev:
		return true
	case <-sub.done:
		return false
	case <-timer.C:
		return false
	}
}

// Close ends the stream for id after its terminal event and forgets the id.
func (b *Broker) Close(id string) {
	b.mu.Lock()
	e, ok := b.entries[id]
	var sub *Subscription
	if ok {
		sub = e.sub
		delete(b.entries, id)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	if sub != nil {
		sub.end()
	}
	e.signal()
}

// Known reports whether id still has an open channel.
func (b *Broker) Known(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[id]
	return ok
}

// Subscribers returns the number of attached viewers.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.entries {
		if e.sub != nil {
			n++
		}
	}
	return n
}
