// ABOUTME: Events emitted by the mutation engine and the fan-out broadcaster delivering them.
// ABOUTME: Subscribers get buffered channels; a full subscriber misses events rather than blocking.

package mutation

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/2389-research/flowgraph/treeclient"
	"github.com/oklog/ulid/v2"
)

// EventType names what happened to a node.
type EventType string

const (
	EventCommitted EventType = "committed"
	EventFailed    EventType = "failed"
	EventCreated   EventType = "created"
	EventTrashed   EventType = "trashed"
	EventRecovered EventType = "recovered"
	EventReloaded  EventType = "reloaded"
)

// Event reports one engine outcome. Kind and Err are set for failures, IDs for
// trash operations.
type Event struct {
	ID        ulid.ULID
	Type      EventType
	NodeID    string
	Version   int64
	Kind      treeclient.Kind
	IDs       []string
	Err       error
	Timestamp time.Time
}

func newEvent(t EventType, nodeID string) Event {
	return Event{
		ID:        ulid.MustNew(ulid.Now(), rand.Reader),
		Type:      t,
		NodeID:    nodeID,
		Timestamp: time.Now(),
	}
}

// Broadcaster fans events out to every subscriber.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers []chan Event
}

// NewBroadcaster returns a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe returns a new buffered channel receiving every later event.
func (b *Broadcaster) Subscribe() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, 256)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Unsubscribe removes ch and closes it.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// Broadcast delivers event to every subscriber without blocking.
func (b *Broadcaster) Broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
