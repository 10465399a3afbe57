package service

import "sync"

// Resources and actions carried by Event.
const (
	ResourceRogs   = "rogs"
	ResourceBuilds = "builds"

	ActionBuilt    = "built"    // a ROG file was written; ID is its name
	ActionDeleted  = "deleted"  // a ROG file was removed; ID is its name
	ActionProgress = "progress" // a build posted Message; ID is the build id
	ActionFailed   = "failed"   // a build stopped with Message as its error
)

// Event is a change to a ROG file or a step of a running build.
type Event struct {
	Resource string
	Action   string
	ID       string
	Message  string
}

// EventBus fans build and file events out to SSE streams. Publishing never
// blocks a build: a subscriber whose buffer is full misses the event.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]struct{})}
}

func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a channel buffering enough progress lines for one
// zoom level.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe closes ch.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}

// DefaultBus is shared by the server's build service and its event stream.
var DefaultBus = NewEventBus()
