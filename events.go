package livecam

import (
	"fmt"
	"sync"
)

// EventKind tags a ConnectionEvent.
type EventKind int

const (
	EventSuccess          EventKind = iota // Publishing started
	EventFailed                            // Connection or publish failed (Reason)
	EventDisconnected                      // Publishing ended
	EventError                             // Capture or codec error (ErrorKind, Detail)
	EventVideoSizeChanged                  // Output resolution changed (Width, Height)
)

func (k EventKind) String() string {
	switch k {
	case EventSuccess:
		return "success"
	case EventFailed:
		return "failed"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	case EventVideoSizeChanged:
		return "video_size_changed"
	default:
		return "unknown"
	}
}

// ConnectionEvent is an engine-originated notification. Which fields are
// meaningful depends on Kind.
type ConnectionEvent struct {
	Kind      EventKind
	Reason    string // EventFailed
	ErrorKind string // EventError
	Detail    string // EventError
	Width     int    // EventVideoSizeChanged
	Height    int    // EventVideoSizeChanged
}

func (e ConnectionEvent) String() string {
	switch e.Kind {
	case EventFailed:
		return fmt.Sprintf("failed(%s)", e.Reason)
	case EventError:
		return fmt.Sprintf("error(%s, %s)", e.ErrorKind, e.Detail)
	case EventVideoSizeChanged:
		return fmt.Sprintf("video_size_changed(%dx%d)", e.Width, e.Height)
	default:
		return e.Kind.String()
	}
}

// EventObserver receives ConnectionEvents.
//
// Events are delivered on whatever goroutine the engine raises them on,
// which may be the engine queue itself. An observer that needs to call back
// into a Manager's engine-touching methods must do so from another
// goroutine.
type EventObserver interface {
	OnConnectionEvent(ev ConnectionEvent)
}

// EventObserverFunc adapts a function to EventObserver.
type EventObserverFunc func(ev ConnectionEvent)

func (f EventObserverFunc) OnConnectionEvent(ev ConnectionEvent) { f(ev) }

// EventBridge forwards engine events to a single delegate. Registering a
// delegate replaces the previous one. Events are forwarded immediately and
// dropped when no delegate is set.
type EventBridge struct {
	mu       sync.RWMutex
	delegate EventObserver
	metrics  *Metrics
}

// NewEventBridge creates a bridge with no delegate.
func NewEventBridge(metrics *Metrics) *EventBridge {
	return &EventBridge{metrics: metrics}
}

// SetDelegate registers observer; nil clears the slot.
func (b *EventBridge) SetDelegate(observer EventObserver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delegate = observer
}

// OnConnectionEvent implements EventObserver so the bridge itself can be
// handed to an Engine.
func (b *EventBridge) OnConnectionEvent(ev ConnectionEvent) {
	b.mu.RLock()
	d := b.delegate
	b.mu.RUnlock()

	b.metrics.RecordEvent(ev.Kind)
	if d != nil {
		d.OnConnectionEvent(ev)
	}
}
