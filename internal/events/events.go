// Package events carries observable session state changes to renderers.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bhtools/podbulk/internal/constants"
	"github.com/bhtools/podbulk/internal/models"
)

// EventType names a kind of session event.
type EventType string

const (
	EventLog EventType = "log"

	// Credential validator
	EventCredentialStatus EventType = "credential_status" // per-kind status line changed

	// File set
	EventAssetsChanged  EventType = "assets_changed"  // visible asset list rebuilt or shrunk
	EventUploadFinished EventType = "upload_finished" // multipart upload acknowledged or failed
	EventAssetError     EventType = "asset_error"     // delete failed, list unchanged

	// Catalog selection
	EventCatalogsChanged  EventType = "catalogs_changed"
	EventTemplatesChanged EventType = "templates_changed"
	EventModelsChanged    EventType = "models_changed" // local runtime model list

	// Job controller
	EventJobState EventType = "job_state" // idle/polling/terminated transitions
	EventProgress EventType = "progress"  // latest progress snapshot
)

// LogLevel is the severity carried by a LogEvent.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is implemented by every value published on the bus.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent carries the fields shared by all events.
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

func newBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// LogEvent mirrors a warn or error log entry onto the bus.
type LogEvent struct {
	BaseEvent
	Level     LogLevel
	Message   string
	Component string
	Error     error
}

// CredentialStatusEvent carries the status line of one credential kind.
// An empty Message with StateUnvalidated means the line was cleared.
type CredentialStatusEvent struct {
	BaseEvent
	Kind    models.CredentialKind
	State   models.ValidationState
	Message string
}

// AssetsChangedEvent carries the full visible asset list.
type AssetsChangedEvent struct {
	BaseEvent
	Names []string
}

// UploadFinishedEvent reports the outcome of one multipart upload.
type UploadFinishedEvent struct {
	BaseEvent
	Requested []string
	Uploaded  []string
	Error     error
}

// AssetErrorEvent reports a failed asset operation. The list is unchanged.
type AssetErrorEvent struct {
	BaseEvent
	Name  string
	Error error
}

// Option is one entry of a selectable list.
type Option struct {
	Value string
	Label string
}

// OptionsChangedEvent carries a rebuilt option list (stores, products or
// local models). Error is set when the load failed and the list is empty.
type OptionsChangedEvent struct {
	BaseEvent
	Options  []Option
	Selected string
	Error    error
}

// JobStateEvent reports a transition of the polling state machine.
type JobStateEvent struct {
	BaseEvent
	Epoch    uint64
	OldState string
	NewState string
	Reason   string
}

// ProgressEvent carries the latest progress snapshot of the active job.
type ProgressEvent struct {
	BaseEvent
	Epoch    uint64
	Progress models.JobProgress
	// Local is true when the snapshot was written by the client itself
	// (optimistic cancel, poll failure), not read from the service.
	Local bool
}

// EventBus fans session events out to subscribers. Publishing never
// blocks: an event for a subscriber whose buffer is full is dropped.
type EventBus struct {
	mu         sync.RWMutex
	byType     map[EventType][]chan Event
	everything []chan Event
	bufferSize int
	closed     bool
	dropped    atomic.Int64
}

// NewEventBus creates a bus whose subscriber channels hold bufferSize
// events. Out-of-range sizes are clamped.
func NewEventBus(bufferSize int) *EventBus {
	switch {
	case bufferSize <= 0:
		bufferSize = constants.EventBusDefaultBuffer
	case bufferSize > constants.EventBusMaxBuffer:
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		byType:     make(map[EventType][]chan Event),
		bufferSize: bufferSize,
	}
}

// Subscribe returns a channel receiving events of one type.
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	return eb.subscribe(func(ch chan Event) {
		eb.byType[eventType] = append(eb.byType[eventType], ch)
	})
}

// SubscribeAll returns a channel receiving every event.
func (eb *EventBus) SubscribeAll() <-chan Event {
	return eb.subscribe(func(ch chan Event) {
		eb.everything = append(eb.everything, ch)
	})
}

func (eb *EventBus) subscribe(register func(chan Event)) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}
	ch := make(chan Event, eb.bufferSize)
	register(ch)
	return ch
}

// Publish delivers event to its type's subscribers and to SubscribeAll
// subscribers. A nil or closed bus ignores it.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}

	eb.deliver(eb.byType[event.Type()], event)
	eb.deliver(eb.everything, event)
}

func (eb *EventBus) deliver(chans []chan Event, event Event) {
	for _, ch := range chans {
		select {
		case ch <- event:
		default:
			eb.dropped.Add(1)
		}
	}
}

// Close closes every subscriber channel. Later publishes are no-ops.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, chans := range eb.byType {
		for _, ch := range chans {
			close(ch)
		}
	}
	for _, ch := range eb.everything {
		close(ch)
	}
}

// Unsubscribe detaches ch from eventType. The channel is not closed.
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	chans := eb.byType[eventType]
	for i, c := range chans {
		if c == ch {
			eb.byType[eventType] = append(chans[:i:i], chans[i+1:]...)
			return
		}
	}
}

// DroppedEvents reports how many events were dropped on full buffers.
func (eb *EventBus) DroppedEvents() int64 {
	return eb.dropped.Load()
}

// PublishLog publishes a LogEvent.
func (eb *EventBus) PublishLog(level LogLevel, message, component string, err error) {
	eb.Publish(&LogEvent{
		BaseEvent: newBase(EventLog),
		Level:     level,
		Message:   message,
		Component: component,
		Error:     err,
	})
}

// PublishCredentialStatus publishes the status line of one credential kind.
func (eb *EventBus) PublishCredentialStatus(kind models.CredentialKind, state models.ValidationState, message string) {
	eb.Publish(&CredentialStatusEvent{
		BaseEvent: newBase(EventCredentialStatus),
		Kind:      kind,
		State:     state,
		Message:   message,
	})
}

// PublishAssets publishes the full visible asset list.
func (eb *EventBus) PublishAssets(names []string) {
	eb.Publish(&AssetsChangedEvent{
		BaseEvent: newBase(EventAssetsChanged),
		Names:     names,
	})
}

// PublishOptions publishes a rebuilt option list under the given event type.
func (eb *EventBus) PublishOptions(eventType EventType, options []Option, selected string, err error) {
	eb.Publish(&OptionsChangedEvent{
		BaseEvent: newBase(eventType),
		Options:   options,
		Selected:  selected,
		Error:     err,
	})
}

// PublishJobState publishes a polling state transition.
func (eb *EventBus) PublishJobState(epoch uint64, oldState, newState, reason string) {
	eb.Publish(&JobStateEvent{
		BaseEvent: newBase(EventJobState),
		Epoch:     epoch,
		OldState:  oldState,
		NewState:  newState,
		Reason:    reason,
	})
}

// PublishProgress publishes a progress snapshot for the given epoch.
func (eb *EventBus) PublishProgress(epoch uint64, progress models.JobProgress, local bool) {
	eb.Publish(&ProgressEvent{
		BaseEvent: newBase(EventProgress),
		Epoch:     epoch,
		Progress:  progress,
		Local:     local,
	})
}
