package transfer

import (
	"log/slog"
)

// EventType enumerates the per-transfer lifecycle notifications.
type EventType int

const (
	EventInitiated EventType = iota
	EventProgressed
	EventSucceeded
	EventCorrupted
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventInitiated:
		return "initiated"
	case EventProgressed:
		return "progressed"
	case EventSucceeded:
		return "succeeded"
	case EventCorrupted:
		return "corrupted"
	case EventFailed:
		return "failed"
	}
	return "unknown"
}

// RequestType distinguishes download events from upload events.
type RequestType int

const (
	RequestGet RequestType = iota
	RequestPut
)

func (r RequestType) String() string {
	if r == RequestPut {
		return "put"
	}
	return "get"
}

// Resource identifies the subject of an event stream.
type Resource struct {
	// Repository is the endpoint URL the resource lives under.
	Repository string
	// Path is the resource path relative to the repository root.
	Path string
	// File is the local file involved, if any.
	File string
	// Size is the total transfer size in bytes, or 0 when unknown.
	Size int64
}

type Event struct {
	Type        EventType
	RequestType RequestType
	Resource    Resource

	// Delta is the byte count of the chunk that triggered a PROGRESSED
	// event; Transferred is the cumulative count so far.
	Delta       int64
	Transferred int64

	// Err carries the cause on FAILED and CORRUPTED events.
	Err error
}

// Listener observes transfer lifecycles. One listener per session; it
// may be called from multiple worker goroutines but never concurrently
// for the same resource. Listener failures never affect the transfer.
type Listener interface {
	Initiated(Event)
	Progressed(Event)
	Succeeded(Event)
	Corrupted(Event)
	Failed(Event)
}

// Emitter serializes the event stream of a single transfer. Each worker
// owns one emitter and calls it from its own goroutine only, which gives
// the per-transfer total ordering for free.
type Emitter struct {
	listener    Listener
	log         *slog.Logger
	resource    Resource
	requestType RequestType
	transferred int64
}

func NewEmitter(listener Listener, log *slog.Logger, resource Resource, requestType RequestType) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{
		listener:    listener,
		log:         log,
		resource:    resource,
		requestType: requestType,
	}
}

// Transferred returns the cumulative byte count emitted so far.
func (e *Emitter) Transferred() int64 {
	return e.transferred
}

// SetSize records the total transfer size once known from headers.
func (e *Emitter) SetSize(n int64) {
	e.resource.Size = n
}

func (e *Emitter) Initiated() {
	e.emit(EventInitiated, func(l Listener, ev Event) { l.Initiated(ev) }, Event{})
}

func (e *Emitter) Progressed(delta int64) {
	e.transferred += delta
	e.emit(EventProgressed, func(l Listener, ev Event) { l.Progressed(ev) }, Event{Delta: delta})
}

func (e *Emitter) Succeeded() {
	e.emit(EventSucceeded, func(l Listener, ev Event) { l.Succeeded(ev) }, Event{})
}

func (e *Emitter) Corrupted(err error) {
	e.emit(EventCorrupted, func(l Listener, ev Event) { l.Corrupted(ev) }, Event{Err: err})
}

func (e *Emitter) Failed(err error) {
	e.emit(EventFailed, func(l Listener, ev Event) { l.Failed(ev) }, Event{Err: err})
}

func (e *Emitter) emit(t EventType, call func(Listener, Event), ev Event) {
	if e.listener == nil {
		return
	}
	ev.Type = t
	ev.RequestType = e.requestType
	ev.Resource = e.resource
	ev.Transferred = e.transferred

	// A misbehaving observer must not take the transfer down with it.
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("Transfer listener panicked",
				slog.String("event", t.String()),
				slog.String("path", e.resource.Path),
				slog.Any("panic", r))
		}
	}()
	call(e.listener, ev)
}
