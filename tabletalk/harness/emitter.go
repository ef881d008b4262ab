package harness

import (
	"encoding/json"
	"strings"
	"sync"
)

// EventKind enumerates the closed set of stream event kinds.
type EventKind string

const (
	EventToken  EventKind = "token"
	EventTool   EventKind = "tool"
	EventSafety EventKind = "safety"
	EventDone   EventKind = "done"
)

// ToolEvent reports one completed tool invocation: its name, the request
// arguments as received from the engine, and the structured result record
// that was fed back into the model.
type ToolEvent struct {
	Name   string          `json:"tool_name"`
	Args   json.RawMessage `json:"args"`
	Result json.RawMessage `json:"result"`
}

// Event is one observable occurrence within a response cycle. Exactly one of
// the payload fields is set, matching Kind.
type Event struct {
	Kind   EventKind
	Token  string
	Tool   *ToolEvent
	Safety *Verdict
}

// Emitter delivers the ordered event sequence of one response cycle to a
// single subscriber, then completes. Producers never block: events queue
// internally, so a cycle can finish and commit even when the consuming
// transport has gone away. Done is emitted at most once and is always the
// last event.
type Emitter struct {
	mu     sync.Mutex
	queue  []Event
	wake   chan struct{}
	closed bool
	once   sync.Once
	text   strings.Builder

	outOnce     sync.Once
	out         chan Event
	abandon     chan struct{}
	abandonOnce sync.Once
}

// NewEmitter creates an emitter for one response cycle.
func NewEmitter() *Emitter {
	return &Emitter{
		wake:    make(chan struct{}, 1),
		abandon: make(chan struct{}),
	}
}

// Token emits one incremental fragment of answer text. The concatenation of
// all token fragments is exactly the text committed as the assistant turn.
func (e *Emitter) Token(fragment string) {
	if fragment == "" {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.text.WriteString(fragment)
	e.queue = append(e.queue, Event{Kind: EventToken, Token: fragment})
	e.mu.Unlock()
	e.signal()
}

// StreamText emits text as a sequence of rune-sized token fragments so a
// consumer perceives incremental generation.
func (e *Emitter) StreamText(text string) {
	for _, r := range text {
		e.Token(string(r))
	}
}

// Tool emits one completed tool invocation.
func (e *Emitter) Tool(ev ToolEvent) {
	e.push(Event{Kind: EventTool, Tool: &ev})
}

// Safety emits the pre-flight verdict. Callers emit it before any token or
// tool event, at most once per cycle.
func (e *Emitter) Safety(v Verdict) {
	e.push(Event{Kind: EventSafety, Safety: &v})
}

// Done signals completion. It is idempotent; only the first call emits the
// terminal event and closes the stream.
func (e *Emitter) Done() {
	e.once.Do(func() {
		e.mu.Lock()
		e.queue = append(e.queue, Event{Kind: EventDone})
		e.closed = true
		e.mu.Unlock()
		e.signal()
	})
}

// Text returns the accumulated token text emitted so far.
func (e *Emitter) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text.String()
}

// Events returns the single-consumer event stream. The channel preserves
// emission order and closes after the done event has been delivered. A
// consumer that stops reading before then must call Abandon to release the
// stream; producers and the cycle's commit are unaffected either way.
func (e *Emitter) Events() <-chan Event {
	e.outOnce.Do(func() {
		e.out = make(chan Event)
		go e.pump()
	})
	return e.out
}

// Abandon releases the event stream without waiting for the done event. It is
// idempotent. Emission keeps working; only delivery stops.
func (e *Emitter) Abandon() {
	e.abandonOnce.Do(func() { close(e.abandon) })
}

func (e *Emitter) push(ev Event) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, ev)
	e.mu.Unlock()
	e.signal()
}

func (e *Emitter) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Emitter) pump() {
	defer close(e.out)
	for {
		e.mu.Lock()
		pending := e.queue
		e.queue = nil
		closed := e.closed
		e.mu.Unlock()

		for _, ev := range pending {
			select {
			case e.out <- ev:
			case <-e.abandon:
				return
			}
			if ev.Kind == EventDone {
				return
			}
		}
		if closed {
			return
		}
		select {
		case <-e.wake:
		case <-e.abandon:
			return
		}
	}
}
