package harness

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	ports "github.com/hpolasek/tabletalk/tabletalk/harness/ports"
	"github.com/hpolasek/tabletalk/tabletalk/transcript"
)

// stubEngine implements ports.Engine for testing. completeFunc receives the
// 1-based call number so tests can script multi-round behavior.
type stubEngine struct {
	calls        atomic.Int64
	completeFunc func(call int, messages []ports.Message, tools []ports.ToolSpec) (ports.Completion, error)

	mu        sync.Mutex
	histories [][]ports.Message
}

func (e *stubEngine) Complete(ctx context.Context, messages []ports.Message, tools []ports.ToolSpec, toolChoice string) (ports.Completion, error) {
	call := int(e.calls.Add(1))

	e.mu.Lock()
	snapshot := make([]ports.Message, len(messages))
	copy(snapshot, messages)
	e.histories = append(e.histories, snapshot)
	e.mu.Unlock()

	if e.completeFunc != nil {
		return e.completeFunc(call, messages, tools)
	}
	return ports.Completion{Text: "stub completion"}, nil
}

func (e *stubEngine) callCount() int { return int(e.calls.Load()) }

func (e *stubEngine) history(call int) []ports.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.histories[call-1]
}

// stubTool implements ports.Tool for testing.
type stubTool struct {
	name       string
	result     any
	err        error
	panicValue any

	mu      sync.Mutex
	invoked []json.RawMessage
}

func (t *stubTool) Name() string { return t.name }

func (t *stubTool) Spec() ports.ToolSpec {
	return ports.ToolSpec{Name: t.name, Description: "stub tool", Schema: []byte(`{"type":"object"}`)}
}

func (t *stubTool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	t.mu.Lock()
	t.invoked = append(t.invoked, append(json.RawMessage(nil), args...))
	t.mu.Unlock()

	if t.panicValue != nil {
		panic(t.panicValue)
	}
	return t.result, t.err
}

func (t *stubTool) invocations() []json.RawMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.invoked
}

// memStore is an in-memory ports.TranscriptStore with the same pending-turn
// semantics as the SQL store.
type memStore struct {
	mu     sync.Mutex
	convs  map[string]transcript.Conversation
	turns  map[string][]transcript.Turn
	nextID int64
}

func newMemStore() *memStore {
	return &memStore{
		convs: make(map[string]transcript.Conversation),
		turns: make(map[string][]transcript.Turn),
	}
}

func (s *memStore) addConversation(id, apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[id] = transcript.Conversation{ID: id, CreatedAt: time.Now(), APIKey: apiKey}
}

func (s *memStore) Conversation(ctx context.Context, id string) (transcript.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		return transcript.Conversation{}, transcript.ErrNotFound
	}
	return conv, nil
}

func (s *memStore) Turns(ctx context.Context, conversationID string) ([]transcript.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transcript.Turn(nil), s.turns[conversationID]...), nil
}

func (s *memStore) PendingUserTurn(ctx context.Context, conversationID string) (transcript.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lastAssistant int64
	for _, t := range s.turns[conversationID] {
		if t.Role == transcript.RoleAssistant && t.ID > lastAssistant {
			lastAssistant = t.ID
		}
	}
	var pending *transcript.Turn
	for i := range s.turns[conversationID] {
		t := s.turns[conversationID][i]
		if t.Role == transcript.RoleUser && t.ID > lastAssistant {
			pending = &t
		}
	}
	if pending == nil {
		return transcript.Turn{}, transcript.ErrNoUserTurn
	}
	return *pending, nil
}

func (s *memStore) AppendTurn(ctx context.Context, conversationID string, role transcript.Role, text string) (transcript.Turn, error) {
	if err := role.Validate(); err != nil {
		return transcript.Turn{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	turn := transcript.Turn{
		ID:             s.nextID,
		ConversationID: conversationID,
		CreatedAt:      time.Now(),
		Role:           role,
		Text:           text,
	}
	s.turns[conversationID] = append(s.turns[conversationID], turn)
	return turn, nil
}

func (s *memStore) assistantTurns(conversationID string) []transcript.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []transcript.Turn
	for _, t := range s.turns[conversationID] {
		if t.Role == transcript.RoleAssistant {
			out = append(out, t)
		}
	}
	return out
}

var (
	_ ports.Engine          = (*stubEngine)(nil)
	_ ports.Tool            = (*stubTool)(nil)
	_ ports.TranscriptStore = (*memStore)(nil)
)

// drain collects all events from an emitter until its stream closes.
func drain(em *Emitter) []Event {
	var events []Event
	for ev := range em.Events() {
		events = append(events, ev)
	}
	return events
}

// tokenText concatenates all token payloads in order.
func tokenText(events []Event) string {
	var out string
	for _, ev := range events {
		if ev.Kind == EventToken {
			out += ev.Token
		}
	}
	return out
}
