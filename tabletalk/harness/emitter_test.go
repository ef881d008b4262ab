package harness

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitterPreservesOrder(t *testing.T) {
	em := NewEmitter()

	em.Safety(Verdict{Safe: true, Reason: "ok", Category: "none"})
	em.Token("he")
	em.Tool(ToolEvent{Name: "run_sql", Args: []byte(`{}`), Result: []byte(`{"ok":true}`)})
	em.Token("llo")
	em.Done()

	events := drain(em)
	require.Len(t, events, 5)
	assert.Equal(t, EventSafety, events[0].Kind)
	assert.Equal(t, EventToken, events[1].Kind)
	assert.Equal(t, EventTool, events[2].Kind)
	assert.Equal(t, EventToken, events[3].Kind)
	assert.Equal(t, EventDone, events[4].Kind)
}

func TestEmitterDoneIsTerminalAndIdempotent(t *testing.T) {
	em := NewEmitter()

	em.Token("answer")
	em.Done()
	em.Done()
	// Emissions after done are dropped, not reordered past the terminal event.
	em.Token("late")
	em.Tool(ToolEvent{Name: "run_sql"})

	events := drain(em)
	require.NotEmpty(t, events)
	assert.Equal(t, EventDone, events[len(events)-1].Kind)

	doneCount := 0
	for _, ev := range events {
		if ev.Kind == EventDone {
			doneCount++
		}
	}
	assert.Equal(t, 1, doneCount)
	assert.Equal(t, "answer", em.Text())
}

func TestEmitterTextMatchesTokenConcatenation(t *testing.T) {
	em := NewEmitter()

	em.StreamText("the cheapest product is the basic widget")
	em.Done()

	events := drain(em)
	assert.Equal(t, em.Text(), tokenText(events))
	assert.Equal(t, "the cheapest product is the basic widget", em.Text())
}

func TestEmitterStreamTextSplitsIntoRuneFragments(t *testing.T) {
	em := NewEmitter()

	em.StreamText("héllo")
	em.Done()

	events := drain(em)
	var fragments []string
	for _, ev := range events {
		if ev.Kind == EventToken {
			fragments = append(fragments, ev.Token)
		}
	}
	require.Len(t, fragments, 5)
	assert.Equal(t, "é", fragments[1])
}

func TestEmitterProducersNeverBlockWithoutConsumer(t *testing.T) {
	em := NewEmitter()

	produced := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			em.Token(fmt.Sprintf("%d ", i))
		}
		em.Done()
		close(produced)
	}()

	// No consumer is attached yet. Production must still finish.
	select {
	case <-produced:
	case <-time.After(2 * time.Second):
		t.Fatal("producer blocked without a consumer")
	}

	events := drain(em)
	assert.Equal(t, EventDone, events[len(events)-1].Kind)
	assert.Equal(t, em.Text(), tokenText(events))
}

func TestEmitterAbandonReleasesStreamWithoutDraining(t *testing.T) {
	em := NewEmitter()
	em.Token("a")

	ch := em.Events()
	<-ch

	// The consumer walks away mid-stream; the channel must still close
	// without anyone draining the remaining events.
	em.Abandon()
	em.Abandon()

	// Production keeps working after abandonment, delivery just stops.
	em.Token("b")
	em.Done()

	closed := make(chan struct{})
	go func() {
		for range ch {
		}
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("event stream not released after abandon")
	}

	assert.Equal(t, "ab", em.Text())
}

func TestEmitterEmptyTokenIgnored(t *testing.T) {
	em := NewEmitter()

	em.Token("")
	em.Done()

	events := drain(em)
	require.Len(t, events, 1)
	assert.Equal(t, EventDone, events[0].Kind)
}
