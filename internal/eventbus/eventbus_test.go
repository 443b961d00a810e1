package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gardenperf.ai/internal/sim/world"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	block  chan struct{}
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestPublisher_TransitionsKeyedByWorld(t *testing.T) {
	tw, sw := &fakeWriter{}, &fakeWriter{}
	p := newPublisher(map[string]MessageWriter{TopicTransitions: tw, TopicSessions: sw}, "test", nil, 16)

	rec := world.TransitionRecord{EventID: "ev-1", WorldID: "w1", Tick: 3, Kind: "CONCEAL", EntityID: 9, Outcome: "DONE", At: time.Now()}
	require.NoError(t, p.WriteTransition(rec))
	require.NoError(t, p.WriteSession(world.SessionRecord{WorldID: "w1", SessionID: "s1", Role: world.RolePlayer, Event: world.SessionConnect}))
	require.NoError(t, p.Close())

	require.Len(t, tw.msgs, 1)
	assert.Equal(t, "w1", string(tw.msgs[0].Key))
	var ev Event
	require.NoError(t, json.Unmarshal(tw.msgs[0].Value, &ev))
	assert.Equal(t, "ev-1", ev.EventID)
	assert.Equal(t, EventTypeTransition, ev.EventType)
	assert.Equal(t, "test", ev.Source)

	var got world.TransitionRecord
	require.NoError(t, json.Unmarshal(ev.Payload, &got))
	assert.Equal(t, int64(9), got.EntityID)

	require.Len(t, sw.msgs, 1)
	require.NoError(t, json.Unmarshal(sw.msgs[0].Value, &ev))
	assert.Equal(t, EventTypeSession, ev.EventType)
	assert.NotEmpty(t, ev.EventID)

	assert.True(t, tw.closed)
	assert.True(t, sw.closed)
	assert.Equal(t, uint64(2), p.Stats().Published)
}

func TestPublisher_DropsWhenQueueFull(t *testing.T) {
	tw := &fakeWriter{block: make(chan struct{})}
	p := newPublisher(map[string]MessageWriter{TopicTransitions: tw, TopicSessions: &fakeWriter{}}, "test", nil, 1)

	// The loop holds at most one event in flight and one in the queue.
	for i := 0; i < 5; i++ {
		require.NoError(t, p.WriteTransition(world.TransitionRecord{EventID: "e", WorldID: "w1"}))
	}
	assert.GreaterOrEqual(t, p.Stats().Dropped, uint64(3))

	close(tw.block)
	require.NoError(t, p.Close())
	assert.NoError(t, p.WriteTransition(world.TransitionRecord{EventID: "late", WorldID: "w1"}))
}

func TestPublisher_CountsFailures(t *testing.T) {
	tw := &fakeWriter{err: errors.New("broker down")}
	p := newPublisher(map[string]MessageWriter{TopicTransitions: tw}, "test", nil, 4)
	require.NoError(t, p.WriteTransition(world.TransitionRecord{EventID: "e", WorldID: "w1"}))
	require.NoError(t, p.Close())
	assert.Equal(t, uint64(1), p.Stats().Failed)
}

func TestPublish_RejectsIncompleteEvents(t *testing.T) {
	p := newPublisher(map[string]MessageWriter{TopicTransitions: &fakeWriter{}}, "test", nil, 1)
	defer p.Close()
	err := p.Publish(context.Background(), TopicTransitions, Event{EventID: "x"})
	assert.Error(t, err)
	err = p.Publish(context.Background(), "nope", Event{EventID: "x", EventType: "t", WorldID: "w"})
	assert.Error(t, err)
}
