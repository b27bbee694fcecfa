package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoster struct {
	enabled bool
	err     error
	posted  []string
}

func (f *fakePoster) Enabled() bool { return f.enabled }

func (f *fakePoster) Post(_ context.Context, text string) error {
	f.posted = append(f.posted, text)
	return f.err
}

type memSource struct {
	items []Message
}

func (m *memSource) Pop(context.Context, time.Duration) (*Message, error) {
	if len(m.items) == 0 {
		return nil, nil
	}
	msg := m.items[0]
	m.items = m.items[1:]
	return &msg, nil
}

func (m *memSource) Notify(_ context.Context, msg Message) error {
	m.items = append(m.items, msg)
	return nil
}

func TestDirect(t *testing.T) {
	p := &fakePoster{enabled: true}
	require.NoError(t, NewDirect(p).Notify(context.Background(), Message{Text: "hello"}))
	assert.Equal(t, []string{"hello"}, p.posted)

	off := &fakePoster{}
	require.NoError(t, NewDirect(off).Notify(context.Background(), Message{Text: "hello"}))
	assert.Empty(t, off.posted)
}

func TestWorker_Delivers(t *testing.T) {
	p := &fakePoster{enabled: true}
	src := &memSource{items: []Message{{Kind: "milestone", Text: "done"}}}

	w := NewWorker(src, NewDirect(p))
	require.NoError(t, w.Step(context.Background()))
	assert.Equal(t, []string{"done"}, p.posted)
	assert.Empty(t, src.items)

	// empty queue is not an error
	require.NoError(t, w.Step(context.Background()))
}

func TestWorker_RequeuesThenDrops(t *testing.T) {
	p := &fakePoster{enabled: true, err: errors.New("slack down")}
	src := &memSource{items: []Message{{Kind: "milestone", Text: "done"}}}
	w := NewWorker(src, NewDirect(p))

	for i := 0; i < MaxAttempts; i++ {
		require.NoError(t, w.Step(context.Background()))
	}

	assert.Len(t, p.posted, MaxAttempts)
	assert.Empty(t, src.items)
}

func TestNewRedisClient(t *testing.T) {
	c, err := NewRedisClient("redis://localhost:6379/2")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Options().DB)
	_ = c.Close()

	_, err = NewRedisClient("::not a url")
	assert.Error(t, err)
}
