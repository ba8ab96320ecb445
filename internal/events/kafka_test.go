package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	next      int
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.next < len(r.messages) {
		m := r.messages[r.next]
		r.next++
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestKafkaSource_RetriesFailedMessageBeforeMovingOn(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Offset: 0, Value: []byte("a")},
		{Offset: 1, Value: []byte("b")},
		{Offset: 2, Value: []byte("c")},
	}}
	src := newKafkaSource(reader, nil)
	src.retryBackoff = time.Millisecond
	src.maxBackoff = 2 * time.Millisecond

	var mu sync.Mutex
	var seen []string
	failures := 2
	handle := func(ctx context.Context, raw []byte) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(raw))
		if string(raw) == "b" && failures > 0 {
			failures--
			return errors.New("store unavailable")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, handle) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 3 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, []int64{0, 1, 2}, reader.commits())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "b", "b", "c"}, seen)
}

func TestKafkaSource_StopsRetryingOnCancel(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{{Offset: 7, Value: []byte("x")}}}
	src := newKafkaSource(reader, nil)
	src.retryBackoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	attempts := make(chan struct{}, 100)
	done := make(chan error, 1)
	go func() {
		done <- src.Run(ctx, func(ctx context.Context, raw []byte) error {
			select {
			case attempts <- struct{}{}:
			default:
			}
			return errors.New("always failing")
		})
	}()

	<-attempts
	<-attempts
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, reader.commits())
}
