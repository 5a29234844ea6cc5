package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_SendRecv(t *testing.T) {
	m := NewMailbox()

	ok := m.Send(Event{Topic: "/x", Payload: "hello"})
	require.True(t, ok, "send should succeed")

	got, ok := m.TryRecv()
	require.True(t, ok, "receive should succeed")
	ev, isEvent := got.(Event)
	require.True(t, isEvent)
	assert.Equal(t, "/x", ev.Topic)
	assert.Equal(t, "hello", ev.Payload)
}

func TestMailbox_FIFO(t *testing.T) {
	m := NewMailbox()

	for _, topic := range []string{"A", "B", "C"} {
		m.Send(Event{Topic: topic})
	}

	for _, want := range []string{"A", "B", "C"} {
		got, ok := m.TryRecv()
		require.True(t, ok)
		assert.Equal(t, want, got.(Event).Topic)
	}
}

func TestMailbox_TryRecv_Empty(t *testing.T) {
	m := NewMailbox()

	_, ok := m.TryRecv()
	assert.False(t, ok, "receive from empty mailbox should return false")
}

func TestMailbox_Recv_BlocksUntilAvailable(t *testing.T) {
	m := NewMailbox()
	done := make(chan Message)

	go func() {
		msg, err := m.Recv(context.Background())
		if err == nil {
			done <- msg
		}
	}()

	time.Sleep(10 * time.Millisecond)
	m.Send(Event{Topic: "/blocking"})

	select {
	case msg := <-done:
		assert.Equal(t, "/blocking", msg.(Event).Topic)
	case <-time.After(time.Second):
		t.Fatal("recv did not unblock")
	}
}

func TestMailbox_Recv_ContextCancelled(t *testing.T) {
	m := NewMailbox()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error)

	go func() {
		_, err := m.Recv(ctx)
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("recv did not observe cancellation")
	}
}

func TestMailbox_Close_DrainsThenErrClosed(t *testing.T) {
	m := NewMailbox()
	m.Send(Event{Topic: "/last"})
	m.Close()

	msg, err := m.Recv(context.Background())
	require.NoError(t, err, "queued messages survive close")
	assert.Equal(t, "/last", msg.(Event).Topic)

	_, err = m.Recv(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMailbox_Send_AfterClose(t *testing.T) {
	m := NewMailbox()
	m.Close()
	m.Close() // idempotent

	assert.False(t, m.Send(Event{Topic: "/late"}), "send after close should fail")
}

func TestMailbox_Len(t *testing.T) {
	m := NewMailbox()
	assert.Equal(t, 0, m.Len())

	m.Send(Event{})
	m.Send(Event{})
	assert.Equal(t, 2, m.Len())

	m.TryRecv()
	assert.Equal(t, 1, m.Len())
}

func TestMailbox_ConcurrentProducers(t *testing.T) {
	m := NewMailbox()

	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				m.Send(Event{Payload: [2]int{id, i}})
			}
		}(p)
	}
	wg.Wait()

	// Per-producer order is preserved even though producers interleave.
	next := make(map[int]int)
	count := 0
	for {
		msg, ok := m.TryRecv()
		if !ok {
			break
		}
		pair := msg.(Event).Payload.([2]int)
		assert.Equal(t, next[pair[0]], pair[1], "producer %d out of order", pair[0])
		next[pair[0]] = pair[1] + 1
		count++
	}
	assert.Equal(t, producers*perProducer, count)
}
