package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konvohq/konvo/internal/channel"
)

type recordingRunner struct {
	done chan channel.InboundEvent
	err  error
	boom bool
}

func (r *recordingRunner) Process(ctx context.Context, event channel.InboundEvent) ([]string, error) {
	defer func() { r.done <- event }()
	if r.boom {
		panic("bad event")
	}
	return nil, r.err
}

func waitForEvent(t *testing.T, done <-chan channel.InboundEvent) channel.InboundEvent {
	t.Helper()
	select {
	case event := <-done:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatcher run")
		return channel.InboundEvent{}
	}
}

func TestDispatcherRunsEnqueuedEvent(t *testing.T) {
	runner := &recordingRunner{done: make(chan channel.InboundEvent, 1)}
	dispatcher := NewDispatcher(runner, 2, 8, slog.Default())
	defer dispatcher.Stop()

	err := dispatcher.Enqueue(context.Background(), channel.InboundEvent{
		ChannelID:         "channel-1",
		ExternalSenderRef: "34600111222",
		Text:              "hola",
	})
	require.NoError(t, err)

	got := waitForEvent(t, runner.done)
	assert.Equal(t, "channel-1", got.ChannelID)
	assert.Equal(t, "hola", got.Text)
}

func TestDispatcherSwallowsRunErrors(t *testing.T) {
	runner := &recordingRunner{
		done: make(chan channel.InboundEvent, 2),
		err:  errors.New("downstream unavailable"),
	}
	dispatcher := NewDispatcher(runner, 1, 8, slog.Default())
	defer dispatcher.Stop()

	require.NoError(t, dispatcher.Enqueue(context.Background(), channel.InboundEvent{ChannelID: "channel-1"}))
	waitForEvent(t, runner.done)

	// The worker survives a failed run and picks up the next event.
	require.NoError(t, dispatcher.Enqueue(context.Background(), channel.InboundEvent{ChannelID: "channel-2"}))
	got := waitForEvent(t, runner.done)
	assert.Equal(t, "channel-2", got.ChannelID)
}

func TestDispatcherContainsPanics(t *testing.T) {
	runner := &recordingRunner{done: make(chan channel.InboundEvent, 2), boom: true}
	dispatcher := NewDispatcher(runner, 1, 8, slog.Default())
	defer dispatcher.Stop()

	require.NoError(t, dispatcher.Enqueue(context.Background(), channel.InboundEvent{ChannelID: "channel-1"}))
	waitForEvent(t, runner.done)

	runner.boom = false
	require.NoError(t, dispatcher.Enqueue(context.Background(), channel.InboundEvent{ChannelID: "channel-2"}))
	got := waitForEvent(t, runner.done)
	assert.Equal(t, "channel-2", got.ChannelID)
}

func TestDispatcherRejectsWhenQueueFull(t *testing.T) {
	// No workers drain the queue until Enqueue starts them, so a single-slot
	// queue with a blocked runner fills on the second event.
	block := make(chan struct{})
	runner := &blockingRunner{release: block, started: make(chan struct{}, 4)}
	dispatcher := NewDispatcher(runner, 1, 1, slog.Default())
	defer func() {
		close(block)
		dispatcher.Stop()
	}()

	require.NoError(t, dispatcher.Enqueue(context.Background(), channel.InboundEvent{ChannelID: "a"}))
	<-runner.started
	require.NoError(t, dispatcher.Enqueue(context.Background(), channel.InboundEvent{ChannelID: "b"}))

	err := dispatcher.Enqueue(context.Background(), channel.InboundEvent{ChannelID: "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
}

func TestDispatcherStopRejectsNewWork(t *testing.T) {
	runner := &recordingRunner{done: make(chan channel.InboundEvent, 1)}
	dispatcher := NewDispatcher(runner, 1, 8, slog.Default())
	dispatcher.Stop()

	err := dispatcher.Enqueue(context.Background(), channel.InboundEvent{ChannelID: "channel-1"})
	require.Error(t, err)
}

type blockingRunner struct {
	release <-chan struct{}
	started chan struct{}
}

func (r *blockingRunner) Process(ctx context.Context, event channel.InboundEvent) ([]string, error) {
	r.started <- struct{}{}
	<-r.release
	return nil, nil
}
