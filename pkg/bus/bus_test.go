package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishConsumeInbound(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	ev := InboundEvent{Channel: "discord", Kind: EventCommand, Command: "level", UserID: "u1"}
	require.NoError(t, eb.PublishInbound(context.Background(), ev))

	got, ok := eb.ConsumeInbound(context.Background())
	require.True(t, ok)
	assert.Equal(t, ev, got)
}

func TestOutboundRoundTrip(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	msg := OutboundMessage{Channel: "discord", ChatID: "c1", Embed: &Embed{Title: "Level 3"}}
	require.NoError(t, eb.PublishOutbound(context.Background(), msg))

	got, ok := eb.SubscribeOutbound(context.Background())
	require.True(t, ok)
	assert.Equal(t, "Level 3", got.Embed.Title)
}

func TestPublishAfterClose(t *testing.T) {
	eb := NewEventBus()
	eb.Close()

	err := eb.PublishInbound(context.Background(), InboundEvent{Kind: EventMessage})
	assert.ErrorIs(t, err, ErrBusClosed)
	err = eb.PublishOutbound(context.Background(), OutboundMessage{})
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestConsumeUnblocksOnClose(t *testing.T) {
	eb := NewEventBus()

	done := make(chan struct{})
	go func() {
		_, ok := eb.ConsumeInbound(context.Background())
		assert.False(t, ok)
		close(done)
	}()

	eb.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consume did not unblock on close")
	}
}

func TestConsumeHonorsContext(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := eb.ConsumeInbound(ctx)
	assert.False(t, ok)
}

func TestCloseIdempotent(t *testing.T) {
	eb := NewEventBus()
	eb.Close()
	eb.Close()
}
