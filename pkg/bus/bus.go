// Package bus carries normalized platform events between the channel
// adapters and the gateway dispatcher over bounded channels.
package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to a closed EventBus.
var ErrBusClosed = errors.New("event bus closed")

type EventBus struct {
	inbound  chan InboundEvent
	outbound chan OutboundMessage
	done     chan struct{}
	closed   atomic.Bool
}

func NewEventBus() *EventBus {
	return &EventBus{
		inbound:  make(chan InboundEvent, 100),
		outbound: make(chan OutboundMessage, 100),
		done:     make(chan struct{}),
	}
}

func (eb *EventBus) PublishInbound(ctx context.Context, ev InboundEvent) error {
	if eb.closed.Load() {
		return ErrBusClosed
	}
	select {
	case eb.inbound <- ev:
		return nil
	case <-eb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (eb *EventBus) ConsumeInbound(ctx context.Context) (InboundEvent, bool) {
	select {
	case ev, ok := <-eb.inbound:
		return ev, ok
	case <-eb.done:
		return InboundEvent{}, false
	case <-ctx.Done():
		return InboundEvent{}, false
	}
}

func (eb *EventBus) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	if eb.closed.Load() {
		return ErrBusClosed
	}
	select {
	case eb.outbound <- msg:
		return nil
	case <-eb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (eb *EventBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg, ok := <-eb.outbound:
		return msg, ok
	case <-eb.done:
		return OutboundMessage{}, false
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

func (eb *EventBus) Close() {
	if eb.closed.CompareAndSwap(false, true) {
		close(eb.done)
	}
}
