package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/tinyland-inc/cardsmith/pkg/bus"
	"github.com/tinyland-inc/cardsmith/pkg/logger"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
	IsAllowed(userID string) bool
}

// BaseChannelOption is a functional option for configuring a BaseChannel.
type BaseChannelOption func(*BaseChannel)

// WithAdminList marks the given user ids as administrators. Admin-only
// commands are refused for everyone else.
func WithAdminList(ids []string) BaseChannelOption {
	return func(c *BaseChannel) { c.adminList = ids }
}

type BaseChannel struct {
	bus       *bus.EventBus
	running   atomic.Bool
	name      string
	allowList []string
	adminList []string
}

func NewBaseChannel(name string, eventBus *bus.EventBus, allowList []string, opts ...BaseChannelOption) *BaseChannel {
	bc := &BaseChannel{
		bus:       eventBus,
		name:      name,
		allowList: allowList,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) IsAllowed(userID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, allowed := range c.allowList {
		if userID == strings.TrimPrefix(allowed, "@") {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user is on the admin list.
func (c *BaseChannel) IsAdmin(userID string) bool {
	for _, id := range c.adminList {
		if userID == id {
			return true
		}
	}
	return false
}

// HandleEvent stamps the channel name and admin flag and publishes the
// event, dropping it when the sender is not allowed.
func (c *BaseChannel) HandleEvent(ctx context.Context, ev bus.InboundEvent) {
	if !c.IsAllowed(ev.UserID) {
		return
	}
	ev.Channel = c.name
	ev.Admin = c.IsAdmin(ev.UserID)
	if err := c.bus.PublishInbound(ctx, ev); err != nil {
		logger.WarnCF(c.name, "inbound event dropped", map[string]any{"kind": string(ev.Kind), "error": err.Error()})
	}
}

func (c *BaseChannel) SetRunning(running bool) {
	c.running.Store(running)
}
