package channels

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tinyland-inc/cardsmith/pkg/bus"
	"github.com/tinyland-inc/cardsmith/pkg/logger"
)

// ConsoleChannel drives the gateway from a local terminal. Lines starting
// with "/" become command events, everything else a plain message. Useful
// for poking the pipeline without a bot token.
type ConsoleChannel struct {
	*BaseChannel
	rl     *readline.Instance
	cancel context.CancelFunc
}

const consoleUserID = "console"

func NewConsoleChannel(eventBus *bus.EventBus) *ConsoleChannel {
	return &ConsoleChannel{
		BaseChannel: NewBaseChannel("console", eventBus, nil, WithAdminList([]string{consoleUserID})),
	}
}

func (c *ConsoleChannel) Start(ctx context.Context) error {
	rl, err := readline.New("cardsmith> ")
	if err != nil {
		return fmt.Errorf("opening readline: %w", err)
	}
	c.rl = rl

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.SetRunning(true)

	go c.readLoop(loopCtx)
	return nil
}

func (c *ConsoleChannel) Stop(ctx context.Context) error {
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	if c.rl != nil {
		return c.rl.Close()
	}
	return nil
}

func (c *ConsoleChannel) readLoop(ctx context.Context) {
	for {
		line, err := c.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF || err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		c.HandleEvent(ctx, parseConsoleLine(line))
	}
}

// parseConsoleLine maps "/level user=42" style lines to command events
// and anything else to message events.
func parseConsoleLine(line string) bus.InboundEvent {
	ev := bus.InboundEvent{
		UserID:   consoleUserID,
		UserName: "console",
		ChatID:   "console",
	}
	if !strings.HasPrefix(line, "/") {
		ev.Kind = bus.EventMessage
		ev.Content = line
		return ev
	}

	parts := strings.Fields(line[1:])
	ev.Kind = bus.EventCommand
	if len(parts) == 0 {
		return ev
	}
	ev.Command = parts[0]
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		if ev.Options == nil {
			ev.Options = make(map[string]string)
		}
		ev.Options[k] = v
	}
	return ev
}

func (c *ConsoleChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	var b strings.Builder
	if msg.Content != "" {
		fmt.Fprintln(&b, msg.Content)
	}
	if e := msg.Embed; e != nil {
		if e.Title != "" {
			fmt.Fprintf(&b, "== %s ==\n", e.Title)
		}
		if e.Description != "" {
			fmt.Fprintln(&b, e.Description)
		}
		for _, f := range e.Fields {
			fmt.Fprintf(&b, "%s: %s\n", f.Name, f.Value)
		}
		if e.ImageURL != "" {
			fmt.Fprintf(&b, "[image] %s\n", e.ImageURL)
		}
	}
	if len(msg.FileData) > 0 {
		fmt.Fprintf(&b, "[file] %s (%d bytes)\n", msg.FileName, len(msg.FileData))
	}
	for _, comp := range msg.Components {
		fmt.Fprintf(&b, "  (%s) %s\n", comp.CustomID, comp.Label)
	}

	if c.rl != nil {
		_, err := io.WriteString(c.rl.Stdout(), b.String())
		return err
	}
	logger.InfoC("console", b.String())
	return nil
}
