// Package gateway is the dispatcher: it consumes normalized platform
// events off the bus, drives the editing sessions and domain services,
// and publishes embeds, files and side effects back to the channels.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinyland-inc/cardsmith/pkg/assets"
	"github.com/tinyland-inc/cardsmith/pkg/bus"
	"github.com/tinyland-inc/cardsmith/pkg/cards"
	"github.com/tinyland-inc/cardsmith/pkg/channels"
	"github.com/tinyland-inc/cardsmith/pkg/config"
	"github.com/tinyland-inc/cardsmith/pkg/faults"
	"github.com/tinyland-inc/cardsmith/pkg/leveling"
	"github.com/tinyland-inc/cardsmith/pkg/logger"
	"github.com/tinyland-inc/cardsmith/pkg/pantheon"
	"github.com/tinyland-inc/cardsmith/pkg/pixelart"
	"github.com/tinyland-inc/cardsmith/pkg/quantize"
	"github.com/tinyland-inc/cardsmith/pkg/render"
	"github.com/tinyland-inc/cardsmith/pkg/session"
	"github.com/tinyland-inc/cardsmith/pkg/stockage"
)

const sweepInterval = time.Minute

// Stores groups the persistent state files the dispatcher reads and
// writes directly.
type Stores struct {
	Embed      *config.Store
	Converters *config.Store
	Leveling   *config.Store
	Welcome    *config.Store
}

type Gateway struct {
	bus      *bus.EventBus
	channels map[string]channels.Channel

	renderer  *render.Renderer
	ingestor  *assets.Ingestor
	converter *pixelart.Converter
	levels    *leveling.Service
	sessions  *session.Service
	pantheon  *pantheon.Service
	stockage  *stockage.Service
	stores    Stores
}

func New(
	eventBus *bus.EventBus,
	chans []channels.Channel,
	renderer *render.Renderer,
	ingestor *assets.Ingestor,
	converter *pixelart.Converter,
	levels *leveling.Service,
	sessions *session.Service,
	pantheonSvc *pantheon.Service,
	stockageSvc *stockage.Service,
	stores Stores,
) *Gateway {
	byName := make(map[string]channels.Channel, len(chans))
	for _, c := range chans {
		byName[c.Name()] = c
	}
	g := &Gateway{
		bus:       eventBus,
		channels:  byName,
		renderer:  renderer,
		ingestor:  ingestor,
		converter: converter,
		levels:    levels,
		sessions:  sessions,
		pantheon:  pantheonSvc,
		stockage:  stockageSvc,
		stores:    stores,
	}
	g.loadRecords()
	return g
}

// Run consumes events until ctx is cancelled. Inbound dispatch, outbound
// delivery and session sweeping run as one errgroup.
func (g *Gateway) Run(ctx context.Context) error {
	grp, ctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		for {
			ev, ok := g.bus.ConsumeInbound(ctx)
			if !ok {
				return ctx.Err()
			}
			g.dispatch(ctx, ev)
		}
	})

	grp.Go(func() error {
		for {
			msg, ok := g.bus.SubscribeOutbound(ctx)
			if !ok {
				return ctx.Err()
			}
			ch, found := g.channels[msg.Channel]
			if !found {
				logger.WarnCF("gateway", "outbound for unknown channel", map[string]any{"channel": msg.Channel})
				continue
			}
			if err := ch.Send(ctx, msg); err != nil {
				logger.ErrorCF("gateway", "outbound delivery failed", map[string]any{"channel": msg.Channel, "error": err.Error()})
			}
		}
	})

	grp.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if n := g.sessions.Sweep(); n > 0 {
					logger.InfoCF("gateway", "sessions swept", map[string]any{"expired": n})
				}
			}
		}
	})

	return grp.Wait()
}

func (g *Gateway) dispatch(ctx context.Context, ev bus.InboundEvent) {
	var err error
	switch ev.Kind {
	case bus.EventCommand:
		err = g.handleCommand(ctx, ev)
	case bus.EventComponent:
		err = g.handleComponent(ctx, ev)
	case bus.EventModal:
		err = g.handleModal(ctx, ev)
	case bus.EventMessage:
		err = g.handleMessage(ctx, ev)
	case bus.EventAttachment:
		err = g.handleAttachment(ctx, ev)
	case bus.EventMemberJoin:
		err = g.handleMemberJoin(ctx, ev)
	}
	if err == nil {
		return
	}
	logger.WarnCF("gateway", "event refused", map[string]any{"kind": string(ev.Kind), "user": ev.UserID, "error": err.Error()})
	g.reply(ctx, ev, bus.OutboundMessage{Embed: refusalEmbed(err), Ephemeral: true})
}

// reply stamps routing fields from the triggering event and publishes.
func (g *Gateway) reply(ctx context.Context, ev bus.InboundEvent, msg bus.OutboundMessage) {
	msg.Channel = ev.Channel
	msg.ChatID = ev.ChatID
	if msg.UserID == "" {
		msg.UserID = ev.UserID
	}
	if msg.InteractionID == "" {
		msg.InteractionID = ev.InteractionID
	}
	if err := g.bus.PublishOutbound(ctx, msg); err != nil {
		logger.ErrorCF("gateway", "outbound publish failed", map[string]any{"error": err.Error()})
	}
}

func (g *Gateway) handleCommand(ctx context.Context, ev bus.InboundEvent) error {
	switch ev.Command {
	case "level":
		return g.commandLevel(ctx, ev)
	case "embed":
		g.sessions.Open(ev.UserID, session.ModeEmbed)
		embed, comps := embedBuilderScreen(nil)
		g.reply(ctx, ev, bus.OutboundMessage{Embed: embed, Components: comps, Ephemeral: true})
		return nil
	case "pixels_convertor":
		g.sessions.Open(ev.UserID, session.ModeConverter)
		job, hasJob := g.converter.Current(ev.UserID)
		embed, comps := converterScreen(job, hasJob)
		g.reply(ctx, ev, bus.OutboundMessage{Embed: embed, Components: comps, Ephemeral: true})
		return nil
	case "pantheon":
		g.sessions.Open(ev.UserID, session.ModePantheon)
		embed, comps := pantheonScreen(g.pantheon.Artworks())
		g.reply(ctx, ev, bus.OutboundMessage{Embed: embed, Components: comps})
		return nil
	case "random_art":
		art, rating, err := g.pantheon.Next()
		if err != nil {
			return err
		}
		embed, comps := randomArtScreen(art, rating)
		g.reply(ctx, ev, bus.OutboundMessage{Embed: embed, Components: comps})
		return nil
	case "level_system":
		g.sessions.Open(ev.UserID, session.ModeLevelSystem)
		embed, comps := levelSystemScreen(g.stores.Leveling.Get("leveling_settings.enabled").Bool(), "")
		g.reply(ctx, ev, bus.OutboundMessage{Embed: embed, Components: comps, Ephemeral: true})
		return nil
	case "welcome_system":
		g.sessions.Open(ev.UserID, session.ModeWelcome)
		embed, comps := welcomeSystemScreen(g.stores.Welcome.Get("welcome_settings.enabled").Bool(), "")
		g.reply(ctx, ev, bus.OutboundMessage{Embed: embed, Components: comps, Ephemeral: true})
		return nil
	case "clear_dm":
		return g.commandClearDM(ctx, ev)
	case "add_stock":
		results, err := g.stockage.Process(ev.Options["items"], true)
		if err != nil {
			return err
		}
		g.reply(ctx, ev, bus.OutboundMessage{Embed: stockResultsScreen(results, true)})
		return nil
	default:
		return faults.Newf(faults.InvalidInput, "unknown command %q", ev.Command)
	}
}

func (g *Gateway) commandLevel(ctx context.Context, ev bus.InboundEvent) error {
	target := ev.Options["user"]
	id := render.Identity{ID: ev.UserID, Name: ev.UserName, AvatarURL: ev.AvatarURL}
	if target != "" && target != ev.UserID {
		id = render.Identity{ID: target, Name: target}
	}

	rec := g.levels.Snapshot(id.ID)
	spec := cards.LevelCard(g.stores.Leveling, rec, g.levels.Rank(id.ID))
	return g.replyCard(ctx, ev, spec, id, fmt.Sprintf("Level %d", rec.Level))
}

func (g *Gateway) commandClearDM(ctx context.Context, ev bus.InboundEvent) error {
	if !ev.Admin {
		return faults.Newf(faults.PermissionDenied, "clear_dm is admin-only")
	}
	amount, err := strconv.Atoi(ev.Options["amount"])
	if err != nil || amount < 1 || amount > 999 {
		return faults.Newf(faults.InvalidInput, "amount must be between 1 and 999")
	}
	g.reply(ctx, ev, bus.OutboundMessage{
		PurgeDM:   amount,
		Embed:     &bus.Embed{Title: "Cleaning up", Description: fmt.Sprintf("Deleting up to %d messages.", amount), Color: colorWarning},
		Ephemeral: true,
	})
	return nil
}

// replyCard renders a card spec and attaches the result to the reply.
func (g *Gateway) replyCard(ctx context.Context, ev bus.InboundEvent, spec render.Spec, id render.Identity, title string) error {
	res, err := g.renderer.Render(ctx, spec, id)
	if err != nil {
		return err
	}
	name := "card." + res.Format.Ext()
	g.reply(ctx, ev, bus.OutboundMessage{
		Embed:    &bus.Embed{Title: title, Color: colorOK, ImageURL: "attachment://" + name},
		FileName: name,
		FileData: res.Data,
	})
	return nil
}

func (g *Gateway) handleMessage(ctx context.Context, ev bus.InboundEvent) error {
	settings := g.levelingSettings()
	gain := g.levels.HandleMessage(ev.UserID, ev.Content, settings)
	if gain.XP == 0 {
		return nil
	}
	g.persistRecords()

	if !gain.LeveledUp() {
		return nil
	}
	logger.InfoCF("gateway", "level up", map[string]any{"user": ev.UserID, "level": gain.NewLevel})

	for _, roleID := range leveling.RolesForLevel(settings, gain.NewLevel) {
		g.reply(ctx, ev, bus.OutboundMessage{GrantRoleID: roleID, UserID: ev.UserID})
	}

	if !g.stores.Leveling.Get("leveling_settings.level_up_notification.enabled").Bool() {
		return nil
	}
	spec := cards.LevelUpCard(g.stores.Leveling, gain.NewLevel)
	id := render.Identity{ID: ev.UserID, Name: ev.UserName, AvatarURL: ev.AvatarURL}
	return g.replyCard(ctx, ev, spec, id, fmt.Sprintf("%s reached level %d!", ev.UserName, gain.NewLevel))
}

func (g *Gateway) handleMemberJoin(ctx context.Context, ev bus.InboundEvent) error {
	if !g.stores.Welcome.Get("welcome_settings.enabled").Bool() {
		return nil
	}
	chatID := g.stores.Welcome.Get("welcome_settings.channel_id").String()
	if chatID == "" {
		return nil
	}

	spec := cards.WelcomeCard(g.stores.Welcome)
	id := render.Identity{ID: ev.UserID, Name: ev.UserName, AvatarURL: ev.AvatarURL}
	res, err := g.renderer.Render(ctx, spec, id)
	if err != nil {
		return err
	}
	name := "welcome." + res.Format.Ext()
	g.reply(ctx, ev, bus.OutboundMessage{
		ChatID:   chatID,
		Embed:    &bus.Embed{Title: "Welcome " + ev.UserName + "!", Color: colorOK, ImageURL: "attachment://" + name},
		FileName: name,
		FileData: res.Data,
	})
	return nil
}

func (g *Gateway) handleComponent(ctx context.Context, ev bus.InboundEvent) error {
	if strings.HasPrefix(ev.CustomID, "rate:") {
		return g.componentVote(ctx, ev)
	}

	prefix, action, ok := strings.Cut(ev.CustomID, ":")
	if !ok {
		return faults.Newf(faults.InvalidInput, "malformed component id %q", ev.CustomID)
	}

	switch prefix {
	case "conv":
		return g.componentConverter(ctx, ev, action)
	case "embed":
		return g.componentEmbed(ctx, ev, action)
	case "lvl":
		return g.componentLevelSystem(ctx, ev, action)
	case "wel":
		return g.componentWelcomeSystem(ctx, ev, action)
	case "pan":
		return g.componentPantheon(ctx, ev, action)
	default:
		return faults.Newf(faults.InvalidInput, "unknown component id %q", ev.CustomID)
	}
}

func (g *Gateway) componentVote(ctx context.Context, ev bus.InboundEvent) error {
	parts := strings.Split(ev.CustomID, ":")
	if len(parts) != 3 {
		return faults.Newf(faults.InvalidInput, "malformed vote id %q", ev.CustomID)
	}
	stars, err := strconv.Atoi(parts[2])
	if err != nil {
		return faults.Newf(faults.InvalidInput, "malformed vote id %q", ev.CustomID)
	}
	avg, err := g.pantheon.Vote(parts[1], stars)
	if err != nil {
		return err
	}
	g.reply(ctx, ev, bus.OutboundMessage{
		Embed:     &bus.Embed{Title: "Vote recorded", Description: fmt.Sprintf("New average: %.1f / 5", avg), Color: colorOK},
		Ephemeral: true,
	})
	return nil
}

func (g *Gateway) componentConverter(ctx context.Context, ev bus.InboundEvent, action string) error {
	if _, err := g.sessions.Resolve(ev.UserID, ev.UserID); err != nil {
		return err
	}

	switch action {
	case "upload":
		err := g.sessions.Update(ev.UserID, ev.UserID, func(s *session.Session) error {
			s.Pending = &session.PendingUpload{Target: "converter"}
			return nil
		})
		if err != nil {
			return err
		}
		g.reply(ctx, ev, bus.OutboundMessage{
			Embed:     &bus.Embed{Title: "Waiting for an image", Description: "Post the image to convert as your next attachment.", Color: colorInfo},
			Ephemeral: true,
		})
		return nil
	case "done":
		g.converter.Drop(ev.UserID)
		g.sessions.Close(ev.UserID)
		g.reply(ctx, ev, bus.OutboundMessage{
			Embed: &bus.Embed{Title: "Converter closed", Color: colorInfo}, Update: true,
		})
		return nil
	case "dither":
		job, hasJob := g.converter.Current(ev.UserID)
		if !hasJob {
			return faults.Newf(faults.InvalidInput, "no image loaded yet")
		}
		if _, err := g.converter.SetDither(ctx, ev.UserID, !job.Dither); err != nil {
			return err
		}
	case "w+", "w-", "h+", "h-":
		dw, dh := 0, 0
		switch action {
		case "w+":
			dw = 1
		case "w-":
			dw = -1
		case "h+":
			dh = 1
		case "h-":
			dh = -1
		}
		if _, err := g.converter.Step(ctx, ev.UserID, dw, dh); err != nil {
			return err
		}
	default:
		return faults.Newf(faults.InvalidInput, "unknown converter action %q", action)
	}

	job, hasJob := g.converter.Current(ev.UserID)
	embed, comps := converterScreen(job, hasJob)
	g.reply(ctx, ev, bus.OutboundMessage{Embed: embed, Components: comps, Ephemeral: true, Update: true})
	return nil
}

func (g *Gateway) componentEmbed(ctx context.Context, ev bus.InboundEvent, action string) error {
	sess, err := g.sessions.Resolve(ev.UserID, ev.UserID)
	if err != nil {
		return err
	}

	switch action {
	case "edit":
		g.reply(ctx, ev, bus.OutboundMessage{
			ModalID:    "embed_modal",
			ModalTitle: "Edit embed",
			ModalFields: []bus.ModalField{
				{CustomID: "title", Label: "Title", Required: true},
				{CustomID: "description", Label: "Description", Paragraph: true},
			},
		})
		return nil
	case "image":
		err := g.sessions.Update(ev.UserID, ev.UserID, func(s *session.Session) error {
			s.Pending = &session.PendingUpload{Target: "embed_image"}
			return nil
		})
		if err != nil {
			return err
		}
		g.reply(ctx, ev, bus.OutboundMessage{
			Embed:     &bus.Embed{Title: "Waiting for an image", Description: "Post the embed image as your next attachment.", Color: colorInfo},
			Ephemeral: true,
		})
		return nil
	case "send":
		embed := &bus.Embed{
			Title:       sess.Fields["title"],
			Description: sess.Fields["description"],
			Color:       colorInfo,
			ImageURL:    sess.Fields["image"],
		}
		if err := g.stores.Embed.Set("last_embed", sess.Fields); err != nil {
			return err
		}
		g.sessions.Close(ev.UserID)
		g.reply(ctx, ev, bus.OutboundMessage{Embed: embed})
		return nil
	case "cancel":
		g.sessions.Close(ev.UserID)
		g.reply(ctx, ev, bus.OutboundMessage{Embed: &bus.Embed{Title: "Embed discarded", Color: colorInfo}, Update: true})
		return nil
	default:
		return faults.Newf(faults.InvalidInput, "unknown embed action %q", action)
	}
}

func (g *Gateway) componentLevelSystem(ctx context.Context, ev bus.InboundEvent, action string) error {
	if _, err := g.sessions.Resolve(ev.UserID, ev.UserID); err != nil {
		return err
	}

	switch action {
	case "toggle":
		enabled := g.stores.Leveling.Get("leveling_settings.enabled").Bool()
		if err := g.stores.Leveling.Set("leveling_settings.enabled", !enabled); err != nil {
			return err
		}
	case "background":
		err := g.sessions.Update(ev.UserID, ev.UserID, func(s *session.Session) error {
			s.Pending = &session.PendingUpload{Target: "level_background"}
			return nil
		})
		if err != nil {
			return err
		}
		g.reply(ctx, ev, bus.OutboundMessage{
			Embed:     &bus.Embed{Title: "Waiting for an image", Description: "Post the card background as your next attachment.", Color: colorInfo},
			Ephemeral: true,
		})
		return nil
	case "preview":
		rec := g.levels.Snapshot(ev.UserID)
		spec := cards.LevelCard(g.stores.Leveling, rec, g.levels.Rank(ev.UserID))
		id := render.Identity{ID: ev.UserID, Name: ev.UserName, AvatarURL: ev.AvatarURL}
		return g.replyCard(ctx, ev, spec, id, "Level card preview")
	case "done":
		g.sessions.Close(ev.UserID)
		g.reply(ctx, ev, bus.OutboundMessage{Embed: &bus.Embed{Title: "Level system saved", Color: colorOK}, Update: true})
		return nil
	default:
		return faults.Newf(faults.InvalidInput, "unknown level-system action %q", action)
	}

	embed, comps := levelSystemScreen(g.stores.Leveling.Get("leveling_settings.enabled").Bool(), "")
	g.reply(ctx, ev, bus.OutboundMessage{Embed: embed, Components: comps, Ephemeral: true, Update: true})
	return nil
}

func (g *Gateway) componentWelcomeSystem(ctx context.Context, ev bus.InboundEvent, action string) error {
	if _, err := g.sessions.Resolve(ev.UserID, ev.UserID); err != nil {
		return err
	}

	switch action {
	case "toggle":
		enabled := g.stores.Welcome.Get("welcome_settings.enabled").Bool()
		if err := g.stores.Welcome.Set("welcome_settings.enabled", !enabled); err != nil {
			return err
		}
	case "background":
		err := g.sessions.Update(ev.UserID, ev.UserID, func(s *session.Session) error {
			s.Pending = &session.PendingUpload{Target: "welcome_background"}
			return nil
		})
		if err != nil {
			return err
		}
		g.reply(ctx, ev, bus.OutboundMessage{
			Embed:     &bus.Embed{Title: "Waiting for an image", Description: "Post the card background as your next attachment.", Color: colorInfo},
			Ephemeral: true,
		})
		return nil
	case "texts":
		g.reply(ctx, ev, bus.OutboundMessage{
			ModalID:    "welcome_modal",
			ModalTitle: "Welcome texts",
			ModalFields: []bus.ModalField{
				{CustomID: "title", Label: "Title ({name} expands)", Required: true},
				{CustomID: "subtitle", Label: "Subtitle"},
			},
		})
		return nil
	case "preview":
		spec := cards.WelcomeCard(g.stores.Welcome)
		id := render.Identity{ID: ev.UserID, Name: ev.UserName, AvatarURL: ev.AvatarURL}
		return g.replyCard(ctx, ev, spec, id, "Welcome card preview")
	case "done":
		g.sessions.Close(ev.UserID)
		g.reply(ctx, ev, bus.OutboundMessage{Embed: &bus.Embed{Title: "Welcome system saved", Color: colorOK}, Update: true})
		return nil
	default:
		return faults.Newf(faults.InvalidInput, "unknown welcome-system action %q", action)
	}

	embed, comps := welcomeSystemScreen(g.stores.Welcome.Get("welcome_settings.enabled").Bool(), "")
	g.reply(ctx, ev, bus.OutboundMessage{Embed: embed, Components: comps, Ephemeral: true, Update: true})
	return nil
}

func (g *Gateway) componentPantheon(ctx context.Context, ev bus.InboundEvent, action string) error {
	switch action {
	case "add":
		g.reply(ctx, ev, bus.OutboundMessage{
			ModalID:    "pantheon_modal",
			ModalTitle: "Add artwork",
			ModalFields: []bus.ModalField{
				{CustomID: "title", Label: "Title", Required: true},
				{CustomID: "author", Label: "Artist"},
				{CustomID: "description", Label: "Description", Paragraph: true},
				{CustomID: "image", Label: "Image URL"},
				{CustomID: "location", Label: "Location"},
			},
		})
		return nil
	case "delete":
		if len(ev.Values) == 0 {
			return faults.Newf(faults.InvalidInput, "nothing selected")
		}
		if err := g.pantheon.Delete(ev.Values[0]); err != nil {
			return err
		}
		embed, comps := pantheonScreen(g.pantheon.Artworks())
		g.reply(ctx, ev, bus.OutboundMessage{Embed: embed, Components: comps, Update: true})
		return nil
	default:
		return faults.Newf(faults.InvalidInput, "unknown pantheon action %q", action)
	}
}

func (g *Gateway) handleModal(ctx context.Context, ev bus.InboundEvent) error {
	switch ev.CustomID {
	case "embed_modal":
		if len(ev.Values) < 1 {
			return faults.Newf(faults.InvalidInput, "embed title required")
		}
		err := g.sessions.Update(ev.UserID, ev.UserID, func(s *session.Session) error {
			if s.Fields == nil {
				s.Fields = make(map[string]string)
			}
			s.Fields["title"] = ev.Values[0]
			if len(ev.Values) > 1 {
				s.Fields["description"] = ev.Values[1]
			}
			return nil
		})
		if err != nil {
			return err
		}
		sess, err := g.sessions.Resolve(ev.UserID, ev.UserID)
		if err != nil {
			return err
		}
		embed, comps := embedBuilderScreen(sess.Fields)
		g.reply(ctx, ev, bus.OutboundMessage{Embed: embed, Components: comps, Ephemeral: true, Update: true})
		return nil
	case "welcome_modal":
		if len(ev.Values) < 1 {
			return faults.Newf(faults.InvalidInput, "welcome title required")
		}
		if err := g.stores.Welcome.Set("welcome_settings.title.text", ev.Values[0]); err != nil {
			return err
		}
		if len(ev.Values) > 1 {
			if err := g.stores.Welcome.Set("welcome_settings.subtitle.text", ev.Values[1]); err != nil {
				return err
			}
		}
		embed, comps := welcomeSystemScreen(g.stores.Welcome.Get("welcome_settings.enabled").Bool(), "")
		g.reply(ctx, ev, bus.OutboundMessage{Embed: embed, Components: comps, Ephemeral: true, Update: true})
		return nil
	case "pantheon_modal":
		if len(ev.Values) < 1 {
			return faults.Newf(faults.InvalidInput, "artwork title required")
		}
		art := pantheon.Artwork{Title: ev.Values[0], CreatedBy: ev.UserID}
		for i, v := range ev.Values {
			switch i {
			case 1:
				art.AuthorName = v
			case 2:
				art.Description = v
			case 3:
				art.ImageURL = v
			case 4:
				art.Location = v
			}
		}
		added, err := g.pantheon.Add(art)
		if err != nil {
			return err
		}
		g.reply(ctx, ev, bus.OutboundMessage{
			Embed:     &bus.Embed{Title: "Artwork added", Description: added.Title, Color: colorOK},
			Ephemeral: true,
		})
		return nil
	default:
		return faults.Newf(faults.InvalidInput, "unknown modal %q", ev.CustomID)
	}
}

func (g *Gateway) handleAttachment(ctx context.Context, ev bus.InboundEvent) error {
	pending, ok := g.sessions.TakePending(ev.UserID)
	if !ok {
		return nil
	}

	switch pending.Target {
	case "converter":
		_, err := g.converter.Start(ctx, ev.UserID, ev.AttachmentURL, g.palette(), false)
		if err != nil {
			return err
		}
		job, hasJob := g.converter.Current(ev.UserID)
		embed, comps := converterScreen(job, hasJob)
		g.reply(ctx, ev, bus.OutboundMessage{Embed: embed, Components: comps})
		return nil
	case "embed_image":
		url, err := g.ingestor.Ingest(ctx, ev.AttachmentURL)
		if err != nil {
			return err
		}
		err = g.sessions.Update(ev.UserID, ev.UserID, func(s *session.Session) error {
			if s.Fields == nil {
				s.Fields = make(map[string]string)
			}
			s.Fields["image"] = url
			return nil
		})
		if err != nil {
			return err
		}
		sess, err := g.sessions.Resolve(ev.UserID, ev.UserID)
		if err != nil {
			return err
		}
		embed, comps := embedBuilderScreen(sess.Fields)
		g.reply(ctx, ev, bus.OutboundMessage{Embed: embed, Components: comps})
		return nil
	case "level_background":
		return g.storeBackground(ctx, ev, g.stores.Leveling, "leveling_settings.level_card.background_image")
	case "welcome_background":
		return g.storeBackground(ctx, ev, g.stores.Welcome, "welcome_settings.background_image")
	default:
		return faults.Newf(faults.InvalidInput, "unknown upload target %q", pending.Target)
	}
}

func (g *Gateway) storeBackground(ctx context.Context, ev bus.InboundEvent, store *config.Store, path string) error {
	url, err := g.ingestor.Ingest(ctx, ev.AttachmentURL)
	if err != nil {
		return err
	}
	if err := store.Set(path, url); err != nil {
		return err
	}
	g.reply(ctx, ev, bus.OutboundMessage{
		Embed: &bus.Embed{Title: "Background updated", Color: colorOK, ImageURL: url},
	})
	return nil
}

// levelingSettings maps the leveling_data.json policy block to the
// service's settings struct.
func (g *Gateway) levelingSettings() leveling.Settings {
	s := leveling.DefaultSettings()
	store := g.stores.Leveling

	if v := store.Get("leveling_settings.enabled"); v.Exists() {
		s.Enabled = v.Bool()
	}
	if raw := store.Get("leveling_settings.xp_settings.messages").Raw; raw != "" {
		_ = json.Unmarshal([]byte(raw), &s.Messages)
	}
	if raw := store.Get("leveling_settings.xp_settings.characters").Raw; raw != "" {
		_ = json.Unmarshal([]byte(raw), &s.Characters)
	}

	roles := store.Get("leveling_settings.rewards.roles").Map()
	levels := make([]int, 0, len(roles))
	byLevel := make(map[int]string, len(roles))
	for lvl, roleID := range roles {
		n, err := strconv.Atoi(lvl)
		if err != nil {
			continue
		}
		levels = append(levels, n)
		byLevel[n] = roleID.String()
	}
	sort.Ints(levels)
	for _, n := range levels {
		s.Roles = append(s.Roles, leveling.RoleReward{Level: n, RoleID: byLevel[n]})
	}
	return s
}

// palette reads the active converter palette out of converters_data.json.
func (g *Gateway) palette() quantize.Palette {
	store := g.stores.Converters
	name := store.Get("default_palette").String()
	raw := store.Get("palettes." + name).Raw
	if raw == "" {
		return nil
	}
	var pal quantize.Palette
	if err := json.Unmarshal([]byte(raw), &pal); err != nil {
		logger.WarnCF("gateway", "palette unreadable", map[string]any{"palette": name, "error": err.Error()})
		return nil
	}
	return pal
}

func (g *Gateway) loadRecords() {
	raw := g.stores.Leveling.Get("user_data").Raw
	if raw == "" {
		return
	}
	var records map[string]*leveling.Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		logger.WarnCF("gateway", "user records unreadable", map[string]any{"error": err.Error()})
		return
	}
	g.levels.Load(records)
}

func (g *Gateway) persistRecords() {
	raw, err := json.Marshal(g.levels.Export())
	if err != nil {
		return
	}
	if err := g.stores.Leveling.SetRaw("user_data", raw); err != nil {
		logger.ErrorCF("gateway", "user records not persisted", map[string]any{"error": err.Error()})
	}
}
