package channels

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/cardsmith/pkg/bus"
	"github.com/tinyland-inc/cardsmith/pkg/logger"
)

// interactionTTL matches the platform's interaction token lifetime.
const interactionTTL = 15 * time.Minute

type trackedInteraction struct {
	interaction *discordgo.Interaction
	responded   bool
	seen        time.Time
}

type DiscordChannel struct {
	*BaseChannel
	token   string
	guildID string
	session *discordgo.Session

	mu           sync.Mutex
	interactions map[string]*trackedInteraction
}

func NewDiscordChannel(token, guildID string, eventBus *bus.EventBus, allowList []string, opts ...BaseChannelOption) *DiscordChannel {
	return &DiscordChannel{
		BaseChannel:  NewBaseChannel("discord", eventBus, allowList, opts...),
		token:        token,
		guildID:      guildID,
		interactions: make(map[string]*trackedInteraction),
	}
}

func (d *DiscordChannel) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent

	session.AddHandler(d.onInteraction)
	session.AddHandler(d.onMessage)
	session.AddHandler(d.onMemberJoin)

	if err := session.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}
	d.session = session

	appID := session.State.User.ID
	if _, err := session.ApplicationCommandBulkOverwrite(appID, d.guildID, slashCommands()); err != nil {
		session.Close()
		return fmt.Errorf("registering commands: %w", err)
	}

	d.SetRunning(true)
	logger.InfoCF("discord", "channel started", map[string]any{"guild": d.guildID, "commands": len(slashCommands())})
	return nil
}

func (d *DiscordChannel) Stop(ctx context.Context) error {
	d.SetRunning(false)
	if d.session == nil {
		return nil
	}
	return d.session.Close()
}

// slashCommands declares the bot's application commands. With a guild id
// configured they are registered guild-scoped, which propagates instantly;
// an empty guild id registers them globally.
func slashCommands() []*discordgo.ApplicationCommand {
	minAmount, maxAmount := float64(1), float64(999)
	return []*discordgo.ApplicationCommand{
		{Name: "embed", Description: "Build a custom embed interactively"},
		{Name: "pixels_convertor", Description: "Convert an image to palette pixel art"},
		{Name: "pantheon", Description: "Browse and manage the artwork pantheon"},
		{Name: "random_art", Description: "Show a random artwork to rate"},
		{
			Name:        "level",
			Description: "Show a level card",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "User to show (defaults to you)"},
			},
		},
		{Name: "level_system", Description: "Configure the level system"},
		{Name: "welcome_system", Description: "Configure the welcome card"},
		{
			Name:        "clear_dm",
			Description: "Delete the bot's direct messages to you",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionInteger, Name: "amount",
					Description: "How many messages to delete", Required: true,
					MinValue: &minAmount, MaxValue: maxAmount,
				},
			},
		},
		{
			Name:        "add_stock",
			Description: "Add items to the shared stock",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "items", Description: "Items separated by +, comma or and", Required: true},
			},
		},
	}
}

func (d *DiscordChannel) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := i.User
	if i.Member != nil {
		user = i.Member.User
	}
	if user == nil || user.Bot {
		return
	}

	d.track(i.Interaction)

	ev := bus.InboundEvent{
		UserID:        user.ID,
		UserName:      user.Username,
		AvatarURL:     user.AvatarURL("256"),
		ChatID:        i.ChannelID,
		InteractionID: i.ID,
	}
	if i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator != 0 {
		ev.Admin = true
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		ev.Kind = bus.EventCommand
		ev.Command = data.Name
		ev.Options = commandOptions(data.Options)
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		ev.Kind = bus.EventComponent
		ev.CustomID = data.CustomID
		ev.Values = data.Values
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		ev.Kind = bus.EventModal
		ev.CustomID = data.CustomID
		ev.Values = modalValues(data.Components)
	default:
		return
	}

	d.HandleEvent(context.Background(), ev)
}

func commandOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	if len(opts) == 0 {
		return nil
	}
	out := make(map[string]string, len(opts))
	for _, o := range opts {
		switch o.Type {
		case discordgo.ApplicationCommandOptionInteger:
			out[o.Name] = strconv.FormatInt(o.IntValue(), 10)
		case discordgo.ApplicationCommandOptionUser:
			out[o.Name] = fmt.Sprint(o.Value)
		default:
			out[o.Name] = o.StringValue()
		}
	}
	return out
}

func modalValues(rows []discordgo.MessageComponent) []string {
	var out []string
	for _, row := range rows {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range ar.Components {
			if in, ok := comp.(*discordgo.TextInput); ok {
				out = append(out, in.Value)
			}
		}
	}
	return out
}

func (d *DiscordChannel) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	ev := bus.InboundEvent{
		Kind:      bus.EventMessage,
		UserID:    m.Author.ID,
		UserName:  m.Author.Username,
		AvatarURL: m.Author.AvatarURL("256"),
		ChatID:    m.ChannelID,
		Content:   m.Content,
	}
	d.HandleEvent(context.Background(), ev)

	for _, att := range m.Attachments {
		d.HandleEvent(context.Background(), bus.InboundEvent{
			Kind:          bus.EventAttachment,
			UserID:        m.Author.ID,
			UserName:      m.Author.Username,
			ChatID:        m.ChannelID,
			AttachmentURL: att.URL,
		})
	}
}

func (d *DiscordChannel) onMemberJoin(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil || m.User.Bot {
		return
	}
	d.HandleEvent(context.Background(), bus.InboundEvent{
		Kind:      bus.EventMemberJoin,
		UserID:    m.User.ID,
		UserName:  m.User.Username,
		AvatarURL: m.User.AvatarURL("256"),
	})
}

func (d *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if d.session == nil {
		return fmt.Errorf("discord channel not started")
	}

	if msg.PurgeDM > 0 {
		if err := d.purgeDM(msg.UserID, msg.PurgeDM); err != nil {
			return err
		}
	}

	if msg.GrantRoleID != "" {
		if err := d.session.GuildMemberRoleAdd(d.guildID, msg.UserID, msg.GrantRoleID); err != nil {
			return fmt.Errorf("granting role %s: %w", msg.GrantRoleID, err)
		}
		if msg.Embed == nil && msg.Content == "" {
			return nil
		}
	}

	if msg.InteractionID != "" {
		if err := d.respond(msg); err != nil {
			return err
		}
		return nil
	}

	_, err := d.session.ChannelMessageSendComplex(msg.ChatID, &discordgo.MessageSend{
		Content:    msg.Content,
		Embeds:     toEmbeds(msg.Embed),
		Components: toComponents(msg.Components),
		Files:      toFiles(msg),
	})
	return err
}

// purgeDM deletes up to n of the bot's own messages from the user's DM
// channel, newest first.
func (d *DiscordChannel) purgeDM(userID string, n int) error {
	ch, err := d.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("opening dm channel: %w", err)
	}
	selfID := d.session.State.User.ID

	deleted := 0
	before := ""
	for deleted < n {
		msgs, err := d.session.ChannelMessages(ch.ID, 100, before, "", "")
		if err != nil {
			return fmt.Errorf("listing dm messages: %w", err)
		}
		if len(msgs) == 0 {
			break
		}
		for _, m := range msgs {
			before = m.ID
			if m.Author == nil || m.Author.ID != selfID {
				continue
			}
			if err := d.session.ChannelMessageDelete(ch.ID, m.ID); err != nil {
				return fmt.Errorf("deleting dm message: %w", err)
			}
			deleted++
			if deleted >= n {
				break
			}
		}
	}
	logger.InfoCF("discord", "dm purge complete", map[string]any{"user": userID, "deleted": deleted})
	return nil
}

func (d *DiscordChannel) respond(msg bus.OutboundMessage) error {
	tracked := d.lookup(msg.InteractionID)
	if tracked == nil {
		return fmt.Errorf("interaction %s expired", msg.InteractionID)
	}

	if msg.ModalID != "" {
		return d.session.InteractionRespond(tracked.interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID:   msg.ModalID,
				Title:      msg.ModalTitle,
				Components: toModalComponents(msg.ModalFields),
			},
		})
	}

	data := &discordgo.InteractionResponseData{
		Content:    msg.Content,
		Embeds:     toEmbeds(msg.Embed),
		Components: toComponents(msg.Components),
		Files:      toFiles(msg),
	}
	if msg.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}

	if tracked.responded {
		_, err := d.session.FollowupMessageCreate(tracked.interaction, true, &discordgo.WebhookParams{
			Content:    data.Content,
			Embeds:     data.Embeds,
			Components: data.Components,
			Files:      data.Files,
		})
		return err
	}

	kind := discordgo.InteractionResponseChannelMessageWithSource
	if msg.Update {
		kind = discordgo.InteractionResponseUpdateMessage
	}
	err := d.session.InteractionRespond(tracked.interaction, &discordgo.InteractionResponse{Type: kind, Data: data})
	if err == nil {
		d.markResponded(msg.InteractionID)
	}
	return err
}

func (d *DiscordChannel) track(i *discordgo.Interaction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	for id, t := range d.interactions {
		if now.Sub(t.seen) > interactionTTL {
			delete(d.interactions, id)
		}
	}
	d.interactions[i.ID] = &trackedInteraction{interaction: i, seen: now}
}

func (d *DiscordChannel) lookup(id string) *trackedInteraction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interactions[id]
}

func (d *DiscordChannel) markResponded(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.interactions[id]; ok {
		t.responded = true
	}
}

func toEmbeds(e *bus.Embed) []*discordgo.MessageEmbed {
	if e == nil {
		return nil
	}
	embed := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	if e.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail}
	}
	if e.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	for _, f := range e.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return []*discordgo.MessageEmbed{embed}
}

func toComponents(comps []bus.Component) []discordgo.MessageComponent {
	if len(comps) == 0 {
		return nil
	}
	rows := make(map[int][]discordgo.MessageComponent)
	order := []int{}
	for _, c := range comps {
		var mc discordgo.MessageComponent
		switch c.Kind {
		case bus.ComponentSelect:
			options := make([]discordgo.SelectMenuOption, 0, len(c.Options))
			for _, o := range c.Options {
				options = append(options, discordgo.SelectMenuOption{Label: o.Label, Value: o.Value, Default: o.Default})
			}
			mc = discordgo.SelectMenu{CustomID: c.CustomID, Options: options, Placeholder: c.Label}
		default:
			style := discordgo.ButtonStyle(c.Style)
			if style == 0 {
				style = discordgo.PrimaryButton
			}
			mc = discordgo.Button{CustomID: c.CustomID, Label: c.Label, Style: style, Disabled: c.Disabled}
		}
		if _, ok := rows[c.Row]; !ok {
			order = append(order, c.Row)
		}
		rows[c.Row] = append(rows[c.Row], mc)
	}

	out := make([]discordgo.MessageComponent, 0, len(order))
	for _, row := range order {
		out = append(out, discordgo.ActionsRow{Components: rows[row]})
	}
	return out
}

func toModalComponents(fields []bus.ModalField) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(fields))
	for _, f := range fields {
		style := discordgo.TextInputShort
		if f.Paragraph {
			style = discordgo.TextInputParagraph
		}
		out = append(out, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    f.CustomID,
				Label:       f.Label,
				Placeholder: f.Placeholder,
				Style:       style,
				Required:    f.Required,
			},
		}})
	}
	return out
}

func toFiles(msg bus.OutboundMessage) []*discordgo.File {
	if len(msg.FileData) == 0 {
		return nil
	}
	name := msg.FileName
	if name == "" {
		name = "card.png"
	}
	return []*discordgo.File{{Name: name, ContentType: "image/png", Reader: bytes.NewReader(msg.FileData)}}
}
