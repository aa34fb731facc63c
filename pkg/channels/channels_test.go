package channels

import (
	"context"
	"os"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/cardsmith/pkg/bus"
	"github.com/tinyland-inc/cardsmith/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetNop()
	os.Exit(m.Run())
}

func TestIsAllowedEmptyListAllowsEveryone(t *testing.T) {
	c := NewBaseChannel("test", bus.NewEventBus(), nil)
	assert.True(t, c.IsAllowed("anyone"))
}

func TestIsAllowedList(t *testing.T) {
	c := NewBaseChannel("test", bus.NewEventBus(), []string{"42", "@alice"})
	assert.True(t, c.IsAllowed("42"))
	assert.True(t, c.IsAllowed("alice"))
	assert.False(t, c.IsAllowed("bob"))
}

func TestIsAdmin(t *testing.T) {
	c := NewBaseChannel("test", bus.NewEventBus(), nil, WithAdminList([]string{"42"}))
	assert.True(t, c.IsAdmin("42"))
	assert.False(t, c.IsAdmin("43"))
}

func TestHandleEventStampsChannelAndAdmin(t *testing.T) {
	eb := bus.NewEventBus()
	defer eb.Close()
	c := NewBaseChannel("test", eb, nil, WithAdminList([]string{"42"}))

	c.HandleEvent(context.Background(), bus.InboundEvent{Kind: bus.EventCommand, UserID: "42", Command: "level"})

	ev, ok := eb.ConsumeInbound(context.Background())
	require.True(t, ok)
	assert.Equal(t, "test", ev.Channel)
	assert.True(t, ev.Admin)
}

func TestHandleEventDropsDisallowed(t *testing.T) {
	eb := bus.NewEventBus()
	defer eb.Close()
	c := NewBaseChannel("test", eb, []string{"42"})

	c.HandleEvent(context.Background(), bus.InboundEvent{Kind: bus.EventMessage, UserID: "99"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := eb.ConsumeInbound(ctx)
	assert.False(t, ok)
}

func TestSlashCommandsCoverAllOperations(t *testing.T) {
	names := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range slashCommands() {
		names[cmd.Name] = cmd
	}
	for _, want := range []string{
		"embed", "pixels_convertor", "pantheon", "random_art",
		"level", "level_system", "welcome_system", "clear_dm", "add_stock",
	} {
		assert.Contains(t, names, want)
	}

	clearDM := names["clear_dm"]
	require.Len(t, clearDM.Options, 1)
	assert.True(t, clearDM.Options[0].Required)
	assert.Equal(t, float64(1), *clearDM.Options[0].MinValue)
	assert.Equal(t, float64(999), clearDM.Options[0].MaxValue)
}

func TestParseConsoleLineCommand(t *testing.T) {
	ev := parseConsoleLine("/add_stock items=Torpedo")
	assert.Equal(t, bus.EventCommand, ev.Kind)
	assert.Equal(t, "add_stock", ev.Command)
	assert.Equal(t, "Torpedo", ev.Options["items"])
}

func TestParseConsoleLineMessage(t *testing.T) {
	ev := parseConsoleLine("hello there")
	assert.Equal(t, bus.EventMessage, ev.Kind)
	assert.Equal(t, "hello there", ev.Content)
}

func TestToComponentsGroupsRows(t *testing.T) {
	comps := toComponents([]bus.Component{
		{Kind: bus.ComponentButton, CustomID: "a", Label: "A", Row: 0},
		{Kind: bus.ComponentButton, CustomID: "b", Label: "B", Row: 0},
		{Kind: bus.ComponentSelect, CustomID: "pick", Options: []bus.Option{{Label: "X", Value: "x"}}, Row: 1},
	})
	require.Len(t, comps, 2)

	first, ok := comps[0].(discordgo.ActionsRow)
	require.True(t, ok)
	assert.Len(t, first.Components, 2)

	second := comps[1].(discordgo.ActionsRow)
	menu, ok := second.Components[0].(discordgo.SelectMenu)
	require.True(t, ok)
	assert.Equal(t, "pick", menu.CustomID)
}

func TestToEmbeds(t *testing.T) {
	embeds := toEmbeds(&bus.Embed{
		Title:    "Level 3",
		ImageURL: "https://example.com/card.png",
		Fields:   []bus.Field{{Name: "XP", Value: "150"}},
	})
	require.Len(t, embeds, 1)
	assert.Equal(t, "Level 3", embeds[0].Title)
	require.NotNil(t, embeds[0].Image)
	assert.Equal(t, "https://example.com/card.png", embeds[0].Image.URL)
	require.Len(t, embeds[0].Fields, 1)

	assert.Nil(t, toEmbeds(nil))
}

func TestModalValues(t *testing.T) {
	rows := []discordgo.MessageComponent{
		&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			&discordgo.TextInput{CustomID: "title", Value: "My Art"},
		}},
		&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			&discordgo.TextInput{CustomID: "desc", Value: "Oil on canvas"},
		}},
	}
	assert.Equal(t, []string{"My Art", "Oil on canvas"}, modalValues(rows))
}
