package gateway

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tinyland-inc/cardsmith/pkg/bus"
	"github.com/tinyland-inc/cardsmith/pkg/faults"
	"github.com/tinyland-inc/cardsmith/pkg/pantheon"
	"github.com/tinyland-inc/cardsmith/pkg/pixelart"
	"github.com/tinyland-inc/cardsmith/pkg/stockage"
)

const (
	colorOK      = 0x2ecc71
	colorInfo    = 0x3498db
	colorWarning = 0xe67e22
	colorRefusal = 0xe74c3c
)

// refusalEmbed maps a pipeline error to the embed shown to the user. The
// title names the failure class; the description carries the message.
func refusalEmbed(err error) *bus.Embed {
	titles := map[faults.Kind]string{
		faults.FetchFailed:      "Couldn't fetch that",
		faults.DecodeFailed:     "Unsupported image",
		faults.StoreConflict:    "Storage conflict, try again",
		faults.StoreError:       "Storage unavailable",
		faults.RenderError:      "Render failed",
		faults.PermissionDenied: "Not yours to touch",
		faults.InvalidInput:     "Invalid input",
		faults.SessionExpired:   "Session expired",
	}
	title := "Something went wrong"
	if kind, ok := faults.KindOf(err); ok {
		if t, ok := titles[kind]; ok {
			title = t
		}
	}
	return &bus.Embed{Title: title, Description: err.Error(), Color: colorRefusal}
}

func converterScreen(job pixelart.Job, hasJob bool) (*bus.Embed, []bus.Component) {
	embed := &bus.Embed{
		Title: "Pixel Art Converter",
		Color: colorInfo,
	}
	if hasJob {
		embed.ImageURL = job.URL
		embed.Fields = []bus.Field{
			{Name: "Size", Value: fmt.Sprintf("%d x %d", job.Width, job.Height), Inline: true},
			{Name: "Dithering", Value: onOff(job.Dither), Inline: true},
			{Name: "Palette", Value: fmt.Sprintf("%d colors", len(job.Palette)), Inline: true},
		}
	} else {
		embed.Description = "Upload an image to convert it to the palette."
	}

	comps := []bus.Component{
		{Kind: bus.ComponentButton, CustomID: "conv:upload", Label: "Upload image", Row: 0},
		{Kind: bus.ComponentButton, CustomID: "conv:done", Label: "Done", Style: 4, Row: 0},
	}
	if hasJob {
		comps = append(comps,
			bus.Component{Kind: bus.ComponentButton, CustomID: "conv:w+", Label: "Width +10%", Row: 1},
			bus.Component{Kind: bus.ComponentButton, CustomID: "conv:w-", Label: "Width -10%", Row: 1},
			bus.Component{Kind: bus.ComponentButton, CustomID: "conv:h+", Label: "Height +10%", Row: 1},
			bus.Component{Kind: bus.ComponentButton, CustomID: "conv:h-", Label: "Height -10%", Row: 1},
			bus.Component{Kind: bus.ComponentButton, CustomID: "conv:dither", Label: "Toggle dithering", Row: 2},
		)
	}
	return embed, comps
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func embedBuilderScreen(fields map[string]string) (*bus.Embed, []bus.Component) {
	embed := &bus.Embed{
		Title:       orDefault(fields["title"], "Embed Builder"),
		Description: orDefault(fields["description"], "Use the buttons to edit, then send."),
		Color:       colorInfo,
		ImageURL:    fields["image"],
	}
	comps := []bus.Component{
		{Kind: bus.ComponentButton, CustomID: "embed:edit", Label: "Edit text", Row: 0},
		{Kind: bus.ComponentButton, CustomID: "embed:image", Label: "Attach image", Row: 0},
		{Kind: bus.ComponentButton, CustomID: "embed:send", Label: "Send", Style: 3, Row: 1},
		{Kind: bus.ComponentButton, CustomID: "embed:cancel", Label: "Cancel", Style: 4, Row: 1},
	}
	return embed, comps
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func levelSystemScreen(enabled bool, cardURL string) (*bus.Embed, []bus.Component) {
	embed := &bus.Embed{
		Title:       "Level System",
		Description: "Leveling is " + onOff(enabled) + ".",
		Color:       colorInfo,
		ImageURL:    cardURL,
	}
	comps := []bus.Component{
		{Kind: bus.ComponentButton, CustomID: "lvl:toggle", Label: "Toggle leveling", Row: 0},
		{Kind: bus.ComponentButton, CustomID: "lvl:background", Label: "Card background", Row: 0},
		{Kind: bus.ComponentButton, CustomID: "lvl:preview", Label: "Preview card", Row: 1},
		{Kind: bus.ComponentButton, CustomID: "lvl:done", Label: "Done", Style: 4, Row: 1},
	}
	return embed, comps
}

func welcomeSystemScreen(enabled bool, cardURL string) (*bus.Embed, []bus.Component) {
	embed := &bus.Embed{
		Title:       "Welcome System",
		Description: "Welcome cards are " + onOff(enabled) + ".",
		Color:       colorInfo,
		ImageURL:    cardURL,
	}
	comps := []bus.Component{
		{Kind: bus.ComponentButton, CustomID: "wel:toggle", Label: "Toggle welcome cards", Row: 0},
		{Kind: bus.ComponentButton, CustomID: "wel:background", Label: "Background", Row: 0},
		{Kind: bus.ComponentButton, CustomID: "wel:texts", Label: "Edit texts", Row: 1},
		{Kind: bus.ComponentButton, CustomID: "wel:preview", Label: "Preview card", Row: 1},
		{Kind: bus.ComponentButton, CustomID: "wel:done", Label: "Done", Style: 4, Row: 2},
	}
	return embed, comps
}

func pantheonScreen(arts []pantheon.Artwork) (*bus.Embed, []bus.Component) {
	embed := &bus.Embed{
		Title: fmt.Sprintf("Pantheon (%d)", len(arts)),
		Color: colorInfo,
	}
	var lines []string
	for _, a := range arts {
		lines = append(lines, fmt.Sprintf("**%s** by %s", a.Title, a.AuthorName))
	}
	if len(lines) == 0 {
		embed.Description = "No artworks yet. Add the first one."
	} else {
		embed.Description = strings.Join(lines, "\n")
	}

	comps := []bus.Component{
		{Kind: bus.ComponentButton, CustomID: "pan:add", Label: "Add artwork", Row: 0},
	}
	if len(arts) > 0 {
		options := make([]bus.Option, 0, len(arts))
		for _, a := range arts {
			options = append(options, bus.Option{Label: a.Title, Value: a.ID})
		}
		comps = append(comps, bus.Component{
			Kind: bus.ComponentSelect, CustomID: "pan:delete", Label: "Delete an artwork",
			Options: options, Row: 1,
		})
	}
	return embed, comps
}

func randomArtScreen(art pantheon.Artwork, rating pantheon.Rating) (*bus.Embed, []bus.Component) {
	embed := &bus.Embed{
		Title:       art.Title,
		Description: art.Description,
		Color:       colorInfo,
		ImageURL:    art.ImageURL,
		Fields: []bus.Field{
			{Name: "Artist", Value: art.AuthorName, Inline: true},
			{Name: "Average", Value: fmt.Sprintf("%.1f / 5 (%d votes)", rating.AverageRating, len(rating.Votes)), Inline: true},
		},
	}
	if art.Location != "" {
		embed.Fields = append(embed.Fields, bus.Field{Name: "Location", Value: art.Location, Inline: true})
	}

	comps := make([]bus.Component, 0, 5)
	for stars := 1; stars <= 5; stars++ {
		comps = append(comps, bus.Component{
			Kind:     bus.ComponentButton,
			CustomID: fmt.Sprintf("rate:%s:%d", art.ID, stars),
			Label:    strings.Repeat("★", stars),
			Style:    2,
			Row:      0,
		})
	}
	return embed, comps
}

func stockResultsScreen(results []stockage.Result, added bool) *bus.Embed {
	found := 0
	for _, r := range results {
		if r.Found {
			found++
		}
	}
	title := fmt.Sprintf("Items Found (%d)", found)
	if added {
		title = fmt.Sprintf("Items Added to Stock (%d)", found)
	}

	var lines []string
	for _, r := range results {
		switch {
		case r.Found:
			line := fmt.Sprintf("✅ %s (%s)", r.Name, r.Item.Status)
			if r.Item.Quantity > 1 {
				line += fmt.Sprintf(" x%d", r.Item.Quantity)
			}
			lines = append(lines, line)
			if v, ok := stockValue(r); ok {
				lines = append(lines, "├ Value: "+v)
			}
			if d := r.Fields["Demand"]; d != "" {
				lines = append(lines, "└ Demand: "+d)
			}
		case len(r.Ambiguous) > 1:
			lines = append(lines, fmt.Sprintf("ℹ️ %s matches several types", r.Item.Text))
			lines = append(lines, "└ "+strings.Join(r.Ambiguous, " / "))
		default:
			lines = append(lines, fmt.Sprintf("❌ %s (%s)", r.Item.Text, r.Item.Status))
			lines = append(lines, "└ Value: Not Found")
		}
	}

	return &bus.Embed{Title: title, Description: strings.Join(lines, "\n"), Color: colorOK}
}

func stockValue(r stockage.Result) (string, bool) {
	key := "Cash Value"
	if r.Item.Status == stockage.StatusDupe {
		key = "Duped Value"
	}
	if v := r.Fields[key]; v != "" {
		return v, true
	}
	return "", false
}

func stockLedgerScreen(entries map[string]stockage.Entry) *bus.Embed {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s x%d", k, entries[k].Quantity))
	}
	desc := "Stock is empty."
	if len(lines) > 0 {
		desc = strings.Join(lines, "\n")
	}
	return &bus.Embed{Title: "Current Stock", Description: desc, Color: colorInfo}
}
