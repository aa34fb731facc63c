// Package cards builds the concrete card specs: the leveling profile
// card, the welcome card, and the level-up notification. Geometry and
// artwork come from the persistent state files; the builders only read.
package cards

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/tinyland-inc/cardsmith/pkg/config"
	"github.com/tinyland-inc/cardsmith/pkg/leveling"
	"github.com/tinyland-inc/cardsmith/pkg/render"
)

// DefaultLevelingData seeds leveling_data.json on first run.
func DefaultLevelingData() map[string]any {
	return map[string]any{
		"leveling_settings": map[string]any{
			"enabled": true,
			"xp_settings": map[string]any{
				"messages":   map[string]any{"enabled": true, "xp_per_message": 20, "cooldown": 10},
				"characters": map[string]any{"enabled": false, "xp_per_character": 1, "character_limit": 20, "cooldown": 10},
			},
			"rewards": map[string]any{"roles": map[string]any{}},
			"level_card": map[string]any{
				"background_image":  "",
				"canvas":            map[string]any{"width": 2048, "height": 768},
				"profile_position":  map[string]any{"x": 50, "y": 50, "size": 150},
				"username_position": map[string]any{"x": 220, "y": 80, "font_size": 60},
				"level_position":    map[string]any{"x": 220, "y": 140, "font_size": 40},
				"xp_bar_position":   map[string]any{"x": 30, "y": 726, "width": 1988, "height": 30},
			},
			"level_up_notification": map[string]any{
				"enabled":          true,
				"background_image": "",
				"background_color": []int{54, 57, 63},
				"outline_enabled":  true,
				"outline_color":    []int{255, 255, 255},
				"outline_image":    "",
				"positions": map[string]any{
					"username":   map[string]any{"x": 540, "y": 200, "font_size": 60},
					"level_text": map[string]any{"x": 540, "y": 280, "font_size": 80},
					"avatar":     map[string]any{"x": 390, "y": 540, "size": 300},
					"outline":    map[string]any{"x": 390, "y": 540, "size": 300},
				},
			},
		},
		"user_data": map[string]any{},
	}
}

// DefaultWelcomeData seeds welcome_data.json on first run.
func DefaultWelcomeData() map[string]any {
	return map[string]any{
		"welcome_settings": map[string]any{
			"enabled":          true,
			"channel_id":       "",
			"background_image": "",
			"canvas":           map[string]any{"width": 800, "height": 220},
			"avatar":           map[string]any{"x": 55, "y": 50, "size": 120},
			"title":            map[string]any{"text": "Welcome {name}", "font_size": 28},
			"subtitle":         map[string]any{"text": "To the Server!", "font_size": 24},
		},
	}
}

func intOr(r gjson.Result, fallback int) int {
	if !r.Exists() {
		return fallback
	}
	return int(r.Int())
}

func colorOr(r gjson.Result, fallback [3]uint8) *[3]uint8 {
	arr := r.Array()
	if len(arr) != 3 {
		c := fallback
		return &c
	}
	return &[3]uint8{uint8(arr[0].Int()), uint8(arr[1].Int()), uint8(arr[2].Int())}
}

// LevelCard reads the card geometry out of leveling_data.json and lays out
// the profile card for one user record.
func LevelCard(store *config.Store, rec leveling.Record, rank int) render.Spec {
	card := "leveling_settings.level_card."
	width := intOr(store.Get(card+"canvas.width"), 2048)
	height := intOr(store.Get(card+"canvas.height"), 768)

	into, needed := leveling.Progress(rec.XP)
	progress := 0.0
	if needed > 0 {
		progress = float64(into) / float64(needed)
	}

	barX := intOr(store.Get(card+"xp_bar_position.x"), 30)
	barY := intOr(store.Get(card+"xp_bar_position.y"), 726)
	barW := intOr(store.Get(card+"xp_bar_position.width"), 1988)
	barH := intOr(store.Get(card+"xp_bar_position.height"), 30)
	avatarSize := intOr(store.Get(card+"profile_position.size"), 150)
	usernameSize := intOr(store.Get(card+"username_position.font_size"), 60)
	usernameX := intOr(store.Get(card+"username_position.x"), 220)

	return render.Spec{
		Width:  width,
		Height: height,
		Background: render.Background{
			URL:   store.Get(card + "background_image").String(),
			Color: &[3]uint8{54, 57, 63},
		},
		Layers: []render.Layer{
			{
				Kind:     render.LayerAvatar,
				X:        intOr(store.Get(card+"profile_position.x"), 50),
				Y:        intOr(store.Get(card+"profile_position.y"), 50),
				Diameter: avatarSize,
			},
			{
				Kind:  render.LayerText,
				Text:  "{name}",
				Bold:  true,
				X:     usernameX,
				Y:     intOr(store.Get(card+"username_position.y"), 80) + usernameSize,
				Size:  usernameSize,
				Color: &[3]uint8{255, 255, 255},
				Fit:   &render.FitRange{Min: 20, Max: usernameSize, MaxX: width - 40},
			},
			{
				Kind:  render.LayerText,
				Text:  fmt.Sprintf("Level %d  ·  Rank #%d", rec.Level, rank),
				Bold:  true,
				X:     intOr(store.Get(card+"level_position.x"), 220),
				Y:     intOr(store.Get(card+"level_position.y"), 140) + intOr(store.Get(card+"level_position.font_size"), 40),
				Size:  intOr(store.Get(card+"level_position.font_size"), 40),
				Color: &[3]uint8{200, 200, 200},
			},
			{
				Kind:     render.LayerProgressBar,
				X:        barX,
				Y:        barY,
				W:        barW,
				H:        barH,
				URL:      store.Get(card + "xp_bar_image").String(),
				Progress: progress,
				Color:    &[3]uint8{88, 101, 242},
			},
			{
				Kind:  render.LayerText,
				Text:  fmt.Sprintf("%d/%d XP", into, needed),
				X:     barX,
				Y:     barY + barH + 50,
				Size:  40,
				Color: &[3]uint8{100, 100, 100},
			},
		},
	}
}

// WelcomeCard lays out the join card from welcome_data.json. The renderer
// expands {name} to the joining user's display name.
func WelcomeCard(store *config.Store) render.Spec {
	ws := "welcome_settings."
	width := intOr(store.Get(ws+"canvas.width"), 800)
	height := intOr(store.Get(ws+"canvas.height"), 220)

	avX := intOr(store.Get(ws+"avatar.x"), 55)
	avY := intOr(store.Get(ws+"avatar.y"), 50)
	avSize := intOr(store.Get(ws+"avatar.size"), 120)
	titleSize := intOr(store.Get(ws+"title.font_size"), 28)
	subSize := intOr(store.Get(ws+"subtitle.font_size"), 24)

	title := store.Get(ws + "title.text").String()
	if title == "" {
		title = "Welcome {name}"
	}
	subtitle := store.Get(ws + "subtitle.text").String()
	if subtitle == "" {
		subtitle = "To the Server!"
	}

	textX := avX + avSize + 20
	return render.Spec{
		Width:  width,
		Height: height,
		Background: render.Background{
			URL:   store.Get(ws + "background_image").String(),
			Color: &[3]uint8{35, 39, 42},
		},
		Layers: []render.Layer{
			{Kind: render.LayerAvatar, X: avX, Y: avY, Diameter: avSize},
			{
				Kind:         render.LayerText,
				Text:         title,
				Bold:         true,
				X:            textX,
				Y:            avY + 20 + titleSize,
				Size:         titleSize,
				Color:        &[3]uint8{255, 255, 255},
				ShadowOffset: 2,
				ShadowColor:  &[3]uint8{0, 0, 0},
			},
			{
				Kind:         render.LayerText,
				Text:         subtitle,
				Bold:         true,
				X:            textX,
				Y:            avY + 60 + subSize,
				Size:         subSize,
				Color:        &[3]uint8{255, 255, 255},
				ShadowOffset: 2,
				ShadowColor:  &[3]uint8{0, 0, 0},
			},
		},
	}
}

// LevelUpCard lays out the level-up notification from leveling_data.json.
func LevelUpCard(store *config.Store, level int) render.Spec {
	n := "leveling_settings.level_up_notification."
	pos := n + "positions."
	width, height := 1080, 1080

	var outlineOverride *[3]uint8
	if store.Get(n + "outline_enabled").Bool() {
		outlineOverride = colorOr(store.Get(n+"outline_color"), [3]uint8{255, 255, 255})
	}

	avX := intOr(store.Get(pos+"avatar.x"), 390)
	avY := intOr(store.Get(pos+"avatar.y"), 540)
	avSize := intOr(store.Get(pos+"avatar.size"), 300)
	userSize := intOr(store.Get(pos+"username.font_size"), 60)
	levelSize := intOr(store.Get(pos+"level_text.font_size"), 80)

	layers := []render.Layer{
		{
			Kind:  render.LayerText,
			Text:  "{name}",
			Bold:  true,
			X:     intOr(store.Get(pos+"username.x"), 540) - 200,
			Y:     intOr(store.Get(pos+"username.y"), 200) + userSize,
			Size:  userSize,
			Color: &[3]uint8{255, 255, 255},
			Fit:   &render.FitRange{Min: 24, Max: userSize, MaxX: width - 60},
		},
		{Kind: render.LayerAvatar, X: avX, Y: avY, Diameter: avSize},
	}

	levelText := render.Layer{
		Kind:  render.LayerText,
		Text:  fmt.Sprintf("LEVEL %d", level),
		Bold:  true,
		X:     intOr(store.Get(pos+"level_text.x"), 540) - 200,
		Y:     intOr(store.Get(pos+"level_text.y"), 280) + levelSize,
		Size:  levelSize,
		Color: &[3]uint8{88, 101, 242},
	}
	if texture := store.Get(n + "level_text_texture").String(); texture != "" {
		levelText = render.Layer{
			Kind:       render.LayerTexturedText,
			Text:       levelText.Text,
			Bold:       true,
			X:          levelText.X,
			Y:          intOr(store.Get(pos+"level_text.y"), 280),
			Size:       levelSize,
			TextureURL: texture,
			Border:     2,
		}
	}
	layers = append(layers, levelText)

	if outline := store.Get(n + "outline_image").String(); outline != "" && outlineOverride != nil {
		layers = append(layers, render.Layer{
			Kind:           render.LayerOutline,
			X:              intOr(store.Get(pos+"outline.x"), avX),
			Y:              intOr(store.Get(pos+"outline.y"), avY),
			W:              intOr(store.Get(pos+"outline.size"), avSize),
			H:              intOr(store.Get(pos+"outline.size"), avSize),
			URL:            outline,
			ColorOverride:  outlineOverride,
			CustomImageURL: store.Get(n + "outline_custom_image").String(),
		})
	}

	return render.Spec{
		Width:  width,
		Height: height,
		Background: render.Background{
			URL:   store.Get(n + "background_image").String(),
			Color: colorOr(store.Get(n+"background_color"), [3]uint8{54, 57, 63}),
		},
		Layers: layers,
	}
}
