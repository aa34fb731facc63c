// Package render composites card specs into PNG or animated GIF buffers.
package render

import "image/color"

// LayerKind tags the layer union. Specs persist as JSON, so the tag is a
// string rather than an iota.
type LayerKind string

const (
	LayerUnderlay     LayerKind = "underlay"
	LayerImage        LayerKind = "image"
	LayerAvatar       LayerKind = "avatar"
	LayerOutline      LayerKind = "outline"
	LayerTexturedText LayerKind = "textured_text"
	LayerText         LayerKind = "text"
	LayerProgressBar  LayerKind = "progress_bar"
)

// FitRange configures dynamic font sizing for a text layer: the largest
// size in [Min, Max] whose advance fits between the layer X and MaxX wins.
type FitRange struct {
	Min  int `json:"min"`
	Max  int `json:"max"`
	MaxX int `json:"max_x"`
}

// Layer is one compositing step. Geometry is canvas coordinates, top-left
// origin. Which fields apply depends on Kind; unused fields are ignored.
type Layer struct {
	Kind LayerKind `json:"kind"`

	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w,omitempty"`
	H int `json:"h,omitempty"`

	// Image, underlay, outline, progress-bar artwork, or text texture.
	URL string `json:"url,omitempty"`

	// Image layers drawn after the text pass.
	AboveText bool `json:"above_text,omitempty"`

	// Avatar disc diameter.
	Diameter int `json:"diameter,omitempty"`

	// Outline color override and custom fill image.
	ColorOverride  *[3]uint8 `json:"color_override,omitempty"`
	CustomImageURL string    `json:"custom_image_url,omitempty"`

	// Text layers. {name} in Text expands to the identity display name.
	Text         string    `json:"text,omitempty"`
	Size         int       `json:"size,omitempty"`
	Bold         bool      `json:"bold,omitempty"`
	Color        *[3]uint8 `json:"color,omitempty"`
	ShadowOffset int       `json:"shadow_offset,omitempty"`
	ShadowColor  *[3]uint8 `json:"shadow_color,omitempty"`
	Fit          *FitRange `json:"fit,omitempty"`

	// Textured text.
	TextureURL string `json:"texture_url,omitempty"`
	Border     int    `json:"border,omitempty"`

	// Progress bar fill fraction in [0, 1].
	Progress float64 `json:"progress,omitempty"`
}

// Background is either a remote asset or a flat color. An animated asset
// makes the whole render animated.
type Background struct {
	URL   string    `json:"url,omitempty"`
	Color *[3]uint8 `json:"color,omitempty"`
}

// Spec is an ordered list of layers over a fixed canvas. It owns no pixel
// data; assets are referenced by URL.
type Spec struct {
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Background Background `json:"background"`
	Layers     []Layer    `json:"layers"`
}

// Identity is the renderee. The renderer never mutates it.
type Identity struct {
	ID        string
	Name      string
	AvatarURL string
}

func nrgb(c *[3]uint8, fallback color.NRGBA) color.NRGBA {
	if c == nil {
		return fallback
	}
	return color.NRGBA{R: c[0], G: c[1], B: c[2], A: 255}
}
