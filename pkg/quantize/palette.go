// Package quantize projects images onto fixed palettes, with optional
// Floyd-Steinberg error diffusion.
package quantize

import "fmt"

// Entry is one palette color. Disabled entries never participate in
// matching; hidden entries can win a match but render transparent.
type Entry struct {
	RGB     [3]uint8 `json:"rgb"`
	Name    string   `json:"name"`
	Enabled bool     `json:"enabled"`
	Hidden  bool     `json:"hidden"`
}

// Palette is an ordered color set. Order matters: distance ties go to the
// earliest entry.
type Palette []Entry

// Active returns the enabled, non-hidden subset in order.
func (p Palette) Active() Palette {
	out := make(Palette, 0, len(p))
	for _, e := range p {
		if e.Enabled && !e.Hidden {
			out = append(out, e)
		}
	}
	return out
}

// Enabled returns every enabled entry, hidden ones included.
func (p Palette) EnabledEntries() Palette {
	out := make(Palette, 0, len(p))
	for _, e := range p {
		if e.Enabled {
			out = append(out, e)
		}
	}
	return out
}

// Validate rejects duplicate RGB triples.
func (p Palette) Validate() error {
	seen := make(map[[3]uint8]int, len(p))
	for i, e := range p {
		if j, ok := seen[e.RGB]; ok {
			return fmt.Errorf("palette entries %d and %d share color %v", j, i, e.RGB)
		}
		seen[e.RGB] = i
	}
	return nil
}
