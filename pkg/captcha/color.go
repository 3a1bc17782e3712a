package captcha

import (
	"image/color"
	"math/rand/v2"
)

// ColorSelector chooses the draw color of each glyph.
type ColorSelector interface {
	ColorFor(index int, rng *rand.Rand) color.Color
}

// ColorFunc adapts a plain function to ColorSelector.
type ColorFunc func(index int, rng *rand.Rand) color.Color

// ColorFor implements ColorSelector.
func (f ColorFunc) ColorFor(index int, rng *rand.Rand) color.Color { return f(index, rng) }

// FixedColor draws every glyph in the same color and consumes no randomness.
type FixedColor struct {
	Color color.Color
}

// ColorFor implements ColorSelector.
func (c FixedColor) ColorFor(int, *rand.Rand) color.Color { return c.Color }

// PaletteColor picks each glyph's color uniformly from a palette.
type PaletteColor []color.Color

// ColorFor implements ColorSelector. An empty palette yields black.
func (p PaletteColor) ColorFor(_ int, rng *rand.Rand) color.Color {
	if len(p) == 0 {
		return DefaultForeground
	}
	return p[rng.IntN(len(p))]
}

// RangeColor picks opaque colors whose channels fall in [Min, Max].
type RangeColor struct {
	Min, Max uint8
}

// ColorFor implements ColorSelector.
func (r RangeColor) ColorFor(_ int, rng *rand.Rand) color.Color {
	lo, hi := r.Min, r.Max
	if lo > hi {
		lo, hi = hi, lo
	}
	channel := func() uint8 { return lo + uint8(rng.IntN(int(hi-lo)+1)) }
	return color.NRGBA{R: channel(), G: channel(), B: channel(), A: 255}
}
