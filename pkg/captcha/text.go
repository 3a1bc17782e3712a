package captcha

import (
	"image"
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/wobblecap/wobblecap/pkg/errors"
)

// TextCompositor draws the challenge onto the background canvas.
type TextCompositor interface {
	Render(canvas *image.RGBA, challenge string, fs FontSelector, cs ColorSelector, rng *rand.Rand) error
}

// Placement is the resolved position of one glyph. X, Y is the glyph's
// bounding-box center on the canvas; the glyph is rotated by Angle degrees
// around it.
type Placement struct {
	Rune   rune
	Font   FontDescriptor
	Angle  float64
	X, Y   float64
	Color  color.Color
	Width  float64 // rotated extent
	Height float64 // rotated extent
}

// BestFitRenderer splits the usable width into equal cells, one per glyph, and
// centers each glyph in its cell and in the vertical band between the
// margins. A glyph whose chosen size overflows its cell is shrunk point by
// point down to MinFontSize; if it still does not fit, rendering fails with
// LAYOUT_OVERFLOW.
type BestFitRenderer struct {
	MinFontSize  int
	MaxFontSize  int
	TopMargin    int
	BottomMargin int
	LeftMargin   int
	RightMargin  int
	MaxRotation  float64 // degrees
}

// placed pairs a placement with the face that measured it.
type placed struct {
	Placement
	face font.Face
	dotX float64 // baseline origin before rotation
	dotY float64
}

// Render implements TextCompositor.
func (r BestFitRenderer) Render(canvas *image.RGBA, challenge string, fs FontSelector, cs ColorSelector, rng *rand.Rand) error {
	glyphs, err := r.layout(canvas.Bounds(), challenge, fs, cs, rng)
	defer func() {
		for _, g := range glyphs {
			g.face.Close()
		}
	}()
	if err != nil {
		return err
	}

	// Antialiased edges and resampling of rotated glyphs may spill past the
	// fitted box by a pixel; the margins must stay untouched.
	left, top, right, bottom := r.band(canvas.Bounds())
	dc := gg.NewContextForRGBA(canvas)
	dc.DrawRectangle(left, top, right-left, bottom-top)
	dc.Clip()
	for _, g := range glyphs {
		dc.Push()
		dc.SetFontFace(g.face)
		dc.SetColor(g.Color)
		if g.Angle != 0 {
			dc.RotateAbout(gg.Radians(g.Angle), g.X, g.Y)
		}
		dc.DrawString(string(g.Rune), g.dotX, g.dotY)
		dc.Pop()
	}
	return nil
}

// Layout computes glyph placements without drawing.
func (r BestFitRenderer) Layout(bounds image.Rectangle, challenge string, fs FontSelector, cs ColorSelector, rng *rand.Rand) ([]Placement, error) {
	glyphs, err := r.layout(bounds, challenge, fs, cs, rng)
	out := make([]Placement, len(glyphs))
	for i, g := range glyphs {
		g.face.Close()
		out[i] = g.Placement
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// layout returns every glyph placed so far, even on error, so callers can
// release the faces.
func (r BestFitRenderer) layout(bounds image.Rectangle, challenge string, fs FontSelector, cs ColorSelector, rng *rand.Rand) ([]placed, error) {
	runes := []rune(challenge)
	if len(runes) == 0 {
		return nil, nil
	}

	left, top, right, bottom := r.band(bounds)
	if right <= left || bottom <= top {
		return nil, errors.New(errors.ErrCodeLayoutOverflow, "margins leave no drawable area in %dx%d canvas", bounds.Dx(), bounds.Dy())
	}

	cellW := (right - left) / float64(len(runes))
	bandH := bottom - top
	centerY := top + bandH/2

	glyphs := make([]placed, 0, len(runes))
	for i, ch := range runes {
		desc, err := fs.Select(r.MinFontSize, r.MaxFontSize, rng)
		if err != nil {
			return glyphs, err
		}
		angle := 0.0
		if r.MaxRotation > 0 {
			angle = (rng.Float64()*2 - 1) * r.MaxRotation
		}

		g, err := r.fit(ch, desc, angle, cellW, bandH, fs)
		if err != nil {
			return glyphs, err
		}
		g.Color = cs.ColorFor(i, rng)
		g.X = left + (float64(i)+0.5)*cellW
		g.Y = centerY
		g.dotX += g.X
		g.dotY += g.Y
		glyphs = append(glyphs, g)
	}
	return glyphs, nil
}

// band returns the drawable area inside the margins.
func (r BestFitRenderer) band(bounds image.Rectangle) (left, top, right, bottom float64) {
	return float64(bounds.Min.X + r.LeftMargin), float64(bounds.Min.Y + r.TopMargin),
		float64(bounds.Max.X - r.RightMargin), float64(bounds.Max.Y - r.BottomMargin)
}

// fit finds the largest size not above desc.Size whose rotated bounding box
// fits a cellW×bandH box. If the rotated glyph cannot fit even at the
// smallest size, the rotation is dropped and the search repeated.
// The returned dot offsets are relative to the box center.
func (r BestFitRenderer) fit(ch rune, desc FontDescriptor, angle, cellW, bandH float64, fs FontSelector) (placed, error) {
	floor := max(1, min(r.MinFontSize, desc.Size))
	angles := []float64{angle}
	if angle != 0 {
		angles = append(angles, 0)
	}

	for _, a := range angles {
		for size := desc.Size; size >= floor; size-- {
			d := FontDescriptor{Family: desc.Family, Size: size}
			face, err := fs.Face(d)
			if err != nil {
				return placed{}, err
			}
			b, _ := font.BoundString(face, string(ch))
			w, h := toFloat(b.Max.X-b.Min.X), toFloat(b.Max.Y-b.Min.Y)
			rw, rh := rotatedExtent(w, h, a)
			if rw <= cellW && rh <= bandH {
				return placed{
					Placement: Placement{Rune: ch, Font: d, Angle: a, Width: rw, Height: rh},
					face:      face,
					dotX:      -toFloat(b.Min.X+b.Max.X) / 2,
					dotY:      -toFloat(b.Min.Y+b.Max.Y) / 2,
				}, nil
			}
			face.Close()
		}
	}
	return placed{}, errors.New(errors.ErrCodeLayoutOverflow,
		"glyph %q does not fit a %.1fx%.1f cell even at %dpx", ch, cellW, bandH, floor)
}

// rotatedExtent returns the axis-aligned size of a w×h box rotated by deg degrees.
func rotatedExtent(w, h, deg float64) (float64, float64) {
	if deg == 0 {
		return w, h
	}
	sin, cos := math.Sincos(gg.Radians(deg))
	sin, cos = math.Abs(sin), math.Abs(cos)
	return w*cos + h*sin, w*sin + h*cos
}

func toFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
