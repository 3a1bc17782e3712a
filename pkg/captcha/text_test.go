package captcha

import (
	"image"
	"image/color"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/wobblecap/wobblecap/pkg/errors"
)

const eps = 1e-9

func defaultRenderer() BestFitRenderer {
	return BestFitRenderer{
		MinFontSize:  DefaultMinFontSize,
		MaxFontSize:  DefaultMaxFontSize,
		TopMargin:    DefaultTopMargin,
		BottomMargin: DefaultBottomMargin,
		LeftMargin:   DefaultSideMargin,
		RightMargin:  DefaultSideMargin,
	}
}

// checkCells asserts every placement stays inside its equal-width cell and
// inside the vertical band.
func checkCells(t *testing.T, r BestFitRenderer, bounds image.Rectangle, ps []Placement) {
	t.Helper()
	left := float64(bounds.Min.X + r.LeftMargin)
	right := float64(bounds.Max.X - r.RightMargin)
	top := float64(bounds.Min.Y + r.TopMargin)
	bottom := float64(bounds.Max.Y - r.BottomMargin)
	cellW := (right - left) / float64(len(ps))

	for i, p := range ps {
		cellL := left + float64(i)*cellW
		if p.X-p.Width/2 < cellL-eps || p.X+p.Width/2 > cellL+cellW+eps {
			t.Errorf("glyph %d (%q) spans [%.2f, %.2f], cell is [%.2f, %.2f]",
				i, p.Rune, p.X-p.Width/2, p.X+p.Width/2, cellL, cellL+cellW)
		}
		if p.Y-p.Height/2 < top-eps || p.Y+p.Height/2 > bottom+eps {
			t.Errorf("glyph %d (%q) spans rows [%.2f, %.2f], band is [%.2f, %.2f]",
				i, p.Rune, p.Y-p.Height/2, p.Y+p.Height/2, top, bottom)
		}
		if math.Abs(p.Angle) > r.MaxRotation+eps {
			t.Errorf("glyph %d rotated %.2f°, max %.2f°", i, p.Angle, r.MaxRotation)
		}
	}
}

func TestBestFitLayout(t *testing.T) {
	pool := defaultPool(t)

	tests := []struct {
		name      string
		renderer  BestFitRenderer
		bounds    image.Rectangle
		challenge string
	}{
		{"default canvas", defaultRenderer(), image.Rect(0, 0, 118, 41), "0427"},
		{"wide glyphs", defaultRenderer(), image.Rect(0, 0, 118, 41), "WMWM"},
		{"shrinks to fit", BestFitRenderer{MinFontSize: 6, MaxFontSize: 40}, image.Rect(0, 0, 60, 41), "888888"},
		{"rotated", BestFitRenderer{MinFontSize: 14, MaxFontSize: 22, MaxRotation: 30, LeftMargin: 3, RightMargin: 3}, image.Rect(0, 0, 150, 50), "a1b2c3"},
		{"steep rotation", BestFitRenderer{MinFontSize: 10, MaxFontSize: 18, MaxRotation: 85}, image.Rect(0, 0, 80, 30), "hello"},
		{"offset bounds", defaultRenderer(), image.Rect(10, 5, 128, 46), "9999"},
		{"multibyte", defaultRenderer(), image.Rect(0, 0, 118, 41), "äöüß"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := testRand()
			for range 20 {
				ps, err := tt.renderer.Layout(tt.bounds, tt.challenge, NewRandomFontSelector(pool), FixedColor{Color: color.Black}, rng)
				if err != nil {
					t.Fatalf("Layout: %v", err)
				}
				if len(ps) != len([]rune(tt.challenge)) {
					t.Fatalf("got %d placements for %q", len(ps), tt.challenge)
				}
				for i, r := range []rune(tt.challenge) {
					if ps[i].Rune != r {
						t.Fatalf("placement %d is %q, want %q", i, ps[i].Rune, r)
					}
				}
				checkCells(t, tt.renderer, tt.bounds, ps)
			}
		})
	}
}

func TestBestFitLayoutShrinks(t *testing.T) {
	r := BestFitRenderer{MinFontSize: 6, MaxFontSize: 40}
	fs := &RandomFontSelector{Pool: defaultPool(t), Families: []string{"Go Bold"}}

	// A 40px glyph needs far more than the 10px cells available.
	ps, err := r.Layout(image.Rect(0, 0, 60, 41), "WWWWWW", fs, FixedColor{Color: color.Black}, testRand())
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range ps {
		if p.Font.Size >= 40 {
			t.Errorf("glyph %d kept size %d", i, p.Font.Size)
		}
		if p.Font.Size < 6 {
			t.Errorf("glyph %d shrank below the minimum: %d", i, p.Font.Size)
		}
	}
}

func TestBestFitLayoutOverflow(t *testing.T) {
	pool := defaultPool(t)

	tests := []struct {
		name      string
		renderer  BestFitRenderer
		bounds    image.Rectangle
		challenge string
	}{
		{"ten glyphs on 50px", BestFitRenderer{MinFontSize: 40, MaxFontSize: 40}, image.Rect(0, 0, 50, 41), "0123456789"},
		{"band too short", BestFitRenderer{MinFontSize: 30, MaxFontSize: 30, TopMargin: 10, BottomMargin: 10}, image.Rect(0, 0, 200, 30), "8"},
		{"no drawable area", BestFitRenderer{MinFontSize: 10, MaxFontSize: 10, LeftMargin: 30, RightMargin: 30}, image.Rect(0, 0, 50, 41), "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.renderer.Layout(tt.bounds, tt.challenge, NewRandomFontSelector(pool), FixedColor{Color: color.Black}, testRand())
			if !errors.Is(err, errors.ErrCodeLayoutOverflow) {
				t.Errorf("err = %v, want LAYOUT_OVERFLOW", err)
			}
		})
	}
}

func TestBestFitLayoutEmptyChallenge(t *testing.T) {
	ps, err := defaultRenderer().Layout(image.Rect(0, 0, 118, 41), "", NewRandomFontSelector(defaultPool(t)), FixedColor{Color: color.Black}, testRand())
	if err != nil || len(ps) != 0 {
		t.Errorf("Layout(\"\") = %v, %v", ps, err)
	}
}

func TestBestFitRenderDraws(t *testing.T) {
	r := defaultRenderer()
	r.LeftMargin, r.RightMargin = 6, 6
	canvas := image.NewRGBA(image.Rect(0, 0, 118, 41))
	ink := color.NRGBA{R: 200, A: 255}

	if err := r.Render(canvas, "1234", NewRandomFontSelector(defaultPool(t)), FixedColor{Color: ink}, testRand()); err != nil {
		t.Fatal(err)
	}

	inked := 0
	for y := 0; y < 41; y++ {
		for x := 0; x < 118; x++ {
			if canvas.RGBAAt(x, y).A == 0 {
				continue
			}
			inked++
			if x < r.LeftMargin || x >= 118-r.RightMargin {
				t.Fatalf("ink at x=%d inside the side margins", x)
			}
		}
	}
	if inked == 0 {
		t.Error("Render drew nothing")
	}
}

func TestBestFitLayoutColors(t *testing.T) {
	var calls []int
	cs := ColorFunc(func(i int, _ *rand.Rand) color.Color {
		calls = append(calls, i)
		return color.Gray{Y: uint8(i)}
	})

	ps, err := defaultRenderer().Layout(image.Rect(0, 0, 118, 41), "abcd", NewRandomFontSelector(defaultPool(t)), cs, testRand())
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 4 {
		t.Fatalf("ColorFor called %d times, want 4", len(calls))
	}
	for i, p := range ps {
		if calls[i] != i || p.Color != (color.Gray{Y: uint8(i)}) {
			t.Errorf("glyph %d: index %d, color %v", i, calls[i], p.Color)
		}
	}
}

func TestRotatedExtent(t *testing.T) {
	tests := []struct {
		name  string
		w, h  float64
		deg   float64
		wantW float64
		wantH float64
	}{
		{"no rotation", 10, 20, 0, 10, 20},
		{"quarter turn", 10, 20, 90, 20, 10},
		{"negative quarter turn", 10, 20, -90, 20, 10},
		{"half turn", 10, 20, 180, 10, 20},
		{"square at 45", 10, 10, 45, 10 * math.Sqrt2, 10 * math.Sqrt2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := rotatedExtent(tt.w, tt.h, tt.deg)
			if math.Abs(w-tt.wantW) > 1e-6 || math.Abs(h-tt.wantH) > 1e-6 {
				t.Errorf("rotatedExtent(%v, %v, %v) = (%v, %v), want (%v, %v)", tt.w, tt.h, tt.deg, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}
