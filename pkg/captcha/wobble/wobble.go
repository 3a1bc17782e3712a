// Package wobble implements the sinusoidal pixel-remap filter applied as the
// last step of captcha synthesis.
//
// For every destination pixel (x, y) of a W×H image the source pixel is
//
//	srcX = round(x + xAmplitude * sin(y * 2π / H))
//	srcY = round(y + yAmplitude * sin(x * 2π / W))
//
// i.e. one full sine period across each image dimension. Sources falling
// outside the image are resolved by an [EdgeMode].
//
// The remap has no dependency between pixels and no hidden randomness: the
// same input and parameters always yield the same output. Rows are processed
// in parallel bands.
package wobble

import (
	"fmt"
	"image"
	"math"
	"runtime"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/wobblecap/wobblecap/pkg/errors"
)

// EdgeMode selects what a destination pixel becomes when its source
// coordinate lies outside the image.
type EdgeMode int

const (
	// EdgeClamp copies the nearest in-bounds pixel (each axis clamped independently).
	EdgeClamp EdgeMode = iota
	// EdgeTransparent leaves the destination pixel fully transparent.
	EdgeTransparent
	// EdgeMirror reflects the coordinate back into the image.
	EdgeMirror
)

var edgeNames = map[EdgeMode]string{
	EdgeClamp:       "clamp",
	EdgeTransparent: "transparent",
	EdgeMirror:      "mirror",
}

// String returns the configuration name of the mode.
func (m EdgeMode) String() string {
	if s, ok := edgeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("EdgeMode(%d)", int(m))
}

// Valid reports whether m is a known mode.
func (m EdgeMode) Valid() bool {
	_, ok := edgeNames[m]
	return ok
}

// ParseEdgeMode parses "clamp", "transparent" or "mirror" (case-insensitive).
func ParseEdgeMode(s string) (EdgeMode, error) {
	for m, name := range edgeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, errors.New(errors.ErrCodeConfiguration, "invalid edge mode %q (must be clamp, transparent or mirror)", s)
}

// MarshalText implements encoding.TextMarshaler for config files.
func (m EdgeMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, errors.New(errors.ErrCodeConfiguration, "invalid edge mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for config files.
func (m *EdgeMode) UnmarshalText(text []byte) error {
	parsed, err := ParseEdgeMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Filter is a configured wobble distortion.
type Filter struct {
	XAmplitude float64
	YAmplitude float64
	Edge       EdgeMode
}

// Apply runs the filter on img. See the package-level [Apply].
func (f Filter) Apply(img image.Image) (*image.NRGBA, error) {
	return Apply(img, f.XAmplitude, f.YAmplitude, f.Edge)
}

// Apply remaps img into a new NRGBA image of identical dimensions. The input
// is never modified. Zero amplitudes produce a pixel-identical copy.
func Apply(img image.Image, xAmplitude, yAmplitude float64, mode EdgeMode) (*image.NRGBA, error) {
	if !finite(xAmplitude) || !finite(yAmplitude) {
		return nil, errors.New(errors.ErrCodeConfiguration, "amplitudes must be finite, got x=%v y=%v", xAmplitude, yAmplitude)
	}
	if !mode.Valid() {
		return nil, errors.New(errors.ErrCodeConfiguration, "invalid edge mode %d", int(mode))
	}

	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst, nil
	}

	// The horizontal shift depends only on y and the vertical shift only on x.
	shiftX := make([]float64, h)
	for y := range shiftX {
		shiftX[y] = xAmplitude * math.Sin(float64(y)*2*math.Pi/float64(h))
	}
	shiftY := make([]float64, w)
	for x := range shiftY {
		shiftY[x] = yAmplitude * math.Sin(float64(x)*2*math.Pi/float64(w))
	}

	workers := runtime.GOMAXPROCS(0)
	band := max(1, (h+workers-1)/workers)

	var g errgroup.Group
	g.SetLimit(workers)
	for top := 0; top < h; top += band {
		bottom := min(top+band, h)
		g.Go(func() error {
			remapRows(src, dst, top, bottom, shiftX, shiftY, mode)
			return nil
		})
	}
	return dst, g.Wait()
}

func remapRows(src, dst *image.NRGBA, top, bottom int, shiftX, shiftY []float64, mode EdgeMode) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	for y := top; y < bottom; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		for x := 0; x < w; x++ {
			sx, okX := resolve(int(math.Round(float64(x)+shiftX[y])), w, mode)
			sy, okY := resolve(int(math.Round(float64(y)+shiftY[x])), h, mode)
			if !okX || !okY {
				continue // EdgeTransparent: dst is zeroed
			}
			i := sy*src.Stride + sx*4
			copy(row[x*4:x*4+4], src.Pix[i:i+4])
		}
	}
}

// resolve maps coordinate v onto [0, n) according to mode.
// The boolean is false when the pixel should stay transparent.
func resolve(v, n int, mode EdgeMode) (int, bool) {
	if v >= 0 && v < n {
		return v, true
	}
	switch mode {
	case EdgeClamp:
		if v < 0 {
			return 0, true
		}
		return n - 1, true
	case EdgeMirror:
		period := 2 * n
		m := v % period
		if m < 0 {
			m += period
		}
		if m >= n {
			m = period - 1 - m
		}
		return m, true
	default:
		return 0, false
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
