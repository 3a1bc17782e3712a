package captcha

import (
	"image"
	"image/color"
	"math/rand/v2"

	"github.com/fogleman/gg"

	"github.com/wobblecap/wobblecap/pkg/errors"
)

// Artifact sizes in pixels.
const (
	minDotRadius = 0.5
	maxDotRadius = 1.5
	lineWidth    = 1.0
)

// BackgroundGenerator produces the canvas glyphs are drawn onto.
type BackgroundGenerator interface {
	Generate(width, height int, rng *rand.Rand) (*image.RGBA, error)
}

// SimpleBackground is a flat fill (or transparency) with dot and line noise.
type SimpleBackground struct {
	Fill          color.Color // nil leaves the canvas transparent
	ArtifactColor color.Color
	ArtifactCount int
	LineCount     int
}

// Generate implements BackgroundGenerator.
func (b SimpleBackground) Generate(width, height int, rng *rand.Rand) (*image.RGBA, error) {
	return GenerateBackground(width, height, b.Fill, b.ArtifactColor, b.ArtifactCount, b.LineCount, rng)
}

// GenerateBackground fills a width×height canvas with bg (or leaves it
// transparent when bg is nil), then scatters artifactCount dots and lineCount
// line segments in artifactColor. All coordinates are uniform over the canvas.
func GenerateBackground(width, height int, bg, artifactColor color.Color, artifactCount, lineCount int, rng *rand.Rand) (*image.RGBA, error) {
	dc, err := newCanvas(width, height)
	if err != nil {
		return nil, err
	}
	if bg != nil {
		dc.SetColor(bg)
		dc.Clear()
	}
	if err := drawArtifacts(dc, artifactColor, artifactCount, lineCount, rng); err != nil {
		return nil, err
	}
	return dc.Image().(*image.RGBA), nil
}

// GradientBackground fills the canvas with a diagonal linear gradient before
// adding the same noise as SimpleBackground.
type GradientBackground struct {
	From, To      color.Color
	ArtifactColor color.Color
	ArtifactCount int
	LineCount     int
}

// Generate implements BackgroundGenerator.
func (b GradientBackground) Generate(width, height int, rng *rand.Rand) (*image.RGBA, error) {
	if b.From == nil || b.To == nil {
		return nil, errors.New(errors.ErrCodeConfiguration, "gradient background needs both colors")
	}
	dc, err := newCanvas(width, height)
	if err != nil {
		return nil, err
	}
	grad := gg.NewLinearGradient(0, 0, float64(width), float64(height))
	grad.AddColorStop(0, b.From)
	grad.AddColorStop(1, b.To)
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, float64(width), float64(height))
	dc.Fill()

	if err := drawArtifacts(dc, b.ArtifactColor, b.ArtifactCount, b.LineCount, rng); err != nil {
		return nil, err
	}
	return dc.Image().(*image.RGBA), nil
}

func newCanvas(width, height int) (*gg.Context, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New(errors.ErrCodeConfiguration, "canvas dimensions must be positive, got %dx%d", width, height)
	}
	return gg.NewContext(width, height), nil
}

func drawArtifacts(dc *gg.Context, c color.Color, dots, lines int, rng *rand.Rand) error {
	if dots < 0 || lines < 0 {
		return errors.New(errors.ErrCodeConfiguration, "artifact and line counts must not be negative")
	}
	if dots+lines == 0 {
		return nil
	}
	if c == nil {
		return errors.New(errors.ErrCodeConfiguration, "artifact color is required")
	}

	w, h := float64(dc.Width()), float64(dc.Height())
	dc.SetColor(c)
	for range dots {
		r := minDotRadius + rng.Float64()*(maxDotRadius-minDotRadius)
		dc.DrawCircle(rng.Float64()*w, rng.Float64()*h, r)
		dc.Fill()
	}
	dc.SetLineWidth(lineWidth)
	for range lines {
		dc.DrawLine(rng.Float64()*w, rng.Float64()*h, rng.Float64()*w, rng.Float64()*h)
		dc.Stroke()
	}
	return nil
}
