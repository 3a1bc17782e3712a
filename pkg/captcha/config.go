package captcha

import (
	"image/color"
	"math"

	"github.com/wobblecap/wobblecap/pkg/captcha/wobble"
	"github.com/wobblecap/wobblecap/pkg/errors"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	DefaultAlphabet      = "0123456789"
	DefaultMinLength     = 4
	DefaultMaxLength     = 4
	DefaultMinFontSize   = 20
	DefaultMaxFontSize   = 20
	DefaultWidth         = 118
	DefaultHeight        = 41
	DefaultTopMargin     = 1
	DefaultBottomMargin  = 1
	DefaultSideMargin    = 2
	DefaultArtifactCount = 50
	DefaultLineCount     = 2
	DefaultXAmplitude    = 1.6
	DefaultYAmplitude    = 0.8
)

var (
	// DefaultForeground is the glyph color.
	DefaultForeground color.Color = color.NRGBA{A: 255}

	// DefaultArtifactColor is the color of background dots and lines.
	DefaultArtifactColor color.Color = color.NRGBA{R: 102, G: 102, B: 102, A: 255}
)

// =============================================================================
// Config
// =============================================================================

// Config holds everything needed to synthesize one kind of captcha.
//
// [New] takes the config as given: an empty alphabet or a zero canvas size is
// a CONFIGURATION error. Start from [DefaultConfig], or call
// [Config.SetDefaults] to fill zero structural fields explicitly. Zero margins,
// counts, amplitudes and rotation are meaningful and kept as-is. A nil
// Background means a transparent canvas.
type Config struct {
	Alphabet  string
	MinLength int
	MaxLength int

	MinFontSize int
	MaxFontSize int

	Width  int
	Height int

	TopMargin    int
	BottomMargin int
	LeftMargin   int
	RightMargin  int

	// MaxRotation bounds the per-glyph rotation in degrees, in [0, 90).
	MaxRotation float64

	Background    color.Color
	Foreground    color.Color
	ArtifactColor color.Color
	ArtifactCount int
	LineCount     int

	XAmplitude float64
	YAmplitude float64
	EdgeMode   wobble.EdgeMode
}

// DefaultConfig returns the stock configuration: four digits on a 118×41
// transparent canvas with 50 dots, 2 lines and a light wobble.
func DefaultConfig() Config {
	return Config{
		Alphabet:      DefaultAlphabet,
		MinLength:     DefaultMinLength,
		MaxLength:     DefaultMaxLength,
		MinFontSize:   DefaultMinFontSize,
		MaxFontSize:   DefaultMaxFontSize,
		Width:         DefaultWidth,
		Height:        DefaultHeight,
		TopMargin:     DefaultTopMargin,
		BottomMargin:  DefaultBottomMargin,
		LeftMargin:    DefaultSideMargin,
		RightMargin:   DefaultSideMargin,
		Foreground:    DefaultForeground,
		ArtifactColor: DefaultArtifactColor,
		ArtifactCount: DefaultArtifactCount,
		LineCount:     DefaultLineCount,
		XAmplitude:    DefaultXAmplitude,
		YAmplitude:    DefaultYAmplitude,
		EdgeMode:      wobble.EdgeClamp,
	}
}

// SetDefaults fills zero-valued structural fields. [New] never calls it;
// [Produce] does.
func (c *Config) SetDefaults() {
	if c.Alphabet == "" {
		c.Alphabet = DefaultAlphabet
	}
	if c.MinLength == 0 && c.MaxLength == 0 {
		c.MinLength, c.MaxLength = DefaultMinLength, DefaultMaxLength
	}
	if c.MinFontSize == 0 && c.MaxFontSize == 0 {
		c.MinFontSize, c.MaxFontSize = DefaultMinFontSize, DefaultMaxFontSize
	}
	if c.Width == 0 {
		c.Width = DefaultWidth
	}
	if c.Height == 0 {
		c.Height = DefaultHeight
	}
	if c.Foreground == nil {
		c.Foreground = DefaultForeground
	}
	if c.ArtifactColor == nil {
		c.ArtifactColor = DefaultArtifactColor
	}
}

// Validate reports the first inconsistency as a CONFIGURATION error.
// It never adjusts values.
func (c *Config) Validate() error {
	switch {
	case c.Alphabet == "":
		return configErr("alphabet must not be empty")
	case c.MinLength < 1:
		return configErr("min length must be at least 1, got %d", c.MinLength)
	case c.MinLength > c.MaxLength:
		return configErr("min length %d exceeds max length %d", c.MinLength, c.MaxLength)
	case c.Width <= 0 || c.Height <= 0:
		return configErr("canvas dimensions must be positive, got %dx%d", c.Width, c.Height)
	case c.MinFontSize < 1:
		return configErr("min font size must be at least 1, got %d", c.MinFontSize)
	case c.MinFontSize > c.MaxFontSize:
		return configErr("min font size %d exceeds max font size %d", c.MinFontSize, c.MaxFontSize)
	case c.TopMargin < 0 || c.BottomMargin < 0 || c.LeftMargin < 0 || c.RightMargin < 0:
		return configErr("margins must not be negative")
	case c.TopMargin+c.BottomMargin >= c.Height:
		return configErr("vertical margins %d+%d leave no room in height %d", c.TopMargin, c.BottomMargin, c.Height)
	case c.LeftMargin+c.RightMargin >= c.Width:
		return configErr("horizontal margins %d+%d leave no room in width %d", c.LeftMargin, c.RightMargin, c.Width)
	case c.ArtifactCount < 0 || c.LineCount < 0:
		return configErr("artifact and line counts must not be negative")
	case !finite(c.XAmplitude) || !finite(c.YAmplitude):
		return configErr("amplitudes must be finite")
	case !finite(c.MaxRotation) || c.MaxRotation < 0 || c.MaxRotation >= 90:
		return configErr("max rotation must be in [0, 90) degrees, got %v", c.MaxRotation)
	case !c.EdgeMode.Valid():
		return configErr("invalid edge mode %d", int(c.EdgeMode))
	case c.Foreground == nil || c.ArtifactColor == nil:
		return configErr("foreground and artifact colors are required")
	}
	return nil
}

func configErr(format string, args ...any) error {
	return errors.New(errors.ErrCodeConfiguration, format, args...)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
