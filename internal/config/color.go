package config

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/wobblecap/wobblecap/pkg/errors"
)

// Color is an optional color written as "#rgb", "#rrggbb" or "#rrggbbaa".
// The empty string means no color.
type Color struct {
	c   color.NRGBA
	set bool
}

// ColorOf wraps c. A nil c gives the empty Color.
func ColorOf(c color.Color) Color {
	if c == nil {
		return Color{}
	}
	return Color{c: color.NRGBAModel.Convert(c).(color.NRGBA), set: true}
}

// Value returns the color, or nil when unset.
func (c Color) Value() color.Color {
	if !c.set {
		return nil
	}
	return c.c
}

// MarshalText implements encoding.TextMarshaler.
func (c Color) MarshalText() ([]byte, error) {
	if !c.set {
		return []byte{}, nil
	}
	s := fmt.Sprintf("#%02x%02x%02x", c.c.R, c.c.G, c.c.B)
	if c.c.A != 0xff {
		s += fmt.Sprintf("%02x", c.c.A)
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Color) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*c = Color{}
		return nil
	}

	alpha := uint8(0xff)
	if len(s) == 9 {
		a, err := strconv.ParseUint(s[7:], 16, 8)
		if err != nil {
			return errors.Wrap(errors.ErrCodeConfiguration, err, "invalid alpha in color %q", s)
		}
		alpha = uint8(a)
		s = s[:7]
	}
	parsed, err := colorful.Hex(s)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfiguration, err, "invalid color %q", text)
	}
	r, g, b := parsed.RGB255()
	*c = Color{c: color.NRGBA{R: r, G: g, B: b, A: alpha}, set: true}
	return nil
}
