// Package fonts provides the immutable pool of typefaces glyphs are drawn with.
//
// The default pool embeds the Go font families from golang.org/x/image, so the
// binary carries its own font resources and never touches the filesystem at
// request time. Additional system fonts can be resolved by file name with
// [System] when a pool is built at startup.
//
// A [Pool] never changes after construction. Parsed fonts are shared by every
// concurrent captcha request without locking; [Pool.Face] hands out a fresh
// face per call because truetype faces keep an internal glyph cache.
package fonts

import (
	"os"
	"slices"
	"sync"

	"github.com/flopp/go-findfont"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/gofont/gosmallcaps"

	"github.com/wobblecap/wobblecap/pkg/errors"
)

// Source is raw TrueType data registered under a family name.
type Source struct {
	Family string
	Data   []byte
}

// Embedded returns the Go font families compiled into the binary.
func Embedded() []Source {
	return []Source{
		{Family: "Go Regular", Data: goregular.TTF},
		{Family: "Go Bold", Data: gobold.TTF},
		{Family: "Go Italic", Data: goitalic.TTF},
		{Family: "Go Medium", Data: gomedium.TTF},
		{Family: "Go Mono", Data: gomono.TTF},
		{Family: "Go Mono Bold", Data: gomonobold.TTF},
		{Family: "Go Smallcaps", Data: gosmallcaps.TTF},
	}
}

// System resolves font files installed on the host (e.g. "DejaVuSans.ttf")
// and returns them as sources. The family name is the file name as given.
func System(names ...string) ([]Source, error) {
	sources := make([]Source, 0, len(names))
	for _, name := range names {
		path, err := findfont.Find(name)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeResourceUnavailable, err, "font %q not found", name)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeResourceUnavailable, err, "read font %s", path)
		}
		sources = append(sources, Source{Family: name, Data: data})
	}
	return sources, nil
}

// Pool is an immutable set of parsed fonts keyed by family.
type Pool struct {
	families []string
	fonts    map[string]*truetype.Font
}

// NewPool parses every source. Duplicate family names keep the first source.
// An empty pool is valid; selecting from it fails with RESOURCE_UNAVAILABLE.
func NewPool(sources ...Source) (*Pool, error) {
	p := &Pool{fonts: make(map[string]*truetype.Font, len(sources))}
	for _, src := range sources {
		if _, dup := p.fonts[src.Family]; dup {
			continue
		}
		f, err := truetype.Parse(src.Data)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeResourceUnavailable, err, "parse font %q", src.Family)
		}
		p.fonts[src.Family] = f
		p.families = append(p.families, src.Family)
	}
	return p, nil
}

var (
	defaultPool     *Pool
	defaultPoolErr  error
	defaultPoolOnce sync.Once
)

// Default returns the pool of embedded fonts, parsed once on first use.
func Default() (*Pool, error) {
	defaultPoolOnce.Do(func() {
		defaultPool, defaultPoolErr = NewPool(Embedded()...)
	})
	return defaultPool, defaultPoolErr
}

// Len returns the number of families in the pool.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.families)
}

// Families returns the family names in registration order.
func (p *Pool) Families() []string {
	if p == nil {
		return nil
	}
	return slices.Clone(p.families)
}

// Font returns the parsed font for family.
func (p *Pool) Font(family string) (*truetype.Font, error) {
	if p != nil {
		if f, ok := p.fonts[family]; ok {
			return f, nil
		}
	}
	return nil, errors.New(errors.ErrCodeResourceUnavailable, "font family %q not available", family)
}

// Face returns a new face for family at size points (72 DPI, so points equal pixels).
// The caller owns the face; it must not be shared between goroutines.
func (p *Pool) Face(family string, size float64) (font.Face, error) {
	f, err := p.Font(family)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, errors.New(errors.ErrCodeConfiguration, "font size must be positive, got %v", size)
	}
	return truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}
