package captcha

import (
	"math/rand/v2"

	"golang.org/x/image/font"

	"github.com/wobblecap/wobblecap/pkg/errors"
	"github.com/wobblecap/wobblecap/pkg/fonts"
)

// FontDescriptor names a typeface and a pixel size.
type FontDescriptor struct {
	Family string
	Size   int
}

// FontSelector picks a font per glyph and turns descriptors into faces.
type FontSelector interface {
	Select(minSize, maxSize int, rng *rand.Rand) (FontDescriptor, error)
	// Face returns a face owned by the caller, who must Close it.
	Face(d FontDescriptor) (font.Face, error)
}

// RandomFontSelector chooses a family uniformly from a pool and a size
// uniformly in [minSize, maxSize].
type RandomFontSelector struct {
	Pool *fonts.Pool
	// Families restricts the choice to a subset of the pool. Empty means all.
	Families []string
}

// NewRandomFontSelector selects from every family in pool.
func NewRandomFontSelector(pool *fonts.Pool) *RandomFontSelector {
	return &RandomFontSelector{Pool: pool}
}

// Validate reports RESOURCE_UNAVAILABLE when there is nothing to choose from.
func (s *RandomFontSelector) Validate() error {
	if len(s.families()) == 0 {
		return errors.New(errors.ErrCodeResourceUnavailable, "no font families available")
	}
	for _, fam := range s.Families {
		if _, err := s.Pool.Font(fam); err != nil {
			return err
		}
	}
	return nil
}

// Select implements FontSelector.
func (s *RandomFontSelector) Select(minSize, maxSize int, rng *rand.Rand) (FontDescriptor, error) {
	fams := s.families()
	if len(fams) == 0 {
		return FontDescriptor{}, errors.New(errors.ErrCodeResourceUnavailable, "no font families available")
	}
	if minSize < 1 || minSize > maxSize {
		return FontDescriptor{}, errors.New(errors.ErrCodeConfiguration, "invalid font size range [%d, %d]", minSize, maxSize)
	}
	return FontDescriptor{
		Family: fams[rng.IntN(len(fams))],
		Size:   minSize + rng.IntN(maxSize-minSize+1),
	}, nil
}

// Face implements FontSelector.
func (s *RandomFontSelector) Face(d FontDescriptor) (font.Face, error) {
	return s.Pool.Face(d.Family, float64(d.Size))
}

func (s *RandomFontSelector) families() []string {
	if len(s.Families) > 0 {
		return s.Families
	}
	return s.Pool.Families()
}
