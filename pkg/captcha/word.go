package captcha

import (
	"math/rand/v2"
	"strings"

	"github.com/wobblecap/wobblecap/pkg/errors"
)

// WordFactory produces the plaintext challenge.
type WordFactory interface {
	Generate(rng *rand.Rand) (string, error)
}

// RandomWordFactory draws words of random length from an alphabet.
type RandomWordFactory struct {
	Alphabet  string
	MinLength int
	MaxLength int
}

// Generate implements WordFactory.
func (f RandomWordFactory) Generate(rng *rand.Rand) (string, error) {
	return GenerateWord(f.Alphabet, f.MinLength, f.MaxLength, rng)
}

// GenerateWord picks a length uniformly in [minLength, maxLength] and then
// each character uniformly and independently from alphabet. Repeated
// characters in alphabet count once, so every distinct character is equally
// likely.
func GenerateWord(alphabet string, minLength, maxLength int, rng *rand.Rand) (string, error) {
	chars := distinctRunes(alphabet)
	if len(chars) == 0 {
		return "", errors.New(errors.ErrCodeConfiguration, "alphabet must not be empty")
	}
	if minLength < 1 {
		return "", errors.New(errors.ErrCodeConfiguration, "min length must be at least 1, got %d", minLength)
	}
	if minLength > maxLength {
		return "", errors.New(errors.ErrCodeConfiguration, "min length %d exceeds max length %d", minLength, maxLength)
	}

	n := minLength + rng.IntN(maxLength-minLength+1)
	var b strings.Builder
	b.Grow(n * 4)
	for range n {
		b.WriteRune(chars[rng.IntN(len(chars))])
	}
	return b.String(), nil
}

func distinctRunes(s string) []rune {
	seen := make(map[rune]bool, len(s))
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}
