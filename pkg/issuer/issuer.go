// Package issuer hands out captchas and checks answers against them.
//
// Issue produces an image, stores a keyed BLAKE2b digest of the answer under a
// fresh challenge id and returns the image with that id. The plaintext answer
// never reaches the store. Verify consumes the challenge whatever the outcome,
// so every challenge can be answered at most once.
package issuer

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/blake2b"

	"github.com/wobblecap/wobblecap/pkg/captcha"
	"github.com/wobblecap/wobblecap/pkg/errors"
	"github.com/wobblecap/wobblecap/pkg/session"
)

// Producer synthesizes captchas. *captcha.Engine implements it.
type Producer interface {
	Produce(ctx context.Context) (*captcha.Result, error)
}

// Ticket is what a client receives: an id to answer against and the image.
type Ticket struct {
	ID        string
	Name      string
	PNG       []byte
	ExpiresAt time.Time
}

// DataURI returns the image as a base64 data URI.
func (t *Ticket) DataURI() string {
	return "data:" + captcha.MediaType + ";base64," + base64.StdEncoding.EncodeToString(t.PNG)
}

// Issuer couples a Producer with a challenge store.
type Issuer struct {
	producer        Producer
	store           session.Store
	key             []byte
	ttl             time.Duration
	name            string
	caseInsensitive bool
	logger          *log.Logger
}

// Option customizes an Issuer.
type Option func(*Issuer)

// WithTTL sets how long a challenge stays answerable. Default session.DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) { i.ttl = ttl }
}

// WithName labels stored challenges. Default session.DefaultName.
func WithName(name string) Option {
	return func(i *Issuer) { i.name = name }
}

// WithKey sets the digest key. Instances sharing a store must share the key.
// Without it a random per-process key is generated.
func WithKey(key []byte) Option {
	return func(i *Issuer) { i.key = key }
}

// WithCaseInsensitive makes answers match regardless of letter case.
func WithCaseInsensitive(on bool) Option {
	return func(i *Issuer) { i.caseInsensitive = on }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(i *Issuer) { i.logger = l }
}

// New creates an Issuer.
func New(p Producer, store session.Store, opts ...Option) (*Issuer, error) {
	if p == nil || store == nil {
		return nil, errors.New(errors.ErrCodeConfiguration, "issuer needs a producer and a store")
	}
	i := &Issuer{
		producer: p,
		store:    store,
		ttl:      session.DefaultTTL,
		name:     session.DefaultName,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = log.New(io.Discard)
	}
	if i.ttl <= 0 {
		return nil, errors.New(errors.ErrCodeConfiguration, "challenge ttl must be positive, got %v", i.ttl)
	}
	if len(i.key) > blake2b.Size {
		return nil, errors.New(errors.ErrCodeConfiguration, "digest key must be at most %d bytes, got %d", blake2b.Size, len(i.key))
	}
	if len(i.key) == 0 {
		i.key = make([]byte, 32)
		if _, err := rand.Read(i.key); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "generate digest key")
		}
	}
	return i, nil
}

// Issue produces a captcha and records its challenge.
func (i *Issuer) Issue(ctx context.Context) (*Ticket, error) {
	res, err := i.producer.Produce(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := session.New(i.name, nil, i.ttl)
	if err != nil {
		return nil, err
	}
	ch.Digest = i.digest(ch.ID, res.Challenge)
	if err := i.store.Set(ctx, ch); err != nil {
		return nil, err
	}

	i.logger.Debug("issued challenge", "id", ch.ID, "name", ch.Name, "expires", ch.ExpiresAt.Format(time.RFC3339))
	return &Ticket{
		ID:        ch.ID,
		Name:      ch.Name,
		PNG:       res.PNG,
		ExpiresAt: ch.ExpiresAt,
	}, nil
}

// Verify reports whether answer solves challenge id. The challenge is
// consumed by the first call. Unknown, used and expired challenges yield
// false with a NOT_FOUND or EXPIRED error; a wrong answer yields false, nil.
func (i *Issuer) Verify(ctx context.Context, id, answer string) (bool, error) {
	ch, err := i.store.Take(ctx, id)
	if err != nil {
		return false, err
	}
	ok := subtle.ConstantTimeCompare(ch.Digest, i.digest(ch.ID, answer)) == 1
	i.logger.Debug("verified challenge", "id", id, "success", ok)
	return ok, nil
}

// digest binds the normalized answer to the challenge id.
func (i *Issuer) digest(id, answer string) []byte {
	answer = strings.TrimSpace(answer)
	if i.caseInsensitive {
		answer = strings.ToLower(answer)
	}
	h, _ := blake2b.New256(i.key) // key length checked in New
	h.Write([]byte(id))
	h.Write([]byte{0})
	h.Write([]byte(answer))
	return h.Sum(nil)
}
