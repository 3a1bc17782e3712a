package captcha

import (
	"context"
	"image"
	"io"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wobblecap/wobblecap/pkg/captcha/wobble"
	"github.com/wobblecap/wobblecap/pkg/errors"
	"github.com/wobblecap/wobblecap/pkg/fonts"
	"github.com/wobblecap/wobblecap/pkg/observability"
)

// Filter is the final pixel transform applied to the composed canvas.
// [wobble.Filter] is the default.
type Filter interface {
	Apply(img image.Image) (*image.NRGBA, error)
}

// Engine wires the pipeline stages together. An Engine is immutable after
// construction and safe for concurrent use: every Produce call gets its own
// random source and its own canvas.
type Engine struct {
	cfg Config

	words      WordFactory
	fonts      FontSelector
	colors     ColorSelector
	background BackgroundGenerator
	text       TextCompositor
	filter     Filter

	newRand func() *rand.Rand
	logger  *log.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithWordFactory replaces the random word generator.
func WithWordFactory(f WordFactory) Option {
	return func(e *Engine) { e.words = f }
}

// WithFontSelector replaces the font selector.
func WithFontSelector(s FontSelector) Option {
	return func(e *Engine) { e.fonts = s }
}

// WithFontPool selects uniformly from pool instead of the embedded fonts.
func WithFontPool(pool *fonts.Pool) Option {
	return func(e *Engine) { e.fonts = NewRandomFontSelector(pool) }
}

// WithColorSelector replaces the fixed foreground color.
func WithColorSelector(s ColorSelector) Option {
	return func(e *Engine) { e.colors = s }
}

// WithBackground replaces the background generator.
func WithBackground(b BackgroundGenerator) Option {
	return func(e *Engine) { e.background = b }
}

// WithTextCompositor replaces the best-fit renderer.
func WithTextCompositor(t TextCompositor) Option {
	return func(e *Engine) { e.text = t }
}

// WithFilter replaces the wobble filter.
func WithFilter(f Filter) Option {
	return func(e *Engine) { e.filter = f }
}

// WithRandSource sets the factory called once per Produce for a fresh
// generator. See [SeededRand] for reproducible output.
func WithRandSource(newRand func() *rand.Rand) Option {
	return func(e *Engine) { e.newRand = newRand }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New validates cfg and builds an engine. Strategies not supplied through
// options are derived from cfg.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, newRand: NewRand}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.New(io.Discard)
	}
	if e.newRand == nil {
		e.newRand = NewRand
	}
	if e.words == nil {
		e.words = RandomWordFactory{Alphabet: cfg.Alphabet, MinLength: cfg.MinLength, MaxLength: cfg.MaxLength}
	}
	if e.fonts == nil {
		pool, err := fonts.Default()
		if err != nil {
			return nil, err
		}
		e.fonts = NewRandomFontSelector(pool)
	}
	if e.colors == nil {
		e.colors = FixedColor{Color: cfg.Foreground}
	}
	if e.background == nil {
		e.background = SimpleBackground{
			Fill:          cfg.Background,
			ArtifactColor: cfg.ArtifactColor,
			ArtifactCount: cfg.ArtifactCount,
			LineCount:     cfg.LineCount,
		}
	}
	if e.text == nil {
		e.text = BestFitRenderer{
			MinFontSize:  cfg.MinFontSize,
			MaxFontSize:  cfg.MaxFontSize,
			TopMargin:    cfg.TopMargin,
			BottomMargin: cfg.BottomMargin,
			LeftMargin:   cfg.LeftMargin,
			RightMargin:  cfg.RightMargin,
			MaxRotation:  cfg.MaxRotation,
		}
	}
	if e.filter == nil {
		e.filter = wobble.Filter{XAmplitude: cfg.XAmplitude, YAmplitude: cfg.YAmplitude, Edge: cfg.EdgeMode}
	}

	if v, ok := e.fonts.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Config returns the validated configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Produce synthesizes one captcha: word, background, text, filter, encode.
// The first failing stage aborts the run; its error carries the stage name
// and the original code. No partial result is returned.
func (e *Engine) Produce(ctx context.Context) (res *Result, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hooks := observability.Captcha()
	hooks.OnProduceStart(ctx)
	start := time.Now()
	defer func() {
		hooks.OnProduceComplete(ctx, time.Since(start), err)
	}()

	rng := e.newRand()
	var stats Stats
	stage := func(name errors.Stage, d *time.Duration, fn func() error) error {
		t := time.Now()
		err := errors.AtStage(name, fn())
		*d = time.Since(t)
		hooks.OnStageComplete(ctx, string(name), *d, err)
		return err
	}

	var challenge string
	if err := stage(errors.StageWord, &stats.WordTime, func() (err error) {
		challenge, err = e.words.Generate(rng)
		return err
	}); err != nil {
		return nil, err
	}

	var canvas *image.RGBA
	if err := stage(errors.StageBackground, &stats.BackgroundTime, func() (err error) {
		canvas, err = e.background.Generate(e.cfg.Width, e.cfg.Height, rng)
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage(errors.StageText, &stats.TextTime, func() error {
		return e.text.Render(canvas, challenge, e.fonts, e.colors, rng)
	}); err != nil {
		return nil, err
	}

	var img *image.NRGBA
	if err := stage(errors.StageFilter, &stats.FilterTime, func() (err error) {
		img, err = e.filter.Apply(canvas)
		return err
	}); err != nil {
		return nil, err
	}

	var encoded []byte
	if err := stage(errors.StageEncode, &stats.EncodeTime, func() (err error) {
		encoded, err = encodePNG(img)
		return err
	}); err != nil {
		return nil, err
	}

	stats.Total = time.Since(start)
	e.logger.Debug("produced captcha",
		"challenge", challenge,
		"size", len(encoded),
		"text", stats.TextTime,
		"filter", stats.FilterTime,
		"duration", stats.Total)

	return &Result{Challenge: challenge, Image: img, PNG: encoded, Stats: stats}, nil
}

// Produce fills zero structural fields of cfg with defaults, builds a
// throwaway engine and runs it once. Servers should construct an Engine once
// and reuse it.
func Produce(ctx context.Context, cfg Config, opts ...Option) (*Result, error) {
	cfg.SetDefaults()
	e, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return e.Produce(ctx)
}
