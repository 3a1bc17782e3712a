package captcha

import (
	"bytes"
	"context"
	stderrors "errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/image/font"

	"github.com/wobblecap/wobblecap/pkg/captcha/wobble"
	"github.com/wobblecap/wobblecap/pkg/errors"
	"github.com/wobblecap/wobblecap/pkg/observability"
)

func mustEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestProduceDefaultScenario(t *testing.T) {
	e := mustEngine(t, DefaultConfig(), WithRandSource(SeededRand(1)))

	trials := 1000
	if testing.Short() {
		trials = 100
	}
	for i := range trials {
		res, err := e.Produce(context.Background())
		if err != nil {
			t.Fatalf("trial %d: %v", i, err)
		}
		if b := res.Image.Bounds(); b.Dx() != 118 || b.Dy() != 41 {
			t.Fatalf("trial %d: image is %dx%d, want 118x41", i, b.Dx(), b.Dy())
		}
		if len(res.Challenge) != 4 {
			t.Fatalf("trial %d: challenge %q has length %d", i, res.Challenge, len(res.Challenge))
		}
		if strings.Trim(res.Challenge, DefaultAlphabet) != "" {
			t.Fatalf("trial %d: challenge %q has non-digits", i, res.Challenge)
		}
	}
}

func TestProduceDimensions(t *testing.T) {
	tests := []struct {
		name string
		cfg  func(*Config)
	}{
		{"defaults", func(*Config) {}},
		{"wide", func(c *Config) { c.Width, c.Height, c.MinLength, c.MaxLength = 240, 60, 6, 8 }},
		{"small fonts", func(c *Config) { c.Width, c.Height, c.MinFontSize, c.MaxFontSize = 80, 30, 12, 16 }},
		{"letters with rotation", func(c *Config) { c.Alphabet, c.MaxRotation = "ABCDEFGHJKLMNPQRSTUVWXYZ", 25 }},
		{"opaque background", func(c *Config) { c.Background = color.White }},
		{"no noise", func(c *Config) { c.ArtifactCount, c.LineCount = 0, 0 }},
		{"transparent edges", func(c *Config) { c.EdgeMode, c.XAmplitude, c.YAmplitude = wobble.EdgeTransparent, 4, 3 }},
		{"mirror edges", func(c *Config) { c.EdgeMode = wobble.EdgeMirror }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.cfg(&cfg)
			e := mustEngine(t, cfg, WithRandSource(SeededRand(3)))
			for range 25 {
				res, err := e.Produce(context.Background())
				if err != nil {
					t.Fatal(err)
				}
				if res.Image.Bounds() != image.Rect(0, 0, cfg.Width, cfg.Height) {
					t.Fatalf("bounds = %v, want %dx%d", res.Image.Bounds(), cfg.Width, cfg.Height)
				}
				n := len([]rune(res.Challenge))
				if n < cfg.MinLength || n > cfg.MaxLength {
					t.Fatalf("challenge length %d outside [%d, %d]", n, cfg.MinLength, cfg.MaxLength)
				}
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  func(*Config)
	}{
		{"empty alphabet", func(c *Config) { c.Alphabet = "" }},
		{"zero width", func(c *Config) { c.Width = 0 }},
		{"zero height", func(c *Config) { c.Height = 0 }},
		{"zero lengths", func(c *Config) { c.MinLength, c.MaxLength = 0, 0 }},
		{"nil foreground", func(c *Config) { c.Foreground = nil }},
		{"min length above max", func(c *Config) { c.MinLength, c.MaxLength = 5, 2 }},
		{"negative min length", func(c *Config) { c.MinLength = -1 }},
		{"negative width", func(c *Config) { c.Width = -1 }},
		{"negative height", func(c *Config) { c.Height = -5 }},
		{"font sizes inverted", func(c *Config) { c.MinFontSize, c.MaxFontSize = 30, 10 }},
		{"vertical margins fill canvas", func(c *Config) { c.TopMargin, c.BottomMargin = 20, 21 }},
		{"horizontal margins fill canvas", func(c *Config) { c.LeftMargin, c.RightMargin = 60, 60 }},
		{"negative margin", func(c *Config) { c.TopMargin = -1 }},
		{"negative artifacts", func(c *Config) { c.ArtifactCount = -1 }},
		{"NaN amplitude", func(c *Config) { c.XAmplitude = math.NaN() }},
		{"rotation too large", func(c *Config) { c.MaxRotation = 90 }},
		{"negative rotation", func(c *Config) { c.MaxRotation = -1 }},
		{"unknown edge mode", func(c *Config) { c.EdgeMode = wobble.EdgeMode(9) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.cfg(&cfg)
			e, err := New(cfg)
			if !errors.Is(err, errors.ErrCodeConfiguration) {
				t.Fatalf("New() err = %v, want CONFIGURATION", err)
			}
			if e != nil {
				t.Error("New() returned an engine for an invalid config")
			}
		})
	}
}

func TestProduceInvalidConfigYieldsNothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinLength, cfg.MaxLength = 5, 2

	var started bool
	observability.SetCaptchaHooks(&recordingHooks{onStart: func() { started = true }})
	defer observability.Reset()

	res, err := Produce(context.Background(), cfg)
	if !errors.Is(err, errors.ErrCodeConfiguration) {
		t.Fatalf("err = %v, want CONFIGURATION", err)
	}
	if res != nil {
		t.Error("expected no result")
	}
	if started {
		t.Error("pipeline should not start for an invalid config")
	}
}

func TestProduceLayoutOverflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinLength, cfg.MaxLength = 10, 10
	cfg.Width = 50
	cfg.MinFontSize, cfg.MaxFontSize = 40, 40

	res, err := Produce(context.Background(), cfg)
	if !errors.Is(err, errors.ErrCodeLayoutOverflow) {
		t.Fatalf("err = %v, want LAYOUT_OVERFLOW", err)
	}
	if got := errors.GetStage(err); got != errors.StageText {
		t.Errorf("stage = %q, want %q", got, errors.StageText)
	}
	if res != nil {
		t.Error("expected no partial result")
	}
}

func TestProduceStageErrors(t *testing.T) {
	boom := stderrors.New("boom")
	pool := defaultPool(t)

	tests := []struct {
		name      string
		opt       Option
		wantStage errors.Stage
		wantCode  errors.Code
	}{
		{
			"word",
			WithWordFactory(wordFunc(func(*rand.Rand) (string, error) { return "", boom })),
			errors.StageWord, errors.ErrCodeInternal,
		},
		{
			"background",
			WithBackground(GradientBackground{}),
			errors.StageBackground, errors.ErrCodeConfiguration,
		},
		{
			"text",
			WithFontSelector(missingFaces{NewRandomFontSelector(pool)}),
			errors.StageText, errors.ErrCodeResourceUnavailable,
		},
		{
			"filter",
			WithFilter(wobble.Filter{XAmplitude: math.Inf(1)}),
			errors.StageFilter, errors.ErrCodeConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(DefaultConfig(), tt.opt)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			_, err = e.Produce(context.Background())
			if got := errors.GetStage(err); got != tt.wantStage {
				t.Errorf("stage = %q, want %q (err %v)", got, tt.wantStage, err)
			}
			if got := errors.GetCode(err); got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestProduceCustomStrategies(t *testing.T) {
	var colored int
	e := mustEngine(t, DefaultConfig(),
		WithWordFactory(wordFunc(func(*rand.Rand) (string, error) { return "WXYZ", nil })),
		WithColorSelector(ColorFunc(func(int, *rand.Rand) color.Color { colored++; return color.Black })),
		WithBackground(GradientBackground{From: color.White, To: color.Gray{Y: 200}}),
	)

	res, err := e.Produce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Challenge != "WXYZ" {
		t.Errorf("challenge = %q", res.Challenge)
	}
	if colored != 4 {
		t.Errorf("color selector called %d times, want 4", colored)
	}
	if res.Image.NRGBAAt(0, 0).A != 255 {
		t.Error("gradient background should be opaque")
	}
}

func TestProduceDeterministicWithSeed(t *testing.T) {
	a := mustEngine(t, DefaultConfig(), WithRandSource(SeededRand(99)))
	b := mustEngine(t, DefaultConfig(), WithRandSource(SeededRand(99)))

	for range 5 {
		ra, err := a.Produce(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		rb, err := b.Produce(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if ra.Challenge != rb.Challenge || !bytes.Equal(ra.Image.Pix, rb.Image.Pix) {
			t.Fatal("engines with the same seed diverged")
		}
	}
}

func TestProducePNGRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		bg   color.Color
	}{
		{"transparent", nil},
		{"opaque", color.NRGBA{R: 240, G: 240, B: 230, A: 255}},
		{"translucent", color.NRGBA{R: 10, G: 120, B: 200, A: 128}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Background = tt.bg
			res, err := Produce(context.Background(), cfg, WithRandSource(SeededRand(5)))
			if err != nil {
				t.Fatal(err)
			}

			decoded, err := png.Decode(bytes.NewReader(res.PNG))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if decoded.Bounds() != res.Image.Bounds() {
				t.Fatalf("decoded bounds %v, want %v", decoded.Bounds(), res.Image.Bounds())
			}
			b := res.Image.Bounds()
			for y := b.Min.Y; y < b.Max.Y; y++ {
				for x := b.Min.X; x < b.Max.X; x++ {
					got := color.NRGBAModel.Convert(decoded.At(x, y)).(color.NRGBA)
					if want := res.Image.NRGBAAt(x, y); got != want {
						t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
					}
				}
			}
		})
	}
}

func TestProduceTransparentCorner(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ArtifactCount, cfg.LineCount = 0, 0
	res, err := Produce(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if a := res.Image.NRGBAAt(0, 0).A; a != 0 {
		t.Errorf("corner alpha = %d, want transparent", a)
	}
}

func TestProduceMarginsStayClear(t *testing.T) {
	tests := []struct {
		name     string
		rotation float64
	}{
		{"upright", 0},
		{"rotated", 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Alphabet = "WMQ@#"
			cfg.MinLength, cfg.MaxLength = 6, 6
			cfg.Width, cfg.Height = 90, 41
			cfg.MinFontSize, cfg.MaxFontSize = 10, 60
			cfg.TopMargin, cfg.BottomMargin = 4, 4
			cfg.LeftMargin, cfg.RightMargin = 3, 3
			cfg.ArtifactCount, cfg.LineCount = 0, 0
			cfg.XAmplitude, cfg.YAmplitude = 0, 0
			cfg.MaxRotation = tt.rotation

			for seed := range uint64(50) {
				e := mustEngine(t, cfg, WithRandSource(SeededRand(seed)))
				res, err := e.Produce(context.Background())
				if err != nil {
					t.Fatalf("seed %d: %v", seed, err)
				}
				inner := image.Rect(cfg.LeftMargin, cfg.TopMargin, cfg.Width-cfg.RightMargin, cfg.Height-cfg.BottomMargin)
				b := res.Image.Bounds()
				for y := b.Min.Y; y < b.Max.Y; y++ {
					for x := b.Min.X; x < b.Max.X; x++ {
						if image.Pt(x, y).In(inner) {
							continue
						}
						if a := res.Image.NRGBAAt(x, y).A; a != 0 {
							t.Fatalf("seed %d: ink alpha %d at margin pixel (%d,%d)", seed, a, x, y)
						}
					}
				}
			}
		})
	}
}

func TestProduceConcurrent(t *testing.T) {
	e := mustEngine(t, DefaultConfig())

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 4 {
				res, err := e.Produce(context.Background())
				if err != nil {
					errs <- err
					return
				}
				if len(res.Challenge) != 4 {
					errs <- stderrors.New("bad challenge " + res.Challenge)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestProduceCanceledContext(t *testing.T) {
	e := mustEngine(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Produce(ctx); !stderrors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestProduceHooks(t *testing.T) {
	h := &recordingHooks{}
	observability.SetCaptchaHooks(h)
	defer observability.Reset()

	e := mustEngine(t, DefaultConfig())
	if _, err := e.Produce(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []string{"word", "background", "text", "filter", "encode"}
	if strings.Join(h.stages, ",") != strings.Join(want, ",") {
		t.Errorf("stages = %v, want %v", h.stages, want)
	}
	if h.completed != 1 {
		t.Errorf("OnProduceComplete called %d times", h.completed)
	}
}

func TestProduceLogsChallengeAtDebugOnly(t *testing.T) {
	tests := []struct {
		level     log.Level
		wantEntry bool
	}{
		{log.DebugLevel, true},
		{log.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			var buf bytes.Buffer
			logger := log.NewWithOptions(&buf, log.Options{Level: tt.level})
			res, err := Produce(context.Background(), DefaultConfig(), WithLogger(logger))
			if err != nil {
				t.Fatal(err)
			}
			got := strings.Contains(buf.String(), res.Challenge)
			if got != tt.wantEntry {
				t.Errorf("challenge in log = %v, want %v (log %q)", got, tt.wantEntry, buf.String())
			}
		})
	}
}

func TestResultDataURI(t *testing.T) {
	res := &Result{PNG: []byte{0x89, 'P', 'N', 'G'}}
	if got, want := res.DataURI(), "data:image/png;base64,iVBORw=="; got != want {
		t.Errorf("DataURI() = %q, want %q", got, want)
	}

	var buf bytes.Buffer
	n, err := res.WriteTo(&buf)
	if err != nil || n != 4 || !bytes.Equal(buf.Bytes(), res.PNG) {
		t.Errorf("WriteTo() = %d, %v", n, err)
	}
}

func TestZeroConfig(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, errors.ErrCodeConfiguration) {
		t.Errorf("New(Config{}) err = %v, want CONFIGURATION", err)
	}

	res, err := Produce(context.Background(), Config{}, WithRandSource(SeededRand(2)))
	if err != nil {
		t.Fatalf("Produce(Config{}): %v", err)
	}
	if b := res.Image.Bounds(); b.Dx() != DefaultWidth || b.Dy() != DefaultHeight {
		t.Errorf("image is %v, want structural defaults", b)
	}
	if strings.Trim(res.Challenge, DefaultAlphabet) != "" {
		t.Errorf("challenge %q outside the default alphabet", res.Challenge)
	}

	var cfg Config
	cfg.SetDefaults()
	if cfg.ArtifactCount != 0 || cfg.XAmplitude != 0 || cfg.TopMargin != 0 {
		t.Error("zero counts, amplitudes and margins must be kept")
	}
}

// missingFaces selects normally but cannot open any face.
type missingFaces struct{ *RandomFontSelector }

func (missingFaces) Face(d FontDescriptor) (font.Face, error) {
	return nil, errors.New(errors.ErrCodeResourceUnavailable, "font %q vanished", d.Family)
}

type wordFunc func(*rand.Rand) (string, error)

func (f wordFunc) Generate(rng *rand.Rand) (string, error) { return f(rng) }

type recordingHooks struct {
	observability.NoopCaptchaHooks
	onStart   func()
	stages    []string
	completed int
}

func (h *recordingHooks) OnProduceStart(context.Context) {
	if h.onStart != nil {
		h.onStart()
	}
}

func (h *recordingHooks) OnStageComplete(_ context.Context, stage string, _ time.Duration, _ error) {
	h.stages = append(h.stages, stage)
}

func (h *recordingHooks) OnProduceComplete(context.Context, time.Duration, error) {
	h.completed++
}
