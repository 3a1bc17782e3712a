// Package config loads the wobblecap TOML configuration file and turns it into
// engine, store and issuer settings.
package config

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/wobblecap/wobblecap/pkg/captcha"
	"github.com/wobblecap/wobblecap/pkg/captcha/wobble"
	"github.com/wobblecap/wobblecap/pkg/errors"
	"github.com/wobblecap/wobblecap/pkg/fonts"
	"github.com/wobblecap/wobblecap/pkg/issuer"
	"github.com/wobblecap/wobblecap/pkg/session"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// =============================================================================
// Config
// =============================================================================

// Config is the whole configuration file.
type Config struct {
	Captcha CaptchaConfig `toml:"captcha"`
	Fonts   FontsConfig   `toml:"fonts"`
	Store   StoreConfig   `toml:"store"`
	Server  ServerConfig  `toml:"server"`
}

// CaptchaConfig mirrors captcha.Config with file-friendly types.
type CaptchaConfig struct {
	Alphabet      string          `toml:"alphabet"`
	MinLength     int             `toml:"min_length"`
	MaxLength     int             `toml:"max_length"`
	MinFontSize   int             `toml:"min_font_size"`
	MaxFontSize   int             `toml:"max_font_size"`
	Width         int             `toml:"width"`
	Height        int             `toml:"height"`
	TopMargin     int             `toml:"top_margin"`
	BottomMargin  int             `toml:"bottom_margin"`
	LeftMargin    int             `toml:"left_margin"`
	RightMargin   int             `toml:"right_margin"`
	MaxRotation   float64         `toml:"max_rotation"`
	Background    Color           `toml:"background"`
	Foreground    Color           `toml:"foreground"`
	Palette       []Color         `toml:"palette"`
	ArtifactColor Color           `toml:"artifact_color"`
	ArtifactCount int             `toml:"artifact_count"`
	LineCount     int             `toml:"line_count"`
	XAmplitude    float64         `toml:"x_amplitude"`
	YAmplitude    float64         `toml:"y_amplitude"`
	EdgeMode      wobble.EdgeMode `toml:"edge_mode"`
}

// FontsConfig selects typefaces.
type FontsConfig struct {
	// Embedded includes the Go font families compiled into the binary.
	Embedded bool `toml:"embedded"`
	// System lists font files to resolve on the host, e.g. "DejaVuSans.ttf".
	System []string `toml:"system"`
	// Families restricts selection to these families. Empty means all.
	Families []string `toml:"families"`
}

// StoreConfig selects and configures the challenge store.
type StoreConfig struct {
	Backend         string   `toml:"backend"`
	Dir             string   `toml:"dir"`
	RedisAddr       string   `toml:"redis_addr"`
	RedisPassword   string   `toml:"redis_password"`
	RedisDB         int      `toml:"redis_db"`
	RedisPrefix     string   `toml:"redis_prefix"`
	RedisAttempts   int      `toml:"redis_connect_attempts"`
	RedisDelay      Duration `toml:"redis_connect_delay"`
	TTL             Duration `toml:"ttl"`
	Name            string   `toml:"name"`
	Secret          string   `toml:"secret"`
	CaseInsensitive bool     `toml:"case_insensitive"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string   `toml:"addr"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	CleanupInterval Duration `toml:"cleanup_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	d := captcha.DefaultConfig()
	return Config{
		Captcha: CaptchaConfig{
			Alphabet:      d.Alphabet,
			MinLength:     d.MinLength,
			MaxLength:     d.MaxLength,
			MinFontSize:   d.MinFontSize,
			MaxFontSize:   d.MaxFontSize,
			Width:         d.Width,
			Height:        d.Height,
			TopMargin:     d.TopMargin,
			BottomMargin:  d.BottomMargin,
			LeftMargin:    d.LeftMargin,
			RightMargin:   d.RightMargin,
			MaxRotation:   d.MaxRotation,
			Foreground:    ColorOf(d.Foreground),
			ArtifactColor: ColorOf(d.ArtifactColor),
			ArtifactCount: d.ArtifactCount,
			LineCount:     d.LineCount,
			XAmplitude:    d.XAmplitude,
			YAmplitude:    d.YAmplitude,
			EdgeMode:      d.EdgeMode,
		},
		Fonts: FontsConfig{Embedded: true},
		Store: StoreConfig{
			Backend:       BackendMemory,
			RedisAttempts: 5,
			RedisDelay:    Duration{session.DefaultConnectDelay},
			TTL:           Duration{session.DefaultTTL},
			Name:          session.DefaultName,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration{5 * time.Second},
			WriteTimeout:    Duration{10 * time.Second},
			ShutdownTimeout: Duration{10 * time.Second},
			CleanupInterval: Duration{time.Minute},
		},
	}
}

// Load reads a TOML file on top of the defaults. Keys the file sets override
// the defaults; unknown keys are an error.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeConfiguration, err, "open config")
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses TOML from r on top of the defaults.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeConfiguration, err, "parse config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, errors.New(errors.ErrCodeConfiguration, "unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Write encodes cfg as TOML.
func Write(w io.Writer, cfg Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// Validate checks everything except the captcha section, which the engine
// validates itself.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendFile:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return errors.New(errors.ErrCodeConfiguration, "store.redis_addr is required for the redis backend")
		}
	default:
		return errors.New(errors.ErrCodeConfiguration, "unknown store backend %q", c.Store.Backend)
	}
	if c.Store.TTL.Duration <= 0 {
		return errors.New(errors.ErrCodeConfiguration, "store.ttl must be positive")
	}
	if !c.Fonts.Embedded && len(c.Fonts.System) == 0 {
		return errors.New(errors.ErrCodeResourceUnavailable, "no fonts configured: enable fonts.embedded or list fonts.system")
	}
	cc := c.CaptchaConfig()
	return cc.Validate()
}

// =============================================================================
// Builders
// =============================================================================

// CaptchaConfig converts the captcha section.
func (c Config) CaptchaConfig() captcha.Config {
	cc := c.Captcha
	return captcha.Config{
		Alphabet:      cc.Alphabet,
		MinLength:     cc.MinLength,
		MaxLength:     cc.MaxLength,
		MinFontSize:   cc.MinFontSize,
		MaxFontSize:   cc.MaxFontSize,
		Width:         cc.Width,
		Height:        cc.Height,
		TopMargin:     cc.TopMargin,
		BottomMargin:  cc.BottomMargin,
		LeftMargin:    cc.LeftMargin,
		RightMargin:   cc.RightMargin,
		MaxRotation:   cc.MaxRotation,
		Background:    cc.Background.Value(),
		Foreground:    cc.Foreground.Value(),
		ArtifactColor: cc.ArtifactColor.Value(),
		ArtifactCount: cc.ArtifactCount,
		LineCount:     cc.LineCount,
		XAmplitude:    cc.XAmplitude,
		YAmplitude:    cc.YAmplitude,
		EdgeMode:      cc.EdgeMode,
	}
}

// FontPool builds the font pool from the fonts section.
func (c Config) FontPool() (*fonts.Pool, error) {
	if c.Fonts.Embedded && len(c.Fonts.System) == 0 {
		return fonts.Default()
	}
	var sources []fonts.Source
	if c.Fonts.Embedded {
		sources = append(sources, fonts.Embedded()...)
	}
	if len(c.Fonts.System) > 0 {
		sys, err := fonts.System(c.Fonts.System...)
		if err != nil {
			return nil, err
		}
		sources = append(sources, sys...)
	}
	return fonts.NewPool(sources...)
}

// NewEngine builds a captcha engine from the captcha and fonts sections.
func (c Config) NewEngine(logger *log.Logger, extra ...captcha.Option) (*captcha.Engine, error) {
	pool, err := c.FontPool()
	if err != nil {
		return nil, err
	}
	opts := []captcha.Option{
		captcha.WithFontSelector(&captcha.RandomFontSelector{Pool: pool, Families: c.Fonts.Families}),
		captcha.WithLogger(logger),
	}
	if len(c.Captcha.Palette) > 0 {
		palette := make(captcha.PaletteColor, 0, len(c.Captcha.Palette))
		for _, col := range c.Captcha.Palette {
			if v := col.Value(); v != nil {
				palette = append(palette, v)
			}
		}
		opts = append(opts, captcha.WithColorSelector(palette))
	}
	return captcha.New(c.CaptchaConfig(), append(opts, extra...)...)
}

// OpenStore opens the configured challenge store.
func (c Config) OpenStore(ctx context.Context) (session.Store, error) {
	switch c.Store.Backend {
	case BackendFile:
		return session.NewFileStore(c.Store.Dir)
	case BackendRedis:
		return session.DialRedis(ctx, session.RedisConfig{
			Addr:     c.Store.RedisAddr,
			Password: c.Store.RedisPassword,
			DB:       c.Store.RedisDB,
			Prefix:   c.Store.RedisPrefix,

			ConnectAttempts: c.Store.RedisAttempts,
			ConnectDelay:    c.Store.RedisDelay.Duration,
		})
	default:
		return session.NewMemoryStore(), nil
	}
}

// IssuerOptions converts the store section into issuer options.
func (c Config) IssuerOptions(logger *log.Logger) []issuer.Option {
	opts := []issuer.Option{
		issuer.WithTTL(c.Store.TTL.Duration),
		issuer.WithName(c.Store.Name),
		issuer.WithCaseInsensitive(c.Store.CaseInsensitive),
		issuer.WithLogger(logger),
	}
	if c.Store.Secret != "" {
		opts = append(opts, issuer.WithKey([]byte(c.Store.Secret)))
	}
	return opts
}

// =============================================================================
// Duration
// =============================================================================

// Duration is a time.Duration written as a Go duration string ("5m", "10s").
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfiguration, err, "invalid duration %q", text)
	}
	d.Duration = v
	return nil
}
