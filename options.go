package lectern

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tsawler/lectern/geom"
	"github.com/tsawler/lectern/logging"
	"github.com/tsawler/lectern/pagecache"
	"github.com/tsawler/lectern/scrollsync"
)

// BufferRadius sets how many pages are loaded ahead and behind the
// current page in each layout mode.
type BufferRadius struct {
	Single     int `json:"single"`
	TwoPage    int `json:"twoPage"`
	Continuous int `json:"continuous"`
}

// Config holds the host-tunable viewer settings. The zero value of any
// field selects its default, so hosts can set only what they care about.
// The JSON field names match the configuration object hosts persist.
type Config struct {
	// ScrollSensitivity multiplies incoming wheel deltas.
	ScrollSensitivity float64 `json:"scrollSensitivity"`

	// ScrollThreshold is the accumulated wheel distance, in pixels,
	// that flips a page in single-page mode.
	ScrollThreshold float64 `json:"scrollThreshold"`

	// ScrollDebounceMs is the idle window after which a partial wheel
	// accumulation is discarded.
	ScrollDebounceMs int `json:"scrollDebounceMs"`

	// EnableSmoothScrolling asks the host to animate programmatic
	// scroll moves.
	EnableSmoothScrolling bool `json:"enableSmoothScrolling"`

	// InvertWheel reverses the wheel scroll direction.
	InvertWheel bool `json:"invertWheel"`

	// ZoomStep is the factor applied per zoom in/out step.
	ZoomStep float64 `json:"zoomStep"`

	// BufferRadius tunes page preloading per layout mode.
	BufferRadius BufferRadius `json:"bufferRadius"`

	// FetchWorkers bounds how many page fetches run at once.
	FetchWorkers int `json:"fetchWorkers,omitempty"`

	// MaxCachedPages is a hard cap on retained page handles. Zero
	// means no cap beyond the buffer-radius retention.
	MaxCachedPages int `json:"maxCachedPages,omitempty"`
}

// DefaultConfig returns the settings used when the host supplies none.
func DefaultConfig() Config {
	return Config{
		ScrollSensitivity:     1.0,
		ScrollThreshold:       scrollsync.DefaultThresholdPx,
		ScrollDebounceMs:      200,
		EnableSmoothScrolling: true,
		InvertWheel:           false,
		ZoomStep:              geom.DefaultZoomStep,
		BufferRadius:          BufferRadius{Single: 1, TwoPage: 3, Continuous: 4},
		FetchWorkers:          pagecache.DefaultWorkers,
	}
}

// withDefaults fills zero-valued fields from DefaultConfig. Booleans are
// taken as given.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ScrollSensitivity <= 0 {
		c.ScrollSensitivity = def.ScrollSensitivity
	}
	if c.ScrollThreshold <= 0 {
		c.ScrollThreshold = def.ScrollThreshold
	}
	if c.ScrollDebounceMs <= 0 {
		c.ScrollDebounceMs = def.ScrollDebounceMs
	}
	if c.ZoomStep <= 1 {
		c.ZoomStep = def.ZoomStep
	}
	if c.BufferRadius.Single <= 0 {
		c.BufferRadius.Single = def.BufferRadius.Single
	}
	if c.BufferRadius.TwoPage <= 0 {
		c.BufferRadius.TwoPage = def.BufferRadius.TwoPage
	}
	if c.BufferRadius.Continuous <= 0 {
		c.BufferRadius.Continuous = def.BufferRadius.Continuous
	}
	if c.FetchWorkers <= 0 {
		c.FetchWorkers = def.FetchWorkers
	}
	if c.MaxCachedPages < 0 {
		c.MaxCachedPages = 0
	}
	return c
}

// ParseConfig reads a JSON configuration object. Absent fields keep
// their defaults; unknown fields are ignored.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg.withDefaults(), nil
}

// scrollConfig translates the host settings for the scroll controller.
func (c Config) scrollConfig() scrollsync.Config {
	return scrollsync.Config{
		Sensitivity: c.ScrollSensitivity,
		ThresholdPx: c.ScrollThreshold,
		Debounce:    time.Duration(c.ScrollDebounceMs) * time.Millisecond,
		Invert:      c.InvertWheel,
		ZoomStep:    c.ZoomStep,
		Smooth:      c.EnableSmoothScrolling,
	}
}

// cacheConfig translates the host settings for the page cache.
func (c Config) cacheConfig() pagecache.Config {
	return pagecache.Config{
		Workers:  c.FetchWorkers,
		MaxPages: c.MaxCachedPages,
	}
}

// radiusFor picks the preload radius for a layout mode.
func (c Config) radiusFor(mode scrollsync.Mode) int {
	switch mode {
	case scrollsync.ModeTwoPage:
		return c.BufferRadius.TwoPage
	case scrollsync.ModeContinuous:
		return c.BufferRadius.Continuous
	default:
		return c.BufferRadius.Single
	}
}

// Option configures a Session at open time.
type Option func(*Session)

// WithPassword supplies the password for an encrypted document.
func WithPassword(password string) Option {
	return func(s *Session) {
		s.password = password
	}
}

// WithName sets the display name reported by Session.Name. Open derives
// it from the file name; callers of OpenBytes set it here.
func WithName(name string) Option {
	return func(s *Session) {
		s.name = name
	}
}

// WithConfig replaces the default viewer settings.
func WithConfig(cfg Config) Option {
	return func(s *Session) {
		s.cfg = cfg.withDefaults()
	}
}

// WithLogger routes engine diagnostics to the given logger.
func WithLogger(log logging.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithHost attaches the view adapter that receives display commands.
func WithHost(h Host) Option {
	return func(s *Session) {
		s.host = h
	}
}

// WithRecognizer enables OCR fallback for pages without embedded text.
func WithRecognizer(r TextRecognizer) Option {
	return func(s *Session) {
		s.recognizer = r
	}
}

// WithMode sets the initial layout mode.
func WithMode(m scrollsync.Mode) Option {
	return func(s *Session) {
		s.initialMode = m
	}
}
