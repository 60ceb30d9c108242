package melodyscope

import (
	"net/http"

	"github.com/melodyscope/melodyscope/pkg/melodyscope/dtw"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/render"
)

type Config struct {
	DBPath         string
	TempDir        string
	SampleRate     int
	LookupEndpoint string
	APIKey         string
	MaxContourLen  int
	RenderStrategy render.Strategy
	Renderer       render.Renderer
	MelodyEnabled  bool
	Logger         Logger
	Storage        Storage
	Fingerprinter  Fingerprinter
	Lookup         Lookup
	HTTPClient     *http.Client
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

func WithLookupEndpoint(endpoint string) Option {
	return func(c *Config) {
		c.LookupEndpoint = endpoint
	}
}

func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

func WithMaxContourLen(n int) Option {
	return func(c *Config) {
		c.MaxContourLen = n
	}
}

func WithRenderStrategy(s render.Strategy) Option {
	return func(c *Config) {
		c.RenderStrategy = s
	}
}

// WithRenderer overrides the strategy-selected renderer.
func WithRenderer(r render.Renderer) Option {
	return func(c *Config) {
		c.Renderer = r
	}
}

// WithMelodyEnabled toggles the pitch/DTW pipeline. When disabled, Compare
// still records an outcome but under the "other" method.
func WithMelodyEnabled(enabled bool) Option {
	return func(c *Config) {
		c.MelodyEnabled = enabled
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

func WithFingerprinter(fp Fingerprinter) Option {
	return func(c *Config) {
		c.Fingerprinter = fp
	}
}

func WithLookup(lookup Lookup) Option {
	return func(c *Config) {
		c.Lookup = lookup
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:         "melodyscope.sqlite3",
		TempDir:        "/tmp",
		SampleRate:     22050,
		MaxContourLen:  dtw.DefaultMaxContourLen,
		RenderStrategy: render.StrategyLite,
		MelodyEnabled:  true,
		Logger:         nil,
	}
}
