package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/footprint/internal/consent"
	"github.com/nao1215/footprint/internal/model"
	"github.com/nao1215/footprint/internal/store"
)

// Default configuration values.
// Timings follow what a consent banner and the trackers behind it need on a
// typical news or e-commerce site: banners appear within a couple of seconds,
// while post-consent trackers keep loading for up to a minute.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "footprint"

	// DatabaseFile is the database file name inside DBDir.
	DatabaseFile = store.DatabaseFile

	// DefaultConcurrency is the number of sessions running in parallel.
	// Each session owns a browser context, so memory is the limiting factor.
	DefaultConcurrency = 8

	// DefaultPageLoadTimeout bounds navigation of the entry URL.
	DefaultPageLoadTimeout = 45 * time.Second

	// DefaultConsentTimeout bounds the whole consent cascade.
	DefaultConsentTimeout = 15 * time.Second

	// DefaultStrategyTimeout bounds a single consent strategy.
	DefaultStrategyTimeout = 4 * time.Second

	// DefaultRevealSettle is the wait after a "settings" click before the
	// revealed controls are searched.
	DefaultRevealSettle = 1500 * time.Millisecond

	// DefaultBannerWait is the wait between load and consent handling;
	// most CMP scripts inject their banner asynchronously.
	DefaultBannerWait = 2 * time.Second

	// DefaultPostConsentDwell is the wait after a consent click.
	DefaultPostConsentDwell = 60 * time.Second

	// DefaultScrollSteps and DefaultScrollDelay control the scroll phase.
	DefaultScrollSteps = 4
	DefaultScrollDelay = 1500 * time.Millisecond

	// DefaultFinalDwell is the wait before observations are captured.
	DefaultFinalDwell = 15 * time.Second

	// DefaultMaxAttempts is the total number of attempts per task.
	DefaultMaxAttempts = 3

	// DefaultRetryBackoff is the delay before the first retry; it doubles per attempt.
	DefaultRetryBackoff = 2 * time.Second

	// DefaultInterTaskDelay is the minimum gap between two dispatches to the same site.
	DefaultInterTaskDelay = 1 * time.Second

	// DefaultShutdownGrace is how long in-flight sessions may run after an interrupt.
	DefaultShutdownGrace = 90 * time.Second

	// DefaultPersistRetries is how often a failed commit is retried before the run aborts.
	DefaultPersistRetries = 5

	// DefaultLocale, DefaultTimezone and the geolocation emulate a Czech visitor.
	DefaultLocale    = "cs-CZ"
	DefaultTimezone  = "Europe/Prague"
	DefaultLatitude  = 50.0755
	DefaultLongitude = 14.4378

	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080

	// DefaultUserAgent is a current desktop Chrome on Windows.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// Config holds all configuration options for a crawl run.
// It is populated from defaults, the YAML file, environment variables and CLI
// flags (in that order) and passed down explicitly; there is no global state.
type Config struct {
	// Concurrency is the size of the session worker pool.
	Concurrency int

	// PageLoadTimeout bounds navigation. Exceeding it yields a timeout result.
	PageLoadTimeout time.Duration

	// ConsentTimeout bounds the consent cascade. Exceeding it is not an
	// error: the session continues without a consent action.
	ConsentTimeout time.Duration

	// StrategyTimeout bounds one consent strategy.
	StrategyTimeout time.Duration

	// RevealSettle is the wait after a reveal click.
	RevealSettle time.Duration

	// BannerWait is the wait between load and consent handling.
	BannerWait time.Duration

	// PostConsentDwell is the wait after a consent click.
	PostConsentDwell time.Duration

	// ScrollSteps is the number of half-screen scrolls; ScrollDelay the pause after each.
	ScrollSteps int
	ScrollDelay time.Duration

	// FinalDwell is the wait before capturing cookies and storage.
	FinalDwell time.Duration

	// MaxAttempts is the total number of attempts for timeout or error results.
	MaxAttempts int

	// RetryBackoff is the base delay between attempts; attempt n waits RetryBackoff * 2^(n-1).
	RetryBackoff time.Duration

	// InterTaskDelay is the minimum gap between dispatches to the same site.
	InterTaskDelay time.Duration

	// ShutdownGrace bounds how long in-flight sessions may finish after an interrupt.
	ShutdownGrace time.Duration

	// PersistRetries is the number of commit retries before the run is aborted.
	PersistRetries int

	// Browser environment.
	Locale         string
	Timezone       string
	Latitude       float64
	Longitude      float64
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string

	// Headless runs Chrome without a window.
	Headless bool

	// ChromePath overrides the Chrome executable; empty uses the system default.
	ChromePath string

	// Screenshot enables a viewport screenshot per session in ScreenshotDir.
	Screenshot    bool
	ScreenshotDir string

	// DBDir is the directory of the SQLite database.
	// Defaults to the XDG data directory (~/.local/share/footprint on Linux).
	DBDir string

	// SitesFile is the site catalog (CSV or YAML).
	SitesFile string

	// TrackersFile is an optional YAML tracker table merged over the built-in one.
	TrackersFile string

	// DisconnectFile is an optional Disconnect.me services.json.
	DisconnectFile string

	// Modes are the consent modes crawled for every site.
	Modes []model.ConsentMode

	// Limit crawls only the first Limit sites of the catalog; 0 means all.
	Limit int

	// Resume skips (site, mode) pairs that already have a successful checkpoint.
	Resume bool

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the YAML configuration file; empty triggers a search.
	ConfigFilePath string

	// SummaryFile is an optional path for a Markdown run summary.
	SummaryFile string

	// ConsentRules are the CMP definitions and phrase lists of the consent engine.
	ConsentRules consent.Rules
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Concurrency:      DefaultConcurrency,
		PageLoadTimeout:  DefaultPageLoadTimeout,
		ConsentTimeout:   DefaultConsentTimeout,
		StrategyTimeout:  DefaultStrategyTimeout,
		RevealSettle:     DefaultRevealSettle,
		BannerWait:       DefaultBannerWait,
		PostConsentDwell: DefaultPostConsentDwell,
		ScrollSteps:      DefaultScrollSteps,
		ScrollDelay:      DefaultScrollDelay,
		FinalDwell:       DefaultFinalDwell,
		MaxAttempts:      DefaultMaxAttempts,
		RetryBackoff:     DefaultRetryBackoff,
		InterTaskDelay:   DefaultInterTaskDelay,
		ShutdownGrace:    DefaultShutdownGrace,
		PersistRetries:   DefaultPersistRetries,
		Locale:           DefaultLocale,
		Timezone:         DefaultTimezone,
		Latitude:         DefaultLatitude,
		Longitude:        DefaultLongitude,
		ViewportWidth:    DefaultViewportWidth,
		ViewportHeight:   DefaultViewportHeight,
		UserAgent:        DefaultUserAgent,
		Headless:         true,
		ScreenshotDir:    filepath.Join(XDGDataDir(), "screenshots"),
		DBDir:            XDGDataDir(),
		Modes:            model.AllConsentModes(),
		ConsentRules:     consent.DefaultRules(),
	}
}

// XDGDataDir returns the XDG data directory for footprint.
// On Linux: ~/.local/share/footprint
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for footprint.
// On Linux: ~/.config/footprint
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// violated rule as a sentinel error.
func (c *Config) Validate() error {
	if c.SitesFile == "" {
		return ErrNoSites
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.PageLoadTimeout <= 0 || c.ConsentTimeout <= 0 || c.StrategyTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if c.RevealSettle < 0 || c.BannerWait < 0 || c.PostConsentDwell < 0 ||
		c.ScrollDelay < 0 || c.FinalDwell < 0 || c.RetryBackoff < 0 ||
		c.InterTaskDelay < 0 || c.ShutdownGrace < 0 || c.ScrollSteps < 0 {
		return ErrInvalidDelay
	}
	if len(c.Modes) == 0 {
		return ErrNoModes
	}
	for _, m := range c.Modes {
		if !m.Valid() {
			return ErrNoModes
		}
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return ErrInvalidViewport
	}
	if c.Limit < 0 {
		return ErrInvalidLimit
	}
	if c.PersistRetries < 0 {
		return ErrInvalidLimit
	}
	return nil
}

// DBPath returns the SQLite database file path.
func (c *Config) DBPath() string {
	return filepath.Join(c.DBDir, DatabaseFile)
}
