package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/nao1215/footprint/internal/consent"
	"github.com/nao1215/footprint/internal/model"
)

// DefaultConfigFile is the configuration file searched in the current directory.
const DefaultConfigFile = "footprint.yaml"

// File is the YAML configuration file. Every field can also be set through a
// FOOTPRINT_* environment variable, which takes precedence over the file.
//
// LoadFile and LoadEnv decode over a File filled with the defaults (see
// Config.File), so numbers, durations and switches left out keep their
// default while an explicit 0 is applied. Empty strings and lists mean "keep
// the default".
type File struct {
	SitesFile string          `yaml:"sites_file" env:"FOOTPRINT_SITES"`
	Crawler   CrawlerSection  `yaml:"crawler"`
	Browser   BrowserSection  `yaml:"browser"`
	Database  DatabaseSection `yaml:"database"`
	Trackers  TrackersSection `yaml:"trackers"`
	Consent   ConsentSection  `yaml:"consent"`
}

// CrawlerSection configures scheduling, retries and timings.
type CrawlerSection struct {
	Concurrency      int           `yaml:"concurrency" env:"FOOTPRINT_CONCURRENCY"`
	Modes            []string      `yaml:"modes" env:"FOOTPRINT_MODES"`
	Limit            int           `yaml:"limit" env:"FOOTPRINT_LIMIT"`
	MaxAttempts      int           `yaml:"max_attempts" env:"FOOTPRINT_MAX_ATTEMPTS"`
	RetryBackoff     time.Duration `yaml:"retry_backoff" env:"FOOTPRINT_RETRY_BACKOFF"`
	InterTaskDelay   time.Duration `yaml:"inter_task_delay" env:"FOOTPRINT_INTER_TASK_DELAY"`
	ShutdownGrace    time.Duration `yaml:"shutdown_grace" env:"FOOTPRINT_SHUTDOWN_GRACE"`
	PersistRetries   int           `yaml:"persist_retries" env:"FOOTPRINT_PERSIST_RETRIES"`
	PageLoadTimeout  time.Duration `yaml:"page_load_timeout" env:"FOOTPRINT_PAGE_LOAD_TIMEOUT"`
	ConsentTimeout   time.Duration `yaml:"consent_timeout" env:"FOOTPRINT_CONSENT_TIMEOUT"`
	StrategyTimeout  time.Duration `yaml:"strategy_timeout" env:"FOOTPRINT_STRATEGY_TIMEOUT"`
	RevealSettle     time.Duration `yaml:"reveal_settle" env:"FOOTPRINT_REVEAL_SETTLE"`
	BannerWait       time.Duration `yaml:"banner_wait" env:"FOOTPRINT_BANNER_WAIT"`
	PostConsentDwell time.Duration `yaml:"post_consent_dwell" env:"FOOTPRINT_POST_CONSENT_DWELL"`
	ScrollSteps      int           `yaml:"scroll_steps" env:"FOOTPRINT_SCROLL_STEPS"`
	ScrollDelay      time.Duration `yaml:"scroll_delay" env:"FOOTPRINT_SCROLL_DELAY"`
	FinalDwell       time.Duration `yaml:"final_dwell" env:"FOOTPRINT_FINAL_DWELL"`
}

// BrowserSection configures Chrome and the emulated visitor.
type BrowserSection struct {
	Headed         bool    `yaml:"headed" env:"FOOTPRINT_HEADED"`
	ChromePath     string  `yaml:"chrome_path" env:"FOOTPRINT_CHROME_PATH"`
	Locale         string  `yaml:"locale" env:"FOOTPRINT_LOCALE"`
	Timezone       string  `yaml:"timezone" env:"FOOTPRINT_TIMEZONE"`
	Latitude       float64 `yaml:"latitude" env:"FOOTPRINT_LATITUDE"`
	Longitude      float64 `yaml:"longitude" env:"FOOTPRINT_LONGITUDE"`
	ViewportWidth  int     `yaml:"viewport_width" env:"FOOTPRINT_VIEWPORT_WIDTH"`
	ViewportHeight int     `yaml:"viewport_height" env:"FOOTPRINT_VIEWPORT_HEIGHT"`
	UserAgent      string  `yaml:"user_agent" env:"FOOTPRINT_USER_AGENT"`
	Screenshot     bool    `yaml:"screenshot" env:"FOOTPRINT_SCREENSHOT"`
	ScreenshotDir  string  `yaml:"screenshot_dir" env:"FOOTPRINT_SCREENSHOT_DIR"`
}

// DatabaseSection configures the result store.
type DatabaseSection struct {
	Dir string `yaml:"dir" env:"FOOTPRINT_DB_DIR"`
}

// TrackersSection names additional tracker tables.
type TrackersSection struct {
	File       string `yaml:"file" env:"FOOTPRINT_TRACKERS"`
	Disconnect string `yaml:"disconnect" env:"FOOTPRINT_DISCONNECT"`
}

// ConsentSection extends the built-in consent rules.
// CMPs and phrases are tried before the built-in ones. ReplacePhrases drops
// the built-in phrase lists that the file overrides.
type ConsentSection struct {
	CMPs            []consent.CMP        `yaml:"cmps"`
	APIs            []consent.ConsentAPI `yaml:"apis"`
	AcceptPhrases   []string      `yaml:"accept_phrases"`
	RejectPhrases   []string      `yaml:"reject_phrases"`
	RevealPhrases   []string      `yaml:"reveal_phrases"`
	ReplacePhrases  bool          `yaml:"replace_phrases"`
	BannerSelectors []string      `yaml:"banner_selectors"`
	ShadowHosts     []string      `yaml:"shadow_hosts"`
}

// LoadFile reads the YAML file at path and overlays FOOTPRINT_* environment
// variables. If the file does not exist, it returns ErrConfigNotFound.
func LoadFile(path string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	f := NewConfig().File()
	if err := cleanenv.ReadConfig(path, f); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return f, nil
}

// LoadEnv reads FOOTPRINT_* environment variables only.
func LoadEnv() (*File, error) {
	f := NewConfig().File()
	if err := cleanenv.ReadEnv(f); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return f, nil
}

// File returns the file form of c's scalar settings. Strings, modes and
// consent rules are left empty; ApplyFile keeps them unless the file sets
// them.
func (c *Config) File() *File {
	return &File{
		Crawler: CrawlerSection{
			Concurrency:      c.Concurrency,
			Limit:            c.Limit,
			MaxAttempts:      c.MaxAttempts,
			RetryBackoff:     c.RetryBackoff,
			InterTaskDelay:   c.InterTaskDelay,
			ShutdownGrace:    c.ShutdownGrace,
			PersistRetries:   c.PersistRetries,
			PageLoadTimeout:  c.PageLoadTimeout,
			ConsentTimeout:   c.ConsentTimeout,
			StrategyTimeout:  c.StrategyTimeout,
			RevealSettle:     c.RevealSettle,
			BannerWait:       c.BannerWait,
			PostConsentDwell: c.PostConsentDwell,
			ScrollSteps:      c.ScrollSteps,
			ScrollDelay:      c.ScrollDelay,
			FinalDwell:       c.FinalDwell,
		},
		Browser: BrowserSection{
			Headed:         !c.Headless,
			Latitude:       c.Latitude,
			Longitude:      c.Longitude,
			ViewportWidth:  c.ViewportWidth,
			ViewportHeight: c.ViewportHeight,
			Screenshot:     c.Screenshot,
		},
	}
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for footprint.yaml in the current directory
// 3. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file, or empty string if not found.
// An explicit configPath is returned even when missing so that LoadFile can
// report it.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	candidate := DefaultConfigPath()
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

// DefaultConfigPath returns the per-user configuration file path.
// On Linux: ~/.config/footprint/config.yaml
func DefaultConfigPath() string {
	return filepath.Join(XDGConfigDir(), "config.yaml")
}

// Load builds a Config from defaults, the configuration file (if any) and the
// environment. Command line flags are applied by the caller afterwards.
func Load(configPath string) (*Config, error) {
	cfg := NewConfig()

	var (
		f   *File
		err error
	)
	if path := FindConfigFile(configPath); path != "" {
		f, err = LoadFile(path)
		cfg.ConfigFilePath = path
	} else {
		f, err = LoadEnv()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyFile(f); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyFile sets c from f. Numbers, durations and switches are copied as
// they are, so f should start from c.File() or come from LoadFile or LoadEnv.
// Empty strings and lists keep the current value.
func (c *Config) ApplyFile(f *File) error {
	if f == nil {
		return nil
	}
	setString(&c.SitesFile, f.SitesFile)

	cr := f.Crawler
	c.Concurrency = cr.Concurrency
	c.Limit = cr.Limit
	c.MaxAttempts = cr.MaxAttempts
	c.PersistRetries = cr.PersistRetries
	c.ScrollSteps = cr.ScrollSteps
	c.RetryBackoff = cr.RetryBackoff
	c.InterTaskDelay = cr.InterTaskDelay
	c.ShutdownGrace = cr.ShutdownGrace
	c.PageLoadTimeout = cr.PageLoadTimeout
	c.ConsentTimeout = cr.ConsentTimeout
	c.StrategyTimeout = cr.StrategyTimeout
	c.RevealSettle = cr.RevealSettle
	c.BannerWait = cr.BannerWait
	c.PostConsentDwell = cr.PostConsentDwell
	c.ScrollDelay = cr.ScrollDelay
	c.FinalDwell = cr.FinalDwell
	if len(cr.Modes) > 0 {
		modes, err := model.ParseConsentModes(strings.Join(cr.Modes, ","))
		if err != nil {
			return err
		}
		c.Modes = modes
	}

	b := f.Browser
	c.Headless = !b.Headed
	c.Screenshot = b.Screenshot
	setString(&c.ChromePath, b.ChromePath)
	setString(&c.Locale, b.Locale)
	setString(&c.Timezone, b.Timezone)
	setString(&c.UserAgent, b.UserAgent)
	setString(&c.ScreenshotDir, b.ScreenshotDir)
	c.ViewportWidth = b.ViewportWidth
	c.ViewportHeight = b.ViewportHeight
	c.Latitude, c.Longitude = b.Latitude, b.Longitude

	setString(&c.DBDir, f.Database.Dir)
	setString(&c.TrackersFile, f.Trackers.File)
	setString(&c.DisconnectFile, f.Trackers.Disconnect)

	c.ConsentRules = mergeRules(c.ConsentRules, f.Consent)
	return nil
}

func mergeRules(r consent.Rules, s ConsentSection) consent.Rules {
	if len(s.CMPs) > 0 {
		r.CMPs = append(append([]consent.CMP(nil), s.CMPs...), r.CMPs...)
	}
	if len(s.APIs) > 0 {
		r.APIs = append(append([]consent.ConsentAPI(nil), s.APIs...), r.APIs...)
	}
	phrases := func(base, extra []string) []string {
		if len(extra) == 0 {
			return base
		}
		if s.ReplacePhrases {
			return extra
		}
		return append(append([]string(nil), extra...), base...)
	}
	r.AcceptPhrases = phrases(r.AcceptPhrases, s.AcceptPhrases)
	r.RejectPhrases = phrases(r.RejectPhrases, s.RejectPhrases)
	r.RevealPhrases = phrases(r.RevealPhrases, s.RevealPhrases)
	r.BannerSelectors = append(r.BannerSelectors, s.BannerSelectors...)
	r.ShadowHosts = append(r.ShadowHosts, s.ShadowHosts...)
	return r
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

