package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/footprint/internal/browser"
	"github.com/nao1215/footprint/internal/browser/cdp"
	"github.com/nao1215/footprint/internal/catalog"
	"github.com/nao1215/footprint/internal/classify"
	"github.com/nao1215/footprint/internal/config"
	"github.com/nao1215/footprint/internal/consent"
	"github.com/nao1215/footprint/internal/crawl"
	"github.com/nao1215/footprint/internal/log"
	"github.com/nao1215/footprint/internal/model"
	"github.com/nao1215/footprint/internal/report"
	"github.com/nao1215/footprint/internal/session"
	"github.com/nao1215/footprint/internal/store"
	"github.com/nao1215/footprint/internal/taxonomy"
)

// topEntities is the number of tracker entities listed in the summary.
const topEntities = 10

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the site catalog in every consent mode",
		Long: `Crawl visits every site of the catalog once per consent mode.

Each visit runs in a fresh browser context: the page is loaded, the consent
banner is handled according to the mode, the page is scrolled and, after a
dwell time, all network requests, cookies and localStorage entries are
classified and committed to the database together with a checkpoint.

Examples:
  # Crawl all sites listed in sites.csv
  footprint crawl --sites sites.csv

  # Only the first 50 sites, accept and reject modes, 4 parallel sessions
  footprint crawl -s sites.csv -l 50 -m accept,reject -n 4

  # Continue an interrupted run
  footprint crawl --resume

  # Write a Markdown summary in addition to the terminal output
  footprint crawl --summary summary.md`,
		Args: cobra.NoArgs,
		RunE: runCrawlCmd,
	}

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: footprint.yaml or ~/.config/footprint/config.yaml)")
	cmd.Flags().StringP("sites", "s", "",
		"Site catalog (CSV or YAML)")
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Number of sessions running in parallel")
	cmd.Flags().StringP("modes", "m", "ignore,accept,reject",
		"Comma separated consent modes")
	cmd.Flags().IntP("limit", "l", 0,
		"Only crawl the first N sites of the catalog (0 = all)")
	cmd.Flags().BoolP("resume", "r", false,
		"Skip tasks that already completed successfully")
	cmd.Flags().Bool("headed", false,
		"Show the Chrome window")
	cmd.Flags().Bool("screenshot", false,
		"Save a viewport screenshot per session")
	cmd.Flags().String("db-dir", "",
		"Database directory (default: ~/.local/share/footprint)")
	cmd.Flags().StringP("summary", "o", "",
		"Write the run summary to a file (.md, .json or .txt)")
	cmd.Flags().Bool("no-color", false,
		"Disable colored progress output")
	cmd.Flags().Bool("log-json", false,
		"Write logs as JSON")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		return err
	}
	logger := setupLogger(os.Stderr, cfg.Verbose, logJSON)
	slog.SetDefault(logger)

	noColor, err := cmd.Flags().GetBool("no-color")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, finishing running sessions", "grace", cfg.ShutdownGrace)
			cancel()
		case <-ctx.Done():
		}
	}()

	b, err := cdp.New(ctx, cdp.Config{
		Headless: cfg.Headless,
		ExecPath: cfg.ChromePath,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("failed to close browser", "error", err)
		}
	}()

	out := cmd.OutOrStdout()
	err = runCrawl(ctx, cfg, b, newProgressPrinter(out, noColor), logger, out)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(out, "\nRun interrupted. Continue with: footprint crawl --resume")
		return nil
	}
	return err
}

// buildConfig loads the configuration file and applies the flags that were
// set explicitly.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	flags := cmd.Flags()
	if flags.Changed("sites") {
		if cfg.SitesFile, err = flags.GetString("sites"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("concurrency") {
		if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("modes") {
		raw, err := flags.GetString("modes")
		if err != nil {
			return nil, err
		}
		if cfg.Modes, err = model.ParseConsentModes(raw); err != nil {
			return nil, err
		}
	}
	if flags.Changed("limit") {
		if cfg.Limit, err = flags.GetInt("limit"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("db-dir") {
		if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("headed") {
		headed, err := flags.GetBool("headed")
		if err != nil {
			return nil, err
		}
		cfg.Headless = !headed
	}
	if flags.Changed("screenshot") {
		if cfg.Screenshot, err = flags.GetBool("screenshot"); err != nil {
			return nil, err
		}
	}
	if cfg.Resume, err = flags.GetBool("resume"); err != nil {
		return nil, err
	}
	if cfg.SummaryFile, err = flags.GetString("summary"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogger creates the run logger. Secrets in attribute values are masked.
func setupLogger(w io.Writer, verbose, asJSON bool) *slog.Logger {
	if asJSON {
		return log.NewSecureJSONLogger(w, verbose)
	}
	return log.NewSecureLogger(w, verbose)
}

// runCrawl runs one crawl over cfg.SitesFile with browser b and prints the
// summary to out.
func runCrawl(ctx context.Context, cfg *config.Config, b browser.Browser, obs crawl.Observer, logger *slog.Logger, out io.Writer) error {
	sites, err := catalog.Load(cfg.SitesFile)
	if err != nil {
		return err
	}
	sites = catalog.Limit(sites, cfg.Limit)

	tax, err := loadTaxonomy(cfg, logger)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DBDir, store.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()
	logger.Info("database opened", "path", st.Path())

	if err := st.UpsertSites(ctx, sites); err != nil {
		return err
	}

	engine := consent.NewEngine(cfg.ConsentRules,
		consent.WithStrategyTimeout(cfg.StrategyTimeout),
		consent.WithRevealSettle(cfg.RevealSettle),
	)
	runner := session.NewRunner(b, engine, classify.New(tax), st, sessionOptions(cfg, logger)...)
	orch := crawl.NewOrchestrator(runner, orchestratorOptions(cfg, st, obs, logger)...)

	sum, runErr := orch.Run(ctx, sites, cfg.Modes)
	if sum == nil {
		return runErr
	}

	stats, err := st.Stats(context.WithoutCancel(ctx), orch.RunID(), topEntities)
	if err != nil {
		logger.Error("failed to aggregate run statistics", "error", err)
	}
	rep := report.NewRunReport(sum, stats, time.Now())
	if _, err := report.NewSimpleWriter(out).Write(rep); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if cfg.SummaryFile != "" {
		if err := report.WriteFile(cfg.SummaryFile, rep); err != nil {
			return err
		}
		fmt.Fprintf(out, "Summary written to %s\n", cfg.SummaryFile)
	}
	return runErr
}

// loadTaxonomy builds the built-in tracker table extended by the configured
// files.
func loadTaxonomy(cfg *config.Config, logger *slog.Logger) (*taxonomy.Taxonomy, error) {
	tax := taxonomy.Builtin()
	if cfg.TrackersFile != "" {
		if err := tax.LoadFile(cfg.TrackersFile); err != nil {
			return nil, err
		}
	}
	if cfg.DisconnectFile != "" {
		n, err := tax.LoadDisconnectFile(cfg.DisconnectFile)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded disconnect list", "domains", n)
	}
	logger.Debug("tracker taxonomy ready", "domains", tax.Len())
	return tax, nil
}

func sessionOptions(cfg *config.Config, logger *slog.Logger) []session.Option {
	opts := []session.Option{
		session.WithTiming(session.Timing{
			PageLoadTimeout:  cfg.PageLoadTimeout,
			ConsentTimeout:   cfg.ConsentTimeout,
			BannerWait:       cfg.BannerWait,
			PostConsentDwell: cfg.PostConsentDwell,
			ScrollSteps:      cfg.ScrollSteps,
			ScrollDelay:      cfg.ScrollDelay,
			FinalDwell:       cfg.FinalDwell,
		}),
		session.WithBrowserOptions(browser.Options{
			Locale:         cfg.Locale,
			Timezone:       cfg.Timezone,
			Latitude:       cfg.Latitude,
			Longitude:      cfg.Longitude,
			ViewportWidth:  cfg.ViewportWidth,
			ViewportHeight: cfg.ViewportHeight,
			UserAgent:      cfg.UserAgent,
		}),
		session.WithPhaseHook(func(task *model.CrawlTask, p session.Phase) {
			logger.Debug("session phase", "task", task.String(), "phase", string(p))
		}),
	}
	if cfg.Screenshot {
		opts = append(opts, session.WithScreenshotDir(cfg.ScreenshotDir))
	}
	return opts
}

func orchestratorOptions(cfg *config.Config, cp crawl.CheckpointReader, obs crawl.Observer, logger *slog.Logger) []crawl.Option {
	opts := []crawl.Option{
		crawl.WithConcurrency(cfg.Concurrency),
		crawl.WithMaxAttempts(cfg.MaxAttempts),
		crawl.WithRetryBackoff(cfg.RetryBackoff),
		crawl.WithInterTaskDelay(cfg.InterTaskDelay),
		crawl.WithShutdownGrace(cfg.ShutdownGrace),
		crawl.WithPersistRetries(cfg.PersistRetries, 500*time.Millisecond),
		crawl.WithLogger(logger),
	}
	if obs != nil {
		opts = append(opts, crawl.WithObserver(obs))
	}
	if cfg.Resume {
		opts = append(opts, crawl.WithResume(cp))
	}
	return opts
}
