package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/footprint/internal/browser/fixture"
	"github.com/nao1215/footprint/internal/config"
	"github.com/nao1215/footprint/internal/consent"
	"github.com/nao1215/footprint/internal/model"
)

// NewDetectCmd creates the detect command.
func NewDetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect <file.html>",
		Short: "Run consent detection against a saved HTML page",
		Long: `Detect runs the consent engine against a saved HTML document without
starting a browser.

Use it to check consent-platform definitions and button phrases from the
configuration file. Inline <iframe srcdoc> documents and declarative shadow
roots (<template shadowrootmode>) are searched like live frames and shadow
trees. The clicked controls are listed in click order.

Examples:
  # Which strategy finds the banner and what would "reject" click?
  footprint detect page.html --mode reject

  # Use the CMP definitions of a configuration file, print JSON
  footprint detect page.html -c footprint.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: runDetectCmd,
	}

	cmd.Flags().StringP("mode", "m", string(model.ConsentAccept),
		"Consent mode (ignore, accept, reject)")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file with additional consent rules")
	cmd.Flags().String("url", "",
		"URL the document pretends to be served from (default: file URL of the document)")
	cmd.Flags().BoolP("json", "j", false,
		"Print the result as JSON")

	return cmd
}

// detectResult is the JSON output of the detect command.
type detectResult struct {
	URL    string            `json:"url"`
	Mode   model.ConsentMode `json:"mode"`
	Banner model.BannerMatch `json:"banner"`
	Clicks []string          `json:"clicks"`
}

func runDetectCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	rawMode, err := flags.GetString("mode")
	if err != nil {
		return err
	}
	mode, err := model.ParseConsentMode(rawMode)
	if err != nil {
		return err
	}
	configPath, err := flags.GetString("config")
	if err != nil {
		return err
	}
	pageURL, err := flags.GetString("url")
	if err != nil {
		return err
	}
	asJSON, err := flags.GetBool("json")
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	res, err := detect(cmd.Context(), args[0], pageURL, mode, cfg)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printDetectResult(cmd.OutOrStdout(), res)
	return nil
}

// detect loads the document at path and runs the consent engine on it.
func detect(ctx context.Context, path, pageURL string, mode model.ConsentMode, cfg *config.Config) (*detectResult, error) {
	document, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if pageURL == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		pageURL = "file://" + filepath.ToSlash(abs)
	}

	page, err := fixture.NewPage(string(document), pageURL)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.ConsentTimeout)
	defer cancel()

	// A static document settles immediately.
	engine := consent.NewEngine(cfg.ConsentRules,
		consent.WithStrategyTimeout(cfg.StrategyTimeout),
		consent.WithRevealSettle(10*time.Millisecond),
	)
	match, err := engine.Handle(ctx, page, mode)
	if err != nil {
		return nil, err
	}
	return &detectResult{
		URL:    pageURL,
		Mode:   mode,
		Banner: match,
		Clicks: page.Clicks(),
	}, nil
}

func printDetectResult(w io.Writer, res *detectResult) {
	b := res.Banner
	fmt.Fprintf(w, "URL:       %s\n", res.URL)
	fmt.Fprintf(w, "Mode:      %s\n", res.Mode)
	fmt.Fprintf(w, "Detected:  %t\n", b.Detected)
	fmt.Fprintf(w, "Strategy:  %s\n", b.Strategy)
	if b.CMP != "" {
		fmt.Fprintf(w, "CMP:       %s\n", b.CMP)
	}
	fmt.Fprintf(w, "Action:    %t\n", b.ActionTaken)
	if b.ButtonText != "" {
		fmt.Fprintf(w, "Button:    %q\n", b.ButtonText)
	}
	if b.Revealed {
		fmt.Fprintln(w, "Revealed:  true")
	}
	for i, c := range res.Clicks {
		fmt.Fprintf(w, "Click %d:   %q\n", i+1, c)
	}
}
