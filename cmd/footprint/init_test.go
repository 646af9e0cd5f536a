package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/footprint/internal/config"
	"github.com/nao1215/footprint/internal/model"
)

// TestNewInitCmd tests the init command flags.
func TestNewInitCmd(t *testing.T) {
	t.Parallel()

	cmd := NewInitCmd()

	t.Run("has output flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("output")
		if flag == nil {
			t.Fatal("expected output flag")
		}
		if flag.Shorthand != "o" {
			t.Errorf("expected shorthand 'o', got %q", flag.Shorthand)
		}
		if flag.DefValue != config.DefaultConfigFile {
			t.Errorf("expected default %q, got %q", config.DefaultConfigFile, flag.DefValue)
		}
	})

	t.Run("has force flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("force")
		if flag == nil {
			t.Fatal("expected force flag")
		}
		if flag.Shorthand != "f" {
			t.Errorf("expected shorthand 'f', got %q", flag.Shorthand)
		}
	})
}

func execInit(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := NewInitCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// TestRunInitCmd tests writing the configuration template.
func TestRunInitCmd(t *testing.T) {
	t.Parallel()

	t.Run("creates config file in nested directory", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "conf", "footprint.yaml")

		out, err := execInit(t, "-o", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, path) {
			t.Errorf("expected output to mention %s, got %q", path, out)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("expected config file: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
		}
	})

	t.Run("refuses to overwrite without force", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "footprint.yaml")
		if err := os.WriteFile(path, []byte("keep"), 0600); err != nil {
			t.Fatal(err)
		}

		if _, err := execInit(t, "-o", path); err == nil {
			t.Fatal("expected error for existing file")
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "keep" {
			t.Error("existing file was modified")
		}
	})

	t.Run("overwrites with force", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "footprint.yaml")
		if err := os.WriteFile(path, []byte("old"), 0600); err != nil {
			t.Fatal(err)
		}

		if _, err := execInit(t, "-o", path, "-f"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(got), "sites_file:") {
			t.Error("expected template content")
		}
	})

	t.Run("template is a valid configuration", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "footprint.yaml")
		if _, err := execInit(t, "-o", path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		f, err := config.LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}
		cfg := config.NewConfig()
		if err := cfg.ApplyFile(f); err != nil {
			t.Fatalf("ApplyFile() error = %v", err)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
		if cfg.SitesFile != "sites.csv" {
			t.Errorf("SitesFile = %q", cfg.SitesFile)
		}
		if len(cfg.Modes) != 3 || cfg.Modes[0] != model.ConsentIgnore {
			t.Errorf("Modes = %v", cfg.Modes)
		}
		if cfg.RevealSettle != config.DefaultRevealSettle {
			t.Errorf("RevealSettle = %v, want %v", cfg.RevealSettle, config.DefaultRevealSettle)
		}
	})
}
