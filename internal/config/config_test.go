package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgnsrekt/tabshell/internal/tabs"
	"github.com/dgnsrekt/tabshell/internal/types"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v; want nil", err)
	}
	if cfg.CDPURL() != "http://127.0.0.1:9220" {
		t.Fatalf("CDPURL() = %q; want %q", cfg.CDPURL(), "http://127.0.0.1:9220")
	}
	if cfg.CloseFallback != tabs.FallbackPredecessor {
		t.Fatalf("CloseFallback = %v; want predecessor", cfg.CloseFallback)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q; want info", cfg.LogLevel)
	}
	if cfg.OpTimeout != 30*time.Second {
		t.Fatalf("OpTimeout = %v; want 30s", cfg.OpTimeout)
	}
	if len(cfg.BindFallbacks) != 2 {
		t.Fatalf("BindFallbacks = %v; want 2 entries", cfg.BindFallbacks)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TABSHELL_DEV", "true")
	t.Setenv("TABSHELL_CLOSE_FALLBACK", "first")
	t.Setenv("TABSHELL_VIEW_MARGINS", "0,36,0,0")
	t.Setenv("TABSHELL_SCALE_FACTOR", "2")
	t.Setenv("TABSHELL_OP_TIMEOUT_MS", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v; want nil", err)
	}
	if !cfg.DevMode || cfg.LogLevel != "debug" {
		t.Fatalf("DevMode, LogLevel = %v, %q; want true, debug", cfg.DevMode, cfg.LogLevel)
	}
	if cfg.CloseFallback != tabs.FallbackFirst {
		t.Fatalf("CloseFallback = %v; want first", cfg.CloseFallback)
	}
	if cfg.Margins != (types.Margins{Top: 36}) {
		t.Fatalf("Margins = %+v; want top 36", cfg.Margins)
	}
	if cfg.ScaleFactor != 2 {
		t.Fatalf("ScaleFactor = %v; want 2", cfg.ScaleFactor)
	}
	if cfg.OpTimeout != time.Second {
		t.Fatalf("OpTimeout = %v; want clamped to 1s", cfg.OpTimeout)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"TABSHELL_CLOSE_FALLBACK": "random",
		"TABSHELL_VIEW_MARGINS":   "1,2",
		"TABSHELL_SCALE_FACTOR":   "-1",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q = nil; want error", key, val)
			}
		})
	}
}

func TestParseMarginsSingleValue(t *testing.T) {
	m, err := ParseMargins("4")
	if err != nil {
		t.Fatalf("ParseMargins() = %v; want nil", err)
	}
	if m != (types.Margins{Left: 4, Top: 4, Right: 4, Bottom: 4}) {
		t.Fatalf("ParseMargins() = %+v; want 4 on every side", m)
	}
}

func TestLoadStartupTabs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "startup_tabs.yaml")
	doc := "tabs:\n  - url: https://a.test\n  - url: about:blank\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := LoadStartupTabs(path)
	if err != nil {
		t.Fatalf("LoadStartupTabs() = %v; want nil", err)
	}
	got := st.URLs()
	if len(got) != 2 || got[0] != "https://a.test" || got[1] != "about:blank" {
		t.Fatalf("URLs() = %v; want [https://a.test about:blank]", got)
	}
}

func TestLoadStartupTabsErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadStartupTabs(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("LoadStartupTabs(missing) = %v; want ErrNotExist", err)
	}

	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("tabs:\n  - title: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadStartupTabs(path); err == nil {
		t.Fatalf("LoadStartupTabs(missing url) = nil; want error")
	}
}
