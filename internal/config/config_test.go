package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.SeedURL = "https://example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if err := cfg.CompilePatterns(); err != nil {
		t.Fatalf("default patterns should compile, got %v", err)
	}
}

func TestValidateFatalErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing seed", func(t *testing.T) {
		cfg := DefaultConfig()
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for missing seed URL, got nil")
		}
	})

	t.Run("zero max pages", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SeedURL = "https://example.com"
		cfg.MaxPages = 0
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for max_pages = 0, got nil")
		}
	})

	t.Run("negative max pages", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SeedURL = "https://example.com"
		cfg.MaxPages = -5
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for negative max_pages, got nil")
		}
	})
}

func TestValidateClampsNonFatalFields(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.SeedURL = "https://example.com"
	cfg.MaxDepth = -1
	cfg.FrontierCapFactor = 0
	cfg.DelayMin = -time.Second
	cfg.DelayMax = 0
	cfg.MaxRetries = 0
	cfg.Damping = 1.5
	cfg.UserAgents = nil

	if err := cfg.Validate(); err != nil {
		t.Fatalf("clampable fields should not be fatal, got %v", err)
	}

	if cfg.MaxDepth != 0 {
		t.Errorf("expected MaxDepth clamped to 0, got %d", cfg.MaxDepth)
	}
	if cfg.FrontierCapFactor != 2 {
		t.Errorf("expected FrontierCapFactor clamped to 2, got %d", cfg.FrontierCapFactor)
	}
	if cfg.DelayMin <= 0 {
		t.Errorf("expected DelayMin clamped positive, got %v", cfg.DelayMin)
	}
	if cfg.DelayMax < cfg.DelayMin {
		t.Errorf("expected DelayMax >= DelayMin, got %v < %v", cfg.DelayMax, cfg.DelayMin)
	}
	if cfg.MaxRetries != 1 {
		t.Errorf("expected MaxRetries clamped to 1, got %d", cfg.MaxRetries)
	}
	if cfg.Damping != 0.85 {
		t.Errorf("expected Damping reset to 0.85, got %v", cfg.Damping)
	}
	if len(cfg.UserAgents) == 0 {
		t.Error("expected default user agents restored")
	}
}

func TestBaseWeight(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.SeedURL = "https://example.com"
	if err := cfg.CompilePatterns(); err != nil {
		t.Fatalf("CompilePatterns: %v", err)
	}

	tests := []struct {
		url  string
		want float64
	}{
		{"https://example.com/product/widget-123", 80},
		{"https://example.com/dp/B08XYZ", 80},
		{"https://example.com/search?q=widgets", 70},
		{"https://example.com/list?query=shoes", 70},
		{"https://example.com/bestsellers/toys", 60},
		{"https://example.com/new-releases", 50},
		{"https://example.com/deals/today", 40},
		{"https://example.com/about", 10},
	}

	for _, tt := range tests {
		if got := cfg.BaseWeight(tt.url); got != tt.want {
			t.Errorf("BaseWeight(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestBaseWeightFirstMatchWins(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.PriorityRules = []PriorityRule{
		{Name: "broad", Pattern: `/shop/`, Weight: 30},
		{Name: "narrow", Pattern: `/shop/item/`, Weight: 90},
	}
	if err := cfg.CompilePatterns(); err != nil {
		t.Fatalf("CompilePatterns: %v", err)
	}

	if got := cfg.BaseWeight("https://example.com/shop/item/1"); got != 30 {
		t.Errorf("expected first matching rule to win (30), got %v", got)
	}
}

func TestPatternClass(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if err := cfg.CompilePatterns(); err != nil {
		t.Fatalf("CompilePatterns: %v", err)
	}

	if got := cfg.PatternClass("https://example.com/product/x"); got != "product" {
		t.Errorf("expected class %q, got %q", "product", got)
	}
	if got := cfg.PatternClass("https://example.com/contact"); got != "generic" {
		t.Errorf("expected class %q, got %q", "generic", got)
	}
}

func TestCompilePatternsRejectsBadRegex(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.PriorityRules = []PriorityRule{{Name: "bad", Pattern: `[unclosed`, Weight: 50}}
	if err := cfg.CompilePatterns(); err == nil {
		t.Error("expected error for invalid priority rule pattern, got nil")
	}

	cfg = DefaultConfig()
	cfg.ExcludePatterns = []string{`(also[bad`}
	if err := cfg.CompilePatterns(); err == nil {
		t.Error("expected error for invalid exclude pattern, got nil")
	}
}

func TestShouldCrawl(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.IncludePatterns = []string{`example\.com`}
	cfg.ExcludePatterns = []string{`/private/`}
	if err := cfg.CompilePatterns(); err != nil {
		t.Fatalf("CompilePatterns: %v", err)
	}

	if !cfg.ShouldCrawl("https://example.com/page") {
		t.Error("expected included URL to be crawlable")
	}
	if cfg.ShouldCrawl("https://example.com/private/page") {
		t.Error("expected excluded URL to be rejected")
	}
	if cfg.ShouldCrawl("https://other.net/page") {
		t.Error("expected URL outside include patterns to be rejected")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.SeedURL = "https://example.com/start"
	cfg.MaxPages = 25
	cfg.DelayMin = 750 * time.Millisecond

	for _, name := range []string{"config.json", "config.yaml"} {
		path := filepath.Join(dir, name)
		if err := cfg.Save(path); err != nil {
			t.Fatalf("Save(%s): %v", name, err)
		}

		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s): %v", name, err)
		}
		if loaded.SeedURL != cfg.SeedURL {
			t.Errorf("%s: SeedURL = %q, want %q", name, loaded.SeedURL, cfg.SeedURL)
		}
		if loaded.MaxPages != cfg.MaxPages {
			t.Errorf("%s: MaxPages = %d, want %d", name, loaded.MaxPages, cfg.MaxPages)
		}
		if loaded.DelayMin != cfg.DelayMin {
			t.Errorf("%s: DelayMin = %v, want %v", name, loaded.DelayMin, cfg.DelayMin)
		}
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.json")
	cfg := DefaultConfig()
	cfg.SeedURL = "https://example.com"
	cfg.MaxPages = 10
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Overwrite with a config missing the seed.
	broken := DefaultConfig()
	broken.MaxPages = 10
	if err := broken.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected Load to reject config without seed URL")
	}
}

func TestClone(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.SeedURL = "https://example.com"
	cfg.CustomHeaders = map[string]string{"X-Test": "1"}
	cfg.Cookies = []*CookieConfig{{Name: "session", Value: "abc"}}

	clone := cfg.Clone()
	clone.SeedURL = "https://other.com"
	clone.UserAgents[0] = "changed"
	clone.CustomHeaders["X-Test"] = "2"
	clone.Cookies[0].Value = "xyz"
	clone.PriorityRules[0].Weight = 999

	if cfg.SeedURL != "https://example.com" {
		t.Error("clone mutation leaked into original SeedURL")
	}
	if cfg.UserAgents[0] == "changed" {
		t.Error("clone mutation leaked into original UserAgents")
	}
	if cfg.CustomHeaders["X-Test"] != "1" {
		t.Error("clone mutation leaked into original CustomHeaders")
	}
	if cfg.Cookies[0].Value != "abc" {
		t.Error("clone mutation leaked into original Cookies")
	}
	if cfg.PriorityRules[0].Weight == 999 {
		t.Error("clone mutation leaked into original PriorityRules")
	}
}
