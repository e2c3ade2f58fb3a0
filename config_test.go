package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseSettingsDefaults(t *testing.T) {
	s, err := parseSettings([]byte(defaultSettings))
	if err != nil {
		t.Fatalf("parseSettings() error = %v", err)
	}
	if s.Rotation.TemplatePrefix != "Template:MainPageGacha" {
		t.Errorf("template prefix = %q", s.Rotation.TemplatePrefix)
	}
	if s.Wiki.EditDelay != 2*time.Second {
		t.Errorf("edit delay = %s, want 2s", s.Wiki.EditDelay)
	}
	if s.Upload.MaxBannerIndex != 12 || s.Upload.MaxStatusIndex != 10 {
		t.Errorf("max indexes = %d, %d", s.Upload.MaxBannerIndex, s.Upload.MaxStatusIndex)
	}
	loc, err := s.Location()
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if loc.String() != "Asia/Tokyo" {
		t.Errorf("location = %s", loc)
	}
	if got := s.ConflictPolicies().For(FamilyEventBanner); got != ConflictOverwrite {
		t.Errorf("event policy = %s, want overwrite", got)
	}
}

func TestParseSettingsPartialOverride(t *testing.T) {
	s, err := parseSettings([]byte("cdn:\n  concurrency: 8\nupload:\n  conflict_policy:\n    status: overwrite\n"))
	if err != nil {
		t.Fatalf("parseSettings() error = %v", err)
	}
	if s.CDN.Concurrency != 8 {
		t.Errorf("concurrency = %d, want 8", s.CDN.Concurrency)
	}
	if s.Wiki.Retries != 3 {
		t.Errorf("retries = %d, want the default 3", s.Wiki.Retries)
	}
	if got := s.ConflictPolicies().For(FamilyStatusIcon); got != ConflictOverwrite {
		t.Errorf("status policy = %s, want overwrite", got)
	}
}

func TestParseSettingsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero banner cap", "upload:\n  max_banner_index: 0\n"},
		{"zero concurrency", "cdn:\n  concurrency: 0\n"},
		{"bad policy", "upload:\n  conflict_policy:\n    banner: replace\n"},
		{"unknown timezone", "rotation:\n  timezone: Mars/Olympus\n"},
		{"empty prefix", "rotation:\n  template_prefix: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseSettings([]byte(tt.yaml)); !errors.Is(err, ErrValidation) {
				t.Errorf("parseSettings() error = %v, want validation error", err)
			}
		})
	}

	if _, err := parseSettings([]byte("wiki: [")); err == nil {
		t.Error("parseSettings() accepted malformed YAML")
	}
}

func TestEnsureConfigExists(t *testing.T) {
	t.Chdir(t.TempDir())

	if err := ensureConfigExists(); err != nil {
		t.Fatalf("ensureConfigExists() error = %v", err)
	}
	path := filepath.Join(defaultConfigDir, "settings.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	if string(data) != defaultSettings {
		t.Error("written settings differ from the embedded defaults")
	}

	// an edited file is left alone
	if err := os.WriteFile(path, []byte("cdn:\n  concurrency: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ensureConfigExists(); err != nil {
		t.Fatalf("second ensureConfigExists() error = %v", err)
	}
	s, err := loadSettings()
	if err != nil {
		t.Fatalf("loadSettings() error = %v", err)
	}
	if s.CDN.Concurrency != 2 {
		t.Errorf("concurrency = %d, want 2", s.CDN.Concurrency)
	}
}

func TestLoadSettingsRequired(t *testing.T) {
	if _, err := loadSettingsRequired(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("loadSettingsRequired() accepted a missing file")
	}
}

func TestLoadEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WIKI_USERNAME", "Bot@batch")
	t.Setenv("WIKI_PASSWORD", "secret")
	t.Setenv("PROXY_URL", "")
	t.Setenv("DRY_RUN", "Yes")

	env, err := LoadEnvironment()
	if err != nil {
		t.Fatalf("LoadEnvironment() error = %v", err)
	}
	want := Environment{WikiUsername: "Bot@batch", WikiPassword: "secret", DryRun: true}
	if env != want {
		t.Errorf("LoadEnvironment() = %+v, want %+v", env, want)
	}
}

func TestNewCDNClientProxy(t *testing.T) {
	s, err := parseSettings([]byte(defaultSettings))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := newCDNClient(s, Environment{ProxyURL: "http://proxy.test:3128"}); err != nil {
		t.Errorf("newCDNClient() error = %v", err)
	}
	if _, err := newCDNClient(s, Environment{ProxyURL: "://bad"}); !errors.Is(err, ErrValidation) {
		t.Errorf("newCDNClient() with bad proxy error = %v", err)
	}
}
