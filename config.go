package main

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigDir = ".gbf-bot"

//go:embed config/settings.yaml
var defaultSettings string

// Settings represents the YAML configuration structure
type Settings struct {
	Wiki struct {
		APIURL    string        `yaml:"api_url"`
		UserAgent string        `yaml:"user_agent"`
		EditDelay time.Duration `yaml:"edit_delay"`
		MaxLag    int           `yaml:"maxlag"`
		Retries   uint          `yaml:"retries"`
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"wiki"`
	CDN struct {
		BaseURL     string        `yaml:"base_url"`
		UserAgent   string        `yaml:"user_agent"`
		Retries     uint          `yaml:"retries"`
		Timeout     time.Duration `yaml:"timeout"`
		Concurrency int           `yaml:"concurrency"`
	} `yaml:"cdn"`
	Upload struct {
		ProgressInterval time.Duration     `yaml:"progress_interval"`
		MaxBannerIndex   int               `yaml:"max_banner_index"`
		MaxStatusIndex   int               `yaml:"max_status_index"`
		ConflictPolicy   map[string]string `yaml:"conflict_policy"`
	} `yaml:"upload"`
	Rotation struct {
		Timezone       string `yaml:"timezone"`
		TemplatePrefix string `yaml:"template_prefix"`
	} `yaml:"rotation"`
	Cache struct {
		Path string `yaml:"path"`
	} `yaml:"cache"`
}

// Environment holds secrets and toggles read from the process environment
type Environment struct {
	WikiUsername string
	WikiPassword string
	ProxyURL     string
	DryRun       bool
}

// getConfigPath returns the path to a config file in the .gbf-bot directory
func getConfigPath(filename string) string {
	return filepath.Join(defaultConfigDir, filename)
}

// ensureConfigExists writes the embedded settings.yaml on first run
func ensureConfigExists() error {
	if err := os.MkdirAll(defaultConfigDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	settingsPath := getConfigPath("settings.yaml")
	if _, err := os.Stat(settingsPath); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(settingsPath, []byte(defaultSettings), 0644); err != nil {
			return fmt.Errorf("writing settings.yaml: %w", err)
		}
	}
	return nil
}

// loadSettings reads settings from the default location, falling back to the
// embedded defaults when the file is missing
func loadSettings() (*Settings, error) {
	data, err := os.ReadFile(getConfigPath("settings.yaml"))
	if errors.Is(err, fs.ErrNotExist) {
		return parseSettings([]byte(defaultSettings))
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	return parseSettings(data)
}

// loadSettingsRequired reads an explicitly named settings file, which must exist
func loadSettingsRequired(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("reading settings %s: %w", settingsPath, err)
	}
	return parseSettings(data)
}

// parseSettings decodes YAML over the embedded defaults so a partial file
// only overrides what it names
func parseSettings(data []byte) (*Settings, error) {
	var settings Settings
	if err := yaml.Unmarshal([]byte(defaultSettings), &settings); err != nil {
		return nil, fmt.Errorf("parsing embedded settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}
	if err := settings.validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *Settings) validate() error {
	switch {
	case s.Upload.MaxBannerIndex < 1:
		return validationErrorf("upload.max_banner_index must be positive")
	case s.Upload.MaxStatusIndex < 1:
		return validationErrorf("upload.max_status_index must be positive")
	case s.CDN.Concurrency < 1:
		return validationErrorf("cdn.concurrency must be positive")
	case strings.TrimSpace(s.Rotation.TemplatePrefix) == "":
		return validationErrorf("rotation.template_prefix is required")
	}
	if _, err := DefaultConflictPolicies().WithOverrides(s.Upload.ConflictPolicy); err != nil {
		return err
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the rotation timezone
func (s *Settings) Location() (*time.Location, error) {
	name := s.Rotation.Timezone
	if name == "" {
		name = "Asia/Tokyo"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, validationErrorf("rotation.timezone %q: %v", name, err)
	}
	return loc, nil
}

// ConflictPolicies returns the per-family policy table with configured overrides
func (s *Settings) ConflictPolicies() ConflictPolicies {
	p, err := DefaultConflictPolicies().WithOverrides(s.Upload.ConflictPolicy)
	if err != nil {
		// validated when loaded
		return DefaultConflictPolicies()
	}
	return p
}

// LoadEnvironment reads .env when present, then the process environment
func LoadEnvironment() (Environment, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Environment{}, fmt.Errorf("loading .env: %w", err)
	}
	return Environment{
		WikiUsername: os.Getenv("WIKI_USERNAME"),
		WikiPassword: os.Getenv("WIKI_PASSWORD"),
		ProxyURL:     os.Getenv("PROXY_URL"),
		DryRun:       parseBool(os.Getenv("DRY_RUN")),
	}, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
