// Package config centralizes configuration for the automation system:
// API credentials, cost ceilings, browser defaults, and the model pricing
// table. Values come from the environment (a .env file is loaded if present)
// with an optional YAML file for overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/entrhq/mend/pkg/budget"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all settings for one process.
type Config struct {
	// APIKey authenticates against the LLM gateway.
	APIKey string `yaml:"api_key"`

	// BaseURL is the OpenAI-compatible endpoint.
	BaseURL string `yaml:"base_url"`

	// DefaultModel is used for generation, diagnosis, and repair.
	DefaultModel string `yaml:"default_model"`

	// FallbackModel supplies pricing for unrecognized models.
	FallbackModel string `yaml:"fallback_model"`

	// MaxCostPerRun is the per-run spending ceiling in USD.
	MaxCostPerRun float64 `yaml:"max_cost_per_run"`

	// DailyBudget is the calendar-day spending ceiling in USD.
	DailyBudget float64 `yaml:"daily_budget"`

	// Headless controls browser visibility.
	Headless bool `yaml:"headless"`

	// BrowserType selects the Playwright browser (chromium, firefox, webkit).
	BrowserType string `yaml:"browser_type"`

	// DefaultTimeoutMs is the default per-operation browser timeout.
	DefaultTimeoutMs float64 `yaml:"default_timeout_ms"`

	// ExecutionTimeoutSec caps one full script execution. Zero disables the cap.
	ExecutionTimeoutSec int `yaml:"execution_timeout_sec"`

	// ViewportWidth and ViewportHeight set the browser viewport.
	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`

	// MaxRepairAttempts bounds the heal loop; the loop allows
	// MaxRepairAttempts+1 total executions.
	MaxRepairAttempts int `yaml:"max_repair_attempts"`

	// AutoHeal enables the diagnose/repair/retry portion of the loop.
	AutoHeal bool `yaml:"auto_heal"`

	// ArtifactsDir is the root directory for scripts, screenshots, videos,
	// and run records.
	ArtifactsDir string `yaml:"artifacts_dir"`

	// LedgerPath is the SQLite file holding the durable daily cost ledger.
	LedgerPath string `yaml:"ledger_path"`

	// Pricing maps model names to per-1M-token rates.
	Pricing map[string]budget.Pricing `yaml:"pricing"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return &Config{
		BaseURL:             "https://openrouter.ai/api/v1",
		DefaultModel:        "anthropic/claude-3.5-haiku",
		FallbackModel:       "openai/gpt-4o-mini",
		MaxCostPerRun:       0.50,
		DailyBudget:         5.00,
		Headless:            false,
		BrowserType:         "chromium",
		DefaultTimeoutMs:    30000,
		ExecutionTimeoutSec: 300,
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		MaxRepairAttempts:   3,
		AutoHeal:            true,
		ArtifactsDir:        "artifacts",
		LedgerPath:          filepath.Join(home, ".mend", "budget.db"),
		Pricing: map[string]budget.Pricing{
			"anthropic/claude-3.5-haiku":  {Input: 0.25, Output: 1.25},
			"openai/gpt-4o-mini":          {Input: 0.15, Output: 0.60},
			"anthropic/claude-3.5-sonnet": {Input: 3.00, Output: 15.00},
			"openai/gpt-4":                {Input: 30.00, Output: 60.00},
		},
	}
}

// Load builds the configuration: defaults, then the optional YAML file at
// path, then environment variables. A .env file in the working directory is
// loaded into the environment first, if present. A missing YAML file is not
// an error.
func Load(path string) (*Config, error) {
	// Best effort; absence of a .env file is the normal case
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyFile merges YAML overrides from path into the config.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv merges environment variable overrides into the config.
func (c *Config) applyEnv() {
	setString(&c.APIKey, "OPENROUTER_API_KEY")
	setString(&c.BaseURL, "OPENROUTER_BASE_URL")
	setString(&c.DefaultModel, "DEFAULT_MODEL")
	setString(&c.FallbackModel, "FALLBACK_MODEL")
	setFloat(&c.MaxCostPerRun, "MAX_COST_PER_RUN")
	setFloat(&c.DailyBudget, "DAILY_BUDGET")
	setBool(&c.Headless, "HEADLESS")
	setString(&c.BrowserType, "BROWSER_TYPE")
	setFloat(&c.DefaultTimeoutMs, "DEFAULT_TIMEOUT")
	setInt(&c.ExecutionTimeoutSec, "EXECUTION_TIMEOUT")
	setInt(&c.MaxRepairAttempts, "MAX_REPAIR_ATTEMPTS")
	setBool(&c.AutoHeal, "AUTO_HEAL")
	setString(&c.ArtifactsDir, "ARTIFACTS_DIR")
	setString(&c.LedgerPath, "LEDGER_PATH")

	// Headless is forced on when there is no display to attach to.
	if headlessRequired() {
		c.Headless = true
	}
}

// headlessRequired reports whether the environment cannot host a visible
// browser window.
func headlessRequired() bool {
	if os.Getenv("DISPLAY") == "" && strings.HasPrefix(os.Getenv("OSTYPE"), "linux") {
		return true
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// Validate checks for required settings and creates the artifact directories.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY not set: copy .env.example to .env and set your API key")
	}
	if c.MaxRepairAttempts < 0 {
		return fmt.Errorf("max_repair_attempts must be >= 0, got %d", c.MaxRepairAttempts)
	}
	if c.DailyBudget <= 0 {
		return fmt.Errorf("daily_budget must be positive, got %v", c.DailyBudget)
	}

	if err := os.MkdirAll(c.ArtifactsDir, 0750); err != nil {
		return fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	if dir := filepath.Dir(c.LedgerPath); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	return nil
}

// PricingFor returns the pricing for model, falling back to the configured
// fallback model for unrecognized names.
func (c *Config) PricingFor(model string) budget.Pricing {
	if p, ok := c.Pricing[model]; ok {
		return p
	}
	return c.Pricing[c.FallbackModel]
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}
