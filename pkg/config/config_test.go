package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENROUTER_API_KEY", "OPENROUTER_BASE_URL", "DEFAULT_MODEL",
		"FALLBACK_MODEL", "MAX_COST_PER_RUN", "DAILY_BUDGET", "HEADLESS",
		"BROWSER_TYPE", "DEFAULT_TIMEOUT", "EXECUTION_TIMEOUT",
		"MAX_REPAIR_ATTEMPTS", "AUTO_HEAL", "ARTIFACTS_DIR", "LEDGER_PATH",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.BaseURL)
	assert.Equal(t, "anthropic/claude-3.5-haiku", cfg.DefaultModel)
	assert.InDelta(t, 0.50, cfg.MaxCostPerRun, 1e-9)
	assert.InDelta(t, 5.00, cfg.DailyBudget, 1e-9)
	assert.Equal(t, 3, cfg.MaxRepairAttempts)
	assert.True(t, cfg.AutoHeal)
	assert.Equal(t, "chromium", cfg.BrowserType)
	assert.NotEmpty(t, cfg.Pricing)

	// Every configured model has non-zero rates.
	for model, p := range cfg.Pricing {
		assert.Greater(t, p.Input, 0.0, model)
		assert.Greater(t, p.Output, 0.0, model)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
	t.Setenv("DEFAULT_MODEL", "openai/gpt-4o-mini")
	t.Setenv("MAX_COST_PER_RUN", "0.25")
	t.Setenv("DAILY_BUDGET", "2.5")
	t.Setenv("MAX_REPAIR_ATTEMPTS", "5")
	t.Setenv("AUTO_HEAL", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-or-test", cfg.APIKey)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.DefaultModel)
	assert.InDelta(t, 0.25, cfg.MaxCostPerRun, 1e-9)
	assert.InDelta(t, 2.5, cfg.DailyBudget, 1e-9)
	assert.Equal(t, 5, cfg.MaxRepairAttempts)
	assert.False(t, cfg.AutoHeal)
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "mend.yaml")
	yaml := `
api_key: sk-from-yaml
daily_budget: 10.0
max_repair_attempts: 1
browser_type: firefox
pricing:
  custom/model:
    input: 2.0
    output: 4.0
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-from-yaml", cfg.APIKey)
	assert.InDelta(t, 10.0, cfg.DailyBudget, 1e-9)
	assert.Equal(t, 1, cfg.MaxRepairAttempts)
	assert.Equal(t, "firefox", cfg.BrowserType)
	assert.InDelta(t, 2.0, cfg.Pricing["custom/model"].Input, 1e-9)

	// Untouched fields keep their defaults.
	assert.InDelta(t, 0.50, cfg.MaxCostPerRun, 1e-9)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("DAILY_BUDGET", "1.0")

	path := filepath.Join(t.TempDir(), "mend.yaml")
	require.NoError(t, os.WriteFile(path, []byte("daily_budget: 10.0\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cfg.DailyBudget, 1e-9)
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) *Config {
		cfg := Default()
		cfg.APIKey = "sk-test"
		cfg.ArtifactsDir = filepath.Join(t.TempDir(), "artifacts")
		cfg.LedgerPath = filepath.Join(t.TempDir(), "mend", "budget.db")
		return cfg
	}

	t.Run("valid config creates directories", func(t *testing.T) {
		cfg := base(t)
		require.NoError(t, cfg.Validate())
		assert.DirExists(t, cfg.ArtifactsDir)
		assert.DirExists(t, filepath.Dir(cfg.LedgerPath))
	})

	t.Run("missing api key", func(t *testing.T) {
		cfg := base(t)
		cfg.APIKey = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "OPENROUTER_API_KEY")
	})

	t.Run("negative repair attempts", func(t *testing.T) {
		cfg := base(t)
		cfg.MaxRepairAttempts = -1
		require.Error(t, cfg.Validate())
	})

	t.Run("non-positive daily budget", func(t *testing.T) {
		cfg := base(t)
		cfg.DailyBudget = 0
		require.Error(t, cfg.Validate())
	})
}

func TestPricingFor(t *testing.T) {
	cfg := Default()

	known := cfg.PricingFor("anthropic/claude-3.5-haiku")
	assert.InDelta(t, 0.25, known.Input, 1e-9)

	fallback := cfg.PricingFor("some/unknown-model")
	assert.Equal(t, cfg.Pricing[cfg.FallbackModel], fallback)
}
