package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-scraper/pkg/utils"
)

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := AppConfig{} // Zero value
	warnings, err := cfg.Validate()

	require.NoError(t, err)

	// Check defaults applied
	assert.Equal(t, "./data/listings.json", cfg.BacklogPath)
	assert.Equal(t, "./data/listings_detailed.json", cfg.OutputPath)
	assert.Equal(t, "./scraper_state", cfg.StateDir)
	assert.Equal(t, 5, cfg.NumWorkers)
	assert.Equal(t, 10, cfg.CheckpointEvery)
	assert.Equal(t, 100, cfg.MaxPlausibleCount)
	assert.Equal(t, 30*time.Second, cfg.InterruptGrace)
	assert.Equal(t, 1*time.Second, cfg.DisplayRefresh)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 1*time.Second, cfg.InitialRetryDelay)
	assert.Equal(t, 30*time.Second, cfg.MaxRetryDelay)

	// Check HTTP client defaults
	assert.Equal(t, 45*time.Second, cfg.HTTPClientSettings.Timeout)
	assert.Equal(t, 100, cfg.HTTPClientSettings.MaxIdleConns)
	assert.Equal(t, 2, cfg.HTTPClientSettings.MaxIdleConnsPerHost)

	// Check session defaults
	assert.Equal(t, 60*time.Second, cfg.Session.NavTimeout)
	assert.Equal(t, 3*time.Second, cfg.Session.SettleDelayMin)
	assert.Equal(t, 7*time.Second, cfg.Session.SettleDelayMax)
	assert.Equal(t, 10*time.Second, cfg.Session.ChallengeWait)
	assert.Equal(t, 2, cfg.Session.ChallengeChecks)
	assert.NotEmpty(t, cfg.Session.UserAgent)

	// Check warnings generated
	assert.True(t, containsWarning(warnings, "backlog_path is empty"))
	assert.True(t, containsWarning(warnings, "output_path is empty"))
	assert.True(t, containsWarning(warnings, "state_dir is empty"))
	assert.True(t, containsWarning(warnings, "num_workers should be > 0"))
}

func TestAppConfig_Validate_ValidConfig(t *testing.T) {
	cfg := AppConfig{
		BacklogPath:       "/data/backlog.json",
		OutputPath:        "/data/out.json",
		StateDir:          "/state",
		NumWorkers:        8,
		CheckpointEvery:   25,
		MaxPlausibleCount: 50,
		ItemDelayMin:      500 * time.Millisecond,
		ItemDelayMax:      1500 * time.Millisecond,
		MaxRetries:        5,
		InitialRetryDelay: 2 * time.Second,
		MaxRetryDelay:     20 * time.Second,
	}

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Empty(t, warnings)

	// Values preserved, not overwritten by defaults
	assert.Equal(t, 8, cfg.NumWorkers)
	assert.Equal(t, 25, cfg.CheckpointEvery)
	assert.Equal(t, 50, cfg.MaxPlausibleCount)
}

func TestAppConfig_Validate_DelayOrdering(t *testing.T) {
	cfg := AppConfig{
		ItemDelayMin: 2 * time.Second,
		ItemDelayMax: 1 * time.Second,
	}
	warnings, err := cfg.Validate()
	require.NoError(t, err)

	assert.True(t, containsWarning(warnings, "item_delay_max"))
	assert.Equal(t, cfg.ItemDelayMin, cfg.ItemDelayMax)
}

func TestAppConfig_Validate_RetryDelaySwap(t *testing.T) {
	cfg := AppConfig{
		MaxRetries:        3,
		InitialRetryDelay: 60 * time.Second,
		MaxRetryDelay:     10 * time.Second,
	}
	warnings, err := cfg.Validate()
	require.NoError(t, err)

	assert.True(t, containsWarning(warnings, "initial_retry_delay"))
	assert.Equal(t, 10*time.Second, cfg.InitialRetryDelay)
}

func TestDiscoveryConfig_Validate(t *testing.T) {
	d := DiscoveryConfig{}
	_, err := d.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)

	d = DiscoveryConfig{BaseURL: "https://example.com/api/search.json", Cities: []string{"calgary"}}
	warnings, err := d.Validate()
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 2*time.Second, d.PageDelay)
}

func TestPostgresConfig_Validate(t *testing.T) {
	p := PostgresConfig{}
	_, err := p.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)

	p = PostgresConfig{User: "scraper", DBName: "rentals"}
	_, err = p.Validate()
	require.NoError(t, err)
	assert.Equal(t, "localhost", p.Host)
	assert.Equal(t, "5432", p.Port)
	assert.Equal(t, "disable", p.SSLMode)
}
