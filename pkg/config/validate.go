package config

import (
	"fmt"
	"time"

	"rental-scraper/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// BacklogPath
	if c.BacklogPath == "" {
		warnings = append(warnings, "backlog_path is empty, defaulting to './data/listings.json'")
		c.BacklogPath = "./data/listings.json"
	}

	// OutputPath
	if c.OutputPath == "" {
		warnings = append(warnings, "output_path is empty, defaulting to './data/listings_detailed.json'")
		c.OutputPath = "./data/listings_detailed.json"
	}

	// StateDir
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './scraper_state'")
		c.StateDir = "./scraper_state"
	}

	// NumWorkers
	if c.NumWorkers <= 0 {
		warnings = append(warnings, "num_workers should be > 0, defaulting to 5")
		c.NumWorkers = 5
	}

	// CheckpointEvery
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = 10
	}

	// Item politeness delays
	if c.ItemDelayMin < 0 {
		warnings = append(warnings, "item_delay_min cannot be negative, setting to 0")
		c.ItemDelayMin = 0
	}
	if c.ItemDelayMax < c.ItemDelayMin {
		warnings = append(warnings, fmt.Sprintf(
			"item_delay_max (%v) < item_delay_min (%v), using item_delay_min for both",
			c.ItemDelayMax, c.ItemDelayMin))
		c.ItemDelayMax = c.ItemDelayMin
	}

	// InterruptGrace
	if c.InterruptGrace <= 0 {
		c.InterruptGrace = 30 * time.Second
	}

	// DisplayRefresh
	if c.DisplayRefresh <= 0 {
		c.DisplayRefresh = 1 * time.Second
	}

	// MaxPlausibleCount
	if c.MaxPlausibleCount <= 0 {
		c.MaxPlausibleCount = 100
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 3
	}

	// Retry delays (only if retries enabled)
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}

	// InitialRetryDelay > MaxRetryDelay check
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	// Session defaults
	if sessWarnings := c.Session.validate(); len(sessWarnings) > 0 {
		warnings = append(warnings, sessWarnings...)
	}

	return warnings, nil // AppConfig validation never fails fatally
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// validate applies defaults to session settings.
func (s *SessionConfig) validate() (warnings []string) {
	if s.NavTimeout <= 0 {
		s.NavTimeout = 60 * time.Second
	}
	if s.SettleDelayMin <= 0 {
		s.SettleDelayMin = 3 * time.Second
	}
	if s.SettleDelayMax < s.SettleDelayMin {
		if s.SettleDelayMax != 0 {
			warnings = append(warnings, fmt.Sprintf(
				"session.settle_delay_max (%v) < settle_delay_min (%v), using settle_delay_min + 4s",
				s.SettleDelayMax, s.SettleDelayMin))
		}
		s.SettleDelayMax = s.SettleDelayMin + 4*time.Second
	}
	if s.ChallengeWait <= 0 {
		s.ChallengeWait = 10 * time.Second
	}
	if s.ChallengeChecks <= 0 {
		s.ChallengeChecks = 2
	}
	if s.UserAgent == "" {
		s.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	return warnings
}

// Validate checks DiscoveryConfig fields. Required only when running discovery.
func (d *DiscoveryConfig) Validate() (warnings []string, err error) {
	if d.BaseURL == "" {
		return nil, fmt.Errorf("%w: discovery needs base_url", utils.ErrConfigValidation)
	}
	if len(d.Cities) == 0 {
		warnings = append(warnings, "discovery.cities is empty, the API's default region will be used")
	}
	if d.MaxPages < 0 {
		warnings = append(warnings, "discovery.max_pages cannot be negative, setting to 0 (all pages)")
		d.MaxPages = 0
	}
	if d.PageDelay <= 0 {
		d.PageDelay = 2 * time.Second
	}
	return warnings, nil
}

// Validate checks PostgresConfig fields and applies defaults.
// Required only when running the import step.
func (p *PostgresConfig) Validate() (warnings []string, err error) {
	if p.Host == "" {
		p.Host = "localhost"
	}
	if p.Port == "" {
		p.Port = "5432"
	}
	if p.User == "" {
		return nil, fmt.Errorf("%w: postgres needs user", utils.ErrConfigValidation)
	}
	if p.DBName == "" {
		return nil, fmt.Errorf("%w: postgres needs dbname", utils.ErrConfigValidation)
	}
	if p.SSLMode == "" {
		p.SSLMode = "disable"
	}
	return warnings, nil
}
