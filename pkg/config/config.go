package config

import "time"

// SessionConfig holds settings for the browser sessions used by batch workers
type SessionConfig struct {
	ChromePath      string        `yaml:"chrome_path,omitempty"`       // Explicit browser binary (empty = auto-detect)
	Headless        *bool         `yaml:"headless,omitempty"`          // nil defaults to true
	UserAgent       string        `yaml:"user_agent,omitempty"`
	NavTimeout      time.Duration `yaml:"nav_timeout,omitempty"`       // Per-page navigation timeout
	SettleDelayMin  time.Duration `yaml:"settle_delay_min,omitempty"`  // Randomized wait after load, lower bound
	SettleDelayMax  time.Duration `yaml:"settle_delay_max,omitempty"`  // Randomized wait after load, upper bound
	ChallengeWait   time.Duration `yaml:"challenge_wait,omitempty"`    // Extra wait when an anti-bot challenge is detected
	ChallengeChecks int           `yaml:"challenge_checks,omitempty"`  // How many times to re-check before giving up
}

// DiscoveryConfig holds settings for the listing-discovery step that
// produces the backlog via the site's paginated JSON API
type DiscoveryConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Cities    []string      `yaml:"cities,omitempty"`
	MaxPages  int           `yaml:"max_pages,omitempty"` // 0 = until an empty page
	PageDelay time.Duration `yaml:"page_delay,omitempty"`
	UserAgent string        `yaml:"user_agent,omitempty"`
}

// PostgresConfig holds connection settings for the canonical-store import
type PostgresConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     string `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	DBName   string `yaml:"dbname,omitempty"`
	SSLMode  string `yaml:"sslmode,omitempty"`
}

// DSN returns the PostgreSQL connection string
func (p *PostgresConfig) DSN() string {
	return "host=" + p.Host +
		" port=" + p.Port +
		" user=" + p.User +
		" password=" + p.Password +
		" dbname=" + p.DBName +
		" sslmode=" + p.SSLMode
}

// AppConfig holds the global application configuration
type AppConfig struct {
	BacklogPath string `yaml:"backlog_path"` // Input backlog of listing refs (JSON)
	OutputPath  string `yaml:"output_path"`  // Checkpoint / final dataset file (JSON)
	StateDir    string `yaml:"state_dir"`    // Badger scrape-status database

	NumWorkers      int           `yaml:"num_workers"`
	CheckpointEvery int           `yaml:"checkpoint_every,omitempty"` // Accumulated records between snapshot writes
	ItemDelayMin    time.Duration `yaml:"item_delay_min,omitempty"`   // Politeness delay between items, lower bound
	ItemDelayMax    time.Duration `yaml:"item_delay_max,omitempty"`   // Politeness delay between items, upper bound
	InterruptGrace  time.Duration `yaml:"interrupt_grace,omitempty"`  // How long to wait for in-flight batches on interrupt
	DisplayRefresh  time.Duration `yaml:"display_refresh,omitempty"`  // Progress display update interval

	// MaxPlausibleCount bounds numeric field extraction: matches at or above
	// it are treated as building totals, not per-unit counts, and rejected.
	MaxPlausibleCount int `yaml:"max_plausible_count,omitempty"`

	MaxRetries        int           `yaml:"max_retries,omitempty"`
	InitialRetryDelay time.Duration `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay     time.Duration `yaml:"max_retry_delay,omitempty"`

	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
	Session            SessionConfig    `yaml:"session,omitempty"`
	Discovery          DiscoveryConfig  `yaml:"discovery,omitempty"`
	Postgres           PostgresConfig   `yaml:"postgres,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // Explicitly enable/disable HTTP/2 attempt (use pointer for tri-state: nil=default, true=force, false=disable)
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// Headless returns the effective headless setting (default true)
func (s *SessionConfig) IsHeadless() bool {
	if s.Headless != nil {
		return *s.Headless
	}
	return true
}
