package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool {
	return &b
}

func TestSessionConfig_IsHeadless(t *testing.T) {
	tests := []struct {
		name     string
		cfg      SessionConfig
		expected bool
	}{
		{
			name:     "unset defaults to headless",
			cfg:      SessionConfig{},
			expected: true,
		},
		{
			name:     "explicit true",
			cfg:      SessionConfig{Headless: boolPtr(true)},
			expected: true,
		},
		{
			name:     "explicit false runs visible browsers",
			cfg:      SessionConfig{Headless: boolPtr(false)},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cfg.IsHeadless())
		})
	}
}

func TestPostgresConfig_DSN(t *testing.T) {
	p := PostgresConfig{
		Host:     "db.internal",
		Port:     "5433",
		User:     "scraper",
		Password: "secret",
		DBName:   "rentals",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db.internal port=5433 user=scraper password=secret dbname=rentals sslmode=require",
		p.DSN())
}
