package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// CacheConfig defines settings for the availability response cache. Seat
// maps change on every hold, so the TTL is meant to stay in seconds.
type CacheConfig struct {
	Enabled      bool          `envconfig:"ENABLED" default:"true"`
	TTL          time.Duration `envconfig:"TTL" default:"2s"`
	Prefix       string        `envconfig:"PREFIX" default:"cache"`
	MaxBodyBytes int           `envconfig:"MAX_BODY_BYTES" default:"1048576"`
}

// LoadCacheConfig reads CACHE_* variables.
func LoadCacheConfig() (CacheConfig, error) {
	var c CacheConfig
	if err := envconfig.Process("CACHE", &c); err != nil {
		return CacheConfig{}, err
	}
	if c.TTL <= 0 {
		c.Enabled = false
	}
	return c, nil
}
