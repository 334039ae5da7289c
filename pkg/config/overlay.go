package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// overlay is the YAML shape of an optional config file; every field is
// a pointer so an absent key leaves the corresponding Config field
// untouched.
type overlay struct {
	MaxRetries         *int  `yaml:"max_retries"`
	RetryBackoffMS     *int  `yaml:"retry_backoff_ms"`
	CallTimeoutS       *int  `yaml:"call_timeout_s"`
	PoolSizePerBackend *int  `yaml:"pool_size_per_backend"`
	FailFast           *bool `yaml:"fail_fast"`
}

// LoadWithOverlay loads Config per Load, then applies a YAML overlay
// file on top (overlay values win over both defaults and environment
// variables). A missing overlay path is not an error: plans commonly
// run with no override file at all.
func LoadWithOverlay(path string) (*Config, error) {
	c := Load()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading overlay %q: %w", path, err)
	}

	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("config: parsing overlay %q: %w", path, err)
	}

	if o.MaxRetries != nil {
		c.MaxRetries = *o.MaxRetries
	}
	if o.RetryBackoffMS != nil {
		c.RetryBackoffMS = *o.RetryBackoffMS
	}
	if o.CallTimeoutS != nil {
		c.CallTimeoutS = *o.CallTimeoutS
	}
	if o.PoolSizePerBackend != nil && *o.PoolSizePerBackend > 0 {
		c.PoolSizePerBackend = *o.PoolSizePerBackend
	}
	if o.FailFast != nil {
		c.FailFast = *o.FailFast
	}

	return c, nil
}
