// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/januskit/januskit/transport"
)

// EnvConfigPath is consulted when no --config flag is given.
const EnvConfigPath = "JANUSKIT_CONFIG"

// File is the on-disk configuration for the januskit commands.
type File struct {
	// Addresses lists the gateway endpoints in failover order. The
	// first entry determines the transport: ws:// and wss:// dial a
	// WebSocket, anything else is a Unix datagram socket path.
	Addresses []transport.Address `yaml:"addresses" json:"addresses"`

	// RetryIntervalSeconds is the pause between failover attempts.
	// Zero means the transport default.
	RetryIntervalSeconds int `yaml:"retry_interval_seconds" json:"retry_interval_seconds"`

	// MaxRetries caps connection attempts across the address pool.
	// Zero retries forever.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// Admin connects to the gateway's admin API instead of the
	// public one.
	Admin bool `yaml:"admin" json:"admin"`

	// KeepAliveIntervalSeconds is the session keepalive period. Zero
	// means the gateway default; negative disables keepalives.
	KeepAliveIntervalSeconds int `yaml:"keepalive_interval_seconds" json:"keepalive_interval_seconds"`
}

// ResolvePath returns the explicit path when non-empty, otherwise the
// JANUSKIT_CONFIG environment variable.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("config: no --config flag and %s is not set", EnvConfigPath)
}

// Load reads and validates the configuration file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	file, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return file, nil
}

// Parse decodes configuration data. ext selects the format: ".json"
// and ".jsonc" are JSONC, everything else is YAML.
func Parse(data []byte, ext string) (*File, error) {
	var file File
	switch ext {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
			return nil, fmt.Errorf("parsing JSONC: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

// Validate checks that the configuration is usable.
func (f *File) Validate() error {
	if len(f.Addresses) == 0 {
		return fmt.Errorf("at least one address is required")
	}
	for i, addr := range f.Addresses {
		if addr.URL == "" {
			return fmt.Errorf("address %d: url is required", i)
		}
	}
	if f.RetryIntervalSeconds < 0 {
		return fmt.Errorf("retry_interval_seconds must not be negative")
	}
	if f.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	return nil
}

// TransportConfig converts the file into a transport configuration.
func (f *File) TransportConfig() transport.Config {
	return transport.Config{
		Addresses:     f.Addresses,
		RetryInterval: time.Duration(f.RetryIntervalSeconds) * time.Second,
		MaxRetries:    f.MaxRetries,
		Admin:         f.Admin,
	}
}

// KeepAliveInterval converts the configured keepalive period into the
// form gateway.Options expects.
func (f *File) KeepAliveInterval() time.Duration {
	if f.KeepAliveIntervalSeconds < 0 {
		return -1
	}
	return time.Duration(f.KeepAliveIntervalSeconds) * time.Second
}
