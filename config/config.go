// Package config provides YAML configuration parsing for miclink.
//
// This package enables running miclink as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	listen: ":8080"
//	stale_after: 60s
//
//	devices:
//	  - id: rx-vocal
//	    name: Lead Vocal
//	    address: http://10.0.7.21/stream
//	    transport: sse
//
//	grids:
//	  - id: rx
//	    address_template: "http://10.0.7.{{.unit}}/stream"
//	    dimensions:
//	      unit: ["21", "22", "23"]
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// minStaleAfter is the minimum allowed staleness window.
// A sub-second window would mark healthy receivers stale between keepalives.
const minStaleAfter = 1 * time.Second

// Config is the root configuration structure for miclink.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Listen is the HTTP listen address for the REST and WebSocket API.
	// Defaults to ":8080".
	Listen string `yaml:"listen"`

	// StaleAfter is how long a connection may go without data before it
	// is treated as dead and redialled.
	// Accepts duration strings like "30s", "1m", "500ms".
	// Defaults to 60s.
	StaleAfter Duration `yaml:"stale_after"`

	// Journal is the path of the append-only transition journal.
	// Empty disables journalling.
	Journal string `yaml:"journal"`

	// Reconnect tunes the backoff applied between redial attempts.
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// Database selects the persistent state store.
	// Omit to keep connection state in memory only.
	Database DatabaseConfig `yaml:"database"`

	// Devices defines individual receivers to monitor.
	Devices []DeviceConfig `yaml:"devices"`

	// Grids defines receiver banks that expand via cartesian product.
	Grids []GridConfig `yaml:"grids"`
}

// ReconnectConfig tunes reconnect backoff and the retry budget.
type ReconnectConfig struct {
	// BaseDelay is the delay before the first redial attempt.
	// Defaults to 1s.
	BaseDelay Duration `yaml:"base_delay"`

	// MaxDelay caps the exponential backoff. Defaults to 30s.
	MaxDelay Duration `yaml:"max_delay"`

	// MaxAttempts is the number of consecutive failed redials before a
	// device is parked in the error state. Defaults to 5.
	MaxAttempts int `yaml:"max_attempts"`
}

// DatabaseConfig selects the persistent connection-state store.
type DatabaseConfig struct {
	// Driver is the database driver: "postgres" or "mysql".
	Driver string `yaml:"driver"`

	// DSN is the driver-specific connection string.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	DSN string `yaml:"dsn"`
}

// DeviceConfig defines a single monitored receiver.
type DeviceConfig struct {
	// ID is the unique device identifier. It keys the REST API routes.
	ID string `yaml:"id"`

	// Name is the display name. Defaults to the ID.
	Name string `yaml:"name"`

	// Address is the telemetry stream address.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	Address string `yaml:"address"`

	// Transport selects the stream protocol: "sse" or "websocket".
	// Defaults to "sse".
	Transport string `yaml:"transport"`

	// Headers are custom HTTP headers sent with the dial request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// MaxReconnectAttempts overrides the global reconnect budget for
	// this device. Zero uses the global budget.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
}

// GridConfig defines a receiver bank that expands via cartesian product.
//
// For example, with dimensions {rack: ["7", "8"], unit: ["21", "22"]},
// the grid expands to 4 devices: 7/21, 7/22, 8/21, 8/22.
type GridConfig struct {
	// ID is the base identifier for generated devices.
	ID string `yaml:"id"`

	// AddressTemplate is a Go template for generating stream addresses.
	// Dimension keys are available as template variables: {{.rack}}, {{.unit}}
	// Supports environment variable substitution in the template.
	AddressTemplate string `yaml:"address_template"`

	// Dimensions maps dimension names to their possible values.
	// The cartesian product of all dimensions generates the devices.
	Dimensions map[string][]string `yaml:"dimensions"`

	// Transport selects the stream protocol for all generated devices.
	Transport string `yaml:"transport"`

	// Headers are custom HTTP headers for all generated devices.
	Headers map[string]string `yaml:"headers"`

	// MaxReconnectAttempts overrides the global reconnect budget for
	// all generated devices. Zero uses the global budget.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		// submatches[2] is ":-..." (non-empty if default syntax was used)
		// submatches[3] is the actual default value (may be empty for ${VAR:-})
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in Address, AddressTemplate, Header,
// and DSN values. Defaults are applied for Listen (":8080"), StaleAfter
// (60s), and the reconnect policy (1s base, 30s cap, 5 attempts).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = Duration(60 * time.Second)
	}
	if cfg.Reconnect.BaseDelay == 0 {
		cfg.Reconnect.BaseDelay = Duration(1 * time.Second)
	}
	if cfg.Reconnect.MaxDelay == 0 {
		cfg.Reconnect.MaxDelay = Duration(30 * time.Second)
	}
	if cfg.Reconnect.MaxAttempts == 0 {
		cfg.Reconnect.MaxAttempts = 5
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.StaleAfter.Duration() < minStaleAfter {
		return fmt.Errorf("stale_after must be at least %s, got %s", minStaleAfter, c.StaleAfter.Duration())
	}

	if c.Reconnect.BaseDelay.Duration() <= 0 {
		return fmt.Errorf("reconnect.base_delay must be positive, got %s", c.Reconnect.BaseDelay.Duration())
	}
	if c.Reconnect.MaxDelay.Duration() < c.Reconnect.BaseDelay.Duration() {
		return fmt.Errorf("reconnect.max_delay must be at least base_delay (%s), got %s",
			c.Reconnect.BaseDelay.Duration(), c.Reconnect.MaxDelay.Duration())
	}
	if c.Reconnect.MaxAttempts <= 0 {
		return fmt.Errorf("reconnect.max_attempts must be positive, got %d", c.Reconnect.MaxAttempts)
	}

	switch c.Database.Driver {
	case "":
		if c.Database.DSN != "" {
			return errors.New("database: driver is required when dsn is set")
		}
	case "postgres", "mysql":
		if c.Database.DSN == "" {
			return fmt.Errorf("database: dsn is required for driver %q", c.Database.Driver)
		}
		expanded, err := expandEnvVars(c.Database.DSN)
		if err != nil {
			return fmt.Errorf("database: dsn: %w", err)
		}
		c.Database.DSN = expanded
	default:
		return fmt.Errorf("database: driver must be postgres or mysql, got %q", c.Database.Driver)
	}

	seenIDs := make(map[string]struct{}, len(c.Devices))
	for i := range c.Devices {
		d := &c.Devices[i]

		if d.ID == "" {
			return fmt.Errorf("devices[%d]: id is required", i)
		}
		if _, exists := seenIDs[d.ID]; exists {
			return fmt.Errorf("devices[%d]: duplicate id %q", i, d.ID)
		}
		seenIDs[d.ID] = struct{}{}

		if d.Address == "" {
			return fmt.Errorf("devices[%d] (%s): address is required", i, d.ID)
		}
		expanded, err := expandEnvVars(d.Address)
		if err != nil {
			return fmt.Errorf("devices[%d] (%s): address: %w", i, d.ID, err)
		}
		d.Address = expanded

		parsed, err := url.Parse(d.Address)
		if err != nil {
			return fmt.Errorf("devices[%d] (%s): invalid address: %w", i, d.ID, err)
		}
		if parsed.Scheme == "" {
			return fmt.Errorf("devices[%d] (%s): address must have a scheme (http://, https://, ws://, or wss://)", i, d.ID)
		}
		switch parsed.Scheme {
		case "http", "https", "ws", "wss":
		default:
			return fmt.Errorf("devices[%d] (%s): address scheme must be http, https, ws, or wss, got %q", i, d.ID, parsed.Scheme)
		}

		for k, v := range d.Headers {
			expanded, err := expandEnvVars(v)
			if err != nil {
				return fmt.Errorf("devices[%d] (%s): headers[%s]: %w", i, d.ID, k, err)
			}
			d.Headers[k] = expanded
		}

		if err := validateTransport(d.Transport, fmt.Sprintf("devices[%d] (%s)", i, d.ID)); err != nil {
			return err
		}

		if d.MaxReconnectAttempts < 0 {
			return fmt.Errorf("devices[%d] (%s): max_reconnect_attempts cannot be negative, got %d",
				i, d.ID, d.MaxReconnectAttempts)
		}
	}

	for i := range c.Grids {
		g := &c.Grids[i]

		if g.ID == "" {
			return fmt.Errorf("grids[%d]: id is required", i)
		}

		if g.AddressTemplate == "" {
			return fmt.Errorf("grids[%d] (%s): address_template is required", i, g.ID)
		}
		expanded, err := expandEnvVars(g.AddressTemplate)
		if err != nil {
			return fmt.Errorf("grids[%d] (%s): address_template: %w", i, g.ID, err)
		}
		g.AddressTemplate = expanded

		// fail fast before SDK tries to use invalid template
		if _, err := template.New("").Parse(g.AddressTemplate); err != nil {
			return fmt.Errorf("grids[%d] (%s): invalid address_template: %w", i, g.ID, err)
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("grids[%d] (%s): at least one dimension is required", i, g.ID)
		}
		for dimName, dimValues := range g.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("grids[%d] (%s): dimension %q has no values", i, g.ID, dimName)
			}
			seen := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := seen[v]; exists {
					return fmt.Errorf("grids[%d] (%s): dimension %q has duplicate value %q", i, g.ID, dimName, v)
				}
				seen[v] = struct{}{}
			}
		}

		for k, v := range g.Headers {
			expanded, err := expandEnvVars(v)
			if err != nil {
				return fmt.Errorf("grids[%d] (%s): headers[%s]: %w", i, g.ID, k, err)
			}
			g.Headers[k] = expanded
		}

		if err := validateTransport(g.Transport, fmt.Sprintf("grids[%d] (%s)", i, g.ID)); err != nil {
			return err
		}

		if g.MaxReconnectAttempts < 0 {
			return fmt.Errorf("grids[%d] (%s): max_reconnect_attempts cannot be negative, got %d",
				i, g.ID, g.MaxReconnectAttempts)
		}
	}

	if len(c.Devices) == 0 && len(c.Grids) == 0 {
		return errors.New("at least one device or grid must be defined")
	}

	return nil
}

// validateTransport validates a transport name from configuration.
// Empty means the SDK default (sse).
func validateTransport(transport, context string) error {
	switch transport {
	case "", "sse", "websocket":
		return nil
	default:
		return fmt.Errorf("%s: transport must be sse or websocket, got %q", context, transport)
	}
}
