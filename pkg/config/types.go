package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the persistent sserelay configuration stored as config.toml
// in the .sserelay/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Relay       RelayConfig       `toml:"relay"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// RelayConfig holds relay server and upstream settings.
type RelayConfig struct {
	// Listen is the relay server listen address.
	Listen string `toml:"listen,omitempty"`

	// Upstream is the upstream LLM provider base URL.
	Upstream string `toml:"upstream,omitempty"`

	// Path is the upstream endpoint used by the stream and collect commands.
	Path string `toml:"path,omitempty"`

	// APIKey is the bearer credential used when a client presents none.
	APIKey string `toml:"api_key,omitempty"`

	// Timeout bounds a whole upstream exchange, as a Go duration string.
	Timeout string `toml:"timeout,omitempty"`
}

// EventStreamConfig holds relay lifecycle event publishing settings.
type EventStreamConfig struct {
	// Provider is "nop", "kafka" or "redis".
	Provider string `toml:"provider,omitempty"`

	// Brokers are the Kafka bootstrap brokers.
	Brokers []string `toml:"brokers,omitempty"`

	// Topic is the Kafka topic, or the Redis stream key.
	Topic string `toml:"topic,omitempty"`

	// RedisAddr is the Redis server address (host:port).
	RedisAddr string `toml:"redis_addr,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"relay.listen": {
		get: func(c *Config) string { return c.Relay.Listen },
		set: func(c *Config, v string) error { c.Relay.Listen = v; return nil },
	},
	"relay.upstream": {
		get: func(c *Config) string { return c.Relay.Upstream },
		set: func(c *Config, v string) error { c.Relay.Upstream = v; return nil },
	},
	"relay.path": {
		get: func(c *Config) string { return c.Relay.Path },
		set: func(c *Config, v string) error {
			if v != "" && !strings.HasPrefix(v, "/") {
				return fmt.Errorf("invalid value for relay.path: %q must start with /", v)
			}
			c.Relay.Path = v
			return nil
		},
	},
	"relay.api_key": {
		get: func(c *Config) string { return c.Relay.APIKey },
		set: func(c *Config, v string) error { c.Relay.APIKey = v; return nil },
	},
	"relay.timeout": {
		get: func(c *Config) string { return c.Relay.Timeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for relay.timeout: %w", err)
			}
			c.Relay.Timeout = v
			return nil
		},
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error {
			if !IsValidEventStreamProvider(v) {
				return fmt.Errorf("invalid value for eventstream.provider: %q (available: %s)",
					v, strings.Join(ValidEventStreamProviders(), ", "))
			}
			c.EventStream.Provider = v
			return nil
		},
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error { c.EventStream.Brokers = SplitList([]string{v}); return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
	"eventstream.redis_addr": {
		get: func(c *Config) string { return c.EventStream.RedisAddr },
		set: func(c *Config, v string) error { c.EventStream.RedisAddr = v; return nil },
	},
}

// Event stream providers.
const (
	EventStreamNop   = "nop"
	EventStreamKafka = "kafka"
	EventStreamRedis = "redis"
)

// ValidEventStreamProviders returns the recognized eventstream.provider values.
func ValidEventStreamProviders() []string {
	return []string{EventStreamNop, EventStreamKafka, EventStreamRedis}
}

// IsValidEventStreamProvider returns true if name is a recognized provider.
func IsValidEventStreamProvider(name string) bool {
	for _, p := range ValidEventStreamProviders() {
		if p == name {
			return true
		}
	}
	return false
}

// SplitList flattens comma separated entries into a trimmed list, dropping
// empty items. Environment variables and "config set" carry lists this way.
func SplitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// ParseTimeout parses a relay.timeout value. An empty value yields zero,
// which leaves the relay client's default in place.
func ParseTimeout(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid relay timeout %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid relay timeout %q: must not be negative", s)
	}
	return d, nil
}
