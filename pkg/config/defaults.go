package config

const (
	defaultListen   = ":8080"
	defaultUpstream = "https://api.openai.com"
	defaultPath     = "/v1/chat/completions"
	defaultTimeout  = "5m"

	defaultEventStreamProvider = EventStreamNop
	defaultEventStreamTopic    = "sserelay.relay.events"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Relay: RelayConfig{
			Listen:   defaultListen,
			Upstream: defaultUpstream,
			Path:     defaultPath,
			Timeout:  defaultTimeout,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
	}
}
