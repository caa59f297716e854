package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --upstream
// on "sserelay serve", "sserelay stream" and "sserelay collect").
type Flag struct {
	// Name is the long flag name (e.g. "upstream").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "relay.upstream").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddStringSliceFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen      = "listen"
	FlagUpstream    = "upstream"
	FlagPath        = "path"
	FlagAPIKey      = "api-key"
	FlagTimeout     = "timeout"
	FlagEventStream = "eventstream-provider"
	FlagBrokers     = "kafka-brokers"
	FlagTopic       = "kafka-topic"
	FlagRedisAddr   = "redis-addr"
)

// RelayFlags is the registry shared by every sserelay command.
var RelayFlags = FlagSet{
	FlagListen:      {Name: "listen", Shorthand: "l", ViperKey: "relay.listen", Description: "Address for the relay server to listen on"},
	FlagUpstream:    {Name: "upstream", Shorthand: "u", ViperKey: "relay.upstream", Description: "Upstream LLM provider base URL"},
	FlagPath:        {Name: "path", Shorthand: "p", ViperKey: "relay.path", Description: "Upstream endpoint path"},
	FlagAPIKey:      {Name: "api-key", ViperKey: "relay.api_key", Description: "Bearer credential sent upstream when the client presents none"},
	FlagTimeout:     {Name: "timeout", ViperKey: "relay.timeout", Description: "Upstream exchange timeout (e.g. 90s, 5m)"},
	FlagEventStream: {Name: "eventstream-provider", ViperKey: "eventstream.provider", Description: "Relay event publisher (nop, kafka, redis)"},
	FlagBrokers:     {Name: "kafka-brokers", ViperKey: "eventstream.brokers", Description: "Kafka broker addresses for relay events"},
	FlagTopic:       {Name: "kafka-topic", ViperKey: "eventstream.topic", Description: "Kafka topic or Redis stream key for relay events"},
	FlagRedisAddr:   {Name: "redis-addr", ViperKey: "eventstream.redis_addr", Description: "Redis address for relay events"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddStringSliceFlag registers a string slice flag on cmd from the given FlagSet.
func AddStringSliceFlag(cmd *cobra.Command, fs FlagSet, key string, target *[]string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultStringSlice(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringSliceVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringSliceVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultStringSlice returns the default slice value for a viper key from NewDefaultConfig.
func defaultStringSlice(viperKey string) []string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetStringSlice(viperKey)
}
