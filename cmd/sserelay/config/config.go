// Package configcmder provides the config command for managing persistent
// sserelay configuration stored in the .sserelay/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent sserelay configuration.

Configuration is stored as config.toml in the .sserelay/ directory and provides
default values for command flags. CLI flags and SSERELAY_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  relay.listen, relay.upstream, relay.path, relay.api_key, relay.timeout,
  eventstream.provider, eventstream.brokers, eventstream.topic

Use subcommands to get, set, or list configuration values:
  sserelay config set <key> <value>    Set a configuration value
  sserelay config get <key>            Get a configuration value
  sserelay config list                 List all configuration values

Examples:
  sserelay config set relay.upstream https://api.anthropic.com
  sserelay config set eventstream.brokers localhost:9092,localhost:9093
  sserelay config get relay.timeout
  sserelay config list`

const configShortDesc string = "Manage persistent sserelay configuration"

// secretKeys are printed masked by get and list.
var secretKeys = map[string]bool{
	"relay.api_key": true,
}

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// displayValue masks secret values, keeping a short prefix for recognition.
func displayValue(key, value string) string {
	if !secretKeys[key] || value == "" {
		return value
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "****"
}
