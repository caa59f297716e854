// Package sserelaycmder
package sserelaycmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/sserelay/cmd/sserelay/auth"
	collectcmder "github.com/papercomputeco/sserelay/cmd/sserelay/collect"
	configcmder "github.com/papercomputeco/sserelay/cmd/sserelay/config"
	initcmder "github.com/papercomputeco/sserelay/cmd/sserelay/init"
	servecmder "github.com/papercomputeco/sserelay/cmd/sserelay/serve"
	streamcmder "github.com/papercomputeco/sserelay/cmd/sserelay/stream"
	versioncmder "github.com/papercomputeco/sserelay/cmd/version"
)

const sserelayLongDesc string = `sserelay relays LLM server-sent event streams.

Every upstream event is normalized into a "data: <payload>\n\n" frame and
streamed to the client, or collected into a single response body.

Run the relay using:
  sserelay serve                 Run the relay server
  sserelay stream <prompt>       Stream a completion to the terminal
  sserelay collect <prompt>      Collect a completion into one body`

const sserelayShortDesc string = "sserelay - LLM stream relay"

func NewSSERelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "sserelay",
		Short:        sserelayShortDesc,
		Long:         sserelayLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .sserelay/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(streamcmder.NewStreamCmd())
	cmd.AddCommand(collectcmder.NewCollectCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
