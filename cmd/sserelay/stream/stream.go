// Package streamcmder provides the stream command, which relays one chat
// completion from the upstream straight to the terminal.
package streamcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/sserelay/pkg/cliui"
	"github.com/papercomputeco/sserelay/pkg/collector"
	"github.com/papercomputeco/sserelay/pkg/config"
	"github.com/papercomputeco/sserelay/pkg/logger"
	"github.com/papercomputeco/sserelay/pkg/relay"
	"github.com/papercomputeco/sserelay/pkg/sse"
)

// DefaultModel is the chat model requested when --model is not set.
const DefaultModel = "gpt-4o-mini"

type streamCommander struct {
	upstream string
	path     string
	apiKey   string
	timeout  string
	model    string
	raw      bool
	debug    bool
}

var streamFlags = []string{
	config.FlagUpstream,
	config.FlagPath,
	config.FlagAPIKey,
	config.FlagTimeout,
}

const streamLongDesc string = `Stream a chat completion to the terminal.

The prompt is sent to the upstream as a single user message and the relayed
frames are printed as they arrive. By default only the assistant text is
shown; --raw prints the normalized "data: <payload>" frames instead.

Examples:
  sserelay stream "Write a haiku about rivers"
  sserelay stream --raw --model gpt-4o "Hello"
  sserelay stream -u http://localhost:11434 --model llama3 "Hi"`

const streamShortDesc string = "Stream a chat completion to the terminal"

func NewStreamCmd() *cobra.Command {
	return newStreamCmd(&streamCommander{})
}

func newStreamCmd(cmder *streamCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream <prompt>",
		Short: streamShortDesc,
		Long:  streamLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.RelayFlags, streamFlags)

			cmder.upstream = v.GetString("relay.upstream")
			cmder.path = v.GetString("relay.path")
			cmder.apiKey = v.GetString("relay.api_key")
			cmder.timeout = v.GetString("relay.timeout")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx, strings.Join(args, " "), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	config.AddStringFlag(cmd, config.RelayFlags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, config.RelayFlags, config.FlagPath, &cmder.path)
	config.AddStringFlag(cmd, config.RelayFlags, config.FlagAPIKey, &cmder.apiKey)
	config.AddStringFlag(cmd, config.RelayFlags, config.FlagTimeout, &cmder.timeout)
	cmd.Flags().StringVarP(&cmder.model, "model", "m", DefaultModel, "Chat model to request")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print the normalized frames instead of the assistant text")

	return cmd
}

func (c *streamCommander) run(ctx context.Context, prompt string, out, status io.Writer) error {
	timeout, err := config.ParseTimeout(c.timeout)
	if err != nil {
		return err
	}

	req, err := relay.NewChatRequest(strings.TrimRight(c.upstream, "/")+c.path, c.model, prompt, c.apiKey)
	if err != nil {
		return err
	}

	client := relay.NewClient(
		relay.WithTimeout(timeout),
		relay.WithLogger(logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithWriter(status))),
	)

	var up *relay.Upstream
	err = cliui.Step(status, "Connecting to "+req.URL, func() error {
		var openErr error
		up, openErr = client.Open(ctx, req)
		return openErr
	})
	if err != nil {
		return err
	}

	frames := client.Relay(ctx, up)
	defer frames.Close()

	return printFrames(frames, out, c.raw)
}

// printFrames writes each relayed frame to out as it arrives. In raw mode the
// frame bytes are copied verbatim; otherwise only assistant text is printed.
// A closing error frame is returned as an error.
func printFrames(frames io.Reader, out io.Writer, raw bool) error {
	var dest io.Writer
	if raw {
		dest = out
	}

	tr := sse.NewTeeReader(frames, dest)
	for {
		f, err := tr.Next()
		if err != nil {
			return fmt.Errorf("reading relay stream: %w", err)
		}
		if f == nil {
			break
		}

		if msg, ok := f.ErrorMessage(); ok {
			if !raw {
				fmt.Fprintln(out)
			}
			return errors.New("relay failed: " + msg)
		}

		if !raw {
			fmt.Fprint(out, cliui.Sanitize(collector.ContentDelta(f.Payload)))
		}
	}

	if !raw {
		fmt.Fprintln(out)
	}
	return nil
}
