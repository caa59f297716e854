// Package collectcmder provides the collect command, which relays one chat
// completion and prints it only once the whole stream has been collected.
package collectcmder

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	streamcmder "github.com/papercomputeco/sserelay/cmd/sserelay/stream"
	"github.com/papercomputeco/sserelay/pkg/cliui"
	"github.com/papercomputeco/sserelay/pkg/collector"
	"github.com/papercomputeco/sserelay/pkg/config"
	"github.com/papercomputeco/sserelay/pkg/logger"
	"github.com/papercomputeco/sserelay/pkg/relay"
	"github.com/papercomputeco/sserelay/pkg/utils"
)

// maxPayloadWidth bounds each payload printed by --frames.
const maxPayloadWidth = 72

type collectCommander struct {
	upstream string
	path     string
	apiKey   string
	timeout  string
	model    string
	render   bool
	frames   bool
	debug    bool
}

var collectFlags = []string{
	config.FlagUpstream,
	config.FlagPath,
	config.FlagAPIKey,
	config.FlagTimeout,
}

const collectLongDesc string = `Collect a chat completion into one body.

The prompt is sent to the upstream as a single user message. The relayed
frames are collected in full before anything is printed; a stream that fails
part way prints nothing but the error.

By default the exact collected frame text is printed. --render prints the
assistant text rendered as markdown, and --frames prints one line per frame.

Examples:
  sserelay collect "Explain SSE in two sentences"
  sserelay collect --render "Give me a markdown table of planets"
  sserelay collect --frames "Hi"`

const collectShortDesc string = "Collect a chat completion into one body"

func NewCollectCmd() *cobra.Command {
	cmder := &collectCommander{}

	cmd := &cobra.Command{
		Use:   "collect <prompt>",
		Short: collectShortDesc,
		Long:  collectLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.RelayFlags, collectFlags)

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
	cmd.Flags().StringVarP(&cmder.model, "model", "m", streamcmder.DefaultModel, "Chat model to request")
	cmd.Flags().BoolVar(&cmder.render, "render", false, "Render the assistant text as markdown")
	cmd.Flags().BoolVar(&cmder.frames, "frames", false, "Print one line per collected frame")
	cmd.MarkFlagsMutuallyExclusive("render", "frames")

	return cmd
}

func (c *collectCommander) run(ctx context.Context, prompt string, out, status io.Writer) error {
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

	var summary *collector.Summary
	err = cliui.Step(status, "Collecting from "+req.URL, func() error {
		frames, err := client.Stream(ctx, req)
		if err != nil {
			return err
		}
		defer frames.Close()

		summary, err = collector.CollectFrames(ctx, frames)
		return err
	})
	if err != nil {
		return err
	}

	switch {
	case c.frames:
		printFrameLines(out, summary)
	case c.render:
		rendered, err := cliui.RenderMarkdown(cliui.Sanitize(summary.Content()))
		if err != nil {
			return fmt.Errorf("rendering markdown: %w", err)
		}
		fmt.Fprint(out, rendered)
	default:
		fmt.Fprint(out, summary.Text)
	}

	if summary.Error != "" {
		return fmt.Errorf("relay failed: %s", summary.Error)
	}
	return nil
}

// printFrameLines prints one numbered, truncated line per frame followed by
// the stream outcome.
func printFrameLines(out io.Writer, summary *collector.Summary) {
	for i, f := range summary.Frames {
		fmt.Fprintf(out, "%s %s\n",
			cliui.DimStyle.Render(fmt.Sprintf("%3d", i+1)),
			cliui.ValueStyle.Render(utils.Truncate(cliui.Sanitize(f.Payload), maxPayloadWidth)),
		)
	}

	switch {
	case summary.Terminated:
		fmt.Fprintf(out, "\n  %s %d frames, terminated\n", cliui.SuccessMark, len(summary.Frames))
	case summary.Error != "":
		fmt.Fprintf(out, "\n  %s %d frames, failed: %s\n", cliui.FailMark, len(summary.Frames), cliui.Sanitize(summary.Error))
	default:
		fmt.Fprintf(out, "\n  %s %d frames\n", cliui.DimStyle.Render("●"), len(summary.Frames))
	}
}
