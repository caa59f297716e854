// Package authcmder provides the auth command for storing the upstream API
// credential used by the relay.
package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/sserelay/pkg/cliui"
	"github.com/papercomputeco/sserelay/pkg/config"
	"github.com/papercomputeco/sserelay/pkg/dotdir"
)

const apiKeyConfigKey = "relay.api_key"

const authLongDesc string = `Store the upstream API credential.

The key is stored as relay.api_key in config.toml in the .sserelay/ directory
and sent upstream as a bearer token whenever a client presents none. A running
"sserelay serve" picks up the new key without a restart.

Examples:
  sserelay auth                  Prompt for the API key
  echo $KEY | sserelay auth      Pipe the API key from stdin
  sserelay auth --remove         Remove the stored API key`

const authShortDesc string = "Store the upstream API credential"

func NewAuthCmd() *cobra.Command {
	var removeFlag bool

	cmd := &cobra.Command{
		Use:   "auth",
		Short: authShortDesc,
		Long:  authLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			if removeFlag {
				return runRemove(cmd.OutOrStdout(), configDir)
			}
			return runAuth(cmd.InOrStdin(), cmd.OutOrStdout(), configDir)
		},
	}

	cmd.Flags().BoolVar(&removeFlag, "remove", false, "Remove the stored API key")

	return cmd
}

func runAuth(in io.Reader, out io.Writer, configDir string) error {
	apiKey, err := readAPIKey(in, out)
	if err != nil {
		return err
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("API key cannot be empty")
	}

	cfger, err := newConfiger(configDir)
	if err != nil {
		return err
	}

	if err := cfger.SetConfigValue(apiKeyConfigKey, apiKey); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Stored API key %s\n\n",
		cliui.SuccessMark,
		cliui.DimStyle.Render("("+cfger.GetTarget()+")"),
	)
	return nil
}

func runRemove(out io.Writer, configDir string) error {
	cfger, err := newConfiger(configDir)
	if err != nil {
		return err
	}

	if err := cfger.SetConfigValue(apiKeyConfigKey, ""); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Removed API key.\n\n", cliui.SuccessMark)
	return nil
}

func newConfiger(configDir string) (*config.Configer, error) {
	dir, err := dotdir.NewManager().Ensure(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfger, nil
}

// readAPIKey reads an API key from in. When in is an interactive terminal it
// prompts with hidden input; otherwise it reads the first line.
func readAPIKey(in io.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, "Enter upstream API key: ")

		keyBytes, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out) // newline after hidden input
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return string(keyBytes), nil
	}

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return "", errors.New("no input received on stdin")
}
