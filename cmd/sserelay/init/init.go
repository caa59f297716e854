// Package initcmder provides the init command for initializing a local
// .sserelay directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/sserelay/pkg/cliui"
	"github.com/papercomputeco/sserelay/pkg/config"
)

const (
	dirName = ".sserelay"

	// maxRemoteConfig bounds a fetched remote config.toml.
	maxRemoteConfig = 1 << 20

	fetchTimeout = 10 * time.Second
)

const initLongDesc string = `Initialize a new .sserelay/ directory in the current working directory.

Creates a local .sserelay/ directory that takes precedence over the default
~/.sserelay/ directory for configuration.

With --preset, config.toml is written (or overwritten) from a named upstream
preset (openai, anthropic, ollama) or fetched from an http(s) URL.

Examples:
  sserelay init
  sserelay init --preset anthropic
  sserelay init --preset https://example.com/sserelay/config.toml`

const initShortDesc string = "Initialize a local .sserelay/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runInit(ctx, cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Upstream preset ("+strings.Join(config.ValidPresetNames(), ", ")+") or config URL")
	_ = cmd.RegisterFlagCompletionFunc("preset", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.ValidPresetNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runInit(ctx context.Context, out io.Writer, preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		fmt.Fprintf(out, "Already initialized: %s\n", dir)
	default:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .sserelay directory: %w", err)
		}
		fmt.Fprintf(out, "Initialized .sserelay directory: %s\n", dir)
	}

	if preset == "" {
		return nil
	}

	cfg, err := resolvePreset(ctx, preset)
	if err != nil {
		return err
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "  %s Wrote %s from preset %s\n",
		cliui.SuccessMark,
		cliui.DimStyle.Render(cfger.GetTarget()),
		cliui.KeyStyle.Render(preset),
	)
	return nil
}

// resolvePreset returns the config for a named preset, or fetches and parses
// one when preset is an http(s) URL.
func resolvePreset(ctx context.Context, preset string) (*config.Config, error) {
	if !strings.HasPrefix(preset, "http://") && !strings.HasPrefix(preset, "https://") {
		return config.PresetConfig(preset)
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, preset, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteConfig+1))
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	if len(data) > maxRemoteConfig {
		return nil, errors.New("fetching remote config: config exceeds 1 MiB")
	}

	cfg, err := config.ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
