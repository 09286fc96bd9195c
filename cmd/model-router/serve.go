// ABOUTME: serve and init commands: load configuration and run the gateway
// ABOUTME: A missing default config file falls back to built-in defaults

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/model-router/internal/config"
	"github.com/2389/model-router/internal/gateway"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the model-router server",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cyan := color.New(color.FgCyan)
			cyan.Fprint(out, banner)
			color.New(color.FgHiBlack).Fprintf(out, "    version: %s\n\n", version)

			cfg, path, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			logger := setupLogger(cfg.Logging, out)
			printStartup(out, cfg, path)

			logger.Info("starting model-router",
				"config", path,
				"http_addr", cfg.Server.HTTPAddr,
				"tailscale", cfg.Tailscale.Enabled,
			)

			gw, err := gateway.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("creating gateway: %w", err)
			}
			return gw.Run(cmd.Context())
		},
	}
}

func newInitCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := config.ResolvePath(*configPath)
			if err := config.WriteDefault(path); err != nil {
				if errors.Is(err, os.ErrExist) {
					return fmt.Errorf("config already exists at %s", path)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
}

// loadConfig loads .env files and then the config file. The returned path is
// empty when built-in defaults were used.
func loadConfig(flagPath string) (*config.Config, string, error) {
	if err := config.LoadDotEnv(config.DefaultDotEnvFiles...); err != nil {
		return nil, "", err
	}

	path, explicit := config.ResolvePath(flagPath)
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func printStartup(out io.Writer, cfg *config.Config, path string) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	if path == "" {
		path = "(built-in defaults)"
	}
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Config:    %s\n", path)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Ledger:    %s\n", cfg.Database.Path)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Prompts:   %s\n", cfg.Prompts.Path)

	if cfg.Tailscale.Enabled {
		green.Fprint(out, "    ▶ ")
		fmt.Fprint(out, "Tailscale: ")
		cyan.Fprint(out, cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Fprint(out, " [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Fprint(out, " (ephemeral)")
		}
		fmt.Fprintln(out)
	}

	for _, missing := range missingKeys(cfg.Providers) {
		yellow.Fprint(out, "    ! ")
		fmt.Fprintf(out, "%s API key not set; its models will fail\n", missing)
	}

	fmt.Fprintln(out)
}

// missingKeys names the vendors configured without an API key.
func missingKeys(p config.ProvidersConfig) []string {
	var out []string
	for _, v := range []struct {
		name string
		key  string
	}{
		{"OpenAI", p.OpenAI.APIKey},
		{"Anthropic", p.Anthropic.APIKey},
		{"xAI", p.XAI.APIKey},
		{"Gemini", p.Gemini.APIKey},
	} {
		if v.key == "" {
			out = append(out, v.name)
		}
	}
	return out
}
