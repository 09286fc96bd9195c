// ABOUTME: Entry point for the model-router server and its companion commands
// ABOUTME: Cobra root with serve, init, health, models, conversations and version

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

const banner = `
                     _      _                        _
 _ __ ___   ___   __| | ___| |      _ __ ___  _   _| |_ ___ _ __
| '_ ' _ \ / _ \ / _' |/ _ \ |_____| '__/ _ \| | | | __/ _ \ '__|
| | | | | | (_) | (_| |  __/ |_____| | | (_) | |_| | ||  __/ |
|_| |_| |_|\___/ \__,_|\___|_|     |_|  \___/ \__,_|\__\___|_|
`

// defaultAddr is where client commands look for a running server.
const defaultAddr = "localhost:3791"

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "model-router",
		Short:         "Route prompts to LLM providers with server-side conversation memory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default $MODEL_ROUTER_CONFIG or ~/.config/model-router/config.yaml)")

	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newInitCmd(&configPath))
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newModelsCmd())
	cmd.AddCommand(newConversationsCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "model-router %s (commit: %s)\n", version, commit)
		},
	}
}

func execute(ctx context.Context, cmd *cobra.Command) int {
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, newRootCmd())
	cancel()
	os.Exit(code)
}
