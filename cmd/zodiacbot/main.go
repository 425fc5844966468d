// zodiacbot serves the ZodiacBot HTTP API and carries a few operator
// commands.
//
// Usage:
//
//	zodiacbot serve                  Run the HTTP API
//	zodiacbot reconcile <payment>    Activate the subscription behind a paid checkout
//	zodiacbot cards                  Print the card meanings catalogue
//	zodiacbot version                Print the build version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zodiacbot/zodiacbot/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "zodiacbot:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "zodiacbot",
		Short:         "AI divination backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFile, "path to the YAML config file")

	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}
	root.AddCommand(serveCmd(load))
	root.AddCommand(reconcileCmd(load))
	root.AddCommand(cardsCmd())
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
