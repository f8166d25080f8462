// Smpctl is a command line client for devices that speak the Simple
// Management Protocol (SMP, also known as MCUmgr).
//
// It talks to a device over a serial console, UDP or a WebSocket bridge and
// exposes the OS, image, statistics, settings, filesystem, shell,
// enumeration and Zephyr management groups as subcommands.
//
// Usage:
//
//	smpctl [command] [flags]
//
// See 'smpctl --help' for available commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/muurk/smpctl/internal/logging"
	"github.com/muurk/smpctl/internal/ui"
	"github.com/muurk/smpctl/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "smpctl",
	Short: "Simple Management Protocol client",
	Long: `A command line client for MCUmgr/SMP devices.

Connection settings come from the selected profile in the configuration
file, SMPCTL_* environment variables and the flags below, in that order.`,
	Version:       version.Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(flags.logLevel)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	addConnectionFlags(rootCmd)

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := ui.NewPrinter(cmd.OutOrStdout(), flags.json)
		if p.JSON() {
			return p.PrintJSON(version.Get())
		}
		p.Println("smpctl " + version.Full())
		for _, line := range version.Get().DependencyLines() {
			p.Println("  " + line)
		}
		return nil
	},
}
