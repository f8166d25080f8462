package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/smpctl/internal/mgmt"
	"github.com/muurk/smpctl/internal/ui"
)

func init() {
	rootCmd.AddCommand(shellCmd, storageEraseCmd)
}

var shellCmd = &cobra.Command{
	Use:   "shell -- COMMAND [ARGS...]",
	Short: "Run a shell command on the device",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return device(cmd, "Shell", func(ctx context.Context, s *session) error {
			g := mgmt.NewShell(s.processor, s.options()...)
			var res mgmt.ShellResult
			if err := s.run(ctx, g, func() error { return g.StartExecute(args, &res) }); err != nil {
				return err
			}
			if s.printer.JSON() {
				return s.printer.PrintJSON(res)
			}
			s.printer.Println(strings.TrimRight(res.Output, "\n"))
			if res.ExitCode != 0 {
				return fmt.Errorf("%s exited with %d", args[0], res.ExitCode)
			}
			return nil
		})
	},
}

var storageEraseCmd = &cobra.Command{
	Use:   "storage-erase",
	Short: "Erase the device's settings storage partition",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flags.yes && !ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Erase storage", []string{
			"The storage partition will be erased",
			"All saved settings are lost",
		}) {
			return nil
		}
		return device(cmd, "Storage erase", func(ctx context.Context, s *session) error {
			g := mgmt.NewZephyr(s.processor, s.options()...)
			if err := s.run(ctx, g, g.StartStorageErase); err != nil {
				return err
			}
			return s.printer.PrintSuccess("Storage erased", map[string]bool{"erased": true})
		})
	},
}
