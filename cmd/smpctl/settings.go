package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/muurk/smpctl/internal/mgmt"
	"github.com/muurk/smpctl/internal/ui"
)

func init() {
	settingsReadCmd.Flags().Uint32Var(&settingsMaxSize, "max-size", 0, "Largest value to return (0 for the device default)")
	settingsWriteCmd.Flags().BoolVar(&settingsHex, "hex", false, "VALUE is hex encoded bytes")

	settingsCmd.AddCommand(settingsReadCmd, settingsWriteCmd, settingsDeleteCmd,
		settingsCommitCmd, settingsLoadCmd, settingsSaveCmd)
	rootCmd.AddCommand(settingsCmd)
}

var (
	settingsMaxSize uint32
	settingsHex     bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Settings (config) management",
}

var settingsReadCmd = &cobra.Command{
	Use:   "read KEY",
	Short: "Read a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		return device(cmd, "Settings read", func(ctx context.Context, s *session) error {
			g := mgmt.NewSettings(s.processor, s.options()...)
			var value []byte
			if err := s.run(ctx, g, func() error { return g.StartRead(key, settingsMaxSize, &value) }); err != nil {
				return err
			}

			fields := []ui.Field{{Key: "Key", Value: key}, {Key: "Hex", Value: hex.EncodeToString(value)}}
			if utf8.Valid(value) {
				fields = append(fields, ui.Field{Key: "Text", Value: string(value)})
			}
			return s.printer.PrintSuccess("Setting", map[string]string{"name": key, "val": hex.EncodeToString(value)}, fields...)
		})
	},
}

var settingsWriteCmd = &cobra.Command{
	Use:   "write KEY VALUE",
	Short: "Write a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], []byte(args[1])
		if settingsHex {
			var err error
			if value, err = hex.DecodeString(args[1]); err != nil {
				return fmt.Errorf("invalid hex value: %w", err)
			}
		}
		return settingsAction(cmd, "Settings write", func(g *mgmt.Settings) error { return g.StartWrite(key, value) },
			ui.Field{Key: "Key", Value: key})
	},
}

var settingsDeleteCmd = &cobra.Command{
	Use:   "delete KEY",
	Short: "Delete a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		return settingsAction(cmd, "Settings delete", func(g *mgmt.Settings) error { return g.StartDelete(key) },
			ui.Field{Key: "Key", Value: key})
	},
}

var settingsCommitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Apply written settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return settingsAction(cmd, "Settings commit", (*mgmt.Settings).StartCommit)
	},
}

var settingsLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load settings from persistent storage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return settingsAction(cmd, "Settings load", (*mgmt.Settings).StartLoad)
	},
}

var settingsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save settings to persistent storage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return settingsAction(cmd, "Settings save", (*mgmt.Settings).StartSave)
	},
}

func settingsAction(cmd *cobra.Command, title string, start func(*mgmt.Settings) error, details ...ui.Field) error {
	return device(cmd, title, func(ctx context.Context, s *session) error {
		g := mgmt.NewSettings(s.processor, s.options()...)
		if err := s.run(ctx, g, func() error { return start(g) }); err != nil {
			return err
		}
		return s.printer.PrintSuccess(title+" complete", map[string]bool{"ok": true}, details...)
	})
}
