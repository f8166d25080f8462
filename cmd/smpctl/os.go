package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/smpctl/internal/mgmt"
	"github.com/muurk/smpctl/internal/ui"
)

func init() {
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "Reset even if the application vetoes it")
	infoCmd.Flags().StringVar(&infoFormat, "format", "", "Format characters, e.g. \"a\" for everything (default: kernel name)")
	datetimeCmd.AddCommand(datetimeSetCmd)

	rootCmd.AddCommand(echoCmd, resetCmd, taskstatCmd, mpstatCmd, datetimeCmd, paramsCmd, infoCmd, bootloaderCmd)
}

var (
	resetForce bool
	infoFormat string
)

var echoCmd = &cobra.Command{
	Use:   "echo TEXT...",
	Short: "Send text to the device and print its reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		return device(cmd, "Echo", func(ctx context.Context, s *session) error {
			g := mgmt.NewOS(s.processor, s.options()...)
			var reply string
			if err := s.run(ctx, g, func() error { return g.StartEcho(text, &reply) }); err != nil {
				return err
			}
			return s.printer.PrintSuccess("Echo", map[string]string{"r": reply},
				ui.Field{Key: "Sent", Value: text},
				ui.Field{Key: "Reply", Value: reply})
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return device(cmd, "Reset", func(ctx context.Context, s *session) error {
			g := mgmt.NewOS(s.processor, s.options()...)
			if err := s.run(ctx, g, func() error { return g.StartReset(resetForce) }); err != nil {
				return err
			}
			return s.printer.PrintSuccess("Reset requested", map[string]bool{"force": resetForce},
				ui.Field{Key: "Force", Value: strconv.FormatBool(resetForce)})
		})
	},
}

var taskstatCmd = &cobra.Command{
	Use:   "taskstat",
	Short: "Show task/thread statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return device(cmd, "Task statistics", func(ctx context.Context, s *session) error {
			g := mgmt.NewOS(s.processor, s.options()...)
			var tasks []mgmt.TaskInfo
			if err := s.run(ctx, g, func() error { return g.StartTaskStats(&tasks) }); err != nil {
				return err
			}

			rows := make([][]string, 0, len(tasks))
			for _, t := range tasks {
				rows = append(rows, []string{
					t.Name, u(t.ID), u(t.Priority), u(t.State),
					fmt.Sprintf("%d/%d", t.StackUsed, t.StackSize),
					u(t.ContextSwitches), u(t.Runtime),
				})
			}
			return s.printer.PrintTable(tasks,
				[]string{"Task", "ID", "Priority", "State", "Stack", "Switches", "Runtime"}, rows)
		})
	},
}

var mpstatCmd = &cobra.Command{
	Use:   "mpstat",
	Short: "Show memory pool statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return device(cmd, "Memory pools", func(ctx context.Context, s *session) error {
			g := mgmt.NewOS(s.processor, s.options()...)
			var pools []mgmt.MemoryPool
			if err := s.run(ctx, g, func() error { return g.StartMemoryPool(&pools) }); err != nil {
				return err
			}

			rows := make([][]string, 0, len(pools))
			for _, p := range pools {
				rows = append(rows, []string{p.Name, u(p.BlockSize), u(p.Blocks), u(p.Free), u(p.Minimum)})
			}
			return s.printer.PrintTable(pools,
				[]string{"Pool", "Block size", "Blocks", "Free", "Minimum"}, rows)
		})
	},
}

var datetimeCmd = &cobra.Command{
	Use:   "datetime",
	Short: "Show the device clock",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return device(cmd, "Date/time", func(ctx context.Context, s *session) error {
			g := mgmt.NewOS(s.processor, s.options()...)
			var t time.Time
			if err := s.run(ctx, g, func() error { return g.StartDateTimeGet(&t) }); err != nil {
				return err
			}
			return s.printer.PrintSuccess("Device clock", map[string]string{"datetime": t.Format(time.RFC3339)},
				ui.Field{Key: "Date/time", Value: t.Format(time.RFC3339)})
		})
	},
}

var datetimeSetCmd = &cobra.Command{
	Use:   "set [TIME]",
	Short: "Set the device clock (RFC 3339, default: now)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t := time.Now()
		if len(args) == 1 {
			var err error
			if t, err = parseTime(args[0]); err != nil {
				return err
			}
		}
		return device(cmd, "Set date/time", func(ctx context.Context, s *session) error {
			g := mgmt.NewOS(s.processor, s.options()...)
			if err := s.run(ctx, g, func() error { return g.StartDateTimeSet(t) }); err != nil {
				return err
			}
			return s.printer.PrintSuccess("Device clock set", map[string]string{"datetime": t.Format(mgmt.DateTimeLayout)},
				ui.Field{Key: "Date/time", Value: t.Format(mgmt.DateTimeLayout)})
		})
	},
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, mgmt.DateTimeLayout} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q, expected RFC 3339 or %s", s, mgmt.DateTimeLayout)
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Show the device's SMP buffer parameters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return device(cmd, "MCUmgr parameters", func(ctx context.Context, s *session) error {
			g := mgmt.NewOS(s.processor, s.options()...)
			var p mgmt.Parameters
			if err := s.run(ctx, g, func() error { return g.StartParameters(&p) }); err != nil {
				return err
			}
			return s.printer.PrintSuccess("MCUmgr parameters", p,
				ui.Field{Key: "Buffer size", Value: u(p.BufferSize)},
				ui.Field{Key: "Buffer count", Value: u(p.BufferCount)})
		})
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show OS/application information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return device(cmd, "OS/application info", func(ctx context.Context, s *session) error {
			g := mgmt.NewOS(s.processor, s.options()...)
			var output string
			if err := s.run(ctx, g, func() error { return g.StartAppInfo(infoFormat, &output) }); err != nil {
				return err
			}
			return s.printer.PrintSuccess("OS/application info", map[string]string{"output": output},
				ui.Field{Key: "Info", Value: output})
		})
	},
}

var bootloaderCmd = &cobra.Command{
	Use:   "bootloader [QUERY]",
	Short: "Show bootloader information (e.g. query \"mode\")",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var query string
		if len(args) == 1 {
			query = args[0]
		}
		return device(cmd, "Bootloader info", func(ctx context.Context, s *session) error {
			g := mgmt.NewOS(s.processor, s.options()...)
			var info mgmt.BootloaderInfo
			if err := s.run(ctx, g, func() error { return g.StartBootloaderInfo(query, &info) }); err != nil {
				return err
			}

			fields := []ui.Field{{Key: "Bootloader", Value: info.Bootloader}}
			if info.HasMode {
				fields = append(fields,
					ui.Field{Key: "Mode", Value: strconv.FormatInt(info.Mode, 10)},
					ui.Field{Key: "No downgrade", Value: strconv.FormatBool(info.NoDowngrade)})
			}
			return s.printer.PrintSuccess("Bootloader info", info, fields...)
		})
	},
}

func u(v uint64) string {
	return strconv.FormatUint(v, 10)
}
