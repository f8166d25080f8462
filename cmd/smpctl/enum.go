package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muurk/smpctl/internal/mgmt"
	"github.com/muurk/smpctl/internal/smp"
	"github.com/muurk/smpctl/internal/ui"
)

func init() {
	enumCmd.AddCommand(enumCountCmd, enumListCmd, enumSingleCmd, enumDetailsCmd)
	rootCmd.AddCommand(enumCmd)
}

var enumCmd = &cobra.Command{
	Use:   "enum",
	Short: "List the management groups a device supports",
}

var enumCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count supported groups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return device(cmd, "Group count", func(ctx context.Context, s *session) error {
			g := mgmt.NewEnum(s.processor, s.options()...)
			var count uint64
			if err := s.run(ctx, g, func() error { return g.StartCount(&count) }); err != nil {
				return err
			}
			return s.printer.PrintSuccess("Group count", map[string]uint64{"count": count},
				ui.Field{Key: "Groups", Value: u(count)})
		})
	},
}

var enumListCmd = &cobra.Command{
	Use:   "list",
	Short: "List supported group IDs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return device(cmd, "Group list", func(ctx context.Context, s *session) error {
			g := mgmt.NewEnum(s.processor, s.options()...)
			var groups []uint16
			if err := s.run(ctx, g, func() error { return g.StartList(&groups) }); err != nil {
				return err
			}

			rows := make([][]string, 0, len(groups))
			for _, id := range groups {
				rows = append(rows, []string{strconv.Itoa(int(id)), smp.GroupName(id)})
			}
			return s.printer.PrintTable(groups, []string{"ID", "Name"}, rows)
		})
	},
}

var enumSingleCmd = &cobra.Command{
	Use:   "single INDEX",
	Short: "Show the group at an index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.ParseUint(args[0], 10, 16)
		if err != nil {
			return fmt.Errorf("invalid index %q: %w", args[0], err)
		}
		return device(cmd, "Group at index", func(ctx context.Context, s *session) error {
			g := mgmt.NewEnum(s.processor, s.options()...)
			var entry mgmt.EnumEntry
			if err := s.run(ctx, g, func() error { return g.StartSingle(uint16(index), &entry) }); err != nil {
				return err
			}
			return s.printer.PrintSuccess("Group at index "+args[0], entry,
				ui.Field{Key: "Group", Value: fmt.Sprintf("%d (%s)", entry.Group, smp.GroupName(entry.Group))},
				ui.Field{Key: "Last", Value: strconv.FormatBool(entry.End)})
		})
	},
}

var enumDetailsCmd = &cobra.Command{
	Use:   "details [GROUP...]",
	Short: "Show name and handler count of groups (default: all)",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := make([]uint16, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseUint(arg, 10, 16)
			if err != nil {
				return fmt.Errorf("invalid group %q: %w", arg, err)
			}
			filter = append(filter, uint16(id))
		}
		return device(cmd, "Group details", func(ctx context.Context, s *session) error {
			g := mgmt.NewEnum(s.processor, s.options()...)
			var details []mgmt.GroupDetails
			if err := s.run(ctx, g, func() error { return g.StartDetails(filter, &details) }); err != nil {
				return err
			}

			rows := make([][]string, 0, len(details))
			for _, d := range details {
				rows = append(rows, []string{strconv.Itoa(int(d.Group)), d.Name, u(d.Handlers)})
			}
			return s.printer.PrintTable(details, []string{"ID", "Name", "Handlers"}, rows)
		})
	},
}
