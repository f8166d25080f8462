package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/muurk/smpctl/internal/mgmt"
)

func init() {
	statCmd.AddCommand(statListCmd, statShowCmd)
	rootCmd.AddCommand(statCmd)
}

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Statistics management",
}

var statListCmd = &cobra.Command{
	Use:   "list",
	Short: "List statistics groups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return device(cmd, "Statistics groups", func(ctx context.Context, s *session) error {
			g := mgmt.NewStat(s.processor, s.options()...)
			var names []string
			if err := s.run(ctx, g, func() error { return g.StartListGroups(&names) }); err != nil {
				return err
			}

			rows := make([][]string, 0, len(names))
			for _, name := range names {
				rows = append(rows, []string{name})
			}
			return s.printer.PrintTable(names, []string{"Group"}, rows)
		})
	},
}

var statShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show the values of a statistics group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		return device(cmd, "Statistics "+name, func(ctx context.Context, s *session) error {
			g := mgmt.NewStat(s.processor, s.options()...)
			var values []mgmt.StatValue
			if err := s.run(ctx, g, func() error { return g.StartGroupData(name, &values) }); err != nil {
				return err
			}

			rows := make([][]string, 0, len(values))
			for _, v := range values {
				rows = append(rows, []string{v.Name, u(v.Value)})
			}
			return s.printer.PrintTable(values, []string{"Name", "Value"}, rows)
		})
	},
}
