package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muurk/smpctl/internal/mgmt"
	"github.com/muurk/smpctl/internal/smp"
	"github.com/muurk/smpctl/internal/ui"
)

func init() {
	errorLookupCmd.Flags().Uint16Var(&lookupGroup, "group", 0, "Management group of a version 2 (\"ret\") error")
	rootCmd.AddCommand(errorLookupCmd)
}

var lookupGroup uint16

var errorLookupCmd = &cobra.Command{
	Use:   "error-lookup RC",
	Short: "Describe an SMP error code",
	Long: `Describe an SMP error code.

Without --group RC is a legacy "rc" value. With --group it is the "rc" of a
version 2 "ret" error map of that group.`,
	Example: `  # Legacy error 8 (ENOTSUP)
  smpctl error-lookup 8

  # Filesystem group error 3
  smpctl error-lookup --group 8 3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := strconv.ParseInt(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid error code %q: %w", args[0], err)
		}

		e := smp.LegacyError(int32(rc))
		if cmd.Flags().Changed("group") {
			e = smp.StructuredError(lookupGroup, int32(rc))
		}

		reg := smp.NewErrorRegistry()
		mgmt.RegisterErrorTables(reg)

		name, desc := reg.Name(e), reg.Describe(e)
		fields := []ui.Field{{Key: "Type", Value: e.Type.String()}}
		if e.Type == smp.ErrorStructured {
			fields = append(fields, ui.Field{Key: "Group", Value: fmt.Sprintf("%d (%s)", e.Group, smp.GroupName(e.Group))})
		}
		fields = append(fields,
			ui.Field{Key: "Code", Value: strconv.FormatInt(rc, 10)},
			ui.Field{Key: "Name", Value: name},
			ui.Field{Key: "Description", Value: desc})

		return ui.NewPrinter(cmd.OutOrStdout(), flags.json).PrintSuccess("Error lookup",
			map[string]any{"group": e.Group, "rc": rc, "name": name, "description": desc}, fields...)
	},
}
