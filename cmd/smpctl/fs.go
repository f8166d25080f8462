package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muurk/smpctl/internal/mgmt"
	"github.com/muurk/smpctl/internal/ui"
)

func init() {
	fsHashCmd.Flags().StringVar(&hashType, "type", "", "Hash or checksum type (default: device default, usually crc32)")
	fsHashCmd.Flags().Uint64Var(&hashOffset, "offset", 0, "Offset to start hashing at")
	fsHashCmd.Flags().Uint64Var(&hashLength, "length", 0, "Number of bytes to hash (0 for the rest of the file)")

	fsCmd.AddCommand(fsStatCmd, fsHashCmd, fsHashesCmd, fsCloseCmd)
	rootCmd.AddCommand(fsCmd)
}

var (
	hashType   string
	hashOffset uint64
	hashLength uint64
)

var fsCmd = &cobra.Command{
	Use:   "fs",
	Short: "Filesystem management",
}

var fsStatCmd = &cobra.Command{
	Use:   "stat PATH",
	Short: "Show the size of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		return device(cmd, "File status", func(ctx context.Context, s *session) error {
			g := mgmt.NewFS(s.processor, s.options()...)
			var size uint64
			if err := s.run(ctx, g, func() error { return g.StartStatus(path, &size) }); err != nil {
				return err
			}
			return s.printer.PrintSuccess("File status", map[string]any{"name": path, "len": size},
				ui.Field{Key: "File", Value: path},
				ui.Field{Key: "Size", Value: u(size)})
		})
	},
}

var fsHashCmd = &cobra.Command{
	Use:   "hash PATH",
	Short: "Hash or checksum a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		return device(cmd, "File hash", func(ctx context.Context, s *session) error {
			g := mgmt.NewFS(s.processor, s.options()...)
			var h mgmt.FileHash
			if err := s.run(ctx, g, func() error { return g.StartHash(path, hashType, hashOffset, hashLength, &h) }); err != nil {
				return err
			}
			return s.printer.PrintSuccess("File hash", h,
				ui.Field{Key: "File", Value: path},
				ui.Field{Key: "Type", Value: h.Type},
				ui.Field{Key: "Offset", Value: u(h.Offset)},
				ui.Field{Key: "Length", Value: u(h.Length)},
				ui.Field{Key: "Output", Value: h.Hex})
		})
	},
}

var fsHashesCmd = &cobra.Command{
	Use:   "hashes",
	Short: "List the hash and checksum types the device supports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return device(cmd, "Supported hashes", func(ctx context.Context, s *session) error {
			g := mgmt.NewFS(s.processor, s.options()...)
			var types []mgmt.HashType
			if err := s.run(ctx, g, func() error { return g.StartSupportedHashes(&types) }); err != nil {
				return err
			}

			rows := make([][]string, 0, len(types))
			for _, t := range types {
				format := "number"
				if t.Format == mgmt.HashFormatByteString {
					format = "bytes"
				}
				rows = append(rows, []string{t.Name, format, strconv.FormatUint(t.Size, 10)})
			}
			return s.printer.PrintTable(types, []string{"Type", "Format", "Size"}, rows)
		})
	},
}

var fsCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close any file the device holds open",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return device(cmd, "File close", func(ctx context.Context, s *session) error {
			g := mgmt.NewFS(s.processor, s.options()...)
			if err := s.run(ctx, g, g.StartClose); err != nil {
				return err
			}
			return s.printer.PrintSuccess("Files closed", map[string]bool{"closed": true})
		})
	},
}
