package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/smpctl/internal/mgmt"
	"github.com/muurk/smpctl/internal/ui"
)

func init() {
	imageEraseCmd.Flags().Uint32Var(&eraseSlot, "slot", 1, "Slot to erase")

	imageCmd.AddCommand(imageListCmd, imageSlotsCmd, imageEraseCmd, imageConfirmCmd, imageTestCmd)
	rootCmd.AddCommand(imageCmd)
}

var eraseSlot uint32

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Image management (MCUboot slots)",
}

var imageListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the state of every image slot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return device(cmd, "Image state", func(ctx context.Context, s *session) error {
			g := mgmt.NewImage(s.processor, s.options()...)
			var slots []mgmt.ImageSlot
			if err := s.run(ctx, g, func() error { return g.StartStateGet(&slots) }); err != nil {
				return err
			}
			return printSlots(s, slots)
		})
	},
}

func printSlots(s *session, slots []mgmt.ImageSlot) error {
	rows := make([][]string, 0, len(slots))
	for _, slot := range slots {
		rows = append(rows, []string{u(slot.Image), u(slot.Slot), slot.Version, slotFlags(slot), slot.HashHex})
	}
	return s.printer.PrintTable(slots, []string{"Image", "Slot", "Version", "Flags", "Hash"}, rows)
}

func slotFlags(slot mgmt.ImageSlot) string {
	var names []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{slot.Active, "active"},
		{slot.Confirmed, "confirmed"},
		{slot.Pending, "pending"},
		{slot.Permanent, "permanent"},
		{slot.Bootable, "bootable"},
	} {
		if f.set {
			names = append(names, f.name)
		}
	}
	return strings.Join(names, " ")
}

var imageSlotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "Show slot sizes of every image",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return device(cmd, "Slot info", func(ctx context.Context, s *session) error {
			g := mgmt.NewImage(s.processor, s.options()...)
			var images []mgmt.ImageInfo
			if err := s.run(ctx, g, func() error { return g.StartSlotInfo(&images) }); err != nil {
				return err
			}

			var rows [][]string
			for _, img := range images {
				for _, slot := range img.Slots {
					rows = append(rows, []string{u(img.Image), u(slot.Slot), u(slot.Size), u(img.MaxImageSize)})
				}
			}
			return s.printer.PrintTable(images, []string{"Image", "Slot", "Size", "Max image size"}, rows)
		})
	},
}

var imageEraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Erase an image slot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flags.yes && !ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Erase image slot", []string{
			fmt.Sprintf("The contents of slot %d will be erased", eraseSlot),
		}) {
			return nil
		}
		return device(cmd, "Image erase", func(ctx context.Context, s *session) error {
			g := mgmt.NewImage(s.processor, s.options()...)
			if err := s.run(ctx, g, func() error { return g.StartErase(eraseSlot) }); err != nil {
				return err
			}
			return s.printer.PrintSuccess("Slot erased", map[string]uint32{"slot": eraseSlot},
				ui.Field{Key: "Slot", Value: strconv.FormatUint(uint64(eraseSlot), 10)})
		})
	},
}

var imageConfirmCmd = &cobra.Command{
	Use:   "confirm [HASH]",
	Short: "Make an image permanent (default: the running image)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var hash []byte
		if len(args) == 1 {
			var err error
			if hash, err = parseHash(args[0]); err != nil {
				return err
			}
		}
		return setImageState(cmd, "Image confirm", hash, true)
	},
}

var imageTestCmd = &cobra.Command{
	Use:   "test HASH",
	Short: "Boot an image once on the next reset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := parseHash(args[0])
		if err != nil {
			return err
		}
		return setImageState(cmd, "Image test", hash, false)
	},
}

func setImageState(cmd *cobra.Command, title string, hash []byte, confirm bool) error {
	return device(cmd, title, func(ctx context.Context, s *session) error {
		g := mgmt.NewImage(s.processor, s.options()...)
		var slots []mgmt.ImageSlot
		if err := s.run(ctx, g, func() error { return g.StartStateSet(hash, confirm, &slots) }); err != nil {
			return err
		}
		return printSlots(s, slots)
	})
}

func parseHash(s string) ([]byte, error) {
	hash, err := hex.DecodeString(s)
	if err != nil || len(hash) == 0 {
		return nil, fmt.Errorf("invalid image hash %q: expected hex", s)
	}
	return hash, nil
}
