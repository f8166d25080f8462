package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/smpctl/internal/discovery"
	"github.com/muurk/smpctl/internal/ui"
)

var (
	scanTimeout  time.Duration
	scanInstance string
)

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "scan-timeout", discovery.DefaultScanTimeout, "How long to listen for devices")
	scanCmd.Flags().StringVar(&scanInstance, "instance", "", "Stop at the device with this instance name")
	rootCmd.AddCommand(scanCmd)
}

// scanCmd discovers devices on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for SMP devices on the network",
	Long: `Scan for SMP over UDP servers using mDNS/DNS-SD discovery.

Devices advertise the ` + discovery.ServiceType + ` service. Use the address
shown with --address to talk to one.`,
	Example: `  # Scan for 5 seconds (default)
  smpctl scan

  # Longer scan for slow networks
  smpctl scan --scan-timeout 15s

  # Wait for one device
  smpctl scan --instance zephyr`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printer := ui.NewPrinter(cmd.OutOrStdout(), flags.json)

		scanner := discovery.NewScanner()
		scanner.Timeout = scanTimeout

		var devices []*discovery.Device
		err := ui.Wait(cmd.Context(), waitOutput, "Scanning for "+discovery.ServiceType+" services", func(ctx context.Context) error {
			if scanInstance == "" {
				var err error
				devices, err = scanner.Scan(ctx)
				return err
			}
			d, err := scanner.Find(ctx, scanInstance)
			if err != nil {
				return err
			}
			devices = []*discovery.Device{d}
			return nil
		})
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		if len(devices) == 0 && !printer.JSON() {
			printer.Println(ui.NewWarningResult("No devices found",
				ui.Field{Key: "Service", Value: discovery.ServiceType},
				ui.Field{Key: "Waited", Value: scanTimeout.String()}).Render())
			return nil
		}

		rows := make([][]string, 0, len(devices))
		for _, d := range devices {
			rows = append(rows, []string{d.Instance, d.Hostname, d.Address(), strconv.Itoa(len(d.Metadata))})
		}
		return printer.PrintTable(devices, []string{"Instance", "Host", "Address", "TXT"}, rows)
	},
}
