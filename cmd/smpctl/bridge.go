package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/smpctl/internal/bridge"
	"github.com/muurk/smpctl/internal/config"
	"github.com/muurk/smpctl/internal/ui"
)

var bridgeListen string

func init() {
	bridgeCmd.Flags().StringVar(&bridgeListen, "listen", ":8080", "Address to accept WebSocket clients on")
	rootCmd.AddCommand(bridgeCmd)
}

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Serve the device to WebSocket clients",
	Long: `Serve the configured device to WebSocket clients.

Each binary WebSocket message is forwarded to the device as one SMP frame
and the device's answers are sent back. Remote clients connect with
--url ws://HOST:8080/smp.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := resolveSettings(cmd)
		if err != nil {
			return err
		}
		if s.Transport == config.TransportWebSocket {
			return errors.New("the bridge needs a serial or udp device")
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("invalid connection settings: %w", err)
		}

		device, err := openTransport(cmd.Context(), s)
		if err != nil {
			return err
		}

		b := bridge.New(device, bridge.Config{Listen: bridgeListen})
		p := ui.NewPrinter(cmd.OutOrStdout(), flags.json)
		p.PrintHeader("SMP bridge", cmd.CommandPath(),
			ui.Field{Key: "Device", Value: endpointOf(s)},
			ui.Field{Key: "Listen", Value: bridgeListen + bridge.DefaultPath})

		errc := make(chan error, 1)
		go func() { errc <- b.Start() }()

		select {
		case err = <-errc:
			_ = device.Close()
			return err
		case <-cmd.Context().Done():
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return b.Shutdown(ctx)
	},
}
