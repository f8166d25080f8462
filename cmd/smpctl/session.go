package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/smpctl/internal/config"
	"github.com/muurk/smpctl/internal/logging"
	"github.com/muurk/smpctl/internal/mgmt"
	"github.com/muurk/smpctl/internal/smp"
	"github.com/muurk/smpctl/internal/transport/serial"
	"github.com/muurk/smpctl/internal/transport/udp"
	"github.com/muurk/smpctl/internal/transport/websocket"
	"github.com/muurk/smpctl/internal/ui"
)

// Connection flags shared by every device command
var flags struct {
	configPath string
	profile    string
	transport  string
	port       string
	baud       int
	address    string
	url        string
	mtu        int
	timeout    time.Duration
	retries    int
	smpVersion int
	logLevel   string
	json       bool
	yes        bool
}

func addConnectionFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&flags.configPath, "config", "", "Configuration file (default: user config directory)")
	f.StringVar(&flags.profile, "profile", "", "Connection profile from the configuration file")
	f.StringVar(&flags.transport, "transport", "", "Transport: serial, udp or ws")
	f.StringVar(&flags.port, "port", "", "Serial port (e.g. /dev/ttyACM0)")
	f.IntVar(&flags.baud, "baud", serial.DefaultBaudRate, "Serial baud rate")
	f.StringVar(&flags.address, "address", "", "UDP address, host or host:port")
	f.StringVar(&flags.url, "url", "", "WebSocket URL")
	f.IntVar(&flags.mtu, "mtu", 0, "Transport MTU (0 for the transport default)")
	f.DurationVar(&flags.timeout, "timeout", config.DefaultTimeout, "Response timeout per attempt")
	f.IntVar(&flags.retries, "retries", config.DefaultRetries, "Retransmissions after a timeout")
	f.IntVar(&flags.smpVersion, "smp-version", config.DefaultVersion, "SMP protocol version: 0 (legacy) or 1")
	f.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error (default: silent)")
	f.BoolVar(&flags.json, "json", false, "Print results as JSON")
	f.BoolVarP(&flags.yes, "yes", "y", false, "Do not ask before destructive operations")
}

// flagOverrides returns the connection flags the user actually set
func flagOverrides(cmd *cobra.Command) *config.Overrides {
	o := config.NewOverrides()
	f := cmd.Flags()
	if f.Changed("transport") {
		o.Transport = flags.transport
	}
	if f.Changed("port") {
		o.Port = flags.port
	}
	if f.Changed("baud") {
		o.Baud = flags.baud
	}
	if f.Changed("address") {
		o.Address = flags.address
	}
	if f.Changed("url") {
		o.URL = flags.url
	}
	if f.Changed("mtu") {
		o.MTU = flags.mtu
	}
	if f.Changed("timeout") {
		o.Timeout = flags.timeout
	}
	if f.Changed("retries") {
		o.Retries = flags.retries
	}
	if f.Changed("smp-version") {
		o.Version = flags.smpVersion
	}
	return o
}

func loadRegistry() (*config.Registry, error) {
	if flags.configPath != "" {
		return config.LoadRegistryFrom(flags.configPath)
	}
	return config.LoadRegistry()
}

// resolveSettings merges the configuration file, environment and flags
func resolveSettings(cmd *cobra.Command) (config.Settings, error) {
	reg, err := loadRegistry()
	if err != nil {
		return config.Settings{}, err
	}

	env, err := config.LoadOverrides(cmd.Context())
	if err != nil {
		return config.Settings{}, err
	}

	profile := flags.profile
	if profile == "" {
		profile = env.Profile
	}
	s, err := reg.Settings(profile)
	if err != nil {
		return config.Settings{}, err
	}

	env.Apply(&s)
	flagOverrides(cmd).Apply(&s)

	// A bare --address or --url implies its transport
	if !cmd.Flags().Changed("transport") && env.Transport == "" {
		switch {
		case cmd.Flags().Changed("address"):
			s.Transport = config.TransportUDP
		case cmd.Flags().Changed("url"):
			s.Transport = config.TransportWebSocket
		}
	}
	return s, nil
}

// waitOutput is where the spinner is drawn when it is a terminal
var waitOutput = os.Stderr

// session is one open connection to a device
type session struct {
	settings  config.Settings
	transport smp.Transport
	processor *smp.Processor
	errors    *smp.ErrorRegistry
	printer   *ui.Printer
	log       *zap.Logger
}

func openSession(cmd *cobra.Command) (*session, error) {
	s, err := resolveSettings(cmd)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection settings: %w", err)
	}

	t, err := openTransport(cmd.Context(), s)
	if err != nil {
		return nil, err
	}

	return &session{
		settings:  s,
		transport: t,
		processor: smp.NewProcessor(t, smp.WithLogger(logging.Named("smp"))),
		errors:    smp.NewErrorRegistry(),
		printer:   ui.NewPrinter(cmd.OutOrStdout(), flags.json),
		log:       logging.Named("cli"),
	}, nil
}

func openTransport(ctx context.Context, s config.Settings) (smp.Transport, error) {
	switch s.Transport {
	case config.TransportSerial:
		return serial.Open(serial.Config{Port: s.Port, BaudRate: s.Baud, MTU: s.MTU})
	case config.TransportUDP:
		return udp.Open(udp.Config{Address: s.Address, MTU: s.MTU})
	case config.TransportWebSocket:
		return websocket.Dial(ctx, websocket.Config{URL: s.URL, MTU: s.MTU})
	default:
		return nil, fmt.Errorf("unknown transport %q", s.Transport)
	}
}

// endpoint names the device for headers
func (s *session) endpoint() string {
	return endpointOf(s.settings)
}

// options configures a group for this session
func (s *session) options() []mgmt.Option {
	return []mgmt.Option{
		mgmt.WithConfig(mgmt.Config{
			Version: uint8(s.settings.Version),
			Timeout: s.settings.Timeout,
			Retries: s.settings.Retries,
		}),
		mgmt.WithErrorRegistry(s.errors),
		mgmt.WithLogger(logging.Named("mgmt")),
	}
}

func (s *session) Close() error {
	return s.transport.Close()
}

// managed is what the CLI needs from a group
type managed interface {
	mgmt.Observable
	Name() string
	LastError() smp.Error
	OnVersionMismatch(fn func(version uint8)) func()
}

// DeviceError is a command the device answered with an error code.
type DeviceError struct {
	Name    string
	Message string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Name)
}

// header prints the command banner
func (s *session) header(cmd *cobra.Command, title string) {
	s.printer.PrintHeader(title, cmd.CommandPath(),
		ui.Field{Key: "Transport", Value: s.settings.Transport},
		ui.Field{Key: "Device", Value: s.endpoint()},
	)
}

// run starts a command on g and waits for its terminal status, showing a
// spinner on a terminal.
func (s *session) run(ctx context.Context, g managed, start func() error) error {
	defer g.OnVersionMismatch(func(v uint8) {
		s.log.Warn("Device uses a different SMP version; later requests use it", zap.Uint8("version", v))
	})()

	label := fmt.Sprintf("Waiting for %s response from %s", g.Name(), s.endpoint())
	var res mgmt.Result
	err := ui.Wait(ctx, waitOutput, label, func(ctx context.Context) error {
		var err error
		res, err = mgmt.Await(ctx, g, start)
		return err
	})
	if err != nil {
		return err
	}

	switch res.Status {
	case mgmt.StatusComplete:
		return nil
	case mgmt.StatusError, mgmt.StatusUnsupported:
		if e := g.LastError(); !e.IsNone() {
			return &DeviceError{Name: s.errors.Name(e), Message: res.Message}
		}
	}
	return res.Err()
}

// device opens a session, runs fn with it and reports failures in the
// printer's style.
func device(cmd *cobra.Command, title string, fn func(ctx context.Context, s *session) error) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	s.header(cmd, title)

	err = fn(cmd.Context(), s)
	err = multierr.Append(err, s.Close())
	if err != nil {
		s.printer.PrintError(title+" failed", err, troubleshooting(err))
		return reportedError{err}
	}
	return nil
}

// reportedError has already been shown to the user
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error {
	return e.error
}

func troubleshooting(err error) []string {
	var status *mgmt.StatusError
	if !errors.As(err, &status) {
		if errors.Is(err, smp.ErrTransport) {
			return []string{"Check the device is connected and the port or address is right"}
		}
		return nil
	}
	switch status.Status {
	case mgmt.StatusTimeout:
		return []string{
			"Check the device runs an SMP server on this transport",
			"Try a longer --timeout or more --retries",
			"Try --smp-version 0 for older firmware",
		}
	case mgmt.StatusMessageTooLarge:
		return []string{"Increase --mtu if the device buffers allow it"}
	case mgmt.StatusTransportDisconnected:
		return []string{"The device closed the connection; it may be rebooting"}
	}
	return nil
}
