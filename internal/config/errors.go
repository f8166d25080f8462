package config

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ErrUnknownProfile is returned when a profile name is not in the registry.
var ErrUnknownProfile = errors.New("unknown profile")

// ValidationError describes one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks that the settings can open a transport. All problems are
// reported together; use multierr.Errors to list them.
func (s Settings) Validate() error {
	var err error

	switch s.Transport {
	case TransportSerial:
		if s.Port == "" {
			err = multierr.Append(err, invalid("port", "a serial port is required"))
		}
		if s.Baud < 0 {
			err = multierr.Append(err, invalid("baud", "must not be negative, got %d", s.Baud))
		}
	case TransportUDP:
		if s.Address == "" {
			err = multierr.Append(err, invalid("address", "a UDP address is required"))
		}
	case TransportWebSocket:
		if s.URL == "" {
			err = multierr.Append(err, invalid("url", "a WebSocket URL is required"))
		}
	default:
		err = multierr.Append(err, invalid("transport", "%q is not one of serial, udp, ws", s.Transport))
	}

	if s.MTU < 0 {
		err = multierr.Append(err, invalid("mtu", "must not be negative, got %d", s.MTU))
	}
	if s.Timeout <= 0 {
		err = multierr.Append(err, invalid("timeout", "must be positive, got %s", s.Timeout))
	}
	if s.Retries < 0 {
		err = multierr.Append(err, invalid("retries", "must not be negative, got %d", s.Retries))
	}
	if s.Version != 0 && s.Version != 1 {
		err = multierr.Append(err, invalid("version", "must be 0 (legacy) or 1 (v2), got %d", s.Version))
	}
	return err
}
