package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/multierr"
)

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name       string
		settings   Settings
		wantFields []string
	}{
		{
			name:     "valid serial",
			settings: Settings{Transport: TransportSerial, Port: "/dev/ttyUSB0", Timeout: time.Second, Version: 1},
		},
		{
			name:     "valid legacy udp",
			settings: Settings{Transport: TransportUDP, Address: "10.0.0.1", Timeout: time.Second, Version: 0},
		},
		{
			name:       "serial without port",
			settings:   Settings{Transport: TransportSerial, Timeout: time.Second, Version: 1},
			wantFields: []string{"port"},
		},
		{
			name:       "unknown transport",
			settings:   Settings{Transport: "bluetooth", Timeout: time.Second, Version: 1},
			wantFields: []string{"transport"},
		},
		{
			name:       "several problems",
			settings:   Settings{Transport: TransportWebSocket, MTU: -1, Retries: -2, Version: 3},
			wantFields: []string{"url", "mtu", "timeout", "retries", "version"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := multierr.Errors(tt.settings.Validate())
			if len(errs) != len(tt.wantFields) {
				t.Fatalf("Validate() = %v, want fields %v", errs, tt.wantFields)
			}
			for i, err := range errs {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("error %v is not a ValidationError", err)
				}
				if ve.Field != tt.wantFields[i] {
					t.Errorf("error %d field = %s, want %s", i, ve.Field, tt.wantFields[i])
				}
			}
		})
	}
}

func TestUnknownProfile(t *testing.T) {
	_, err := NewRegistry().Settings("ghost")
	if !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("Settings() error = %v, want ErrUnknownProfile", err)
	}
}

func TestOverridesApply(t *testing.T) {
	s := Settings{Transport: TransportSerial, Port: "/dev/ttyACM0", MTU: 128, Timeout: time.Second, Retries: 2, Version: 1}

	NewOverrides().Apply(&s)
	if s.Port != "/dev/ttyACM0" || s.Retries != 2 || s.Version != 1 || s.MTU != 128 {
		t.Errorf("empty overrides changed settings: %+v", s)
	}

	o := NewOverrides()
	o.Transport = TransportUDP
	o.Address = "192.0.2.1"
	o.Retries = 0
	o.Version = 0
	o.Timeout = 250 * time.Millisecond
	o.Apply(&s)

	want := Settings{Transport: TransportUDP, Port: "/dev/ttyACM0", Address: "192.0.2.1", Timeout: 250 * time.Millisecond, Retries: 0, Version: 0}
	if s != want {
		t.Errorf("Apply() = %+v, want %+v", s, want)
	}
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	t.Setenv("SMPCTL_TRANSPORT", "ws")
	t.Setenv("SMPCTL_WS_URL", "ws://localhost:8080/smp")
	t.Setenv("SMPCTL_TIMEOUT", "750ms")
	t.Setenv("SMPCTL_RETRIES", "3")

	o, err := LoadOverrides(context.Background())
	if err != nil {
		t.Fatalf("LoadOverrides() error = %v", err)
	}
	if o.Transport != "ws" || o.URL != "ws://localhost:8080/smp" {
		t.Errorf("LoadOverrides() = %+v", o)
	}
	if o.Timeout != 750*time.Millisecond || o.Retries != 3 {
		t.Errorf("Timeout = %s, Retries = %d", o.Timeout, o.Retries)
	}
	if o.Version != -1 {
		t.Errorf("Version = %d, want -1 when unset", o.Version)
	}
}
