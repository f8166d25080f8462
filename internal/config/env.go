package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// EnvFile is loaded into the environment, when present, before overrides
// are read.
const EnvFile = ".env.local"

// Overrides are settings taken from SMPCTL_* environment variables. Zero
// values (and -1 for the integer protocol fields) mean "not set".
type Overrides struct {
	Profile   string        `env:"SMPCTL_PROFILE"`
	Transport string        `env:"SMPCTL_TRANSPORT"`
	Port      string        `env:"SMPCTL_SERIAL_PORT"`
	Baud      int           `env:"SMPCTL_SERIAL_BAUD"`
	Address   string        `env:"SMPCTL_UDP_ADDRESS"`
	URL       string        `env:"SMPCTL_WS_URL"`
	MTU       int           `env:"SMPCTL_MTU"`
	Timeout   time.Duration `env:"SMPCTL_TIMEOUT"`
	Retries   int           `env:"SMPCTL_RETRIES,default=-1"`
	Version   int           `env:"SMPCTL_SMP_VERSION,default=-1"`
	LogLevel  string        `env:"SMPCTL_LOG_LEVEL"`
}

// NewOverrides returns overrides with nothing set.
func NewOverrides() *Overrides {
	return &Overrides{Retries: -1, Version: -1}
}

// LoadOverrides reads EnvFile, if it exists, then the SMPCTL_* variables.
func LoadOverrides(ctx context.Context) (*Overrides, error) {
	if err := godotenv.Load(EnvFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", EnvFile, err)
	}

	var o Overrides
	if err := envconfig.Process(ctx, &o); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &o, nil
}

// Apply copies every set override onto s.
func (o *Overrides) Apply(s *Settings) {
	if o == nil {
		return
	}
	if o.Transport != "" && o.Transport != s.Transport {
		s.Transport = o.Transport
		s.MTU = 0
	}
	if o.Port != "" {
		s.Port = o.Port
	}
	if o.Baud > 0 {
		s.Baud = o.Baud
	}
	if o.Address != "" {
		s.Address = o.Address
	}
	if o.URL != "" {
		s.URL = o.URL
	}
	if o.MTU > 0 {
		s.MTU = o.MTU
	}
	if o.Timeout > 0 {
		s.Timeout = o.Timeout
	}
	if o.Retries >= 0 {
		s.Retries = o.Retries
	}
	if o.Version >= 0 {
		s.Version = o.Version
	}
}
