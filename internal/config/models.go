package config

import (
	"fmt"
	"sort"
	"time"
)

// Transport kinds a profile can name
const (
	TransportSerial    = "serial"
	TransportUDP       = "udp"
	TransportWebSocket = "ws"
)

// Registry represents the entire user configuration file.
// It stores named connection profiles and protocol defaults.
type Registry struct {
	Version        int                 `yaml:"version"`
	DefaultProfile string              `yaml:"default_profile,omitempty"`
	Profiles       map[string]*Profile `yaml:"profiles,omitempty"` // Keyed by profile name
	Protocol       *Protocol           `yaml:"protocol,omitempty"`
}

// Profile describes how to reach one device.
type Profile struct {
	Transport string             `yaml:"transport"` // serial, udp or ws
	Serial    *SerialSettings    `yaml:"serial,omitempty"`
	UDP       *UDPSettings       `yaml:"udp,omitempty"`
	WebSocket *WebSocketSettings `yaml:"websocket,omitempty"`
	Protocol  *Protocol          `yaml:"protocol,omitempty"` // Overrides the registry-wide defaults
}

// SerialSettings configures a console UART transport.
type SerialSettings struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud,omitempty"`
	MTU  int    `yaml:"mtu,omitempty"`
}

// UDPSettings configures a UDP transport.
type UDPSettings struct {
	Address string `yaml:"address"` // host or host:port
	MTU     int    `yaml:"mtu,omitempty"`
}

// WebSocketSettings configures a WebSocket bridge transport.
type WebSocketSettings struct {
	URL string `yaml:"url"`
	MTU int    `yaml:"mtu,omitempty"`
}

// Protocol holds SMP transaction defaults. Nil fields are inherited.
type Protocol struct {
	Timeout time.Duration `yaml:"timeout,omitempty"`
	Retries *int          `yaml:"retries,omitempty"`
	Version *int          `yaml:"version,omitempty"`
}

// Settings is the flattened result of a registry, a profile and overrides:
// everything needed to open a transport and configure the groups.
type Settings struct {
	Transport string
	Port      string
	Baud      int
	Address   string
	URL       string
	MTU       int // 0 selects the transport default
	Timeout   time.Duration
	Retries   int
	Version   int
}

// Protocol defaults used when nothing else is configured
const (
	DefaultTimeout = 3 * time.Second
	DefaultRetries = 3
	DefaultVersion = 1
)

// DefaultSettings returns serial transport settings with protocol defaults.
func DefaultSettings() Settings {
	return Settings{
		Transport: TransportSerial,
		Timeout:   DefaultTimeout,
		Retries:   DefaultRetries,
		Version:   DefaultVersion,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:  1,
		Profiles: make(map[string]*Profile),
	}
}

// GetProfile retrieves a profile by name.
// Returns nil if the profile doesn't exist in the registry.
func (r *Registry) GetProfile(name string) *Profile {
	return r.Profiles[name]
}

// SetProfile adds or replaces a profile.
func (r *Registry) SetProfile(name string, p *Profile) {
	if r.Profiles == nil {
		r.Profiles = make(map[string]*Profile)
	}
	r.Profiles[name] = p
}

// ProfileNames returns the profile names in sorted order.
func (r *Registry) ProfileNames() []string {
	names := make([]string, 0, len(r.Profiles))
	for name := range r.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Settings flattens the named profile over the registry defaults. An empty
// name selects DefaultProfile; with neither set only defaults apply.
func (r *Registry) Settings(name string) (Settings, error) {
	s := DefaultSettings()
	s.applyProtocol(r.Protocol)

	if name == "" {
		name = r.DefaultProfile
	}
	if name == "" {
		return s, nil
	}

	p := r.Profiles[name]
	if p == nil {
		return s, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	s.applyProfile(p)
	return s, nil
}

func (s *Settings) applyProtocol(p *Protocol) {
	if p == nil {
		return
	}
	if p.Timeout > 0 {
		s.Timeout = p.Timeout
	}
	if p.Retries != nil {
		s.Retries = *p.Retries
	}
	if p.Version != nil {
		s.Version = *p.Version
	}
}

func (s *Settings) applyProfile(p *Profile) {
	if p.Transport != "" {
		s.Transport = p.Transport
	}
	switch s.Transport {
	case TransportSerial:
		if p.Serial != nil {
			s.Port = p.Serial.Port
			s.Baud = p.Serial.Baud
			s.MTU = p.Serial.MTU
		}
	case TransportUDP:
		if p.UDP != nil {
			s.Address = p.UDP.Address
			s.MTU = p.UDP.MTU
		}
	case TransportWebSocket:
		if p.WebSocket != nil {
			s.URL = p.WebSocket.URL
			s.MTU = p.WebSocket.MTU
		}
	}
	s.applyProtocol(p.Protocol)
}

// Profile converts flattened settings back into a profile for saving.
func (s Settings) Profile() *Profile {
	retries, version := s.Retries, s.Version
	p := &Profile{
		Transport: s.Transport,
		Protocol: &Protocol{
			Timeout: s.Timeout,
			Retries: &retries,
			Version: &version,
		},
	}
	switch s.Transport {
	case TransportSerial:
		p.Serial = &SerialSettings{Port: s.Port, Baud: s.Baud, MTU: s.MTU}
	case TransportUDP:
		p.UDP = &UDPSettings{Address: s.Address, MTU: s.MTU}
	case TransportWebSocket:
		p.WebSocket = &WebSocketSettings{URL: s.URL, MTU: s.MTU}
	}
	return p
}
