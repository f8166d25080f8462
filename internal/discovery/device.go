package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Device is an SMP server found on the network
type Device struct {
	// Instance is the mDNS service instance name (e.g., "zephyr")
	Instance string

	// Hostname is the mDNS hostname (e.g., "zephyr.local.")
	Hostname string

	// IP is the device address, IPv4 when available
	IP string

	// Port is the SMP UDP port (typically 1337)
	Port int

	// Metadata holds the TXT record entries
	Metadata map[string]string

	// DiscoveredAt is when the device answered
	DiscoveredAt time.Time
}

// String returns a human-readable description of the device
func (d *Device) String() string {
	return fmt.Sprintf("SMP device %s (%s) at %s", d.Instance, d.Hostname, d.Address())
}

// Address returns host:port suitable for the UDP transport
func (d *Device) Address() string {
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// GetMetadata retrieves a TXT value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
