package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type SMP servers advertise
	ServiceType = "_mcumgr._udp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultPort is the SMP UDP port used when the record has none
	DefaultPort = 1337
)

// Browser is the part of a zeroconf resolver the scanner uses.
type Browser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// Scanner handles mDNS device discovery
type Scanner struct {
	// Timeout is the maximum time to wait for device discovery
	Timeout time.Duration

	// newBrowser creates the resolver; replaced in tests
	newBrowser func() (Browser, error)
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
		newBrowser: func() (Browser, error) {
			return zeroconf.NewResolver(nil)
		},
	}
}

// Scan collects every SMP device that answers before the timeout. Devices
// are sorted by instance name.
func (s *Scanner) Scan(ctx context.Context) ([]*Device, error) {
	var (
		mu      sync.Mutex
		devices []*Device
		seen    = make(map[string]bool)
	)
	err := s.browse(ctx, func(d *Device) bool {
		mu.Lock()
		defer mu.Unlock()
		if !seen[d.Instance] {
			seen[d.Instance] = true
			devices = append(devices, d)
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	sort.Slice(devices, func(i, j int) bool { return devices[i].Instance < devices[j].Instance })
	return devices, nil
}

// Find waits for the device with the given instance name
func (s *Scanner) Find(ctx context.Context, instance string) (*Device, error) {
	var found *Device
	var mu sync.Mutex
	err := s.browse(ctx, func(d *Device) bool {
		if d.Instance != instance {
			return false
		}
		mu.Lock()
		found = d
		mu.Unlock()
		return true
	})
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	if found == nil {
		return nil, fmt.Errorf("device %s not found within %s", instance, s.Timeout)
	}
	return found, nil
}

// browse runs one discovery until the timeout or until fn returns true
func (s *Scanner) browse(ctx context.Context, fn func(*Device) bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := s.newBrowser()
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if device := parseServiceEntry(entry); device != nil && fn(device) {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		cancel()
		<-done
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	<-done
	return nil
}

// parseServiceEntry converts a zeroconf service entry to a Device.
// Returns nil when the entry has no usable address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	if entry == nil {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	// TXT records are in "key=value" format
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	return &Device{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
