package probe

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/burnmate/internal/logging"
)

const (
	// ServiceType is the mDNS service type probe daemons advertise.
	ServiceType = "_burnmate-probe._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for probe discovery.
	DefaultScanTimeout = 5 * time.Second
)

// Info describes one discovered probe daemon.
type Info struct {
	// Name is the mDNS instance name
	Name string
	// Host is the advertised hostname
	Host string
	// IP is the first IPv4 address, if any
	IP net.IP
	// Port is the daemon's websocket port
	Port int
	// Serial is the probe serial number from the TXT record, if advertised
	Serial string
}

// Addr returns the host:port string used to dial the daemon.
func (i *Info) Addr() string {
	host := i.Host
	if i.IP != nil {
		host = i.IP.String()
	}
	return fmt.Sprintf("%s:%d", strings.TrimSuffix(host, "."), i.Port)
}

// Scanner discovers probe daemons on the local network via mDNS.
type Scanner struct {
	// Timeout is the maximum time to wait for discovery
	Timeout time.Duration
}

// NewScanner creates a scanner with default settings.
func NewScanner() *Scanner {
	return &Scanner{Timeout: DefaultScanTimeout}
}

// Scan browses for probe daemons until the timeout elapses and returns
// everything found.
func (s *Scanner) Scan(ctx context.Context) ([]*Info, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	probes := make([]*Info, 0)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			if info := parseServiceEntry(entry); info != nil {
				logging.Debug("discovered probe",
					zap.String("name", info.Name),
					zap.String("addr", info.Addr()),
					zap.String("serial", info.Serial),
				)
				probes = append(probes, info)
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	<-done
	return probes, nil
}

// Find scans until a probe whose serial or name matches selector appears, or
// the scanner times out. An empty selector matches the first probe found.
func (s *Scanner) Find(ctx context.Context, selector string) (*Info, error) {
	probes, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range probes {
		if selector == "" || p.Serial == selector || p.Name == selector {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no probe matching %q found on the local network", selector)
}

// parseServiceEntry converts an mDNS entry to probe info, or nil if the
// entry is not usable.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Info {
	if entry == nil || entry.Port == 0 {
		return nil
	}
	info := &Info{
		Name: entry.Instance,
		Host: entry.HostName,
		Port: entry.Port,
	}
	if len(entry.AddrIPv4) > 0 {
		info.IP = entry.AddrIPv4[0]
	}
	for _, txt := range entry.Text {
		if v, ok := strings.CutPrefix(txt, "serial="); ok {
			info.Serial = v
		}
	}
	return info
}
