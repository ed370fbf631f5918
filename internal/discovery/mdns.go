package discovery

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/filecloud/internal/logging"
)

const (
	// ServiceType is the mDNS service type filecloud servers advertise.
	ServiceType = "_filecloud._tcp"

	// ServiceDomain is the mDNS domain.
	ServiceDomain = "local."

	// DefaultScanTimeout bounds a browse when the caller sets none.
	DefaultScanTimeout = 5 * time.Second
)

// Scanner browses the local network for filecloud servers.
type Scanner struct {
	Timeout time.Duration
}

// NewScanner creates a scanner with DefaultScanTimeout.
func NewScanner() *Scanner {
	return &Scanner{Timeout: DefaultScanTimeout}
}

// Scan collects every server that answers before the timeout or ctx ends.
func (s *Scanner) Scan(ctx context.Context) ([]*Server, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	var (
		mu      sync.Mutex
		servers []*Server
		seen    = make(map[string]bool)
	)
	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			srv := parseServiceEntry(entry)
			if srv == nil {
				continue
			}
			mu.Lock()
			if !seen[srv.Address()] {
				seen[srv.Address()] = true
				servers = append(servers, srv)
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return append([]*Server(nil), servers...), nil
}

// Find waits for the server advertising the given instance name.
func (s *Scanner) Find(ctx context.Context, instance string) (*Server, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	found := make(chan *Server, 1)
	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			srv := parseServiceEntry(entry)
			if srv != nil && srv.Instance == instance {
				select {
				case found <- srv:
				default:
				}
				cancel()
				return
			}
		}
	}()

	if err := resolver.Lookup(ctx, instance, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to look up mDNS instance: %w", err)
	}

	select {
	case srv := <-found:
		return srv, nil
	case <-ctx.Done():
		select {
		case srv := <-found:
			return srv, nil
		default:
		}
		return nil, fmt.Errorf("filecloud server %q not found within %s", instance, s.timeout())
	}
}

func (s *Scanner) timeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultScanTimeout
	}
	return s.Timeout
}

// parseServiceEntry returns nil for entries without an address or port.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Server {
	if entry == nil || entry.Port == 0 {
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

	metadata := make(map[string]string, len(entry.Text))
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		if key != "" {
			metadata[key] = value
		}
	}

	return &Server{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// Advertisement is a running mDNS registration.
type Advertisement struct {
	server   *zeroconf.Server
	instance string
	once     sync.Once
}

// Advertise announces a filecloud server listening on port. txt entries are
// "key=value" pairs. The caller must call Shutdown.
func Advertise(instance string, port int, txt []string) (*Advertisement, error) {
	if instance == "" {
		instance = DefaultInstance()
	}
	srv, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	logging.Info("Advertising via mDNS",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
	)
	return &Advertisement{server: srv, instance: instance}, nil
}

// Instance returns the advertised instance name.
func (a *Advertisement) Instance() string { return a.instance }

// Shutdown withdraws the advertisement. It is safe to call more than once.
func (a *Advertisement) Shutdown() {
	a.once.Do(func() {
		a.server.Shutdown()
		logging.Debug("mDNS advertisement withdrawn", zap.String("instance", a.instance))
	})
}

// DefaultInstance derives an instance name from the host name.
func DefaultInstance() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "filecloud"
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	return "filecloud-" + host
}

// TXT renders metadata as sorted-key "key=value" records.
func TXT(metadata map[string]string) []string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	txt := make([]string, 0, len(keys))
	for _, k := range keys {
		txt = append(txt, k+"="+metadata[k])
	}
	return txt
}
