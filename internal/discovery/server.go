package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Server is a filecloud server found on the local network.
type Server struct {
	// Instance is the advertised service instance name.
	Instance string

	// Hostname is the mDNS hostname (e.g. "files.local.")
	Hostname string

	// IP prefers IPv4 when the server announces both families.
	IP string

	// Port is the TCP port clients connect to.
	Port int

	// Metadata holds the TXT record pairs, e.g. "version", "buffer_size".
	Metadata map[string]string

	DiscoveredAt time.Time
}

func (s *Server) String() string {
	return fmt.Sprintf("filecloud server %q (%s) at %s", s.Instance, s.Hostname, s.Address())
}

// Address returns host:port suitable for net.Dial.
func (s *Server) Address() string {
	return net.JoinHostPort(s.IP, strconv.Itoa(s.Port))
}

// GetMetadata returns a TXT value, or "" if absent.
func (s *Server) GetMetadata(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata[key]
}
