package discovery

import (
	"net"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func entry(instance, host string, port int, v4, v6 []net.IP, txt ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, ServiceType, ServiceDomain)
	e.HostName = host
	e.Port = port
	e.AddrIPv4 = v4
	e.AddrIPv6 = v6
	e.Text = txt
	return e
}

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantIP   string
		wantPort int
		wantMeta map[string]string
		wantInst string
	}{
		{
			name:     "IPv4 server with metadata",
			entry:    entry("office", "files.local.", 8000, []net.IP{net.ParseIP("192.168.1.20")}, nil, "version=v1.0.0", "buffer_size=1024"),
			wantIP:   "192.168.1.20",
			wantPort: 8000,
			wantMeta: map[string]string{"version": "v1.0.0", "buffer_size": "1024"},
			wantInst: "office",
		},
		{
			name:     "prefers IPv4 over IPv6",
			entry:    entry("lab", "lab.local.", 9000, []net.IP{net.ParseIP("10.0.0.5")}, []net.IP{net.ParseIP("fe80::2")}),
			wantIP:   "10.0.0.5",
			wantPort: 9000,
			wantMeta: map[string]string{},
			wantInst: "lab",
		},
		{
			name:     "IPv6 only",
			entry:    entry("v6", "v6.local.", 8000, nil, []net.IP{net.ParseIP("fe80::1")}, "flag"),
			wantIP:   "fe80::1",
			wantPort: 8000,
			wantMeta: map[string]string{"flag": ""},
			wantInst: "v6",
		},
		{
			name:    "no address",
			entry:   entry("none", "none.local.", 8000, nil, nil),
			wantNil: true,
		},
		{
			name:    "no port",
			entry:   entry("noport", "np.local.", 0, []net.IP{net.ParseIP("192.168.1.1")}, nil),
			wantNil: true,
		},
		{
			name:    "nil entry",
			entry:   nil,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := parseServiceEntry(tt.entry)
			if tt.wantNil {
				if srv != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", srv)
				}
				return
			}
			if srv == nil {
				t.Fatal("parseServiceEntry() = nil, want server")
			}
			if srv.IP != tt.wantIP {
				t.Errorf("IP = %q, want %q", srv.IP, tt.wantIP)
			}
			if srv.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", srv.Port, tt.wantPort)
			}
			if srv.Instance != tt.wantInst {
				t.Errorf("Instance = %q, want %q", srv.Instance, tt.wantInst)
			}
			if !reflect.DeepEqual(srv.Metadata, tt.wantMeta) {
				t.Errorf("Metadata = %v, want %v", srv.Metadata, tt.wantMeta)
			}
			if srv.DiscoveredAt.IsZero() || time.Since(srv.DiscoveredAt) > time.Minute {
				t.Errorf("DiscoveredAt = %v", srv.DiscoveredAt)
			}
		})
	}
}

func TestServerAddress(t *testing.T) {
	tests := []struct {
		ip   string
		port int
		want string
	}{
		{"192.168.1.20", 8000, "192.168.1.20:8000"},
		{"fe80::1", 9000, "[fe80::1]:9000"},
	}
	for _, tt := range tests {
		srv := &Server{IP: tt.ip, Port: tt.port}
		if got := srv.Address(); got != tt.want {
			t.Errorf("Address() = %q, want %q", got, tt.want)
		}
	}
}

func TestServerString(t *testing.T) {
	srv := &Server{Instance: "office", Hostname: "files.local.", IP: "192.168.1.20", Port: 8000}
	want := `filecloud server "office" (files.local.) at 192.168.1.20:8000`
	if got := srv.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if srv.GetMetadata("version") != "" {
		t.Error("GetMetadata() on nil metadata should return empty string")
	}
}

func TestTXT(t *testing.T) {
	got := TXT(map[string]string{"version": "v1", "buffer_size": "1024"})
	want := []string{"buffer_size=1024", "version=v1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TXT() = %v, want %v", got, want)
	}
}

func TestDefaultInstance(t *testing.T) {
	inst := DefaultInstance()
	if !strings.HasPrefix(inst, "filecloud") {
		t.Errorf("DefaultInstance() = %q, want filecloud prefix", inst)
	}
	if strings.Contains(inst, ".") {
		t.Errorf("DefaultInstance() = %q should not contain a domain", inst)
	}
}

func TestScannerTimeout(t *testing.T) {
	if got := (&Scanner{}).timeout(); got != DefaultScanTimeout {
		t.Errorf("zero Timeout should fall back to %v, got %v", DefaultScanTimeout, got)
	}
	if got := NewScanner().Timeout; got != DefaultScanTimeout {
		t.Errorf("NewScanner().Timeout = %v", got)
	}
}
