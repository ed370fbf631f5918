// Package discovery advertises filecloud servers over mDNS and finds them
// again from clients.
//
// A running server registers itself as a "_filecloud._tcp" service in the
// "local." domain with TXT records such as version and buffer_size. The
// Scanner browses for those records and returns one Server per address.
//
//	servers, err := discovery.NewScanner().Scan(ctx)
//	for _, s := range servers {
//	    fmt.Println(s.Instance, s.Address())
//	}
//
// Requires multicast on the local segment and UDP port 5353 open.
package discovery
