package webhook

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// OriginAuthenticator rejects webhook deliveries from source addresses
// outside the provider's published sender ranges. The allowlist accepts both
// bare IPs and CIDR notation; entries are parsed once at construction.
type OriginAuthenticator struct {
	networks []*net.IPNet
	addrs    []net.IP
	skip     bool
}

// NewOriginAuthenticator parses the allowlist. An invalid entry is a
// configuration error and fails construction rather than silently narrowing
// the list.
func NewOriginAuthenticator(allowed []string, skip bool) (*OriginAuthenticator, error) {
	oa := &OriginAuthenticator{skip: skip}

	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid allowlist CIDR %q: %w", entry, err)
			}
			oa.networks = append(oa.networks, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid allowlist IP %q", entry)
		}
		oa.addrs = append(oa.addrs, ip)
	}

	return oa, nil
}

// Allow reports whether the source IP may deliver webhooks. Unparseable
// addresses are denied.
func (oa *OriginAuthenticator) Allow(sourceIP string) bool {
	if oa.skip {
		return true
	}

	ip := net.ParseIP(sourceIP)
	if ip == nil {
		return false
	}

	for _, addr := range oa.addrs {
		if addr.Equal(ip) {
			return true
		}
	}
	for _, network := range oa.networks {
		if network.Contains(ip) {
			return true
		}
	}

	return false
}

// ClientIP extracts the caller's address. Behind the load balancer the
// original client is the first X-Forwarded-For entry; otherwise the
// connection's remote address is used.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
