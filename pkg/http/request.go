package http

import (
	"net"
	"net/http"
	"strings"
	"sync"
)

// IPConfig holds configuration for client IP extraction
type IPConfig struct {
	// TrustedProxies lists CIDR ranges or single addresses of reverse proxies
	// whose forwarding headers are believed
	TrustedProxies []string

	once sync.Once
	nets []*net.IPNet
}

// NewIPConfig creates an IPConfig trusting the given proxies
func NewIPConfig(trustedProxies []string) *IPConfig {
	return &IPConfig{TrustedProxies: trustedProxies}
}

// ExtractClientIP returns the address of the client that sent the request.
// Forwarding headers are read only when the direct peer is a trusted proxy.
// X-Forwarded-For is walked from the right and the first address that is not
// itself a trusted proxy wins, so a client cannot choose its own address by
// prepending entries. X-Real-IP is used when X-Forwarded-For yields nothing.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config == nil || !config.isTrusted(remoteIP) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if !isValidIP(hop) {
				// a malformed hop ends the chain we can vouch for
				break
			}
			if !config.isTrusted(hop) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); isValidIP(xri) {
		return xri
	}

	return remoteIP
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return strings.Trim(r.RemoteAddr, "[]")
}

func (c *IPConfig) isTrusted(ip string) bool {
	c.once.Do(c.parse)
	if len(c.nets) == 0 {
		return false
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range c.nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// parse converts TrustedProxies to networks; invalid entries are skipped
func (c *IPConfig) parse() {
	for _, entry := range c.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if _, n, err := net.ParseCIDR(entry); err == nil {
			c.nets = append(c.nets, n)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			c.nets = append(c.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
		}
	}
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}
