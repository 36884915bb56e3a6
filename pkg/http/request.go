package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig holds the parsed trusted proxy ranges used for client IP extraction
type IPConfig struct {
	trusted []*net.IPNet
}

// NewIPConfig parses CIDR ranges of trusted proxies. Invalid ranges are
// skipped and returned so the caller can log them.
func NewIPConfig(trustedProxies []string) (*IPConfig, []string) {
	cfg := &IPConfig{}
	var invalid []string
	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			invalid = append(invalid, cidr)
			continue
		}
		cfg.trusted = append(cfg.trusted, ipNet)
	}
	return cfg, invalid
}

// ExtractClientIP returns the client address a request should be attributed to.
// X-Forwarded-For and X-Real-IP are honoured only when the direct peer is a
// trusted proxy. An empty string means the address could not be determined.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config != nil && config.isTrusted(remoteIP) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, ip := range strings.Split(xff, ",") {
				ip = strings.TrimSpace(ip)
				if isValidIP(ip) {
					return ip
				}
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); isValidIP(xri) {
			return xri
		}
	}

	return remoteIP
}

// getRemoteAddr extracts the IP from RemoteAddr, dropping the port
func getRemoteAddr(r *http.Request) string {
	addr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if !isValidIP(addr) {
		return ""
	}
	return addr
}

func (c *IPConfig) isTrusted(ip string) bool {
	if len(c.trusted) == 0 {
		return false
	}
	clientIP := net.ParseIP(ip)
	if clientIP == nil {
		return false
	}
	for _, ipNet := range c.trusted {
		if ipNet.Contains(clientIP) {
			return true
		}
	}
	return false
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}
