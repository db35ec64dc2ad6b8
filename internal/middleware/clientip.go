package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// TrustedProxies lists the peers whose forwarding headers are believed.
// A nil or empty set means the caller is always the TCP peer.
type TrustedProxies struct {
	nets []*net.IPNet
}

// ParseTrustedProxies accepts single addresses and CIDR ranges
func ParseTrustedProxies(entries []string) (*TrustedProxies, error) {
	tp := &TrustedProxies{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			entry = fmt.Sprintf("%s/%d", ip.String(), bits)
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		tp.nets = append(tp.nets, network)
	}
	return tp, nil
}

func (tp *TrustedProxies) trusts(addr string) bool {
	if tp == nil {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, network := range tp.nets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the caller address. Forwarding headers are only read when the
// TCP peer is a trusted proxy; X-Forwarded-For is walked from the right and the
// first untrusted hop wins.
func (tp *TrustedProxies) ClientIP(r *http.Request) string {
	peer := remoteHost(r)
	if !tp.trusts(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !tp.trusts(hop) || i == 0 {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

func remoteHost(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
