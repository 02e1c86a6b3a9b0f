// Package clientip определяет ключ клиента для rate limiter'а.
// X-Forwarded-For учитывается только если непосредственный пир — доверенный прокси.
package clientip

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/netip"
	"strings"
)

const (
	ipPrefix          = "ip:"
	fingerprintPrefix = "fp:"
)

type Resolver struct {
	trusted []netip.Prefix
}

// NewResolver принимает CIDR ("10.0.0.0/8") или одиночные адреса ("127.0.0.1").
func NewResolver(trusted []string) (*Resolver, error) {
	r := &Resolver{}
	for _, raw := range trusted {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			r.trusted = append(r.trusted, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		r.trusted = append(r.trusted, p.Masked())
	}
	return r, nil
}

func (r *Resolver) isTrusted(a netip.Addr) bool {
	a = a.Unmap()
	for _, p := range r.trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// Resolve возвращает "ip:<addr>" либо, если адреса нет совсем, "fp:<hash>"
// от заголовков, которые клиент не может подменить через прокси.
func (r *Resolver) Resolve(peer, forwardedFor, userAgent, acceptLanguage string) string {
	peerAddr, ok := parseAddr(peer)
	if !ok {
		return fingerprint(userAgent, acceptLanguage)
	}

	if !r.isTrusted(peerAddr) || forwardedFor == "" {
		return ipPrefix + peerAddr.String()
	}

	// идём справа налево, пропуская доверенные хопы; первый недоверенный — клиент
	hops := strings.Split(forwardedFor, ",")
	client := peerAddr
	for i := len(hops) - 1; i >= 0; i-- {
		a, ok := parseAddr(hops[i])
		if !ok {
			break
		}
		client = a
		if !r.isTrusted(a) {
			break
		}
	}
	return ipPrefix + client.String()
}

func parseAddr(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, false
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), true
	}
	a, err := netip.ParseAddr(strings.Trim(s, "[]"))
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

func fingerprint(userAgent, acceptLanguage string) string {
	sum := sha256.Sum256([]byte(userAgent + "|" + acceptLanguage))
	return fingerprintPrefix + hex.EncodeToString(sum[:8])
}
