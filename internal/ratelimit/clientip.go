package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// DefaultTrustedProxies — сети, из которых принимаются X-Forwarded-For
// и X-Real-IP: loopback и частные диапазоны кластера.
var DefaultTrustedProxies = []string{
	"127.0.0.0/8",
	"::1/128",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"fc00::/7",
}

// IPResolver определяет IP клиента. Заголовки прокси учитываются только
// от доверенных адресов, X-Forwarded-For читается справа налево до первого
// недоверенного адреса: левые элементы клиент может подделать.
type IPResolver struct {
	trusted []netip.Prefix
}

// NewIPResolver создаёт resolver по списку CIDR (или одиночных адресов).
// Пустой список — заголовкам прокси не доверяем вовсе.
func NewIPResolver(cidrs []string) (*IPResolver, error) {
	res := &IPResolver{}
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("доверенный прокси %q: %w", raw, err)
			}
			res.trusted = append(res.trusted, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("доверенный прокси %q: %w", raw, err)
		}
		res.trusted = append(res.trusted, prefix.Masked())
	}
	return res, nil
}

// DefaultIPResolver — resolver с DefaultTrustedProxies.
func DefaultIPResolver() *IPResolver {
	res, err := NewIPResolver(DefaultTrustedProxies)
	if err != nil {
		panic(err)
	}
	return res
}

func (res *IPResolver) isTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range res.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP возвращает IP клиента запроса.
func (res *IPResolver) ClientIP(r *http.Request) string {
	peerRaw := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peerRaw); err == nil {
		peerRaw = host
	}
	peer, err := netip.ParseAddr(peerRaw)
	if err != nil || !res.isTrusted(peer) {
		return peerRaw
	}

	// Несколько заголовков X-Forwarded-For склеиваются в порядке получения
	var hops []string
	for _, v := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(v, ",")...)
	}
	if len(hops) > 0 {
		var leftmost netip.Addr
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				// Мусор в цепочке: левее доверять нечему
				return peer.Unmap().String()
			}
			if !res.isTrusted(addr) {
				return addr.Unmap().String()
			}
			leftmost = addr
		}
		// Вся цепочка внутри доверенных сетей
		return leftmost.Unmap().String()
	}

	if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return addr.Unmap().String()
	}
	return peer.Unmap().String()
}
