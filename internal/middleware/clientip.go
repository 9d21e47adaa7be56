package middleware

import (
	"net/http"
	"net/netip"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/langgate/internal/observability"
	"github.com/vyrodovalexey/langgate/internal/router"
	"github.com/vyrodovalexey/langgate/internal/util"
)

// warnInterval spaces out repeated resolver warnings of the same kind.
const warnInterval = 30 * time.Second

// TrustedProxySet holds the proxy addresses and ranges whose forwarded
// headers are believed. It is immutable after ParseTrustedProxies.
type TrustedProxySet struct {
	addrs    map[netip.Addr]struct{}
	prefixes []netip.Prefix
}

// ParseTrustedProxies parses IP literals and CIDR ranges. Malformed entries
// are skipped with a warning.
func ParseTrustedProxies(entries []string, logger observability.Logger) TrustedProxySet {
	if logger == nil {
		logger = observability.NopLogger()
	}

	set := TrustedProxySet{addrs: make(map[netip.Addr]struct{}, len(entries))}
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				logger.Warn("ignoring malformed trusted proxy range",
					observability.String("entry", entry),
					observability.Error(err),
				)
				continue
			}
			if prefix.Addr().Is4In6() && prefix.Bits() >= 96 {
				prefix = netip.PrefixFrom(prefix.Addr().Unmap(), prefix.Bits()-96)
			}
			set.prefixes = append(set.prefixes, prefix.Masked())
			continue
		}

		addr, ok := parseAddr(entry)
		if !ok {
			logger.Warn("ignoring malformed trusted proxy address", observability.String("entry", entry))
			continue
		}
		set.addrs[addr] = struct{}{}
	}
	return set
}

// Len returns the number of addresses and ranges in the set.
func (s TrustedProxySet) Len() int {
	return len(s.addrs) + len(s.prefixes)
}

// Contains reports whether addr is a trusted address or falls in a
// trusted range.
func (s TrustedProxySet) Contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	if _, ok := s.addrs[addr]; ok {
		return true
	}
	for _, p := range s.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// parseAddr parses an IP with an optional port ("1.2.3.4:80", "[::1]:80"),
// dropping any zone and unmapping IPv4-mapped IPv6.
func parseAddr(s string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().WithZone("").Unmap(), true
	}
	addr, err := netip.ParseAddr(strings.TrimSuffix(strings.TrimPrefix(s, "["), "]"))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.WithZone("").Unmap(), true
}

// ClientIPResolver picks the client address out of a forwarded-for chain.
type ClientIPResolver struct {
	proxies TrustedProxySet
	logger  observability.Logger

	warnNoProxies  rate.Sometimes
	warnNoHeader   rate.Sometimes
	warnAllTrusted rate.Sometimes
}

// NewClientIPResolver creates a resolver trusting proxies.
func NewClientIPResolver(proxies TrustedProxySet, logger observability.Logger) *ClientIPResolver {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &ClientIPResolver{
		proxies:        proxies,
		logger:         logger,
		warnNoProxies:  rate.Sometimes{First: 1, Interval: warnInterval},
		warnNoHeader:   rate.Sometimes{First: 1, Interval: warnInterval},
		warnAllTrusted: rate.Sometimes{First: 1, Interval: warnInterval},
	}
}

// Resolve returns the rightmost entry of headerValue that is not a trusted
// proxy. It reports false when no proxies are trusted, the header is empty,
// or every entry is trusted. Unparseable untrusted entries are returned
// verbatim.
func (r *ClientIPResolver) Resolve(headerValue string) (string, bool) {
	if r.proxies.Len() == 0 {
		r.warnNoProxies.Do(func() {
			r.logger.Warn("no trusted proxies configured, client address cannot be resolved; set TRUSTED_PROXIES")
		})
		return "", false
	}

	entries := splitForwarded(headerValue)
	if len(entries) == 0 {
		r.warnNoHeader.Do(func() {
			r.logger.Warn("request has no " + HeaderXForwardedFor + " header, client address cannot be resolved")
		})
		return "", false
	}

	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		addr, ok := parseAddr(entry)
		if !ok {
			return entry, true
		}
		if !r.proxies.Contains(addr) {
			return addr.String(), true
		}
	}

	r.warnAllTrusted.Do(func() {
		r.logger.Warn("every " + HeaderXForwardedFor + " entry is a trusted proxy, client address cannot be resolved")
	})
	return "", false
}

func splitForwarded(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// KeyFunc derives the client key of a request.
type KeyFunc func(req *http.Request, conn router.ConnInfo) string

// ForwardedKey resolves the client from X-Forwarded-For. Repeated headers
// are joined in order.
func ForwardedKey(resolver *ClientIPResolver) KeyFunc {
	return func(req *http.Request, _ router.ConnInfo) string {
		ip, _ := resolver.Resolve(strings.Join(req.Header.Values(HeaderXForwardedFor), ","))
		return ip
	}
}

// RemoteKey uses the connection's peer address.
func RemoteKey() KeyFunc {
	return func(_ *http.Request, conn router.ConnInfo) string {
		return conn.RemoteIP()
	}
}

// ClientIP stores the client address derived by key in the request context
// for the rate limiter and handlers. An unresolved address is left empty.
func ClientIP(key KeyFunc) router.Middleware {
	return func(req *http.Request, next router.Next, conn router.ConnInfo, _ *router.Route) (*router.Response, error) {
		if ip := key(req, conn); ip != "" {
			req = req.WithContext(util.ContextWithClientIP(req.Context(), ip))
		}
		return next(req)
	}
}
