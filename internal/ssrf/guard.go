// Package ssrf screens tenant-supplied base URLs against unsafe network
// destinations. The guard runs when a provider's URL is written and again
// immediately before every connector call; the HTTP client it builds pins
// the dialed address to the screened resolution, so a DNS answer that
// changes between the two checks cannot redirect a call into a private
// range.
package ssrf

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Result is the outcome of a URL validation.
type Result struct {
	Valid  bool
	Reason string // internal classification, not surfaced to tenants
}

// LookupFunc resolves a hostname to its addresses. Injected for tests.
type LookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// Guard validates candidate URLs. Safe for concurrent use.
type Guard struct {
	lookup  LookupFunc
	timeout time.Duration
	logger  *zap.Logger
}

// NewGuard creates a Guard using the system resolver under the given
// per-lookup timeout.
func NewGuard(timeout time.Duration, logger *zap.Logger) *Guard {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	resolver := &net.Resolver{}
	lookup := func(ctx context.Context, host string) ([]netip.Addr, error) {
		return resolver.LookupNetIP(ctx, "ip", host)
	}
	return &Guard{lookup: lookup, timeout: timeout, logger: logger}
}

// NewGuardWithLookup creates a Guard with a custom resolver (for tests).
func NewGuardWithLookup(lookup LookupFunc, timeout time.Duration, logger *zap.Logger) *Guard {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Guard{lookup: lookup, timeout: timeout, logger: logger}
}

// ValidateURL checks that a candidate URL is safe to contact: secure
// transport only, and every address the host resolves to is a public
// unicast destination.
func (g *Guard) ValidateURL(ctx context.Context, raw string) Result {
	u, err := url.Parse(raw)
	if err != nil {
		return Result{Reason: "unparseable url"}
	}
	if u.Scheme != "https" {
		return Result{Reason: fmt.Sprintf("scheme %q not allowed", u.Scheme)}
	}
	if u.User != nil {
		return Result{Reason: "userinfo in url not allowed"}
	}
	host := u.Hostname()
	if host == "" {
		return Result{Reason: "empty host"}
	}

	// Literal address: screen directly, no resolution involved.
	if addr, err := netip.ParseAddr(host); err == nil {
		if reason := screenAddr(addr); reason != "" {
			return Result{Reason: reason}
		}
		return Result{Valid: true}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	addrs, err := g.lookup(ctx, host)
	if err != nil {
		return Result{Reason: fmt.Sprintf("host did not resolve: %v", err)}
	}
	if len(addrs) == 0 {
		return Result{Reason: "host resolved to no addresses"}
	}
	// Every answer must be safe; a single private A record is enough to
	// reject the whole host.
	for _, addr := range addrs {
		if reason := screenAddr(addr); reason != "" {
			return Result{Reason: fmt.Sprintf("%s resolves to %s (%s)", host, addr, reason)}
		}
	}
	return Result{Valid: true}
}

var reservedNets = mustParsePrefixes(
	"100.64.0.0/10",    // carrier-grade NAT
	"192.0.0.0/24",     // IETF protocol assignments
	"192.0.2.0/24",     // TEST-NET-1
	"198.18.0.0/15",    // benchmarking
	"198.51.100.0/24",  // TEST-NET-2
	"203.0.113.0/24",   // TEST-NET-3
	"240.0.0.0/4",      // reserved
	"255.255.255.255/32",
	"64:ff9b::/96",  // NAT64
	"2001:db8::/32", // documentation
	"fec0::/10",     // deprecated site-local
)

func mustParsePrefixes(cidrs ...string) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			panic(fmt.Sprintf("ssrf: bad prefix %s: %v", c, err))
		}
		prefixes = append(prefixes, p)
	}
	return prefixes
}

// screenAddr returns a non-empty reason when the address is not a public
// unicast destination. IPv4-mapped IPv6 addresses are unmapped first so a
// mapped loopback cannot slip through the v6 checks.
func screenAddr(addr netip.Addr) string {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid():
		return "invalid address"
	case addr.IsLoopback():
		return "loopback address"
	case addr.IsPrivate():
		return "private address"
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return "link-local address"
	case addr.IsUnspecified():
		return "unspecified address"
	case addr.IsMulticast(), addr.IsInterfaceLocalMulticast():
		return "multicast address"
	}
	for _, p := range reservedNets {
		if p.Contains(addr) {
			return "reserved range " + p.String()
		}
	}
	return ""
}
