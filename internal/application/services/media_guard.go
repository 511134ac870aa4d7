package services

import (
	"context"
	"net"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tongxiaolong01/llama-factory-go/internal/domain/models"
)

// MediaPolicy is the immutable security policy applied to media locators.
type MediaPolicy struct {
	// SafeRoot is the only directory tree local file references may point
	// into.
	SafeRoot string

	// AllowLocalFiles disables all local file access when false.
	AllowLocalFiles bool

	// AllowedURLPrefixes restricts remote locators to these literal
	// prefixes. Empty means any prefix.
	AllowedURLPrefixes []string

	// FetchTimeout bounds DNS lookups and remote media downloads.
	FetchTimeout time.Duration
}

// HostResolver resolves hostnames to IP addresses. *net.Resolver satisfies
// it; tests substitute a fake.
type HostResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// MediaGuard enforces the path containment and URL egress policies on media
// locators before any file or network access happens.
type MediaGuard struct {
	policy   MediaPolicy
	resolver HostResolver
	logger   zerolog.Logger
}

// NewMediaGuard creates a guard for the given policy. A nil resolver selects
// the system resolver.
func NewMediaGuard(policy MediaPolicy, resolver HostResolver, logger zerolog.Logger) *MediaGuard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &MediaGuard{policy: policy, resolver: resolver, logger: logger}
}

// CheckLocalPath verifies that a local file reference stays inside the safe
// media directory. Both the reference and the directory are canonicalized at
// call time so that dot segments and symlinks cannot escape the root.
func (g *MediaGuard) CheckLocalPath(path string) error {
	if !g.policy.AllowLocalFiles {
		return models.Forbidden("Local file access is disabled.")
	}

	realPath, err := canonicalPath(path)
	if err != nil {
		return models.BadRequest("Invalid or inaccessible file path.")
	}

	safeRoot, err := canonicalPath(g.policy.SafeRoot)
	if err != nil {
		return models.BadRequest("Invalid or inaccessible file path.")
	}

	if !containsPath(safeRoot, realPath) {
		g.logger.Warn().Str("path", path).Msg("local file reference outside safe media directory")
		return models.Forbidden("File access is restricted to the safe media directory.")
	}

	return nil
}

// CheckURL verifies that a remote media locator is safe to fetch. The checks
// run in order: literal prefix allow-list, scheme, hostname, then a DNS
// resolution done at call time whose first address must be globally
// routable. The address check runs even when the allow-list matched, so a
// hostname rebound to an internal address is still rejected.
func (g *MediaGuard) CheckURL(ctx context.Context, rawURL string) error {
	if len(g.policy.AllowedURLPrefixes) > 0 && !hasAllowedPrefix(rawURL, g.policy.AllowedURLPrefixes) {
		g.logger.Warn().Msg("remote media locator outside the prefix allow-list")
		return models.Forbidden("URL is not in the allowed list of prefixes.")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return models.BadRequest("Invalid URL: %v", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return models.BadRequest("Only HTTP/HTTPS URLs are allowed.")
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return models.BadRequest("Invalid URL hostname.")
	}

	if g.policy.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.policy.FetchTimeout)
		defer cancel()
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, hostname)
	if err != nil || len(addrs) == 0 {
		return models.BadRequest("Could not resolve hostname: %s", hostname)
	}

	addr, ok := netip.AddrFromSlice(addrs[0].IP)
	if !ok {
		return models.BadRequest("Invalid URL: unrecognized address for %s", hostname)
	}

	if !isGloballyRoutable(addr) {
		g.logger.Warn().
			Str("host", hostname).
			Str("addr", addr.String()).
			Msg("remote media locator resolved to a non-global address")
		return models.Forbidden("Access to private or reserved IP addresses is not allowed.")
	}

	return nil
}

// canonicalPath resolves a path to its absolute physical form.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// containsPath reports whether candidate equals root or sits below it. A
// bare string prefix is not enough: /safe_media must not admit
// /safe_media_evil.
func containsPath(root, candidate string) bool {
	if candidate == root {
		return true
	}
	return strings.HasPrefix(candidate, root+string(os.PathSeparator))
}

func hasAllowedPrefix(rawURL string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(rawURL, prefix) {
			return true
		}
	}
	return false
}

// specialPurposePrefixes holds the IANA special-purpose ranges that are not
// globally routable yet pass every netip predicate used by
// isGloballyRoutable.
var specialPurposePrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),       // "this network"
	netip.MustParsePrefix("100.64.0.0/10"),   // shared address space
	netip.MustParsePrefix("192.0.0.0/24"),    // IETF protocol assignments
	netip.MustParsePrefix("192.0.2.0/24"),    // TEST-NET-1
	netip.MustParsePrefix("198.18.0.0/15"),   // benchmarking
	netip.MustParsePrefix("198.51.100.0/24"), // TEST-NET-2
	netip.MustParsePrefix("203.0.113.0/24"),  // TEST-NET-3
	netip.MustParsePrefix("240.0.0.0/4"),     // reserved
	netip.MustParsePrefix("100::/64"),        // discard-only
	netip.MustParsePrefix("2001::/23"),       // IETF protocol assignments
	netip.MustParsePrefix("2001:db8::/32"),   // documentation
}

// isGloballyRoutable reports whether addr is a public unicast address.
// Loopback, private, link-local, multicast and unspecified addresses are all
// rejected, along with the special-purpose registry ranges above, to keep
// media fetches off the internal network.
func isGloballyRoutable(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() || addr.IsUnspecified() || addr.IsLoopback() ||
		addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsMulticast() {
		return false
	}
	for _, prefix := range specialPurposePrefixes {
		if prefix.Contains(addr) {
			return false
		}
	}
	return addr.IsGlobalUnicast()
}
