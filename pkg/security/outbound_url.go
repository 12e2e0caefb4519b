// Package security checks user supplied backend endpoints.
package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// BaseURLPolicy says which backend base URLs are acceptable.
type BaseURLPolicy struct {
	// AllowHTTP permits plain http. https is always allowed.
	AllowHTTP bool
	// AllowLocalNetworks permits localhost names and loopback, private and
	// link-local addresses.
	AllowLocalNetworks bool
}

// InsecurePolicy accepts http and local targets, used for self-hosted
// OpenAI compatible servers.
var InsecurePolicy = BaseURLPolicy{AllowHTTP: true, AllowLocalNetworks: true}

// ValidateBaseURL rejects base URLs with an unsupported scheme, without a
// host, or pointing into the local network unless policy allows it. IP
// literals are checked without DNS lookups.
func ValidateBaseURL(rawURL string, policy BaseURLPolicy) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrapf(err, "invalid base url %q", rawURL)
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !policy.AllowHTTP {
			return errors.Errorf("base url %q uses http, only https is allowed", rawURL)
		}
	default:
		return errors.Errorf("base url %q has unsupported scheme %q", rawURL, parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return errors.Errorf("base url %q has no host", rawURL)
	}

	if policy.AllowLocalNetworks {
		return nil
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return errors.Errorf("base url %q points to local host %q", rawURL, host)
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		// not an IP literal
		return nil
	}
	if addr.Zone() != "" {
		return errors.Errorf("base url %q uses zoned address %q", rawURL, host)
	}
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() ||
		addr.IsLoopback() || addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
		return errors.Errorf("base url %q points to local address %q", rawURL, host)
	}

	return nil
}
