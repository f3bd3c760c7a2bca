package entity

import (
	"fmt"
	"net/url"
	"strings"
)

// RPCURL represents a validated node endpoint for a chain adapter.
type RPCURL string

// NewRPCURL creates a new RPCURL instance.
func NewRPCURL(rawURL string) (RPCURL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("rpc url cannot be empty")
	}

	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid rpc url format '%s': %w", rawURL, err)
	}

	if ProtocolOf(u.Scheme) == ProtocolUnknown {
		return "", fmt.Errorf("rpc url '%s' has unsupported scheme: '%s'", rawURL, u.Scheme)
	}

	return RPCURL(rawURL), nil
}

// String returns the string representation of the RPCURL.
func (r RPCURL) String() string {
	return string(r)
}

// Protocol reports the transport the URL selects.
func (r RPCURL) Protocol() Protocol {
	scheme, _, _ := strings.Cut(string(r), "://")
	return ProtocolOf(scheme)
}

// Redacted hides the path and query of the URL, which commonly embed provider API keys.
func (r RPCURL) Redacted() string {
	u, err := url.Parse(string(r))
	if err != nil {
		return "invalid-url"
	}
	if u.Path == "" || u.Path == "/" {
		return u.Scheme + "://" + u.Host
	}
	return u.Scheme + "://" + u.Host + "/***"
}
