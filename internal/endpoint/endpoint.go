// Package endpoint validates the CompreFace base URL supplied by the operator
// and derives the verification endpoint from it.
//
// Accepted shape: scheme://host[:port] where scheme is http or https, host is a
// hostname made of ASCII letters, digits, '.' and '-' (or a dotted-quad IPv4
// address), and port is all digits. A single trailing slash is tolerated and
// stripped. Paths, queries, fragments and userinfo are rejected.
package endpoint

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// VerificationPath is appended to the base URL to form the verification endpoint.
const VerificationPath = "/api/v1/verification/verify"

// ErrInvalidURLFormat is returned when a base URL does not have the accepted shape.
var ErrInvalidURLFormat = errors.New("invalid URL format")

// HostKind identifies which host shape matched.
type HostKind int

const (
	HostName HostKind = iota
	HostIPv4
)

func (k HostKind) String() string {
	if k == HostIPv4 {
		return "ipv4"
	}
	return "hostname"
}

// Endpoint is a validated CompreFace base URL.
type Endpoint struct {
	Scheme string
	Host   string
	Port   string // empty when the URL carries no explicit port
	Kind   HostKind
}

// Parse validates raw and returns the parsed Endpoint.
// The returned error wraps ErrInvalidURLFormat and names the offending string.
func Parse(raw string) (Endpoint, error) {
	s := strings.TrimSuffix(raw, "/")

	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return Endpoint{}, invalid(raw, "missing scheme")
	}
	if scheme != "http" && scheme != "https" {
		return Endpoint{}, invalid(raw, fmt.Sprintf("scheme %q is not http or https", scheme))
	}
	if rest == "" {
		return Endpoint{}, invalid(raw, "missing host")
	}
	// Anything beyond the authority is refused here rather than trusting the
	// parser, which unescapes and normalises.
	if i := strings.IndexAny(rest, "/?#@%[] \t\r\n"); i >= 0 {
		return Endpoint{}, invalid(raw, fmt.Sprintf("unexpected %q after host", rest[i]))
	}

	u, err := url.Parse(s)
	if err != nil {
		return Endpoint{}, invalid(raw, err.Error())
	}
	if u.Opaque != "" || u.User != nil || u.Path != "" || u.RawQuery != "" || u.ForceQuery || u.Fragment != "" {
		return Endpoint{}, invalid(raw, "only scheme, host and port are allowed")
	}

	host, port, hasPort := strings.Cut(rest, ":")
	if hasPort && !isDigits(port) {
		return Endpoint{}, invalid(raw, fmt.Sprintf("port %q is not numeric", port))
	}

	var kind HostKind
	switch {
	case isDottedQuad(host):
		kind = HostIPv4
	case isHostname(host):
		kind = HostName
	default:
		return Endpoint{}, invalid(raw, fmt.Sprintf("host %q is not a hostname or IPv4 address", host))
	}

	return Endpoint{Scheme: scheme, Host: host, Port: port, Kind: kind}, nil
}

// String returns the canonical base URL without a trailing slash.
func (e Endpoint) String() string {
	if e.Port == "" {
		return e.Scheme + "://" + e.Host
	}
	return e.Scheme + "://" + e.Host + ":" + e.Port
}

// VerificationURL returns the base URL with VerificationPath appended.
func (e Endpoint) VerificationURL() string {
	return e.String() + VerificationPath
}

func invalid(raw, reason string) error {
	return fmt.Errorf("%w: %q (%s); expected scheme://host[:port], e.g. http://localhost:8000", ErrInvalidURLFormat, raw, reason)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// isDottedQuad reports whether s is four groups of one to three digits.
// Octet range is not checked.
func isDottedQuad(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if len(p) > 3 || !isDigits(p) {
			return false
		}
	}
	return true
}

func isHostname(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-':
		default:
			return false
		}
	}
	return true
}
