// Package formats implements the well-known string and bytes shapes that a
// rule can require: addresses, host names, URIs, UUIDs and HTTP headers.
// Every predicate is pure and safe for concurrent use.
package formats

import (
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/solatis/protocheck/internal/types"
)

type patterns struct {
	email             *regexp.Regexp
	headerNameStrict  *regexp.Regexp
	headerNameLoose   *regexp.Regexp
	headerValueStrict *regexp.Regexp
	headerValueLoose  *regexp.Regexp
	tuuid             *regexp.Regexp
}

var compiled = sync.OnceValue(func() *patterns {
	return &patterns{
		// WHATWG HTML "valid e-mail address".
		email:             regexp.MustCompile("^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$"),
		headerNameStrict:  regexp.MustCompile("^:?[0-9a-zA-Z!#$%&'*+\\-.^_|~`]+$"),
		headerNameLoose:   regexp.MustCompile(`^[^\x00\n\r]+$`),
		headerValueStrict: regexp.MustCompile(`^[^\x00-\x08\x0A-\x1F\x7F]*$`),
		headerValueLoose:  regexp.MustCompile(`^[^\x00\n\r]*$`),
		tuuid:             regexp.MustCompile(`^[0-9a-fA-F]{32}$`),
	}
})

// String reports whether s has the shape named by f. strict only affects
// the HTTP header formats.
func String(f types.Format, s string, strict bool) bool {
	switch f {
	case types.FormatNone:
		return true
	case types.FormatEmail:
		return IsEmail(s)
	case types.FormatHostname:
		return IsHostname(s)
	case types.FormatIP:
		return IsIP(s, 0)
	case types.FormatIPv4:
		return IsIP(s, 4)
	case types.FormatIPv6:
		return IsIP(s, 6)
	case types.FormatURI:
		return IsURI(s)
	case types.FormatURIRef:
		return IsURIRef(s)
	case types.FormatAddress:
		return IsHostname(s) || IsIP(s, 0)
	case types.FormatUUID:
		return IsUUID(s)
	case types.FormatTUUID:
		return IsTUUID(s)
	case types.FormatIPWithPrefixLen:
		return IsIPPrefix(s, 0, false)
	case types.FormatIPv4WithPrefixLen:
		return IsIPPrefix(s, 4, false)
	case types.FormatIPv6WithPrefixLen:
		return IsIPPrefix(s, 6, false)
	case types.FormatIPPrefix:
		return IsIPPrefix(s, 0, true)
	case types.FormatIPv4Prefix:
		return IsIPPrefix(s, 4, true)
	case types.FormatIPv6Prefix:
		return IsIPPrefix(s, 6, true)
	case types.FormatHostAndPort:
		return IsHostAndPort(s, true)
	case types.FormatHeaderName:
		return IsHeaderName(s, strict)
	case types.FormatHeaderValue:
		return IsHeaderValue(s, strict)
	default:
		return false
	}
}

// Bytes reports whether b has the shape named by f. Only the raw IP
// formats apply to bytes.
func Bytes(f types.Format, b []byte) bool {
	switch f {
	case types.FormatNone:
		return true
	case types.FormatIP:
		return len(b) == 4 || len(b) == 16
	case types.FormatIPv4:
		return len(b) == 4
	case types.FormatIPv6:
		return len(b) == 16
	default:
		return false
	}
}

// IsEmail follows the HTML definition of a valid address rather than RFC 5322.
func IsEmail(s string) bool {
	return compiled().email.MatchString(s)
}

// IsHostname reports whether s is a DNS host name such as "foo.example.com".
// Labels are 1-63 characters of letters, digits and inner hyphens; the last
// label is not all digits. One trailing dot is allowed and not counted
// towards the 253 character limit.
func IsHostname(s string) bool {
	s = strings.TrimSuffix(s, ".")
	if len(s) == 0 || len(s) > 253 {
		return false
	}
	allDigits := false
	for _, label := range strings.Split(s, ".") {
		if len(label) == 0 || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		allDigits = true
		for i := 0; i < len(label); i++ {
			c := label[i]
			isDigit := c >= '0' && c <= '9'
			if !isDigit && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && c != '-' {
				return false
			}
			allDigits = allDigits && isDigit
		}
	}
	return !allDigits
}

// IsIP reports whether s is an IP address of the given version (4, 6, or 0
// for either). IPv6 zone identifiers are accepted.
func IsIP(s string, version int) bool {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	return matchesVersion(addr, version)
}

// IsIPPrefix reports whether s is an address with a prefix length. With
// networkOnly the host bits must be zero.
func IsIPPrefix(s string, version int, networkOnly bool) bool {
	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		return false
	}
	if !matchesVersion(prefix.Addr(), version) {
		return false
	}
	return !networkOnly || prefix.Masked() == prefix
}

func matchesVersion(addr netip.Addr, version int) bool {
	switch version {
	case 4:
		return addr.Is4()
	case 6:
		return addr.Is6()
	default:
		return addr.IsValid()
	}
}

// IsUUID reports whether s is a UUID in the canonical hyphenated form.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// IsTUUID reports whether s is a UUID with the hyphens trimmed.
func IsTUUID(s string) bool {
	if !compiled().tuuid.MatchString(s) {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// IsHostAndPort reports whether s is "host:port" where host is a host name,
// an IPv4 address or a bracketed IPv6 address.
func IsHostAndPort(s string, portRequired bool) bool {
	if len(s) == 0 {
		return false
	}
	split := strings.LastIndex(s, ":")
	if s[0] == '[' {
		end := strings.LastIndex(s, "]")
		switch end + 1 {
		case len(s):
			return !portRequired && IsIP(s[1:end], 6)
		case split:
			return IsIP(s[1:end], 6) && isPort(s[split+1:])
		default:
			return false
		}
	}
	if split < 0 {
		return !portRequired && (IsHostname(s) || IsIP(s, 4))
	}
	host, port := s[:split], s[split+1:]
	return (IsHostname(host) || IsIP(host, 4)) && isPort(port)
}

func isPort(s string) bool {
	if len(s) == 0 || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	n, err := strconv.ParseUint(s, 10, 32)
	return err == nil && n <= 65535
}

// IsHeaderName reports whether s is an HTTP header name. The strict form
// follows RFC 7230 tokens and allows an HTTP/2 pseudo-header colon.
func IsHeaderName(s string, strict bool) bool {
	if strict {
		return compiled().headerNameStrict.MatchString(s)
	}
	return compiled().headerNameLoose.MatchString(s)
}

// IsHeaderValue reports whether s is an HTTP header value.
func IsHeaderValue(s string, strict bool) bool {
	if strict {
		return compiled().headerValueStrict.MatchString(s)
	}
	return compiled().headerValueLoose.MatchString(s)
}
