package formats

import (
	"net/netip"
	"regexp"
	"strings"
)

// RFC 3986 appendix B; every group is optional so presence is read from the
// submatch indexes.
var uriSplit = regexp.MustCompile(`^(?:([^:/?#]+):)?(?://([^/?#]*))?([^?#]*)(?:\?([^#]*))?(?:#(.*))?$`)

var schemePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*$`)

const (
	subDelims = "!$&'()*+,;="
	pcharX    = subDelims + ":@"
	pathX     = pcharX + "/"
	queryX    = pathX + "?"
	userinfoX = subDelims + ":"
)

type uriParts struct {
	scheme, authority, path, query, fragment string
	hasScheme, hasAuthority                  bool
	hasQuery, hasFragment                    bool
}

func splitURI(s string) (uriParts, bool) {
	idx := uriSplit.FindStringSubmatchIndex(s)
	if idx == nil {
		return uriParts{}, false
	}
	group := func(n int) (string, bool) {
		if idx[2*n] < 0 {
			return "", false
		}
		return s[idx[2*n]:idx[2*n+1]], true
	}
	var p uriParts
	p.scheme, p.hasScheme = group(1)
	p.authority, p.hasAuthority = group(2)
	p.path, _ = group(3)
	p.query, p.hasQuery = group(4)
	p.fragment, p.hasFragment = group(5)
	return p, true
}

// IsURI reports whether s is an absolute URI such as
// "https://example.com/foo?bar#baz" per RFC 3986, including RFC 6874 zone
// identifiers in IPv6 literals.
func IsURI(s string) bool {
	p, ok := splitURI(s)
	if !ok || !p.hasScheme {
		return false
	}
	return validParts(p)
}

// IsURIRef reports whether s is a URI or a relative reference such as
// "./foo/bar?query".
func IsURIRef(s string) bool {
	p, ok := splitURI(s)
	if !ok {
		return false
	}
	if p.hasScheme {
		return validParts(p)
	}
	if !p.hasAuthority && !strings.HasPrefix(p.path, "/") {
		first, _, _ := strings.Cut(p.path, "/")
		if strings.Contains(first, ":") {
			return false
		}
	}
	return validParts(p)
}

func validParts(p uriParts) bool {
	if p.hasScheme && !schemePattern.MatchString(p.scheme) {
		return false
	}
	if p.hasAuthority {
		if !validAuthority(p.authority) {
			return false
		}
		if p.path != "" && p.path[0] != '/' {
			return false
		}
	} else if strings.HasPrefix(p.path, "//") {
		return false
	}
	if !validChars(p.path, pathX) {
		return false
	}
	if p.hasQuery && !validChars(p.query, queryX) {
		return false
	}
	if p.hasFragment && !validChars(p.fragment, queryX) {
		return false
	}
	return true
}

func validAuthority(a string) bool {
	if at := strings.LastIndexByte(a, '@'); at >= 0 {
		if !validChars(a[:at], userinfoX) {
			return false
		}
		a = a[at+1:]
	}

	var host, port string
	if strings.HasPrefix(a, "[") {
		end := strings.IndexByte(a, ']')
		if end < 0 {
			return false
		}
		if !validIPLiteral(a[1:end]) {
			return false
		}
		rest := a[end+1:]
		if rest != "" {
			if rest[0] != ':' {
				return false
			}
			port = rest[1:]
		}
	} else {
		host = a
		if c := strings.LastIndexByte(a, ':'); c >= 0 {
			host, port = a[:c], a[c+1:]
		}
		if !validChars(host, subDelims) {
			return false
		}
	}

	for i := 0; i < len(port); i++ {
		if port[i] < '0' || port[i] > '9' {
			return false
		}
	}
	return true
}

func validIPLiteral(lit string) bool {
	if len(lit) > 0 && (lit[0] == 'v' || lit[0] == 'V') {
		return validIPvFuture(lit[1:])
	}
	addr, zone, hasZone := strings.Cut(lit, "%25")
	if hasZone && (zone == "" || !validChars(zone, "")) {
		return false
	}
	ip, err := netip.ParseAddr(addr)
	return err == nil && ip.Is6() && ip.Zone() == ""
}

func validIPvFuture(s string) bool {
	version, rest, ok := strings.Cut(s, ".")
	if !ok || version == "" || rest == "" {
		return false
	}
	for i := 0; i < len(version); i++ {
		if !isHex(version[i]) {
			return false
		}
	}
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if !isUnreserved(c) && !strings.ContainsRune(userinfoX, rune(c)) {
			return false
		}
	}
	return true
}

// validChars accepts unreserved characters, well-formed percent escapes
// and any byte listed in extra.
func validChars(s, extra string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isUnreserved(c):
		case c == '%':
			if i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2]) {
				return false
			}
			i += 2
		case c < 0x80 && strings.IndexByte(extra, c) >= 0:
		default:
			return false
		}
	}
	return true
}

func isUnreserved(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
