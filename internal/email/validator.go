// Package email validates email-address syntax for the account entry flow.
//
// The grammar is enforced by an explicit parser rather than a regular
// expression so that every rejection carries a stable, inspectable reason
// and individual rules stay extensible. Quoted local-parts and
// internationalized domain names are outside the enforced grammar and are
// rejected.
package email

import (
	"strings"
	"unicode"
)

// Reason is a stable machine-readable code explaining why a candidate
// address was rejected.
type Reason string

const (
	ReasonMalformedStructure  Reason = "malformed-structure"
	ReasonMalformedLocalPart  Reason = "malformed-local-part"
	ReasonMalformedDomain     Reason = "malformed-domain"
	ReasonIPLiteralOutOfRange Reason = "ip-literal-out-of-range"
)

// Result is the outcome of validating one candidate address.
type Result struct {
	OK     bool
	Reason Reason
}

func valid() Result { return Result{OK: true} }

func invalid(r Reason) Result { return Result{Reason: r} }

// Validate checks a candidate address against the grammar. It is pure and
// deterministic; rules are evaluated in a fixed order and the first violated
// rule's reason is reported.
//
// Rules, in order:
//  1. Non-empty, exactly one "@" separating local-part and domain-part.
//  2. Local-part: 1+ characters from [A-Za-z0-9._%+-], no leading or
//     trailing dot.
//  3. Domain-part: dotted hostname (labels of [A-Za-z0-9-], 1-63 chars,
//     no leading/trailing hyphen, at least two labels, no trailing dot)
//     or a bracketed IP literal with an optional "IPv6:" prefix.
//  4. No embedded whitespace anywhere.
func Validate(candidate string) Result {
	if candidate == "" {
		return invalid(ReasonMalformedStructure)
	}
	if strings.Count(candidate, "@") != 1 {
		return invalid(ReasonMalformedStructure)
	}

	at := strings.IndexByte(candidate, '@')
	local, domain := candidate[:at], candidate[at+1:]

	if r := checkLocalPart(local); !r.OK {
		return r
	}
	if r := checkDomainPart(domain); !r.OK {
		return r
	}

	// Backstop: whitespace that slipped past the per-part character sets.
	for _, r := range candidate {
		if unicode.IsSpace(r) {
			return invalid(ReasonMalformedStructure)
		}
	}
	return valid()
}

// localAtom reports whether c may appear in an unquoted local-part.
func localAtom(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.' || c == '_' || c == '%' || c == '+' || c == '-':
		return true
	}
	return false
}

func checkLocalPart(local string) Result {
	if local == "" {
		return invalid(ReasonMalformedLocalPart)
	}
	if local[0] == '.' || local[len(local)-1] == '.' {
		return invalid(ReasonMalformedLocalPart)
	}
	for i := 0; i < len(local); i++ {
		if !localAtom(local[i]) {
			return invalid(ReasonMalformedLocalPart)
		}
	}
	return valid()
}

func checkDomainPart(domain string) Result {
	if domain == "" {
		return invalid(ReasonMalformedDomain)
	}
	if domain[0] == '[' {
		if domain[len(domain)-1] != ']' {
			return invalid(ReasonMalformedDomain)
		}
		return checkIPLiteral(domain[1 : len(domain)-1])
	}
	return checkHostname(domain)
}

// checkHostname validates a dotted hostname: labels separated by ".", each
// 1-63 characters of [A-Za-z0-9-] with no hyphen at either end. Single-label
// hostnames and trailing dots are rejected.
func checkHostname(host string) Result {
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return invalid(ReasonMalformedDomain)
	}
	for _, label := range labels {
		if label == "" || len(label) > 63 {
			// Covers empty labels from "..", leading and trailing dots.
			return invalid(ReasonMalformedDomain)
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return invalid(ReasonMalformedDomain)
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			switch {
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			default:
				return invalid(ReasonMalformedDomain)
			}
		}
	}
	return valid()
}

// checkIPLiteral validates the content of a bracketed address literal.
// After stripping an optional "IPv6:" tag the content is parsed as IPv4
// when it contains no colon and as IPv6 when it does.
func checkIPLiteral(lit string) Result {
	lit = strings.TrimPrefix(lit, "IPv6:")
	if strings.Contains(lit, ":") {
		return checkIPv6(lit)
	}
	return checkIPv4(lit)
}

// checkIPv4 validates a dotted-quad address. Each octet must be 0-255 with
// no leading-zero ambiguity; a syntactically well-formed octet whose value
// is out of range is reported as such, distinct from plain malformation.
func checkIPv4(s string) Result {
	octets := strings.Split(s, ".")
	if len(octets) != 4 {
		return invalid(ReasonMalformedDomain)
	}
	for _, o := range octets {
		if o == "" || len(o) > 3 {
			return invalid(ReasonMalformedDomain)
		}
		for i := 0; i < len(o); i++ {
			if o[i] < '0' || o[i] > '9' {
				return invalid(ReasonMalformedDomain)
			}
		}
		if len(o) > 1 && o[0] == '0' {
			// "01" could be octal or decimal; ambiguous, reject.
			return invalid(ReasonMalformedDomain)
		}
		v := 0
		for i := 0; i < len(o); i++ {
			v = v*10 + int(o[i]-'0')
		}
		if v > 255 {
			return invalid(ReasonIPLiteralOutOfRange)
		}
	}
	return valid()
}

// checkIPv6 validates an IPv6 address, including "::" zero compression and
// an embedded IPv4 dotted quad in the final position (e.g. ::ffff:1.2.3.4).
func checkIPv6(s string) Result {
	if s == "" {
		return invalid(ReasonMalformedDomain)
	}

	var head, tail string
	compressed := false
	if i := strings.Index(s, "::"); i >= 0 {
		compressed = true
		head, tail = s[:i], s[i+2:]
		if strings.Contains(tail, "::") {
			// Only one "::" allowed.
			return invalid(ReasonMalformedDomain)
		}
	} else {
		head = s
	}

	groups := 0
	count := func(part string, allowIPv4Tail bool) Result {
		if part == "" {
			return valid()
		}
		pieces := strings.Split(part, ":")
		for i, g := range pieces {
			last := i == len(pieces)-1
			if allowIPv4Tail && last && strings.Contains(g, ".") {
				if r := checkIPv4(g); !r.OK {
					return r
				}
				groups += 2 // an IPv4 tail occupies two 16-bit groups
				continue
			}
			if r := checkHexGroup(g); !r.OK {
				return r
			}
			groups++
		}
		return valid()
	}

	if compressed {
		if r := count(head, false); !r.OK {
			return r
		}
		if r := count(tail, true); !r.OK {
			return r
		}
		// "::" stands for at least one zero group.
		if groups > 7 {
			return invalid(ReasonMalformedDomain)
		}
	} else {
		if r := count(head, true); !r.OK {
			return r
		}
		if groups != 8 {
			return invalid(ReasonMalformedDomain)
		}
	}
	return valid()
}

func checkHexGroup(g string) Result {
	if g == "" || len(g) > 4 {
		return invalid(ReasonMalformedDomain)
	}
	for i := 0; i < len(g); i++ {
		c := g[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return invalid(ReasonMalformedDomain)
		}
	}
	return valid()
}
