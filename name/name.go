// SPDX-License-Identifier: GPL-3.0-or-later

// Package name implements [ServiceName], the normalized DNS-style label
// sequence that flows through the routing pipeline as [*RoutingContext].Name
// in the rule package.
package name

import (
	"errors"
	"strings"

	"golang.org/x/net/idna"
)

// maxNameOctets is the maximum total length of a [ServiceName], per RFC 1035
// section 3.1 (255 octets on the wire, 253 once the root label and its
// length-prefix byte are excluded from the presentation form).
const maxNameOctets = 253

// maxLabelOctets is the maximum length of a single dot-separated label.
const maxLabelOctets = 63

// ErrInvalid indicates that a candidate service name failed validation:
// empty, oversized, containing an empty label, or unrepresentable as ASCII.
var ErrInvalid = errors.New("name: invalid service name")

// ServiceName is a normalized DNS-style lowercase label sequence, e.g.
// "foo.example.com". The zero value is invalid; construct one with [Parse].
//
// A ServiceName is validated and normalized once, at the boundary where raw
// bytes from a parser or a rule's rewrite template become routing state. Every
// subsequent consumer (filter, dns rule, splicer logs) can treat the value as
// already well-formed.
type ServiceName string

// profile is shared across calls; it is immutable after initialization and
// safe for concurrent use, per the idna package's own documentation.
var profile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.VerifyDNSLength(false),
)

// Parse normalizes raw into a [ServiceName]: Unicode labels are folded to
// their ASCII form and lowercased via [golang.org/x/net/idna], then the
// result is validated against the length limits in §3 (253 octets total,
// 1-63 octets per label). Returns [ErrInvalid] if raw is empty or the
// normalized form violates either limit.
func Parse(raw string) (ServiceName, error) {
	ascii, err := profile.ToASCII(strings.TrimSuffix(raw, "."))
	if err != nil {
		return "", errors.Join(ErrInvalid, err)
	}
	ascii = strings.ToLower(ascii)
	if err := validate(ascii); err != nil {
		return "", err
	}
	return ServiceName(ascii), nil
}

// validate checks s against the length invariants in §3. s must already be
// normalized (lowercase, no trailing dot).
func validate(s string) error {
	if s == "" {
		return ErrInvalid
	}
	if len(s) > maxNameOctets {
		return ErrInvalid
	}
	for _, label := range strings.Split(s, ".") {
		if len(label) == 0 || len(label) > maxLabelOctets {
			return ErrInvalid
		}
	}
	return nil
}

// String returns the normalized lowercase label sequence.
func (n ServiceName) String() string {
	return string(n)
}

// Valid reports whether n satisfies the invariants in §3: non-empty, no
// label exceeding 63 octets, no more than 253 octets in total.
func (n ServiceName) Valid() bool {
	return validate(string(n)) == nil
}

// HasSuffix reports whether n ends with suffix on a label boundary: n equals
// suffix, or n ends with "." + suffix. This is the "label-boundary-aware"
// match used by the filter rule and by srv-enabled suffix sets (§4.3, §8) —
// it prevents "evilexample.com" from matching "example.com".
//
// Both n and suffix are compared case-sensitively; callers should ensure
// both came from [Parse] (and are therefore already lowercased).
func (n ServiceName) HasSuffix(suffix string) bool {
	s := string(n)
	if s == suffix {
		return true
	}
	return strings.HasSuffix(s, "."+suffix)
}
