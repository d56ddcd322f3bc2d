// SPDX-License-Identifier: GPL-3.0-or-later

package resolve

import (
	"fmt"
	"strings"
)

// Strategy selects which address families a [Resolver] consults and in
// what order when resolving a name to addresses.
type Strategy int

const (
	// Ipv4Only resolves A records only.
	Ipv4Only Strategy = iota

	// Ipv6Only resolves AAAA records only.
	Ipv6Only

	// Ipv4ThenIpv6 queries both families in parallel, preferring IPv4
	// results and falling back to IPv6 when IPv4 yields no records.
	Ipv4ThenIpv6

	// Ipv6ThenIpv4 queries both families in parallel, preferring IPv6
	// results and falling back to IPv4 when IPv6 yields no records.
	Ipv6ThenIpv4
)

// String returns the canonical lowerCamelCase name used in configuration
// documents and structured logs.
func (s Strategy) String() string {
	switch s {
	case Ipv4Only:
		return "ipv4Only"
	case Ipv6Only:
		return "ipv6Only"
	case Ipv4ThenIpv6:
		return "ipv4ThenIpv6"
	case Ipv6ThenIpv4:
		return "ipv6ThenIpv4"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy parses one of "ipv4Only", "ipv6Only", "ipv4ThenIpv6", or
// "ipv6ThenIpv4" into a [Strategy], case-insensitively. This accepts both
// the lowerCamelCase spelling used by [Strategy.String] and the
// PascalCase spelling used by spec §6/§8 ("Ipv4Only", "Ipv4ThenIpv6", …).
func ParseStrategy(s string) (Strategy, error) {
	switch {
	case strings.EqualFold(s, "ipv4Only"):
		return Ipv4Only, nil
	case strings.EqualFold(s, "ipv6Only"):
		return Ipv6Only, nil
	case strings.EqualFold(s, "ipv4ThenIpv6"):
		return Ipv4ThenIpv6, nil
	case strings.EqualFold(s, "ipv6ThenIpv4"):
		return Ipv6ThenIpv4, nil
	default:
		return 0, fmt.Errorf("resolve: unknown strategy %q", s)
	}
}
