// SPDX-License-Identifier: GPL-3.0-or-later

package rule

import (
	"context"
	"net/netip"

	"github.com/Lainera/ormos/resolve"
)

// NewDNSRule returns a [*Rule] of [KindDNS]: resolves rc.Name against
// resolver using strategy, appending the result to the context's
// candidates. srvSuffixes names the set of service-name suffixes for
// which an SRV lookup is attempted before A/AAAA resolution (§4.2,
// §4.3).
func NewDNSRule(resolver resolve.Resolver, strategy resolve.Strategy, srvSuffixes []string) *Rule {
	return &Rule{Kind: KindDNS, Resolver: resolver, Strategy: strategy, SRVSuffixes: srvSuffixes}
}

// evaluateDNS implements the dns variant (§4.3). On resolver failure with
// an empty candidate list it returns Continue, allowing a later fallback
// rule to take over; otherwise it terminates with the first accumulated
// candidate (which may have been contributed by an earlier constant
// rule).
func evaluateDNS(ctx context.Context, r *Rule, rc *RoutingContext) (Decision, error) {
	if underSRVSet(rc, r.SRVSuffixes) {
		resolveSRV(ctx, r, rc)
	} else {
		resolveAddresses(ctx, r, rc)
	}

	if ep, ok := rc.firstCandidate(); ok {
		return Terminate(ep), nil
	}
	return Continue(), nil
}

// underSRVSet reports whether rc.Name ends, on a label boundary, with any
// suffix in srvSuffixes.
func underSRVSet(rc *RoutingContext, srvSuffixes []string) bool {
	for _, suffix := range srvSuffixes {
		if rc.Name.HasSuffix(suffix) {
			return true
		}
	}
	return false
}

// resolveAddresses performs a plain A/AAAA lookup and appends the results
// using the peer port (subject to any accumulated port override).
func resolveAddresses(ctx context.Context, r *Rule, rc *RoutingContext) {
	addrs, err := r.Resolver.LookupAddresses(ctx, rc.Name.String(), r.Strategy)
	if err != nil {
		return
	}
	port := rc.resolvedPort()
	for _, addr := range addrs {
		rc.Candidates = append(rc.Candidates, netip.AddrPortFrom(addr, port))
	}
}

// resolveSRV looks up the SRV target for rc.Name, then resolves that
// target's address, carrying the SRV-advertised port (§4.2 "SRV
// handling"). [resolve.Resolver.LookupSRV] has already ordered targets by
// priority with a weighted tie-break, so the first target is the chosen
// one.
func resolveSRV(ctx context.Context, r *Rule, rc *RoutingContext) {
	targets, err := r.Resolver.LookupSRV(ctx, rc.Name.String())
	if err != nil || len(targets) == 0 {
		return
	}
	chosen := targets[0]

	addrs, err := r.Resolver.LookupAddresses(ctx, chosen.Target, r.Strategy)
	if err != nil || len(addrs) == 0 {
		return
	}
	rc.Candidates = append(rc.Candidates, netip.AddrPortFrom(addrs[0], chosen.Port))
}
