// SPDX-License-Identifier: GPL-3.0-or-later

package rule

import "github.com/Lainera/ormos/resolve"

// NewFallbackRule returns a [*Rule] of [KindFallback]: terminates the
// pipeline with address, typically placed last so a connection never
// reaches [ErrNoRoute] (§8 "Universal invariants").
func NewFallbackRule(address resolve.Endpoint) *Rule {
	return &Rule{Kind: KindFallback, FallbackAddress: address}
}

// evaluateFallback implements the fallback variant (§4.3). It prefers any
// endpoint already accumulated by an earlier rule (e.g. a constant rule
// that matched but whose pipeline has no dns rule to consume its
// candidate) over its own literal address, which is used only as the last
// resort when no candidate exists.
func evaluateFallback(r *Rule, rc *RoutingContext) (Decision, error) {
	if ep, ok := rc.firstCandidate(); ok {
		return Terminate(ep), nil
	}
	return Terminate(r.FallbackAddress), nil
}
