// SPDX-License-Identifier: GPL-3.0-or-later

package rule

import "net/netip"

// NewConstantRule returns a [*Rule] of [KindConstant]: when rc.Name equals
// constantName, each address in ips is appended as an endpoint candidate
// and ports (if non-nil) is merged into the context's port overrides.
// Either ips or ports may be nil; a rule with both nil is a no-op match
// that still returns Continue.
func NewConstantRule(constantName string, ips []netip.Addr, ports PortMap) *Rule {
	return &Rule{Kind: KindConstant, ConstantName: constantName, IPs: ips, Ports: ports}
}

// evaluateConstant implements the constant variant (§4.3). Ports is merged
// before IPs are resolved into candidates, so a constant rule's own port
// overrides apply to the endpoints it produces in the same step.
func evaluateConstant(r *Rule, rc *RoutingContext) (Decision, error) {
	if rc.Name.String() != r.ConstantName {
		return Continue(), nil
	}

	for from, to := range r.Ports {
		rc.PortOverrides[from] = to
	}

	if len(r.IPs) > 0 {
		port := rc.resolvedPort()
		for _, addr := range r.IPs {
			rc.Candidates = append(rc.Candidates, netip.AddrPortFrom(addr, port))
		}
	}

	return Continue(), nil
}
