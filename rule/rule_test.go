// SPDX-License-Identifier: GPL-3.0-or-later

package rule

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/Lainera/ormos/name"
	"github.com/Lainera/ormos/resolve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustName(t *testing.T, s string) name.ServiceName {
	t.Helper()
	n, err := name.Parse(s)
	require.NoError(t, err)
	return n
}

// Run executes rules strictly in declared order and stops at the first
// terminal decision.
func TestPipelineRunStopsAtFirstTerminal(t *testing.T) {
	rules := []*Rule{
		NewFilterRule([]string{"example.com"}),
		NewFallbackRule(netip.MustParseAddrPort("127.0.0.1:1111")),
		NewFallbackRule(netip.MustParseAddrPort("127.0.0.1:2222")),
	}
	pipeline := NewPipeline(rules, nil)
	rc := NewRoutingContext(mustName(t, "foo.example.com"), 443)

	decision := pipeline.Run(context.Background(), rc)

	require.Equal(t, ActionTerminate, decision.Action)
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:1111"), decision.Endpoint)
}

// A filter that rejects the connection is terminal: a fallback rule placed
// after it never runs (scenario 3).
func TestPipelineFilterDeniesIsTerminal(t *testing.T) {
	rules := []*Rule{
		NewFilterRule([]string{"example.com"}),
		NewFallbackRule(netip.MustParseAddrPort("127.0.0.1:6666")),
	}
	pipeline := NewPipeline(rules, nil)
	rc := NewRoutingContext(mustName(t, "evilexample.com"), 443)

	decision := pipeline.Run(context.Background(), rc)

	require.Equal(t, ActionFail, decision.Action)
	assert.ErrorIs(t, decision.Err, ErrNotAllowed)
}

// A pipeline with no terminal rule ends in ErrNoRoute.
func TestPipelineExhaustedIsNoRoute(t *testing.T) {
	rules := []*Rule{NewFilterRule([]string{"example.com"})}
	pipeline := NewPipeline(rules, nil)
	rc := NewRoutingContext(mustName(t, "foo.example.com"), 443)

	decision := pipeline.Run(context.Background(), rc)

	require.Equal(t, ActionFail, decision.Action)
	assert.ErrorIs(t, decision.Err, ErrNoRoute)
}

// HTTP Host routed to constant (scenario 2): a constant rule's candidate
// is consumed by a trailing fallback rule even though no dns rule reads
// it, with the constant rule's own port override applied.
func TestPipelineConstantThenFallback(t *testing.T) {
	rules := []*Rule{
		NewConstantRule("api.svc", []netip.Addr{netip.MustParseAddr("127.0.0.1")}, PortMap{80: 9000}),
		NewFallbackRule(netip.MustParseAddrPort("127.0.0.1:1")),
	}
	pipeline := NewPipeline(rules, nil)
	rc := NewRoutingContext(mustName(t, "api.svc"), 80)

	decision := pipeline.Run(context.Background(), rc)

	require.Equal(t, ActionTerminate, decision.Action)
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:9000"), decision.Endpoint)
}

// Rewrite then DNS (scenario 4): a rewrite rule rewrites the name before
// the dns rule queries the resolver for the rewritten name.
func TestPipelineRewriteThenDNS(t *testing.T) {
	matcher := mustRegexp(t, `(?P<s>[a-z]+)\.internal\.consul`)
	resolver := &stubResolver{
		addrs: map[string][]netip.Addr{
			"memes.consul": {netip.MustParseAddr("10.0.0.5")},
		},
	}
	rules := []*Rule{
		NewRewriteRule(matcher, "$s.consul"),
		NewDNSRule(resolver, resolve.Ipv4Only, nil),
	}
	pipeline := NewPipeline(rules, nil)
	rc := NewRoutingContext(mustName(t, "memes.internal.consul"), 443)

	decision := pipeline.Run(context.Background(), rc)

	require.Equal(t, ActionTerminate, decision.Action)
	assert.Equal(t, "memes.consul", resolver.lastAddrName)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.5:443"), decision.Endpoint)
}

// SRV lookup (scenario 5): the dns rule issues an SRV query first for a
// name under the configured SRV suffix set, then resolves the chosen
// target's address and carries the SRV-advertised port.
func TestPipelineDNSWithSRV(t *testing.T) {
	resolver := &stubResolver{
		srv: map[string][]resolve.SRVTarget{
			"svc.my.domain": {{Target: "box.my.domain", Port: 7000, Priority: 0, Weight: 0}},
		},
		addrs: map[string][]netip.Addr{
			"box.my.domain": {netip.MustParseAddr("10.0.0.9")},
		},
	}
	rules := []*Rule{NewDNSRule(resolver, resolve.Ipv4Only, []string{"my.domain"})}
	pipeline := NewPipeline(rules, nil)
	rc := NewRoutingContext(mustName(t, "svc.my.domain"), 443)

	decision := pipeline.Run(context.Background(), rc)

	require.Equal(t, ActionTerminate, decision.Action)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.9:7000"), decision.Endpoint)
}

// Fallback when all fails (scenario 6): a dns rule that resolves nothing
// returns Continue, and the trailing fallback rule uses its own literal
// address since no candidate was accumulated.
func TestPipelineDNSContinuesOnFailureThenFallback(t *testing.T) {
	resolver := &stubResolver{lookupErr: errors.New("timeout")}
	rules := []*Rule{
		NewDNSRule(resolver, resolve.Ipv4Only, nil),
		NewFallbackRule(netip.MustParseAddrPort("127.0.0.1:6666")),
	}
	pipeline := NewPipeline(rules, nil)
	rc := NewRoutingContext(mustName(t, "x.example"), 443)

	decision := pipeline.Run(context.Background(), rc)

	require.Equal(t, ActionTerminate, decision.Action)
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:6666"), decision.Endpoint)
}

// stubResolver is a minimal [resolve.Resolver] for pipeline tests.
type stubResolver struct {
	addrs        map[string][]netip.Addr
	srv          map[string][]resolve.SRVTarget
	lookupErr    error
	lastAddrName string
}

var _ resolve.Resolver = &stubResolver{}

func (s *stubResolver) LookupAddresses(ctx context.Context, name string, strategy resolve.Strategy) ([]netip.Addr, error) {
	s.lastAddrName = name
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	addrs, ok := s.addrs[name]
	if !ok {
		return nil, resolve.ErrResolveFailed
	}
	return addrs, nil
}

func (s *stubResolver) LookupSRV(ctx context.Context, name string) ([]resolve.SRVTarget, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	targets, ok := s.srv[name]
	if !ok {
		return nil, resolve.ErrResolveFailed
	}
	return targets, nil
}
