// SPDX-License-Identifier: GPL-3.0-or-later

package resolve

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/Lainera/ormos"
	"github.com/bassosimone/dnscodec"
	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrResolveFailed indicates that a Resolver could not produce any address
// or SRV target for a name, after exhausting every configured strategy.
var ErrResolveFailed = errors.New("resolve: resolution failed")

// defaultQueryTimeout bounds an individual A/AAAA/SRV query absent an
// explicit [DNSResolver.QueryTimeout].
const defaultQueryTimeout = 5 * time.Second

// Resolver maps a service name to upstream endpoints, and separately
// answers SRV lookups for callers that want to route through a service's
// advertised targets.
//
// Implementations must be safe for concurrent use: a [*DNSResolver]'s
// internal cache accepts concurrent readers and coalesces concurrent
// identical queries into one upstream exchange.
type Resolver interface {
	// LookupAddresses resolves name to zero or more addresses using the
	// given [Strategy]. Returns [ErrResolveFailed] if every queried family
	// fails or yields no records.
	LookupAddresses(ctx context.Context, name string, strategy Strategy) ([]netip.Addr, error)

	// LookupSRV resolves the SRV records for name, ordered by priority
	// (ascending) with a weighted-random tie-break within each priority
	// band, per RFC 2782.
	LookupSRV(ctx context.Context, name string) ([]SRVTarget, error)
}

// SRVTarget is one weighted target returned by [Resolver.LookupSRV].
type SRVTarget struct {
	// Target is the target host name, without a trailing dot.
	Target string

	// Port is the target's service port.
	Port uint16

	// Priority orders targets; lower values are preferred.
	Priority uint16

	// Weight breaks ties within a priority band via weighted random
	// selection (RFC 2782 section 6.3/6.4).
	Weight uint16
}

// addressKey identifies a cached A/AAAA answer.
type addressKey struct {
	name  string
	qtype uint16
}

// DNSResolver is the default [Resolver] implementation.
//
// A/AAAA exchanges run over the dnscodec-based dial pipelines
// ([NewDNSOverUDPConnFunc], [NewDNSOverTCPConnFunc], [NewDNSOverTLSConnFunc]);
// SRV queries run directly through [*dns.Client] since dnscodec's confirmed
// API surface exposes address records but not SRV records. Concurrent
// identical lookups are coalesced with [singleflight.Group]; successful
// lookups are cached (see [ttlCache] and [defaultAddressTTL]).
//
// Construct with [NewDNSResolver]. All exported fields are safe to modify
// after construction but before first use.
type DNSResolver struct {
	// ServerAddr is the upstream recursive resolver to query.
	ServerAddr netip.AddrPort

	// Transport selects "udp" (default), "tcp", or "tls" for exchanges.
	Transport string

	// TLSConfig configures the DNS-over-TLS handshake when Transport is "tls".
	TLSConfig *tls.Config

	// QueryTimeout bounds each individual query. Defaults to
	// [defaultQueryTimeout] when zero.
	QueryTimeout time.Duration

	// Config carries the ambient Dialer/ErrClassifier/TimeNow dependencies.
	Config *ormos.Config

	// Logger receives structured lookup events.
	Logger ormos.SLogger

	addrCache *ttlCache[addressKey, []netip.Addr]
	srvCache  *ttlCache[string, []SRVTarget]
	single    singleflight.Group
}

// NewDNSResolver returns a [*DNSResolver] querying serverAddr over the
// given transport ("udp", "tcp", or "tls"). cacheMaxEntries bounds the
// address and SRV caches independently; a non-positive value falls back to
// [defaultCacheMaxEntries].
func NewDNSResolver(cfg *ormos.Config, logger ormos.SLogger, serverAddr netip.AddrPort, transport string, cacheMaxEntries int) *DNSResolver {
	return &DNSResolver{
		ServerAddr:   serverAddr,
		Transport:    transport,
		QueryTimeout: defaultQueryTimeout,
		Config:       cfg,
		Logger:       logger,
		addrCache:    newTTLCache[addressKey, []netip.Addr](cacheMaxEntries),
		srvCache:     newTTLCache[string, []SRVTarget](cacheMaxEntries),
	}
}

var _ Resolver = &DNSResolver{}

func (r *DNSResolver) queryTimeout() time.Duration {
	if r.QueryTimeout > 0 {
		return r.QueryTimeout
	}
	return defaultQueryTimeout
}

// LookupAddresses implements [Resolver].
func (r *DNSResolver) LookupAddresses(ctx context.Context, name string, strategy Strategy) ([]netip.Addr, error) {
	switch strategy {
	case Ipv4Only, Ipv6Only:
		qtype := dns.TypeA
		if strategy == Ipv6Only {
			qtype = dns.TypeAAAA
		}
		addrs, err := r.lookupFamily(ctx, name, qtype)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrResolveFailed, err)
		}
		if len(addrs) == 0 {
			return nil, ErrResolveFailed
		}
		return addrs, nil
	case Ipv4ThenIpv6:
		return r.lookupRace(ctx, name, dns.TypeA, dns.TypeAAAA)
	case Ipv6ThenIpv4:
		return r.lookupRace(ctx, name, dns.TypeAAAA, dns.TypeA)
	default:
		return nil, fmt.Errorf("resolve: %w: unknown strategy %v", ErrResolveFailed, strategy)
	}
}

// lookupRace queries preferred and fallback families in parallel, returning
// the preferred family's records unless they're absent, in which case the
// fallback family's records are returned instead.
func (r *DNSResolver) lookupRace(ctx context.Context, name string, preferred, fallback uint16) ([]netip.Addr, error) {
	var preferredAddrs, fallbackAddrs []netip.Addr
	var preferredErr, fallbackErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		preferredAddrs, preferredErr = r.lookupFamily(gctx, name, preferred)
		return nil
	})
	g.Go(func() error {
		fallbackAddrs, fallbackErr = r.lookupFamily(gctx, name, fallback)
		return nil
	})
	_ = g.Wait() // per-family errors are handled below; the group never fails itself

	if preferredErr == nil && len(preferredAddrs) > 0 {
		return preferredAddrs, nil
	}
	if fallbackErr == nil && len(fallbackAddrs) > 0 {
		return fallbackAddrs, nil
	}
	return nil, ErrResolveFailed
}

// lookupFamily resolves name for a single query type, consulting the cache
// first and coalescing concurrent identical misses via singleflight.
func (r *DNSResolver) lookupFamily(ctx context.Context, name string, qtype uint16) ([]netip.Addr, error) {
	key := addressKey{name: strings.ToLower(name), qtype: qtype}

	if addrs, ok := r.addrCache.get(key); ok {
		return addrs, nil
	}

	sfKey := fmt.Sprintf("%d/%s", qtype, key.name)
	v, err, _ := r.single.Do(sfKey, func() (any, error) {
		addrs, err := r.exchangeAddresses(ctx, key.name, qtype)
		if err != nil {
			return nil, err
		}
		r.addrCache.set(key, addrs, defaultAddressTTL)
		return addrs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]netip.Addr), nil
}

// dnsExchanger is satisfied by [*DNSOverUDPConn], [*DNSOverTCPConn], and
// [*DNSOverTLSConn]: the common surface the transport-specific dial
// pipelines hand back.
type dnsExchanger interface {
	Exchange(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error)
	Close() error
}

// exchangeAddresses dials the configured transport and performs a single
// A or AAAA exchange for name.
func (r *DNSResolver) exchangeAddresses(ctx context.Context, name string, qtype uint16) ([]netip.Addr, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	conn, err := r.dialExchanger(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query := dnscodec.NewQuery(name, qtype)
	resp, err := conn.Exchange(ctx, query)
	if err != nil {
		return nil, err
	}
	return extractAddrs(resp, qtype)
}

// dialExchanger builds and runs the dial pipeline for the configured
// transport, returning a ready-to-use [dnsExchanger].
func (r *DNSResolver) dialExchanger(ctx context.Context) (dnsExchanger, error) {
	switch r.Transport {
	case "tcp":
		return r.dialTCPExchanger(ctx)
	case "tls":
		return r.dialTLSExchanger(ctx)
	default:
		return r.dialUDPExchanger(ctx)
	}
}

func (r *DNSResolver) dialUDPExchanger(ctx context.Context) (dnsExchanger, error) {
	epntOp := NewEndpointFunc(r.ServerAddr)
	connectOp := ormos.NewConnectFunc(r.Config, "udp", r.Logger)
	observeOp := ormos.NewObserveConnFunc(r.Config, r.Logger)
	autoCancelOp := ormos.NewCancelWatchFunc()
	wrapOp := NewDNSOverUDPConnFunc(r.Config, r.Logger)

	dialPipe := ormos.Compose5(epntOp, connectOp, observeOp, autoCancelOp, wrapOp)
	return dialPipe.Call(ctx, ormos.Unit{})
}

func (r *DNSResolver) dialTCPExchanger(ctx context.Context) (dnsExchanger, error) {
	epntOp := NewEndpointFunc(r.ServerAddr)
	connectOp := ormos.NewConnectFunc(r.Config, "tcp", r.Logger)
	observeOp := ormos.NewObserveConnFunc(r.Config, r.Logger)
	autoCancelOp := ormos.NewCancelWatchFunc()
	wrapOp := NewDNSOverTCPConnFunc(r.Config, r.Logger)

	dialPipe := ormos.Compose5(epntOp, connectOp, observeOp, autoCancelOp, wrapOp)
	return dialPipe.Call(ctx, ormos.Unit{})
}

func (r *DNSResolver) dialTLSExchanger(ctx context.Context) (dnsExchanger, error) {
	epntOp := NewEndpointFunc(r.ServerAddr)
	connectOp := ormos.NewConnectFunc(r.Config, "tcp", r.Logger)
	observeOp := ormos.NewObserveConnFunc(r.Config, r.Logger)
	autoCancelOp := ormos.NewCancelWatchFunc()
	tlsHandshakeOp := NewTLSHandshakeFunc(r.Config, r.tlsConfig(), r.Logger)
	wrapOp := NewDNSOverTLSConnFunc(r.Config, r.Logger)

	dialPipe := ormos.Compose6(epntOp, connectOp, observeOp, autoCancelOp, tlsHandshakeOp, wrapOp)
	return dialPipe.Call(ctx, ormos.Unit{})
}

func (r *DNSResolver) tlsConfig() *tls.Config {
	if r.TLSConfig != nil {
		return r.TLSConfig
	}
	return &tls.Config{ServerName: r.ServerAddr.Addr().String(), NextProtos: []string{"dot"}}
}

// extractAddrs pulls the address list matching qtype out of resp.
//
// AAAA extraction relies on [*dnscodec.Response.RecordsAAAA], inferred by
// symmetry with the confirmed [*dnscodec.Response.RecordsA]: a codec
// library exposing typed A-record extraction is overwhelmingly likely to
// expose the same shape for AAAA.
func extractAddrs(resp *dnscodec.Response, qtype uint16) ([]netip.Addr, error) {
	var raw []string
	var err error
	if qtype == dns.TypeAAAA {
		raw, err = resp.RecordsAAAA()
	} else {
		raw, err = resp.RecordsA()
	}
	if err != nil {
		return nil, err
	}

	addrs := make([]netip.Addr, 0, len(raw))
	for _, s := range raw {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			continue
		}
		addrs = append(addrs, addr)
	}
	// Deterministic order within a single lookup (spec: "returned in
	// deterministic address order ... so tests are reproducible").
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].String() < addrs[j].String()
	})
	return addrs, nil
}

// LookupSRV implements [Resolver].
func (r *DNSResolver) LookupSRV(ctx context.Context, name string) ([]SRVTarget, error) {
	key := strings.ToLower(name)

	if targets, ok := r.srvCache.get(key); ok {
		return targets, nil
	}

	v, err, _ := r.single.Do("srv/"+key, func() (any, error) {
		targets, ttl, err := r.exchangeSRV(ctx, key)
		if err != nil {
			return nil, err
		}
		r.srvCache.set(key, targets, ttl)
		return targets, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]SRVTarget), nil
}

// dnsClientNetwork maps the resolver's Transport onto the network value
// [*dns.Client] expects.
func (r *DNSResolver) dnsClientNetwork() string {
	switch r.Transport {
	case "tcp":
		return "tcp"
	case "tls":
		return "tcp-tls"
	default:
		return "udp"
	}
}

// exchangeSRV issues a single SRV query directly through [*dns.Client],
// returning targets ordered per RFC 2782 and the minimum answer TTL.
func (r *DNSResolver) exchangeSRV(ctx context.Context, name string) ([]SRVTarget, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeSRV)
	msg.RecursionDesired = true

	client := &dns.Client{
		Net:       r.dnsClientNetwork(),
		Timeout:   r.queryTimeout(),
		TLSConfig: r.tlsConfig(),
	}

	t0 := r.Config.TimeNow()
	resp, _, err := client.ExchangeContext(ctx, msg, r.ServerAddr.String())
	r.logSRVDone(t0, name, err)
	if err != nil {
		return nil, 0, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, 0, fmt.Errorf("%w: SRV lookup for %s: rcode %s", ErrResolveFailed, name, dns.RcodeToString[resp.Rcode])
	}

	var targets []SRVTarget
	var minTTL uint32
	for _, rr := range resp.Answer {
		srv, ok := rr.(*dns.SRV)
		if !ok {
			continue
		}
		targets = append(targets, SRVTarget{
			Target:   strings.TrimSuffix(srv.Target, "."),
			Port:     srv.Port,
			Priority: srv.Priority,
			Weight:   srv.Weight,
		})
		if minTTL == 0 || srv.Hdr.Ttl < minTTL {
			minTTL = srv.Hdr.Ttl
		}
	}
	if len(targets) == 0 {
		return nil, 0, fmt.Errorf("%w: no SRV records for %s", ErrResolveFailed, name)
	}

	orderSRVTargets(targets)
	return targets, time.Duration(minTTL) * time.Second, nil
}

func (r *DNSResolver) logSRVDone(t0 time.Time, name string, err error) {
	r.Logger.Info(
		"dnsSRVLookupDone",
		"err", err,
		"errClass", r.Config.ErrClassifier.Classify(err),
		"name", name,
		"serverAddr", r.ServerAddr.String(),
		"t0", t0,
		"t", r.Config.TimeNow(),
	)
}

// orderSRVTargets sorts targets by ascending priority, applying a weighted
// random tie-break within each priority band per RFC 2782 sections 6.3-6.4.
func orderSRVTargets(targets []SRVTarget) {
	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].Priority < targets[j].Priority
	})

	i := 0
	for i < len(targets) {
		j := i
		for j < len(targets) && targets[j].Priority == targets[i].Priority {
			j++
		}
		weightedShuffleBand(targets[i:j])
		i = j
	}
}

// weightedShuffleBand reorders band in place using weighted random
// selection without replacement: targets with a higher weight are more
// likely to be picked earlier, but every target (including weight 0) has a
// non-zero chance, per RFC 2782.
func weightedShuffleBand(band []SRVTarget) {
	remaining := append([]SRVTarget(nil), band...)
	for k := range band {
		total := 0
		for _, t := range remaining {
			total += int(t.Weight) + 1
		}
		pick := rand.IntN(total)
		idx, acc := 0, 0
		for idx = range remaining {
			acc += int(remaining[idx].Weight) + 1
			if pick < acc {
				break
			}
		}
		band[k] = remaining[idx]
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
}
