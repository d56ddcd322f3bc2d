// SPDX-License-Identifier: GPL-3.0-or-later

// Package rule implements the routing pipeline: an ordered, immutable
// sequence of [Rule] values driven against one [RoutingContext] per
// connection. See [Pipeline.Run].
package rule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"regexp"

	"github.com/Lainera/ormos"
	"github.com/Lainera/ormos/name"
	"github.com/Lainera/ormos/resolve"
)

// ErrNotAllowed indicates that a [KindFilter] rule rejected the current
// service name because it matched none of the rule's allowed suffixes.
var ErrNotAllowed = errors.New("rule: service name not allowed")

// ErrNoRoute indicates that the pipeline ran to completion without any
// rule returning [ActionTerminate].
var ErrNoRoute = errors.New("rule: no route produced a terminal endpoint")

// Action is the outcome of evaluating a single [Rule] against a
// [RoutingContext].
type Action int

const (
	// ActionContinue means the context may have been mutated; the pipeline
	// proceeds to the next rule.
	ActionContinue Action = iota

	// ActionTerminate means the pipeline has a final endpoint; no further
	// rule runs.
	ActionTerminate

	// ActionFail means the connection is closed with a logged reason; no
	// further rule runs.
	ActionFail
)

// String returns the canonical lowercase name used in structured logs.
func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionTerminate:
		return "terminate"
	case ActionFail:
		return "fail"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Decision is the result of evaluating a [Rule]: exactly one of Continue,
// Terminate (carrying the chosen [resolve.Endpoint]), or Fail (carrying the
// reason).
type Decision struct {
	Action   Action
	Endpoint resolve.Endpoint
	Err      error
}

// Continue builds a [Decision] that lets the pipeline proceed.
func Continue() Decision {
	return Decision{Action: ActionContinue}
}

// Terminate builds a [Decision] that ends the pipeline with a chosen
// endpoint.
func Terminate(endpoint resolve.Endpoint) Decision {
	return Decision{Action: ActionTerminate, Endpoint: endpoint}
}

// Fail builds a [Decision] that closes the connection for the given reason.
func Fail(err error) Decision {
	return Decision{Action: ActionFail, Err: err}
}

// PortMap maps an observed inbound port to a rewritten outbound port (§3).
type PortMap map[uint16]uint16

// candidate is a single endpoint contributed to a [RoutingContext] by a
// constant or dns rule. addr/port are already fully resolved at the time
// the candidate is appended: constant rules resolve the outbound port
// against the port overrides accumulated so far (§4.3 "Port resolution"),
// and dns rules always carry their own resolved port. This means a port
// override rule placed strictly after the constant rule that produced a
// candidate does not retroactively apply to it — a reasonable reading of
// "accumulated" given rules run once, in one pass, per connection.
type candidate = resolve.Endpoint

// RoutingContext is the per-connection mutable record threaded through the
// pipeline (§3). It is created when a connection's handshake is parsed and
// discarded when the connection ends; [*Pipeline.Run] is the only place
// that mutates it.
type RoutingContext struct {
	// Name is the current service name, rewritten in place by rewrite
	// rules. Never empty and always syntactically valid: a rule that would
	// empty it fails the connection instead (§3 invariant).
	Name name.ServiceName

	// PeerPort is the TCP port the client connected to at the listener.
	PeerPort uint16

	// Candidates is the ordered list of endpoints populated by constant
	// and dns rules; may be empty until late in the pipeline.
	Candidates []candidate

	// PortOverrides accumulates the PortMaps merged in by constant rules.
	PortOverrides PortMap
}

// NewRoutingContext creates a [*RoutingContext] for a newly parsed
// connection.
func NewRoutingContext(serviceName name.ServiceName, peerPort uint16) *RoutingContext {
	return &RoutingContext{
		Name:          serviceName,
		PeerPort:      peerPort,
		PortOverrides: PortMap{},
	}
}

// resolvedPort returns the outbound port for an endpoint whose address came
// from a constant rule's ips list: PeerPort, unless PortOverrides has an
// entry keyed by PeerPort.
func (rc *RoutingContext) resolvedPort() uint16 {
	if p, ok := rc.PortOverrides[rc.PeerPort]; ok {
		return p
	}
	return rc.PeerPort
}

// firstCandidate returns the first accumulated candidate, if any. Both the
// dns rule and the fallback rule use this to prefer whatever candidates
// earlier rules accumulated over inventing a new endpoint.
func (rc *RoutingContext) firstCandidate() (resolve.Endpoint, bool) {
	if len(rc.Candidates) == 0 {
		return netip.AddrPort{}, false
	}
	return rc.Candidates[0], true
}

// Kind discriminates the five [Rule] variants (§4.3). Rule is a tagged
// sum, not a dispatch hierarchy: the set of variants is closed and known
// at compile time, so [*Pipeline.Run] dispatches by a case analysis on
// Kind rather than by calling a method on an interface.
type Kind int

const (
	KindFilter Kind = iota
	KindRewrite
	KindConstant
	KindDNS
	KindFallback
)

// String returns the canonical lowercase variant name used in config and
// structured logs.
func (k Kind) String() string {
	switch k {
	case KindFilter:
		return "filter"
	case KindRewrite:
		return "rewrite"
	case KindConstant:
		return "constant"
	case KindDNS:
		return "dns"
	case KindFallback:
		return "fallback"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Rule is a single composable unit of the routing pipeline (§3, §4.3).
// Rules are constructed once at startup and shared, immutably, by
// reference across every concurrent [RoutingContext]; only the fields
// relevant to Kind are populated, per variant:
//
//   - filter: AllowedSuffixes
//   - rewrite: Matcher, Replacer
//   - constant: ConstantName, IPs, Ports
//   - dns: Resolver, Strategy, SRVSuffixes
//   - fallback: FallbackAddress
//
// Construct variants with [NewFilterRule], [NewRewriteRule],
// [NewConstantRule], [NewDNSRule], and [NewFallbackRule], which set the
// fields relevant to each Kind; they do not validate their arguments.
type Rule struct {
	Kind Kind

	// AllowedSuffixes is the filter variant's allowed suffix set.
	AllowedSuffixes []string

	// Matcher is the rewrite variant's compiled named-capture regex,
	// compiled once at startup (§4.3 "Regex semantics").
	Matcher *regexp.Regexp

	// Replacer is the rewrite variant's expansion template, referencing
	// Matcher's named captures as "$name".
	Replacer string

	// ConstantName is the constant variant's exact-match service name.
	ConstantName string

	// IPs is the constant variant's optional list of addresses to append
	// as endpoint candidates.
	IPs []netip.Addr

	// Ports is the constant variant's optional port override map, merged
	// into the context's PortOverrides on match.
	Ports PortMap

	// Resolver is the dns variant's upstream resolver.
	Resolver resolve.Resolver

	// Strategy is the dns variant's address-family strategy.
	Strategy resolve.Strategy

	// SRVSuffixes is the dns variant's set of suffixes for which SRV
	// lookup is attempted before A/AAAA resolution.
	SRVSuffixes []string

	// FallbackAddress is the fallback variant's literal endpoint, used
	// only when no candidate has been accumulated by an earlier rule.
	FallbackAddress resolve.Endpoint
}

// evaluate dispatches to the Kind-specific evaluation function. This is
// the one case-analysis point mentioned in the Rule doc comment.
func evaluate(ctx context.Context, r *Rule, rc *RoutingContext) (Decision, error) {
	switch r.Kind {
	case KindFilter:
		return evaluateFilter(r, rc)
	case KindRewrite:
		return evaluateRewrite(r, rc)
	case KindConstant:
		return evaluateConstant(r, rc)
	case KindDNS:
		return evaluateDNS(ctx, r, rc)
	case KindFallback:
		return evaluateFallback(r, rc)
	default:
		return Fail(fmt.Errorf("rule: unknown kind %v", r.Kind)), nil
	}
}

// Pipeline is an ordered, immutable sequence of [Rule]s (§3). Exactly one
// Pipeline exists per listener; Rules are shared by reference across all
// concurrent [RoutingContext]s driven through it.
type Pipeline struct {
	// Rules is the ordered rule sequence, executed strictly in this order
	// for every connection (§5 "Ordering guarantees").
	Rules []*Rule

	// Logger receives a decision event for every rule evaluated.
	Logger ormos.SLogger
}

// NewPipeline returns a [*Pipeline] over rules, logging decisions to
// logger. A nil logger is replaced with [ormos.DefaultSLogger].
func NewPipeline(rules []*Rule, logger ormos.SLogger) *Pipeline {
	if logger == nil {
		logger = ormos.DefaultSLogger()
	}
	return &Pipeline{Rules: rules, Logger: logger}
}

// Run drives rc through every rule in declared order until a rule returns
// [ActionTerminate] or [ActionFail], or the sequence is exhausted, in which
// case Run returns a [Decision] with [ActionFail] and [ErrNoRoute].
//
// The state machine is: Initial -> (Continue)* -> {Terminated, Failed}.
// Terminal states are absorbing: once a rule terminates or fails the
// connection, Run stops evaluating further rules.
func (p *Pipeline) Run(ctx context.Context, rc *RoutingContext) Decision {
	for _, r := range p.Rules {
		decision, err := evaluate(ctx, r, rc)
		if err != nil {
			decision = Fail(err)
		}
		p.logDecision(r, decision)
		switch decision.Action {
		case ActionContinue:
			continue
		case ActionTerminate, ActionFail:
			return decision
		}
	}
	noRoute := Fail(ErrNoRoute)
	p.Logger.Info("pipelineExhausted", slog.String("name", rc.Name.String()))
	return noRoute
}

func (p *Pipeline) logDecision(r *Rule, decision Decision) {
	p.Logger.Info(
		"ruleDecision",
		slog.String("variant", r.Kind.String()),
		slog.String("action", decision.Action.String()),
		slog.Any("err", decision.Err),
	)
}
