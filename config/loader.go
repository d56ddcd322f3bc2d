// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"net/netip"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/Lainera/ormos"
	"github.com/Lainera/ormos/parse"
	"github.com/Lainera/ormos/resolve"
	"github.com/Lainera/ormos/rule"
	"gopkg.in/yaml.v3"
)

// ListenerConfig is one fully resolved listener: an address to bind, the
// parser registry to peek with, and the compiled pipeline to route with.
// Every listener gets its own [*rule.Pipeline] wrapping the same shared
// []*rule.Rule slice, so rules stay immutable and reusable across
// listeners while each keeps its own independent pipeline instance.
type ListenerConfig struct {
	Address  string
	Registry *parse.Registry
	Pipeline *rule.Pipeline
}

// Load reads and parses the YAML document at path, builds a
// [resolve.Resolver] for every distinct dns-rule address, and returns one
// [ListenerConfig] per `listen` entry. cfg/logger feed the constructed
// resolvers' dial pipelines; a nil logger defaults to
// [ormos.DefaultSLogger].
func Load(path string, cfg *ormos.Config, logger ormos.SLogger) ([]ListenerConfig, error) {
	if logger == nil {
		logger = ormos.DefaultSLogger()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalid, path, err)
	}

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalid, path, err)
	}

	if len(doc.Listen) == 0 {
		return nil, fmt.Errorf("%w: no listen entries", ErrInvalid)
	}

	rules, err := buildRules(doc.Rules, cfg, logger)
	if err != nil {
		return nil, err
	}

	listeners := make([]ListenerConfig, 0, len(doc.Listen))
	for _, entry := range doc.Listen {
		registry, err := buildRegistry(entry.Parsers)
		if err != nil {
			return nil, err
		}
		listeners = append(listeners, ListenerConfig{
			Address:  entry.Address,
			Registry: registry,
			Pipeline: rule.NewPipeline(rules, logger),
		})
	}
	return listeners, nil
}

func buildRegistry(names []string) (*parse.Registry, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: listen entry has no parsers", ErrInvalid)
	}
	parsers := make([]parse.Parser, 0, len(names))
	for _, n := range names {
		switch n {
		case "tls":
			parsers = append(parsers, parse.TLSParser{})
		case "http/1":
			parsers = append(parsers, parse.HTTP1Parser{})
		default:
			return nil, fmt.Errorf("%w: unknown parser %q", ErrInvalid, n)
		}
	}
	return parse.NewRegistry(parsers...), nil
}

func buildRules(entries []ruleEntry, cfg *ormos.Config, logger ormos.SLogger) ([]*rule.Rule, error) {
	resolvers := map[netip.AddrPort]resolve.Resolver{}
	rules := make([]*rule.Rule, 0, len(entries))
	for i, entry := range entries {
		r, err := buildRule(entry, cfg, logger, resolvers)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d: %v", ErrInvalid, i, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func buildRule(entry ruleEntry, cfg *ormos.Config, logger ormos.SLogger,
	resolvers map[netip.AddrPort]resolve.Resolver) (*rule.Rule, error) {
	switch entry.Type {
	case "filter":
		if len(entry.Names) == 0 {
			return nil, fmt.Errorf("filter rule has no names")
		}
		return rule.NewFilterRule(entry.Names), nil

	case "rewrite":
		matcher, err := regexp.Compile(entry.Matcher)
		if err != nil {
			return nil, fmt.Errorf("rewrite rule: invalid matcher: %w", err)
		}
		return rule.NewRewriteRule(matcher, entry.Replacer), nil

	case "constant":
		if entry.Name == "" {
			return nil, fmt.Errorf("constant rule has no name")
		}
		ips, err := parseIPs(entry.IPs)
		if err != nil {
			return nil, fmt.Errorf("constant rule: %w", err)
		}
		ports, err := parsePortMap(entry.Ports)
		if err != nil {
			return nil, fmt.Errorf("constant rule: %w", err)
		}
		return rule.NewConstantRule(entry.Name, ips, ports), nil

	case "dns":
		serverAddr, err := netip.ParseAddrPort(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("dns rule: invalid address %q: %w", entry.Address, err)
		}
		strategy, err := resolve.ParseStrategy(entry.Strategy)
		if err != nil {
			return nil, fmt.Errorf("dns rule: %w", err)
		}
		resolver, ok := resolvers[serverAddr]
		if !ok {
			resolver = resolve.NewDNSResolver(cfg, logger, serverAddr, "udp", 0)
			resolvers[serverAddr] = resolver
		}
		return rule.NewDNSRule(resolver, strategy, entry.SRV), nil

	case "fallback":
		endpoint, err := netip.ParseAddrPort(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("fallback rule: invalid address %q: %w", entry.Address, err)
		}
		return rule.NewFallbackRule(endpoint), nil

	default:
		return nil, fmt.Errorf("unknown rule type %q", entry.Type)
	}
}

// parseIPs parses a list of literal IP addresses (§6 "constant" rule's
// `ips`).
func parseIPs(raw []string) ([]netip.Addr, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ips := make([]netip.Addr, 0, len(raw))
	for _, s := range raw {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid ip %q: %w", s, err)
		}
		ips = append(ips, addr)
	}
	return ips, nil
}

// parsePortMap parses "A:B" pairs (§6 "constant" rule's `ports`) into a
// [rule.PortMap].
func parsePortMap(raw []string) (rule.PortMap, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ports := make(rule.PortMap, len(raw))
	for _, s := range raw {
		from, to, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("invalid port mapping %q: expected \"A:B\"", s)
		}
		fromPort, err := strconv.ParseUint(from, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid port mapping %q: %w", s, err)
		}
		toPort, err := strconv.ParseUint(to, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid port mapping %q: %w", s, err)
		}
		ports[uint16(fromPort)] = uint16(toPort)
	}
	return ports, nil
}
