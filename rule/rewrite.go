// SPDX-License-Identifier: GPL-3.0-or-later

package rule

import (
	"fmt"
	"regexp"

	"github.com/Lainera/ormos/name"
)

// NewRewriteRule returns a [*Rule] of [KindRewrite]: when rc.Name matches
// matcher, it is replaced with replacer expanded against matcher's named
// captures (referenced as "$name"). matcher must already be compiled —
// compilation failure is a config-load-time error, not a runtime one
// (§4.3 "Regex semantics").
func NewRewriteRule(matcher *regexp.Regexp, replacer string) *Rule {
	return &Rule{Kind: KindRewrite, Matcher: matcher, Replacer: replacer}
}

// evaluateRewrite implements the rewrite variant (§4.3). A non-match
// leaves rc.Name unchanged. A match that would produce an empty or
// otherwise invalid service name fails the connection instead of leaving
// rc.Name empty (§3 invariant).
func evaluateRewrite(r *Rule, rc *RoutingContext) (Decision, error) {
	raw := rc.Name.String()
	loc := r.Matcher.FindStringSubmatchIndex(raw)
	if loc == nil {
		return Continue(), nil
	}

	expanded := r.Matcher.ExpandString(nil, r.Replacer, raw, loc)
	rewritten, err := name.Parse(string(expanded))
	if err != nil {
		return Fail(fmt.Errorf("rule: rewrite produced invalid name %q: %w", expanded, err)), nil
	}

	rc.Name = rewritten
	return Continue(), nil
}
