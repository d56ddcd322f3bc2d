// SPDX-License-Identifier: GPL-3.0-or-later

package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// evaluateRewrite rewrites a matching name and leaves a non-matching one
// untouched.
func TestEvaluateRewrite(t *testing.T) {
	matcher := mustRegexp(t, `(?P<s>[a-z]+)\.internal\.consul`)
	r := NewRewriteRule(matcher, "$s.consul")

	rc := NewRoutingContext(mustName(t, "memes.internal.consul"), 443)
	decision, err := evaluateRewrite(r, rc)
	require.NoError(t, err)
	assert.Equal(t, ActionContinue, decision.Action)
	assert.Equal(t, "memes.consul", rc.Name.String())
}

func TestEvaluateRewriteNonMatch(t *testing.T) {
	matcher := mustRegexp(t, `(?P<s>[a-z]+)\.internal\.consul`)
	r := NewRewriteRule(matcher, "$s.consul")

	rc := NewRoutingContext(mustName(t, "foo.example.com"), 443)
	decision, err := evaluateRewrite(r, rc)
	require.NoError(t, err)
	assert.Equal(t, ActionContinue, decision.Action)
	assert.Equal(t, "foo.example.com", rc.Name.String())
}

// Applying the same rewrite rule twice is idempotent when the replacer
// contains no substring matching the matcher (§8 "Round-trip /
// idempotence").
func TestEvaluateRewriteIdempotent(t *testing.T) {
	matcher := mustRegexp(t, `(?P<s>[a-z]+)\.internal\.consul`)
	r := NewRewriteRule(matcher, "$s.consul")

	rc := NewRoutingContext(mustName(t, "memes.internal.consul"), 443)
	_, err := evaluateRewrite(r, rc)
	require.NoError(t, err)
	first := rc.Name.String()

	_, err = evaluateRewrite(r, rc)
	require.NoError(t, err)

	assert.Equal(t, first, rc.Name.String())
}
