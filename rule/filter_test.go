// SPDX-License-Identifier: GPL-3.0-or-later

package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// evaluateFilter allows a name under an allowed suffix and fails
// everything else, on a label boundary.
func TestEvaluateFilter(t *testing.T) {
	tests := []struct {
		name     string
		allowed  []string
		wantFail bool
	}{
		{name: "example.com", allowed: []string{"example.com"}},
		{name: "a.example.com", allowed: []string{"example.com"}},
		{name: "evilexample.com", allowed: []string{"example.com"}, wantFail: true},
		{name: "other.test", allowed: []string{"example.com"}, wantFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewFilterRule(tt.allowed)
			rc := NewRoutingContext(mustName(t, tt.name), 443)

			decision, err := evaluateFilter(r, rc)

			require.NoError(t, err)
			if tt.wantFail {
				assert.Equal(t, ActionFail, decision.Action)
				assert.ErrorIs(t, decision.Err, ErrNotAllowed)
				return
			}
			assert.Equal(t, ActionContinue, decision.Action)
		})
	}
}
