// SPDX-License-Identifier: GPL-3.0-or-later

package rule

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

// mustRegexp compiles pattern or fails the test, mirroring the
// compile-once-at-startup contract for rewrite rules' Matcher.
func mustRegexp(t *testing.T, pattern string) *regexp.Regexp {
	t.Helper()
	re, err := regexp.Compile(pattern)
	require.NoError(t, err)
	return re
}
