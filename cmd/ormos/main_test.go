// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []string{"debug", "info", "warn", "error"}
	for _, level := range tests {
		_, err := parseLogLevel(level)
		require.NoError(t, err)
	}
}

func TestParseLogLevelRejectsUnknown(t *testing.T) {
	_, err := parseLogLevel("trace")
	assert.Error(t, err)
}
