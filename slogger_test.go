// SPDX-License-Identifier: GPL-3.0-or-later

package ormos

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSLogger(t *testing.T) {
	logger := DefaultSLogger()

	// Should return a non-nil logger
	assert.NotNil(t, logger)

	// Should be able to call Debug and Info without panic (discards output)
	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")

	// With on the discard logger still satisfies SLogger and discards.
	scoped := logger.With("spanID", "abc")
	scoped.Info("info message", "key", "value")
}

func TestDiscardSLogger(t *testing.T) {
	logger := discardSLogger{}

	// Verify it implements SLogger
	var _ SLogger = logger

	// Should be able to call Debug and Info without panic (discards output)
	logger.Debug("debug message", "key1", "value1", "key2", 42)
	logger.Info("info message", "key1", "value1", "key2", 42)
}

func TestNewSLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	raw := slog.New(slog.NewJSONHandler(&buf, nil))

	logger := NewSLogger(raw)
	var _ SLogger = logger

	scoped := logger.With("spanID", "span-1")
	scoped.Info("event one")
	scoped.Info("event two")

	out := buf.String()
	require.Contains(t, out, "span-1")
	assert.Equal(t, 2, bytes.Count([]byte(out), []byte("span-1")))
}
