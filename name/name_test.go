// SPDX-License-Identifier: GPL-3.0-or-later

package name

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Parse normalizes valid names and rejects malformed ones.
func TestParse(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// raw is the candidate input.
		raw string

		// want is the expected normalized form, if no error is expected.
		want string

		// wantErr indicates whether Parse should fail.
		wantErr bool
	}{
		{name: "simple lowercase", raw: "foo.example.com", want: "foo.example.com"},
		{name: "uppercase is lowercased", raw: "Foo.Example.COM", want: "foo.example.com"},
		{name: "trailing dot is stripped", raw: "foo.example.com.", want: "foo.example.com"},
		{name: "single label", raw: "localhost", want: "localhost"},
		{name: "empty is invalid", raw: "", wantErr: true},
		{name: "label too long is invalid", raw: strings.Repeat("a", 64) + ".com", wantErr: true},
		{name: "total too long is invalid", raw: strings.Repeat("a.", 127) + "com", wantErr: true},
		{name: "empty label is invalid", raw: "foo..com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

// Valid reports whether a ServiceName still satisfies the length invariants
// (e.g. after a rewrite rule produces a new value from a template).
func TestServiceNameValid(t *testing.T) {
	assert.True(t, ServiceName("foo.example.com").Valid())
	assert.False(t, ServiceName("").Valid())
	assert.False(t, ServiceName(strings.Repeat("a", 300)).Valid())
}

// HasSuffix implements the label-boundary-aware suffix match from §8: true
// for (x, x) and (a.x, x), false for (ax, x).
func TestServiceNameHasSuffix(t *testing.T) {
	tests := []struct {
		n      ServiceName
		suffix string
		want   bool
	}{
		{n: "example.com", suffix: "example.com", want: true},
		{n: "a.example.com", suffix: "example.com", want: true},
		{n: "evilexample.com", suffix: "example.com", want: false},
		{n: "example.com", suffix: "com", want: true},
		{n: "com", suffix: "example.com", want: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.n)+"/"+tt.suffix, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.n.HasSuffix(tt.suffix))
		})
	}
}
