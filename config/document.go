// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads the YAML document that describes every listener
// and its routing pipeline (§6). Loading is strict and happens once at
// startup: any malformed rule, regex, or address literal is a
// ConfigInvalid error, never a runtime one.
package config

import (
	"fmt"
)

// ErrInvalid wraps every error the loader produces, so callers can
// recognize config failures with errors.Is without inspecting messages.
var ErrInvalid = fmt.Errorf("config: invalid configuration")

// document is the root YAML shape (§6): a list of listeners and an
// ordered, shared list of rules.
type document struct {
	Listen []listenEntry `yaml:"listen"`
	Rules  []ruleEntry   `yaml:"rules"`
}

// listenEntry is one element of the top-level `listen` list.
type listenEntry struct {
	Address string   `yaml:"address"`
	Parsers []string `yaml:"parsers"`
}

// ruleEntry is one element of the top-level `rules` list, discriminated
// by Type. Only the fields relevant to Type are populated; yaml.v3 leaves
// the rest at their zero value, which the per-variant builder validates.
type ruleEntry struct {
	Type string `yaml:"type"`

	// filter
	Names []string `yaml:"names"`

	// rewrite
	Matcher  string `yaml:"matcher"`
	Replacer string `yaml:"replacer"`

	// constant
	Name  string   `yaml:"name"`
	IPs   []string `yaml:"ips"`
	Ports []string `yaml:"ports"`

	// dns
	Address  string   `yaml:"address"`
	Strategy string   `yaml:"strategy"`
	SRV      []string `yaml:"srv"`
}
