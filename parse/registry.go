// SPDX-License-Identifier: GPL-3.0-or-later

package parse

// RegistryResult is the outcome of [*Registry.Extract]: either an Ok match
// with the matching parser's protocol name, a NeedMore asking the caller
// to peek more bytes, or a Failed meaning every configured parser
// returned NotMine or Malformed.
type RegistryResult struct {
	Status   Status
	Protocol string
	Name     NameResult
}

// NameResult mirrors [Result]'s success fields, kept separate so callers
// that only care about the match don't need to import the per-parser
// [Status] semantics twice.
type NameResult struct {
	Name     string
	Consumed int
}

// Registry tries a configured, ordered set of [Parser]s against
// progressively larger peeks of a connection's leading bytes (§4.1).
type Registry struct {
	parsers []Parser
}

// NewRegistry returns a [*Registry] trying parsers in the given order.
func NewRegistry(parsers ...Parser) *Registry {
	return &Registry{parsers: parsers}
}

// MinimumBytes returns the largest [Parser.MinimumBytes] among the
// registry's parsers: the listener's first peek must be at least this
// large for any parser to have a chance of matching (§4.4 step 1).
func (reg *Registry) MinimumBytes() int {
	biggest := 0
	for _, p := range reg.parsers {
		if n := p.MinimumBytes(); n > biggest {
			biggest = n
		}
	}
	return biggest
}

// Extract tries every configured parser, in order, against data. It
// returns the first [StatusOk] result; if none match yet but at least one
// parser returned [StatusNeedMore], it returns [StatusNeedMore] so the
// listener peeks more bytes and retries; otherwise every parser
// definitively rejected data and it returns a Failed-shaped
// [RegistryResult] ([StatusMalformed]).
func (reg *Registry) Extract(data []byte) RegistryResult {
	needMore := false
	for _, p := range reg.parsers {
		res := p.Extract(data)
		switch res.Status {
		case StatusOk:
			return RegistryResult{
				Status:   StatusOk,
				Protocol: p.Protocol(),
				Name:     NameResult{Name: res.Name.String(), Consumed: res.Consumed},
			}
		case StatusNeedMore:
			needMore = true
		case StatusNotMine, StatusMalformed:
			continue
		}
	}
	if needMore {
		return RegistryResult{Status: StatusNeedMore}
	}
	return RegistryResult{Status: StatusMalformed}
}
