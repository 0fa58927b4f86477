package featureflags

import "context"

// Static answers from a fixed map. Flags missing from the map report
// Default.
type Static struct {
	Flags   map[string]bool
	Default bool
}

func (s Static) IsEnabled(_ context.Context, flag string) bool {
	if v, ok := s.Flags[flag]; ok {
		return v
	}
	return s.Default
}
