package identity

import "strings"

// UserFlags is the persisted capability bitmask of a user. Bit positions
// are part of the stored format and must never be renumbered.
type UserFlags uint32

const (
	FlagDisabled            UserFlags = 1 << 0
	FlagCompletedOnboarding UserFlags = 1 << 1
	FlagEmailVerified       UserFlags = 1 << 2
	FlagTFAEnabled          UserFlags = 1 << 3
	FlagAdministrator       UserFlags = 1 << 4
)

var flagNames = []struct {
	flag UserFlags
	name string
}{
	{FlagDisabled, "DISABLED"},
	{FlagCompletedOnboarding, "COMPLETED_ONBOARDING"},
	{FlagEmailVerified, "EMAIL_VERIFIED"},
	{FlagTFAEnabled, "TFA_ENABLED"},
	{FlagAdministrator, "ADMINISTRATOR"},
}

// Has reports whether every bit of flag is set.
func (f UserFlags) Has(flag UserFlags) bool {
	return flag != 0 && f&flag == flag
}

func (f UserFlags) Set(flag UserFlags) UserFlags {
	return f | flag
}

func (f UserFlags) Clear(flag UserFlags) UserFlags {
	return f &^ flag
}

// Names lists the names of the set bits in bit order.
func (f UserFlags) Names() []string {
	names := make([]string, 0, len(flagNames))
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return names
}

func (f UserFlags) String() string {
	if f == 0 {
		return "NONE"
	}
	return strings.Join(f.Names(), "|")
}
