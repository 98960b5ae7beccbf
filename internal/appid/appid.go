package appid

import "strings"

// Identity describes how the binary presents itself on disk and in the environment.
type Identity struct {
	BinaryName  string
	ConfigName  string
	EnvPrefix   string
	Description string
	VersionFile string
}

var identity = Identity{
	BinaryName:  "pyforge",
	ConfigName:  "pyforge",
	EnvPrefix:   "PYFORGE_",
	Description: "per-project Python interpreter toolchain manager",
	VersionFile: ".python-version",
}

// Get returns the application identity.
func Get() *Identity {
	id := identity
	return &id
}

// IsToolName reports whether an executable basename refers to the manager itself
// rather than to a shimmed interpreter command.
func IsToolName(base string) bool {
	base = strings.TrimSuffix(strings.ToLower(base), ".exe")
	return base == identity.BinaryName
}

// EnvKey returns the environment variable name for a suffix, e.g. EnvKey("HOME").
func EnvKey(suffix string) string {
	return identity.EnvPrefix + strings.ToUpper(suffix)
}
