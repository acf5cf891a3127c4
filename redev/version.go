package redev

import "runtime/debug"

// buildIdentity returns the deterministic build identity exchanged during
// channel setup. Both sides of a coupling must be built from the same
// revision; a mismatch is a fatal configuration error caught at setup.
func buildIdentity() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "development"
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return "development"
}
