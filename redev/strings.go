package redev

import "strings"

// IsSameCaseInsensitive reports whether two strings are equal ignoring
// case. Engine-type names ("SST", "BP4") and the Streaming parameter value
// are compared with it.
func IsSameCaseInsensitive(a, b string) bool {
	return strings.EqualFold(a, b)
}
