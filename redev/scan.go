package redev

import "github.com/scorec/redev-go/pg"

// ExclusiveScan returns the exclusive prefix sum of in:
// out[0] = init, out[i] = out[i-1] + in[i-1].
func ExclusiveScan[T pg.Number](in []T, init T) []T {
	out := make([]T, len(in))
	acc := init
	for i, v := range in {
		out[i] = acc
		acc += v
	}
	return out
}
