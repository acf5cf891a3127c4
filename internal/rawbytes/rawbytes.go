// Package rawbytes converts typed element slices to and from their in-memory
// byte representation. The coupled applications run on the same architecture,
// so native layout is the wire layout.
package rawbytes

import "unsafe"

// Of aliases the backing array of s as a byte slice. The result shares memory
// with s and is only valid while s is.
func Of[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(s[0])))
}

// Clone returns an owned copy of the byte representation of s.
func Clone[T any](s []T) []byte {
	return append([]byte(nil), Of(s)...)
}

// CopyInto copies b into the backing array of dst. The caller guarantees
// len(b) == len(dst)*sizeof(T).
func CopyInto[T any](dst []T, b []byte) {
	copy(Of(dst), b)
}

// Size reports sizeof(T).
func Size[T any]() int {
	var z T
	return int(unsafe.Sizeof(z))
}
