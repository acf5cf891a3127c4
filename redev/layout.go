package redev

// InMessageLayout is the receive side's cached description of an incoming
// message. It is populated on the first receive and reused verbatim for
// every receive in the same layout.
type InMessageLayout struct {
	// SrcRanks is the per-sender degree-start matrix: sender rank s's row
	// occupies [s*R, (s+1)*R) where R is the receiver rank count, and entry
	// r is the offset within receiver r's inbox where s's contribution
	// begins.
	SrcRanks GOs
	// Offset segments the global payload by receiver rank; length is the
	// receiver rank count plus one.
	Offset GOs
	// KnownSizes is false until the first receive reads the metadata
	// variables.
	KnownSizes bool
	// Start and Count are this receiver rank's slice of the payload.
	Start int
	Count int
}

// outMessageLayout is the send side's description of the outgoing message:
// dest[i] is the destination rank of the i-th local segment and
// offsets[i]..offsets[i+1] bounds it within the user's payload buffer.
type outMessageLayout struct {
	dest    LOs
	offsets LOs
}
