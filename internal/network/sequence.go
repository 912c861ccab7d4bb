package network

// SequenceFilter discards duplicate and out-of-order frames. Sequence numbers
// must strictly increase; comparison uses serial arithmetic so the counter may
// wrap. A peer that restarts its counter is not detected here: the owner calls
// Reset once it knows the peer went away.
//
// Not safe for concurrent use.
type SequenceFilter struct {
	last    uint32
	started bool
}

func NewSequenceFilter() *SequenceFilter {
	return &SequenceFilter{}
}

// Accept reports whether a frame with seq should be processed, and records it.
func (f *SequenceFilter) Accept(seq uint32) bool {
	if !f.started {
		f.started = true
		f.last = seq
		return true
	}
	if int32(seq-f.last) <= 0 {
		return false
	}
	f.last = seq
	return true
}

// Reset forgets the baseline; the next frame is accepted whatever its number.
func (f *SequenceFilter) Reset() {
	f.started = false
	f.last = 0
}
