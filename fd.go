package acceptor

import (
	"golang.org/x/sys/unix"
)

// FD owns a single raw socket descriptor. The zero value owns nothing.
//
// An FD has exactly one owner at a time, and the owner is responsible for
// closing it. Ownership moves with Release and Swap and ends with Close.
// Descriptor 0 is a valid descriptor and is tracked like any other.
type FD struct {
	// raw+1, so the zero value means "absent" while descriptor 0 stays
	// representable.
	v int
}

// AdoptFD takes ownership of the descriptor raw. A negative raw yields an
// FD that owns nothing.
func AdoptFD(raw int) FD {
	if raw < 0 {
		return FD{}
	}
	return FD{v: raw + 1}
}

// Valid reports whether the FD currently owns a descriptor.
func (f *FD) Valid() bool { return f.v > 0 }

// Raw returns the owned descriptor without giving up ownership, or -1 when
// the FD owns nothing.
func (f *FD) Raw() int { return f.v - 1 }

// Release moves the descriptor out of the FD, which afterwards owns
// nothing. It returns -1 when there was nothing to release.
func (f *FD) Release() int {
	raw := f.v - 1
	f.v = 0
	return raw
}

// Swap exchanges the descriptors owned by f and g.
func (f *FD) Swap(g *FD) {
	f.v, g.v = g.v, f.v
}

// Close closes the owned descriptor and leaves the FD owning nothing.
// Closing an FD that owns nothing is a no-op returning nil.
func (f *FD) Close() error {
	if f.v <= 0 {
		return nil
	}
	raw := f.v - 1
	f.v = 0
	return unix.Close(raw)
}
