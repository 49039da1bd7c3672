package cancel

import "sync/atomic"

// Flag is a one-way stop request shared between the caller and a running
// job. Once requested it stays requested.
type Flag struct {
	requested atomic.Bool
}

func New() *Flag {
	return &Flag{}
}

// Request marks the flag and reports whether this call made the transition.
func (f *Flag) Request() bool {
	return f.requested.CompareAndSwap(false, true)
}

func (f *Flag) Requested() bool {
	if f == nil {
		return false
	}
	return f.requested.Load()
}
