// Package power tracks the platform power-save flag and notifies observers
// when it changes.
package power

import "sync/atomic"

// Reader exposes the current power-save flag. Reads are atomic and may
// happen from any goroutine.
type Reader interface {
	IsPowerSave() bool
}

// State is the single-writer power-save flag.
type State struct {
	powerSave atomic.Bool
}

// IsPowerSave reports whether power-save mode is active.
func (s *State) IsPowerSave() bool {
	return s.powerSave.Load()
}

// Set stores v and reports whether the value changed.
func (s *State) Set(v bool) bool {
	return s.powerSave.Swap(v) != v
}
