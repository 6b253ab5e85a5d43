// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import "sync/atomic"

// IDs hands out identifiers. Every service owning one draws from its own
// allocator, so identifiers are unique within that service only.
type IDs struct {
	next uint32
}

// NewIDs returns an allocator whose first identifier is start.
func NewIDs(start uint32) *IDs {
	return &IDs{next: start}
}

// Next returns a fresh identifier.
func (i *IDs) Next() uint32 {
	return atomic.AddUint32(&i.next, 1) - 1
}

// Reserve returns the first of n consecutive fresh identifiers.
func (i *IDs) Reserve(n uint32) uint32 {
	return atomic.AddUint32(&i.next, n) - n
}
