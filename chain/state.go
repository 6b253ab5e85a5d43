// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package chain

import "fmt"

// State is the recreation state of a chain.
type State int

// Chain states. A chain starts Unbuilt, is Stable while frames may be
// issued and Broken after a rebuild failed.
const (
	Unbuilt State = iota
	Stable
	AwaitingNonzeroSize
	Quiescing
	Teardown
	Rebuild
	Broken
)

var stateNames = [...]string{
	"UNBUILT", "STABLE", "AWAITING_NONZERO_SIZE", "QUIESCING", "TEARDOWN", "REBUILD", "BROKEN",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}
