/** Copyright 2020-2023 Alibaba Group Holding Limited.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// lifecycle.go is §4.5's object lifecycle controller. It does not hold
// state of its own: an object's state, from this client's local
// perspective, is fully derived from whether it appears in the in-use
// table, whether that entry is sealed, and whether it currently sits
// in the release history. Deriving it this way keeps I1-I5 trivially
// true by construction instead of needing to be kept in sync with a
// second copy of the truth.
package client

import "github.com/vineyard-go/plasma/pkg/types"

type objectState int

const (
	stateAbsent objectState = iota
	stateCreating
	stateSealedInUse
	stateQueued
)

func (s objectState) String() string {
	switch s {
	case stateAbsent:
		return "Absent"
	case stateCreating:
		return "Creating"
	case stateSealedInUse:
		return "Sealed-InUse"
	case stateQueued:
		return "Queued"
	default:
		return "Unknown"
	}
}

// lifecycle answers state queries and transition guards against the
// tables it's handed; clientBase holds it (as lc) alongside those
// tables rather than it holding its own copies.
type lifecycle struct {
	inUse    *inUseTable
	history  *releaseHistory
}

func newLifecycle(inUse *inUseTable, history *releaseHistory) *lifecycle {
	return &lifecycle{inUse: inUse, history: history}
}

func (l *lifecycle) state(id types.ObjectID) objectState {
	entry, ok := l.inUse.lookup(id)
	if !ok {
		return stateAbsent
	}
	if !entry.isSealed {
		return stateCreating
	}
	if l.history.contains(id) {
		return stateQueued
	}
	return stateSealedInUse
}

// requireState enforces the §4.5 transition table for operations whose
// legality depends on exactly one current state (Seal and Abort call
// this).
func (l *lifecycle) requireState(id types.ObjectID, want objectState, op string) error {
	if got := l.state(id); got != want {
		return errIllegalTransition(id, got, op)
	}
	return nil
}
