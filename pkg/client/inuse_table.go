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

package client

import (
	"github.com/vineyard-go/plasma/pkg/memory"
	"github.com/vineyard-go/plasma/pkg/types"
)

// inUseEntry is §3's ObjectInUseEntry: the per-object record the
// client keeps for every id it has locally observed via Create or
// Get.
type inUseEntry struct {
	object    types.PlasmaObject
	localRefs int
	isSealed  bool
}

// inUseTable is §4.3's in-use table. Each live entry pins exactly one
// mmapTable entry, by incrementing that entry's active count on
// beginUse and decrementing it only once the entry is fully torn down
// (never directly on endUse — see releaseHistory).
type inUseTable struct {
	entries map[types.ObjectID]*inUseEntry
	mmap    *memory.Table
}

func newInUseTable(mmap *memory.Table) *inUseTable {
	return &inUseTable{
		entries: make(map[types.ObjectID]*inUseEntry),
		mmap:    mmap,
	}
}

// beginUse implements §4.3 begin_use: first observation inserts with
// localRefs=1 and pins the backing mapping; a repeat observation (a
// second Get of the same id) just bumps the ref count.
func (t *inUseTable) beginUse(id types.ObjectID, object types.PlasmaObject, isSealed bool) *inUseEntry {
	if e, ok := t.entries[id]; ok {
		e.localRefs++
		return e
	}
	e := &inUseEntry{object: object, localRefs: 1, isSealed: isSealed}
	t.entries[id] = e
	t.mmap.Increment(object.StoreFd)
	return e
}

// endUse implements §4.3 end_use: decrements localRefs and reports
// whether it reached zero. The entry is never removed here — per §3,
// reaching zero means the caller (the lifecycle controller) appends
// it to the release history instead of destroying it immediately.
func (t *inUseTable) endUse(id types.ObjectID) (reachedZero bool, err error) {
	e, ok := t.entries[id]
	if !ok {
		return false, errObjectNotInUse(id)
	}
	e.localRefs--
	return e.localRefs == 0, nil
}

func (t *inUseTable) lookup(id types.ObjectID) (*inUseEntry, bool) {
	e, ok := t.entries[id]
	return e, ok
}

func (t *inUseTable) markSealed(id types.ObjectID) {
	if e, ok := t.entries[id]; ok {
		e.isSealed = true
	}
}

// remove tears an entry down entirely: drops it from the table and
// unpins its mapping. Called when an entry is flushed from the
// release history, or destroyed directly by Abort.
func (t *inUseTable) remove(id types.ObjectID) error {
	e, ok := t.entries[id]
	if !ok {
		return errObjectNotInUse(id)
	}
	delete(t.entries, id)
	return t.mmap.Decrement(e.object.StoreFd)
}

func (t *inUseTable) len() int {
	return len(t.entries)
}
