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

package memory

import (
	"syscall"

	"github.com/pkg/errors"

	"github.com/vineyard-go/plasma/pkg/types"
)

// Entry is the in-process record for one memory-mapped file shared
// with the store, per §3 MmapEntry. Base is the address returned by
// mmap; ActiveCount is the number of in-use-table entries currently
// pinning this mapping (invariant I2).
type Entry struct {
	Base        []byte
	Length      uint64
	ActiveCount int
}

// Table maps a store-assigned file identifier to the region mapped
// for it, mirroring the teacher's ClientMmapTableEntry
// (unordered_map<int, ClientMmapTableEntry> in client.h). It owns the
// address-space region: unmapping happens exactly when ActiveCount
// returns to zero (§4.2).
type Table struct {
	entries map[types.StoreFdID]*Entry
}

func NewTable() *Table {
	return &Table{entries: make(map[types.StoreFdID]*Entry)}
}

// LookupOrMmap returns the base pointer for an already-mapped region,
// or mmaps osFd fresh and records it under storeFd. osFd is the
// platform file descriptor received from the codec for this call; it
// is closed once mmap has taken its own reference, per §4.2 ("the
// actual OS file descriptor ... is closed after the mmap call — only
// the mapping persists").
func (t *Table) LookupOrMmap(storeFd types.StoreFdID, osFd int, length uint64, writable bool) ([]byte, error) {
	if e, ok := t.entries[storeFd]; ok {
		return e.Base, nil
	}

	prot := syscall.PROT_READ
	if writable {
		prot |= syscall.PROT_WRITE
	}
	base, err := syscall.Mmap(osFd, 0, int(length), prot, syscall.MAP_SHARED)
	_ = syscall.Close(osFd)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap failed for store fd %d", storeFd)
	}

	t.entries[storeFd] = &Entry{Base: base, Length: length}
	return base, nil
}

// LookupMapped returns the base pointer for a previously mapped
// region without attempting to create it.
func (t *Table) LookupMapped(storeFd types.StoreFdID) ([]byte, bool) {
	e, ok := t.entries[storeFd]
	if !ok {
		return nil, false
	}
	return e.Base, true
}

// Increment bumps the active-object count for storeFd. The entry must
// already exist (it is created by LookupOrMmap).
func (t *Table) Increment(storeFd types.StoreFdID) {
	if e, ok := t.entries[storeFd]; ok {
		e.ActiveCount++
	}
}

// Decrement lowers the active-object count for storeFd, unmapping and
// removing the entry once it reaches zero. Decrementing past zero is
// a fatal invariant violation — it indicates a corrupt in-use table —
// and panics rather than returning an error (§4.2).
func (t *Table) Decrement(storeFd types.StoreFdID) error {
	e, ok := t.entries[storeFd]
	if !ok {
		return errors.Errorf("decrement on unknown store fd %d", storeFd)
	}
	e.ActiveCount--
	if e.ActiveCount < 0 {
		panic(errors.Errorf("mmap table active count went negative for store fd %d", storeFd))
	}
	if e.ActiveCount == 0 {
		if err := syscall.Munmap(e.Base); err != nil {
			return errors.Wrapf(err, "munmap failed for store fd %d", storeFd)
		}
		delete(t.entries, storeFd)
	}
	return nil
}

// Len reports the number of distinct mapped regions currently held,
// used by tests and by Disconnect's invariant check.
func (t *Table) Len() int {
	return len(t.entries)
}

// ActiveCount exposes the reference count for one entry, for tests
// and invariant checks (I2).
func (t *Table) ActiveCount(storeFd types.StoreFdID) (int, bool) {
	e, ok := t.entries[storeFd]
	if !ok {
		return 0, false
	}
	return e.ActiveCount, true
}
