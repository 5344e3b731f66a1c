package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vineyard-go/plasma/pkg/memory"
	"github.com/vineyard-go/plasma/pkg/types"
)

func sampleObject(storeFd types.StoreFdID) types.PlasmaObject {
	return types.PlasmaObject{
		StoreFd:      storeFd,
		MapSize:      4096,
		DataOffset:   0,
		DataSize:     16,
		MetadataOffset: 16,
		MetadataSize: 4,
	}
}

func TestBeginUseIncrementsMmapOnce(t *testing.T) {
	mmap := memory.NewTable()
	table := newInUseTable(mmap)
	id := types.ObjectID{1}
	obj := sampleObject(7)

	// the mmap entry must already exist for Increment to have any
	// effect; in production this comes from LookupOrMmap during the
	// Create/Get reply handling, so the test seeds it the same way.
	f := tempFile(t, 4096)
	defer f.Close()
	_, err := mmap.LookupOrMmap(7, int(f.Fd()), 4096, true)
	require.NoError(t, err)

	table.beginUse(id, obj, false)
	count, ok := mmap.ActiveCount(7)
	require.True(t, ok)
	require.Equal(t, 1, count)

	table.beginUse(id, obj, false)
	entry, ok := table.lookup(id)
	require.True(t, ok)
	require.Equal(t, 2, entry.localRefs)

	count, ok = mmap.ActiveCount(7)
	require.True(t, ok)
	require.Equal(t, 1, count, "second beginUse on the same id must not double-pin the mapping")
}

func TestEndUseReachesZero(t *testing.T) {
	mmap := memory.NewTable()
	table := newInUseTable(mmap)
	id := types.ObjectID{2}
	obj := sampleObject(9)

	f := tempFile(t, 4096)
	defer f.Close()
	_, err := mmap.LookupOrMmap(9, int(f.Fd()), 4096, true)
	require.NoError(t, err)

	table.beginUse(id, obj, true)
	reachedZero, err := table.endUse(id)
	require.NoError(t, err)
	require.True(t, reachedZero)

	_, stillThere := table.lookup(id)
	require.True(t, stillThere, "endUse must not remove the entry itself")
}

func TestEndUseOnAbsentObject(t *testing.T) {
	table := newInUseTable(memory.NewTable())
	_, err := table.endUse(types.ObjectID{3})
	require.Error(t, err)
}

func TestRemoveUnpinsMmap(t *testing.T) {
	mmap := memory.NewTable()
	table := newInUseTable(mmap)
	id := types.ObjectID{4}
	obj := sampleObject(11)

	f := tempFile(t, 4096)
	defer f.Close()
	_, err := mmap.LookupOrMmap(11, int(f.Fd()), 4096, true)
	require.NoError(t, err)

	table.beginUse(id, obj, true)
	require.NoError(t, table.remove(id))

	_, ok := table.lookup(id)
	require.False(t, ok)
	_, ok = mmap.ActiveCount(11)
	require.False(t, ok, "unpinning the only reference must unmap the entry")
}
