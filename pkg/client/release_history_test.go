package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vineyard-go/plasma/pkg/memory"
	"github.com/vineyard-go/plasma/pkg/types"
)

type fakeNotifier struct {
	released []types.ObjectID
	failFor  map[types.ObjectID]bool
}

func (f *fakeNotifier) notifyRelease(id types.ObjectID) error {
	f.released = append(f.released, id)
	if f.failFor != nil && f.failFor[id] {
		return errObjectNotInUse(id)
	}
	return nil
}

func seedObject(t *testing.T, mmap *memory.Table, inUse *inUseTable, id types.ObjectID, storeFd types.StoreFdID, dataSize int64) {
	t.Helper()
	f := tempFile(t, 4096)
	t.Cleanup(func() { f.Close() })
	_, err := mmap.LookupOrMmap(storeFd, int(f.Fd()), 4096, true)
	require.NoError(t, err)
	obj := sampleObject(storeFd)
	obj.DataSize = dataSize
	inUse.beginUse(id, obj, true)
	_, err = inUse.endUse(id)
	require.NoError(t, err)
}

func TestReleaseHistoryFlushesPastReleaseDelay(t *testing.T) {
	mmap := memory.NewTable()
	inUse := newInUseTable(mmap)
	notifier := &fakeNotifier{}
	config := ClientConfig{ReleaseDelay: 2, CapacityRatioBytes: 1 << 30}
	history := newReleaseHistory(config, inUse, notifier)

	ids := []types.ObjectID{{1}, {2}, {3}, {4}}
	for i, id := range ids {
		seedObject(t, mmap, inUse, id, types.StoreFdID(i+1), 16)
		require.NoError(t, history.enqueue(id))
	}

	// with release_delay=2, the history should never hold more than 2
	// entries: enqueuing a 3rd and 4th each flush the oldest.
	require.LessOrEqual(t, history.len(), 2)
	require.Contains(t, notifier.released, ids[0])
	require.Contains(t, notifier.released, ids[1])

	_, stillInUse := inUse.lookup(ids[0])
	require.False(t, stillInUse, "flushed entries must be removed from the in-use table")
}

func TestReleaseHistoryReclaim(t *testing.T) {
	mmap := memory.NewTable()
	inUse := newInUseTable(mmap)
	notifier := &fakeNotifier{}
	config := ClientConfig{ReleaseDelay: 10, CapacityRatioBytes: 1 << 30}
	history := newReleaseHistory(config, inUse, notifier)

	id := types.ObjectID{9}
	seedObject(t, mmap, inUse, id, 5, 16)
	require.NoError(t, history.enqueue(id))
	require.True(t, history.contains(id))

	history.reclaim(id)
	require.False(t, history.contains(id))
	require.Empty(t, notifier.released, "reclaim must not trigger a server-visible release")
}

func TestReleaseHistoryFlushOnCapacity(t *testing.T) {
	mmap := memory.NewTable()
	inUse := newInUseTable(mmap)
	notifier := &fakeNotifier{}
	config := ClientConfig{ReleaseDelay: 100, CapacityRatioBytes: 20}
	history := newReleaseHistory(config, inUse, notifier)

	a, b := types.ObjectID{1}, types.ObjectID{2}
	seedObject(t, mmap, inUse, a, 1, 16)
	seedObject(t, mmap, inUse, b, 2, 16)

	require.NoError(t, history.enqueue(a))
	require.NoError(t, history.enqueue(b))

	// 40 bytes queued (16 data + 4 metadata each) against a 20-byte
	// capacity threshold must flush
	// the oldest entry (P6) even though release_delay wasn't hit.
	require.Contains(t, notifier.released, a)
}

func TestReleaseHistoryFlushAll(t *testing.T) {
	mmap := memory.NewTable()
	inUse := newInUseTable(mmap)
	notifier := &fakeNotifier{}
	config := ClientConfig{ReleaseDelay: 100, CapacityRatioBytes: 1 << 30}
	history := newReleaseHistory(config, inUse, notifier)

	id := types.ObjectID{6}
	seedObject(t, mmap, inUse, id, 3, 16)
	require.NoError(t, history.enqueue(id))
	require.Equal(t, 1, history.len())

	require.NoError(t, history.flushAll())
	require.Equal(t, 0, history.len())
	require.Equal(t, 0, inUse.len())
	require.Equal(t, 0, mmap.Len())
}
