package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vineyard-go/plasma/internal/fakestore"
	"github.com/vineyard-go/plasma/pkg/status"
	"github.com/vineyard-go/plasma/pkg/types"
)

func startFakeStore(t *testing.T, withManager bool) *fakestore.Store {
	t.Helper()
	store, err := fakestore.New(t.TempDir(), withManager)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testConfig() ClientConfig {
	config := DefaultClientConfig()
	config.NumRetries = 0
	return config
}

func objectID(b byte) types.ObjectID {
	var id types.ObjectID
	id[0] = b
	return id
}

// S1: Connect; Create; write into the buffer; Seal; Release; Get
// returns identical bytes; Release; Disconnect.
func TestScenarioCreateSealGetRoundTrip(t *testing.T) {
	store := startFakeStore(t, false)
	c, err := Connect(store.SocketPath, "", testConfig())
	require.NoError(t, err)

	id := objectID(0x01)
	w, err := c.Create(id, 16, 2, 0)
	require.NoError(t, err)

	data, err := w.Data()
	require.NoError(t, err)
	for i := range data {
		data[i] = byte(i)
	}
	// Release below flushes at once (ReleaseDelay 0) and unmaps the
	// region data aliases, so keep a copy to compare against.
	want := append([]byte(nil), data...)
	meta, err := w.Metadata()
	require.NoError(t, err)
	meta[0], meta[1] = 0xAA, 0xBB

	require.NoError(t, c.Seal(id))
	require.NoError(t, c.Release(id))

	bufs, err := c.Get([]types.ObjectID{id}, -1)
	require.NoError(t, err)
	require.Len(t, bufs, 1)
	require.False(t, bufs[0].TimedOut())
	require.EqualValues(t, 16, bufs[0].DataSize)
	require.EqualValues(t, 2, bufs[0].MetadataSize)

	got, err := bufs[0].Data()
	require.NoError(t, err)
	require.Equal(t, want, got.Bytes())

	gotMeta, err := bufs[0].Metadata()
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0xBB}, gotMeta.Bytes())

	require.NoError(t, c.Release(id))
	require.NoError(t, c.Disconnect())
}

// S2: Create; Abort; Contains -> false; Get with a timeout reports
// data_size=-1 for the now-absent id.
func TestScenarioAbortThenAbsent(t *testing.T) {
	store := startFakeStore(t, false)
	c, err := Connect(store.SocketPath, "", testConfig())
	require.NoError(t, err)
	defer c.Disconnect()

	id := objectID(0x02)
	_, err = c.Create(id, 8, 0, 0)
	require.NoError(t, err)
	require.NoError(t, c.Abort(id))

	exists, err := c.Contains(id)
	require.NoError(t, err)
	require.False(t, exists)

	bufs, err := c.Get([]types.ObjectID{id}, 100)
	require.NoError(t, err)
	require.True(t, bufs[0].TimedOut())
	require.EqualValues(t, -1, bufs[0].DataSize)
}

// S3: with release_delay=4, releasing four unrelated objects after X
// flushes X to the store, but Contains(X) and a fresh Get(X) both
// still succeed (a re-map, not data loss).
func TestScenarioDelayedReleaseFlush(t *testing.T) {
	store := startFakeStore(t, false)
	config := testConfig()
	config.ReleaseDelay = 4
	c, err := Connect(store.SocketPath, "", config)
	require.NoError(t, err)
	defer c.Disconnect()

	x := objectID(0x10)
	createSealRelease(t, c, x, 4)

	for i := byte(1); i <= 4; i++ {
		createSealRelease(t, c, objectID(0x20+i), 4)
	}

	exists, err := c.Contains(x)
	require.NoError(t, err)
	require.True(t, exists, "flushing the release history must not delete the object at the store")

	bufs, err := c.Get([]types.ObjectID{x}, -1)
	require.NoError(t, err)
	require.False(t, bufs[0].TimedOut())
	require.NoError(t, c.Release(x))
}

// S6: Release without a prior Get/Create fails with a StateError, and
// the client remains usable afterwards.
func TestScenarioReleaseWithoutGetIsStateError(t *testing.T) {
	store := startFakeStore(t, false)
	c, err := Connect(store.SocketPath, "", testConfig())
	require.NoError(t, err)
	defer c.Disconnect()

	id := objectID(0x30)
	err = c.Release(id)
	require.Error(t, err)
	var stateErr *status.StateError
	require.ErrorAs(t, err, &stateErr)

	other := objectID(0x31)
	_, err = c.Create(other, 4, 0, 0)
	require.NoError(t, err, "client must remain usable after a rejected Release")
	require.NoError(t, c.Abort(other))
}

func TestHashFallsBackToLocalComputeWhenUncached(t *testing.T) {
	store := startFakeStore(t, false)
	c, err := Connect(store.SocketPath, "", testConfig())
	require.NoError(t, err)
	defer c.Disconnect()

	id := objectID(0x40)
	w, err := c.Create(id, 4, 0, 0)
	require.NoError(t, err)
	data, err := w.Data()
	require.NoError(t, err)
	copy(data, []byte{1, 2, 3, 4})

	digest, err := c.Hash(id)
	require.NoError(t, err)
	require.NotZero(t, digest)
	require.NoError(t, c.Abort(id))
}

func TestEvictReturnsBytesFreedForUnpinnedObjects(t *testing.T) {
	store := startFakeStore(t, false)
	c, err := Connect(store.SocketPath, "", testConfig())
	require.NoError(t, err)
	defer c.Disconnect()

	id := objectID(0x50)
	createSealRelease(t, c, id, 32)

	freed, err := c.Evict(16)
	require.NoError(t, err)
	require.GreaterOrEqual(t, freed, int64(32))
}

func createSealRelease(t *testing.T, c *IPCClient, id types.ObjectID, dataSize int64) {
	t.Helper()
	_, err := c.Create(id, dataSize, 0, 0)
	require.NoError(t, err)
	require.NoError(t, c.Seal(id))
	require.NoError(t, c.Release(id))
}

func TestCreateDuplicateIDFailsWithObjectExists(t *testing.T) {
	store := startFakeStore(t, false)
	c, err := Connect(store.SocketPath, "", testConfig())
	require.NoError(t, err)
	defer c.Disconnect()

	id := objectID(0x60)
	_, err = c.Create(id, 4, 0, 0)
	require.NoError(t, err)

	_, err = c.Create(id, 4, 0, 0)
	require.Error(t, err)
	var existsErr *status.ObjectExistsError
	require.ErrorAs(t, err, &existsErr)
	require.NoError(t, c.Abort(id))
}

func TestGetTimesOutForAbsentObjectWithinBoundedWallTime(t *testing.T) {
	store := startFakeStore(t, false)
	c, err := Connect(store.SocketPath, "", testConfig())
	require.NoError(t, err)
	defer c.Disconnect()

	id := objectID(0x70)
	start := time.Now()
	bufs, err := c.Get([]types.ObjectID{id}, 80)
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.True(t, bufs[0].TimedOut())
	require.GreaterOrEqual(t, elapsed, 70*time.Millisecond)
}

func TestPutNameGetNameRoundTripAndDrop(t *testing.T) {
	store := startFakeStore(t, false)
	c, err := Connect(store.SocketPath, "", testConfig())
	require.NoError(t, err)
	defer c.Disconnect()

	id := objectID(0x71)
	createSealRelease(t, c, id, 4)

	require.NoError(t, c.PutName(id, "widget"))
	got, err := c.GetName("widget", false)
	require.NoError(t, err)
	require.Equal(t, id, got)

	require.NoError(t, c.DropName("widget"))
	_, err = c.GetName("widget", false)
	require.Error(t, err)
}

func TestGetNameWaitBlocksUntilNamed(t *testing.T) {
	store := startFakeStore(t, false)
	waiter, err := Connect(store.SocketPath, "", testConfig())
	require.NoError(t, err)
	defer waiter.Disconnect()
	namer, err := Connect(store.SocketPath, "", testConfig())
	require.NoError(t, err)
	defer namer.Disconnect()

	id := objectID(0x72)
	createSealRelease(t, namer, id, 4)

	done := make(chan struct{})
	var got types.ObjectID
	var getErr error
	go func() {
		got, getErr = waiter.GetName("late", true)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, namer.PutName(id, "late"))

	<-done
	require.NoError(t, getErr)
	require.Equal(t, id, got)
}

func TestPersistAcksForSealedObject(t *testing.T) {
	store := startFakeStore(t, false)
	c, err := Connect(store.SocketPath, "", testConfig())
	require.NoError(t, err)
	defer c.Disconnect()

	id := objectID(0x73)
	createSealRelease(t, c, id, 4)
	require.NoError(t, c.Persist(id))
}

func TestGetDebugStringReportsObjectCounts(t *testing.T) {
	store := startFakeStore(t, false)
	c, err := Connect(store.SocketPath, "", testConfig())
	require.NoError(t, err)
	defer c.Disconnect()

	id := objectID(0x74)
	createSealRelease(t, c, id, 4)

	text, err := c.GetDebugString()
	require.NoError(t, err)
	require.Contains(t, text, "sealed=1")
}
