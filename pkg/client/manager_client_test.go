package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vineyard-go/plasma/pkg/status"
)

func TestFetchTransferInfoAgainstManager(t *testing.T) {
	store := startFakeStore(t, true)
	c, err := Connect(store.SocketPath, store.ManagerPath, testConfig())
	require.NoError(t, err)
	defer c.Disconnect()

	id := objectID(0xA0)
	createSealRelease(t, c, id, 12)

	require.NoError(t, c.Fetch(id))
	require.NoError(t, c.Transfer(id, 7))

	object, instanceID, err := c.Info(id)
	require.NoError(t, err)
	require.EqualValues(t, 12, object.DataSize)
	require.EqualValues(t, 0, instanceID)
}

func TestInfoUnknownObjectIsNotFoundError(t *testing.T) {
	store := startFakeStore(t, true)
	c, err := Connect(store.SocketPath, store.ManagerPath, testConfig())
	require.NoError(t, err)
	defer c.Disconnect()

	_, _, err = c.Info(objectID(0xA1))
	require.Error(t, err)
	var notFound *status.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestManagerOperationsWithoutManagerFailCleanly(t *testing.T) {
	store := startFakeStore(t, false)
	c, err := Connect(store.SocketPath, "", testConfig())
	require.NoError(t, err)
	defer c.Disconnect()

	require.Error(t, c.Fetch(objectID(0xA2)))
	require.Error(t, c.Transfer(objectID(0xA2), 1))
	_, _, err = c.Info(objectID(0xA2))
	require.Error(t, err)
}
