package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vineyard-go/plasma/pkg/memory"
	"github.com/vineyard-go/plasma/pkg/types"
)

func TestLifecycleStateTransitions(t *testing.T) {
	mmap := memory.NewTable()
	inUse := newInUseTable(mmap)
	history := newReleaseHistory(ClientConfig{ReleaseDelay: 10, CapacityRatioBytes: 1 << 30}, inUse, &fakeNotifier{})
	lc := newLifecycle(inUse, history)

	id := types.ObjectID{1}
	require.Equal(t, stateAbsent, lc.state(id))

	f := tempFile(t, 4096)
	defer f.Close()
	_, err := mmap.LookupOrMmap(1, int(f.Fd()), 4096, true)
	require.NoError(t, err)

	inUse.beginUse(id, sampleObject(1), false)
	require.Equal(t, stateCreating, lc.state(id))

	inUse.markSealed(id)
	require.Equal(t, stateSealedInUse, lc.state(id))

	reachedZero, err := inUse.endUse(id)
	require.NoError(t, err)
	require.True(t, reachedZero)
	require.NoError(t, history.enqueue(id))
	require.Equal(t, stateQueued, lc.state(id))
}

func TestRequireStateRejectsIllegalTransition(t *testing.T) {
	mmap := memory.NewTable()
	inUse := newInUseTable(mmap)
	history := newReleaseHistory(ClientConfig{ReleaseDelay: 10, CapacityRatioBytes: 1 << 30}, inUse, &fakeNotifier{})
	lc := newLifecycle(inUse, history)

	id := types.ObjectID{2}
	err := lc.requireState(id, stateCreating, "Seal")
	require.Error(t, err)
}
