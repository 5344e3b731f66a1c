package client

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func tempFile(t *testing.T, size int) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "plasma-client-*")
	require.NoError(t, err)
	require.NoError(t, f.Truncate(int64(size)))
	return f
}
