package wire

import (
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vineyard-go/plasma/pkg/memory"
)

func pipe(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b, err := unixSocketPair()
	require.NoError(t, err)
	return NewConn(a, memory.UnixFDTransport{}), NewConn(b, memory.UnixFDTransport{})
}

func unixSocketPair() (*net.UnixConn, *net.UnixConn, error) {
	fds, err := socketpair()
	if err != nil {
		return nil, nil, err
	}
	a, err := fdToUnixConn(fds[0])
	if err != nil {
		return nil, nil, err
	}
	b, err := fdToUnixConn(fds[1])
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func TestSendRecvRoundTrip(t *testing.T) {
	client, server := pipe(t)
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		msgType, payload, err := server.Recv()
		require.NoError(t, err)
		require.Equal(t, uint32(42), msgType)
		require.Equal(t, []byte(`{"hello":"world"}`), payload)
	}()

	require.NoError(t, client.Send(42, []byte(`{"hello":"world"}`)))
	<-done
}

func TestRecvRejectsOversizedLength(t *testing.T) {
	client, server := pipe(t)
	defer client.Close()
	defer server.Close()

	header := make([]byte, headerSize)
	header[0] = 1
	// length field (bytes 4..12) set far beyond MaxPayloadSize.
	for i := 4; i < 12; i++ {
		header[i] = 0xff
	}
	done := make(chan error)
	go func() {
		_, _, err := server.Recv()
		done <- err
	}()
	_, err := client.net.Write(header)
	require.NoError(t, err)
	err = <-done
	require.Error(t, err)
}

func TestFDRoundTrip(t *testing.T) {
	client, server := pipe(t)
	defer client.Close()
	defer server.Close()

	f, err := os.CreateTemp(t.TempDir(), "wire-fd-*")
	require.NoError(t, err)
	defer f.Close()

	done := make(chan error, 1)
	go func() {
		done <- server.SendFD(int(f.Fd()))
	}()

	fd, err := client.RecvFD()
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.NoError(t, unixSyscallClose(fd))
}
