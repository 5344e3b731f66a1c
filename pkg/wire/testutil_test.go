package wire

import (
	"net"
	"os"
	"syscall"
)

// socketpair creates a connected pair of Unix domain stream sockets
// entirely in-process, so codec tests can exercise Send/Recv and
// fd-ancillary passing without a listener or a filesystem path.
func socketpair() ([2]int, error) {
	return syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
}

func fdToUnixConn(fd int) (*net.UnixConn, error) {
	f := os.NewFile(uintptr(fd), "socketpair")
	conn, err := net.FileConn(f)
	if err != nil {
		return nil, err
	}
	_ = f.Close()
	return conn.(*net.UnixConn), nil
}

func unixSyscallClose(fd int) error {
	return syscall.Close(fd)
}
