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

package fakestore

import (
	"net"
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// socketpair mints a connected pair of Unix domain sockets: one side
// stays with the fake store as the write end of a subscription feed,
// the other is handed to the client as the subscription fd, mirroring
// how the real daemon would fork off a notification stream per
// subscriber.
func socketpair() ([2]int, error) {
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		return [2]int{}, errors.Wrap(err, "socketpair failed")
	}
	return [2]int{fds[0], fds[1]}, nil
}

// fdToUnixConn adopts a raw fd (already connected) as a *net.UnixConn
// without going through Dial, the same trick the teacher's test
// helpers use to wrap a socketpair half.
func fdToUnixConn(fd int) (*net.UnixConn, error) {
	f := os.NewFile(uintptr(fd), "fakestore-subscription")
	c, err := net.FileConn(f)
	if err != nil {
		return nil, err
	}
	_ = f.Close()
	unixConn, ok := c.(*net.UnixConn)
	if !ok {
		return nil, errors.New("fd is not a unix socket")
	}
	return unixConn, nil
}
