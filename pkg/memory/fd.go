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
	"context"
	"syscall"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/vineyard-go/plasma/pkg/log"
)

// FDTransport abstracts ancillary-data (SCM_RIGHTS) file-descriptor
// passing on a local stream socket, per the §9 design note that this
// must sit behind a capability interface so the rest of the client
// stays portable. UnixFDTransport is the only implementation, and
// Connect always installs it. Connect itself never passes a
// descriptor, so a transport whose methods fail does not fail
// Connect; the failure surfaces as a TransportError from the first
// operation that receives a descriptor (Create, Get or Subscribe).
type FDTransport interface {
	SendFileDescriptor(conn int, fd int) error
	RecvFileDescriptor(conn int) (int, error)
}

// UnixFDTransport passes descriptors using SCM_RIGHTS ancillary
// messages, exactly as the teacher's pkg/common/memory/fd.go does for
// the receive path; the send path is added here because the
// in-process fake store used by this module's tests must play the
// store's role and hand out descriptors the same way the real daemon
// does.
type UnixFDTransport struct{}

func (UnixFDTransport) SendFileDescriptor(conn int, fd int) error {
	rights := syscall.UnixRights(fd)
	if err := syscall.Sendmsg(conn, nil, rights, nil, 0); err != nil {
		return errors.Wrap(err, "error in send_fd")
	}
	return nil
}

func (UnixFDTransport) RecvFileDescriptor(conn int) (int, error) {
	logger := log.FromContext(context.TODO())

	var oobn int
	var err error
	oob := make([]byte, syscall.CmsgSpace(int(unsafe.Sizeof(int32(0)))))
	for {
		_, oobn, _, _, err = syscall.Recvmsg(conn, nil, oob, 0)
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK || err == syscall.EINTR {
				continue
			}
			logger.Error(err, "error in recv_fd")
			return 0, errors.Wrap(err, "error in recv_fd")
		}
		break
	}
	messages, err := syscall.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return 0, err
	}
	for _, scm := range messages {
		fds, err := syscall.ParseUnixRights(&scm)
		if err != nil {
			continue
		}
		if len(fds) > 0 {
			return fds[0], nil
		}
	}
	return 0, errors.Errorf("failed to recv fd from remote server")
}
