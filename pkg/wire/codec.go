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

// Package wire implements the framing of §4.1: every message on the
// store/manager socket is a fixed {type, length} header followed by a
// JSON payload, plus an out-of-band path for passing a new mapping's
// file descriptor over the local socket's ancillary channel. It
// generalizes the teacher's length-prefixed-only framing
// (pkg/client/io/io.go's SendMessageBytes/RecvMessageBytes) by adding
// the type tag §4.1 requires, and its fd-ancillary support
// (pkg/common/memory/fd.go) by making it usable from both ends (the
// real client only ever receives; the in-process fake store used by
// this module's tests must send).
package wire

import (
	"encoding/binary"
	"net"

	"github.com/pkg/errors"

	"github.com/vineyard-go/plasma/pkg/memory"
	"github.com/vineyard-go/plasma/pkg/status"
)

// headerSize is 4 bytes of type tag plus 8 bytes of length, per §4.1.
const headerSize = 4 + 8

// MaxPayloadSize caps the length field to guard against a corrupt or
// hostile peer driving an unbounded allocation; §4.1 calls out "length
// exceeding a configured cap" as its own distinct failure kind.
const MaxPayloadSize = 64 << 20

// Conn wraps a Unix domain stream socket with the message framing of
// §4.1, including fd-ancillary passing. It multiplexes one
// outstanding request/reply at a time, as required by §4.1 ("not
// pipelined ... except for the asynchronous notification channel").
type Conn struct {
	net    *net.UnixConn
	fds    memory.FDTransport
	closed bool
}

func NewConn(conn *net.UnixConn, fds memory.FDTransport) *Conn {
	return &Conn{net: conn, fds: fds}
}

// RawFD returns the OS file descriptor backing this connection, for
// use with FDTransport. It duplicates nothing: callers must not close
// the returned value directly, only via Close on the Conn.
func (c *Conn) RawFD() (int, error) {
	raw, err := c.net.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	ctrlErr := raw.Control(func(f uintptr) { fd = int(f) })
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	return fd, nil
}

func (c *Conn) Close() error {
	c.closed = true
	return c.net.Close()
}

// Send writes one framed message: the {type, length} header followed
// by payload.
func (c *Conn) Send(msgType uint32, payload []byte) error {
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], msgType)
	binary.LittleEndian.PutUint64(header[4:12], uint64(len(payload)))

	if err := writeFull(c.net, header); err != nil {
		return status.NewTransportError(errors.Wrap(err, "short write on message header").Error())
	}
	if err := writeFull(c.net, payload); err != nil {
		return status.NewTransportError(errors.Wrap(err, "short write on message payload").Error())
	}
	return nil
}

// SendFD hands the local osFd to the peer over this connection's
// ancillary channel. Used only by the store side (and this module's
// fake store) when a reply grants a new mapping.
func (c *Conn) SendFD(osFd int) error {
	raw, err := c.RawFD()
	if err != nil {
		return status.NewTransportError(err.Error())
	}
	if err := c.fds.SendFileDescriptor(raw, osFd); err != nil {
		return status.NewTransportError(err.Error())
	}
	return nil
}

// RecvFD blocks until a descriptor arrives on the ancillary channel.
// A failure of the supplied FDTransport is returned here as a
// TransportError to the operation that expected the descriptor.
func (c *Conn) RecvFD() (int, error) {
	raw, err := c.RawFD()
	if err != nil {
		return 0, status.NewTransportError(err.Error())
	}
	fd, err := c.fds.RecvFileDescriptor(raw)
	if err != nil {
		return 0, status.NewTransportError(err.Error())
	}
	return fd, nil
}

// Recv reads one framed message and returns its type tag and payload.
func (c *Conn) Recv() (uint32, []byte, error) {
	header := make([]byte, headerSize)
	if err := readFull(c.net, header); err != nil {
		return 0, nil, status.NewTransportError(errors.Wrap(err, "short read on message header").Error())
	}
	msgType := binary.LittleEndian.Uint32(header[0:4])
	length := binary.LittleEndian.Uint64(header[4:12])
	if length > MaxPayloadSize {
		return 0, nil, status.NewTransportError(errors.Errorf("payload length %d exceeds cap %d", length, MaxPayloadSize).Error())
	}

	payload := make([]byte, length)
	if err := readFull(c.net, payload); err != nil {
		return 0, nil, status.NewTransportError(errors.Wrap(err, "short read on message payload").Error())
	}
	return msgType, payload, nil
}

func writeFull(conn net.Conn, data []byte) error {
	for offset := 0; offset < len(data); {
		n, err := conn.Write(data[offset:])
		if err != nil {
			return err
		}
		offset += n
	}
	return nil
}

func readFull(conn net.Conn, data []byte) error {
	for offset := 0; offset < len(data); {
		n, err := conn.Read(data[offset:])
		if err != nil {
			return err
		}
		offset += n
	}
	return nil
}
