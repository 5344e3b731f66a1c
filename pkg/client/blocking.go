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

// blocking.go implements §4.6's three coordination primitives: Get,
// Wait, and the Subscribe/GetNotification pair.
package client

import (
	"encoding/json"
	"net"
	"os"

	arrowmem "github.com/apache/arrow/go/v11/arrow/memory"

	"github.com/vineyard-go/plasma/pkg/memory"
	"github.com/vineyard-go/plasma/pkg/status"
	"github.com/vineyard-go/plasma/pkg/types"
	"github.com/vineyard-go/plasma/pkg/wire"
)

// Get implements §4.6 Get. A slot with TimedOut()==true was not ready
// by the deadline; its buffers are left unset. Every other slot must
// be matched by exactly one later Release call (§5 resource scoping).
// timeoutMs == -1 waits indefinitely.
func (c *IPCClient) Get(ids []types.ObjectID, timeoutMs int64) ([]*ObjectBuffer, error) {
	req := wire.GetRequest{Type: "get_request", ObjectIDs: ids, TimeoutMs: timeoutMs}
	var reply wire.GetReply
	if err := c.doRequest(wire.MsgGetRequest, req, wire.MsgGetReply, &reply); err != nil {
		return nil, err
	}

	out := make([]*ObjectBuffer, len(ids))
	for i, entry := range reply.Objects {
		if entry.Object.DataSize == -1 {
			out[i] = &ObjectBuffer{ObjectID: entry.ObjectID, DataSize: -1, MetadataSize: -1}
			continue
		}

		var fd int
		if entry.HasMmapFD {
			f, err := c.conn.RecvFD()
			if err != nil {
				return nil, err
			}
			fd = f
		}
		base, err := c.mapObject(entry.Object, fd, entry.HasMmapFD, false)
		if err != nil {
			return nil, err
		}

		// Reclaim from the release history if this object was sitting
		// there unflushed (§4.5 Queued --Get--> Sealed-InUse); avoid a
		// double beginUse for an object already held locally.
		wasQueued := c.history.contains(entry.ObjectID)
		c.inUse.beginUse(entry.ObjectID, entry.Object, true)
		if wasQueued {
			c.history.reclaim(entry.ObjectID)
		}

		h := &handle{valid: true}
		c.liveHandles[entry.ObjectID] = h

		obj := entry.Object
		out[i] = &ObjectBuffer{
			ObjectID:     entry.ObjectID,
			DataSize:     obj.DataSize,
			MetadataSize: obj.MetadataSize,
			DeviceNum:    obj.DeviceNum,
			data:         arrowmem.NewBufferBytes(memory.Slice(base, obj.DataOffset, uint64(obj.DataSize))),
			metadata:     arrowmem.NewBufferBytes(memory.Slice(base, obj.MetadataOffset, uint64(obj.MetadataSize))),
			h:            h,
		}
	}
	return out, nil
}

// WaitRequestSpec is one entry of a Wait call: the id and whether to
// consider only local availability or also remote-known availability.
type WaitRequestSpec struct {
	ObjectID types.ObjectID
	Anywhere bool
}

// WaitStatus tags the outcome of one Wait slot.
type WaitStatus int

const (
	WaitLocal WaitStatus = iota
	WaitRemote
	WaitNonexistent
)

type WaitResult struct {
	ObjectID types.ObjectID
	Status   WaitStatus
}

// Wait implements §4.6 Wait: returns once nRequired of the requests
// are satisfied or timeoutMs elapses, as a single combined
// WaitRequest. Requests tagged Anywhere require a manager connection;
// the absence of one fails the whole call with NoManagerError rather
// than silently downgrading to local-only.
func (c *IPCClient) Wait(requests []WaitRequestSpec, nRequired int, timeoutMs int64) ([]WaitResult, error) {
	for _, r := range requests {
		if r.Anywhere && c.manager == nil {
			return nil, noManagerErr()
		}
	}

	entries := make([]wire.WaitRequestEntry, len(requests))
	for i, r := range requests {
		query := wire.QueryLocal
		if r.Anywhere {
			query = wire.QueryAnywhere
		}
		entries[i] = wire.WaitRequestEntry{ObjectID: r.ObjectID, Query: query}
	}

	req := wire.WaitRequest{Type: "wait_request", Entries: entries, NumRequired: nRequired, TimeoutMs: timeoutMs}
	var reply wire.WaitReply
	if err := c.doRequest(wire.MsgWaitRequest, req, wire.MsgWaitReply, &reply); err != nil {
		return nil, err
	}

	out := make([]WaitResult, len(reply.Entries))
	for i, e := range reply.Entries {
		out[i] = WaitResult{ObjectID: e.ObjectID, Status: waitStatusFromWire(e.Status)}
	}
	return out, nil
}

func waitStatusFromWire(s string) WaitStatus {
	switch s {
	case wire.WaitStatusLocal:
		return WaitLocal
	case wire.WaitStatusRemote:
		return WaitRemote
	default:
		return WaitNonexistent
	}
}

// Subscribe implements §4.6 Subscribe: opens the notification stream
// and keeps it on the client, where GetNotification reads it one
// frame at a time. It is independent of the request/reply socket (§9) and must
// not be read concurrently with a pending Get/Wait on this client
// without external multiplexing.
func (c *IPCClient) Subscribe() error {
	req := wire.SubscribeRequest{Type: "subscribe_request"}
	var reply wire.SubscribeReply
	if err := c.doRequest(wire.MsgSubscribeRequest, req, wire.MsgSubscribeReply, &reply); err != nil {
		return err
	}
	fd, err := c.conn.RecvFD()
	if err != nil {
		return err
	}
	conn, err := fdToUnixConn(fd)
	if err != nil {
		return status.NewTransportError(err.Error())
	}
	c.subscriptionConn = wire.NewConn(conn, c.fds)
	return nil
}

// fdToUnixConn wraps a raw descriptor received over the ancillary
// channel (the subscription fd handed out by Subscribe) as a
// *net.UnixConn so the notification stream can reuse wire.Conn's
// framing.
func fdToUnixConn(fd int) (*net.UnixConn, error) {
	f := os.NewFile(uintptr(fd), "plasma-notification")
	conn, err := net.FileConn(f)
	if err != nil {
		return nil, err
	}
	_ = f.Close()
	return conn.(*net.UnixConn), nil
}

// Notification is one decoded seal/delete event from GetNotification.
type Notification struct {
	ObjectID     types.ObjectID
	DataSize     int64
	MetadataSize int64
}

func (n Notification) IsDeletion() bool {
	return n.DataSize == -1 && n.MetadataSize == -1
}

// GetNotification implements §4.6 GetNotification: blocks for exactly
// one frame on the subscription stream.
func (c *IPCClient) GetNotification() (Notification, error) {
	if c.subscriptionConn == nil {
		return Notification{}, status.NewStateError("not subscribed")
	}
	msgType, body, err := c.subscriptionConn.Recv()
	if err != nil {
		return Notification{}, err
	}
	if msgType != wire.MsgNotification {
		return Notification{}, status.ReplyTypeMismatch("notification", messageName(msgType))
	}
	var wireNotif wire.Notification
	if err := json.Unmarshal(body, &wireNotif); err != nil {
		return Notification{}, status.NewProtocolError(err.Error())
	}
	return Notification{
		ObjectID:     wireNotif.ObjectID,
		DataSize:     wireNotif.DataSize,
		MetadataSize: wireNotif.MetadataSize,
	}, nil
}
