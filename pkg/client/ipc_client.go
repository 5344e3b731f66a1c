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

// Package client is the public API façade of §4.7: Connect, Create,
// Seal, Abort, Release, Delete, Evict, Hash, Contains, Disconnect,
// plus the blocking coordination primitives in blocking.go and the
// manager-side operations in manager_client.go.
package client

import (
	"crypto/sha1"

	clientio "github.com/vineyard-go/plasma/pkg/client/io"
	"github.com/vineyard-go/plasma/pkg/log"
	"github.com/vineyard-go/plasma/pkg/memory"
	"github.com/vineyard-go/plasma/pkg/status"
	"github.com/vineyard-go/plasma/pkg/types"
	"github.com/vineyard-go/plasma/pkg/wire"
)

// IPCClient is the client-side handle described in §9: one owned
// aggregate holding the socket, the mmap/in-use/release tables, and
// the live buffer handles it has lent out. It is never safe to share
// across goroutines without external serialization (§5).
type IPCClient struct {
	*clientBase

	storeSocketName  string
	manager          *ManagerClient
	liveHandles      map[types.ObjectID]*handle
	liveWritables    map[types.ObjectID]*WritableBuffer
	subscriptionConn *wire.Conn
}

// Connect implements §4.7 Connect. managerSocketName may be empty, in
// which case Fetch/Transfer/Info/Wait(ANYWHERE) fail with a
// NoManagerError rather than attempting a dial.
func Connect(storeSocketName, managerSocketName string, config ClientConfig) (*IPCClient, error) {
	conn, err := clientio.DialIPCSocketRetry(storeSocketName, config.NumRetries)
	if err != nil {
		return nil, status.NewConnectionError(err.Error())
	}

	wireConn := wire.NewConn(conn, memory.UnixFDTransport{})
	base := newClientBase(wireConn, memory.UnixFDTransport{}, config)
	base.connected = true

	c := &IPCClient{
		clientBase:      base,
		storeSocketName: storeSocketName,
		liveHandles:     make(map[types.ObjectID]*handle),
		liveWritables:   make(map[types.ObjectID]*WritableBuffer),
	}

	req := wire.ConnectRequest{Type: "connect_request", Version: clientVersion}
	var reply wire.ConnectReply
	if err := c.doRequest(wire.MsgConnectRequest, req, wire.MsgConnectReply, &reply); err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.storeCapacity = reply.StoreCapacity
	c.instanceID = reply.InstanceID

	if managerSocketName != "" {
		manager, err := dialManager(managerSocketName, config)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		c.manager = manager
	}

	log.Infof("connected to plasma store at %s", storeSocketName)
	return c, nil
}

// Create implements §4.7 Create.
func (c *IPCClient) Create(id types.ObjectID, dataSize, metadataSize int64, deviceNum int) (*WritableBuffer, error) {
	req := wire.CreateRequest{
		Type:         "create_request",
		ObjectID:     id,
		DataSize:     dataSize,
		MetadataSize: metadataSize,
		DeviceNum:    deviceNum,
	}
	var reply wire.CreateReply
	if err := c.doRequest(wire.MsgCreateRequest, req, wire.MsgCreateReply, &reply); err != nil {
		return nil, err
	}
	if err := replyError(reply.Code, "create "+id.String()); err != nil {
		return nil, err
	}

	var fd int
	if reply.HasMmapFD {
		f, err := c.conn.RecvFD()
		if err != nil {
			return nil, err
		}
		fd = f
	}
	base, err := c.mapObject(reply.Object, fd, reply.HasMmapFD, true)
	if err != nil {
		return nil, err
	}

	c.inUse.beginUse(id, reply.Object, false)
	h := &handle{valid: true}
	c.liveHandles[id] = h

	obj := reply.Object
	w := &WritableBuffer{
		ObjectID:     id,
		DataSize:     obj.DataSize,
		MetadataSize: obj.MetadataSize,
		DeviceNum:    obj.DeviceNum,
		data:         memory.Slice(base, obj.DataOffset, uint64(obj.DataSize)),
		metadata:     memory.Slice(base, obj.MetadataOffset, uint64(obj.MetadataSize)),
		h:            h,
	}
	c.liveWritables[id] = w
	return w, nil
}

// Seal implements §4.7 Seal.
func (c *IPCClient) Seal(id types.ObjectID) error {
	if err := c.lc.requireState(id, stateCreating, "Seal"); err != nil {
		return err
	}
	entry, _ := c.inUse.lookup(id)
	base, ok := c.mmap.LookupMapped(entry.object.StoreFd)
	if !ok {
		return status.NewTransportError("no mapping for object pending seal")
	}
	data := memory.Slice(base, entry.object.DataOffset, uint64(entry.object.DataSize))
	digest := sha1.Sum(data)

	req := wire.SealRequest{Type: "seal_request", ObjectID: id, Digest: digest}
	var reply wire.SealReply
	if err := c.doRequest(wire.MsgSealRequest, req, wire.MsgSealReply, &reply); err != nil {
		return err
	}
	if err := replyError(reply.Code, "seal "+id.String()); err != nil {
		return err
	}
	c.inUse.markSealed(id)
	if w, ok := c.liveWritables[id]; ok {
		w.sealed = true
		delete(c.liveWritables, id)
	}
	return nil
}

// Abort implements §4.7 Abort: legal only in Creating state with
// exactly one local reference (the creator).
func (c *IPCClient) Abort(id types.ObjectID) error {
	if err := c.lc.requireState(id, stateCreating, "Abort"); err != nil {
		return err
	}
	entry, _ := c.inUse.lookup(id)
	if entry.localRefs != 1 {
		return errIllegalTransition(id, stateCreating, "Abort (refs>1)")
	}

	req := wire.AbortRequest{Type: "abort_request", ObjectID: id}
	var reply wire.AbortReply
	if err := c.doRequest(wire.MsgAbortRequest, req, wire.MsgAbortReply, &reply); err != nil {
		return err
	}
	if err := replyError(reply.Code, "abort "+id.String()); err != nil {
		return err
	}
	if h, ok := c.liveHandles[id]; ok {
		h.valid = false
		delete(c.liveHandles, id)
	}
	delete(c.liveWritables, id)
	return c.inUse.remove(id)
}

// Release implements §4.7 Release, deferring the server-visible
// release through the release history (§4.4).
func (c *IPCClient) Release(id types.ObjectID) error {
	entry, ok := c.inUse.lookup(id)
	if !ok || entry.localRefs < 1 {
		return errObjectNotInUse(id)
	}
	reachedZero, err := c.inUse.endUse(id)
	if err != nil {
		return err
	}
	if h, ok := c.liveHandles[id]; ok {
		h.valid = false
		delete(c.liveHandles, id)
	}
	if !reachedZero {
		return nil
	}
	return c.history.enqueue(id)
}

// Delete implements §4.7 Delete, kept as the teacher's original
// silent best-effort behaviour: the store quietly ignores ids that
// are absent, in use, or unsealed, rather than reporting a StateError
// (open question resolved in DESIGN.md).
func (c *IPCClient) Delete(id types.ObjectID) error {
	req := wire.DeleteRequest{Type: "delete_request", ObjectID: id}
	var reply wire.DeleteReply
	return c.doRequest(wire.MsgDeleteRequest, req, wire.MsgDeleteReply, &reply)
}

// Evict implements §4.7 Evict.
func (c *IPCClient) Evict(numBytes int64) (int64, error) {
	req := wire.EvictRequest{Type: "evict_request", NumBytes: numBytes}
	var reply wire.EvictReply
	if err := c.doRequest(wire.MsgEvictRequest, req, wire.MsgEvictReply, &reply); err != nil {
		return 0, err
	}
	return reply.BytesReturned, nil
}

// Contains reports whether the store currently has id, per the
// Absent/Sealed-InUse legal-op table in §4.5.
func (c *IPCClient) Contains(id types.ObjectID) (bool, error) {
	req := wire.ContainsRequest{Type: "contains_request", ObjectID: id}
	var reply wire.ContainsReply
	if err := c.doRequest(wire.MsgContainsRequest, req, wire.MsgContainsReply, &reply); err != nil {
		return false, err
	}
	if err := replyError(reply.Code, "contains "+id.String()); err != nil {
		return false, err
	}
	return reply.Exists, nil
}

// Hash implements §4.7 Hash: prefer the store's cached digest for a
// sealed object, falling back to a local recompute over the mapping.
func (c *IPCClient) Hash(id types.ObjectID) ([types.ObjectIDLength]byte, error) {
	var digest [types.ObjectIDLength]byte

	req := wire.HashRequest{Type: "hash_request", ObjectID: id}
	var reply wire.HashReply
	if err := c.doRequest(wire.MsgHashRequest, req, wire.MsgHashReply, &reply); err != nil {
		return digest, err
	}
	if err := replyError(reply.Code, "hash "+id.String()); err != nil {
		return digest, err
	}
	if reply.Cached {
		return reply.Digest, nil
	}

	entry, ok := c.inUse.lookup(id)
	if !ok {
		return digest, status.NewNotFoundError("object not locally mapped to hash")
	}
	base, ok := c.mmap.LookupMapped(entry.object.StoreFd)
	if !ok {
		return digest, status.NewTransportError("no mapping for object being hashed")
	}
	data := memory.Slice(base, entry.object.DataOffset, uint64(entry.object.DataSize))
	return sha1.Sum(data), nil
}

// Disconnect implements §4.7 Disconnect: flush the release history
// fully, then close sockets. The in-use and mmap tables must be empty
// afterwards or this is an invariant violation (a caller still holding
// an outstanding buffer when it calls Disconnect).
func (c *IPCClient) Disconnect() error {
	if !c.connected {
		return nil
	}
	if err := c.history.flushAll(); err != nil {
		return err
	}
	if c.inUse.len() != 0 {
		panic(status.NewStateError("disconnect with outstanding in-use entries"))
	}
	if c.mmap.Len() != 0 {
		panic(status.NewStateError("disconnect with outstanding mmap entries"))
	}
	c.connected = false
	if c.subscriptionConn != nil {
		_ = c.subscriptionConn.Close()
	}
	if c.manager != nil {
		_ = c.manager.disconnect()
	}
	return c.conn.Close()
}

func dialManager(managerSocketName string, config ClientConfig) (*ManagerClient, error) {
	conn, err := clientio.DialIPCSocketRetry(managerSocketName, config.NumRetries)
	if err != nil {
		return nil, status.NewConnectionError(err.Error())
	}
	wireConn := wire.NewConn(conn, memory.UnixFDTransport{})
	base := newClientBase(wireConn, memory.UnixFDTransport{}, config)
	base.connected = true
	return &ManagerClient{clientBase: base}, nil
}
