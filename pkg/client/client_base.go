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

package client

import (
	"encoding/json"

	"github.com/vineyard-go/plasma/pkg/memory"
	"github.com/vineyard-go/plasma/pkg/status"
	"github.com/vineyard-go/plasma/pkg/types"
	"github.com/vineyard-go/plasma/pkg/wire"
)

// clientBase owns the store connection and the three tables of §2, and
// implements the single doRequest round trip every façade operation
// in ipc_client.go is built from. Per §5 the client is single-threaded
// with respect to any one instance: doRequest takes no lock; its busy
// flag only reports an interleaved call, it does not make one safe.
type clientBase struct {
	conn   *wire.Conn
	fds    memory.FDTransport
	config ClientConfig

	connected     bool
	storeCapacity int64
	instanceID    types.InstanceID

	// busy is the §5 re-entrancy guard: set for the duration of any
	// call through doRequest so a caller that invokes this client
	// concurrently from two goroutines gets an immediate StateError
	// instead of interleaved frames on the shared socket. It is
	// documentation-grade protection, not a mutex — it does not make
	// concurrent use safe, only diagnosable, matching the teacher's own
	// lack of internal locking.
	busy bool

	mmap    *memory.Table
	inUse   *inUseTable
	history *releaseHistory
	lc      *lifecycle
}

func newClientBase(conn *wire.Conn, fds memory.FDTransport, config ClientConfig) *clientBase {
	c := &clientBase{conn: conn, fds: fds, config: config, mmap: memory.NewTable()}
	c.inUse = newInUseTable(c.mmap)
	c.history = newReleaseHistory(config, c.inUse, c)
	c.lc = newLifecycle(c.inUse, c.history)
	return c
}

// doRequest sends one framed request and decodes the matching reply,
// failing with a ProtocolError on a type mismatch (§4.1, §7). Every
// request/reply round trip goes through it; descriptors that follow a
// reply (RecvFD) and the notification stream are read outside it.
func (c *clientBase) doRequest(reqType uint32, req any, replyType uint32, reply any) error {
	if !c.connected {
		return status.NotConnected()
	}
	if c.busy {
		return status.NewStateError("concurrent call on one client instance")
	}
	c.busy = true
	defer func() { c.busy = false }()

	payload, err := json.Marshal(req)
	if err != nil {
		return status.NewProtocolError(err.Error())
	}
	if err := c.conn.Send(reqType, payload); err != nil {
		c.connected = false
		return err
	}
	gotType, body, err := c.conn.Recv()
	if err != nil {
		c.connected = false
		return err
	}
	if gotType != replyType {
		c.connected = false
		return status.ReplyTypeMismatch(messageName(replyType), messageName(gotType))
	}
	if err := json.Unmarshal(body, reply); err != nil {
		return status.NewProtocolError(err.Error())
	}
	return nil
}

// replyError turns a non-zero status code embedded in a reply into the
// matching typed error of §7, the same way the teacher's status table
// dispatches server-reported codes into client-side error types. A
// zero code (the Go zero value, matching status.KOK) is not an error,
// so callers can run this unconditionally over every reply that
// carries a Code field.
func replyError(code int, message string) error {
	switch status.Code(code) {
	case status.KOK:
		return nil
	case status.KObjectExists:
		return status.NewObjectExistsError(message)
	case status.KObjectNotExists:
		return status.NewNotFoundError(message)
	case status.KNotEnoughMemory:
		return status.NewCapacityError(message)
	default:
		return status.NewProtocolError(message)
	}
}

// notifyRelease implements releaseNotifier for releaseHistory's
// PerformRelease (§4.4).
func (c *clientBase) notifyRelease(id types.ObjectID) error {
	req := wire.ReleaseRequest{Type: "release_request", ObjectID: id}
	var reply wire.ReleaseReply
	if err := c.doRequest(wire.MsgReleaseRequest, req, wire.MsgReleaseReply, &reply); err != nil {
		return err
	}
	return replyError(reply.Code, "release "+id.String())
}

// PutName binds name to id in the store's local name table. It does
// not affect the lifecycle state machine; per spec.md's Non-goals this
// is an opt-in local alias, not a global namespace guarantee.
func (c *clientBase) PutName(id types.ObjectID, name string) error {
	req := wire.PutNameRequest{Type: "put_name_request", ObjectID: id, Name: name}
	var reply wire.PutNameReply
	if err := c.doRequest(wire.MsgPutNameRequest, req, wire.MsgPutNameReply, &reply); err != nil {
		return err
	}
	return replyError(reply.Code, "put_name "+name)
}

// GetName resolves name back to an object id. wait asks the store to
// block until the name is bound rather than failing immediately.
func (c *clientBase) GetName(name string, wait bool) (types.ObjectID, error) {
	req := wire.GetNameRequest{Type: "get_name_request", Name: name, Wait: wait}
	var reply wire.GetNameReply
	if err := c.doRequest(wire.MsgGetNameRequest, req, wire.MsgGetNameReply, &reply); err != nil {
		return types.ObjectID{}, err
	}
	if err := replyError(reply.Code, "get_name "+name); err != nil {
		return types.ObjectID{}, err
	}
	return reply.ObjectID, nil
}

// DropName removes name's binding without affecting the object itself.
func (c *clientBase) DropName(name string) error {
	req := wire.DropNameRequest{Type: "drop_name_request", Name: name}
	var reply wire.DropNameReply
	if err := c.doRequest(wire.MsgDropNameRequest, req, wire.MsgDropNameReply, &reply); err != nil {
		return err
	}
	return replyError(reply.Code, "drop_name "+name)
}

// Persist marks id as durable against store restarts. Like PutName it
// is an ambient convenience outside the lifecycle state machine.
func (c *clientBase) Persist(id types.ObjectID) error {
	req := wire.PersistRequest{Type: "persist_request", ObjectID: id}
	var reply wire.PersistReply
	if err := c.doRequest(wire.MsgPersistRequest, req, wire.MsgPersistReply, &reply); err != nil {
		return err
	}
	return replyError(reply.Code, "persist "+id.String())
}

// GetDebugString implements §6's trivial one-shot diagnostic dump.
func (c *clientBase) GetDebugString() (string, error) {
	req := wire.DebugStringRequest{Type: "debug_string_request"}
	var reply wire.DebugStringReply
	if err := c.doRequest(wire.MsgDebugStringRequest, req, wire.MsgDebugStringReply, &reply); err != nil {
		return "", err
	}
	return reply.Text, nil
}

// mapObject resolves a PlasmaObject's data/metadata regions in this
// process's address space, mmapping a freshly received descriptor fd
// when the reply said one was coming. DeviceNum selects which
// DeviceBuffer backend performs the mapping (§6); only host memory
// has one registered.
func (c *clientBase) mapObject(object types.PlasmaObject, fd int, hasFD bool, writable bool) ([]byte, error) {
	if !hasFD {
		base, ok := c.mmap.LookupMapped(object.StoreFd)
		if !ok {
			return nil, status.NewTransportError("store omitted a new mapping fd for an unknown store_fd")
		}
		return base, nil
	}
	device, err := memory.DeviceBufferFor(c.mmap, object.DeviceNum)
	if err != nil {
		return nil, err
	}
	return device.Map(object.StoreFd, fd, object.MapSize, writable)
}

func messageName(t uint32) string {
	if name, ok := messageNames[t]; ok {
		return name
	}
	return "unknown"
}

var messageNames = map[uint32]string{
	wire.MsgConnectRequest:      "connect_request",
	wire.MsgConnectReply:        "connect_reply",
	wire.MsgCreateRequest:       "create_request",
	wire.MsgCreateReply:         "create_reply",
	wire.MsgSealRequest:         "seal_request",
	wire.MsgSealReply:           "seal_reply",
	wire.MsgAbortRequest:        "abort_request",
	wire.MsgAbortReply:          "abort_reply",
	wire.MsgReleaseRequest:      "release_request",
	wire.MsgReleaseReply:        "release_reply",
	wire.MsgContainsRequest:     "contains_request",
	wire.MsgContainsReply:       "contains_reply",
	wire.MsgGetRequest:          "get_request",
	wire.MsgGetReply:            "get_reply",
	wire.MsgDeleteRequest:       "delete_request",
	wire.MsgDeleteReply:         "delete_reply",
	wire.MsgEvictRequest:        "evict_request",
	wire.MsgEvictReply:          "evict_reply",
	wire.MsgSubscribeRequest:    "subscribe_request",
	wire.MsgSubscribeReply:      "subscribe_reply",
	wire.MsgDebugStringRequest:  "debug_string_request",
	wire.MsgDebugStringReply:    "debug_string_reply",
	wire.MsgHashRequest:         "hash_request",
	wire.MsgHashReply:           "hash_reply",
	wire.MsgPutNameRequest:      "put_name_request",
	wire.MsgPutNameReply:        "put_name_reply",
	wire.MsgGetNameRequest:      "get_name_request",
	wire.MsgGetNameReply:        "get_name_reply",
	wire.MsgDropNameRequest:     "drop_name_request",
	wire.MsgDropNameReply:       "drop_name_reply",
	wire.MsgPersistRequest:      "persist_request",
	wire.MsgPersistReply:        "persist_reply",
	wire.MsgFetchRequest:        "fetch_request",
	wire.MsgFetchReply:          "fetch_reply",
	wire.MsgWaitRequest:         "wait_request",
	wire.MsgWaitReply:           "wait_reply",
	wire.MsgTransferRequest:     "transfer_request",
	wire.MsgTransferReply:       "transfer_reply",
	wire.MsgInfoRequest:         "info_request",
	wire.MsgInfoReply:           "info_reply",
}
