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

// Package wire's protocol.go is the message catalogue of §6: one
// request/reply pair per store or manager operation, plus the
// independent notification frame carried on the subscription fd. It
// generalizes the teacher's pkg/common/protocol.go (which only ever
// covered Register/Exit/Persist/PutName/GetName/DropName) to the full
// catalogue this spec requires, keeping the teacher's
// type-tag-as-JSON-field convention rather than inventing a new wire
// style.
package wire

import "github.com/vineyard-go/plasma/pkg/types"

// Message type tags. These ride in the frame header's 4-byte type
// field (see Conn.Send/Recv); the JSON payload also repeats the tag in
// its "type" field, matching the teacher's redundant-but-debuggable
// convention.
const (
	MsgConnectRequest     = 1
	MsgConnectReply       = 2
	MsgCreateRequest      = 3
	MsgCreateReply        = 4
	MsgSealRequest        = 5
	MsgSealReply          = 6
	MsgAbortRequest       = 7
	MsgAbortReply         = 8
	MsgReleaseRequest     = 9
	MsgReleaseReply       = 10
	MsgContainsRequest    = 11
	MsgContainsReply      = 12
	MsgGetRequest         = 13
	MsgGetReply           = 14
	MsgDeleteRequest      = 15
	MsgDeleteReply        = 16
	MsgEvictRequest       = 17
	MsgEvictReply         = 18
	MsgSubscribeRequest   = 19
	MsgSubscribeReply     = 20
	MsgDebugStringRequest = 21
	MsgDebugStringReply   = 22
	MsgHashRequest        = 23
	MsgHashReply          = 24
	MsgExitRequest        = 25

	MsgPutNameRequest  = 26
	MsgPutNameReply    = 27
	MsgGetNameRequest  = 28
	MsgGetNameReply    = 29
	MsgDropNameRequest = 30
	MsgDropNameReply   = 31
	MsgPersistRequest  = 32
	MsgPersistReply    = 33

	MsgFetchRequest    = 40
	MsgFetchReply      = 41
	MsgWaitRequest     = 42
	MsgWaitReply       = 43
	MsgTransferRequest = 44
	MsgTransferReply   = 45
	MsgInfoRequest     = 46
	MsgInfoReply       = 47

	MsgNotification = 50
)

const DefaultServerVersion = "0.0.0"

// ConnectRequest/ConnectReply implement the §4.7 Connect handshake:
// the client announces its protocol version and the store reports its
// total pool capacity, which the client caches. The release-history
// flush policy (§4.4) does not use that capacity: its byte threshold
// is the client's configured CapacityRatioBytes.
type ConnectRequest struct {
	Type    string `json:"type"`
	Version string `json:"version"`
}

type ConnectReply struct {
	Type          string `json:"type"`
	Code          int    `json:"code"`
	StoreCapacity int64  `json:"store_capacity"`
	InstanceID    types.InstanceID `json:"instance_id"`
}

// CreateRequest/CreateReply implement §4.7 Create. The reply carries
// the store_fd identifier and, the first time that backing file is
// seen by this client, a new mapping fd on the connection's ancillary
// channel (flagged by HasMmapFD).
type CreateRequest struct {
	Type           string         `json:"type"`
	ObjectID       types.ObjectID `json:"object_id"`
	DataSize       int64          `json:"data_size"`
	MetadataSize   int64          `json:"metadata_size"`
	DeviceNum      int            `json:"device_num"`
}

type CreateReply struct {
	Type       string            `json:"type"`
	Code       int               `json:"code"`
	Object     types.PlasmaObject `json:"object"`
	HasMmapFD  bool              `json:"has_mmap_fd"`
}

// SealRequest/SealReply implement §4.7 Seal: the client computes the
// content hash locally (over its own writable mapping) and the store
// just records it.
type SealRequest struct {
	Type      string           `json:"type"`
	ObjectID  types.ObjectID   `json:"object_id"`
	Digest    [types.ObjectIDLength]byte `json:"digest"`
}

type SealReply struct {
	Type string `json:"type"`
	Code int    `json:"code"`
}

type AbortRequest struct {
	Type     string         `json:"type"`
	ObjectID types.ObjectID `json:"object_id"`
}

type AbortReply struct {
	Type string `json:"type"`
	Code int    `json:"code"`
}

// ReleaseRequest/ReleaseReply implement the server-visible half of
// §4.4 PerformRelease.
type ReleaseRequest struct {
	Type     string         `json:"type"`
	ObjectID types.ObjectID `json:"object_id"`
}

type ReleaseReply struct {
	Type string `json:"type"`
	Code int    `json:"code"`
}

type ContainsRequest struct {
	Type     string         `json:"type"`
	ObjectID types.ObjectID `json:"object_id"`
}

type ContainsReply struct {
	Type   string `json:"type"`
	Code   int    `json:"code"`
	Exists bool   `json:"exists"`
}

// GetRequest/GetReply implement the store side of §4.6 Get. The reply
// carries one GetReplyObject per requested id, in request order;
// TimeoutMs mirrors the request so the store can answer progressively
// without a second round trip for "still waiting".
type GetRequest struct {
	Type      string           `json:"type"`
	ObjectIDs []types.ObjectID `json:"object_ids"`
	TimeoutMs int64            `json:"timeout_ms"`
}

// GetReplyObject.HasMmapFD mirrors CreateReply's convention: the store
// sends the mapping fd over the ancillary channel the first time a
// given store_fd is referenced on this connection (again after a
// ReleaseRequest for it), in the same order the flagged entries
// appear in Objects.
type GetReplyObject struct {
	ObjectID  types.ObjectID      `json:"object_id"`
	Object    types.PlasmaObject  `json:"object"`
	HasMmapFD bool                `json:"has_mmap_fd"`
}

type GetReply struct {
	Type    string           `json:"type"`
	Code    int              `json:"code"`
	Objects []GetReplyObject `json:"objects"`
}

type DeleteRequest struct {
	Type     string         `json:"type"`
	ObjectID types.ObjectID `json:"object_id"`
}

type DeleteReply struct {
	Type string `json:"type"`
	Code int    `json:"code"`
}

type EvictRequest struct {
	Type     string `json:"type"`
	NumBytes int64  `json:"num_bytes"`
}

type EvictReply struct {
	Type          string `json:"type"`
	Code          int    `json:"code"`
	BytesReturned int64  `json:"bytes_returned"`
}

// SubscribeRequest/SubscribeReply implement §4.6 Subscribe. The
// subscription fd itself travels on the same ancillary channel as a
// mapping fd would; the client must not treat it as a mapping.
type SubscribeRequest struct {
	Type string `json:"type"`
}

type SubscribeReply struct {
	Type string `json:"type"`
	Code int    `json:"code"`
}

// Notification is the frame format of §6: sent repeatedly on the
// subscription fd, one per seal or deletion event, independent of the
// request/reply socket's framing.
type Notification struct {
	ObjectID     types.ObjectID `json:"object_id"`
	DataSize     int64          `json:"data_size"`
	MetadataSize int64          `json:"metadata_size"`
}

type DebugStringRequest struct {
	Type string `json:"type"`
}

type DebugStringReply struct {
	Type string `json:"type"`
	Code int    `json:"code"`
	Text string `json:"text"`
}

// HashRequest/HashReply implement §4.7 Hash's store-side fast path
// (cached digest of a sealed object); the client falls back to local
// computation when the store has none cached.
type HashRequest struct {
	Type     string         `json:"type"`
	ObjectID types.ObjectID `json:"object_id"`
}

type HashReply struct {
	Type   string                     `json:"type"`
	Code   int                        `json:"code"`
	Cached bool                       `json:"cached"`
	Digest [types.ObjectIDLength]byte `json:"digest"`
}

type ExitRequest struct {
	Type string `json:"type"`
}

// PutNameRequest..PersistReply are the store's object-naming and
// durability side channel, kept from the teacher's protocol.go
// verbatim in shape (only the ObjectID type changed).
type PutNameRequest struct {
	Type     string         `json:"type"`
	ObjectID types.ObjectID `json:"object_id"`
	Name     string         `json:"name"`
}

type PutNameReply struct {
	Type string `json:"type"`
	Code int    `json:"code"`
}

type GetNameRequest struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Wait bool   `json:"wait"`
}

type GetNameReply struct {
	Type     string         `json:"type"`
	Code     int            `json:"code"`
	ObjectID types.ObjectID `json:"object_id"`
}

type DropNameRequest struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type DropNameReply struct {
	Type string `json:"type"`
	Code int    `json:"code"`
}

type PersistRequest struct {
	Type     string         `json:"type"`
	ObjectID types.ObjectID `json:"object_id"`
}

type PersistReply struct {
	Type string `json:"type"`
	Code int    `json:"code"`
}

// Fetch/Transfer/Info are the manager-side catalogue of §4.6 and §6.
// Wait rides the store connection instead (below), so a LOCAL-only
// wait needs no manager at all; WaitRequestEntry.Query distinguishes
// that local-only check from one that also considers remote-known
// availability, which does require a manager connection.
const (
	QueryLocal     = "local"
	QueryAnywhere  = "anywhere"
)

const (
	WaitStatusLocal      = "local"
	WaitStatusRemote     = "remote"
	WaitStatusNonexistent = "nonexistent"
)

type FetchRequest struct {
	Type     string         `json:"type"`
	ObjectID types.ObjectID `json:"object_id"`
}

type FetchReply struct {
	Type string `json:"type"`
	Code int    `json:"code"`
}

type WaitRequestEntry struct {
	ObjectID types.ObjectID `json:"object_id"`
	Query    string         `json:"query"`
}

type WaitRequest struct {
	Type       string             `json:"type"`
	Entries    []WaitRequestEntry `json:"entries"`
	NumRequired int               `json:"num_required"`
	TimeoutMs   int64             `json:"timeout_ms"`
}

type WaitReplyEntry struct {
	ObjectID types.ObjectID `json:"object_id"`
	Status   string         `json:"status"`
}

type WaitReply struct {
	Type    string           `json:"type"`
	Code    int              `json:"code"`
	Entries []WaitReplyEntry `json:"entries"`
}

type TransferRequest struct {
	Type       string         `json:"type"`
	ObjectID   types.ObjectID `json:"object_id"`
	InstanceID types.InstanceID `json:"instance_id"`
}

type TransferReply struct {
	Type string `json:"type"`
	Code int    `json:"code"`
}

type InfoRequest struct {
	Type     string         `json:"type"`
	ObjectID types.ObjectID `json:"object_id"`
}

type InfoReply struct {
	Type       string             `json:"type"`
	Code       int                `json:"code"`
	Object     types.PlasmaObject `json:"object"`
	InstanceID types.InstanceID   `json:"instance_id"`
}
