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

// Package fakestore is an in-process stand-in for the Plasma store and
// manager daemons (§1's "out of scope: the store daemon itself; the
// manager daemon"), used only by this module's own tests. It speaks
// the real wire protocol over real Unix domain sockets, backing each
// Create with a real temp file mmap'd by the client the same way the
// production daemon would, so pkg/client's tests exercise the actual
// codec and mmap-table code paths rather than a mock.
package fakestore

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/vineyard-go/plasma/pkg/memory"
	"github.com/vineyard-go/plasma/pkg/types"
	"github.com/vineyard-go/plasma/pkg/wire"
)

type objectEntry struct {
	object   types.PlasmaObject
	file     *os.File
	sealed   bool
	inUse    bool
	digest   [types.ObjectIDLength]byte
	hasDigest bool
}

// Store is a single-process fake of both the store and manager
// daemons. Release-delay enforcement lives entirely in the real client
// under test; the fake answers the wire protocol honestly, including
// a simple Evict that frees sealed, released objects.
type Store struct {
	Dir         string
	SocketPath  string
	ManagerPath string
	Capacity    int64

	mu          sync.Mutex
	objects     map[types.ObjectID]*objectEntry
	names       map[string]types.ObjectID
	nextFd      types.StoreFdID
	subscribers []*wire.Conn
	remote      map[types.ObjectID]bool // ids Wait(ANYWHERE)/Info should report as remotely known

	listener        *net.UnixListener
	managerListener *net.UnixListener
	closed          chan struct{}
}

// New starts a fake store (and, if withManager is true, a fake
// manager) listening on fresh socket paths under a temp directory.
func New(dir string, withManager bool) (*Store, error) {
	s := &Store{
		Dir:      dir,
		Capacity: 1 << 30,
		objects:  make(map[types.ObjectID]*objectEntry),
		names:    make(map[string]types.ObjectID),
		remote:   make(map[types.ObjectID]bool),
		closed:   make(chan struct{}),
	}

	s.SocketPath = dir + "/store.sock"
	addr, err := net.ResolveUnixAddr("unix", s.SocketPath)
	if err != nil {
		return nil, err
	}
	s.listener, err = net.ListenUnix("unix", addr)
	if err != nil {
		return nil, err
	}
	go s.acceptLoop(s.listener, s.handleStoreConn)

	if withManager {
		s.ManagerPath = dir + "/manager.sock"
		maddr, err := net.ResolveUnixAddr("unix", s.ManagerPath)
		if err != nil {
			return nil, err
		}
		s.managerListener, err = net.ListenUnix("unix", maddr)
		if err != nil {
			return nil, err
		}
		go s.acceptLoop(s.managerListener, s.handleManagerConn)
	}

	return s, nil
}

// AnnounceRemote marks id as known to the fake manager without it
// being locally present, for exercising Wait(ANYWHERE)/Info (S5).
func (s *Store) AnnounceRemote(id types.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote[id] = true
}

func (s *Store) Close() error {
	close(s.closed)
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.managerListener != nil {
		_ = s.managerListener.Close()
	}
	for _, entry := range s.objects {
		if entry.file != nil {
			_ = entry.file.Close()
		}
	}
	return nil
}

func (s *Store) acceptLoop(l *net.UnixListener, handle func(*wire.Conn)) {
	for {
		conn, err := l.AcceptUnix()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
				return
			}
		}
		go handle(wire.NewConn(conn, memory.UnixFDTransport{}))
	}
}

func (s *Store) handleStoreConn(conn *wire.Conn) {
	defer conn.Close()
	sentFd := make(map[types.StoreFdID]bool)

	for {
		msgType, body, err := conn.Recv()
		if err != nil {
			return
		}
		if !s.dispatchStore(conn, msgType, body, sentFd) {
			return
		}
	}
}

func (s *Store) dispatchStore(conn *wire.Conn, msgType uint32, body []byte, sentFd map[types.StoreFdID]bool) bool {
	switch msgType {
	case wire.MsgConnectRequest:
		return s.onConnect(conn, body)
	case wire.MsgCreateRequest:
		return s.onCreate(conn, body, sentFd)
	case wire.MsgSealRequest:
		return s.onSeal(conn, body)
	case wire.MsgAbortRequest:
		return s.onAbort(conn, body)
	case wire.MsgReleaseRequest:
		return s.onRelease(conn, body, sentFd)
	case wire.MsgContainsRequest:
		return s.onContains(conn, body)
	case wire.MsgGetRequest:
		return s.onGet(conn, body, sentFd)
	case wire.MsgDeleteRequest:
		return s.onDelete(conn, body)
	case wire.MsgEvictRequest:
		return s.onEvict(conn, body)
	case wire.MsgHashRequest:
		return s.onHash(conn, body)
	case wire.MsgSubscribeRequest:
		return s.onSubscribe(conn, body)
	case wire.MsgDebugStringRequest:
		return s.onDebugString(conn, body)
	case wire.MsgPutNameRequest:
		return s.onPutName(conn, body)
	case wire.MsgGetNameRequest:
		return s.onGetName(conn, body)
	case wire.MsgDropNameRequest:
		return s.onDropName(conn, body)
	case wire.MsgPersistRequest:
		return s.onPersist(conn, body)
	case wire.MsgWaitRequest:
		return s.onWait(conn, body)
	default:
		return false
	}
}

func (s *Store) onConnect(conn *wire.Conn, body []byte) bool {
	var req wire.ConnectRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false
	}
	reply := wire.ConnectReply{Type: "connect_reply", StoreCapacity: s.Capacity, InstanceID: 0}
	return send(conn, wire.MsgConnectReply, reply)
}

func (s *Store) onCreate(conn *wire.Conn, body []byte, sentFd map[types.StoreFdID]bool) bool {
	var req wire.CreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false
	}

	s.mu.Lock()
	if _, exists := s.objects[req.ObjectID]; exists {
		s.mu.Unlock()
		return send(conn, wire.MsgCreateReply, wire.CreateReply{Type: "create_reply", Code: 11})
	}

	mapSize := alignedSize(req.DataSize + req.MetadataSize)
	f, err := os.CreateTemp(s.Dir, "plasma-obj-*")
	if err != nil {
		s.mu.Unlock()
		return false
	}
	if err := f.Truncate(mapSize); err != nil {
		s.mu.Unlock()
		return false
	}

	storeFd := s.nextFd
	s.nextFd++

	object := types.PlasmaObject{
		ObjectID:       req.ObjectID,
		StoreFd:        storeFd,
		MapSize:        uint64(mapSize),
		DataOffset:     0,
		DataSize:       req.DataSize,
		MetadataOffset: uint64(req.DataSize),
		MetadataSize:   req.MetadataSize,
		DeviceNum:      req.DeviceNum,
	}
	s.objects[req.ObjectID] = &objectEntry{object: object, file: f, inUse: true}
	s.mu.Unlock()

	if !send(conn, wire.MsgCreateReply, wire.CreateReply{Type: "create_reply", Object: object, HasMmapFD: true}) {
		return false
	}
	sentFd[storeFd] = true
	return conn.SendFD(int(f.Fd())) == nil
}

func (s *Store) onSeal(conn *wire.Conn, body []byte) bool {
	var req wire.SealRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false
	}
	s.mu.Lock()
	entry, ok := s.objects[req.ObjectID]
	if ok {
		entry.sealed = true
		entry.object.Sealed = true
		entry.digest = req.Digest
		entry.hasDigest = true
	}
	subs := append([]*wire.Conn{}, s.subscribers...)
	s.mu.Unlock()

	if !ok {
		return send(conn, wire.MsgSealReply, wire.SealReply{Type: "seal_reply", Code: 1})
	}

	notif := wire.Notification{ObjectID: req.ObjectID, DataSize: entry.object.DataSize, MetadataSize: entry.object.MetadataSize}
	for _, sub := range subs {
		_ = send(sub, wire.MsgNotification, notif)
	}
	return send(conn, wire.MsgSealReply, wire.SealReply{Type: "seal_reply", Code: 0})
}

func (s *Store) onAbort(conn *wire.Conn, body []byte) bool {
	var req wire.AbortRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false
	}
	s.mu.Lock()
	if entry, ok := s.objects[req.ObjectID]; ok {
		_ = entry.file.Close()
		delete(s.objects, req.ObjectID)
	}
	s.mu.Unlock()
	return send(conn, wire.MsgAbortReply, wire.AbortReply{Type: "abort_reply", Code: 0})
}

// onRelease answers a ReleaseRequest. A ReleaseRequest only ever
// reaches the store once the client's own delayed-release queue has
// actually flushed the object, which is exactly when the client drops
// its local mapping — so this is also the right moment to forget that
// this connection already has the fd, forcing a fresh one on the next
// Create/Get that needs it (S3's "re-maps").
func (s *Store) onRelease(conn *wire.Conn, body []byte, sentFd map[types.StoreFdID]bool) bool {
	var req wire.ReleaseRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false
	}
	s.mu.Lock()
	if entry, ok := s.objects[req.ObjectID]; ok {
		entry.inUse = false
		delete(sentFd, entry.object.StoreFd)
	}
	s.mu.Unlock()
	return send(conn, wire.MsgReleaseReply, wire.ReleaseReply{Type: "release_reply", Code: 0})
}

func (s *Store) onContains(conn *wire.Conn, body []byte) bool {
	var req wire.ContainsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false
	}
	s.mu.Lock()
	entry, ok := s.objects[req.ObjectID]
	exists := ok && entry.sealed
	s.mu.Unlock()
	return send(conn, wire.MsgContainsReply, wire.ContainsReply{Type: "contains_reply", Exists: exists})
}

// onGet answers a GetRequest, polling until every id is sealed or the
// timeout elapses, matching §4.6's "block until every requested
// object is present locally OR the timeout elapses".
func (s *Store) onGet(conn *wire.Conn, body []byte, sentFd map[types.StoreFdID]bool) bool {
	var req wire.GetRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false
	}

	deadline := time.Now().Add(time.Duration(req.TimeoutMs) * time.Millisecond)
	indefinite := req.TimeoutMs < 0

	objects := make([]wire.GetReplyObject, len(req.ObjectIDs))
	pendingFDs := make([]*os.File, 0, len(req.ObjectIDs))

	for i, id := range req.ObjectIDs {
		for {
			s.mu.Lock()
			entry, ok := s.objects[id]
			ready := ok && entry.sealed
			s.mu.Unlock()
			if ready || (!indefinite && time.Now().After(deadline)) {
				break
			}
			time.Sleep(2 * time.Millisecond)
		}

		s.mu.Lock()
		entry, ok := s.objects[id]
		s.mu.Unlock()
		if !ok || !entry.sealed {
			objects[i] = wire.GetReplyObject{ObjectID: id, Object: types.PlasmaObject{DataSize: -1, MetadataSize: -1}}
			continue
		}

		hasFD := !sentFd[entry.object.StoreFd]
		objects[i] = wire.GetReplyObject{ObjectID: id, Object: entry.object, HasMmapFD: hasFD}
		if hasFD {
			sentFd[entry.object.StoreFd] = true
			pendingFDs = append(pendingFDs, entry.file)
		}
	}

	if !send(conn, wire.MsgGetReply, wire.GetReply{Type: "get_reply", Objects: objects}) {
		return false
	}
	for _, f := range pendingFDs {
		if err := conn.SendFD(int(f.Fd())); err != nil {
			return false
		}
	}
	return true
}

func (s *Store) onDelete(conn *wire.Conn, body []byte) bool {
	var req wire.DeleteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false
	}
	s.mu.Lock()
	entry, ok := s.objects[req.ObjectID]
	deleted := ok && entry.sealed && !entry.inUse
	if deleted {
		_ = entry.file.Close()
		delete(s.objects, req.ObjectID)
	}
	subs := append([]*wire.Conn{}, s.subscribers...)
	s.mu.Unlock()

	if deleted {
		notif := wire.Notification{ObjectID: req.ObjectID, DataSize: -1, MetadataSize: -1}
		for _, sub := range subs {
			_ = send(sub, wire.MsgNotification, notif)
		}
	}
	return send(conn, wire.MsgDeleteReply, wire.DeleteReply{Type: "delete_reply", Code: 0})
}

func (s *Store) onEvict(conn *wire.Conn, body []byte) bool {
	var req wire.EvictRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false
	}
	freed := int64(0)
	s.mu.Lock()
	for id, entry := range s.objects {
		if freed >= req.NumBytes {
			break
		}
		if entry.sealed && !entry.inUse {
			freed += entry.object.DataSize + entry.object.MetadataSize
			_ = entry.file.Close()
			delete(s.objects, id)
		}
	}
	s.mu.Unlock()
	return send(conn, wire.MsgEvictReply, wire.EvictReply{Type: "evict_reply", BytesReturned: freed})
}

func (s *Store) onHash(conn *wire.Conn, body []byte) bool {
	var req wire.HashRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false
	}
	s.mu.Lock()
	entry, ok := s.objects[req.ObjectID]
	s.mu.Unlock()
	if !ok || !entry.hasDigest {
		return send(conn, wire.MsgHashReply, wire.HashReply{Type: "hash_reply", Cached: false})
	}
	return send(conn, wire.MsgHashReply, wire.HashReply{Type: "hash_reply", Cached: true, Digest: entry.digest})
}

func (s *Store) onDebugString(conn *wire.Conn, body []byte) bool {
	s.mu.Lock()
	sealed := 0
	for _, entry := range s.objects {
		if entry.sealed {
			sealed++
		}
	}
	total := len(s.objects)
	s.mu.Unlock()
	text := fmt.Sprintf("objects=%d sealed=%d", total, sealed)
	return send(conn, wire.MsgDebugStringReply, wire.DebugStringReply{Type: "debug_string_reply", Text: text})
}

func (s *Store) onPutName(conn *wire.Conn, body []byte) bool {
	var req wire.PutNameRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false
	}
	s.mu.Lock()
	s.names[req.Name] = req.ObjectID
	s.mu.Unlock()
	return send(conn, wire.MsgPutNameReply, wire.PutNameReply{Type: "put_name_reply", Code: 0})
}

// onGetName answers a GetNameRequest, polling while Wait is set and
// the name is not yet bound, bounded so an unresolved name in a test
// fails the request rather than hanging the connection forever.
func (s *Store) onGetName(conn *wire.Conn, body []byte) bool {
	var req wire.GetNameRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		id, ok := s.names[req.Name]
		s.mu.Unlock()
		if ok || !req.Wait || time.Now().After(deadline) {
			if !ok {
				return send(conn, wire.MsgGetNameReply, wire.GetNameReply{Type: "get_name_reply", Code: 12})
			}
			return send(conn, wire.MsgGetNameReply, wire.GetNameReply{Type: "get_name_reply", Code: 0, ObjectID: id})
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (s *Store) onDropName(conn *wire.Conn, body []byte) bool {
	var req wire.DropNameRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false
	}
	s.mu.Lock()
	delete(s.names, req.Name)
	s.mu.Unlock()
	return send(conn, wire.MsgDropNameReply, wire.DropNameReply{Type: "drop_name_reply", Code: 0})
}

func (s *Store) onPersist(conn *wire.Conn, body []byte) bool {
	var req wire.PersistRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false
	}
	return send(conn, wire.MsgPersistReply, wire.PersistReply{Type: "persist_reply", Code: 0})
}

func (s *Store) onSubscribe(conn *wire.Conn, body []byte) bool {
	pair, err := socketpair()
	if err != nil {
		return false
	}
	storeSide, err := fdToUnixConn(pair[0])
	if err != nil {
		return false
	}

	s.mu.Lock()
	s.subscribers = append(s.subscribers, wire.NewConn(storeSide, memory.UnixFDTransport{}))
	s.mu.Unlock()

	if !send(conn, wire.MsgSubscribeReply, wire.SubscribeReply{Type: "subscribe_reply", Code: 0}) {
		return false
	}
	sendErr := conn.SendFD(pair[1])
	_ = syscall.Close(pair[1]) // the client now owns its own dup of this end
	return sendErr == nil
}

func (s *Store) handleManagerConn(conn *wire.Conn) {
	defer conn.Close()
	for {
		msgType, body, err := conn.Recv()
		if err != nil {
			return
		}
		if !s.dispatchManager(conn, msgType, body) {
			return
		}
	}
}

func (s *Store) dispatchManager(conn *wire.Conn, msgType uint32, body []byte) bool {
	switch msgType {
	case wire.MsgFetchRequest:
		return send(conn, wire.MsgFetchReply, wire.FetchReply{Type: "fetch_reply", Code: 0})
	case wire.MsgTransferRequest:
		return send(conn, wire.MsgTransferReply, wire.TransferReply{Type: "transfer_reply", Code: 0})
	case wire.MsgInfoRequest:
		return s.onInfo(conn, body)
	default:
		return false
	}
}

func (s *Store) onInfo(conn *wire.Conn, body []byte) bool {
	var req wire.InfoRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false
	}
	s.mu.Lock()
	entry, ok := s.objects[req.ObjectID]
	s.mu.Unlock()
	if !ok {
		return send(conn, wire.MsgInfoReply, wire.InfoReply{Type: "info_reply", Code: 12})
	}
	return send(conn, wire.MsgInfoReply, wire.InfoReply{Type: "info_reply", Object: entry.object})
}

func (s *Store) onWait(conn *wire.Conn, body []byte) bool {
	var req wire.WaitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false
	}

	deadline := time.Now().Add(time.Duration(req.TimeoutMs) * time.Millisecond)
	for {
		entries := s.waitStatuses(req.Entries)
		satisfied := 0
		for _, e := range entries {
			if e.Status != wire.WaitStatusNonexistent {
				satisfied++
			}
		}
		if satisfied >= req.NumRequired || time.Now().After(deadline) {
			return send(conn, wire.MsgWaitReply, wire.WaitReply{Type: "wait_reply", Entries: entries})
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (s *Store) waitStatuses(reqs []wire.WaitRequestEntry) []wire.WaitReplyEntry {
	out := make([]wire.WaitReplyEntry, len(reqs))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range reqs {
		entry, local := s.objects[r.ObjectID]
		switch {
		case local && entry.sealed:
			out[i] = wire.WaitReplyEntry{ObjectID: r.ObjectID, Status: wire.WaitStatusLocal}
		case r.Query == wire.QueryAnywhere && s.remote[r.ObjectID]:
			out[i] = wire.WaitReplyEntry{ObjectID: r.ObjectID, Status: wire.WaitStatusRemote}
		default:
			out[i] = wire.WaitReplyEntry{ObjectID: r.ObjectID, Status: wire.WaitStatusNonexistent}
		}
	}
	return out
}

func send(conn *wire.Conn, msgType uint32, payload any) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return conn.Send(msgType, body) == nil
}

// alignedSize rounds up to a page boundary the way a real dlmalloc
// arena chunk would be sized; exact alignment doesn't matter to the
// fake, only that it's big enough to hold data+metadata.
func alignedSize(n int64) int64 {
	const page = 4096
	if n <= 0 {
		return page
	}
	return ((n + page - 1) / page) * page
}
