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
	"github.com/vineyard-go/plasma/pkg/types"
	"github.com/vineyard-go/plasma/pkg/wire"
)

// ManagerClient implements the one-shot manager-side operations of
// §4.6/§6: Fetch, Transfer, Info, each forwarded to the optional
// manager connection. IPCClient holds one of these only when Connect
// was given a non-empty manager socket path.
type ManagerClient struct {
	*clientBase
}

func (m *ManagerClient) disconnect() error {
	if !m.connected {
		return nil
	}
	m.connected = false
	return m.conn.Close()
}

// Fetch implements §4.6 Fetch: a one-shot, idempotent request asking
// the manager to pull id from wherever it currently lives toward this
// instance. It does not block on completion.
func (c *IPCClient) Fetch(id types.ObjectID) error {
	if c.manager == nil {
		return noManagerErr()
	}
	req := wire.FetchRequest{Type: "fetch_request", ObjectID: id}
	var reply wire.FetchReply
	return c.manager.doRequest(wire.MsgFetchRequest, req, wire.MsgFetchReply, &reply)
}

// Transfer implements §4.6 Transfer: single-round-trip request to
// move id to the named instance.
func (c *IPCClient) Transfer(id types.ObjectID, instanceID types.InstanceID) error {
	if c.manager == nil {
		return noManagerErr()
	}
	req := wire.TransferRequest{Type: "transfer_request", ObjectID: id, InstanceID: instanceID}
	var reply wire.TransferReply
	return c.manager.doRequest(wire.MsgTransferRequest, req, wire.MsgTransferReply, &reply)
}

// Info implements §4.6 Info: fetches the PlasmaObject layout and
// owning instance for id from the manager, without mapping anything
// locally.
func (c *IPCClient) Info(id types.ObjectID) (types.PlasmaObject, types.InstanceID, error) {
	if c.manager == nil {
		return types.PlasmaObject{}, 0, noManagerErr()
	}
	req := wire.InfoRequest{Type: "info_request", ObjectID: id}
	var reply wire.InfoReply
	if err := c.manager.doRequest(wire.MsgInfoRequest, req, wire.MsgInfoReply, &reply); err != nil {
		return types.PlasmaObject{}, 0, err
	}
	if err := replyError(reply.Code, "info "+id.String()); err != nil {
		return types.PlasmaObject{}, 0, err
	}
	return reply.Object, reply.InstanceID, nil
}
