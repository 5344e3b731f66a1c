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

// Package io dials the store and manager sockets with the bounded
// retry-with-backoff Connect (§4.7) requires. Both are Unix domain
// stream sockets (§6); message framing itself now lives in pkg/wire,
// this package only ever hands back a raw *net.UnixConn for
// wire.NewConn to wrap.
package io

import (
	"net"
	"time"

	"github.com/vineyard-go/plasma/pkg/log"
)

// DefaultNumRetries matches §4.7's default num_retries for Connect.
const DefaultNumRetries = 50

const retryBackoff = 1000 * time.Millisecond

// DialIPCSocketRetry dials a Unix domain stream socket, retrying up to
// numRetries times with a fixed backoff before giving up.
func DialIPCSocketRetry(pathname string, numRetries int) (*net.UnixConn, error) {
	conn, err := dialIPCSocket(pathname)
	for numRetries > 0 && err != nil {
		log.Infof("connecting to ipc socket %s failed: %s, retrying %d more times", pathname, err, numRetries)
		time.Sleep(retryBackoff)
		conn, err = dialIPCSocket(pathname)
		numRetries--
	}
	return conn, err
}

func dialIPCSocket(pathname string) (*net.UnixConn, error) {
	addr, err := net.ResolveUnixAddr("unix", pathname)
	if err != nil {
		return nil, err
	}
	return net.DialUnix("unix", nil, addr)
}
