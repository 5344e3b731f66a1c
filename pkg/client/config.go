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

import "fmt"

const (
	versionMajor = 0
	versionMinor = 1
	versionPatch = 0
)

var clientVersion = fmt.Sprintf("%d.%d.%d", versionMajor, versionMinor, versionPatch)

// l3CacheSizeBytes is the default byte threshold (about 100MB) for the
// second release-history flush trigger of §4.4. It is a fixed byte
// count: the threshold is not scaled by the store capacity reported
// at Connect. It is kept as a tunable default on ClientConfig rather
// than baked into the release history, per the §9 open question on
// the capacity-threshold formula.
const l3CacheSizeBytes = 100 << 20

// ClientConfig is fixed at Connect time (§3 ClientConfig) and governs
// the release-history flush policy (§4.4).
type ClientConfig struct {
	// ReleaseDelay bounds how many released-but-not-yet-flushed
	// objects the release history may hold before the oldest is
	// flushed to the store.
	ReleaseDelay int

	// CapacityRatioBytes overrides the L3-cache-size heuristic used as
	// the second flush trigger (in-use bytes queued in the release
	// history). Zero means use the default.
	CapacityRatioBytes int64

	// NumRetries bounds how many times Connect retries a failed dial
	// to the store/manager sockets before giving up.
	NumRetries int
}

// DefaultClientConfig mirrors the defaults §4.7 calls out explicitly
// (num_retries=50); ReleaseDelay defaults to zero, meaning every
// Release flushes immediately unless the caller opts into delay.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ReleaseDelay:       0,
		CapacityRatioBytes: l3CacheSizeBytes,
		NumRetries:         50,
	}
}

func (c ClientConfig) capacityThreshold() int64 {
	if c.CapacityRatioBytes > 0 {
		return c.CapacityRatioBytes
	}
	return l3CacheSizeBytes
}
