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
	"github.com/vineyard-go/plasma/pkg/status"
	"github.com/vineyard-go/plasma/pkg/types"
)

// DeviceBuffer abstracts mapping an object's backing region once its
// DeviceNum (§6 device numbering) says the bytes live somewhere other
// than host RAM. Only a host-memory implementation is registered here
// ("GPU path is optional") — a real accelerator backend would
// implement Map over its own driver and be selected the same way.
type DeviceBuffer interface {
	Map(storeFd types.StoreFdID, osFd int, length uint64, writable bool) ([]byte, error)
}

type hostDeviceBuffer struct {
	table *Table
}

func (h *hostDeviceBuffer) Map(storeFd types.StoreFdID, osFd int, length uint64, writable bool) ([]byte, error) {
	return h.table.LookupOrMmap(storeFd, osFd, length, writable)
}

// DeviceBufferFor resolves the DeviceBuffer for deviceNum against
// table. deviceNum 0 is host memory and always succeeds; any other
// value fails cleanly rather than mmapping a host fd and treating it
// as if it addressed device memory.
func DeviceBufferFor(table *Table, deviceNum int) (DeviceBuffer, error) {
	if deviceNum != 0 {
		return nil, status.NewTransportError("device memory mapping is not implemented for this device")
	}
	return &hostDeviceBuffer{table: table}, nil
}
