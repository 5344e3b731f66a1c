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
	arrowmem "github.com/apache/arrow/go/v11/arrow/memory"

	"github.com/vineyard-go/plasma/pkg/status"
	"github.com/vineyard-go/plasma/pkg/types"
)

// handle is shared between a client-returned buffer and the client's
// own bookkeeping so that Release can invalidate the buffer the
// caller is holding, per the §9 design note that buffer lifetime
// should be tied to a handle Release consumes. Reads after Release
// fail with a StateError rather than touching freed/unmapped memory.
type handle struct {
	valid bool
}

func (h *handle) check() error {
	if h == nil || !h.valid {
		return status.NewStateError("buffer used after its object was released")
	}
	return nil
}

// ObjectBuffer is the read-only descriptor §4.6 Get returns: the
// object's data and attached metadata aliased directly into the
// client's mapping of the store's shared memory, with no copy.
type ObjectBuffer struct {
	ObjectID     types.ObjectID
	DataSize     int64
	MetadataSize int64
	DeviceNum    int

	data     *arrowmem.Buffer
	metadata *arrowmem.Buffer
	h        *handle
}

// TimedOut reports whether this slot was not satisfied before Get's
// deadline (§4.6: "signalled in the output by data_size == -1").
func (b *ObjectBuffer) TimedOut() bool {
	return b.DataSize == -1
}

func (b *ObjectBuffer) Data() (*arrowmem.Buffer, error) {
	if err := b.h.check(); err != nil {
		return nil, err
	}
	return b.data, nil
}

func (b *ObjectBuffer) Metadata() (*arrowmem.Buffer, error) {
	if err := b.h.check(); err != nil {
		return nil, err
	}
	return b.metadata, nil
}

// WritableBuffer is returned by Create (§4.7): a mutable view over the
// data and metadata regions the store just allocated. It must not be
// written to after Seal (§5: "after Seal the region must not be
// written").
type WritableBuffer struct {
	ObjectID     types.ObjectID
	DataSize     int64
	MetadataSize int64
	DeviceNum    int

	data     []byte
	metadata []byte
	h        *handle
	sealed   bool
}

func (b *WritableBuffer) Data() ([]byte, error) {
	if err := b.h.check(); err != nil {
		return nil, err
	}
	if b.sealed {
		return nil, status.NewStateError("object is sealed; its buffer is now immutable")
	}
	return b.data, nil
}

func (b *WritableBuffer) Metadata() ([]byte, error) {
	if err := b.h.check(); err != nil {
		return nil, err
	}
	if b.sealed {
		return nil, status.NewStateError("object is sealed; its buffer is now immutable")
	}
	return b.metadata, nil
}
