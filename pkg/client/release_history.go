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
	"golang.org/x/exp/slices"

	"github.com/vineyard-go/plasma/pkg/types"
)

// releaseNotifier sends the server-visible half of PerformRelease
// (§4.4): a ReleaseRequest and its acknowledgement. clientBase
// implements this; releaseHistory is injected with it rather than a
// concrete type so it stays testable without a live socket.
type releaseNotifier interface {
	notifyRelease(id types.ObjectID) error
}

// releaseHistory is §3/§4.4's ReleaseHistory: an ordered, at-most-once
// sequence of object ids whose local reference count has reached
// zero but whose store-side release has been deferred to preserve
// cache warmth across a following re-acquire.
type releaseHistory struct {
	order            []types.ObjectID
	inUseObjectBytes int64

	config   ClientConfig
	inUse    *inUseTable
	notifier releaseNotifier
}

func newReleaseHistory(config ClientConfig, inUse *inUseTable, notifier releaseNotifier) *releaseHistory {
	return &releaseHistory{config: config, inUse: inUse, notifier: notifier}
}

// enqueue appends id (already at localRefs==0 in the in-use table, per
// I3) and then flushes the oldest entries while either threshold from
// §4.4 is exceeded.
func (h *releaseHistory) enqueue(id types.ObjectID) error {
	e, ok := h.inUse.lookup(id)
	if !ok {
		return errObjectNotInUse(id)
	}
	h.order = append(h.order, id)
	h.inUseObjectBytes += e.object.DataSize + e.object.MetadataSize

	for h.shouldFlush() {
		oldest := h.order[0]
		h.order = h.order[1:]
		if entry, ok := h.inUse.lookup(oldest); ok {
			h.inUseObjectBytes -= entry.object.DataSize + entry.object.MetadataSize
		}
		if err := h.performRelease(oldest); err != nil {
			return err
		}
	}
	return nil
}

func (h *releaseHistory) shouldFlush() bool {
	if len(h.order) == 0 {
		return false
	}
	return len(h.order) > h.config.ReleaseDelay || h.inUseObjectBytes > h.config.capacityThreshold()
}

// performRelease implements §4.4 PerformRelease: notify the store,
// then tear the entry down locally regardless of the notify outcome
// ("the store is now the source of truth" on ack failure), but still
// surface the error to the caller.
func (h *releaseHistory) performRelease(id types.ObjectID) error {
	notifyErr := h.notifier.notifyRelease(id)
	removeErr := h.inUse.remove(id)
	if notifyErr != nil {
		return notifyErr
	}
	return removeErr
}

// reclaim pulls id back out of the history because a Get reacquired it
// before it was flushed (§4.5 Queued --Get--> Sealed-InUse). Callers
// must only call this after confirming id is present via contains.
func (h *releaseHistory) reclaim(id types.ObjectID) {
	idx := slices.Index(h.order, id)
	if idx < 0 {
		return
	}
	h.order = append(h.order[:idx], h.order[idx+1:]...)
	if e, ok := h.inUse.lookup(id); ok {
		h.inUseObjectBytes -= e.object.DataSize + e.object.MetadataSize
	}
}

func (h *releaseHistory) contains(id types.ObjectID) bool {
	return slices.Contains(h.order, id)
}

func (h *releaseHistory) len() int {
	return len(h.order)
}

// flushAll drains the entire history, used by Disconnect (§4.7) which
// must flush fully before it may assert active_count == 0 everywhere.
func (h *releaseHistory) flushAll() error {
	for len(h.order) > 0 {
		oldest := h.order[0]
		h.order = h.order[1:]
		if entry, ok := h.inUse.lookup(oldest); ok {
			h.inUseObjectBytes -= entry.object.DataSize + entry.object.MetadataSize
		}
		if err := h.performRelease(oldest); err != nil {
			return err
		}
	}
	return nil
}
