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
	"fmt"

	"github.com/vineyard-go/plasma/pkg/status"
	"github.com/vineyard-go/plasma/pkg/types"
)

func errObjectNotInUse(id types.ObjectID) error {
	return status.NewStateError(fmt.Sprintf("object %s is not in the in-use table", id))
}

func errIllegalTransition(id types.ObjectID, state objectState, op string) error {
	return status.NewStateError(fmt.Sprintf("operation %s is illegal for object %s in state %s", op, id, state))
}

func noManagerErr() error {
	return status.NewNoManagerError()
}
