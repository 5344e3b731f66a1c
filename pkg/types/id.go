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

package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// ObjectIDLength is the fixed size, in bytes, of an ObjectID.
const ObjectIDLength = 20

// ObjectID is an opaque, caller-assigned object identifier. It is
// comparable and hashable by byte value, so it can be used directly as
// a map key.
type ObjectID [ObjectIDLength]byte

// String renders the id as a hex string for logs and error messages.
func (id ObjectID) String() string {
	return hex.EncodeToString(id[:])
}

// ObjectIDFromBytes copies the first ObjectIDLength bytes of b into an
// ObjectID. It returns an error if b is shorter than ObjectIDLength.
func ObjectIDFromBytes(b []byte) (ObjectID, error) {
	var id ObjectID
	if len(b) < ObjectIDLength {
		return id, errors.Errorf("object id must be %d bytes, got %d", ObjectIDLength, len(b))
	}
	copy(id[:], b[:ObjectIDLength])
	return id, nil
}

// ObjectIDToString renders id as a hex string; kept as a free function
// alongside the String method so it reads the same as the rest of the
// ID/Signature family below.
func ObjectIDToString(id ObjectID) string {
	return id.String()
}

// ObjectIDFromString parses the hex representation produced by String.
func ObjectIDFromString(s string) (ObjectID, error) {
	var id ObjectID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, errors.Wrap(err, "malformed object id")
	}
	return ObjectIDFromBytes(b)
}

// InvalidObjectID is the all-ones sentinel used where no object id is
// available yet (e.g. before a Create request completes).
func InvalidObjectID() ObjectID {
	var id ObjectID
	for i := range id {
		id[i] = 0xff
	}
	return id
}

// IsValid reports whether id is not the InvalidObjectID sentinel.
func (id ObjectID) IsValid() bool {
	return id != InvalidObjectID()
}

// MarshalJSON renders the id the same way String does, so wire
// messages carry object ids as hex strings rather than byte arrays.
func (id ObjectID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *ObjectID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ObjectIDFromString(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Signature is an opaque 64-bit signature value, rendered as "s"
// followed by 16 hex digits. It is distinct from the 20-byte digest
// Seal computes.
type Signature = uint64

func SignatureToString(sig Signature) string {
	return fmt.Sprintf("s%016x", sig)
}

func SignatureFromString(sig string) (Signature, error) {
	return strconv.ParseUint(sig[1:], 16, 64)
}

// InvalidSignature is the sentinel signature value.
func InvalidSignature() Signature {
	return 0xffffffffffffffff
}

// InstanceID identifies one store instance (one host's daemon) in a
// multi-host deployment.
type InstanceID = uint64

// UnspecifiedInstanceID is used before the handshake reports a real one.
func UnspecifiedInstanceID() InstanceID {
	return 0xffffffffffffffff
}

// SessionID identifies one client session against the store.
type SessionID = uint64

func SessionIDToString(sig SessionID) string {
	return fmt.Sprintf("S%016x", sig)
}

func SessionIDFromString(sig string) (SessionID, error) {
	return strconv.ParseUint(sig[1:], 16, 64)
}

func RootSessionID() SessionID {
	return 0
}
