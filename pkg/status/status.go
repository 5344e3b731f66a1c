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

// Package status implements the error taxonomy of §7: every failure
// the client can report is one of a fixed set of kinds, each its own
// Go type so callers can dispatch with errors.As instead of comparing
// numeric codes. The numeric codes themselves are kept from the
// teacher's pkg/common/status.go table, which this package
// generalizes into typed wrappers.
package status

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is the teacher's numeric status code, kept for wire
// compatibility and for rendering in error messages.
type Code int

const (
	KOK                     Code = 0
	KInvalid                Code = 1
	KIOError                Code = 4
	KAssertionFailed        Code = 7
	KObjectExists           Code = 11
	KObjectNotExists        Code = 12
	KObjectSealed           Code = 13
	KObjectNotSealed        Code = 14
	KMetaTreeInvalid        Code = 21
	KConnectionFailed       Code = 33
	KConnectionError        Code = 34
	KNotEnoughMemory        Code = 41
	KUnknownError           Code = 255
)

var codeNames = map[Code]string{
	KOK:               "OK",
	KInvalid:          "Invalid",
	KIOError:          "IOError",
	KAssertionFailed:  "AssertionFailed",
	KObjectExists:     "ObjectExists",
	KObjectNotExists:  "ObjectNotExists",
	KObjectSealed:     "ObjectSealed",
	KObjectNotSealed:  "ObjectNotSealed",
	KMetaTreeInvalid:  "MetaTreeInvalid",
	KConnectionFailed: "ConnectionFailed",
	KConnectionError:  "ConnectionError",
	KNotEnoughMemory:  "NotEnoughMemory",
	KUnknownError:     "UnknownError",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UnknownError"
}

// base carries the fields common to every taxonomy member.
type base struct {
	Code    Code
	Message string
}

func (b *base) Error() string {
	return fmt.Sprintf("code: %d, message: %s: %s", b.Code, b.Code, b.Message)
}

// ConnectionError: socket open/connect/handshake failure; retryable
// up to num_retries.
type ConnectionError struct{ base }

func NewConnectionError(message string) error {
	return errors.WithStack(&ConnectionError{base{KConnectionFailed, message}})
}

// TransportError: framing, short read, descriptor-passing failure;
// fatal to the connection.
type TransportError struct{ base }

func NewTransportError(message string) error {
	return errors.WithStack(&TransportError{base{KIOError, message}})
}

// ProtocolError: reply type mismatch, impossible field values; fatal.
type ProtocolError struct{ base }

func NewProtocolError(message string) error {
	return errors.WithStack(&ProtocolError{base{KInvalid, message}})
}

// StateError: operation illegal for current object state; reported,
// no state change.
type StateError struct{ base }

func NewStateError(message string) error {
	return errors.WithStack(&StateError{base{KAssertionFailed, message}})
}

// CapacityError: store reports out-of-memory or object-would-not-fit;
// caller may Evict and retry.
type CapacityError struct{ base }

func NewCapacityError(message string) error {
	return errors.WithStack(&CapacityError{base{KNotEnoughMemory, message}})
}

// NotFoundError: object not in store; surfaced only where the API
// promises it (Hash/Info/GetName by name).
type NotFoundError struct{ base }

func NewNotFoundError(message string) error {
	return errors.WithStack(&NotFoundError{base{KObjectNotExists, message}})
}

// TimeoutError: Get/Wait deadline reached without satisfaction;
// partial results are still returned and valid.
type TimeoutError struct{ base }

func NewTimeoutError(message string) error {
	return errors.WithStack(&TimeoutError{base{KIOError, message}})
}

// NoManagerError: Fetch/Transfer/Info/Wait(ANYWHERE) called without a
// manager connection.
type NoManagerError struct{ base }

func NewNoManagerError() error {
	return errors.WithStack(&NoManagerError{base{KAssertionFailed, "no manager connection configured"}})
}

// ObjectExistsError: Create called for an id the store already has.
type ObjectExistsError struct{ base }

func NewObjectExistsError(message string) error {
	return errors.WithStack(&ObjectExistsError{base{KObjectExists, message}})
}

// ReplyTypeMismatch mirrors the teacher's helper of the same name,
// reported as a ProtocolError.
func ReplyTypeMismatch(expect, got string) error {
	return NewProtocolError(fmt.Sprintf("reply type mismatch, expect %v, got %v", expect, got))
}

// NotConnected mirrors the teacher's helper, reported as a StateError
// since it is a precondition violation rather than a live transport
// failure.
func NotConnected() error {
	return NewStateError("client not connected")
}
