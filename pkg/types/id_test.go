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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectIDRoundTrip(t *testing.T) {
	var id ObjectID
	for i := range id {
		id[i] = byte(i + 1)
	}

	s := ObjectIDToString(id)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f1011121314", s)

	parsed, err := ObjectIDFromString(s)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestObjectIDEquality(t *testing.T) {
	a, err := ObjectIDFromBytes([]byte("aaaaaaaaaaaaaaaaaaaa"))
	require.NoError(t, err)
	b, err := ObjectIDFromBytes([]byte("aaaaaaaaaaaaaaaaaaaa"))
	require.NoError(t, err)
	c, err := ObjectIDFromBytes([]byte("bbbbbbbbbbbbbbbbbbbb"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, a.IsValid())
	assert.False(t, InvalidObjectID().IsValid())
}

func TestObjectIDFromBytesTooShort(t *testing.T) {
	_, err := ObjectIDFromBytes([]byte("short"))
	assert.Error(t, err)
}

func TestSignature(t *testing.T) {
	s := SignatureToString(1234)
	o, err := SignatureFromString(s)
	require.NoError(t, err)
	assert.Equal(t, "s00000000000004d2", s)
	assert.Equal(t, uint64(1234), o)
}
