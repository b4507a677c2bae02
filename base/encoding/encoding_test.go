// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package encoding

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestWriteDense(t *testing.T) {
	a := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	buf := bytes.NewBuffer(nil)
	err := WriteDense(buf, a)
	assert.NoError(t, err)
	b, err := ReadDense(buf)
	assert.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
}

func TestWriteInt32s(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteInt32s(buf, []int32{3, 1, 4}))
	assert.NoError(t, WriteInt32s(buf, nil))
	a, err := ReadInt32s(buf)
	assert.NoError(t, err)
	assert.Equal(t, []int32{3, 1, 4}, a)
	b, err := ReadInt32s(buf)
	assert.NoError(t, err)
	assert.Empty(t, b)
}

func TestWriteString(t *testing.T) {
	a := "abc"
	buf := bytes.NewBuffer(nil)
	err := WriteString(buf, a)
	assert.NoError(t, err)
	var b string
	b, err = ReadString(buf)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
	// truncated stream
	_, err = ReadString(bytes.NewReader([]byte{5, 0, 0, 0, 'a'}))
	assert.Error(t, err)
}

func TestWriteGob(t *testing.T) {
	a := "abc"
	buf := bytes.NewBuffer(nil)
	err := WriteGob(buf, a)
	assert.NoError(t, err)
	var b string
	err = ReadGob(buf, &b)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}
