// Copyright 2026 gorse Project Authors
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

package cf

import (
	"bytes"
	"testing"

	"github.com/gorse-io/tworank/dataset"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestInteractionMatrix(t *testing.T) {
	table := dataset.Table{
		{UserIndex: 0, ItemIndex: 2},
		{UserIndex: 0, ItemIndex: 0},
		{UserIndex: 2, ItemIndex: 1},
		{UserIndex: 0, ItemIndex: 2},
	}
	m, err := NewInteractionMatrix(table, 4, 5)
	assert.NoError(t, err)
	// shaped by the encoder, not by the rows present
	assert.Equal(t, int32(4), m.NRows)
	assert.Equal(t, int32(5), m.NCols)
	assert.Equal(t, 3, m.NNZ())
	assert.Equal(t, []int32{0, 2}, m.Row(0))
	assert.Empty(t, m.Row(1))
	assert.Equal(t, []int32{1}, m.Row(2))
	assert.Empty(t, m.Row(3))
	assert.Nil(t, m.Row(4))

	tr := m.Transpose()
	assert.Equal(t, int32(5), tr.NRows)
	assert.Equal(t, int32(4), tr.NCols)
	assert.Equal(t, []int32{0}, tr.Row(0))
	assert.Equal(t, []int32{2}, tr.Row(1))
	assert.Equal(t, []int32{0}, tr.Row(2))
	assert.Empty(t, tr.Row(4))

	buf := bytes.NewBuffer(nil)
	assert.NoError(t, m.Marshal(buf))
	copied, err := UnmarshalInteractionMatrix(buf)
	assert.NoError(t, err)
	assert.Equal(t, m, copied)
}

func TestInteractionMatrixOutOfRange(t *testing.T) {
	_, err := NewInteractionMatrix(dataset.Table{{UserIndex: 3, ItemIndex: 0}}, 3, 3)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = NewInteractionMatrix(dataset.Table{{UserIndex: 0, ItemIndex: -1}}, 3, 3)
	assert.True(t, errors.Is(err, errors.NotValid))
}
