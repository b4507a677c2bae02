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
	"encoding/binary"
	"io"
	"slices"

	"github.com/gorse-io/tworank/base/encoding"
	"github.com/gorse-io/tworank/dataset"
	"github.com/juju/errors"
)

// InteractionMatrix is a binary user-item matrix in CSR layout. Every stored value is 1.
type InteractionMatrix struct {
	NRows   int32
	NCols   int32
	IndPtr  []int32
	Indices []int32
}

// NewInteractionMatrix builds the matrix from encoded rows. The shape is given by the
// full index cardinality so it stays aligned with the encoder. Duplicate pairs collapse.
func NewInteractionMatrix(table dataset.Table, nUsers, nItems int32) (*InteractionMatrix, error) {
	rows := make([][]int32, nUsers)
	for _, row := range table {
		if row.UserIndex < 0 || row.UserIndex >= nUsers {
			return nil, errors.NotValidf("user index %d for %d users", row.UserIndex, nUsers)
		}
		if row.ItemIndex < 0 || row.ItemIndex >= nItems {
			return nil, errors.NotValidf("item index %d for %d items", row.ItemIndex, nItems)
		}
		rows[row.UserIndex] = append(rows[row.UserIndex], row.ItemIndex)
	}
	return fromRows(rows, nItems), nil
}

func fromRows(rows [][]int32, nCols int32) *InteractionMatrix {
	m := &InteractionMatrix{
		NRows:  int32(len(rows)),
		NCols:  nCols,
		IndPtr: make([]int32, len(rows)+1),
	}
	for i, row := range rows {
		slices.Sort(row)
		row = slices.Compact(row)
		m.Indices = append(m.Indices, row...)
		m.IndPtr[i+1] = int32(len(m.Indices))
	}
	return m
}

// Row returns the sorted column indices of a row. The slice must not be modified.
func (m *InteractionMatrix) Row(i int32) []int32 {
	if i < 0 || i >= m.NRows {
		return nil
	}
	return m.Indices[m.IndPtr[i]:m.IndPtr[i+1]]
}

// NNZ returns the number of stored entries.
func (m *InteractionMatrix) NNZ() int {
	return len(m.Indices)
}

// Transpose returns the item-user view of the matrix.
func (m *InteractionMatrix) Transpose() *InteractionMatrix {
	cols := make([][]int32, m.NCols)
	for i := int32(0); i < m.NRows; i++ {
		for _, j := range m.Row(i) {
			cols[j] = append(cols[j], i)
		}
	}
	return fromRows(cols, m.NRows)
}

// Marshal matrix into byte stream.
func (m *InteractionMatrix) Marshal(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, [2]int32{m.NRows, m.NCols}); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteInt32s(w, m.IndPtr); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(encoding.WriteInt32s(w, m.Indices))
}

// UnmarshalInteractionMatrix reads a matrix from byte stream.
func UnmarshalInteractionMatrix(r io.Reader) (*InteractionMatrix, error) {
	var shape [2]int32
	if err := binary.Read(r, binary.LittleEndian, &shape); err != nil {
		return nil, errors.Trace(err)
	}
	if shape[0] < 0 || shape[1] < 0 {
		return nil, errors.NotValidf("interaction matrix shape %v", shape)
	}
	m := &InteractionMatrix{NRows: shape[0], NCols: shape[1]}
	var err error
	if m.IndPtr, err = encoding.ReadInt32s(r); err != nil {
		return nil, errors.Trace(err)
	}
	if m.Indices, err = encoding.ReadInt32s(r); err != nil {
		return nil, errors.Trace(err)
	}
	if len(m.IndPtr) != int(m.NRows)+1 || int(m.IndPtr[m.NRows]) != len(m.Indices) {
		return nil, errors.NotValidf("interaction matrix layout")
	}
	return m, nil
}
