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

package dataset

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/gorse-io/tworank/base/encoding"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// UnknownName is returned by ToName for indices outside the index.
const UnknownName = "Unknown"

// NotId represents an ID doesn't exist.
const NotId = int32(-1)

// Index manages the map between raw identifiers and dense indices. A raw ID is
// a user ID or item ID. The dense index is the internal user index or item index
// in [0, Len()).
type Index struct {
	Numbers map[string]int32 // raw ID -> dense index
	Names   []string         // dense index -> raw ID
}

// NewIndex assigns dense indices to the distinct names in ascending order.
func NewIndex(names []string) (*Index, error) {
	distinct := lo.Uniq(names)
	sort.Strings(distinct)
	idx := &Index{
		Numbers: make(map[string]int32, len(distinct)),
		Names:   distinct,
	}
	for i, name := range distinct {
		idx.Numbers[name] = int32(i)
	}
	if err := idx.Check(); err != nil {
		return nil, errors.Trace(err)
	}
	return idx, nil
}

// Check verifies the index is a bijection onto [0, Len()).
func (idx *Index) Check() error {
	if len(idx.Numbers) != len(idx.Names) {
		return errors.NotValidf("index with %d names and %d numbers", len(idx.Names), len(idx.Numbers))
	}
	for name, number := range idx.Numbers {
		if number < 0 || int(number) >= len(idx.Names) || idx.Names[number] != name {
			return errors.NotValidf("index entry %s -> %d", name, number)
		}
	}
	return nil
}

// Len returns the number of indexed names.
func (idx *Index) Len() int32 {
	if idx == nil {
		return 0
	}
	return int32(len(idx.Names))
}

// ToNumber converts a raw ID to a dense index.
func (idx *Index) ToNumber(name string) int32 {
	if number, exist := idx.Numbers[name]; exist {
		return number
	}
	return NotId
}

// ToName converts a dense index to a raw ID, or UnknownName.
func (idx *Index) ToName(index int32) string {
	if index < 0 || index >= idx.Len() {
		return UnknownName
	}
	return idx.Names[index]
}

// Marshal index into byte stream.
func (idx *Index) Marshal(w io.Writer) error {
	err := binary.Write(w, binary.LittleEndian, int32(len(idx.Names)))
	if err != nil {
		return errors.Trace(err)
	}
	for _, s := range idx.Names {
		if err = encoding.WriteString(w, s); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Unmarshal index from byte stream.
func (idx *Index) Unmarshal(r io.Reader) error {
	var n int32
	err := binary.Read(r, binary.LittleEndian, &n)
	if err != nil {
		return errors.Trace(err)
	}
	if n < 0 {
		return errors.NotValidf("index length %d", n)
	}
	idx.Names = make([]string, n)
	idx.Numbers = make(map[string]int32, n)
	for i := range idx.Names {
		name, err := encoding.ReadString(r)
		if err != nil {
			return errors.Trace(err)
		}
		idx.Names[i] = name
		idx.Numbers[name] = int32(i)
	}
	return errors.Trace(idx.Check())
}
