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

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// Interaction is an encoded implicit positive. Its value is always 1.
type Interaction struct {
	UserIndex int32
	ItemIndex int32
	Timestamp int64
}

// Table is an ordered list of encoded interactions.
type Table []Interaction

// Users returns the set of user indices in the table.
func (t Table) Users() mapset.Set[int32] {
	return mapset.NewThreadUnsafeSet(lo.Map(t, func(row Interaction, _ int) int32 {
		return row.UserIndex
	})...)
}

// Items returns the set of item indices in the table.
func (t Table) Items() mapset.Set[int32] {
	return mapset.NewThreadUnsafeSet(lo.Map(t, func(row Interaction, _ int) int32 {
		return row.ItemIndex
	})...)
}

// MaxTimestamp returns the latest timestamp, or 0 for an empty table.
func (t Table) MaxTimestamp() int64 {
	if len(t) == 0 {
		return 0
	}
	return lo.MaxBy(t, func(a, b Interaction) bool {
		return a.Timestamp > b.Timestamp
	}).Timestamp
}

// GroupByUser collects item indices per user in first-seen order. Duplicates are kept.
func (t Table) GroupByUser() map[int32][]int32 {
	groups := make(map[int32][]int32)
	for _, row := range t {
		groups[row.UserIndex] = append(groups[row.UserIndex], row.ItemIndex)
	}
	return groups
}

// Marshal table into byte stream.
func (t Table) Marshal(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, int64(len(t))); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(binary.Write(w, binary.LittleEndian, []Interaction(t)))
}

// UnmarshalTable reads a table from byte stream.
func UnmarshalTable(r io.Reader) (Table, error) {
	var n int64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, errors.Trace(err)
	}
	if n < 0 {
		return nil, errors.NotValidf("table length %d", n)
	}
	t := make(Table, n)
	if err := binary.Read(r, binary.LittleEndian, []Interaction(t)); err != nil {
		return nil, errors.Trace(err)
	}
	return t, nil
}

// Encoded is the output of encoding a raw dataset.
type Encoded struct {
	UserIndex *Index
	ItemIndex *Index
	Table     Table
}

// Encode filters records to positives and maps raw identifiers to dense indices.
// Indices are built over the whole filtered dataset so that every split shares them.
func Encode(records []InteractionRecord, minRating float64) (*Encoded, error) {
	positives := FilterPositive(records, minRating)
	if len(positives) == 0 {
		return nil, errors.NotValidf("dataset with no rating >= %v", minRating)
	}
	userIndex, err := NewIndex(lo.Map(positives, func(r InteractionRecord, _ int) string {
		return r.UserId
	}))
	if err != nil {
		return nil, errors.Trace(err)
	}
	itemIndex, err := NewIndex(lo.Map(positives, func(r InteractionRecord, _ int) string {
		return r.ItemId
	}))
	if err != nil {
		return nil, errors.Trace(err)
	}
	table := make(Table, len(positives))
	for i, r := range positives {
		table[i] = Interaction{
			UserIndex: userIndex.ToNumber(r.UserId),
			ItemIndex: itemIndex.ToNumber(r.ItemId),
			Timestamp: r.Timestamp,
		}
	}
	return &Encoded{UserIndex: userIndex, ItemIndex: itemIndex, Table: table}, nil
}
