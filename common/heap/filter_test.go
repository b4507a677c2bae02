// Copyright 2022 gorse Project Authors
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
package heap

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestTopKFilter(t *testing.T) {
	scores := []float32{0.3, -1.2, 2.5, 0.9, 2.5, 0.1, 1.7}
	filter := NewTopKFilter[int32, float32](4)
	for i, score := range scores {
		filter.Push(int32(i), score)
	}
	assert.Equal(t, []Elem[int32, float32]{
		{Value: 2, Weight: 2.5},
		{Value: 4, Weight: 2.5},
		{Value: 6, Weight: 1.7},
		{Value: 3, Weight: 0.9},
	}, filter.PopAll())
}

func TestTopKFilterNotFull(t *testing.T) {
	filter := NewTopKFilter[string, float64](10)
	filter.Push("B000", 1)
	filter.Push("B001", 3)
	filter.Push("B002", 2)
	assert.Equal(t, []string{"B001", "B002", "B000"}, filter.PopAllValues())
}

func TestTopKFilterTies(t *testing.T) {
	a := NewTopKFilter[int32, float32](2)
	a.Push(1, 5)
	a.Push(2, 5)
	a.Push(3, 5)
	assert.Equal(t, []int32{1, 2}, a.PopAllValues())
	// zero capacity keeps nothing
	b := NewTopKFilter[int32, float32](0)
	b.Push(1, 1)
	assert.Empty(t, b.PopAllValues())
}

func TestTopKFilterLarge(t *testing.T) {
	filter := NewTopKFilter[int, int](5)
	for _, i := range lo.Shuffle(lo.Range(1000)) {
		filter.Push(i, i)
	}
	assert.Equal(t, []int{999, 998, 997, 996, 995}, filter.PopAllValues())
}
