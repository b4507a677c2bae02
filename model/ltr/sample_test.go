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

package ltr

import (
	"context"
	"testing"

	"github.com/gorse-io/tworank/base"
	"github.com/gorse-io/tworank/dataset"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func dot(userFactor, itemFactor *mat.Dense, u, i int32) float32 {
	return float32(floats.Dot(userFactor.RawRowView(int(u)), itemFactor.RawRowView(int(i))))
}

func TestSynthesizeSinglePositive(t *testing.T) {
	rng := base.NewRandomGenerator(0)
	userFactor := rng.NormalDense(2, 4, 0, 1)
	itemFactor := rng.NormalDense(3, 4, 0, 1)
	train := dataset.Table{{UserIndex: 0, ItemIndex: 0}}
	samples, err := Synthesize(context.Background(), train, userFactor, itemFactor, 0, rng, 1)
	assert.NoError(t, err)
	assert.Equal(t, []Sample{{
		UserIndex: 0,
		ItemIndex: 0,
		Label:     1,
		Features:  []float32{dot(userFactor, itemFactor, 0, 0)},
	}}, samples)
}

func TestSynthesizeLayout(t *testing.T) {
	rng := base.NewRandomGenerator(0)
	userFactor := rng.NormalDense(5, 3, 0, 1)
	itemFactor := rng.NormalDense(9, 3, 0, 1)
	var train dataset.Table
	for i := 0; i < 10000; i++ {
		train = append(train, dataset.Interaction{UserIndex: int32(i % 5), ItemIndex: int32(i % 9)})
	}
	for _, nNeg := range []int{1, DefaultNegatives} {
		samples, err := Synthesize(context.Background(), train, userFactor, itemFactor, nNeg, base.NewRandomGenerator(1), 4)
		assert.NoError(t, err)
		step := nNeg + 1
		assert.Len(t, samples, len(train)*step)
		for i, sample := range samples {
			row := train[i/step]
			assert.Equal(t, row.UserIndex, sample.UserIndex)
			if i%step == 0 {
				assert.Equal(t, 1, sample.Label)
				assert.Equal(t, row.ItemIndex, sample.ItemIndex)
			} else {
				assert.Equal(t, 0, sample.Label)
				assert.GreaterOrEqual(t, sample.ItemIndex, int32(0))
				assert.Less(t, sample.ItemIndex, int32(9))
			}
			assert.Len(t, sample.Features, 1)
			assert.InDelta(t, dot(userFactor, itemFactor, sample.UserIndex, sample.ItemIndex), sample.Features[0], 1e-6)
		}
	}
}

func TestSynthesizeDeterministic(t *testing.T) {
	rng := base.NewRandomGenerator(0)
	userFactor := rng.NormalDense(3, 2, 0, 1)
	itemFactor := rng.NormalDense(4, 2, 0, 1)
	train := dataset.Table{{UserIndex: 0, ItemIndex: 1}, {UserIndex: 2, ItemIndex: 3}}
	a, err := Synthesize(context.Background(), train, userFactor, itemFactor, 3, base.NewRandomGenerator(7), 1)
	assert.NoError(t, err)
	b, err := Synthesize(context.Background(), train, userFactor, itemFactor, 3, base.NewRandomGenerator(7), 2)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

// Negatives are not checked against the user's positives, so with a single item every
// negative duplicates the positive pair with label 0.
func TestSynthesizeNegativeCollision(t *testing.T) {
	rng := base.NewRandomGenerator(0)
	userFactor := rng.NormalDense(1, 2, 0, 1)
	itemFactor := rng.NormalDense(1, 2, 0, 1)
	train := dataset.Table{{UserIndex: 0, ItemIndex: 0}}
	samples, err := Synthesize(context.Background(), train, userFactor, itemFactor, 3, rng, 1)
	assert.NoError(t, err)
	assert.Len(t, samples, 4)
	for _, sample := range samples[1:] {
		assert.Equal(t, int32(0), sample.ItemIndex)
		assert.Equal(t, 0, sample.Label)
		assert.Equal(t, samples[0].Features, sample.Features)
	}
}

func TestSynthesizeInvalid(t *testing.T) {
	rng := base.NewRandomGenerator(0)
	userFactor := rng.NormalDense(1, 2, 0, 1)
	itemFactor := rng.NormalDense(1, 2, 0, 1)
	_, err := Synthesize(context.Background(), nil, userFactor, itemFactor, 3, rng, 1)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = Synthesize(context.Background(), dataset.Table{{UserIndex: 1}}, userFactor, itemFactor, 3, rng, 1)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = Synthesize(context.Background(), dataset.Table{{}}, userFactor, itemFactor, -1, rng, 1)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = Synthesize(context.Background(), dataset.Table{{}}, userFactor, rng.NormalDense(1, 3, 0, 1), 3, rng, 1)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestGroupSizes(t *testing.T) {
	samples := []Sample{
		{UserIndex: 2, ItemIndex: 0},
		{UserIndex: 0, ItemIndex: 1},
		{UserIndex: 2, ItemIndex: 2},
		{UserIndex: 1, ItemIndex: 3},
		{UserIndex: 0, ItemIndex: 4},
	}
	SortByUser(samples)
	assert.Equal(t, []int32{1, 4, 3, 0, 2}, []int32{
		samples[0].ItemIndex, samples[1].ItemIndex, samples[2].ItemIndex, samples[3].ItemIndex, samples[4].ItemIndex,
	})
	groups := GroupSizes(samples)
	assert.Equal(t, []int{2, 1, 2}, groups)
	assert.Empty(t, GroupSizes(nil))
}
