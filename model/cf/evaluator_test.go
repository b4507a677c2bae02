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
	"context"
	"testing"

	"github.com/gorse-io/tworank/base"
	"github.com/gorse-io/tworank/dataset"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestEvaluateRecall(t *testing.T) {
	// retrieval for user 0 with item 0 masked returns [2, 5, 1]
	model := &ALS{
		Params:     Params{Factors: 1, Jobs: 1},
		UserFactor: mat.NewDense(1, 1, []float64{1}),
		ItemFactor: mat.NewDense(6, 1, []float64{10, 3, 5, 0, -1, 4}),
	}
	matrix, err := NewInteractionMatrix(dataset.Table{{UserIndex: 0, ItemIndex: 0}}, 1, 6)
	assert.NoError(t, err)
	items, _ := model.Recommend(0, matrix.Row(0), 3)
	assert.Equal(t, []int32{2, 5, 1}, items)

	result, err := EvaluateRecall(context.Background(), model, matrix, map[int32][]int32{0: {1, 2}}, 3)
	assert.NoError(t, err)
	assert.Equal(t, RecallResult{Hits: 2, Targets: 2, Recall: 1, Users: 1}, result)

	result, err = EvaluateRecall(context.Background(), model, matrix, map[int32][]int32{0: {1, 2}}, 2)
	assert.NoError(t, err)
	assert.Equal(t, RecallResult{Hits: 1, Targets: 2, Recall: 0.5, Users: 1}, result)
}

func TestEvaluateRecallMicroAverage(t *testing.T) {
	model := &ALS{
		Params:     Params{Factors: 1, Jobs: 2},
		UserFactor: mat.NewDense(3, 1, []float64{1, 1, 1}),
		ItemFactor: mat.NewDense(5, 1, []float64{5, 4, 3, 2, 1}),
	}
	matrix, err := NewInteractionMatrix(nil, 3, 5)
	assert.NoError(t, err)
	groundTruth := map[int32][]int32{
		0: {0},          // 1 of 1
		1: {1, 3, 4, 4}, // 1 of 4, duplicates count as targets
		// beyond the model, skipped
		7: {0, 1},
	}
	result, err := EvaluateRecall(context.Background(), model, matrix, groundTruth, 2)
	assert.NoError(t, err)
	assert.Equal(t, 2, result.Hits)
	assert.Equal(t, 5, result.Targets)
	assert.Equal(t, 2, result.Users)
	// micro average, the per-user mean would be 0.625
	assert.InDelta(t, 0.4, result.Recall, 1e-9)
}

func TestEvaluateRecallEmpty(t *testing.T) {
	model := &ALS{
		Params:     Params{Factors: 1},
		UserFactor: mat.NewDense(1, 1, []float64{1}),
		ItemFactor: mat.NewDense(2, 1, []float64{1, 2}),
	}
	matrix, err := NewInteractionMatrix(nil, 1, 2)
	assert.NoError(t, err)
	result, err := EvaluateRecall(context.Background(), model, matrix, nil, 10)
	assert.NoError(t, err)
	assert.Zero(t, result.Recall)
	assert.Zero(t, result.Targets)
}

func TestEvaluateRecallMonotonic(t *testing.T) {
	rng := base.NewRandomGenerator(0)
	train := randomTable(rng, 30, 40, 300)
	test := randomTable(rng, 30, 40, 100)
	matrix, err := NewInteractionMatrix(train, 30, 40)
	assert.NoError(t, err)
	params := DefaultParams()
	params.Factors = 4
	params.Iterations = 3
	model := NewALS(params)
	assert.NoError(t, model.Fit(context.Background(), matrix))
	groundTruth := GroundTruth(test)
	last := 0.0
	for k := 1; k <= 40; k += 3 {
		result, err := EvaluateRecall(context.Background(), model, matrix, groundTruth, k)
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, result.Recall, last)
		assert.LessOrEqual(t, result.Recall, 1.0)
		last = result.Recall
	}
}
