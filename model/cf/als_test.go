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
	"context"
	"testing"

	"github.com/gorse-io/tworank/base"
	"github.com/gorse-io/tworank/dataset"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gonum.org/v1/gonum/mat"
)

// newBlockTable creates two groups of users that each consume their own group of items.
func newBlockTable(nUsers, nItems int32) dataset.Table {
	var table dataset.Table
	for u := int32(0); u < nUsers; u++ {
		for i := int32(0); i < nItems; i++ {
			if (u < nUsers/2) == (i < nItems/2) && (u+i)%3 != 0 {
				table = append(table, dataset.Interaction{UserIndex: u, ItemIndex: i})
			}
		}
	}
	return table
}

type ALSTestSuite struct {
	suite.Suite
	matrix *InteractionMatrix
	model  *ALS
}

func (suite *ALSTestSuite) SetupSuite() {
	var err error
	suite.matrix, err = NewInteractionMatrix(newBlockTable(20, 30), 21, 31)
	suite.NoError(err)
	params := DefaultParams()
	params.Factors = 8
	params.Iterations = 10
	params.Jobs = 4
	suite.model = NewALS(params)
	suite.NoError(suite.model.Fit(context.Background(), suite.matrix))
}

func (suite *ALSTestSuite) TestShape() {
	r, c := suite.model.UserFactor.Dims()
	suite.Equal(21, r)
	suite.Equal(8, c)
	r, c = suite.model.ItemFactor.Dims()
	suite.Equal(31, r)
	suite.Equal(8, c)
	suite.Equal(int32(21), suite.model.CountUsers())
	suite.Equal(int32(31), suite.model.CountItems())
}

func (suite *ALSTestSuite) TestEmptyRowsAreZero() {
	// user 20 and item 30 never interact
	suite.Equal(make([]float64, 8), suite.model.UserFactor.RawRowView(20))
	suite.Equal(make([]float64, 8), suite.model.ItemFactor.RawRowView(30))
}

func (suite *ALSTestSuite) TestFitsBlocks() {
	// positives score higher than items from the other block
	suite.Greater(suite.model.Score(1, 1), suite.model.Score(1, 20))
	suite.Greater(suite.model.Score(15, 20), suite.model.Score(15, 1))
}

func (suite *ALSTestSuite) TestRecommend() {
	history := suite.matrix.Row(1)
	items, scores := suite.model.Recommend(1, history, 5)
	suite.Len(items, 5)
	suite.Len(scores, 5)
	for i, item := range items {
		suite.NotContains(history, item)
		suite.Less(item, int32(15))
		if i > 0 {
			suite.GreaterOrEqual(scores[i-1], scores[i])
		}
		suite.InDelta(suite.model.Score(1, item), scores[i], 1e-5)
	}
	// unknown user
	items, _ = suite.model.Recommend(21, nil, 5)
	suite.Empty(items)
	items, _ = suite.model.Recommend(-1, nil, 5)
	suite.Empty(items)
	// everything masked
	all := make([]int32, 31)
	for i := range all {
		all[i] = int32(i)
	}
	items, _ = suite.model.Recommend(1, all, 5)
	suite.Empty(items)
}

func (suite *ALSTestSuite) TestDeterministic() {
	other := NewALS(suite.model.Params)
	suite.NoError(other.Fit(context.Background(), suite.matrix))
	suite.True(mat.EqualApprox(suite.model.UserFactor, other.UserFactor, 1e-9))
	suite.True(mat.EqualApprox(suite.model.ItemFactor, other.ItemFactor, 1e-9))
}

func (suite *ALSTestSuite) TestMarshal() {
	buf := bytes.NewBuffer(nil)
	suite.NoError(suite.model.Marshal(buf))
	model := new(ALS)
	suite.NoError(model.Unmarshal(buf))
	suite.Equal(suite.model.Params, model.Params)
	suite.True(mat.Equal(suite.model.UserFactor, model.UserFactor))
	suite.True(mat.Equal(suite.model.ItemFactor, model.ItemFactor))
}

func TestALS(t *testing.T) {
	suite.Run(t, new(ALSTestSuite))
}

func TestALSEmpty(t *testing.T) {
	matrix, err := NewInteractionMatrix(nil, 3, 3)
	assert.NoError(t, err)
	err = NewALS(DefaultParams()).Fit(context.Background(), matrix)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestALSCancel(t *testing.T) {
	matrix, err := NewInteractionMatrix(newBlockTable(10, 10), 10, 10)
	assert.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NewALS(DefaultParams()).Fit(ctx, matrix)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecommendTies(t *testing.T) {
	model := &ALS{
		Params:     Params{Factors: 1},
		UserFactor: mat.NewDense(1, 1, []float64{1}),
		ItemFactor: mat.NewDense(4, 1, []float64{1, 2, 2, 2}),
	}
	items, _ := model.Recommend(0, []int32{1}, 2)
	assert.Equal(t, []int32{2, 3}, items)
}

func TestSolveSymFallback(t *testing.T) {
	// indefinite matrix still solvable by LU
	a := mat.NewSymDense(2, []float64{0, 1, 1, 0})
	b := mat.NewVecDense(2, []float64{2, 3})
	v := mat.NewVecDense(2, nil)
	assert.NoError(t, solveSym(v, a, b))
	assert.InDelta(t, 3, v.AtVec(0), 1e-9)
	assert.InDelta(t, 2, v.AtVec(1), 1e-9)
}

func randomTable(rng base.RandomGenerator, nUsers, nItems int32, n int) dataset.Table {
	table := make(dataset.Table, n)
	for i := range table {
		table[i] = dataset.Interaction{UserIndex: rng.Int31n(nUsers), ItemIndex: rng.Int31n(nItems)}
	}
	return table
}
