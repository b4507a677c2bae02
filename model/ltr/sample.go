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
	"slices"

	"github.com/gorse-io/tworank/base"
	"github.com/gorse-io/tworank/common/parallel"
	"github.com/gorse-io/tworank/dataset"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultNegatives is the number of negatives drawn per positive.
const DefaultNegatives = 7

// Sample is a labeled user-item pair. Features[0] is the retrieval affinity.
type Sample struct {
	UserIndex int32
	ItemIndex int32
	Label     int
	Features  []float32
}

// NumFeatures is the width of the feature vectors built by Synthesize.
const NumFeatures = 1

const scoreChunkSize = 4096

// Synthesize builds n_rows × (1 + nNeg) samples. The positive of row r sits at r·(nNeg+1)
// and its nNeg negatives follow it. Negatives are drawn uniformly over all items in one
// batch and may coincide with an item the user has consumed.
func Synthesize(ctx context.Context, train dataset.Table, userFactor, itemFactor *mat.Dense,
	nNeg int, rng base.RandomGenerator, jobs int) ([]Sample, error) {
	if len(train) == 0 {
		return nil, errors.NotValidf("empty training table")
	}
	if nNeg < 0 {
		return nil, errors.NotValidf("negative count %d", nNeg)
	}
	nUsers, nFactors := userFactor.Dims()
	nItems, itemFactors := itemFactor.Dims()
	if nFactors != itemFactors {
		return nil, errors.NotValidf("factors %d and %d", nFactors, itemFactors)
	}
	for _, row := range train {
		if row.UserIndex < 0 || int(row.UserIndex) >= nUsers || row.ItemIndex < 0 || int(row.ItemIndex) >= nItems {
			return nil, errors.NotValidf("interaction (%d, %d)", row.UserIndex, row.ItemIndex)
		}
	}

	step := nNeg + 1
	samples := make([]Sample, len(train)*step)
	features := make([]float32, len(samples))
	negatives := rng.UniformInt32s(len(train)*nNeg, int32(nItems))
	for r, row := range train {
		samples[r*step] = Sample{UserIndex: row.UserIndex, ItemIndex: row.ItemIndex, Label: 1}
		for j := 0; j < nNeg; j++ {
			samples[r*step+1+j] = Sample{UserIndex: row.UserIndex, ItemIndex: negatives[r*nNeg+j]}
		}
	}

	chunks := parallel.Ranges(len(samples), (len(samples)+scoreChunkSize-1)/scoreChunkSize)
	err := parallel.Parallel(ctx, len(chunks), jobs, func(_, jobId int) error {
		for i := chunks[jobId][0]; i < chunks[jobId][1]; i++ {
			features[i] = float32(floats.Dot(
				userFactor.RawRowView(int(samples[i].UserIndex)),
				itemFactor.RawRowView(int(samples[i].ItemIndex))))
			samples[i].Features = features[i : i+1 : i+1]
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return samples, nil
}

// SortByUser stably sorts samples by user index so each user forms one query group.
func SortByUser(samples []Sample) {
	slices.SortStableFunc(samples, func(a, b Sample) int {
		return int(a.UserIndex) - int(b.UserIndex)
	})
}

// GroupSizes returns the lengths of contiguous runs of equal user index.
func GroupSizes(samples []Sample) []int {
	var groups []int
	for i := range samples {
		if i == 0 || samples[i].UserIndex != samples[i-1].UserIndex {
			groups = append(groups, 0)
		}
		groups[len(groups)-1]++
	}
	return groups
}
