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

package base

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// RandomGenerator is the random generator for tworank.
type RandomGenerator struct {
	*rand.Rand
}

// NewRandomGenerator creates a RandomGenerator.
func NewRandomGenerator(seed int64) RandomGenerator {
	return RandomGenerator{rand.New(rand.NewSource(seed))}
}

// NormalVector64 makes a vec filled with normal random floats.
func (rng RandomGenerator) NormalVector64(size int, mean, stdDev float64) []float64 {
	ret := make([]float64, size)
	for i := 0; i < len(ret); i++ {
		ret[i] = rng.NormFloat64()*stdDev + mean
	}
	return ret
}

// NormalDense makes a row x col matrix filled with normal random floats.
func (rng RandomGenerator) NormalDense(row, col int, mean, stdDev float64) *mat.Dense {
	if row == 0 || col == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(row, col, rng.NormalVector64(row*col, mean, stdDev))
}

// UniformInt32s draws n integers uniformly from [0, high) with replacement.
func (rng RandomGenerator) UniformInt32s(n int, high int32) []int32 {
	ret := make([]int32, n)
	for i := range ret {
		ret[i] = rng.Int31n(high)
	}
	return ret
}
