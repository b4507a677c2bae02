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
	"io"
	"runtime"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/tworank/base"
	"github.com/gorse-io/tworank/base/encoding"
	"github.com/gorse-io/tworank/base/log"
	"github.com/gorse-io/tworank/common/heap"
	"github.com/gorse-io/tworank/common/parallel"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Params are the hyper-parameters of ALS.
type Params struct {
	Factors        int     `mapstructure:"factors" validate:"gt=0"`
	Iterations     int     `mapstructure:"iterations" validate:"gte=0"`
	Regularization float64 `mapstructure:"regularization" validate:"gte=0"`
	Alpha          float64 `mapstructure:"alpha" validate:"gte=0"`
	Seed           int64   `mapstructure:"seed"`
	InitStdDev     float64 `mapstructure:"init_std_dev" validate:"gte=0"`
	Jobs           int     `mapstructure:"jobs" validate:"gte=0"`
}

// DefaultParams returns the default ALS hyper-parameters.
func DefaultParams() Params {
	return Params{
		Factors:        64,
		Iterations:     15,
		Regularization: 0.01,
		Alpha:          40,
		Seed:           42,
		InitStdDev:     0.01,
	}
}

func (p Params) jobs() int {
	if p.Jobs <= 0 {
		return runtime.NumCPU()
	}
	return p.Jobs
}

// ALS is the weighted regularized matrix factorization for implicit feedback [Hu, Koren
// and Volinsky, 2008]. Every observed pair has confidence 1 + alpha, every missing pair
// has confidence 1 and preference 0.
//
//	x_u = (YᵀY + Yᵀ(Cᵘ-I)Y + λI)⁻¹ YᵀCᵘp(u)
type ALS struct {
	Params
	UserFactor *mat.Dense // x_u
	ItemFactor *mat.Dense // y_i
}

// NewALS creates an ALS model.
func NewALS(params Params) *ALS {
	return &ALS{Params: params}
}

// Fit alternates user and item solves on the matrix.
func (als *ALS) Fit(ctx context.Context, matrix *InteractionMatrix) error {
	if matrix.NNZ() == 0 {
		return errors.NotValidf("empty interaction matrix")
	}
	if als.Factors <= 0 {
		return errors.NotValidf("factors %d", als.Factors)
	}
	log.Logger().Info("fit als",
		zap.Int32("n_users", matrix.NRows),
		zap.Int32("n_items", matrix.NCols),
		zap.Int("n_interactions", matrix.NNZ()),
		zap.Int("factors", als.Factors),
		zap.Int("iterations", als.Iterations),
		zap.Float64("regularization", als.Regularization),
		zap.Float64("alpha", als.Alpha))
	rng := base.NewRandomGenerator(als.Seed)
	als.UserFactor = rng.NormalDense(int(matrix.NRows), als.Factors, 0, als.InitStdDev)
	als.ItemFactor = rng.NormalDense(int(matrix.NCols), als.Factors, 0, als.InitStdDev)
	transposed := matrix.Transpose()
	for it := 1; it <= als.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		start := time.Now()
		if err := als.solve(ctx, als.UserFactor, als.ItemFactor, matrix); err != nil {
			return errors.Trace(err)
		}
		if err := als.solve(ctx, als.ItemFactor, als.UserFactor, transposed); err != nil {
			return errors.Trace(err)
		}
		log.Logger().Debug("fit als iteration",
			zap.Int("iteration", it),
			zap.Duration("fit_time", time.Since(start)))
	}
	return nil
}

// solve recomputes every row of x given the fixed factors y.
func (als *ALS) solve(ctx context.Context, x, y *mat.Dense, matrix *InteractionMatrix) error {
	nFactors := als.Factors
	// YᵀY + λI is shared by every row.
	gram := mat.NewSymDense(nFactors, nil)
	gram.SymOuterK(1, y.T())
	for k := 0; k < nFactors; k++ {
		gram.SetSym(k, k, gram.At(k, k)+als.Regularization)
	}
	nJobs := als.jobs()
	a := make([]*mat.SymDense, nJobs)
	b := make([]*mat.VecDense, nJobs)
	v := make([]*mat.VecDense, nJobs)
	for i := 0; i < nJobs; i++ {
		a[i] = mat.NewSymDense(nFactors, nil)
		b[i] = mat.NewVecDense(nFactors, nil)
		v[i] = mat.NewVecDense(nFactors, nil)
	}
	zeros := make([]float64, nFactors)
	return parallel.Parallel(ctx, int(matrix.NRows), nJobs, func(workerId, row int) error {
		indices := matrix.Row(int32(row))
		if len(indices) == 0 {
			x.SetRow(row, zeros)
			return nil
		}
		a[workerId].CopySym(gram)
		b[workerId].Zero()
		for _, j := range indices {
			yj := y.RowView(int(j))
			// Yᵀ(Cᵘ-I)Y
			a[workerId].SymRankOne(a[workerId], als.Alpha, yj)
			// YᵀCᵘp(u)
			b[workerId].AddScaledVec(b[workerId], 1+als.Alpha, yj)
		}
		if err := solveSym(v[workerId], a[workerId], b[workerId]); err != nil {
			return errors.Annotatef(err, "solve row %d", row)
		}
		x.SetRow(row, v[workerId].RawVector().Data)
		return nil
	})
}

// solveSym solves a·v = b by Cholesky and falls back to LU when a is not positive definite.
func solveSym(v *mat.VecDense, a *mat.SymDense, b *mat.VecDense) error {
	var chol mat.Cholesky
	if chol.Factorize(a) {
		return errors.Trace(chol.SolveVecTo(v, b))
	}
	return errors.Trace(v.SolveVec(a, b))
}

// Score returns the affinity between a user and an item.
func (als *ALS) Score(userIndex, itemIndex int32) float32 {
	return float32(floats.Dot(als.UserFactor.RawRowView(int(userIndex)), als.ItemFactor.RawRowView(int(itemIndex))))
}

// CountUsers returns the number of rows in the user factor.
func (als *ALS) CountUsers() int32 {
	if als.UserFactor == nil || als.UserFactor.IsEmpty() {
		return 0
	}
	n, _ := als.UserFactor.Dims()
	return int32(n)
}

// CountItems returns the number of rows in the item factor.
func (als *ALS) CountItems() int32 {
	if als.ItemFactor == nil || als.ItemFactor.IsEmpty() {
		return 0
	}
	n, _ := als.ItemFactor.Dims()
	return int32(n)
}

// Recommend returns the n items with the largest affinity, skipping items in history.
// Ties go to the lower item index.
func (als *ALS) Recommend(userIndex int32, history []int32, n int) ([]int32, []float32) {
	if userIndex < 0 || userIndex >= als.CountUsers() || n <= 0 {
		return nil, nil
	}
	nItems := als.CountItems()
	mask := bitset.New(uint(nItems))
	for _, i := range history {
		if i >= 0 && i < nItems {
			mask.Set(uint(i))
		}
	}
	userFactor := als.UserFactor.RawRowView(int(userIndex))
	filter := heap.NewTopKFilter[int32, float32](n)
	for i := int32(0); i < nItems; i++ {
		if !mask.Test(uint(i)) {
			filter.Push(i, float32(floats.Dot(userFactor, als.ItemFactor.RawRowView(int(i)))))
		}
	}
	elems := filter.PopAll()
	items := make([]int32, len(elems))
	scores := make([]float32, len(elems))
	for i, elem := range elems {
		items[i] = elem.Value
		scores[i] = elem.Weight
	}
	return items, scores
}

// Marshal model into byte stream.
func (als *ALS) Marshal(w io.Writer) error {
	if err := encoding.WriteGob(w, als.Params); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteDense(w, als.UserFactor); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(encoding.WriteDense(w, als.ItemFactor))
}

// Unmarshal model from byte stream.
func (als *ALS) Unmarshal(r io.Reader) error {
	if err := encoding.ReadGob(r, &als.Params); err != nil {
		return errors.Trace(err)
	}
	var err error
	if als.UserFactor, err = encoding.ReadDense(r); err != nil {
		return errors.Trace(err)
	}
	if als.ItemFactor, err = encoding.ReadDense(r); err != nil {
		return errors.Trace(err)
	}
	if _, uc := als.UserFactor.Dims(); uc != als.Factors {
		return errors.NotValidf("user factor with %d columns", uc)
	}
	if _, ic := als.ItemFactor.Dims(); ic != als.Factors {
		return errors.NotValidf("item factor with %d columns", ic)
	}
	return nil
}
