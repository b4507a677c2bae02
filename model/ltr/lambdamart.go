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
	"io"
	"slices"
	"time"

	"github.com/chewxy/math32"
	"github.com/gorse-io/tworank/base"
	"github.com/gorse-io/tworank/base/encoding"
	"github.com/gorse-io/tworank/base/log"
	"github.com/gorse-io/tworank/common/parallel"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Params are the hyper-parameters of LambdaMART.
type Params struct {
	NEstimators     int     `mapstructure:"n_estimators" validate:"gt=0"`
	LearningRate    float32 `mapstructure:"learning_rate" validate:"gt=0"`
	NumLeaves       int     `mapstructure:"num_leaves" validate:"gte=2"`
	MinDataInLeaf   int     `mapstructure:"min_data_in_leaf" validate:"gte=1"`
	BaggingFraction float32 `mapstructure:"bagging_fraction" validate:"gt=0,lte=1"`
	TruncationLevel int     `mapstructure:"truncation_level" validate:"gte=0"`
	Seed            int64   `mapstructure:"seed"`
	Verbose         int     `mapstructure:"verbose" validate:"gte=0"`
	Jobs            int     `mapstructure:"jobs" validate:"gte=0"`
}

// DefaultParams returns the default LambdaMART hyper-parameters.
func DefaultParams() Params {
	return Params{
		NEstimators:     100,
		LearningRate:    0.05,
		NumLeaves:       31,
		MinDataInLeaf:   20,
		BaggingFraction: 1,
		TruncationLevel: 30,
		Seed:            42,
		Verbose:         10,
	}
}

// sigma is the steepness of the pairwise logistic loss.
const sigma = 1

// LambdaMART is an ensemble of regression trees fitted on lambdarank gradients [Burges, 2010].
type LambdaMART struct {
	Params
	Trees     []*Tree
	NFeatures int
}

// NewLambdaMART creates a LambdaMART ranker.
func NewLambdaMART(params Params) *LambdaMART {
	return &LambdaMART{Params: params}
}

// Fit trains the ranker. samples must be grouped so that groups[k] consecutive rows form
// the k-th query.
func (m *LambdaMART) Fit(ctx context.Context, samples []Sample, groups []int) error {
	if len(samples) == 0 {
		return errors.NotValidf("empty training samples")
	}
	if lo.Sum(groups) != len(samples) {
		return errors.NotValidf("groups summing to %d for %d samples", lo.Sum(groups), len(samples))
	}
	m.NFeatures = len(samples[0].Features)
	features := make([][]float32, len(samples))
	labels := make([]int, len(samples))
	for i, sample := range samples {
		if len(sample.Features) != m.NFeatures {
			return errors.NotValidf("sample %d with %d features", i, len(sample.Features))
		}
		features[i] = sample.Features
		labels[i] = sample.Label
	}
	offsets := make([]int, len(groups)+1)
	for i, size := range groups {
		offsets[i+1] = offsets[i] + size
	}
	log.Logger().Info("fit lambdamart",
		zap.Int("n_samples", len(samples)),
		zap.Int("n_groups", len(groups)),
		zap.Int("n_features", m.NFeatures),
		zap.Int("n_estimators", m.NEstimators),
		zap.Float32("learning_rate", m.LearningRate),
		zap.Int("num_leaves", m.NumLeaves),
		zap.Int("min_data_in_leaf", m.MinDataInLeaf))

	builder := &treeBuilder{
		features:      features,
		gradients:     make([]float32, len(samples)),
		hessians:      make([]float32, len(samples)),
		numLeaves:     max(m.NumLeaves, 2),
		minDataInLeaf: max(m.MinDataInLeaf, 1),
		shrinkage:     m.LearningRate,
	}
	rng := base.NewRandomGenerator(m.Seed)
	scores := make([]float32, len(samples))
	allRows := lo.Range(len(samples))
	m.Trees = nil
	for it := 1; it <= m.NEstimators; it++ {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		start := time.Now()
		err := parallel.Parallel(ctx, len(groups), m.Jobs, func(_, g int) error {
			begin, end := offsets[g], offsets[g+1]
			lambdaGradients(labels[begin:end], scores[begin:end],
				builder.gradients[begin:end], builder.hessians[begin:end], m.TruncationLevel)
			return nil
		})
		if err != nil {
			return errors.Trace(err)
		}
		rows := allRows
		if m.BaggingFraction > 0 && m.BaggingFraction < 1 {
			rows = lo.Filter(allRows, func(_ int, _ int) bool {
				return rng.Float32() < m.BaggingFraction
			})
		}
		if len(rows) == 0 {
			rows = allRows
		}
		tree := builder.build(rows)
		m.Trees = append(m.Trees, tree)
		for i := range scores {
			scores[i] += tree.Predict(features[i])
		}
		if m.Verbose > 0 && (it%m.Verbose == 0 || it == m.NEstimators) {
			log.Logger().Info("fit lambdamart",
				zap.Int("n_trees", it),
				zap.Int("n_leaves", tree.NumLeaves()),
				zap.Float32("train_ndcg", meanNDCG(labels, scores, offsets)),
				zap.Duration("fit_time", time.Since(start)))
		}
	}
	return nil
}

// lambdaGradients fills the gradients and hessians of one query group for the
// lambdarank objective with NDCG as the target metric. Only pairs with at least one
// element in the top truncation positions contribute; truncation <= 0 keeps all pairs.
func lambdaGradients(labels []int, scores, gradients, hessians []float32, truncation int) {
	clear(gradients)
	clear(hessians)
	maxDCG := idealDCG(labels)
	if maxDCG == 0 {
		return
	}
	order := rankOrder(scores)
	ranks := make([]int, len(order))
	for rank, i := range order {
		ranks[i] = rank
	}
	top := len(order)
	if truncation > 0 {
		top = min(truncation, top)
	}
	for a := 0; a < top; a++ {
		for b := a + 1; b < len(order); b++ {
			i, j := order[a], order[b]
			if labels[i] == labels[j] {
				continue
			}
			if labels[i] < labels[j] {
				i, j = j, i
			}
			// i should be ranked above j
			deltaNDCG := math32.Abs((gain(labels[i])-gain(labels[j]))*
				(discount(ranks[i])-discount(ranks[j]))) / maxDCG
			rho := 1 / (1 + math32.Exp(sigma*(scores[i]-scores[j])))
			lambda := sigma * rho * deltaNDCG
			hessian := sigma * sigma * rho * (1 - rho) * deltaNDCG
			gradients[i] -= lambda
			gradients[j] += lambda
			hessians[i] += hessian
			hessians[j] += hessian
		}
	}
}

func gain(label int) float32 {
	return math32.Pow(2, float32(label)) - 1
}

// discount of a zero-based rank.
func discount(rank int) float32 {
	return 1 / math32.Log2(float32(rank)+2)
}

// rankOf returns the zero-based position of each element when sorted by descending score.
func rankOf(scores []float32) []int {
	ranks := make([]int, len(scores))
	for rank, i := range rankOrder(scores) {
		ranks[i] = rank
	}
	return ranks
}

// rankOrder returns element indices by descending score. Ties keep input order.
func rankOrder(scores []float32) []int {
	order := lo.Range(len(scores))
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case scores[a] > scores[b]:
			return -1
		case scores[a] < scores[b]:
			return 1
		default:
			return 0
		}
	})
	return order
}

func idealDCG(labels []int) float32 {
	sorted := slices.Clone(labels)
	slices.SortFunc(sorted, func(a, b int) int { return b - a })
	var dcg float32
	for rank, label := range sorted {
		dcg += gain(label) * discount(rank)
	}
	return dcg
}

// NDCG of a ranked list. Ties in score keep input order. Lists without positives score 0.
func NDCG(labels []int, scores []float32) float32 {
	maxDCG := idealDCG(labels)
	if maxDCG == 0 {
		return 0
	}
	ranks := rankOf(scores)
	var dcg float32
	for i, label := range labels {
		dcg += gain(label) * discount(ranks[i])
	}
	return dcg / maxDCG
}

func meanNDCG(labels []int, scores []float32, offsets []int) float32 {
	var sum float32
	count := 0
	for g := 0; g+1 < len(offsets); g++ {
		begin, end := offsets[g], offsets[g+1]
		if idealDCG(labels[begin:end]) == 0 {
			continue
		}
		sum += NDCG(labels[begin:end], scores[begin:end])
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float32(count)
}

// Predict scores one feature vector.
func (m *LambdaMART) Predict(features []float32) float32 {
	var score float32
	for _, tree := range m.Trees {
		score += tree.Predict(features)
	}
	return score
}

// PredictBatch scores many feature vectors.
func (m *LambdaMART) PredictBatch(features [][]float32) []float32 {
	return lo.Map(features, func(x []float32, _ int) float32 {
		return m.Predict(x)
	})
}

// Marshal model into byte stream.
func (m *LambdaMART) Marshal(w io.Writer) error {
	return errors.Trace(encoding.WriteGob(w, m))
}

// Unmarshal model from byte stream.
func (m *LambdaMART) Unmarshal(r io.Reader) error {
	if err := encoding.ReadGob(r, m); err != nil {
		return errors.Trace(err)
	}
	for _, tree := range m.Trees {
		for _, node := range tree.Nodes {
			if node.Feature >= m.NFeatures || (node.Feature >= 0 && (node.Left >= len(tree.Nodes) || node.Right >= len(tree.Nodes))) {
				return errors.NotValidf("tree node %+v", node)
			}
		}
	}
	return nil
}
