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

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/tworank/base/log"
	"github.com/gorse-io/tworank/common/parallel"
	"github.com/gorse-io/tworank/dataset"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// RecallResult is the micro-averaged recall over all evaluated users.
type RecallResult struct {
	Hits    int
	Targets int
	Recall  float64
	Users   int
}

// GroundTruth groups held-out items by user.
func GroundTruth(test dataset.Table) map[int32][]int32 {
	return test.GroupByUser()
}

// EvaluateRecall computes global recall@k = Σ hits / Σ |targets|. Candidates are retrieved
// with the user's training items masked. Users beyond the model are skipped.
func EvaluateRecall(ctx context.Context, als *ALS, matrix *InteractionMatrix, groundTruth map[int32][]int32, k int) (RecallResult, error) {
	users := lo.Filter(lo.Keys(groundTruth), func(u int32, _ int) bool {
		return u >= 0 && u < als.CountUsers()
	})
	hits := make([]int, len(users))
	err := parallel.Parallel(ctx, len(users), als.jobs(), func(_, jobId int) error {
		userIndex := users[jobId]
		candidates, _ := als.Recommend(userIndex, matrix.Row(userIndex), k)
		hits[jobId] = mapset.NewThreadUnsafeSet(groundTruth[userIndex]...).
			Intersect(mapset.NewThreadUnsafeSet(candidates...)).Cardinality()
		return nil
	})
	if err != nil {
		return RecallResult{}, errors.Trace(err)
	}
	result := RecallResult{Hits: lo.Sum(hits), Users: len(users)}
	for _, userIndex := range users {
		result.Targets += len(groundTruth[userIndex])
	}
	if result.Targets > 0 {
		result.Recall = float64(result.Hits) / float64(result.Targets)
	}
	log.Logger().Info("evaluate retrieval",
		zap.Int("k", k),
		zap.Int("n_users", result.Users),
		zap.Int("hits", result.Hits),
		zap.Int("targets", result.Targets),
		zap.Float64("global_recall", result.Recall))
	return result, nil
}
