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

package server

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/gorse-io/tworank/config"
	"github.com/gorse-io/tworank/dataset"
	"github.com/gorse-io/tworank/model/cf"
	"github.com/gorse-io/tworank/model/ltr"
	"github.com/gorse-io/tworank/storage/artifact"
	"github.com/juju/errors"
)

// Recommendation is a ranked item ready for presentation.
type Recommendation struct {
	InternalId       int32  `json:"internal_id"`
	RawItemId        string `json:"raw_item_id"`
	PresentationLink string `json:"presentation_link"`
	ImageLink        string `json:"image_link"`
}

// State holds everything needed to serve recommendations. It is built once by
// LoadState and never modified afterwards, so it is safe for concurrent readers.
type State struct {
	userIndex *dataset.Index
	itemIndex *dataset.Index
	matrix    *cf.InteractionMatrix
	retrieval *cf.ALS
	ranker    *ltr.LambdaMART
	config    config.ServerConfig
}

// NewState assembles a state from loaded artifacts.
func NewState(userIndex, itemIndex *dataset.Index, matrix *cf.InteractionMatrix,
	retrieval *cf.ALS, ranker *ltr.LambdaMART, cfg config.ServerConfig) (*State, error) {
	if retrieval.CountUsers() != matrix.NRows || retrieval.CountItems() != matrix.NCols {
		return nil, errors.NotValidf("retrieval model of shape (%d, %d) with matrix of shape (%d, %d)",
			retrieval.CountUsers(), retrieval.CountItems(), matrix.NRows, matrix.NCols)
	}
	if ranker.NFeatures != ltr.NumFeatures {
		return nil, errors.NotValidf("ranker with %d features for %d served", ranker.NFeatures, ltr.NumFeatures)
	}
	if itemIndex.Len() != matrix.NCols {
		return nil, errors.NotValidf("%d items in index with %d columns in matrix", itemIndex.Len(), matrix.NCols)
	}
	return &State{
		userIndex: userIndex,
		itemIndex: itemIndex,
		matrix:    matrix,
		retrieval: retrieval,
		ranker:    ranker,
		config:    cfg,
	}, nil
}

// LoadState loads indices, the train matrix and both models from the artifact store.
func LoadState(ctx context.Context, cfg *config.Config, store *artifact.Store) (*State, error) {
	userIndex, err := store.LoadIndex(ctx, cfg.Data.ProcessedDataPath, artifact.UserIndex)
	if err != nil {
		return nil, errors.Trace(err)
	}
	itemIndex, err := store.LoadIndex(ctx, cfg.Data.ProcessedDataPath, artifact.ItemIndex)
	if err != nil {
		return nil, errors.Trace(err)
	}
	matrix, err := store.LoadMatrix(ctx, cfg.Retrieval.ArtifactPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	retrieval, err := store.LoadRetrievalModel(ctx, cfg.Retrieval.ArtifactPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ranker, err := store.LoadRanker(ctx, cfg.Ranking.ArtifactPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return NewState(userIndex, itemIndex, matrix, retrieval, ranker, cfg.Server)
}

// CountUsers returns the number of users the retrieval model knows.
func (s *State) CountUsers() int32 {
	return s.retrieval.CountUsers()
}

// Recommend retrieves candidates the user has not interacted with, reranks them and
// returns the best topK. topK is capped at the number of items.
func (s *State) Recommend(userIndex int32, topK int) ([]Recommendation, error) {
	if userIndex < 0 || userIndex >= s.retrieval.CountUsers() {
		return nil, errors.NotFoundf("user index %d out of range [0, %d)", userIndex, s.retrieval.CountUsers())
	}
	if topK <= 0 {
		return nil, errors.NotValidf("top k %d", topK)
	}
	topK = min(topK, int(s.retrieval.CountItems()))
	n := max(s.config.NCandidates, topK+1)
	candidates, affinities := s.retrieval.Recommend(userIndex, s.matrix.Row(userIndex), n)

	type scored struct {
		item  int32
		score float32
	}
	ranked := make([]scored, len(candidates))
	for i, item := range candidates {
		ranked[i] = scored{item: item, score: s.ranker.Predict([]float32{affinities[i]})}
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})
	ranked = ranked[:min(topK, len(ranked))]

	recommendations := make([]Recommendation, len(ranked))
	for i, r := range ranked {
		rawId := s.itemIndex.ToName(r.item)
		recommendations[i] = Recommendation{
			InternalId:       r.item,
			RawItemId:        rawId,
			PresentationLink: fmt.Sprintf(s.config.LinkTemplate, rawId),
			ImageLink:        s.imageLink(rawId),
		}
	}
	return recommendations, nil
}

func (s *State) imageLink(rawId string) string {
	if rawId == dataset.UnknownName || s.config.ImageTemplate == "" {
		return s.config.PlaceholderImage
	}
	return fmt.Sprintf(s.config.ImageTemplate, rawId)
}
