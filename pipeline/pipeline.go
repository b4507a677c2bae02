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

package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/gorse-io/tworank/base"
	"github.com/gorse-io/tworank/base/log"
	"github.com/gorse-io/tworank/config"
	"github.com/gorse-io/tworank/dataset"
	"github.com/gorse-io/tworank/model/cf"
	"github.com/gorse-io/tworank/model/ltr"
	"github.com/gorse-io/tworank/storage/artifact"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	StageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tworank",
		Subsystem: "pipeline",
		Name:      "stage_seconds",
	}, []string{"stage"})
	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tworank",
		Subsystem: "pipeline",
		Name:      "stage_failures_total",
	}, []string{"stage"})
)

// Pipeline runs the offline stages. Stages exchange data only through the artifact store.
type Pipeline struct {
	Config *config.Config
	Store  *artifact.Store
}

func NewPipeline(cfg *config.Config, store *artifact.Store) *Pipeline {
	return &Pipeline{Config: cfg, Store: store}
}

// PreprocessResult summarizes encoding and splitting.
type PreprocessResult struct {
	NumRecords   int
	NumPositives int
	NumUsers     int32
	NumItems     int32
	NumTrain     int
	NumTest      int
	NumColdStart int
	Cutoff       int64
}

func (p *Pipeline) stage(name string, run func() error) error {
	start := time.Now()
	log.Logger().Info("start stage", zap.String("stage", name))
	if err := run(); err != nil {
		StageFailures.WithLabelValues(name).Inc()
		log.Logger().Error("stage failed", zap.String("stage", name), zap.Error(err))
		return errors.Trace(err)
	}
	StageSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
	log.Logger().Info("complete stage", zap.String("stage", name), zap.Duration("duration", time.Since(start)))
	return nil
}

// commit saves the outputs of a stage in one batch. Either all of them replace the
// previous versions or none do.
func (p *Pipeline) commit(ctx context.Context, prefix string, save func(batch *artifact.Batch) error) error {
	batch := p.Store.Begin(prefix)
	if err := save(batch); err != nil {
		batch.Abort(ctx)
		return errors.Trace(err)
	}
	if err := batch.Commit(ctx); err != nil {
		batch.Abort(ctx)
		return errors.Trace(err)
	}
	return nil
}

// Preprocess encodes raw records and splits them by time. Artifacts are written only
// after encoding and splitting both succeed.
func (p *Pipeline) Preprocess(ctx context.Context, raw io.Reader) (*PreprocessResult, error) {
	var result PreprocessResult
	err := p.stage("preprocess", func() error {
		records, err := dataset.LoadRecords(raw, p.Config.Data.FieldMap)
		if err != nil {
			return errors.Trace(err)
		}
		encoded, err := dataset.Encode(records, p.Config.Data.MinRating)
		if err != nil {
			return errors.Trace(err)
		}
		split, err := dataset.SplitByTime(encoded.Table, p.Config.Data.TestDays)
		if err != nil {
			return errors.Trace(err)
		}
		result = PreprocessResult{
			NumRecords:   len(records),
			NumPositives: len(encoded.Table),
			NumUsers:     encoded.UserIndex.Len(),
			NumItems:     encoded.ItemIndex.Len(),
			NumTrain:     len(split.Train),
			NumTest:      len(split.Test),
			NumColdStart: split.ColdStart,
			Cutoff:       split.Cutoff,
		}
		log.Logger().Info("split dataset",
			zap.Int("n_records", result.NumRecords),
			zap.Int("n_positives", result.NumPositives),
			zap.Int32("n_users", result.NumUsers),
			zap.Int32("n_items", result.NumItems),
			zap.Int64("cutoff", result.Cutoff),
			zap.Int("n_train", result.NumTrain),
			zap.Int("n_test", result.NumTest),
			zap.Int("n_cold_start", result.NumColdStart))
		return p.commit(ctx, p.Config.Data.ProcessedDataPath, func(batch *artifact.Batch) error {
			if err := batch.SaveIndex(ctx, artifact.UserIndex, encoded.UserIndex); err != nil {
				return errors.Trace(err)
			}
			if err := batch.SaveIndex(ctx, artifact.ItemIndex, encoded.ItemIndex); err != nil {
				return errors.Trace(err)
			}
			if err := batch.SaveTable(ctx, artifact.Train, split.Train); err != nil {
				return errors.Trace(err)
			}
			return errors.Trace(batch.SaveTable(ctx, artifact.Test, split.Test))
		})
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &result, nil
}

// TrainRetrieval fits ALS on the train table and saves the model with the train matrix.
func (p *Pipeline) TrainRetrieval(ctx context.Context) (*cf.ALS, error) {
	var model *cf.ALS
	err := p.stage("train_retrieval", func() error {
		dataPrefix := p.Config.Data.ProcessedDataPath
		userIndex, err := p.Store.LoadIndex(ctx, dataPrefix, artifact.UserIndex)
		if err != nil {
			return errors.Trace(err)
		}
		itemIndex, err := p.Store.LoadIndex(ctx, dataPrefix, artifact.ItemIndex)
		if err != nil {
			return errors.Trace(err)
		}
		train, err := p.Store.LoadTable(ctx, dataPrefix, artifact.Train)
		if err != nil {
			return errors.Trace(err)
		}
		if len(train) == 0 {
			return errors.NotValidf("empty train set")
		}
		matrix, err := cf.NewInteractionMatrix(train, userIndex.Len(), itemIndex.Len())
		if err != nil {
			return errors.Trace(err)
		}
		model = cf.NewALS(p.Config.Retrieval.Params)
		if err = model.Fit(ctx, matrix); err != nil {
			return errors.Trace(err)
		}
		return p.commit(ctx, p.Config.Retrieval.ArtifactPath, func(batch *artifact.Batch) error {
			if err := batch.SaveMatrix(ctx, matrix); err != nil {
				return errors.Trace(err)
			}
			return errors.Trace(batch.SaveRetrievalModel(ctx, model))
		})
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return model, nil
}

// TrainRanker synthesizes samples from the train table and fits LambdaMART on them.
func (p *Pipeline) TrainRanker(ctx context.Context) (*ltr.LambdaMART, error) {
	var ranker *ltr.LambdaMART
	err := p.stage("train_ranker", func() error {
		train, err := p.Store.LoadTable(ctx, p.Config.Data.ProcessedDataPath, artifact.Train)
		if err != nil {
			return errors.Trace(err)
		}
		model, err := p.Store.LoadRetrievalModel(ctx, p.Config.Retrieval.ArtifactPath)
		if err != nil {
			return errors.Trace(err)
		}
		rng := base.NewRandomGenerator(p.Config.Ranking.Seed)
		samples, err := ltr.Synthesize(ctx, train, model.UserFactor, model.ItemFactor,
			p.Config.Ranking.NNegatives, rng, p.Config.Ranking.Jobs)
		if err != nil {
			return errors.Trace(err)
		}
		ltr.SortByUser(samples)
		groups := ltr.GroupSizes(samples)
		log.Logger().Info("synthesize samples",
			zap.Int("n_samples", len(samples)),
			zap.Int("n_groups", len(groups)),
			zap.Int("n_negatives", p.Config.Ranking.NNegatives))
		ranker = ltr.NewLambdaMART(p.Config.Ranking.Params)
		if err = ranker.Fit(ctx, samples, groups); err != nil {
			return errors.Trace(err)
		}
		return p.commit(ctx, p.Config.Ranking.ArtifactPath, func(batch *artifact.Batch) error {
			return errors.Trace(batch.SaveRanker(ctx, ranker))
		})
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return ranker, nil
}

// Evaluate computes global recall@k of the retrieval model on the test table.
func (p *Pipeline) Evaluate(ctx context.Context, k int) (cf.RecallResult, error) {
	var result cf.RecallResult
	err := p.stage("evaluate", func() error {
		if k <= 0 {
			return errors.NotValidf("k %d", k)
		}
		test, err := p.Store.LoadTable(ctx, p.Config.Data.ProcessedDataPath, artifact.Test)
		if err != nil {
			return errors.Trace(err)
		}
		model, err := p.Store.LoadRetrievalModel(ctx, p.Config.Retrieval.ArtifactPath)
		if err != nil {
			return errors.Trace(err)
		}
		matrix, err := p.Store.LoadMatrix(ctx, p.Config.Retrieval.ArtifactPath)
		if err != nil {
			return errors.Trace(err)
		}
		result, err = cf.EvaluateRecall(ctx, model, matrix, cf.GroundTruth(test), k)
		if err != nil {
			return errors.Trace(err)
		}
		log.Logger().Sugar().Infof("Global Recall@%d: %.4f", k, result.Recall)
		return nil
	})
	return result, errors.Trace(err)
}

// RunAll runs every stage in order and stops at the first failure.
func (p *Pipeline) RunAll(ctx context.Context, raw io.Reader) (cf.RecallResult, error) {
	if _, err := p.Preprocess(ctx, raw); err != nil {
		return cf.RecallResult{}, errors.Trace(err)
	}
	if _, err := p.TrainRetrieval(ctx); err != nil {
		return cf.RecallResult{}, errors.Trace(err)
	}
	if _, err := p.TrainRanker(ctx); err != nil {
		return cf.RecallResult{}, errors.Trace(err)
	}
	return p.Evaluate(ctx, p.Config.Evaluation.K)
}
