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

package artifact

import (
	"context"
	"io"

	"github.com/gorse-io/tworank/dataset"
	"github.com/gorse-io/tworank/model/cf"
	"github.com/gorse-io/tworank/model/ltr"
	"github.com/juju/errors"
)

func (b *Batch) SaveIndex(ctx context.Context, name string, index *dataset.Index) error {
	return b.Save(ctx, name, index.Marshal)
}

func (s *Store) LoadIndex(ctx context.Context, prefix, name string) (*dataset.Index, error) {
	index := new(dataset.Index)
	if err := s.Load(ctx, prefix, name, index.Unmarshal); err != nil {
		return nil, errors.Trace(err)
	}
	return index, nil
}

func (b *Batch) SaveTable(ctx context.Context, name string, table dataset.Table) error {
	return b.Save(ctx, name, table.Marshal)
}

func (s *Store) LoadTable(ctx context.Context, prefix, name string) (dataset.Table, error) {
	var table dataset.Table
	err := s.Load(ctx, prefix, name, func(r io.Reader) error {
		var err error
		table, err = dataset.UnmarshalTable(r)
		return err
	})
	return table, errors.Trace(err)
}

func (b *Batch) SaveMatrix(ctx context.Context, matrix *cf.InteractionMatrix) error {
	return b.Save(ctx, InteractionMatrix, matrix.Marshal)
}

func (s *Store) LoadMatrix(ctx context.Context, prefix string) (*cf.InteractionMatrix, error) {
	var matrix *cf.InteractionMatrix
	err := s.Load(ctx, prefix, InteractionMatrix, func(r io.Reader) error {
		var err error
		matrix, err = cf.UnmarshalInteractionMatrix(r)
		return err
	})
	return matrix, errors.Trace(err)
}

func (b *Batch) SaveRetrievalModel(ctx context.Context, model *cf.ALS) error {
	return b.Save(ctx, RetrievalModel, model.Marshal)
}

func (s *Store) LoadRetrievalModel(ctx context.Context, prefix string) (*cf.ALS, error) {
	model := new(cf.ALS)
	if err := s.Load(ctx, prefix, RetrievalModel, model.Unmarshal); err != nil {
		return nil, errors.Trace(err)
	}
	return model, nil
}

func (b *Batch) SaveRanker(ctx context.Context, model *ltr.LambdaMART) error {
	return b.Save(ctx, RankerModel, model.Marshal)
}

func (s *Store) LoadRanker(ctx context.Context, prefix string) (*ltr.LambdaMART, error) {
	model := new(ltr.LambdaMART)
	if err := s.Load(ctx, prefix, RankerModel, model.Unmarshal); err != nil {
		return nil, errors.Trace(err)
	}
	return model, nil
}
