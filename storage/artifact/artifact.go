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
	"bufio"
	"bytes"
	"context"
	"io"
	"path"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorse-io/tworank/base/log"
	"github.com/gorse-io/tworank/storage/blob"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Names of the artifacts passed between stages.
const (
	UserIndex         = "user_index"
	ItemIndex         = "item_index"
	Train             = "train"
	Test              = "test"
	InteractionMatrix = "interaction_matrix"
	RetrievalModel    = "retrieval_model"
	RankerModel       = "ranker_model"
)

const (
	// ManifestName is the blob below a prefix recording committed generations.
	ManifestName = "manifest.json"
	// GenerationDir holds one directory per batch below a prefix.
	GenerationDir = "generations"
)

var (
	BytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tworank",
		Subsystem: "artifact",
		Name:      "bytes_written_total",
	}, []string{"artifact"})
	LoadSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tworank",
		Subsystem: "artifact",
		Name:      "load_seconds",
	}, []string{"artifact"})
	CommitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tworank",
		Subsystem: "artifact",
		Name:      "commits_total",
	})
)

// Store encodes artifacts into a blob store under a prefix. Artifacts are written into
// generations and become visible only when the manifest of the prefix references them.
type Store struct {
	blob.Store
}

func NewStore(store blob.Store) *Store {
	return &Store{Store: store}
}

// Manifest maps artifact names to the generations holding their current version.
type Manifest struct {
	Artifacts map[string]string `json:"artifacts"`
	Updated   time.Time         `json:"updated"`
}

func manifestName(prefix string) string {
	return path.Join(prefix, ManifestName)
}

func generationName(prefix, generation, name string) string {
	return path.Join(prefix, GenerationDir, generation, name)
}

// ReadManifest returns the manifest of a prefix. A prefix never committed has an empty manifest.
func (s *Store) ReadManifest(ctx context.Context, prefix string) (*Manifest, error) {
	manifest := &Manifest{Artifacts: make(map[string]string)}
	r, err := s.Open(ctx, manifestName(prefix))
	if errors.Is(err, errors.NotFound) {
		return manifest, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close()
	if err = json.NewDecoder(r).Decode(manifest); err != nil {
		return nil, errors.Annotatef(err, "decode %s", manifestName(prefix))
	}
	if manifest.Artifacts == nil {
		manifest.Artifacts = make(map[string]string)
	}
	return manifest, nil
}

// Save writes a single artifact and commits it immediately.
func (s *Store) Save(ctx context.Context, prefix, name string, encode func(w io.Writer) error) error {
	batch := s.Begin(prefix)
	if err := batch.Save(ctx, name, encode); err != nil {
		batch.Abort(ctx)
		return errors.Trace(err)
	}
	if err := batch.Commit(ctx); err != nil {
		batch.Abort(ctx)
		return errors.Trace(err)
	}
	return nil
}

// Load decodes the committed version of an artifact. A missing artifact yields errors.NotFound.
func (s *Store) Load(ctx context.Context, prefix, name string, decode func(r io.Reader) error) error {
	start := time.Now()
	r, fullName, err := s.open(ctx, prefix, name)
	if errors.Is(err, errors.NotFound) {
		// the generation may have been collected by a concurrent commit
		r, fullName, err = s.open(ctx, prefix, name)
	}
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Logger().Warn("failed to close artifact", zap.String("name", fullName), zap.Error(err))
		}
	}()
	if err = decode(bufio.NewReader(r)); err != nil {
		return errors.Annotatef(err, "decode %s", fullName)
	}
	LoadSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return nil
}

func (s *Store) open(ctx context.Context, prefix, name string) (io.ReadCloser, string, error) {
	manifest, err := s.ReadManifest(ctx, prefix)
	if err != nil {
		return nil, "", errors.Trace(err)
	}
	generation, ok := manifest.Artifacts[name]
	if !ok {
		return nil, "", errors.NotFoundf("artifact %s", path.Join(prefix, name))
	}
	fullName := generationName(prefix, generation, name)
	r, err := s.Open(ctx, fullName)
	if errors.Is(err, errors.NotFound) {
		return nil, fullName, errors.NewNotFound(err, "artifact "+path.Join(prefix, name))
	}
	return r, fullName, errors.Trace(err)
}

// Batch stages artifacts in a fresh generation. None of them is visible to Load until
// Commit rewrites the manifest.
type Batch struct {
	store      *Store
	prefix     string
	generation string
	names      []string
}

// Begin a batch of artifacts under a prefix.
func (s *Store) Begin(prefix string) *Batch {
	return &Batch{
		store:      s,
		prefix:     prefix,
		generation: uuid.NewString(),
	}
}

// Generation is the identifier of the directory the batch writes into.
func (b *Batch) Generation() string {
	return b.generation
}

// Save encodes an artifact fully in memory before writing it into the generation.
func (b *Batch) Save(ctx context.Context, name string, encode func(w io.Writer) error) error {
	buf := bytes.NewBuffer(nil)
	if err := encode(buf); err != nil {
		return errors.Annotatef(err, "encode %s", name)
	}
	fullName := generationName(b.prefix, b.generation, name)
	if err := b.store.Put(ctx, fullName, buf.Bytes()); err != nil {
		return errors.Annotatef(err, "save %s", fullName)
	}
	b.names = append(b.names, name)
	BytesWritten.WithLabelValues(name).Add(float64(buf.Len()))
	log.Logger().Info("save artifact", zap.String("name", fullName), zap.Int("bytes", buf.Len()))
	return nil
}

// Commit switches every artifact saved in the batch into place with a single manifest write.
// Generations superseded by the commit are removed afterwards.
func (b *Batch) Commit(ctx context.Context) error {
	if len(b.names) == 0 {
		return nil
	}
	manifest, err := b.store.ReadManifest(ctx, b.prefix)
	if err != nil {
		return errors.Trace(err)
	}
	superseded := make(map[string]string)
	for _, name := range b.names {
		if previous, ok := manifest.Artifacts[name]; ok && previous != b.generation {
			superseded[name] = previous
		}
		manifest.Artifacts[name] = b.generation
	}
	manifest.Updated = time.Now().UTC()
	data, err := json.Marshal(manifest)
	if err != nil {
		return errors.Trace(err)
	}
	if err = b.store.Put(ctx, manifestName(b.prefix), data); err != nil {
		return errors.Annotatef(err, "commit %s", manifestName(b.prefix))
	}
	CommitsTotal.Inc()
	log.Logger().Info("commit artifacts", zap.String("prefix", b.prefix),
		zap.String("generation", b.generation), zap.Strings("names", b.names))
	for name, generation := range superseded {
		b.remove(ctx, generationName(b.prefix, generation, name))
	}
	b.names = nil
	return nil
}

// Abort removes the artifacts written by an uncommitted batch.
func (b *Batch) Abort(ctx context.Context) {
	for _, name := range b.names {
		b.remove(ctx, generationName(b.prefix, b.generation, name))
	}
	b.names = nil
}

func (b *Batch) remove(ctx context.Context, fullName string) {
	if err := b.store.Remove(ctx, fullName); err != nil && !errors.Is(err, errors.NotFound) {
		log.Logger().Warn("failed to remove artifact", zap.String("name", fullName), zap.Error(err))
	}
}
