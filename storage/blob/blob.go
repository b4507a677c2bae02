// Copyright 2025 gorse Project Authors
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

package blob

import (
	"context"
	"io"

	"github.com/gorse-io/tworank/config"
	"github.com/juju/errors"
)

// Store keeps named binary artifacts.
type Store interface {
	// Open a blob for reading. It returns errors.NotFound if the blob does not exist.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Put writes a complete blob. Readers never observe a partially written blob.
	Put(ctx context.Context, name string, data []byte) error
	// List names of all blobs.
	List(ctx context.Context) ([]string, error)
	// Remove a blob.
	Remove(ctx context.Context, name string) error
}

// Open creates the store selected by the configuration.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case config.StoragePOSIX, "":
		return NewPOSIX(cfg.Dir), nil
	case config.StorageS3:
		return NewS3(cfg.S3)
	case config.StorageGCS:
		return NewGCS(cfg.GCS)
	case config.StorageAzure:
		return NewAzureBlob(cfg.Azure)
	default:
		return nil, errors.NotSupportedf("storage type %s", cfg.Type)
	}
}
