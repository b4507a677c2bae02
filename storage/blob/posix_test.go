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
	"os"
	"path"
	"testing"

	"github.com/gorse-io/tworank/config"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestPOSIX(t *testing.T) {
	ctx := context.Background()
	dir := path.Join(t.TempDir(), "blob")
	client := NewPOSIX(dir)

	// missing file
	_, err := client.Open(ctx, "test")
	assert.True(t, errors.Is(err, errors.NotFound))
	names, err := client.List(ctx)
	assert.NoError(t, err)
	assert.Empty(t, names)

	// write a file
	assert.NoError(t, client.Put(ctx, "models/test", []byte("hello world")))
	assert.NoError(t, client.Put(ctx, "models/test", []byte("hello tworank")))

	// read the file
	r, err := client.Open(ctx, "models/test")
	assert.NoError(t, err)
	content, err := io.ReadAll(r)
	assert.NoError(t, err)
	assert.Equal(t, "hello tworank", string(content))
	assert.NoError(t, r.Close())

	// no temp files left behind
	entries, err := os.ReadDir(path.Join(dir, "models"))
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	names, err = client.List(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"models/test"}, names)

	// remove the file
	assert.NoError(t, client.Remove(ctx, "models/test"))
	assert.True(t, errors.Is(client.Remove(ctx, "models/test"), errors.NotFound))
}

func TestOpen(t *testing.T) {
	store, err := Open(config.StorageConfig{Type: config.StoragePOSIX, Dir: t.TempDir()})
	assert.NoError(t, err)
	assert.IsType(t, &POSIX{}, store)
	_, err = Open(config.StorageConfig{Type: "ftp"})
	assert.True(t, errors.Is(err, errors.NotSupported))
	_, err = Open(config.StorageConfig{Type: config.StorageAzure})
	assert.True(t, errors.Is(err, errors.NotValid))
}
