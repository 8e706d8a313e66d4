// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/spindle/pkg/types"
)

func TestFSStoreFetchBytes(t *testing.T) {
	dir := t.TempDir()
	content := []byte("department,salary\nEngineering,50000\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "upload-1.csv"), content, 0o600))

	store, err := NewFSStore(dir)
	require.NoError(t, err)

	data, err := store.FetchBytes(context.Background(), "upload-1.csv")
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestFSStoreNotFound(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.FetchBytes(context.Background(), "missing.csv")
	require.Error(t, err)
	var nf *types.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "missing.csv", nf.Ref)
}

func TestFSStoreRefusesTraversal(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(filepath.Dir(dir), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("nope"), 0o600))
	t.Cleanup(func() { _ = os.Remove(outside) })

	store, err := NewFSStore(dir)
	require.NoError(t, err)

	_, err = store.FetchBytes(context.Background(), "../secret.txt")
	var nf *types.NotFoundError
	require.True(t, errors.As(err, &nf))
}

func TestFSStoreEmptyRef(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.FetchBytes(context.Background(), "  ")
	var nf *types.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestFSStoreCancelledContext(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.FetchBytes(ctx, "anything.csv")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewMinioStoreValidation(t *testing.T) {
	_, err := NewMinioStore(MinioConfig{Bucket: "b"})
	assert.Error(t, err)

	_, err = NewMinioStore(MinioConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	store, err := NewMinioStore(MinioConfig{Endpoint: "localhost:9000", Bucket: "uploads"})
	require.NoError(t, err)
	assert.Equal(t, int64(512<<20), store.maxObjectSize)
}
