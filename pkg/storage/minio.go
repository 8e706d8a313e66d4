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
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/teradata-labs/spindle/pkg/types"
)

// MinioStore serves file references from an S3-compatible bucket. The file
// reference is the object key.
type MinioStore struct {
	client *minio.Client
	bucket string
	logger *zap.Logger

	// maxObjectSize guards against fetching objects far beyond anything
	// the materializer could accept.
	maxObjectSize int64
}

// MinioConfig holds configuration for the S3-compatible store.
type MinioConfig struct {
	// Endpoint is the host:port of the S3-compatible service.
	Endpoint string

	// AccessKeyID and SecretAccessKey authenticate the client.
	AccessKeyID     string
	SecretAccessKey string

	// UseSSL enables TLS to the endpoint.
	UseSSL bool

	// Bucket holding uploaded files.
	Bucket string

	// MaxObjectSize caps fetched object size in bytes. Default: 512 MiB.
	MaxObjectSize int64

	// Logger for store operations.
	Logger *zap.Logger
}

// NewMinioStore creates an S3-compatible object store.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("Endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("Bucket is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxObjectSize == 0 {
		cfg.MaxObjectSize = 512 << 20
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	return &MinioStore{
		client:        client,
		bucket:        cfg.Bucket,
		logger:        cfg.Logger,
		maxObjectSize: cfg.MaxObjectSize,
	}, nil
}

// FetchBytes downloads the object named by ref.
func (s *MinioStore) FetchBytes(ctx context.Context, ref string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapErr(ref, err)
	}
	defer obj.Close()

	// GetObject is lazy; Stat surfaces missing-key errors before the read.
	info, err := obj.Stat()
	if err != nil {
		return nil, s.mapErr(ref, err)
	}
	if info.Size > s.maxObjectSize {
		return nil, fmt.Errorf("object %s is %d bytes, over the %d byte fetch limit", ref, info.Size, s.maxObjectSize)
	}

	data, err := io.ReadAll(io.LimitReader(obj, s.maxObjectSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", ref, err)
	}

	s.logger.Debug("fetched object",
		zap.String("ref", ref),
		zap.Int("bytes", len(data)))
	return data, nil
}

func (s *MinioStore) mapErr(ref string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return &types.NotFoundError{Kind: "file", Ref: ref}
	}
	return fmt.Errorf("failed to fetch object %s: %w", ref, err)
}

// Ensure MinioStore implements ObjectStore.
var _ ObjectStore = (*MinioStore)(nil)
