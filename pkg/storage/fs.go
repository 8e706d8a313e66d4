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
	"os"
	"path/filepath"
	"strings"

	"github.com/teradata-labs/spindle/pkg/types"
)

// FSStore serves file references from a local directory. Intended for
// development, tests, and the one-shot CLI path.
type FSStore struct {
	root string
}

// NewFSStore creates a store rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	return &FSStore{root: abs}, nil
}

// FetchBytes reads the file named by ref under the store root.
func (s *FSStore) FetchBytes(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cleaned, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(cleaned)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &types.NotFoundError{Kind: "file", Ref: ref}
		}
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return data, nil
}

// resolve maps a reference to an absolute path, refusing traversal outside
// the root.
func (s *FSStore) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", &types.NotFoundError{Kind: "file", Ref: ref}
	}

	joined := filepath.Join(s.root, filepath.FromSlash(ref))
	cleaned := filepath.Clean(joined)
	if cleaned != s.root && !strings.HasPrefix(cleaned, s.root+string(filepath.Separator)) {
		return "", &types.NotFoundError{Kind: "file", Ref: ref}
	}
	return cleaned, nil
}

// Ensure FSStore implements ObjectStore.
var _ ObjectStore = (*FSStore)(nil)
