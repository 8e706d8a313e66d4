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

// Package storage provides the object-store collaborator behind uploaded
// file references. Spindle only reads: upload, CDN delivery, and retention
// live outside this system.
package storage

import (
	"context"
)

// ObjectStore resolves a file reference to raw bytes.
//
// Implementations map their native missing-object errors to
// *types.NotFoundError so callers can branch on it without knowing which
// store is configured.
type ObjectStore interface {
	// FetchBytes returns the stored content for ref.
	FetchBytes(ctx context.Context, ref string) ([]byte, error)
}
