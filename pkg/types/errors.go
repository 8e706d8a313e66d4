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

package types

import (
	"errors"
	"fmt"
)

// The error taxonomy below is shared by every component so the dispatcher
// and its callers can branch on error kind with errors.As rather than string
// matching. Each type carries enough structure for user messaging; only
// AgentUnavailableError is retryable as-is.

// InvalidRequestError reports a malformed request: empty question, both or
// neither source reference, unknown tags. Never retried.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// IsolationViolationError reports an explicit backend request that would
// violate the csv-to-database isolation rule. Explicit requests are rejected,
// never silently corrected: a violating explicit request is a caller bug
// that should surface.
type IsolationViolationError struct {
	Source    SourceKind
	Requested BackendKind
}

func (e *IsolationViolationError) Error() string {
	return fmt.Sprintf("isolation violation: backend %q is forbidden for source %q", e.Requested, e.Source)
}

// NotFoundError reports that a referenced file or connection does not exist
// or is not visible to the caller.
type NotFoundError struct {
	Kind string // "file" or "connection"
	Ref  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Ref)
}

// ParseError reports CSV content that could not be materialized: not valid
// delimited text, or a shape that signals delimiter mis-detection.
type ParseError struct {
	FileRef string
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.FileRef, e.Reason)
}

// CapacityError reports a materialization that would exceed the per-file or
// aggregate memory ceiling. Nothing is left behind in the cache.
type CapacityError struct {
	FileRef   string
	Needed    int64
	Ceiling   int64
	Aggregate bool
}

func (e *CapacityError) Error() string {
	scope := "per-file"
	if e.Aggregate {
		scope = "aggregate"
	}
	return fmt.Sprintf("materializing %s needs %d bytes, exceeding the %s ceiling of %d", e.FileRef, e.Needed, scope, e.Ceiling)
}

// GenerationError reports that SQL or analysis-plan generation failed or
// returned unusable output. Retrying without changing the question is not
// expected to help.
type GenerationError struct {
	Stage string // "sql" or "plan"
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ExecutionError reports that generated SQL or an analysis plan failed at
// execution time against the actual data.
type ExecutionError struct {
	Backend BackendKind
	SQL     string // empty for programmatic backends
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed on %s backend: %v", e.Backend, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// AgentUnavailableError reports that the remote agent behind a connection is
// offline or unreachable. It is the one retryable error in the taxonomy:
// callers should present it as "agent offline, please retry".
type AgentUnavailableError struct {
	ConnectionRef string
}

func (e *AgentUnavailableError) Error() string {
	return fmt.Sprintf("agent unavailable for connection %s", e.ConnectionRef)
}

// RoutingFailure reports an internal routing error. It never crosses the
// routing agent's public boundary (the agent always falls back to a valid
// decision); it exists so tests can assert the fallback path fired.
type RoutingFailure struct {
	Err error
}

func (e *RoutingFailure) Error() string {
	return fmt.Sprintf("routing failed: %v", e.Err)
}

func (e *RoutingFailure) Unwrap() error { return e.Err }

// Retryable reports whether retrying the same request unchanged could
// plausibly succeed.
func Retryable(err error) bool {
	var unavailable *AgentUnavailableError
	return errors.As(err, &unavailable)
}
