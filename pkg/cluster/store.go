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
package cluster

import (
	"context"
	"errors"
	"fmt"
)

// Store is the narrow contract agentctl needs from the cluster.
//
// Implementations must treat Resource.ResourceVersion on Update as a
// compare-and-swap token, and must remove resources owned by a deleted
// resource (natively or explicitly).
type Store interface {
	// Get returns the resource or an error wrapping ErrNotFound.
	Get(ctx context.Context, kind, namespace, name string) (*Resource, error)

	// List returns resources of kind in namespace matching selector.
	List(ctx context.Context, kind, namespace string, selector Selector) ([]*Resource, error)

	// Create stores a new resource and returns the stored copy with UID,
	// ResourceVersion, and CreatedAt populated. Fails with ErrAlreadyExists.
	Create(ctx context.Context, r *Resource) (*Resource, error)

	// Update replaces labels, annotations, data, and owners. Returns a
	// *ConflictError when r.ResourceVersion is stale.
	Update(ctx context.Context, r *Resource) (*Resource, error)

	// Delete removes a resource and its dependents.
	Delete(ctx context.Context, kind, namespace, name string) error

	// DeleteCollection removes every resource of kind matching selector and
	// returns how many were deleted.
	DeleteCollection(ctx context.Context, kind, namespace string, selector Selector) (int, error)

	// Close releases backend resources.
	Close() error
}

var (
	// ErrNotFound is returned when a resource does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrAlreadyExists is returned by Create when the name is taken.
	ErrAlreadyExists = errors.New("resource already exists")
	// ErrConflict is matched by ConflictError via errors.Is.
	ErrConflict = errors.New("resource version conflict")
)

// ConflictError reports a stale concurrency token on Update.
type ConflictError struct {
	Kind            string
	Namespace       string
	Name            string
	ExpectedVersion string
	ActualVersion   string
}

func (e *ConflictError) Error() string {
	if e.ActualVersion == "" {
		return fmt.Sprintf("conflict updating %s %s/%s: object was modified (expected resource version %s)",
			e.Kind, e.Namespace, e.Name, e.ExpectedVersion)
	}
	return fmt.Sprintf("conflict updating %s %s/%s: expected resource version %s, got %s",
		e.Kind, e.Namespace, e.Name, e.ExpectedVersion, e.ActualVersion)
}

// Is makes errors.Is(err, ErrConflict) true for ConflictError.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NotFound wraps ErrNotFound with the resource identity.
func NotFound(kind, namespace, name string) error {
	return fmt.Errorf("%s %s/%s: %w", kind, namespace, name, ErrNotFound)
}

// AlreadyExists wraps ErrAlreadyExists with the resource identity.
func AlreadyExists(kind, namespace, name string) error {
	return fmt.Errorf("%s %s/%s: %w", kind, namespace, name, ErrAlreadyExists)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is a concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
