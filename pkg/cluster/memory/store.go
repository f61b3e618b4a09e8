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
// Package memory is an in-process cluster.Store used by tests. Ownership
// cascade is explicit: deleting a resource deletes every resource that lists
// it as owner.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teradata-labs/agentctl/pkg/cluster"
)

// Store is a thread-safe in-memory cluster.Store.
type Store struct {
	mu       sync.RWMutex
	objects  map[string]*cluster.Resource
	revision int64
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		objects: make(map[string]*cluster.Resource),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements cluster.Store.
func (s *Store) Get(ctx context.Context, kind, namespace, name string) (*cluster.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[cluster.Key(kind, namespace, name)]
	if !ok {
		return nil, cluster.NotFound(kind, namespace, name)
	}
	return obj.DeepCopy(), nil
}

// List implements cluster.Store. Results are sorted by name.
func (s *Store) List(ctx context.Context, kind, namespace string, selector cluster.Selector) ([]*cluster.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*cluster.Resource
	for _, obj := range s.objects {
		if obj.Kind == kind && obj.Namespace == namespace && selector.Matches(obj.Labels) {
			out = append(out, obj.DeepCopy())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Create implements cluster.Store.
func (s *Store) Create(ctx context.Context, r *cluster.Resource) (*cluster.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Key()
	if _, exists := s.objects[key]; exists {
		return nil, cluster.AlreadyExists(r.Kind, r.Namespace, r.Name)
	}

	obj := r.DeepCopy()
	if obj.UID == "" {
		obj.UID = uuid.New().String()
	}
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = s.now().UTC()
	}
	obj.ResourceVersion = s.nextRevision()
	s.objects[key] = obj
	return obj.DeepCopy(), nil
}

// Update implements cluster.Store. Status is preserved; only metadata, data,
// and owners are replaced.
func (s *Store) Update(ctx context.Context, r *cluster.Resource) (*cluster.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Key()
	current, ok := s.objects[key]
	if !ok {
		return nil, cluster.NotFound(r.Kind, r.Namespace, r.Name)
	}
	if r.ResourceVersion != "" && r.ResourceVersion != current.ResourceVersion {
		return nil, &cluster.ConflictError{
			Kind:            r.Kind,
			Namespace:       r.Namespace,
			Name:            r.Name,
			ExpectedVersion: r.ResourceVersion,
			ActualVersion:   current.ResourceVersion,
		}
	}

	next := r.DeepCopy()
	next.UID = current.UID
	next.CreatedAt = current.CreatedAt
	next.Status = current.DeepCopy().Status
	next.ResourceVersion = s.nextRevision()
	s.objects[key] = next
	return next.DeepCopy(), nil
}

// SetStatus replaces a resource's status, standing in for the controller.
func (s *Store) SetStatus(kind, namespace, name string, status cluster.ResourceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[cluster.Key(kind, namespace, name)]
	if !ok {
		return cluster.NotFound(kind, namespace, name)
	}
	tmp := &cluster.Resource{Status: status}
	obj.Status = tmp.DeepCopy().Status
	obj.ResourceVersion = s.nextRevision()
	return nil
}

// Delete implements cluster.Store.
func (s *Store) Delete(ctx context.Context, kind, namespace, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cluster.Key(kind, namespace, name)
	obj, ok := s.objects[key]
	if !ok {
		return cluster.NotFound(kind, namespace, name)
	}
	s.deleteCascade(obj)
	return nil
}

// DeleteCollection implements cluster.Store.
func (s *Store) DeleteCollection(ctx context.Context, kind, namespace string, selector cluster.Selector) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var victims []*cluster.Resource
	for _, obj := range s.objects {
		if obj.Kind == kind && obj.Namespace == namespace && selector.Matches(obj.Labels) {
			victims = append(victims, obj)
		}
	}
	for _, obj := range victims {
		s.deleteCascade(obj)
	}
	return len(victims), nil
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Close implements cluster.Store.
func (s *Store) Close() error {
	return nil
}

// deleteCascade removes obj and, transitively, everything it owns.
// Caller holds s.mu.
func (s *Store) deleteCascade(obj *cluster.Resource) {
	delete(s.objects, obj.Key())
	for _, dep := range s.objects {
		if dep.OwnedBy(obj.UID) {
			s.deleteCascade(dep)
		}
	}
}

func (s *Store) nextRevision() string {
	s.revision++
	return strconv.FormatInt(s.revision, 10)
}

var _ cluster.Store = (*Store)(nil)
