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
package versions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teradata-labs/agentctl/pkg/agentcode"
	"github.com/teradata-labs/agentctl/pkg/cluster"
	"github.com/teradata-labs/agentctl/pkg/observability"
	"go.uber.org/zap"
)

// ErrAlreadyActive is returned by Restore when the target is already active.
var ErrAlreadyActive = errors.New("version is already active")

// Config configures a version Store.
type Config struct {
	Cluster   cluster.Store
	Namespace string

	// StrictPrune makes Prune stop at and return the first delete failure.
	// By default failures are logged and skipped.
	StrictPrune bool

	Logger *zap.Logger
	Tracer observability.Tracer
	Now    func() time.Time
}

// Store reads and writes an agent's code lineage.
type Store struct {
	cluster     cluster.Store
	namespace   string
	strictPrune bool
	logger      *zap.Logger
	tracer      observability.Tracer
	now         func() time.Time
}

// Change is a replacement for one task.
type Change struct {
	TaskName   string
	Definition agentcode.TaskDefinition
	Body       string
	// SourceType defaults to SourceOptimized.
	SourceType string
}

// New creates a Store.
func New(config Config) (*Store, error) {
	if config.Cluster == nil {
		return nil, fmt.Errorf("cluster store is required")
	}
	if config.Namespace == "" {
		config.Namespace = "default"
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Tracer == nil {
		config.Tracer = observability.NewNoOpTracer()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Store{
		cluster:     config.Cluster,
		namespace:   config.Namespace,
		strictPrune: config.StrictPrune,
		logger:      config.Logger,
		tracer:      config.Tracer,
		now:         config.Now,
	}, nil
}

// Namespace returns the namespace the store operates in.
func (s *Store) Namespace() string {
	return s.namespace
}

// CreateVersion splices change into the active code, stores the result as the
// next snapshot, and points the base at it.
//
// If the base changed since it was read, the snapshot is left in place and
// the returned error wraps *cluster.ConflictError.
func (s *Store) CreateVersion(ctx context.Context, agent string, change Change) (*VersionResult, error) {
	ctx, span := s.tracer.StartSpan(ctx, observability.SpanVersionCreate,
		observability.WithAttribute(observability.AttrAgent, agent),
		observability.WithAttribute(observability.AttrTask, change.TaskName))
	defer s.tracer.EndSpan(span)

	base, err := s.base(ctx, agent)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	active := s.resolveActive(ctx, agent, base)

	newCode, err := agentcode.SpliceTask(base.Data[DataKey], change.TaskName, change.Definition, change.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to splice task %s: %w", change.TaskName, err)
	}

	snapshots, err := s.ListVersions(ctx, agent)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	captured, err := s.captureOriginal(ctx, agent, base, active, snapshots)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	previous := active
	next := nextNumber(snapshots, active)
	if captured != nil {
		previous = captured.ID
		next = captured.Number + 1
	}

	sourceType := change.SourceType
	if sourceType == "" {
		sourceType = SourceOptimized
	}
	now := s.now().UTC()
	id := FormatVersion(next)
	digest := Digest(newCode)

	snapshot := s.newSnapshot(agent, base, next, newCode, now)
	snapshot.SetAnnotation(cluster.AnnotationSourceType, sourceType)
	snapshot.SetAnnotation(cluster.AnnotationOptimizedTask, change.TaskName)
	snapshot.SetAnnotation(cluster.AnnotationPreviousVersion, previous)
	if _, err := s.cluster.Create(ctx, snapshot); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create version %s: %w", id, err)
	}

	updated := base.DeepCopy()
	updated.Data[DataKey] = newCode
	updated.SetAnnotation(cluster.AnnotationVersion, id)
	updated.SetAnnotation(cluster.AnnotationActiveVersion, id)
	updated.SetAnnotation(cluster.AnnotationOptimizedTask, change.TaskName)
	updated.SetAnnotation(cluster.AnnotationOptimizedAt, now.Format(time.RFC3339))
	updated.SetAnnotation(cluster.AnnotationPreviousVersion, previous)
	updated.SetAnnotation(cluster.AnnotationCodeDigest, digest)
	delete(updated.Annotations, cluster.AnnotationRolledBack)
	delete(updated.Annotations, cluster.AnnotationRolledBackAt)
	if _, err := s.cluster.Update(ctx, updated); err != nil {
		span.RecordError(err)
		s.logger.Warn("Version snapshot created but base update failed",
			zap.String("agent", agent),
			zap.String("version", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to activate version %s: %w", id, err)
	}

	s.stampAgent(ctx, agent, id)
	s.tracer.RecordMetric("versions_created_total", 1, map[string]string{"source": sourceType})
	span.SetAttribute(observability.AttrVersion, id)

	s.logger.Info("Created version",
		zap.String("agent", agent),
		zap.String("version", id),
		zap.String("previous", previous),
		zap.String("task", change.TaskName))

	result := &VersionResult{
		Agent:           agent,
		Version:         id,
		Number:          next,
		ArtifactName:    snapshot.Name,
		PreviousVersion: previous,
		Digest:          digest,
	}
	if captured != nil {
		result.Captured = captured.ID
	}
	return result, nil
}

// ActiveVersion returns the id of the version currently running. The
// LanguageAgent's own annotation wins over the base ConfigMap's so manual
// changes to the workload are honored.
func (s *Store) ActiveVersion(ctx context.Context, agent string) (string, error) {
	base, err := s.base(ctx, agent)
	if err != nil && !cluster.IsNotFound(err) {
		return "", err
	}
	return s.resolveActive(ctx, agent, base), nil
}

// GetVersion returns a snapshot by id, or the active one when id is empty.
// With no matching snapshot for the active pointer the base content is
// returned instead.
func (s *Store) GetVersion(ctx context.Context, agent, id string) (*Artifact, error) {
	base, err := s.base(ctx, agent)
	if err != nil {
		return nil, err
	}
	active := s.resolveActive(ctx, agent, base)
	snapshots, err := s.ListVersions(ctx, agent)
	if err != nil {
		return nil, err
	}

	if id == "" {
		if a := findVersion(snapshots, active); a != nil {
			return a, nil
		}
		return baseArtifact(base, active), nil
	}

	want, err := NormalizeVersion(id)
	if err != nil {
		return nil, err
	}
	if a := findVersion(snapshots, want); a != nil {
		return a, nil
	}
	if want == OriginalVersion {
		if a := findSource(snapshots, SourceOriginal); a != nil {
			return a, nil
		}
		if active == OriginalVersion {
			return baseArtifact(base, active), nil
		}
	}
	return nil, &UnknownVersionError{Agent: agent, Requested: want, Known: ids(snapshots)}
}

// ListVersions returns every snapshot, highest version first.
func (s *Store) ListVersions(ctx context.Context, agent string) ([]*Artifact, error) {
	items, err := s.cluster.List(ctx, cluster.KindConfigMap, s.namespace, cluster.CodeSelector(agent))
	if err != nil {
		return nil, fmt.Errorf("failed to list versions of %s: %w", agent, err)
	}

	var active string
	var sawBase bool
	var out []*Artifact
	for _, item := range items {
		if item.Name == BaseName(agent) {
			active = s.resolveActive(ctx, agent, item)
			sawBase = true
			continue
		}
		a, ok := snapshotArtifact(item)
		if !ok {
			s.logger.Debug("Skipping unrecognized code ConfigMap", zap.String("name", item.Name))
			continue
		}
		out = append(out, a)
	}
	if !sawBase {
		// The base need not carry the code label.
		base, err := s.base(ctx, agent)
		if err != nil && !cluster.IsNotFound(err) {
			return nil, err
		}
		active = s.resolveActive(ctx, agent, base)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	for _, a := range out {
		a.Active = a.ID == active
	}
	return out, nil
}

// Prune deletes snapshots beyond the newest keepLast. The active snapshot is
// never deleted, even when it falls beyond the cutoff, so keepLast+1 may
// remain. Unless StrictPrune is set, failures (including listing) are logged
// and Prune returns a nil error.
func (s *Store) Prune(ctx context.Context, agent string, keepLast int) (*PruneResult, error) {
	ctx, span := s.tracer.StartSpan(ctx, observability.SpanVersionPrune,
		observability.WithAttribute(observability.AttrAgent, agent))
	defer s.tracer.EndSpan(span)

	if keepLast <= 0 {
		keepLast = DefaultKeepLast
	}
	result := &PruneResult{Failed: map[string]error{}}
	snapshots, err := s.ListVersions(ctx, agent)
	if err != nil {
		span.RecordError(err)
		if s.strictPrune {
			return nil, err
		}
		s.logger.Warn("Skipping prune, versions could not be listed",
			zap.String("agent", agent),
			zap.Error(err))
		return result, nil
	}

	for i, a := range snapshots {
		if i < keepLast || a.Active {
			result.Kept = append(result.Kept, a.ID)
			continue
		}
		if err := s.cluster.Delete(ctx, cluster.KindConfigMap, s.namespace, a.Name); err != nil && !cluster.IsNotFound(err) {
			result.Failed[a.ID] = err
			if s.strictPrune {
				span.RecordError(err)
				return result, fmt.Errorf("failed to prune %s: %w", a.Name, err)
			}
			s.logger.Warn("Failed to prune version",
				zap.String("agent", agent),
				zap.String("version", a.ID),
				zap.Error(err))
			continue
		}
		result.Deleted = append(result.Deleted, a.ID)
	}

	if len(result.Deleted) > 0 {
		s.tracer.RecordMetric("versions_pruned_total", float64(len(result.Deleted)), nil)
		s.logger.Info("Pruned versions",
			zap.String("agent", agent),
			zap.Strings("deleted", result.Deleted))
	}
	return result, nil
}

// Restore makes target the running code. No snapshot is deleted; the base is
// tagged with rollback provenance.
func (s *Store) Restore(ctx context.Context, agent, target string) (*RestoreResult, error) {
	ctx, span := s.tracer.StartSpan(ctx, observability.SpanVersionRestore,
		observability.WithAttribute(observability.AttrAgent, agent),
		observability.WithAttribute(observability.AttrVersion, target))
	defer s.tracer.EndSpan(span)

	want, err := NormalizeVersion(target)
	if err != nil {
		return nil, err
	}
	base, err := s.base(ctx, agent)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	active := s.resolveActive(ctx, agent, base)
	if want == active {
		return nil, fmt.Errorf("%s: %w", want, ErrAlreadyActive)
	}

	snapshots, err := s.ListVersions(ctx, agent)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	captured, err := s.captureOriginal(ctx, agent, base, active, snapshots)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if captured != nil {
		snapshots = append([]*Artifact{captured}, snapshots...)
	}

	targetArtifact := findVersion(snapshots, want)
	if targetArtifact == nil && want == OriginalVersion {
		targetArtifact = findSource(snapshots, SourceOriginal)
	}
	if targetArtifact == nil {
		err := &UnknownVersionError{Agent: agent, Requested: want, Known: ids(snapshots)}
		span.RecordError(err)
		return nil, err
	}

	now := s.now().UTC()
	updated := base.DeepCopy()
	updated.Data[DataKey] = targetArtifact.Code
	updated.SetAnnotation(cluster.AnnotationVersion, targetArtifact.ID)
	updated.SetAnnotation(cluster.AnnotationActiveVersion, targetArtifact.ID)
	updated.SetAnnotation(cluster.AnnotationPreviousVersion, active)
	updated.SetAnnotation(cluster.AnnotationRolledBack, "true")
	updated.SetAnnotation(cluster.AnnotationRolledBackAt, now.Format(time.RFC3339))
	updated.SetAnnotation(cluster.AnnotationCodeDigest, Digest(targetArtifact.Code))
	if targetArtifact.Task != "" {
		updated.SetAnnotation(cluster.AnnotationOptimizedTask, targetArtifact.Task)
	} else {
		delete(updated.Annotations, cluster.AnnotationOptimizedTask)
	}
	delete(updated.Annotations, cluster.AnnotationOptimizedAt)
	if _, err := s.cluster.Update(ctx, updated); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to restore %s: %w", targetArtifact.ID, err)
	}

	s.stampAgent(ctx, agent, targetArtifact.ID)
	s.logger.Info("Restored version",
		zap.String("agent", agent),
		zap.String("version", targetArtifact.ID),
		zap.String("previous", active))

	result := &RestoreResult{
		Agent:           agent,
		Version:         targetArtifact.ID,
		PreviousVersion: active,
		RolledBackAt:    now,
	}
	if captured != nil {
		result.Captured = captured.ID
	}
	return result, nil
}

func (s *Store) base(ctx context.Context, agent string) (*cluster.Resource, error) {
	base, err := s.cluster.Get(ctx, cluster.KindConfigMap, s.namespace, BaseName(agent))
	if err != nil {
		return nil, fmt.Errorf("failed to read code for agent %s: %w", agent, err)
	}
	if base.Data == nil {
		base.Data = map[string]string{}
	}
	return base, nil
}

// resolveActive checks the LanguageAgent, then the base, then falls back to
// "original". base may be nil.
func (s *Store) resolveActive(ctx context.Context, agent string, base *cluster.Resource) string {
	if obj, err := s.cluster.Get(ctx, cluster.KindAgent, s.namespace, agent); err == nil {
		if v, ok := obj.Annotation(cluster.AnnotationActiveVersion); ok && v != "" {
			return v
		}
	} else if !cluster.IsNotFound(err) {
		s.logger.Debug("Could not read agent for active version", zap.String("agent", agent), zap.Error(err))
	}
	if base != nil {
		for _, key := range []string{cluster.AnnotationActiveVersion, cluster.AnnotationVersion} {
			if v, ok := base.Annotation(key); ok && v != "" {
				return v
			}
		}
	}
	return OriginalVersion
}

// captureOriginal snapshots the base when it still runs the original code and
// no original snapshot exists, so the original remains recoverable.
func (s *Store) captureOriginal(ctx context.Context, agent string, base *cluster.Resource, active string, snapshots []*Artifact) (*Artifact, error) {
	if active != OriginalVersion || findSource(snapshots, SourceOriginal) != nil {
		return nil, nil
	}
	n := nextNumber(snapshots, active)
	code := base.Data[DataKey]
	snapshot := s.newSnapshot(agent, base, n, code, s.now().UTC())
	snapshot.SetAnnotation(cluster.AnnotationSourceType, SourceOriginal)

	created, err := s.cluster.Create(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to capture original code of %s: %w", agent, err)
	}
	s.logger.Info("Captured original code", zap.String("agent", agent), zap.String("version", FormatVersion(n)))
	a, _ := snapshotArtifact(created)
	return a, nil
}

func (s *Store) newSnapshot(agent string, base *cluster.Resource, n int, code string, now time.Time) *cluster.Resource {
	return &cluster.Resource{
		Kind:      cluster.KindConfigMap,
		Namespace: s.namespace,
		Name:      ArtifactName(agent, n),
		Labels:    cluster.CodeSelector(agent),
		Annotations: map[string]string{
			cluster.AnnotationVersion:    FormatVersion(n),
			cluster.AnnotationCreatedAt:  now.Format(time.RFC3339),
			cluster.AnnotationCodeDigest: Digest(code),
		},
		Data:   map[string]string{DataKey: code},
		Owners: []cluster.OwnerReference{base.OwnerRef()},
	}
}

// stampAgent records the active version on the LanguageAgent. Failure only
// leaves the base annotation authoritative, so it is logged.
func (s *Store) stampAgent(ctx context.Context, agent, id string) {
	obj, err := s.cluster.Get(ctx, cluster.KindAgent, s.namespace, agent)
	if err != nil {
		if !cluster.IsNotFound(err) {
			s.logger.Warn("Failed to read agent to record active version", zap.String("agent", agent), zap.Error(err))
		}
		return
	}
	obj.SetAnnotation(cluster.AnnotationActiveVersion, id)
	if _, err := s.cluster.Update(ctx, obj); err != nil {
		s.logger.Warn("Failed to record active version on agent",
			zap.String("agent", agent),
			zap.String("version", id),
			zap.Error(err))
	}
}

// nextNumber is one past the highest number in use, counting the active
// pointer, so numbers are never reused after a rollback.
func nextNumber(snapshots []*Artifact, active string) int {
	highest := 0
	for _, a := range snapshots {
		if a.Number > highest {
			highest = a.Number
		}
	}
	if n, err := ParseVersion(active); err == nil && n > highest {
		highest = n
	}
	return highest + 1
}

func snapshotArtifact(r *cluster.Resource) (*Artifact, bool) {
	id, _ := r.Annotation(cluster.AnnotationVersion)
	n, err := ParseVersion(id)
	if err != nil || n == 0 {
		return nil, false
	}
	a := &Artifact{
		ID:         FormatVersion(n),
		Number:     n,
		Name:       r.Name,
		SourceType: r.Annotations[cluster.AnnotationSourceType],
		Task:       r.Annotations[cluster.AnnotationOptimizedTask],
		Digest:     r.Annotations[cluster.AnnotationCodeDigest],
		CreatedAt:  r.CreatedAt,
		Code:       r.Data[DataKey],
	}
	a.PreviousVersion = r.Annotations[cluster.AnnotationPreviousVersion]
	if ts, ok := r.Annotation(cluster.AnnotationCreatedAt); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			a.CreatedAt = parsed
		}
	}
	if a.SourceType == "" {
		a.SourceType = SourceManual
	}
	return a, true
}

func baseArtifact(base *cluster.Resource, active string) *Artifact {
	n, _ := ParseVersion(active)
	code := base.Data[DataKey]
	return &Artifact{
		ID:              active,
		Number:          n,
		Name:            base.Name,
		SourceType:      base.Annotations[cluster.AnnotationSourceType],
		Task:            base.Annotations[cluster.AnnotationOptimizedTask],
		PreviousVersion: base.Annotations[cluster.AnnotationPreviousVersion],
		CreatedAt:       base.CreatedAt,
		Digest:          Digest(code),
		Active:          true,
		Base:            true,
		Code:            code,
	}
}

func findVersion(snapshots []*Artifact, id string) *Artifact {
	for _, a := range snapshots {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func findSource(snapshots []*Artifact, sourceType string) *Artifact {
	for _, a := range snapshots {
		if a.SourceType == sourceType {
			return a
		}
	}
	return nil
}

func ids(snapshots []*Artifact) []string {
	out := make([]string, 0, len(snapshots))
	for _, a := range snapshots {
		out = append(out, a.ID)
	}
	return out
}
