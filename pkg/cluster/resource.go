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
// Package cluster defines the resource model agentctl reads and writes and the
// Store interface implemented by the Kubernetes, SQL, and in-memory backends.
package cluster

import (
	"sort"
	"strings"
	"time"
)

// Resource kinds used by agentctl.
const (
	KindAgent     = "LanguageAgent"
	KindConfigMap = "ConfigMap"
	KindPod       = "Pod"
)

// Label and annotation keys. All live under one prefix so they can be
// filtered out of `kubectl describe` output.
const (
	LabelPrefix = "langop.io/"

	LabelAgent     = LabelPrefix + "agent"
	LabelComponent = LabelPrefix + "component"

	// ComponentAgentCode marks ConfigMaps that hold agent code.
	ComponentAgentCode = "agent-code"

	AnnotationVersion          = LabelPrefix + "version"
	AnnotationSourceType       = LabelPrefix + "source-type"
	AnnotationOptimizedTask    = LabelPrefix + "optimized-task"
	AnnotationOptimizedAt      = LabelPrefix + "optimized-at"
	AnnotationPreviousVersion  = LabelPrefix + "previous-version"
	AnnotationCreatedAt        = LabelPrefix + "created-at"
	AnnotationRolledBack       = LabelPrefix + "rolled-back"
	AnnotationRolledBackAt     = LabelPrefix + "rolled-back-at"
	AnnotationCodeDigest       = LabelPrefix + "code-digest"
	AnnotationActiveVersion    = LabelPrefix + "active-version"
	AnnotationLearningDisabled = LabelPrefix + "learning-disabled"
	AnnotationLearningStatus   = LabelPrefix + "learning-status"
)

// Condition status values.
const (
	ConditionTrue    = "True"
	ConditionFalse   = "False"
	ConditionUnknown = "Unknown"
)

// OwnerReference links a dependent resource to its owner. Backends without
// native garbage collection delete dependents explicitly when the owner is
// deleted.
type OwnerReference struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
	UID  string `json:"uid"`
}

// Condition is one entry in a resource's status condition list.
type Condition struct {
	Type               string    `json:"type"`
	Status             string    `json:"status"`
	Reason             string    `json:"reason,omitempty"`
	Message            string    `json:"message,omitempty"`
	LastTransitionTime time.Time `json:"lastTransitionTime,omitempty"`
}

// ResourceStatus is the observed state written by the cluster controller.
type ResourceStatus struct {
	Conditions []Condition `json:"conditions,omitempty"`
	// Synthesis carries metadata the controller exposes about the last
	// code synthesis (model, duration, code size). Values are flattened to
	// strings.
	Synthesis map[string]string `json:"synthesis,omitempty"`
}

// Resource is a namespaced object in the cluster store.
type Resource struct {
	Kind        string            `json:"kind"`
	Namespace   string            `json:"namespace"`
	Name        string            `json:"name"`
	UID         string            `json:"uid,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	Owners      []OwnerReference  `json:"owners,omitempty"`

	// ResourceVersion is the optimistic-concurrency token. Update fails
	// with a ConflictError when it no longer matches the stored object.
	// An empty value makes the update unconditional.
	ResourceVersion string `json:"resourceVersion,omitempty"`

	CreatedAt time.Time      `json:"createdAt,omitempty"`
	Status    ResourceStatus `json:"status,omitempty"`
}

// Condition returns the condition of the given type, or nil.
func (r *Resource) Condition(conditionType string) *Condition {
	for i := range r.Status.Conditions {
		if r.Status.Conditions[i].Type == conditionType {
			return &r.Status.Conditions[i]
		}
	}
	return nil
}

// Annotation returns an annotation value and whether it is set.
func (r *Resource) Annotation(key string) (string, bool) {
	if r.Annotations == nil {
		return "", false
	}
	v, ok := r.Annotations[key]
	return v, ok
}

// SetAnnotation sets an annotation, allocating the map if needed.
func (r *Resource) SetAnnotation(key, value string) {
	if r.Annotations == nil {
		r.Annotations = make(map[string]string)
	}
	r.Annotations[key] = value
}

// OwnedBy reports whether the resource lists uid among its owners.
func (r *Resource) OwnedBy(uid string) bool {
	if uid == "" {
		return false
	}
	for _, o := range r.Owners {
		if o.UID == uid {
			return true
		}
	}
	return false
}

// OwnerRef returns an owner reference pointing at r.
func (r *Resource) OwnerRef() OwnerReference {
	return OwnerReference{Kind: r.Kind, Name: r.Name, UID: r.UID}
}

// DeepCopy returns an independent copy of r.
func (r *Resource) DeepCopy() *Resource {
	if r == nil {
		return nil
	}
	out := *r
	out.Labels = copyMap(r.Labels)
	out.Annotations = copyMap(r.Annotations)
	out.Data = copyMap(r.Data)
	if r.Owners != nil {
		out.Owners = append([]OwnerReference(nil), r.Owners...)
	}
	if r.Status.Conditions != nil {
		out.Status.Conditions = append([]Condition(nil), r.Status.Conditions...)
	}
	out.Status.Synthesis = copyMap(r.Status.Synthesis)
	return &out
}

// Key returns "kind/namespace/name".
func (r *Resource) Key() string {
	return Key(r.Kind, r.Namespace, r.Name)
}

// Key builds the canonical identity string for a resource.
func Key(kind, namespace, name string) string {
	return kind + "/" + namespace + "/" + name
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Selector is an equality-based label selector. An empty selector matches
// everything.
type Selector map[string]string

// Matches reports whether labels satisfy every selector term.
func (s Selector) Matches(labels map[string]string) bool {
	for k, v := range s {
		if labels[k] != v {
			return false
		}
	}
	return true
}

// String renders the selector in `k=v,k2=v2` form with sorted keys.
func (s Selector) String() string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+s[k])
	}
	return strings.Join(parts, ",")
}

// AgentSelector selects every resource belonging to an agent, including its
// pods.
func AgentSelector(agent string) Selector {
	return Selector{LabelAgent: agent}
}

// CodeSelector selects the code ConfigMaps (base and versions) of an agent.
func CodeSelector(agent string) Selector {
	return Selector{LabelAgent: agent, LabelComponent: ComponentAgentCode}
}
