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
// Package kube implements cluster.Store against a Kubernetes API server using
// the dynamic client. Ownership cascade is left to the cluster's garbage
// collector.
package kube

import (
	"context"
	"fmt"
	"time"

	"github.com/teradata-labs/agentctl/pkg/cluster"
	"github.com/teradata-labs/agentctl/pkg/observability"
	"go.uber.org/zap"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/tools/clientcmd"
)

// LanguageAgent custom resource coordinates.
const (
	AgentGroup   = "langop.io"
	AgentVersion = "v1alpha1"
)

var resources = map[string]schema.GroupVersionResource{
	cluster.KindConfigMap: {Group: "", Version: "v1", Resource: "configmaps"},
	cluster.KindPod:       {Group: "", Version: "v1", Resource: "pods"},
	cluster.KindAgent:     {Group: AgentGroup, Version: AgentVersion, Resource: "languageagents"},
}

// Config selects the kubeconfig and context used to reach the cluster.
type Config struct {
	Kubeconfig string // empty uses the default loading rules
	Context    string // empty uses the current context
	Logger     *zap.Logger
	Tracer     observability.Tracer
}

// Store is a cluster.Store backed by the Kubernetes API.
type Store struct {
	client dynamic.Interface
	logger *zap.Logger
	tracer observability.Tracer
}

// New builds a Store from kubeconfig.
func New(config Config) (*Store, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if config.Kubeconfig != "" {
		rules.ExplicitPath = config.Kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: config.Context}
	restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	restConfig.UserAgent = "agentctl"

	client, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return NewWithClient(client, config.Logger, config.Tracer), nil
}

// NewWithClient wraps an existing dynamic client.
func NewWithClient(client dynamic.Interface, logger *zap.Logger, tracer observability.Tracer) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	return &Store{client: client, logger: logger, tracer: tracer}
}

func (s *Store) resource(kind, namespace string) (dynamic.ResourceInterface, error) {
	gvr, ok := resources[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported resource kind %q", kind)
	}
	return s.client.Resource(gvr).Namespace(namespace), nil
}

// Get implements cluster.Store.
func (s *Store) Get(ctx context.Context, kind, namespace, name string) (*cluster.Resource, error) {
	ri, err := s.resource(kind, namespace)
	if err != nil {
		return nil, err
	}
	u, err := ri.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, translate(err, kind, namespace, name, "")
	}
	return FromUnstructured(kind, u)
}

// List implements cluster.Store.
func (s *Store) List(ctx context.Context, kind, namespace string, selector cluster.Selector) ([]*cluster.Resource, error) {
	ri, err := s.resource(kind, namespace)
	if err != nil {
		return nil, err
	}
	list, err := ri.List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s in %s: %w", kind, namespace, err)
	}
	out := make([]*cluster.Resource, 0, len(list.Items))
	for i := range list.Items {
		r, err := FromUnstructured(kind, &list.Items[i])
		if err != nil {
			return nil, err
		}
		// The fake client and some proxies ignore label selectors.
		if selector.Matches(r.Labels) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Create implements cluster.Store.
func (s *Store) Create(ctx context.Context, r *cluster.Resource) (*cluster.Resource, error) {
	ri, err := s.resource(r.Kind, r.Namespace)
	if err != nil {
		return nil, err
	}
	u := ToUnstructured(r)
	u.SetResourceVersion("")
	created, err := ri.Create(ctx, u, metav1.CreateOptions{})
	if err != nil {
		return nil, translate(err, r.Kind, r.Namespace, r.Name, "")
	}
	return FromUnstructured(r.Kind, created)
}

// Update implements cluster.Store. Metadata and data are overlaid on the live
// object so fields agentctl does not model (spec, status) survive.
func (s *Store) Update(ctx context.Context, r *cluster.Resource) (*cluster.Resource, error) {
	ri, err := s.resource(r.Kind, r.Namespace)
	if err != nil {
		return nil, err
	}
	live, err := ri.Get(ctx, r.Name, metav1.GetOptions{})
	if err != nil {
		return nil, translate(err, r.Kind, r.Namespace, r.Name, r.ResourceVersion)
	}
	if r.ResourceVersion != "" && live.GetResourceVersion() != r.ResourceVersion {
		return nil, &cluster.ConflictError{
			Kind: r.Kind, Namespace: r.Namespace, Name: r.Name,
			ExpectedVersion: r.ResourceVersion, ActualVersion: live.GetResourceVersion(),
		}
	}

	overlay(live, r)
	if r.ResourceVersion != "" {
		live.SetResourceVersion(r.ResourceVersion)
	}
	updated, err := ri.Update(ctx, live, metav1.UpdateOptions{})
	if err != nil {
		return nil, translate(err, r.Kind, r.Namespace, r.Name, r.ResourceVersion)
	}
	return FromUnstructured(r.Kind, updated)
}

// Delete implements cluster.Store.
func (s *Store) Delete(ctx context.Context, kind, namespace, name string) error {
	ri, err := s.resource(kind, namespace)
	if err != nil {
		return err
	}
	propagation := metav1.DeletePropagationBackground
	if err := ri.Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &propagation}); err != nil {
		return translate(err, kind, namespace, name, "")
	}
	return nil
}

// DeleteCollection implements cluster.Store by listing and deleting each
// match, so the count reflects what was actually removed.
func (s *Store) DeleteCollection(ctx context.Context, kind, namespace string, selector cluster.Selector) (int, error) {
	items, err := s.List(ctx, kind, namespace, selector)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, item := range items {
		if err := s.Delete(ctx, kind, namespace, item.Name); err != nil {
			if cluster.IsNotFound(err) {
				continue
			}
			return deleted, err
		}
		deleted++
	}
	s.logger.Debug("Deleted collection",
		zap.String("kind", kind),
		zap.String("selector", selector.String()),
		zap.Int("count", deleted))
	return deleted, nil
}

// Close implements cluster.Store.
func (s *Store) Close() error { return nil }

func translate(err error, kind, namespace, name, expected string) error {
	switch {
	case apierrors.IsNotFound(err):
		return fmt.Errorf("%w: %v", cluster.NotFound(kind, namespace, name), err)
	case apierrors.IsAlreadyExists(err):
		return fmt.Errorf("%w: %v", cluster.AlreadyExists(kind, namespace, name), err)
	case apierrors.IsConflict(err):
		return &cluster.ConflictError{Kind: kind, Namespace: namespace, Name: name, ExpectedVersion: expected}
	default:
		return fmt.Errorf("%s %s/%s: %w", kind, namespace, name, err)
	}
}

// ToUnstructured converts a resource to its Kubernetes representation.
func ToUnstructured(r *cluster.Resource) *unstructured.Unstructured {
	gvr := resources[r.Kind]
	u := &unstructured.Unstructured{Object: map[string]interface{}{}}
	u.SetAPIVersion(schema.GroupVersion{Group: gvr.Group, Version: gvr.Version}.String())
	u.SetKind(r.Kind)
	u.SetNamespace(r.Namespace)
	u.SetName(r.Name)
	if r.UID != "" {
		u.SetUID(types.UID(r.UID))
	}
	u.SetResourceVersion(r.ResourceVersion)
	overlay(u, r)
	return u
}

func overlay(u *unstructured.Unstructured, r *cluster.Resource) {
	u.SetLabels(r.Labels)
	u.SetAnnotations(r.Annotations)

	refs := make([]metav1.OwnerReference, 0, len(r.Owners))
	for _, o := range r.Owners {
		gvr := resources[o.Kind]
		refs = append(refs, metav1.OwnerReference{
			APIVersion: schema.GroupVersion{Group: gvr.Group, Version: gvr.Version}.String(),
			Kind:       o.Kind,
			Name:       o.Name,
			UID:        types.UID(o.UID),
		})
	}
	u.SetOwnerReferences(refs)

	if r.Kind == cluster.KindConfigMap {
		data := make(map[string]interface{}, len(r.Data))
		for k, v := range r.Data {
			data[k] = v
		}
		u.Object["data"] = data
	}
}

// FromUnstructured converts a Kubernetes object into a Resource.
func FromUnstructured(kind string, u *unstructured.Unstructured) (*cluster.Resource, error) {
	r := &cluster.Resource{
		Kind:            kind,
		Namespace:       u.GetNamespace(),
		Name:            u.GetName(),
		UID:             string(u.GetUID()),
		Labels:          u.GetLabels(),
		Annotations:     u.GetAnnotations(),
		ResourceVersion: u.GetResourceVersion(),
		CreatedAt:       u.GetCreationTimestamp().Time,
	}
	for _, ref := range u.GetOwnerReferences() {
		r.Owners = append(r.Owners, cluster.OwnerReference{Kind: ref.Kind, Name: ref.Name, UID: string(ref.UID)})
	}

	if kind == cluster.KindConfigMap {
		data, _, err := unstructured.NestedStringMap(u.Object, "data")
		if err != nil {
			return nil, fmt.Errorf("configmap %s/%s: invalid data: %w", r.Namespace, r.Name, err)
		}
		r.Data = data
	}

	conditions, _, err := unstructured.NestedSlice(u.Object, "status", "conditions")
	if err != nil {
		return nil, fmt.Errorf("%s %s/%s: invalid status.conditions: %w", kind, r.Namespace, r.Name, err)
	}
	for _, raw := range conditions {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		c := cluster.Condition{
			Type:    stringField(m, "type"),
			Status:  stringField(m, "status"),
			Reason:  stringField(m, "reason"),
			Message: stringField(m, "message"),
		}
		if ts := stringField(m, "lastTransitionTime"); ts != "" {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				c.LastTransitionTime = parsed
			}
		}
		r.Status.Conditions = append(r.Status.Conditions, c)
	}

	synthesis, found, err := unstructured.NestedMap(u.Object, "status", "synthesis")
	if err != nil {
		return nil, fmt.Errorf("%s %s/%s: invalid status.synthesis: %w", kind, r.Namespace, r.Name, err)
	}
	if found {
		r.Status.Synthesis = make(map[string]string, len(synthesis))
		for k, v := range synthesis {
			r.Status.Synthesis[k] = fmt.Sprint(v)
		}
	}
	return r, nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

var _ cluster.Store = (*Store)(nil)
