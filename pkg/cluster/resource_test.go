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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelector(t *testing.T) {
	sel := CodeSelector("bot")
	assert.True(t, sel.Matches(map[string]string{LabelAgent: "bot", LabelComponent: ComponentAgentCode, "x": "y"}))
	assert.False(t, sel.Matches(map[string]string{LabelAgent: "bot"}))
	assert.True(t, Selector{}.Matches(nil))
	assert.Equal(t, "langop.io/agent=bot,langop.io/component=agent-code", sel.String())
}

func TestResource_DeepCopy(t *testing.T) {
	r := &Resource{
		Kind:        KindConfigMap,
		Name:        "a",
		Labels:      map[string]string{"a": "1"},
		Annotations: map[string]string{"b": "2"},
		Data:        map[string]string{"c": "3"},
		Owners:      []OwnerReference{{Kind: KindConfigMap, Name: "o", UID: "u"}},
		Status: ResourceStatus{
			Conditions: []Condition{{Type: "Synthesized", Status: ConditionTrue}},
			Synthesis:  map[string]string{"model": "m"},
		},
	}
	cp := r.DeepCopy()
	cp.Labels["a"] = "x"
	cp.Annotations["b"] = "x"
	cp.Data["c"] = "x"
	cp.Owners[0].UID = "x"
	cp.Status.Conditions[0].Status = ConditionFalse
	cp.Status.Synthesis["model"] = "x"

	assert.Equal(t, "1", r.Labels["a"])
	assert.Equal(t, "2", r.Annotations["b"])
	assert.Equal(t, "3", r.Data["c"])
	assert.Equal(t, "u", r.Owners[0].UID)
	assert.Equal(t, ConditionTrue, r.Status.Conditions[0].Status)
	assert.Equal(t, "m", r.Status.Synthesis["model"])
	assert.True(t, r.OwnedBy("u"))
	assert.False(t, r.OwnedBy(""))
}

func TestConflictError(t *testing.T) {
	err := &ConflictError{Kind: KindConfigMap, Namespace: "ns", Name: "a", ExpectedVersion: "1", ActualVersion: "2"}
	assert.True(t, IsConflict(err))
	assert.Contains(t, err.Error(), "expected resource version 1, got 2")
	assert.False(t, IsNotFound(err))
	assert.True(t, IsNotFound(NotFound(KindPod, "ns", "p")))
}
