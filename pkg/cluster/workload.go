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
	"fmt"
)

// RestartWorkload deletes the agent's pods. The controller recreates them
// with the current base artifact mounted; replica counts and scheduling are
// not managed here.
func RestartWorkload(ctx context.Context, store Store, namespace, agent string) (int, error) {
	n, err := store.DeleteCollection(ctx, KindPod, namespace, AgentSelector(agent))
	if err != nil {
		return n, fmt.Errorf("failed to restart agent %s: %w", agent, err)
	}
	return n, nil
}
