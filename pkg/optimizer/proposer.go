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
package optimizer

import (
	"context"
	"fmt"
)

// NewProposer picks the proposer used for the life of a pipeline. With
// useSynthesis set, synthesis is used directly. With both available, the
// pattern proposer is tried first and synthesis covers its failures.
func NewProposer(pattern, synthesis CodeProposer, useSynthesis bool) (CodeProposer, error) {
	switch {
	case useSynthesis && synthesis == nil:
		return nil, fmt.Errorf("synthesis requested but no language model is configured")
	case useSynthesis:
		return synthesis, nil
	case pattern != nil && synthesis != nil:
		return &fallbackProposer{primary: pattern, secondary: synthesis}, nil
	case pattern != nil:
		return pattern, nil
	case synthesis != nil:
		return synthesis, nil
	default:
		return nil, fmt.Errorf("no code proposer configured")
	}
}

type fallbackProposer struct {
	primary   CodeProposer
	secondary CodeProposer
}

func (f *fallbackProposer) Propose(ctx context.Context, agent, task string) (*Proposal, error) {
	p, err := f.primary.Propose(ctx, agent, task)
	if err == nil {
		return p, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	p, err2 := f.secondary.Propose(ctx, agent, task)
	if err2 != nil {
		return nil, fmt.Errorf("pattern proposer: %v; synthesis: %w", err, err2)
	}
	return p, nil
}
