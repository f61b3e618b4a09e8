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
package agentcode

import "regexp"

var (
	inputsRe  = regexp.MustCompile(`inputs:\s*\{([^}]*)\}`)
	outputsRe = regexp.MustCompile(`outputs:\s*\{([^}]*)\}`)
	fieldRe   = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*):\s*['":]?([A-Za-z_][A-Za-z0-9_]*)['"]?`)
)

// ParseSignature extracts the inputs and outputs hashes from a task header.
// Fields it cannot read are omitted.
func ParseSignature(taskSource string) TaskDefinition {
	return TaskDefinition{
		Inputs:  parseFields(inputsRe, taskSource),
		Outputs: parseFields(outputsRe, taskSource),
	}
}

func parseFields(re *regexp.Regexp, src string) map[string]string {
	m := re.FindStringSubmatch(src)
	if m == nil {
		return nil
	}
	fields := map[string]string{}
	for _, f := range fieldRe.FindAllStringSubmatch(m[1], -1) {
		fields[f[1]] = f[2]
	}
	return fields
}
