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
package safety

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		code string
		rule string
	}{
		{name: "clean", code: "{ summary: inputs[:text][0, 100] }"},
		{name: "system call", code: "system('rm -rf /')", rule: "shell-exec"},
		{name: "backticks", code: "out = `ls`", rule: "shell-exec"},
		{name: "percent x", code: "%x(whoami)", rule: "shell-exec"},
		{name: "popen", code: "IO.popen('ls')", rule: "shell-exec"},
		{name: "eval", code: "eval(inputs[:code])", rule: "dynamic-eval"},
		{name: "send", code: "obj.send(:secret)", rule: "reflection"},
		{name: "file write", code: "File.write('/etc/passwd', 'x')", rule: "filesystem-write"},
		{name: "file open append", code: "File.open('log', 'a') { |f| f << 1 }", rule: "filesystem-write"},
		{name: "exit", code: "exit!", rule: "process-control"},
		{name: "require", code: "  require 'net/http'", rule: "require"},
		{name: "env", code: "ENV['PATH'] = '/tmp'", rule: "env-mutation"},
		{name: "env compare is fine", code: "ENV['MODE'] == 'prod'"},
		{name: "commented out", code: "# system('ls')"},
	}
	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(tt.code)
			if tt.rule == "" {
				assert.Empty(t, got)
				return
			}
			require.NotEmpty(t, got)
			assert.Equal(t, tt.rule, got[0].Rule)
			assert.Equal(t, 1, got[0].Line)
			assert.Equal(t, SeverityError, got[0].Severity)
		})
	}
}

func TestValidate_LineNumbers(t *testing.T) {
	got := NewValidator().Validate("x = 1\ny = eval('2')\n")
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Line)
	assert.Equal(t, "line 2: evaluates code dynamically (dynamic-eval)", got[0].String())
}

func TestValidate_CredentialsAreWarnings(t *testing.T) {
	code := "api_key = 'sk-abcdefghijkl'"

	assert.Empty(t, NewValidator().Validate(code))
	require.Len(t, NewValidator().Warnings(code), 1)

	strict := NewValidator(WithStrict(true)).Validate(code)
	require.Len(t, strict, 1)
	assert.Equal(t, "credential", strict[0].Rule)
}

func TestValidate_Size(t *testing.T) {
	v := NewValidator(WithMaxBytes(10))
	got := v.Validate(strings.Repeat("a", 11))
	require.Len(t, got, 1)
	assert.Equal(t, "size", got[0].Rule)

	assert.Empty(t, NewValidator(WithMaxBytes(0), WithRules(nil)).Validate(strings.Repeat("a", DefaultMaxBytes+1)))
}
