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
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/agentctl/pkg/agentcode"
	"github.com/teradata-labs/agentctl/pkg/cluster"
	"github.com/teradata-labs/agentctl/pkg/cluster/sqlstore"
	"github.com/teradata-labs/agentctl/pkg/optimizer"
	"github.com/teradata-labs/agentctl/pkg/rollback"
	"github.com/teradata-labs/agentctl/pkg/versions"
)

func TestPrinterTable(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, "table", false)
	require.NoError(t, p.table([]string{"VERSION", "SOURCE"}, [][]string{{"v2", "optimized"}, {"v1", "original"}}))
	assert.Equal(t, "VERSION  SOURCE\nv2       optimized\nv1       original\n", buf.String())
}

func TestPrinterEncode(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, "json", false)
	require.True(t, p.structured())
	require.NoError(t, p.encode(map[string]int{"pods": 2}))
	assert.JSONEq(t, `{"pods": 2}`, buf.String())

	buf.Reset()
	p = newPrinter(&buf, "yaml", false)
	require.NoError(t, p.encode(map[string]int{"pods": 2}))
	assert.Equal(t, "pods: 2\n", buf.String())
}

func TestPrinterNoColor(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, "table", false)
	p.ok("applied %s", "v4")
	assert.Equal(t, "✓ applied v4\n", buf.String())
	assert.Equal(t, "+x\n-y", p.colorDiff("+x\n-y"))
}

func TestPrompterDecide(t *testing.T) {
	proposal := &optimizer.Proposal{
		TaskName:     "summarize",
		CurrentCode:  "task :summarize do |inputs|\n  llm(inputs)\nend\n",
		ProposedCode: "task :summarize do |inputs|\n  inputs[:text]\nend\n",
	}
	tests := []struct {
		input string
		want  optimizer.Decision
	}{
		{"a\n", optimizer.DecisionAccept},
		{"maybe\nr\n", optimizer.DecisionReject},
		{"q\n", optimizer.DecisionAbort},
		{"\n", optimizer.DecisionReject},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		pr := newPrompter(strings.NewReader(tt.input), &out, newPrinter(&out, "table", false))
		got, err := pr.Decide(context.Background(), "billing-bot", proposal)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.input)
		assert.Contains(t, out.String(), "+  inputs[:text]")
	}
}

func TestPrompterChoose(t *testing.T) {
	choices := []rollback.Choice{
		{Label: "v3", Version: "v3", Disabled: true},
		{Label: "v2", Version: "v2"},
		{Label: "v1", Version: "v1"},
	}
	var out bytes.Buffer
	pr := newPrompter(strings.NewReader("1\nv9\n3\n"), &out, newPrinter(&out, "table", false))
	got, err := pr.choose("Versions", choices)
	require.NoError(t, err)
	assert.Equal(t, "v1", got)
	assert.Contains(t, out.String(), "v3 is already active")
	assert.Contains(t, out.String(), `Unknown choice "v9"`)

	pr = newPrompter(strings.NewReader("\n"), &out, newPrinter(&out, "table", false))
	_, err = pr.choose("Versions", choices)
	assert.ErrorIs(t, err, errCancelled)
}

func TestPrompterConfirm(t *testing.T) {
	var out bytes.Buffer
	pr := newPrompter(strings.NewReader("what\nyes\n"), &out, nil)
	ok, err := pr.confirm("Roll back?", false)
	require.NoError(t, err)
	assert.True(t, ok)

	pr = newPrompter(strings.NewReader(""), &out, nil)
	_, err = pr.confirm("Roll back?", false)
	assert.Error(t, err)
}

func TestVersionsListCommand(t *testing.T) {
	resetConfig(t)
	bindRootFlags()
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "agentctl.db")

	store, err := sqlstore.Open(ctx, sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: dsn})
	require.NoError(t, err)
	_, err = store.Create(ctx, &cluster.Resource{
		Kind:      cluster.KindConfigMap,
		Namespace: "default",
		Name:      versions.BaseName("billing-bot"),
		Labels:    cluster.CodeSelector("billing-bot"),
		Data: map[string]string{versions.DataKey: "agent \"billing-bot\" do\n  task :summarize do |inputs|\n    llm(inputs)\n  end\nend\n"},
	})
	require.NoError(t, err)
	vs, err := versions.New(versions.Config{Cluster: store, Namespace: "default"})
	require.NoError(t, err)
	_, err = vs.CreateVersion(ctx, "billing-bot", versions.Change{
		TaskName:   "summarize",
		Definition: agentcode.TaskDefinition{},
		Body:       "inputs[:text]",
		SourceType: versions.SourceOptimized,
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--backend", "sqlite", "--dsn", dsn, "-o", "json", "versions", "list", "billing-bot"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })
	require.NoError(t, rootCmd.ExecuteContext(ctx))

	var list []versions.Artifact
	require.NoError(t, json.Unmarshal(out.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "v2", list[0].ID)
	assert.True(t, list[0].Active)
	assert.Equal(t, versions.SourceOriginal, list[1].SourceType)
}
