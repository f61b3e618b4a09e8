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

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const billingBot = `require 'language_operator'

agent "billing-bot" do
  description "Answers billing questions"

  # Shortens invoices for the summary view.
  task :summarize,
    inputs: { text: 'string' },
    outputs: { summary: 'string' } do |inputs|
    text = inputs[:text]

    { summary: text[0, 100] }
  end

  task :classify do |inputs|
    prompt = <<~PROMPT
  end
  task :not_a_task
    PROMPT
    { label: llm(prompt) }
  end

  task :respond, inputs: { question: 'string' }, outputs: { answer: 'string' }

  main do |inputs|
    summary = execute_task(:summarize, inputs: inputs)
    execute_task(:respond, inputs: summary)
  end
end
`

func TestParse_RoundTrip(t *testing.T) {
	inputs := []string{
		billingBot,
		"",
		"task :a do\nend\n",
		"task :a do\nend",
		"  task :indented do |x|\n    x\n  end\n\n\n",
		strings.ReplaceAll(billingBot, "\n", "\r\n"),
	}
	for _, in := range inputs {
		doc, err := Parse(in)
		require.NoError(t, err)
		assert.Equal(t, in, doc.String())
	}
}

func TestParse_Declarations(t *testing.T) {
	doc, err := Parse(billingBot)
	require.NoError(t, err)

	assert.Equal(t, []string{"summarize", "classify", "respond"}, doc.Tasks())
	assert.Equal(t, "  ", doc.Indent())

	assert.Equal(t, SegmentPreamble, doc.Segments[0].Kind)
	assert.Equal(t, SegmentTrailer, doc.Segments[len(doc.Segments)-1].Kind)
	assert.Equal(t, "end\n", doc.Segments[len(doc.Segments)-1].Text)

	var keywords []string
	for _, s := range doc.Segments {
		if s.Kind == SegmentDeclaration {
			keywords = append(keywords, s.Keyword)
		}
	}
	assert.Equal(t, []string{"description", "task", "task", "task", "main"}, keywords)

	src, err := doc.TaskSource("summarize")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(src, "  task :summarize,\n"))
	assert.True(t, strings.HasSuffix(src, "  end\n"))
	assert.Contains(t, src, "\n\n    { summary")

	// Heredoc content never splits the enclosing task.
	src, err = doc.TaskSource("classify")
	require.NoError(t, err)
	assert.Contains(t, src, "task :not_a_task")
	assert.Contains(t, src, "{ label: llm(prompt) }")
}

func TestParse_UnclosedAgentBlock(t *testing.T) {
	_, err := Parse("agent \"x\" do\n  task :a\n")
	assert.Error(t, err)
}

func TestSpliceTask_PreservesOtherBytes(t *testing.T) {
	doc, err := Parse(billingBot)
	require.NoError(t, err)
	original, err := doc.TaskSource("classify")
	require.NoError(t, err)
	start := strings.Index(billingBot, original)
	require.GreaterOrEqual(t, start, 0)
	end := start + len(original)

	def := TaskDefinition{
		Inputs:  map[string]string{"text": "string"},
		Outputs: map[string]string{"label": "string", "confidence": "number"},
	}
	out, err := SpliceTask(billingBot, "classify", def, "{ label: 'refund', confidence: 0.9 }")
	require.NoError(t, err)

	assert.Equal(t, billingBot[:start], out[:start])
	assert.Equal(t, billingBot[end:], out[len(out)-len(billingBot[end:]):])

	replaced := out[start : len(out)-len(billingBot[end:])]
	assert.Equal(t, `  task :classify,
    inputs: { text: 'string' },
    outputs: { confidence: 'number', label: 'string' } do |inputs|
    { label: 'refund', confidence: 0.9 }
  end
`, replaced)

	reparsed, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"summarize", "classify", "respond"}, reparsed.Tasks())
}

func TestSpliceTask_NotFound(t *testing.T) {
	out, err := SpliceTask(billingBot, "translate", TaskDefinition{}, "{}")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.Empty(t, out)

	doc, err := Parse(billingBot)
	require.NoError(t, err)
	assert.ErrorIs(t, doc.ReplaceTask("translate", "x"), ErrTaskNotFound)
	assert.Equal(t, billingBot, doc.String())
}

func TestSpliceTask_DuplicateTask(t *testing.T) {
	src := "task :a do\nend\ntask :a do\nend\n"
	_, err := SpliceTask(src, "a", TaskDefinition{}, "1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrTaskNotFound)
}

func TestRenderTask(t *testing.T) {
	tests := []struct {
		name   string
		indent string
		def    TaskDefinition
		body   string
		want   string
	}{
		{
			name:   "empty signature",
			indent: "",
			body:   "\n    1 + 1\n\n",
			want:   "task :calc,\n  inputs: {},\n  outputs: {} do |inputs|\n  1 + 1\nend\n",
		},
		{
			name:   "multi-line body keeps relative indent",
			indent: "  ",
			def:    TaskDefinition{Inputs: map[string]string{"n": "integer"}},
			body:   "if inputs[:n] > 1\n  { big: true }\nelse\n\n  { big: false }\nend",
			want: "  task :calc,\n    inputs: { n: 'integer' },\n    outputs: {} do |inputs|\n" +
				"    if inputs[:n] > 1\n      { big: true }\n    else\n\n      { big: false }\n    end\n  end\n",
		},
		{
			name:   "complete block is re-indented only",
			indent: "  ",
			body:   "task :calc do |inputs|\n  2\nend\n",
			want:   "  task :calc do |inputs|\n    2\n  end\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderTask(tt.indent, "calc", tt.def, tt.body))
		})
	}
}

func TestParse_NoWrapper(t *testing.T) {
	src := "task :a do\n  1\nend\n\ntask :b do\n  2\nend\n"
	doc, err := Parse(src)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, doc.Tasks())
	assert.Equal(t, "", doc.Indent())

	out, err := SpliceTask(src, "b", TaskDefinition{}, "3")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "task :a do\n  1\nend\n\n"))
	assert.Contains(t, out, "  3\nend\n")
}

func TestParseSignature(t *testing.T) {
	def := ParseSignature("  task :summarize,\n    inputs: { text: 'string', limit: :integer },\n    outputs: { summary: \"string\" } do |inputs|\n")
	assert.Equal(t, map[string]string{"text": "string", "limit": "integer"}, def.Inputs)
	assert.Equal(t, map[string]string{"summary": "string"}, def.Outputs)

	empty := ParseSignature("task :noop do\nend\n")
	assert.Nil(t, empty.Inputs)
	assert.Nil(t, empty.Outputs)
}

func TestParse_LiteralContentAtScopeIndent(t *testing.T) {
	src := `agent "notes" do
  task :format do |inputs|
    header = "Report
task :not_a_task
end"
    footer = %q{
{ nested }
end
}
    sep = /\s"/
    { text: [header, footer].join(sep.source) }
  end

  task :tail do |inputs|
    { ok: true }
  end
end
`
	doc, err := Parse(src)
	require.NoError(t, err)
	assert.Equal(t, src, doc.String())
	assert.Equal(t, []string{"format", "tail"}, doc.Tasks())

	body, err := doc.TaskSource("format")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(body, "join(sep.source) }\n  end\n"))

	out, err := SpliceTask(src, "format", TaskDefinition{}, "{ text: 'x' }")
	require.NoError(t, err)
	assert.NotContains(t, out, "not_a_task")
	assert.NotContains(t, out, "nested")
	reparsed, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"format", "tail"}, reparsed.Tasks())
}

func TestLiteralState(t *testing.T) {
	tests := []struct {
		name      string
		lines     []string
		unbalance bool
	}{
		{name: "closed string", lines: []string{`x = "a 'b' #{c}"`}},
		{name: "open string", lines: []string{`x = "abc`}, unbalance: true},
		{name: "string closes on next line", lines: []string{`x = 'ab`, `cd'`}},
		{name: "percent literal nests", lines: []string{`%w{a {b}`, `c}`}},
		{name: "open percent literal", lines: []string{`%Q(a (b)`}, unbalance: true},
		{name: "modulo is not a literal", lines: []string{`n = total % 2`}},
		{name: "regex with quote", lines: []string{`s.split(/"/)`}},
		{name: "division", lines: []string{`avg = sum / count`}},
		{name: "comment quote ignored", lines: []string{`x = 1 # don't`}},
		{name: "open hash", lines: []string{`h = {`}, unbalance: true},
		{name: "escaped quote", lines: []string{`x = "a\"b"`}},
		{name: "predicate method", lines: []string{`ok = s.empty? ? "y" : "n"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l literalState
			for _, line := range tt.lines {
				l.scan(line)
			}
			assert.Equal(t, tt.unbalance, l.unbalanced())
		})
	}
}
