package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "one request"
mode: request
requests:
  - name: ping
    path: ping
expect:
  outcome: succeeded
`

func TestParseScenario_AppliesDefaults(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, DefaultBaseURL, s.BaseURL)
	require.Len(t, s.Requests, 1)
	assert.Equal(t, "GET", s.Requests[0].Method)
	assert.Nil(t, s.StopOnFailure)
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "retries: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "description: d\nmode: request\nrequests: [{name: a, path: a}]\nexpect: {outcome: succeeded}\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: n\nmode: request\nrequests: [{name: a, path: a}]\nexpect: {outcome: succeeded}\n",
			want: "description is required",
		},
		{
			name: "bad mode",
			yaml: "name: n\ndescription: d\nmode: stream\nrequests: [{name: a, path: a}]\nexpect: {outcome: succeeded}\n",
			want: "mode must be one of",
		},
		{
			name: "stop_on_success outside chain",
			yaml: "name: n\ndescription: d\nmode: batch\nstop_on_success: true\nrequests: [{name: a, path: a}]\nexpect: {outcome: succeeded}\n",
			want: "stop_on_success only applies to chains",
		},
		{
			name: "no requests",
			yaml: "name: n\ndescription: d\nmode: request\nexpect: {outcome: succeeded}\n",
			want: "requests list is required",
		},
		{
			name: "nothing to check",
			yaml: "name: n\ndescription: d\nmode: request\nrequests: [{name: a, path: a}]\n",
			want: "expect or assertions is required",
		},
		{
			name: "route without path",
			yaml: "name: n\ndescription: d\nmode: request\nroutes: [{status: 200}]\nrequests: [{name: a, path: a}]\nexpect: {outcome: succeeded}\n",
			want: "routes[0]: path is required",
		},
		{
			name: "negative delay",
			yaml: "name: n\ndescription: d\nmode: request\nroutes: [{path: /v1/a, delay_ms: -1}]\nrequests: [{name: a, path: a}]\nexpect: {outcome: succeeded}\n",
			want: "delay_ms must be non-negative",
		},
		{
			name: "duplicate request",
			yaml: "name: n\ndescription: d\nmode: request\nrequests: [{name: a, path: a}, {name: a, path: b}]\nexpect: {outcome: succeeded}\n",
			want: `duplicate name "a"`,
		},
		{
			name: "request without path",
			yaml: "name: n\ndescription: d\nmode: request\nrequests: [{name: a}]\nexpect: {outcome: succeeded}\n",
			want: "requests[0]: path is required",
		},
		{
			name: "bad outcome",
			yaml: "name: n\ndescription: d\nmode: request\nrequests: [{name: a, path: a}]\nexpect: {outcome: done}\n",
			want: "expect.outcome must be",
		},
		{
			name: "unknown failed request",
			yaml: "name: n\ndescription: d\nmode: request\nrequests: [{name: a, path: a}]\nexpect: {outcome: failed, failed_request: b}\n",
			want: `expect.failed_request: unknown request "b"`,
		},
		{
			name: "unknown state",
			yaml: "name: n\ndescription: d\nmode: request\nrequests: [{name: a, path: a}]\nexpect: {outcome: failed, states: {a: broken}}\n",
			want: `unknown state "broken"`,
		},
		{
			name: "short trace_order",
			yaml: "name: n\ndescription: d\nmode: request\nrequests: [{name: a, path: a}]\nassertions: [{type: trace_order, events: [request.start]}]\n",
			want: "at least two events",
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\nmode: request\nrequests: [{name: a, path: a}]\nassertions: [{type: trace_exists, event: x}]\n",
			want: `unknown assertion type "trace_exists"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_AllFixturesParse(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		s, err := LoadScenario(f)
		require.NoError(t, err, f)
		assert.Equal(t, s.Name+".yaml", filepath.Base(f), "scenario name should match its file")
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
