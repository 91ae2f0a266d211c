package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_FromFixture(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "scoreboard_update.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "scoreboard-update", s.Name)
	assert.Len(t, s.Replicants, 1)
	assert.Len(t, s.Flow, 2)
	require.NotNil(t, s.Flow[0].Expect)
	require.NotNil(t, s.Flow[0].Expect.Revision)
	assert.Equal(t, uint64(1), *s.Flow[0].Expect.Revision)
}

func TestLoadScenario_RejectsUnknownFields(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: catches misspelled keys
flows:
  - op: get
    namespace: a
    name: b
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flows")
}

func TestLoadScenario_Validation(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nflow:\n  - op: get\n    namespace: a\n    name: b\n",
			wantErr: "name is required",
		},
		{
			name:    "empty flow",
			yaml:    "name: n\ndescription: d\n",
			wantErr: "flow list is required",
		},
		{
			name:    "unknown op",
			yaml:    "name: n\ndescription: d\nflow:\n  - op: frobnicate\n    namespace: a\n    name: b\n",
			wantErr: "unknown op",
		},
		{
			name:    "set without value",
			yaml:    "name: n\ndescription: d\nflow:\n  - op: set\n    namespace: a\n    name: b\n",
			wantErr: "value is required",
		},
		{
			name: "assertion against unknown subscriber",
			yaml: "name: n\ndescription: d\nflow:\n  - op: get\n    namespace: a\n    name: b\n" +
				"assertions:\n  - type: delivered_count\n    subscriber: ghost\n    count: 1\n",
			wantErr: "unknown subscriber",
		},
		{
			name: "duplicate subscriber id",
			yaml: "name: n\ndescription: d\n" +
				"subscribers:\n  - id: a\n    namespace: x\n    name: y\n  - id: a\n    namespace: x\n    name: z\n" +
				"flow:\n  - op: get\n    namespace: x\n    name: y\n",
			wantErr: "duplicate id",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
