package agentcard

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.Equal(t, "Travel Assistant", c.Name)
	require.True(t, c.Capabilities.Streaming)
	require.NotEmpty(t, c.Skills)
	require.Equal(t, []string{"text"}, c.DefaultInputModes)
}

func TestLoad_EmptyPathUsesDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	d, err := Default()
	require.NoError(t, err)
	require.Equal(t, d, c)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: Custom
version: 2.0.0
skills:
  - id: a
    name: A
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "Custom", c.Name)
	require.Len(t, c.Skills, 1)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Parse([]byte("version: 1"))
	require.ErrorContains(t, err, "name is required")

	_, err = Parse([]byte("name: x\nskills: [{id: a}, {id: a}]"))
	require.ErrorContains(t, err, "duplicate skill id")

	_, err = Parse([]byte("name: [unterminated"))
	require.Error(t, err)
}

func TestWithBaseURL(t *testing.T) {
	c := Card{Name: "x"}
	require.Equal(t, "http://localhost:8000/a2a/", c.WithBaseURL("http://localhost:8000/").URL)
	require.Empty(t, c.URL)
	require.Empty(t, c.WithBaseURL("").URL)

	c.URL = "https://fixed/"
	require.Equal(t, "https://fixed/", c.WithBaseURL("http://other").URL)
}

func TestJSONShape(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	b, err := json.Marshal(c)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	for _, k := range []string{"name", "description", "url", "version", "capabilities", "defaultInputModes", "defaultOutputModes", "skills"} {
		require.Contains(t, m, k)
	}
	require.Contains(t, m["capabilities"], "pushNotifications")
}
