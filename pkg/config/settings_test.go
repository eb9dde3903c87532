package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "8080", s.Port)
	assert.Equal(t, "development", s.NodeEnv)
	assert.False(t, s.ForceAuth)
	assert.Equal(t, StorageLocal, s.StorageBackend)
	assert.Nil(t, s.CORSOrigins)
}

func TestLoadSettingsParsesOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FORCE_AUTH", "true")
	t.Setenv("CORS_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("STORAGE_BACKEND", "gcs")

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "9090", s.Port)
	assert.True(t, s.ForceAuth)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, s.CORSOrigins)
	assert.Equal(t, StorageGCS, s.StorageBackend)
}

func TestLoadSettingsRejectsInvalidStorageBackend(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "s3")
	_, err := LoadSettings()
	assert.Error(t, err)
}

func TestLoadAgentRegistryParsesToolsAndAgents(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/agents.yaml"
	const yamlBody = `
agents:
  negotiator:
    model: claude-sonnet-4
    system: "You negotiate on behalf of the buyer."
    reasoning_effort: medium
    tools:
      - name: end_chat
        description: "End the chat and record the outcome"
        parameters:
          type: object
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	reg, err := LoadAgentRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())

	def, ok := reg.Agent("negotiator")
	require.True(t, ok)
	assert.Equal(t, "claude-sonnet-4", def.Model)
	assert.Equal(t, "medium", def.ReasoningEffort)
	require.Len(t, def.Tools, 1)
	assert.Equal(t, "end_chat", def.Tools[0].Name)

	_, ok = reg.Agent("nonexistent")
	assert.False(t, ok)
}

func TestLoadAgentRegistryRejectsMissingModel(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/agents.yaml"
	require.NoError(t, os.WriteFile(path, []byte("agents:\n  broken:\n    system: \"no model set\"\n"), 0o600))

	_, err := LoadAgentRegistry(path)
	assert.Error(t, err)
}
