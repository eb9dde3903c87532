package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnvBracedSyntax(t *testing.T) {
	t.Setenv("API_KEY", "secret123")
	result := ExpandEnv([]byte("api_key: ${API_KEY}"))
	assert.Equal(t, "api_key: secret123", string(result))
}

func TestExpandEnvBareDollarSyntax(t *testing.T) {
	t.Setenv("KUBECONFIG", "/home/user/.kube/config")
	result := ExpandEnv([]byte("path: $KUBECONFIG"))
	assert.Equal(t, "path: /home/user/.kube/config", string(result))
}

func TestExpandEnvMultipleSubstitutions(t *testing.T) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	result := ExpandEnv([]byte("dsn: ${DB_HOST}:${DB_PORT}"))
	assert.Equal(t, "dsn: localhost:5432", string(result))
}

func TestExpandEnvMissingVariableExpandsEmpty(t *testing.T) {
	result := ExpandEnv([]byte("key: ${DEFINITELY_NOT_SET_VAR}"))
	assert.Equal(t, "key: ", string(result))
}

func TestExpandEnvNoVariablesUnchanged(t *testing.T) {
	input := "static: value\nnested:\n  field: 1\n"
	result := ExpandEnv([]byte(input))
	assert.Equal(t, input, string(result))
}

func TestExpandEnvEmptyInput(t *testing.T) {
	assert.Equal(t, "", string(ExpandEnv([]byte(""))))
}
