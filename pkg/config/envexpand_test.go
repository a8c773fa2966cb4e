package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnvSubstitutesBracedAndBareVars(t *testing.T) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")

	input := "host: ${DB_HOST}\nport: $DB_PORT\n"
	want := "host: localhost\nport: 5432\n"

	assert.Equal(t, want, string(ExpandEnv([]byte(input))))
}

func TestExpandEnvMissingVariableExpandsEmpty(t *testing.T) {
	input := "api_key: ${SQUORCORE_DOES_NOT_EXIST}"
	assert.Equal(t, "api_key: ", string(ExpandEnv([]byte(input))))
}

func TestExpandEnvLeavesPlainYAMLUnchanged(t *testing.T) {
	input := "workflow:\n  worker_count: 5\n"
	assert.Equal(t, input, string(ExpandEnv([]byte(input))))
}

func TestExpandEnvEmptyInput(t *testing.T) {
	assert.Equal(t, "", string(ExpandEnv([]byte(""))))
}
