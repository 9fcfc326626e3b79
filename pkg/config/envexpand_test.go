package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv_SubstitutesVariables(t *testing.T) {
	t.Setenv("EXPAND_TEST_VALUE", "hello")
	out := ExpandEnv([]byte("key: {{.EXPAND_TEST_VALUE}}"))
	assert.Equal(t, "key: hello", string(out))
}

func TestExpandEnv_MissingVariableExpandsEmpty(t *testing.T) {
	out := ExpandEnv([]byte("key: '{{.DEFINITELY_NOT_SET_ANYWHERE}}'"))
	assert.Equal(t, "key: ''", string(out))
}

func TestExpandEnv_DollarSignsUntouched(t *testing.T) {
	in := []byte("persona: 'costs $100 per $UNIT'")
	assert.Equal(t, in, ExpandEnv(in))
}

func TestExpandEnv_BrokenTemplateReturnedVerbatim(t *testing.T) {
	in := []byte("key: {{.unclosed")
	assert.Equal(t, in, ExpandEnv(in))
}
