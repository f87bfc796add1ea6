package role

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{System, User, Assistant} {
		assert.True(t, r.Valid(), r.String())
	}

	assert.False(t, Role("tool").Valid())
	assert.False(t, Role("").Valid())
}

func TestRole_String(t *testing.T) {
	assert.Equal(t, "assistant", Assistant.String())
}
