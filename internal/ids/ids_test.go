package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSessionID_Valid(t *testing.T) {
	id := NewSessionID()
	assert.True(t, Valid(id))
}

func TestNewSessionID_Unique(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()
	assert.NotEqual(t, a, b)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(ZeroTenantID))
	assert.False(t, Valid("not-a-uuid"))
	assert.False(t, Valid(""))
}

func TestNewTenantID_ValidAndUnique(t *testing.T) {
	a := NewTenantID()
	b := NewTenantID()
	assert.True(t, Valid(a))
	assert.NotEqual(t, a, b)
}

func TestNewSessionID_TimeOrdered(t *testing.T) {
	// UUIDv7 encodes a millisecond timestamp in its leading bytes, so
	// lexical string order matches generation order.
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = NewSessionID()
	}
	for i := 1; i < len(ids); i++ {
		assert.True(t, ids[i-1] < ids[i], "session ids should sort in generation order")
	}
}
