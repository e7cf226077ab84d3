package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedIDGenerator_ReturnsSameID(t *testing.T) {
	gen := NewFixedIDGenerator("fetch-123")

	assert.Equal(t, "fetch-123", gen.Generate())
	assert.Equal(t, "fetch-123", gen.Generate())
}

func TestFixedIDGenerator_EmptyIDDefault(t *testing.T) {
	gen := NewFixedIDGenerator("")
	assert.Equal(t, "test-fetch-default", gen.Generate())
}
