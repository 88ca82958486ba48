package sms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateLengthAndCharset(t *testing.T) {
	gen := NewCodeGenerator(6, false, "", 1)
	for i := 0; i < 50; i++ {
		code := gen.Generate()
		assert.Len(t, code, 6)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9')
		}
	}
}

func TestGenerateSandboxFixed(t *testing.T) {
	gen := NewCodeGenerator(6, true, "123456", 1)
	assert.Equal(t, "123456", gen.Generate())
	assert.Equal(t, "123456", gen.Generate())
}

func TestGenerateSandboxWithoutFixedFallsBack(t *testing.T) {
	gen := NewCodeGenerator(4, true, "", 1)
	assert.Len(t, gen.Generate(), 4)
}

func TestGenerateDefaultLength(t *testing.T) {
	gen := NewCodeGenerator(0, false, "", 1)
	assert.Len(t, gen.Generate(), 6)
}
