package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateInstanceID(t *testing.T) {
	a := GenerateInstanceID()
	b := GenerateInstanceID()

	assert.NotEqual(t, a, b)
	assert.Len(t, strings.Split(a, "-")[len(strings.Split(a, "-"))-1], 8)
}
