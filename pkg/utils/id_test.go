package utils

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var hex24 = regexp.MustCompile(`^[0-9a-f]{24}$`)

func TestGenerateIDFormat(t *testing.T) {
	id := GenerateID()
	assert.True(t, hex24.MatchString(id), "got %q", id)
}

func TestGenerateIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateID()
		assert.False(t, seen[id], "duplicate id %q", id)
		seen[id] = true
	}
}
