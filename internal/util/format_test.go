package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateContent(t *testing.T) {
	assert.Equal(t, "short", TruncateContent("short", 10))
	assert.Equal(t, "exactly10!", TruncateContent("exactly10!", 10))
	assert.Equal(t, "Thông b...", TruncateContent("Thông báo nghỉ học", 7))
}
