package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveLogFormat(t *testing.T) {
	assert.Equal(t, "console", resolveLogFormat("console", false))
	assert.Equal(t, "json", resolveLogFormat("json", false))

	// --json wins over whatever the config says.
	assert.Equal(t, "json", resolveLogFormat("console", true))

	// Unset config falls back to console for interactive use.
	assert.Equal(t, "console", resolveLogFormat("", false))
}
