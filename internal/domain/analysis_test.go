package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatHistory(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Text: "The pump is leaking."},
		{Role: RoleAssistant, Text: "Replace the seal."},
		{Role: RoleUser, Text: "Which seal?"},
	}

	expected := "User: The pump is leaking.\n\nAssistant: Replace the seal.\n\nUser: Which seal?"
	assert.Equal(t, expected, FormatHistory(turns))
	assert.Equal(t, "", FormatHistory(nil))
}
