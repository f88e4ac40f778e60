package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidUsername(t *testing.T) {
	valid := []string{"alice", "Bob", "alice2", "xXsharpshooterXx"}
	for _, u := range valid {
		assert.Truef(t, ValidUsername(u), "expected %q to be valid", u)
	}

	// "_" and "-" are the separators in chat and game ids.
	invalid := []string{"", "a_b", "a-b", "_alice", "bob-"}
	for _, u := range invalid {
		assert.Falsef(t, ValidUsername(u), "expected %q to be invalid", u)
	}
}
