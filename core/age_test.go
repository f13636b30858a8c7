package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAge_AcceptsWholeRange(t *testing.T) {
	for a := MinAge; a <= MaxAge; a++ {
		got, err := ValidateAge(fmt.Sprintf("%d", a))
		require.NoError(t, err, "age %d", a)
		assert.Equal(t, uint32(a), got)
	}
}

func TestValidateAge_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"zero", "0"},
		{"negative", "-5"},
		{"too old", "151"},
		{"huge", "99999999999999999999"},
		{"fraction", "25.5"},
		{"float notation", "25.0"},
		{"exponent", "1e2"},
		{"letters", "abc"},
		{"mixed", "25abc"},
		{"hex", "0x19"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateAge(tt.input)
			require.ErrorIs(t, err, ErrInvalidAge)
		})
	}
}

func TestValidateAge_TrimsWhitespace(t *testing.T) {
	got, err := ValidateAge(" 42\n")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), got)
}
