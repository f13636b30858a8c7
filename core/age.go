package core

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	MinAge = 1
	MaxAge = 150

	// AdultAge is the threshold the contract compares the encrypted age against.
	AdultAge = 18
)

// ValidateAge parses user input into an age the contract accepts.
// Only base-10 integers in [MinAge, MaxAge] pass; "25.0", "1e2" and " " do not.
func ValidateAge(input string) (uint32, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, fmt.Errorf("empty input: %w", ErrInvalidAge)
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a whole number: %w", s, ErrInvalidAge)
	}
	if n < MinAge || n > MaxAge {
		return 0, fmt.Errorf("%d is out of range: %w", n, ErrInvalidAge)
	}

	return uint32(n), nil
}
