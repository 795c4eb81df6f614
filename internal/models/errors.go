package models

import "strings"

// ValidationError lists every problem found in a request. Queries failing validation
// are never sent to a provider.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, ", ")
}
