package domain

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

// ErrAllocationExhausted is returned when a unique identifier could not be
// generated within the retry limit.
var ErrAllocationExhausted = errors.New("identifier allocation exhausted")

const (
	// TimesheetIDLength is the fixed length of a weekly timesheet identifier.
	TimesheetIDLength = 8

	// idAlphabet deliberately excludes vowels and digits so generated
	// identifiers never spell words and are hard to misread.
	idAlphabet = "ABCDFGHJKLMNPQRSTVWXYZ"

	maxIDAttempts = 10000
)

// NewTimesheetID generates an identifier beginning with namespace (the yyMM
// month code) padded to eight characters from the restricted alphabet. The
// caller supplies the set of identifiers already issued for the namespace;
// generation retries until the result is absent from that set, up to a fixed
// attempt limit. The allocator keeps no state of its own.
func NewTimesheetID(namespace string, used map[string]struct{}) (string, error) {
	return newIDFromPool(namespace, idAlphabet, used, maxIDAttempts)
}

func newIDFromPool(namespace, pool string, used map[string]struct{}, attempts int) (string, error) {
	if len(namespace) >= TimesheetIDLength {
		return "", fmt.Errorf("namespace %q leaves no room for random suffix", namespace)
	}
	if pool == "" {
		return "", errors.New("character pool is empty")
	}

	for i := 0; i < attempts; i++ {
		var sb strings.Builder
		sb.WriteString(namespace)
		for sb.Len() < TimesheetIDLength {
			sb.WriteByte(pool[rand.IntN(len(pool))])
		}
		id := sb.String()
		if _, taken := used[id]; !taken {
			return id, nil
		}
	}

	return "", fmt.Errorf("%w: namespace %q after %d attempts", ErrAllocationExhausted, namespace, attempts)
}
