// Package version implements the dotted-numeric version ordering used by the
// update pipeline. Versions are sequences of numeric parts separated by dots;
// missing parts compare as zero, so "1.2", "1.2.0" and "1.2.0.0" are equal.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Compare returns -1, 0 or 1 depending on whether a is ordered before, equal
// to, or after b. Parts are compared numerically left to right; the shorter
// version is padded with zeros. Non-numeric parts compare as zero.
func Compare(a, b string) int {
	partsA := strings.Split(a, ".")
	partsB := strings.Split(b, ".")

	n := len(partsA)
	if len(partsB) > n {
		n = len(partsB)
	}

	for i := 0; i < n; i++ {
		na := partAt(partsA, i)
		nb := partAt(partsB, i)
		if na < nb {
			return -1
		}
		if na > nb {
			return 1
		}
	}

	return 0
}

// IsDowngrade reports whether candidate is ordered strictly before current.
func IsDowngrade(current, candidate string) bool {
	return Compare(current, candidate) > 0
}

// AtLeast reports whether v satisfies the minimum version min.
func AtLeast(v, min string) bool {
	return Compare(v, min) >= 0
}

// Validate checks that v is a non-empty dot-separated sequence of unsigned
// numeric parts.
func Validate(v string) error {
	if v == "" {
		return fmt.Errorf("empty version")
	}

	for _, part := range strings.Split(v, ".") {
		if part == "" {
			return fmt.Errorf("invalid version %q: empty part", v)
		}
		if _, err := strconv.ParseUint(part, 10, 64); err != nil {
			return fmt.Errorf("invalid version %q: non-numeric part %q", v, part)
		}
	}

	return nil
}

// partAt returns the numeric value of parts[i], treating missing or
// non-numeric parts as zero.
func partAt(parts []string, i int) uint64 {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.ParseUint(parts[i], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
