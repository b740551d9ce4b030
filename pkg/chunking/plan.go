package chunking

import (
	"iter"
	"slices"
	"strings"
	"unicode/utf8"
)

// DefaultEventCount is the number of fragments used when a request does not
// specify one.
const DefaultEventCount = 5

// Fragments lazily partitions message into exactly eventCount contiguous
// fragments.
//
// With n runes, base = n / eventCount and rem = n % eventCount, the first rem
// fragments hold base+1 runes and the remaining ones hold base runes. When
// eventCount exceeds n the trailing fragments are empty strings; they are part
// of the plan and must still be emitted. A non-positive eventCount is treated
// as 1.
//
// Each fragment is computed when it is pulled, so the cost of the sequence does
// not depend on eventCount until it is consumed.
func Fragments(message string, eventCount int) iter.Seq[string] {
	eventCount = max(eventCount, 1)

	return func(yield func(string) bool) {
		total := utf8.RuneCountInString(message)
		base := total / eventCount
		remainder := total % eventCount

		rest := message
		for i := 0; i < eventCount; i++ {
			size := base
			if i < remainder {
				size++
			}
			head, tail := splitRunes(rest, size)
			if !yield(head) {
				return
			}
			rest = tail
		}
	}
}

// Plan collects Fragments into a slice.
func Plan(message string, eventCount int) []string {
	return slices.Collect(Fragments(message, eventCount))
}

// FixedSizeFragments lazily partitions message into consecutive fragments of
// size runes. The last fragment may be shorter. An empty message yields no
// fragments and a non-positive size is treated as 1.
func FixedSizeFragments(message string, size int) iter.Seq[string] {
	size = max(size, 1)

	return func(yield func(string) bool) {
		rest := message
		for rest != "" {
			head, tail := splitRunes(rest, size)
			if !yield(head) {
				return
			}
			rest = tail
		}
	}
}

// FixedSizePlan collects FixedSizeFragments into a slice. An empty message
// yields an empty, non-nil slice.
func FixedSizePlan(message string, size int) []string {
	fragments := []string{}
	for fragment := range FixedSizeFragments(message, size) {
		fragments = append(fragments, fragment)
	}
	return fragments
}

// TokenCount returns the number of whitespace-separated words in s.
func TokenCount(s string) int {
	return len(strings.Fields(s))
}

// splitRunes cuts s after the first n runes.
func splitRunes(s string, n int) (string, string) {
	offset := 0
	for i := 0; i < n && offset < len(s); i++ {
		_, width := utf8.DecodeRuneInString(s[offset:])
		offset += width
	}
	return s[:offset], s[offset:]
}
