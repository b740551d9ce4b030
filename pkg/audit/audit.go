// Package audit flags caller-supplied words that appear in content as whole
// words.
package audit

import (
	"regexp"
	"sort"
	"unicode"
	"unicode/utf8"
)

// Request is a single audit query.
type Request struct {
	Content       string
	TargetWords   []string
	CustomMessage string
}

// Result is the outcome of an audit.
type Result struct {
	IsSafe bool
	// FlaggedWords holds the matched target words, deduplicated and sorted,
	// spelled exactly as they were supplied.
	FlaggedWords []string
	// ErrorMessage echoes the custom message when the content is unsafe.
	ErrorMessage string
}

// Audit reports which target words occur in the content as case-insensitive
// whole words. A match must be bounded on both sides by a non-word rune or by
// the edge of the content. Every target word is matched literally.
func Audit(req Request) Result {
	seen := make(map[string]struct{}, len(req.TargetWords))
	flagged := make([]string, 0)

	for _, word := range req.TargetWords {
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}

		if ContainsWord(req.Content, word) {
			flagged = append(flagged, word)
		}
	}
	sort.Strings(flagged)

	result := Result{
		IsSafe:       len(flagged) == 0,
		FlaggedWords: flagged,
	}
	if !result.IsSafe {
		result.ErrorMessage = req.CustomMessage
	}
	return result
}

// ContainsWord reports whether word occurs in content, ignoring case, with word
// boundaries on both sides. An empty word never matches.
func ContainsWord(content, word string) bool {
	if word == "" {
		return false
	}

	pattern := regexp.MustCompile("(?i)" + regexp.QuoteMeta(word))

	offset := 0
	for offset <= len(content) {
		loc := pattern.FindStringIndex(content[offset:])
		if loc == nil {
			return false
		}
		start, end := offset+loc[0], offset+loc[1]
		if boundaryBefore(content, start) && boundaryAfter(content, end) {
			return true
		}

		// Retry one rune further so overlapping candidates are not skipped.
		_, width := utf8.DecodeRuneInString(content[start:])
		if width == 0 {
			width = 1
		}
		offset = start + width
	}
	return false
}

// IsWordRune reports whether r is part of a word: a letter, a digit or an
// underscore.
func IsWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !IsWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i == len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !IsWordRune(r)
}
