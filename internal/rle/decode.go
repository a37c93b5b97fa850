package rle

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrOutputTooLarge is returned by DecodeLimit when the expansion exceeds its limit.
var ErrOutputTooLarge = errors.New("decoded output exceeds limit")

// DecodeError describes malformed encoded input.
type DecodeError struct {
	// Offset is the byte offset in the encoded string.
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed encoding at byte %d: %s", e.Offset, e.Reason)
}

// ParseRuns parses alternating (character, decimal count) pairs.
// Counts must be positive and carry no leading zeros, so every accepted
// string is exactly what Encode or Format would produce for its runs.
func ParseRuns(s string) ([]Run, error) {
	var runs []Run
	i := 0
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			return nil, &DecodeError{Offset: i, Reason: "invalid UTF-8"}
		}
		if r < utf8.RuneSelf && isDigit(byte(r)) {
			return nil, &DecodeError{Offset: i, Reason: fmt.Sprintf("expected a character, found digit %q", r)}
		}
		i += size

		start := i
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		digits := s[start:i]
		if digits == "" {
			return nil, &DecodeError{Offset: start, Reason: fmt.Sprintf("missing count after %q", r)}
		}
		if digits[0] == '0' {
			return nil, &DecodeError{Offset: start, Reason: fmt.Sprintf("count %q must be positive without leading zeros", digits)}
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			return nil, &DecodeError{Offset: start, Reason: fmt.Sprintf("count %q out of range", digits)}
		}
		runs = append(runs, Run{Char: r, Count: n})
	}
	return runs, nil
}

// DefaultMaxChars bounds the output of Decode, and of DecodeLimit when no
// positive limit is given.
const DefaultMaxChars = 1 << 26

// Decode expands encoded input back into the original sequence.
// Expansions longer than DefaultMaxChars fail with ErrOutputTooLarge.
func Decode(s string) (string, error) {
	return DecodeLimit(s, DefaultMaxChars)
}

// DecodeLimit is like Decode but fails with ErrOutputTooLarge once the output
// would exceed maxChars characters. A maxChars of 0 or less means DefaultMaxChars.
func DecodeLimit(s string, maxChars int) (string, error) {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	runs, err := ParseRuns(s)
	if err != nil {
		return "", err
	}

	total := 0
	size := 0
	for _, r := range runs {
		if r.Count > maxChars-total {
			return "", ErrOutputTooLarge
		}
		total += r.Count
		width := utf8.RuneLen(r.Char)
		if r.Count > (math.MaxInt-size)/width {
			return "", ErrOutputTooLarge
		}
		size += r.Count * width
	}

	var b strings.Builder
	b.Grow(size)
	for _, r := range runs {
		for n := 0; n < r.Count; n++ {
			b.WriteRune(r.Char)
		}
	}
	return b.String(), nil
}
