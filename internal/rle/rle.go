// Package rle implements run-length encoding of character sequences.
//
// A run is a maximal repetition of one character. Encode renders each run as
// the character immediately followed by its decimal count, in input order:
//
//	Encode("aaabbcaaddb") == "a3b2c1a2d2b1"
//
// Decode is the exact inverse for inputs that contain no decimal digits.
// Digits used as data make the encoded form ambiguous; see Reversible.
package rle

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Run is one maximal repetition of Char.
type Run struct {
	Char  rune `json:"char"`
	Count int  `json:"count"`
}

// String renders the run in encoded form.
func (r Run) String() string {
	return string(r.Char) + strconv.Itoa(r.Count)
}

// Encoder groups consecutive equal characters and calls emit once per run.
// The zero value is not usable; create one with NewEncoder.
type Encoder struct {
	emit    func(Run)
	current rune
	count   int
}

// NewEncoder returns an Encoder that reports finished runs to emit.
func NewEncoder(emit func(Run)) *Encoder {
	return &Encoder{emit: emit}
}

// Append adds one character. A run is emitted only when the character changes.
func (e *Encoder) Append(r rune) {
	if e.count > 0 && r == e.current {
		e.count++
		return
	}
	e.Flush()
	e.current = r
	e.count = 1
}

// Flush emits the pending run, if any.
func (e *Encoder) Flush() {
	if e.count == 0 {
		return
	}
	e.emit(Run{Char: e.current, Count: e.count})
	e.count = 0
}

// Encode returns the run-length encoding of s. The empty string encodes to "".
func Encode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	enc := NewEncoder(func(r Run) {
		b.WriteRune(r.Char)
		b.WriteString(strconv.Itoa(r.Count))
	})
	for _, r := range s {
		enc.Append(r)
	}
	enc.Flush()
	return b.String()
}

// Runs returns the maximal runs of s in order.
func Runs(s string) []Run {
	var runs []Run
	enc := NewEncoder(func(r Run) { runs = append(runs, r) })
	for _, r := range s {
		enc.Append(r)
	}
	enc.Flush()
	return runs
}

// Format renders runs in encoded form. Encode(s) == Format(Runs(s)).
func Format(runs []Run) string {
	var b strings.Builder
	for _, r := range runs {
		b.WriteRune(r.Char)
		b.WriteString(strconv.Itoa(r.Count))
	}
	return b.String()
}

// Tally counts every distinct character of s, ordered by first occurrence.
// Unlike Encode it merges non-adjacent runs, so it is not reversible.
func Tally(s string) []Run {
	index := make(map[rune]int)
	var counts []Run
	for _, r := range s {
		if i, ok := index[r]; ok {
			counts[i].Count++
			continue
		}
		index[r] = len(counts)
		counts = append(counts, Run{Char: r, Count: 1})
	}
	return counts
}

// Reversible reports whether Decode(Encode(s)) is guaranteed to return s.
// Invalid UTF-8 is not: Encode reads each bad byte as utf8.RuneError.
func Reversible(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) {
			return false
		}
	}
	return true
}

// Ratio is the encoded size divided by the input size, in characters.
func Ratio(inputChars, outputChars int) float64 {
	if inputChars == 0 {
		return 0
	}
	return float64(outputChars) / float64(inputChars)
}

// CountChars returns the number of characters (runes) in s.
func CountChars(s string) int {
	return utf8.RuneCountInString(s)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
