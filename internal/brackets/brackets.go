// Package brackets decides whether a sequence of (), [] and {} is well-formed.
//
// Validation keeps a pending-close stack: every opener pushes the closer it
// expects, every closer must match the value popped from the top. The stack
// belongs to a single call, so all functions are safe for concurrent use.
package brackets

import "fmt"

// Policy controls how characters other than the six bracket tokens are handled.
type Policy int

const (
	// PolicyReject treats any non-bracket character as invalid input.
	PolicyReject Policy = iota
	// PolicyIgnore skips non-bracket characters.
	PolicyIgnore
	// PolicyImplicitClose compares every non-opener against the pending closer,
	// so a non-bracket character always fails unless it equals that closer.
	PolicyImplicitClose
)

// DefaultPolicy is used by IsValid.
const DefaultPolicy = PolicyReject

var policyNames = map[Policy]string{
	PolicyReject:        "reject",
	PolicyIgnore:        "ignore",
	PolicyImplicitClose: "implicit_close",
}

// String returns the config/wire name of the policy.
func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy parses a policy name. The empty string yields DefaultPolicy.
func ParsePolicy(s string) (Policy, error) {
	if s == "" {
		return DefaultPolicy, nil
	}
	for p, name := range policyNames {
		if name == s {
			return p, nil
		}
	}
	return DefaultPolicy, fmt.Errorf("unknown bracket policy %q (want reject, ignore or implicit_close)", s)
}

// PolicyNames lists the accepted policy names.
func PolicyNames() []string {
	return []string{"reject", "ignore", "implicit_close"}
}

// Outcome classifies the result of a check.
type Outcome string

const (
	OutcomeBalanced         Outcome = "balanced"
	OutcomeMismatch         Outcome = "mismatch"          // closer differs from the pending one
	OutcomeUnexpectedClose  Outcome = "unexpected_close"  // closer with an empty stack
	OutcomeUnclosed         Outcome = "unclosed"          // openers left at end of input
	OutcomeInvalidCharacter Outcome = "invalid_character" // non-bracket under PolicyReject or an unknown policy
)

// Result is the detailed verdict for one sequence.
type Result struct {
	Valid   bool
	Outcome Outcome

	// Offset is the rune index where validation failed, or -1.
	Offset int

	// Found is the offending character (0 if none).
	Found rune

	// Expected is the closer that was pending at the failure point (0 if none).
	Expected rune

	// MaxDepth is the deepest nesting seen before the scan stopped.
	MaxDepth int

	// Unclosed is the number of openers still pending when the scan stopped.
	Unclosed int
}

var closers = map[rune]rune{
	'(': ')',
	'[': ']',
	'{': '}',
}

// IsOpener reports whether r is (, [ or {.
func IsOpener(r rune) bool {
	_, ok := closers[r]
	return ok
}

// IsCloser reports whether r is ), ] or }.
func IsCloser(r rune) bool {
	return r == ')' || r == ']' || r == '}'
}

// Closer returns the closing bracket for an opener.
func Closer(opener rune) (rune, bool) {
	c, ok := closers[opener]
	return c, ok
}

// IsValid reports whether s is well-formed under DefaultPolicy.
// For input made only of bracket characters the answer does not depend on policy.
func IsValid(s string) bool {
	return Check(s, DefaultPolicy).Valid
}

// Check scans s left to right and stops at the first failure.
func Check(s string, p Policy) Result {
	var stack []rune
	maxDepth := 0
	offset := 0

	fail := func(outcome Outcome, found rune) Result {
		res := Result{
			Outcome:  outcome,
			Offset:   offset,
			Found:    found,
			MaxDepth: maxDepth,
			Unclosed: len(stack),
		}
		if len(stack) > 0 {
			res.Expected = stack[len(stack)-1]
		}
		return res
	}

	for _, r := range s {
		if closer, ok := closers[r]; ok {
			stack = append(stack, closer)
			if len(stack) > maxDepth {
				maxDepth = len(stack)
			}
			offset++
			continue
		}

		if !IsCloser(r) {
			switch p {
			case PolicyIgnore:
				offset++
				continue
			case PolicyImplicitClose:
				// matched against the pending closer below
			default:
				return fail(OutcomeInvalidCharacter, r)
			}
		}

		if len(stack) == 0 {
			return fail(OutcomeUnexpectedClose, r)
		}
		top := stack[len(stack)-1]
		if r != top {
			return fail(OutcomeMismatch, r)
		}
		stack = stack[:len(stack)-1]
		offset++
	}

	if len(stack) > 0 {
		return fail(OutcomeUnclosed, 0)
	}

	return Result{
		Valid:    true,
		Outcome:  OutcomeBalanced,
		Offset:   -1,
		MaxDepth: maxDepth,
	}
}
