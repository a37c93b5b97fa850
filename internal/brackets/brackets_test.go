package brackets

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"", true},
		{"()", true},
		{"[]{}", true},
		{"[]{}(", false},
		{"([)]", false},
		{"{[()()]}", true},
		{")", false},
		{"]", false},
		{"(((", false},
		{"(()", false},
		{"())", false},
		{"a", false},
		{"(a)", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			if got := IsValid(tt.input); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCheck_Outcomes(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		policy Policy
		want   Result
	}{
		{
			name:   "empty",
			input:  "",
			policy: PolicyReject,
			want:   Result{Valid: true, Outcome: OutcomeBalanced, Offset: -1},
		},
		{
			name:   "nested",
			input:  "([{}])",
			policy: PolicyReject,
			want:   Result{Valid: true, Outcome: OutcomeBalanced, Offset: -1, MaxDepth: 3},
		},
		{
			name:   "interleaved",
			input:  "([)]",
			policy: PolicyReject,
			want:   Result{Outcome: OutcomeMismatch, Offset: 2, Found: ')', Expected: ']', MaxDepth: 2, Unclosed: 2},
		},
		{
			name:   "lone closer",
			input:  "}",
			policy: PolicyReject,
			want:   Result{Outcome: OutcomeUnexpectedClose, Offset: 0, Found: '}'},
		},
		{
			name:   "closer after balanced prefix",
			input:  "()]",
			policy: PolicyReject,
			want:   Result{Outcome: OutcomeUnexpectedClose, Offset: 2, Found: ']', MaxDepth: 1},
		},
		{
			name:   "unclosed",
			input:  "[]{}(",
			policy: PolicyReject,
			want:   Result{Outcome: OutcomeUnclosed, Offset: 5, Expected: ')', MaxDepth: 1, Unclosed: 1},
		},
		{
			name:   "reject letter",
			input:  "(x)",
			policy: PolicyReject,
			want:   Result{Outcome: OutcomeInvalidCharacter, Offset: 1, Found: 'x', Expected: ')', MaxDepth: 1, Unclosed: 1},
		},
		{
			name:   "ignore letters",
			input:  "f(a[i]) { return }",
			policy: PolicyIgnore,
			want:   Result{Valid: true, Outcome: OutcomeBalanced, Offset: -1, MaxDepth: 2},
		},
		{
			name:   "ignore still catches mismatch",
			input:  "f(a[i)]",
			policy: PolicyIgnore,
			want:   Result{Outcome: OutcomeMismatch, Offset: 5, Found: ')', Expected: ']', MaxDepth: 2, Unclosed: 2},
		},
		{
			name:   "implicit close letter with empty stack",
			input:  "x",
			policy: PolicyImplicitClose,
			want:   Result{Outcome: OutcomeUnexpectedClose, Offset: 0, Found: 'x'},
		},
		{
			name:   "implicit close letter against pending closer",
			input:  "(x",
			policy: PolicyImplicitClose,
			want:   Result{Outcome: OutcomeMismatch, Offset: 1, Found: 'x', Expected: ')', MaxDepth: 1, Unclosed: 1},
		},
		{
			name:   "multibyte offset counts runes",
			input:  "(é)",
			policy: PolicyReject,
			want:   Result{Outcome: OutcomeInvalidCharacter, Offset: 1, Found: 'é', Expected: ')', MaxDepth: 1, Unclosed: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Check(tt.input, tt.policy)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Check(%q, %s) mismatch (-want +got):\n%s", tt.input, tt.policy, diff)
			}
		})
	}
}

func TestCheck_BracketOnlyInputIgnoresPolicy(t *testing.T) {
	inputs := []string{"", "()", "([)]", "(((", ")(", "{[]}()", "]", "[[[]]]{"}
	for _, in := range inputs {
		want := Check(in, PolicyImplicitClose).Valid
		for _, p := range []Policy{PolicyReject, PolicyIgnore} {
			if got := Check(in, p).Valid; got != want {
				t.Errorf("Check(%q, %s).Valid = %v, want %v", in, p, got, want)
			}
		}
	}
}

func TestCheck_UnknownPolicyRejectsNonBrackets(t *testing.T) {
	unknown := Policy(99)
	res := Check("(a)", unknown)
	if res.Valid || res.Outcome != OutcomeInvalidCharacter || res.Offset != 1 {
		t.Errorf("Check(%q, %d) = %+v, want invalid_character at 1", "(a)", unknown, res)
	}
	if !Check("([])", unknown).Valid {
		t.Error("bracket-only input should stay valid under any policy")
	}
}

func TestCheck_ClosingWithEmptyStackAlwaysInvalid(t *testing.T) {
	for _, prefix := range []string{"", "()", "[]{}", "([]){}"} {
		for _, closer := range []string{")", "]", "}"} {
			in := prefix + closer + "()"
			if IsValid(in) {
				t.Errorf("IsValid(%q) = true, want false", in)
			}
		}
	}
}

func TestCheck_DeepNesting(t *testing.T) {
	in := strings.Repeat("(", 10000) + strings.Repeat(")", 10000)
	res := Check(in, PolicyReject)
	if !res.Valid {
		t.Fatalf("Check(deep) = %+v, want valid", res)
	}
	if res.MaxDepth != 10000 {
		t.Errorf("MaxDepth = %d, want 10000", res.MaxDepth)
	}
}

func TestCheck_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := strings.Repeat("{[(", i) + strings.Repeat(")]}", i)
			if !IsValid(in) {
				t.Errorf("IsValid(%q) = false, want true", in)
			}
		}(i)
	}
	wg.Wait()
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicyReject, false},
		{"reject", PolicyReject, false},
		{"ignore", PolicyIgnore, false},
		{"implicit_close", PolicyImplicitClose, false},
		{"IGNORE", PolicyReject, true},
		{"loose", PolicyReject, true},
	}

	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	for _, name := range PolicyNames() {
		p, err := ParsePolicy(name)
		if err != nil {
			t.Fatalf("ParsePolicy(%q) error = %v", name, err)
		}
		if p.String() != name {
			t.Errorf("round trip %q -> %q", name, p.String())
		}
	}
}

func TestCloser(t *testing.T) {
	for opener, want := range map[rune]rune{'(': ')', '[': ']', '{': '}'} {
		got, ok := Closer(opener)
		if !ok || got != want {
			t.Errorf("Closer(%q) = %q, %v; want %q, true", opener, got, ok, want)
		}
		if !IsOpener(opener) || IsCloser(opener) {
			t.Errorf("%q classified wrong", opener)
		}
		if !IsCloser(want) || IsOpener(want) {
			t.Errorf("%q classified wrong", want)
		}
	}
	if _, ok := Closer('a'); ok {
		t.Error("Closer('a') reported ok")
	}
}
