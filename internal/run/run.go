package run

import "fmt"

// Kind names the operation that produced a run.
type Kind string

const (
	KindValidate Kind = "validate"
	KindEncode   Kind = "encode"
	KindDecode   Kind = "decode"
	KindTally    Kind = "tally"
)

// Kinds lists every kind in display order.
var Kinds = []Kind{KindValidate, KindEncode, KindDecode, KindTally}

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown kind %q (want validate, encode, decode or tally)", s)
}

// Run is one recorded invocation of a sequence operation.
type Run struct {
	// ID is a ULID that uniquely identifies this run
	ID string

	// WorkspaceRaw is the original workspace string as provided by the user
	WorkspaceRaw string

	// WorkspaceNorm is the normalized workspace (lowercased, trimmed, collapsed spaces)
	WorkspaceNorm string

	Kind Kind

	// Policy is the bracket policy name; set for validate runs only
	Policy *string

	InputText  string
	OutputText string

	// Valid is the validator verdict; nil for non-validate runs
	Valid *bool

	// Outcome is the validator outcome; nil for non-validate runs
	Outcome *string

	// InputChars and OutputChars count runes, not bytes
	InputChars  int
	OutputChars int

	// CreatedAt is the Unix timestamp when the run was recorded
	CreatedAt int64

	// DeletedAt is the Unix timestamp for soft delete (nullable)
	DeletedAt *int64
}
