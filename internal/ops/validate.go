package ops

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/hpungsan/strand/internal/brackets"
	"github.com/hpungsan/strand/internal/config"
	"github.com/hpungsan/strand/internal/errors"
	"github.com/hpungsan/strand/internal/run"
)

// ValidateInput contains parameters for the Validate operation.
type ValidateInput struct {
	Text   string
	Policy string // optional, overrides config bracket_policy
	RecordOptions
}

// ValidateOutput contains the result of the Validate operation.
type ValidateOutput struct {
	Valid    bool             `json:"valid"`
	Outcome  brackets.Outcome `json:"outcome"`
	Offset   int              `json:"offset"`
	Found    string           `json:"found,omitempty"`
	Expected string           `json:"expected,omitempty"`
	MaxDepth int              `json:"max_depth"`
	Unclosed int              `json:"unclosed"`
	Policy   string           `json:"policy"`
	ID       string           `json:"id,omitempty"`
}

// Validate checks a bracket sequence for balance.
func Validate(ctx context.Context, database *sql.DB, cfg *config.Config, input ValidateInput) (*ValidateOutput, error) {
	if err := checkInput(input.Text, cfg); err != nil {
		return nil, err
	}

	policy, err := resolvePolicy(input.Policy, cfg)
	if err != nil {
		return nil, err
	}

	res := brackets.Check(input.Text, policy)
	out := &ValidateOutput{
		Valid:    res.Valid,
		Outcome:  res.Outcome,
		Offset:   res.Offset,
		Found:    runeString(res.Found),
		Expected: runeString(res.Expected),
		MaxDepth: res.MaxDepth,
		Unclosed: res.Unclosed,
		Policy:   policy.String(),
	}

	policyName := policy.String()
	outcome := string(res.Outcome)
	valid := res.Valid
	id, err := record(ctx, database, cfg, input.RecordOptions, &run.Run{
		Kind:       run.KindValidate,
		Policy:     &policyName,
		InputText:  input.Text,
		OutputText: strconv.FormatBool(res.Valid),
		Valid:      &valid,
		Outcome:    &outcome,
	})
	if err != nil {
		return nil, err
	}
	out.ID = id

	return out, nil
}

// resolvePolicy picks the request policy, falling back to the configured default.
func resolvePolicy(name string, cfg *config.Config) (brackets.Policy, error) {
	if name == "" {
		if cfg == nil {
			return brackets.DefaultPolicy, nil
		}
		return cfg.Policy(), nil
	}
	p, err := brackets.ParsePolicy(name)
	if err != nil {
		return 0, errors.NewInvalidRequest(err.Error())
	}
	return p, nil
}

func runeString(r rune) string {
	if r == 0 {
		return ""
	}
	return string(r)
}
