package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/strand/internal/db"
	"github.com/hpungsan/strand/internal/errors"
	"github.com/hpungsan/strand/internal/run"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	ID             string
	IncludeDeleted bool
	IncludeReport  bool
}

// FetchOutput contains the result of the Fetch operation.
type FetchOutput struct {
	ID          string  `json:"id"`
	Workspace   string  `json:"workspace"`
	Kind        string  `json:"kind"`
	Policy      *string `json:"policy,omitempty"`
	InputText   string  `json:"input_text"`
	OutputText  string  `json:"output_text"`
	Valid       *bool   `json:"valid,omitempty"`
	Outcome     *string `json:"outcome,omitempty"`
	InputChars  int     `json:"input_chars"`
	OutputChars int     `json:"output_chars"`
	CreatedAt   int64   `json:"created_at"`
	DeletedAt   *int64  `json:"deleted_at,omitempty"`
	Report      string  `json:"report,omitempty"`

	// Run is the stored record, for callers that render it themselves.
	Run *run.Run `json:"-"`
}

// Fetch retrieves one recorded run by id.
func Fetch(ctx context.Context, database *sql.DB, input FetchInput) (*FetchOutput, error) {
	if database == nil {
		return nil, errors.NewInvalidRequest("run history is not available")
	}
	id, err := ValidateID(input.ID)
	if err != nil {
		return nil, err
	}

	r, err := db.GetByID(ctx, database, id, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	out := &FetchOutput{
		ID:          r.ID,
		Workspace:   r.WorkspaceRaw,
		Kind:        string(r.Kind),
		Policy:      r.Policy,
		InputText:   r.InputText,
		OutputText:  r.OutputText,
		Valid:       r.Valid,
		Outcome:     r.Outcome,
		InputChars:  r.InputChars,
		OutputChars: r.OutputChars,
		CreatedAt:   r.CreatedAt,
		DeletedAt:   r.DeletedAt,
		Run:         r,
	}
	if input.IncludeReport {
		out.Report = run.Report(r)
	}
	return out, nil
}
