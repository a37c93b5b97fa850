package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/strand/internal/db"
	"github.com/hpungsan/strand/internal/errors"
	"github.com/hpungsan/strand/internal/run"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Workspace      string // defaults to "default"; "*" lists every workspace
	Kind           string // optional filter
	Limit          int    // default: 20, max: 100
	Offset         int    // default: 0
	IncludeDeleted bool
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []run.Summary `json:"items"`
	Pagination Pagination    `json:"pagination"`
	Sort       string        `json:"sort"`
}

// AllWorkspaces is the List workspace value that disables the workspace filter.
const AllWorkspaces = "*"

// List retrieves run summaries, newest first, with pagination.
func List(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	if database == nil {
		return nil, errors.NewInvalidRequest("run history is not available")
	}

	var filters db.ListFilters
	if strings.TrimSpace(input.Workspace) != AllWorkspaces {
		filters.WorkspaceNorm = run.NormalizeWorkspace(input.Workspace)
	}
	if k := strings.TrimSpace(input.Kind); k != "" {
		kind, err := run.ParseKind(k)
		if err != nil {
			return nil, errors.NewInvalidRequest(err.Error())
		}
		filters.Kind = kind
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset := max(input.Offset, 0)

	summaries, total, err := db.ListByWorkspace(ctx, database, filters, limit, offset, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	return &ListOutput{
		Items: summaries,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(summaries) < total,
			Total:   total,
		},
		Sort: "created_at_desc",
	}, nil
}
