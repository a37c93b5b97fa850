package ops

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hpungsan/strand/internal/db"
	"github.com/hpungsan/strand/internal/errors"
	"github.com/hpungsan/strand/internal/run"
)

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	Workspace     *string // optional filter by workspace
	OlderThanDays *int    // optional, only purge if deleted_at < (now - N days)
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// Purge permanently deletes soft-deleted runs.
func Purge(ctx context.Context, database *sql.DB, input PurgeInput) (*PurgeOutput, error) {
	if database == nil {
		return nil, errors.NewInvalidRequest("run history is not available")
	}
	if input.OlderThanDays != nil && *input.OlderThanDays < 0 {
		return nil, errors.NewInvalidRequest("older_than_days must be non-negative")
	}

	var workspaceNorm *string
	if input.Workspace != nil {
		ws := run.NormalizeWorkspace(*input.Workspace)
		workspaceNorm = &ws
	}

	count, err := db.PurgeDeleted(ctx, database, workspaceNorm, input.OlderThanDays)
	if err != nil {
		return nil, err
	}

	return &PurgeOutput{
		Purged:  int(count),
		Message: purgeMessage(int(count), workspaceNorm, input.OlderThanDays),
	}, nil
}

func purgeMessage(count int, workspace *string, olderThanDays *int) string {
	if count == 0 {
		return "No deleted runs to purge"
	}

	noun := "run"
	if count > 1 {
		noun = "runs"
	}
	msg := fmt.Sprintf("Permanently deleted %d %s", count, noun)
	if workspace != nil {
		msg += fmt.Sprintf(" from workspace %q", *workspace)
	}
	if olderThanDays != nil {
		msg += fmt.Sprintf(" (deleted more than %d days ago)", *olderThanDays)
	}
	return msg
}
