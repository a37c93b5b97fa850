package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/strand/internal/db"
	"github.com/hpungsan/strand/internal/errors"
)

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	ID string
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// Delete soft-deletes a recorded run. Purge removes it for good.
func Delete(ctx context.Context, database *sql.DB, input DeleteInput) (*DeleteOutput, error) {
	if database == nil {
		return nil, errors.NewInvalidRequest("run history is not available")
	}
	id, err := ValidateID(input.ID)
	if err != nil {
		return nil, err
	}

	if err := db.SoftDelete(ctx, database, id); err != nil {
		return nil, err
	}

	return &DeleteOutput{Deleted: true, ID: id}, nil
}
