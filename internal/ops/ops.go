package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/strand/internal/config"
	"github.com/hpungsan/strand/internal/db"
	"github.com/hpungsan/strand/internal/errors"
	"github.com/hpungsan/strand/internal/run"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	MaxBatchItems    = 500
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// RecordOptions controls whether and where a sequence operation is recorded.
type RecordOptions struct {
	Record    bool
	Workspace string // default: "default"
}

// checkInput rejects text longer than the configured character limit.
func checkInput(text string, cfg *config.Config) error {
	if cfg == nil || cfg.InputMaxChars <= 0 {
		return nil
	}
	if n := run.CountChars(text); n > cfg.InputMaxChars {
		return errors.NewInputTooLarge(cfg.InputMaxChars, n)
	}
	return nil
}

// ValidateID trims a run id argument and checks that it is a ULID.
func ValidateID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewInvalidRequest("id is required")
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("id %q is not a valid ULID", id))
	}
	return id, nil
}

// recordingEnabled reports whether a run should be persisted.
func recordingEnabled(database *sql.DB, cfg *config.Config, opts RecordOptions) bool {
	if !opts.Record {
		return false
	}
	if cfg != nil && cfg.DisableHistory {
		return false
	}
	return database != nil
}

// record persists r when recording is enabled and returns its new id.
// An empty id means nothing was stored.
func record(ctx context.Context, database *sql.DB, cfg *config.Config, opts RecordOptions, r *run.Run) (string, error) {
	if !recordingEnabled(database, cfg, opts) {
		return "", nil
	}

	id, err := generateULID()
	if err != nil {
		return "", errors.NewInternal(err)
	}

	workspace := strings.TrimSpace(opts.Workspace)
	if workspace == "" {
		workspace = run.DefaultWorkspace
	}

	r.ID = id
	r.WorkspaceRaw = workspace
	r.WorkspaceNorm = run.NormalizeWorkspace(workspace)
	r.InputChars = run.CountChars(r.InputText)
	r.OutputChars = run.CountChars(r.OutputText)
	r.CreatedAt = time.Now().Unix()

	if err := db.Insert(ctx, database, r); err != nil {
		return "", err
	}
	return id, nil
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// generateULID returns a new ULID. Monotonic entropy keeps ids sortable
// within the same millisecond.
func generateULID() (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// cancelled converts a context error into a CANCELLED error.
func cancelled(ctx context.Context, op string) error {
	if ctx.Err() != nil {
		return errors.NewCancelled(op)
	}
	return nil
}
