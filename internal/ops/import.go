package ops

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/strand/internal/config"
	"github.com/hpungsan/strand/internal/db"
	"github.com/hpungsan/strand/internal/errors"
	"github.com/hpungsan/strand/internal/run"
)

// maxImportLineBytes bounds one JSONL record; decoded outputs can be large.
const maxImportLineBytes = 16 << 20

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on collision (atomic)
	ImportModeReplace ImportMode = "replace" // overwrite on collision
	ImportModeSkip    ImportMode = "skip"    // keep existing on collision
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes a record that was not imported.
type ImportError struct {
	Line    int    `json:"line,omitempty"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type importRecord struct {
	line int
	run  *run.Run
}

// Import loads runs from a JSONL export file. All writes happen in one
// transaction; in error mode any parse error or id collision imports nothing.
func Import(ctx context.Context, database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if database == nil {
		return nil, errors.NewInvalidRequest("run history is not available")
	}
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	switch input.Mode {
	case ImportModeError, ImportModeReplace, ImportModeSkip:
	default:
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace, skip")
	}

	if err := ValidatePath(input.Path, exportRead, cfg); err != nil {
		return nil, err
	}
	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	records, parseErrors := parseExportFile(file)

	out := &ImportOutput{Errors: []ImportError{}}
	if input.Mode == ImportModeError && len(parseErrors) > 0 {
		out.Errors = parseErrors
		return out, nil
	}
	out.Errors = append(out.Errors, parseErrors...)
	out.Skipped = len(parseErrors)

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	imported := 0
	for _, rec := range records {
		if err := cancelled(ctx, "import"); err != nil {
			return nil, err
		}

		if input.Mode == ImportModeReplace {
			if err := db.Upsert(ctx, tx, rec.run); err != nil {
				return nil, err
			}
			imported++
			continue
		}

		exists, err := db.Exists(ctx, tx, rec.run.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			collision := ImportError{
				Line:    rec.line,
				ID:      rec.run.ID,
				Code:    "ID_COLLISION",
				Message: fmt.Sprintf("run with id %q already exists", rec.run.ID),
			}
			if input.Mode == ImportModeError {
				return &ImportOutput{Errors: []ImportError{collision}}, nil
			}
			out.Errors = append(out.Errors, collision)
			out.Skipped++
			continue
		}

		if err := db.Insert(ctx, tx, rec.run); err != nil {
			return nil, err
		}
		imported++
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	out.Imported = imported
	return out, nil
}

// parseExportFile reads JSONL records, skipping the header line.
// Derived fields are recomputed by ExportRecord.ToRun.
func parseExportFile(r io.Reader) ([]importRecord, []ImportError) {
	var records []importRecord
	var parseErrors []ImportError

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxImportLineBytes)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec run.ExportRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}
		if rec.StrandExport {
			continue
		}

		if msg := checkExportRecord(&rec); msg != "" {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				ID:      rec.ID,
				Code:    "INVALID_RECORD",
				Message: msg,
			})
			continue
		}

		records = append(records, importRecord{line: lineNum, run: rec.ToRun()})
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{
			Line:    lineNum + 1,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}

	return records, parseErrors
}

// checkExportRecord returns a reason the record cannot be imported, or "".
func checkExportRecord(rec *run.ExportRecord) string {
	if rec.ID == "" {
		return "missing id field"
	}
	if _, err := ulid.ParseStrict(rec.ID); err != nil {
		return fmt.Sprintf("id %q is not a valid ULID", rec.ID)
	}
	if _, err := run.ParseKind(string(rec.Kind)); err != nil {
		return err.Error()
	}
	if rec.Kind == run.KindValidate && (rec.Valid == nil || rec.Outcome == nil) {
		return "validate run is missing valid or outcome"
	}
	return ""
}
