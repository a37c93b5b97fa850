package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hpungsan/strand/internal/config"
	"github.com/hpungsan/strand/internal/db"
	"github.com/hpungsan/strand/internal/errors"
	"github.com/hpungsan/strand/internal/run"
)

// ExportSchemaVersion is written into every export header.
const ExportSchemaVersion = "1.0"

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path           string  // optional, default: ~/.strand/exports/<workspace>-<timestamp>.jsonl
	Workspace      *string // optional filter by workspace
	IncludeDeleted bool
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader is the first line of a JSONL export file.
type ExportHeader struct {
	StrandExport  bool   `json:"_strand_export"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
}

// Export writes run history to a JSONL file. The file is written under a
// temporary name and renamed into place, so a failed export leaves any
// existing file untouched.
func Export(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	if database == nil {
		return nil, errors.NewInvalidRequest("run history is not available")
	}

	now := time.Now()
	exportPath := input.Path
	if exportPath == "" {
		var err error
		exportPath, err = defaultExportPath(input.Workspace, now)
		if err != nil {
			return nil, err
		}
	}

	// Default paths are validated too: the workspace name ends up in the file name
	if err := ValidatePath(exportPath, exportWrite, cfg); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(suffix) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	committed := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !committed {
			os.Remove(tempPath)
		}
	}()

	var workspaceNorm *string
	if input.Workspace != nil {
		ws := run.NormalizeWorkspace(*input.Workspace)
		workspaceNorm = &ws
	}

	count, err := writeExport(ctx, database, file, workspaceNorm, input.IncludeDeleted, now.Unix())
	if err != nil {
		return nil, err
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Windows cannot rename an open file
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink planted at the destination
	if isSymlink(exportPath) {
		return nil, errors.NewInvalidRequest("export path must not be a symlink")
	}

	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	committed = true
	return &ExportOutput{
		Path:       exportPath,
		Count:      count,
		ExportedAt: now.Unix(),
	}, nil
}

// writeExport streams the header and every matching run to f.
func writeExport(ctx context.Context, database *sql.DB, f *os.File, workspaceNorm *string, includeDeleted bool, exportedAt int64) (int, error) {
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	header := ExportHeader{StrandExport: true, SchemaVersion: ExportSchemaVersion, ExportedAt: exportedAt}
	if err := enc.Encode(header); err != nil {
		return 0, errors.NewInternal(err)
	}

	rows, err := db.StreamForExport(ctx, database, workspaceNorm, includeDeleted)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		if err := cancelled(ctx, "export"); err != nil {
			return 0, err
		}
		r, err := db.ScanRunFromRows(rows)
		if err != nil {
			return 0, errors.NewInternal(err)
		}
		if err := enc.Encode(run.ToExportRecord(r)); err != nil {
			return 0, errors.NewInternal(err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, errors.NewInternal(err)
	}

	if err := w.Flush(); err != nil {
		return 0, errors.NewInternal(err)
	}
	return count, nil
}

// defaultExportPath returns ~/.strand/exports/<workspace>-<timestamp>.jsonl,
// using "all" when no workspace filter is set.
func defaultExportPath(workspace *string, now time.Time) (string, error) {
	dir, err := DefaultExportsDir()
	if err != nil {
		return "", err
	}

	name := "all"
	if workspace != nil && *workspace != "" {
		name = SanitizeForFilename(run.Normalize(*workspace))
	}

	filename := fmt.Sprintf("%s-%s.jsonl", name, now.Format("2006-01-02T150405"))
	return filepath.Join(dir, filename), nil
}
