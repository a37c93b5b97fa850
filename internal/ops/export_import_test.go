package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/strand/internal/config"
	"github.com/hpungsan/strand/internal/db"
	"github.com/hpungsan/strand/internal/errors"
	"github.com/hpungsan/strand/internal/run"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestExport_HappyPath(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := newTestConfig(dir)
	database := newTestDB(t)

	_, err := Encode(ctx, database, cfg, EncodeInput{Text: "<b>&", RecordOptions: recorded("default")})
	require.NoError(t, err)
	_, err = Validate(ctx, database, cfg, ValidateInput{Text: "([)]", RecordOptions: recorded("other")})
	require.NoError(t, err)

	path := filepath.Join(dir, "runs.jsonl")
	out, err := Export(ctx, database, cfg, ExportInput{Path: path})
	require.NoError(t, err)
	require.Equal(t, path, out.Path)
	require.Equal(t, 2, out.Count)
	require.NotZero(t, out.ExportedAt)

	lines := readLines(t, path)
	require.Len(t, lines, 3, "header + 2 runs")

	var header ExportHeader
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &header))
	require.True(t, header.StrandExport)
	require.Equal(t, ExportSchemaVersion, header.SchemaVersion)

	require.Contains(t, lines[1], `"input_text":"<b>&"`, "HTML is not escaped")

	var rec run.ExportRecord
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &rec))
	require.Equal(t, run.KindValidate, rec.Kind)
	require.NotNil(t, rec.Valid)
	require.False(t, *rec.Valid)

	// No temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestExport_WorkspaceFilterAndDeleted(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := newTestConfig(dir)
	database := newTestDB(t)

	a, err := Encode(ctx, database, cfg, EncodeInput{Text: "a", RecordOptions: recorded("Alpha")})
	require.NoError(t, err)
	_, err = Encode(ctx, database, cfg, EncodeInput{Text: "b", RecordOptions: recorded("beta")})
	require.NoError(t, err)
	_, err = Delete(ctx, database, DeleteInput{ID: a.ID})
	require.NoError(t, err)

	out, err := Export(ctx, database, cfg, ExportInput{Path: filepath.Join(dir, "alpha.jsonl"), Workspace: stringPtr("alpha")})
	require.NoError(t, err)
	require.Equal(t, 0, out.Count)

	out, err = Export(ctx, database, cfg, ExportInput{Path: filepath.Join(dir, "alpha-all.jsonl"), Workspace: stringPtr("alpha"), IncludeDeleted: true})
	require.NoError(t, err)
	require.Equal(t, 1, out.Count)
}

func TestExport_PathRejected(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	cfg := newTestConfig(t.TempDir())

	_, err := Export(ctx, database, cfg, ExportInput{Path: filepath.Join(t.TempDir(), "elsewhere.jsonl")})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "outside allowed dirs: %v", err)

	_, err = Export(ctx, database, cfg, ExportInput{Path: "/tmp/../etc/runs.jsonl"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "traversal: %v", err)
}

func TestExport_OverwritesExisting(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := newTestConfig(dir)
	database := newTestDB(t)

	path := writeFile(t, dir, "runs.jsonl", "stale\n")
	_, err := Export(ctx, database, cfg, ExportInput{Path: path})
	require.NoError(t, err)

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	require.True(t, strings.HasPrefix(lines[0], `{"_strand_export":true`))
}

func TestDefaultExportPath(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	path, err := defaultExportPath(nil, now)
	require.NoError(t, err)
	require.Equal(t, "all-2026-03-04T050607.jsonl", filepath.Base(path))

	path, err = defaultExportPath(stringPtr("../My  Work"), now)
	require.NoError(t, err)
	require.Equal(t, "my work-2026-03-04T050607.jsonl", filepath.Base(path))

	exports, err := DefaultExportsDir()
	require.NoError(t, err)
	require.Equal(t, exports, filepath.Dir(path))
	require.Equal(t, config.DirName, filepath.Base(filepath.Dir(exports)))
}

func TestImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := newTestConfig(dir)
	src := newTestDB(t)

	var ids []string
	for _, text := range []string{"aaab", "xyz"} {
		out, err := Encode(ctx, src, cfg, EncodeInput{Text: text, RecordOptions: recorded("w")})
		require.NoError(t, err)
		ids = append(ids, out.ID)
	}
	v, err := Validate(ctx, src, cfg, ValidateInput{Text: "{}", RecordOptions: recorded("w")})
	require.NoError(t, err)
	ids = append(ids, v.ID)

	path := filepath.Join(dir, "backup.jsonl")
	_, err = Export(ctx, src, cfg, ExportInput{Path: path})
	require.NoError(t, err)

	dst := newTestDB(t)
	out, err := Import(ctx, dst, cfg, ImportInput{Path: path})
	require.NoError(t, err)
	require.Equal(t, 3, out.Imported)
	require.Empty(t, out.Errors)

	for _, id := range ids {
		want, err := db.GetByID(ctx, src, id, true)
		require.NoError(t, err)
		got, err := db.GetByID(ctx, dst, id, true)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

const importFixture = `{"_strand_export":true,"schema_version":"1.0","exported_at":1700000000}
{"id":"01HV0000000000000000000001","workspace_raw":"  Team  A ","workspace_norm":"ignored","kind":"encode","policy":null,"input_text":"ééa","output_text":"é2a1","valid":null,"outcome":null,"input_chars":999,"output_chars":999,"created_at":1700000000,"deleted_at":null}
{"id":"01HV0000000000000000000002","workspace_raw":"default","workspace_norm":"default","kind":"validate","policy":"reject","input_text":"()","output_text":"true","valid":true,"outcome":"balanced","input_chars":2,"output_chars":4,"created_at":1700000001,"deleted_at":null}
`

func TestImport_RecomputesDerivedFields(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	database := newTestDB(t)

	path := writeFile(t, dir, "in.jsonl", importFixture)
	out, err := Import(ctx, database, newTestConfig(dir), ImportInput{Path: path})
	require.NoError(t, err)
	require.Equal(t, 2, out.Imported)

	r, err := db.GetByID(ctx, database, "01HV0000000000000000000001", false)
	require.NoError(t, err)
	require.Equal(t, "team a", r.WorkspaceNorm)
	require.Equal(t, 3, r.InputChars)
	require.Equal(t, 4, r.OutputChars)
}

func TestImport_ModeError_AtomicOnCollision(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := newTestConfig(dir)
	database := newTestDB(t)

	// 01HV0000000000000000000002 already exists; 01HV0000000000000000000001 must not be imported either
	existing := strings.Split(importFixture, "\n")[2] + "\n"
	_, err := Import(ctx, database, cfg, ImportInput{Path: writeFile(t, dir, "one.jsonl", existing)})
	require.NoError(t, err)

	out, err := Import(ctx, database, cfg, ImportInput{Path: writeFile(t, dir, "all.jsonl", importFixture)})
	require.NoError(t, err)
	require.Equal(t, 0, out.Imported)
	require.Len(t, out.Errors, 1)
	require.Equal(t, "ID_COLLISION", out.Errors[0].Code)
	require.Equal(t, "01HV0000000000000000000002", out.Errors[0].ID)

	ok, err := db.Exists(ctx, database, "01HV0000000000000000000001")
	require.NoError(t, err)
	require.False(t, ok, "mode error rolls back")
}

func TestImport_ModeSkipAndReplace(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := newTestConfig(dir)
	database := newTestDB(t)

	path := writeFile(t, dir, "in.jsonl", importFixture)
	_, err := Import(ctx, database, cfg, ImportInput{Path: path})
	require.NoError(t, err)

	skip, err := Import(ctx, database, cfg, ImportInput{Path: path, Mode: ImportModeSkip})
	require.NoError(t, err)
	require.Equal(t, 0, skip.Imported)
	require.Equal(t, 2, skip.Skipped)

	changed := strings.Replace(importFixture, `"output_text":"é2a1"`, `"output_text":"edited"`, 1)
	replace, err := Import(ctx, database, cfg, ImportInput{Path: writeFile(t, dir, "changed.jsonl", changed), Mode: ImportModeReplace})
	require.NoError(t, err)
	require.Equal(t, 2, replace.Imported)

	r, err := db.GetByID(ctx, database, "01HV0000000000000000000001", false)
	require.NoError(t, err)
	require.Equal(t, "edited", r.OutputText)
}

func TestImport_InvalidRecords(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := newTestConfig(dir)
	database := newTestDB(t)

	body := importFixture +
		"not json\n" +
		`{"id":"","kind":"encode"}` + "\n" +
		`{"id":"01BAD","kind":"reverse"}` + "\n" +
		`{"id":"01BAD2","kind":"validate","input_text":"()"}` + "\n" +
		`{"id":"not-a-ulid","kind":"encode","input_text":"a","output_text":"a1"}` + "\n"
	path := writeFile(t, dir, "mixed.jsonl", body)

	out, err := Import(ctx, database, cfg, ImportInput{Path: path})
	require.NoError(t, err)
	require.Equal(t, 0, out.Imported, "mode error refuses files with bad lines")
	require.Len(t, out.Errors, 5)
	require.Equal(t, "PARSE_ERROR", out.Errors[0].Code)
	require.Equal(t, 4, out.Errors[0].Line)

	out, err = Import(ctx, database, cfg, ImportInput{Path: path, Mode: ImportModeSkip})
	require.NoError(t, err)
	require.Equal(t, 2, out.Imported)
	require.Equal(t, 5, out.Skipped)
	for _, e := range out.Errors[1:] {
		require.Equal(t, "INVALID_RECORD", e.Code)
	}
	require.Contains(t, out.Errors[4].Message, "not a valid ULID")
}

func TestImport_Validation(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := newTestConfig(dir)
	database := newTestDB(t)

	_, err := Import(ctx, database, cfg, ImportInput{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = Import(ctx, database, cfg, ImportInput{Path: filepath.Join(dir, "x.jsonl"), Mode: "rename"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = Import(ctx, database, cfg, ImportInput{Path: filepath.Join(dir, "missing.jsonl")})
	require.True(t, errors.Is(err, errors.ErrFileNotFound))

	_, err = Import(ctx, nil, cfg, ImportInput{Path: filepath.Join(dir, "missing.jsonl")})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
