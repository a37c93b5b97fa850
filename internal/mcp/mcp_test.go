package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/strand/internal/config"
	"github.com/hpungsan/strand/internal/db"
	"github.com/hpungsan/strand/internal/errors"
	"github.com/hpungsan/strand/internal/logging"
)

// testSetup creates a temporary database and config for testing.
func testSetup(t *testing.T) (*sql.DB, *config.Config, func()) {
	t.Helper()

	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true // Allow temp dirs in tests

	cleanup := func() {
		database.Close()
	}

	return database, cfg, cleanup
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandleValidate(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()
	h := NewHandlers(database, cfg)
	ctx := context.Background()

	t.Run("balanced", func(t *testing.T) {
		result, err := h.HandleValidate(ctx, makeRequest(map[string]any{"text": "{[()]}"}))
		if err != nil {
			t.Fatalf("HandleValidate returned error: %v", err)
		}
		output := parseOutput(t, result)
		if output["valid"] != true {
			t.Errorf("valid = %v, want true", output["valid"])
		}
		if output["max_depth"].(float64) != 3 {
			t.Errorf("max_depth = %v, want 3", output["max_depth"])
		}
		if output["policy"] != "reject" {
			t.Errorf("policy = %v, want reject", output["policy"])
		}
		if _, ok := output["id"]; ok {
			t.Error("unrecorded run should not return an id")
		}
	})

	t.Run("empty text is balanced", func(t *testing.T) {
		result, _ := h.HandleValidate(ctx, makeRequest(map[string]any{"text": ""}))
		output := parseOutput(t, result)
		if output["valid"] != true {
			t.Errorf("valid = %v, want true", output["valid"])
		}
	})

	t.Run("mismatch", func(t *testing.T) {
		result, _ := h.HandleValidate(ctx, makeRequest(map[string]any{"text": "([)]"}))
		output := parseOutput(t, result)
		if output["valid"] != false {
			t.Errorf("valid = %v, want false", output["valid"])
		}
		if output["outcome"] != "mismatch" {
			t.Errorf("outcome = %v, want mismatch", output["outcome"])
		}
	})

	t.Run("ignore policy", func(t *testing.T) {
		result, _ := h.HandleValidate(ctx, makeRequest(map[string]any{"text": "f(x[0])", "policy": "ignore"}))
		output := parseOutput(t, result)
		if output["valid"] != true {
			t.Errorf("valid = %v, want true", output["valid"])
		}
	})

	t.Run("unknown policy", func(t *testing.T) {
		result, _ := h.HandleValidate(ctx, makeRequest(map[string]any{"text": "()", "policy": "lenient"}))
		assertErrorCode(t, result, "INVALID_REQUEST")
	})

	t.Run("missing text", func(t *testing.T) {
		result, _ := h.HandleValidate(ctx, makeRequest(map[string]any{}))
		assertErrorCode(t, result, "INVALID_REQUEST")
	})

	t.Run("wrong argument type", func(t *testing.T) {
		result, _ := h.HandleValidate(ctx, makeRequest(map[string]any{"text": 42}))
		assertErrorCode(t, result, "INVALID_REQUEST")
	})
}

func TestHandleEncodeDecode(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()
	h := NewHandlers(database, cfg)
	ctx := context.Background()

	result, err := h.HandleEncode(ctx, makeRequest(map[string]any{"text": "aaabbc"}))
	if err != nil {
		t.Fatalf("HandleEncode returned error: %v", err)
	}
	enc := parseOutput(t, result)
	if enc["encoded"] != "a3b2c1" {
		t.Fatalf("encoded = %v, want a3b2c1", enc["encoded"])
	}
	if enc["reversible"] != true {
		t.Errorf("reversible = %v, want true", enc["reversible"])
	}

	result, _ = h.HandleDecode(ctx, makeRequest(map[string]any{"encoded": "a3b2c1"}))
	dec := parseOutput(t, result)
	if dec["decoded"] != "aaabbc" {
		t.Errorf("decoded = %v, want aaabbc", dec["decoded"])
	}

	t.Run("malformed", func(t *testing.T) {
		result, _ := h.HandleDecode(ctx, makeRequest(map[string]any{"encoded": "a0"}))
		assertErrorCode(t, result, "MALFORMED_ENCODING")
	})

	t.Run("output too large", func(t *testing.T) {
		small := *cfg
		small.DecodeMaxChars = 10
		result, _ := NewHandlers(database, &small).HandleDecode(ctx, makeRequest(map[string]any{"encoded": "x11"}))
		assertErrorCode(t, result, "OUTPUT_TOO_LARGE")
	})

	t.Run("input too large", func(t *testing.T) {
		small := *cfg
		small.InputMaxChars = 3
		result, _ := NewHandlers(database, &small).HandleEncode(ctx, makeRequest(map[string]any{"text": "abcd"}))
		assertErrorCode(t, result, "INPUT_TOO_LARGE")
	})

	t.Run("missing encoded", func(t *testing.T) {
		result, _ := h.HandleDecode(ctx, makeRequest(map[string]any{"text": "a1"}))
		assertErrorCode(t, result, "INVALID_REQUEST")
	})
}

func TestHandleTally(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()
	h := NewHandlers(database, cfg)

	result, _ := h.HandleTally(context.Background(), makeRequest(map[string]any{"text": "abab"}))
	output := parseOutput(t, result)
	if output["tally"] != "a2b2" {
		t.Errorf("tally = %v, want a2b2", output["tally"])
	}
	if output["distinct"].(float64) != 2 {
		t.Errorf("distinct = %v, want 2", output["distinct"])
	}
}

func TestHandleBatch(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()
	h := NewHandlers(database, cfg)
	ctx := context.Background()

	t.Run("items", func(t *testing.T) {
		result, _ := h.HandleBatch(ctx, makeRequest(map[string]any{
			"items": []any{
				map[string]any{"kind": "validate", "text": "()"},
				map[string]any{"kind": "decode", "text": "a0"},
				map[string]any{"kind": "encode", "text": "zz"},
			},
		}))
		output := parseOutput(t, result)
		if output["succeeded"].(float64) != 2 || output["failed"].(float64) != 1 {
			t.Errorf("succeeded/failed = %v/%v, want 2/1", output["succeeded"], output["failed"])
		}
		results := output["results"].([]any)
		failed := results[1].(map[string]any)
		if failed["ok"] != false {
			t.Errorf("item 1 ok = %v, want false", failed["ok"])
		}
		if code := failed["error"].(map[string]any)["code"]; code != "MALFORMED_ENCODING" {
			t.Errorf("item 1 code = %v, want MALFORMED_ENCODING", code)
		}
	})

	t.Run("path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "batch.yaml")
		body := "workspace: files\nrecord: true\nitems:\n  - kind: tally\n    text: hello\n"
		if err := writeTestFile(path, body); err != nil {
			t.Fatalf("write batch file: %v", err)
		}
		result, _ := h.HandleBatch(ctx, makeRequest(map[string]any{"path": path}))
		output := parseOutput(t, result)
		if output["succeeded"].(float64) != 1 {
			t.Fatalf("succeeded = %v, want 1", output["succeeded"])
		}

		list, _ := h.HandleList(ctx, makeRequest(map[string]any{"workspace": "files"}))
		items := parseOutput(t, list)["items"].([]any)
		if len(items) != 1 {
			t.Errorf("recorded runs = %d, want 1", len(items))
		}
	})

	t.Run("items and path", func(t *testing.T) {
		result, _ := h.HandleBatch(ctx, makeRequest(map[string]any{
			"items": []any{map[string]any{"kind": "encode", "text": "a"}},
			"path":  "/tmp/batch.yaml",
		}))
		assertErrorCode(t, result, "INVALID_REQUEST")
	})

	t.Run("empty", func(t *testing.T) {
		result, _ := h.HandleBatch(ctx, makeRequest(map[string]any{}))
		assertErrorCode(t, result, "INVALID_REQUEST")
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		result, _ := h.HandleBatch(cctx, makeRequest(map[string]any{
			"items": []any{map[string]any{"kind": "encode", "text": "a"}},
		}))
		assertErrorCode(t, result, "CANCELLED")
	})
}

func TestHandleHistory(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()
	h := NewHandlers(database, cfg)
	ctx := context.Background()

	result, _ := h.HandleEncode(ctx, makeRequest(map[string]any{"text": "aab", "record": true, "workspace": "Hist"}))
	id, ok := parseOutput(t, result)["id"].(string)
	if !ok || id == "" {
		t.Fatal("recorded encode should return an id")
	}

	t.Run("fetch", func(t *testing.T) {
		result, _ := h.HandleFetch(ctx, makeRequest(map[string]any{"id": id, "include_report": true}))
		output := parseOutput(t, result)
		if output["output_text"] != "a2b1" {
			t.Errorf("output_text = %v, want a2b1", output["output_text"])
		}
		if output["workspace"] != "Hist" {
			t.Errorf("workspace = %v, want Hist", output["workspace"])
		}
		if !strings.Contains(output["report"].(string), "a2b1") {
			t.Errorf("report should contain the encoding, got %v", output["report"])
		}
	})

	t.Run("fetch not found", func(t *testing.T) {
		result, _ := h.HandleFetch(ctx, makeRequest(map[string]any{"id": "01HZZZZZZZZZZZZZZZZZZZZZZZ"}))
		assertErrorCode(t, result, "NOT_FOUND")
	})

	t.Run("list", func(t *testing.T) {
		result, _ := h.HandleList(ctx, makeRequest(map[string]any{"workspace": "hist", "limit": 5}))
		items := parseOutput(t, result)["items"].([]any)
		if len(items) != 1 {
			t.Fatalf("items = %d, want 1", len(items))
		}
	})

	t.Run("list bad kind", func(t *testing.T) {
		result, _ := h.HandleList(ctx, makeRequest(map[string]any{"kind": "reverse"}))
		assertErrorCode(t, result, "INVALID_REQUEST")
	})

	t.Run("delete and purge", func(t *testing.T) {
		result, _ := h.HandleDelete(ctx, makeRequest(map[string]any{"id": id}))
		if parseOutput(t, result)["deleted"] != true {
			t.Fatal("expected deleted=true")
		}

		result, _ = h.HandleDelete(ctx, makeRequest(map[string]any{"id": id}))
		assertErrorCode(t, result, "NOT_FOUND")

		result, _ = h.HandlePurge(ctx, makeRequest(map[string]any{"older_than_days": -1}))
		assertErrorCode(t, result, "INVALID_REQUEST")

		result, _ = h.HandlePurge(ctx, makeRequest(map[string]any{"workspace": "hist"}))
		if parseOutput(t, result)["purged"].(float64) != 1 {
			t.Error("expected one purged run")
		}
	})
}

func TestHandleExportImport(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()
	h := NewHandlers(database, cfg)
	ctx := context.Background()

	for _, text := range []string{"aa", "bb"} {
		result, _ := h.HandleEncode(ctx, makeRequest(map[string]any{"text": text, "record": true}))
		parseOutput(t, result)
	}

	path := filepath.Join(t.TempDir(), "runs.jsonl")
	result, _ := h.HandleExport(ctx, makeRequest(map[string]any{"path": path}))
	if parseOutput(t, result)["count"].(float64) != 2 {
		t.Fatal("expected two exported runs")
	}

	other, _, cleanupOther := testSetup(t)
	defer cleanupOther()
	h2 := NewHandlers(other, cfg)

	result, _ = h2.HandleImport(ctx, makeRequest(map[string]any{"path": path}))
	if parseOutput(t, result)["imported"].(float64) != 2 {
		t.Fatal("expected two imported runs")
	}

	result, _ = h2.HandleImport(ctx, makeRequest(map[string]any{"path": path, "mode": "skip"}))
	if parseOutput(t, result)["skipped"].(float64) != 2 {
		t.Error("expected two skipped runs on re-import")
	}

	result, _ = h2.HandleImport(ctx, makeRequest(map[string]any{"path": path, "mode": "merge"}))
	assertErrorCode(t, result, "INVALID_REQUEST")

	result, _ = h2.HandleExport(ctx, makeRequest(map[string]any{"path": "/tmp/../etc/runs.jsonl"}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHistoryDisabledWithoutDatabase(t *testing.T) {
	h := NewHandlers(nil, config.DefaultConfig())
	ctx := context.Background()

	result, _ := h.HandleEncode(ctx, makeRequest(map[string]any{"text": "aa"}))
	if parseOutput(t, result)["encoded"] != "a2" {
		t.Error("sequence tools should work without a database")
	}

	result, _ = h.HandleList(ctx, makeRequest(map[string]any{}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestServerRegistration(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()

	s := NewServer(database, cfg, "test", logging.Nop())
	tools := s.ListTools()

	expectedTools := []string{
		"sequence_validate",
		"sequence_encode",
		"sequence_decode",
		"sequence_tally",
		"sequence_batch",
		"history_fetch",
		"history_list",
		"history_delete",
		"history_purge",
		"history_export",
		"history_import",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}
	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()

	cfg.DisabledTools = []string{"history_purge", "history_delete", "history_purge"}
	tools := NewServer(database, cfg, "test", logging.Nop()).ListTools()

	if len(tools) != 9 {
		t.Errorf("registered tool count = %d, want 9", len(tools))
	}
	for _, name := range []string{"history_purge", "history_delete"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestServerRegistration_WithDisabledTypes(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()

	cfg.DisabledTypes = []string{"history"}
	tools := NewServer(database, cfg, "test", logging.Nop()).ListTools()

	if len(tools) != 5 {
		t.Errorf("registered tool count = %d, want 5", len(tools))
	}
	for name := range tools {
		if GetTypeForTool(name) != "sequence" {
			t.Errorf("unexpected tool %q with history disabled", name)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()

	cfg.DisabledTools = AllToolNames()
	tools := NewServer(database, cfg, "test", logging.Nop()).ListTools()

	if len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledToolsAndTypes(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{"all valid", []string{"history_purge", "sequence_batch"}, 0},
		{"one unknown", []string{"history_purge", "purge"}, 1},
		{"all unknown", []string{"foo", "bar", "baz"}, 3},
		{"empty list", []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if unknown := ValidateDisabledTools(tt.input); len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}

	if unknown := ValidateDisabledTypes([]string{"sequence", "widget"}); len(unknown) != 1 || unknown[0] != "widget" {
		t.Errorf("ValidateDisabledTypes() = %v, want [widget]", unknown)
	}
}

func TestExpandTypesToTools(t *testing.T) {
	if got := ExpandTypesToTools(nil); got != nil {
		t.Errorf("ExpandTypesToTools(nil) = %v, want nil", got)
	}
	got := ExpandTypesToTools([]string{"sequence"})
	want := []string{"sequence_batch", "sequence_decode", "sequence_encode", "sequence_tally", "sequence_validate"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ExpandTypesToTools(sequence) = %v, want %v", got, want)
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != 11 {
		t.Errorf("AllToolNames() returned %d names, want 11", len(names))
	}
	if unknown := ValidateDisabledTools(names); len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
	for _, name := range names {
		if GetTypeForTool(name) == "" {
			t.Errorf("tool %q has no type prefix", name)
		}
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	errObj := parseError(t, r)

	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrapped := fmt.Errorf("items[2]: %w", errors.NewMalformedEncoding(3, "zero count"))
	errObj := parseError(t, errorResult(wrapped))

	if errObj["code"] != string(errors.ErrMalformedEncoding) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrMalformedEncoding)
	}
	msg := errObj["message"].(string)
	if !strings.HasPrefix(msg, "items[2]: ") {
		t.Errorf("message should start with wrapper context, got: %s", msg)
	}
	if strings.Contains(msg, "MALFORMED_ENCODING") {
		t.Errorf("message should not repeat the code, got: %s", msg)
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	errObj := parseError(t, errorResult(errors.NewMalformedEncoding(4, "missing count")))

	details, ok := errObj["details"].(map[string]any)
	if !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
	if details["offset"].(float64) != 4 {
		t.Errorf("details.offset = %v, want 4", details["offset"])
	}
}

func TestErrorResult_PlainErrorIsInternal(t *testing.T) {
	errObj := parseError(t, errorResult(fmt.Errorf("disk on fire")))
	if errObj["code"] != string(errors.ErrInternal) {
		t.Errorf("code=%v, want INTERNAL", errObj["code"])
	}
	if strings.Contains(errObj["message"].(string), "disk") {
		t.Error("plain error text should not leak")
	}
}

// Helper functions

func writeTestFile(path, body string) error {
	return os.WriteFile(path, []byte(body), 0600)
}

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

// parseError returns the error object of a failed result.
func parseError(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if !result.IsError {
		t.Fatal("expected IsError=true")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(extractErrorMessage(result)), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatal("no error object in payload")
	}
	return errObj
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()
	if code := parseError(t, result)["code"]; code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}
	return text.Text
}
