package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/strand/internal/config"
	"github.com/hpungsan/strand/internal/errors"
	"github.com/hpungsan/strand/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config) *Handlers {
	return &Handlers{db: db, cfg: cfg}
}

// RecordArgs are the optional history arguments shared by sequence tools.
type RecordArgs struct {
	Record    bool   `json:"record,omitempty"`
	Workspace string `json:"workspace,omitempty"`
}

func (a RecordArgs) options() ops.RecordOptions {
	return ops.RecordOptions{Record: a.Record, Workspace: a.Workspace}
}

// TextRequest represents the arguments for validate, encode and tally.
// Text is a pointer so an omitted argument can be told apart from "".
type TextRequest struct {
	Text   *string `json:"text"`
	Policy string  `json:"policy,omitempty"`
	RecordArgs
}

// DecodeRequest represents the arguments for sequence_decode.
type DecodeRequest struct {
	Encoded *string `json:"encoded"`
	RecordArgs
}

// BatchRequest represents the arguments for sequence_batch.
type BatchRequest struct {
	Items []ops.BatchItem `json:"items,omitempty"`
	Path  string          `json:"path,omitempty"`
	RecordArgs
}

// FetchRequest represents the arguments for history_fetch.
type FetchRequest struct {
	ID             string `json:"id"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
	IncludeReport  bool   `json:"include_report,omitempty"`
}

// ListRequest represents the arguments for history_list.
type ListRequest struct {
	Workspace      string `json:"workspace,omitempty"`
	Kind           string `json:"kind,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// DeleteRequest represents the arguments for history_delete.
type DeleteRequest struct {
	ID string `json:"id"`
}

// PurgeRequest represents the arguments for history_purge.
type PurgeRequest struct {
	Workspace     *string `json:"workspace,omitempty"`
	OlderThanDays *int    `json:"older_than_days,omitempty"`
}

// ExportRequest represents the arguments for history_export.
type ExportRequest struct {
	Path           string  `json:"path,omitempty"`
	Workspace      *string `json:"workspace,omitempty"`
	IncludeDeleted bool    `json:"include_deleted,omitempty"`
}

// ImportRequest represents the arguments for history_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// requireText rejects a missing text-like argument.
func requireText(name string, v *string) (string, error) {
	if v == nil {
		return "", errors.NewInvalidRequest(name + " is required")
	}
	return *v, nil
}

// HandleValidate handles the sequence_validate tool.
func (h *Handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[TextRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	text, err := requireText("text", r.Text)
	if err != nil {
		return errorResult(err), nil
	}

	out, err := ops.Validate(ctx, h.db, h.cfg, ops.ValidateInput{
		Text:          text,
		Policy:        r.Policy,
		RecordOptions: r.options(),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// HandleEncode handles the sequence_encode tool.
func (h *Handlers) HandleEncode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[TextRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	text, err := requireText("text", r.Text)
	if err != nil {
		return errorResult(err), nil
	}

	out, err := ops.Encode(ctx, h.db, h.cfg, ops.EncodeInput{Text: text, RecordOptions: r.options()})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// HandleDecode handles the sequence_decode tool.
func (h *Handlers) HandleDecode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[DecodeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	encoded, err := requireText("encoded", r.Encoded)
	if err != nil {
		return errorResult(err), nil
	}

	out, err := ops.Decode(ctx, h.db, h.cfg, ops.DecodeInput{Encoded: encoded, RecordOptions: r.options()})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// HandleTally handles the sequence_tally tool.
func (h *Handlers) HandleTally(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[TextRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	text, err := requireText("text", r.Text)
	if err != nil {
		return errorResult(err), nil
	}

	out, err := ops.Tally(ctx, h.db, h.cfg, ops.TallyInput{Text: text, RecordOptions: r.options()})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// HandleBatch handles the sequence_batch tool.
func (h *Handlers) HandleBatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[BatchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	input := ops.BatchInput{Items: r.Items, RecordOptions: r.options()}
	switch {
	case r.Path != "" && len(r.Items) > 0:
		return errorResult(errors.NewInvalidRequest("provide either items or path, not both")), nil
	case r.Path != "":
		file, err := ops.LoadBatchFile(r.Path, h.cfg)
		if err != nil {
			return errorResult(err), nil
		}
		input.Items = file.Items
		input.Record = input.Record || file.Record
		if input.Workspace == "" {
			input.Workspace = file.Workspace
		}
	}

	out, err := ops.Batch(ctx, h.db, h.cfg, input)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// HandleFetch handles the history_fetch tool.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[FetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	out, err := ops.Fetch(ctx, h.db, ops.FetchInput{
		ID:             r.ID,
		IncludeDeleted: r.IncludeDeleted,
		IncludeReport:  r.IncludeReport,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// HandleList handles the history_list tool.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	out, err := ops.List(ctx, h.db, ops.ListInput{
		Workspace:      r.Workspace,
		Kind:           r.Kind,
		Limit:          r.Limit,
		Offset:         r.Offset,
		IncludeDeleted: r.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// HandleDelete handles the history_delete tool.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	out, err := ops.Delete(ctx, h.db, ops.DeleteInput{ID: r.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// HandlePurge handles the history_purge tool.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[PurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	out, err := ops.Purge(ctx, h.db, ops.PurgeInput{
		Workspace:     r.Workspace,
		OlderThanDays: r.OlderThanDays,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// HandleExport handles the history_export tool.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	out, err := ops.Export(ctx, h.db, h.cfg, ops.ExportInput{
		Path:           r.Path,
		Workspace:      r.Workspace,
		IncludeDeleted: r.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// HandleImport handles the history_import tool.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	out, err := ops.Import(ctx, h.db, h.cfg, ops.ImportInput{
		Path: r.Path,
		Mode: ops.ImportMode(r.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// errorResult converts an error to an MCP error result.
// Context added by wrapping is kept in front of the message.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if sErr, ok := errors.As(err); ok {
		msg := sErr.Message
		if prefix := strings.TrimSuffix(err.Error(), sErr.Error()); prefix != err.Error() {
			msg = prefix + msg
		}
		errorObj := map[string]any{
			"code":    sErr.Code,
			"message": msg,
			"status":  sErr.Status,
		}
		// INTERNAL details may carry file paths or SQL text
		if sErr.Code != errors.ErrInternal && sErr.Details != nil {
			errorObj["details"] = sErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
