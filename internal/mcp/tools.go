package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/strand/internal/brackets"
)

// Shared argument options for tools that may record a run.
var recordArgs = []mcp.ToolOption{
	mcp.WithBoolean("record",
		mcp.Description("Store this run in history (ignored when disable_history is set)"),
	),
	mcp.WithString("workspace",
		mcp.Description("Workspace to record the run under (default: \"default\")"),
	),
}

func withRecordArgs(opts ...mcp.ToolOption) []mcp.ToolOption {
	return append(opts, recordArgs...)
}

var validateToolDef = mcp.NewTool("sequence_validate", withRecordArgs(
	mcp.WithDescription("Check whether a sequence of (), [] and {} is balanced. "+
		"Returns the verdict plus where and why it failed."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("Sequence to check; may be empty"),
	),
	mcp.WithString("policy",
		mcp.Description("Handling of non-bracket characters (default from config)"),
		mcp.Enum(brackets.PolicyNames()...),
	),
)...)

var encodeToolDef = mcp.NewTool("sequence_encode", withRecordArgs(
	mcp.WithDescription("Run-length encode text as <char><count> pairs, e.g. aaabbc -> a3b2c1."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("Text to encode; may be empty"),
	),
)...)

var decodeToolDef = mcp.NewTool("sequence_decode", withRecordArgs(
	mcp.WithDescription("Expand run-length encoded text back into the original sequence."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("encoded",
		mcp.Required(),
		mcp.Description("Encoded text, e.g. a3b2c1"),
	),
)...)

var tallyToolDef = mcp.NewTool("sequence_tally", withRecordArgs(
	mcp.WithDescription("Count each distinct character, ordered by first occurrence. "+
		"Unlike encode, non-adjacent runs are merged."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("Text to tally"),
	),
)...)

var batchToolDef = mcp.NewTool("sequence_batch", withRecordArgs(
	mcp.WithDescription("Run many validate/encode/decode/tally items in one call. "+
		"Provide either items or path to a YAML/JSON batch file. Failing items do not stop the batch."),
	mcp.WithArray("items",
		mcp.Description("Items to run, in order"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"kind":   map[string]any{"type": "string", "enum": []string{"validate", "encode", "decode", "tally"}},
				"text":   map[string]any{"type": "string"},
				"policy": map[string]any{"type": "string", "enum": brackets.PolicyNames()},
			},
			"required": []string{"kind", "text"},
		}),
	),
	mcp.WithString("path",
		mcp.Description("Batch file (.yaml, .yml or .json) in ~/.strand/exports or allowed_paths"),
	),
)...)

var fetchToolDef = mcp.NewTool("history_fetch",
	mcp.WithDescription("Fetch one recorded run by id."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("id", mcp.Required(), mcp.Description("Run id (ULID)")),
	mcp.WithBoolean("include_deleted", mcp.Description("Also return soft-deleted runs")),
	mcp.WithBoolean("include_report", mcp.Description("Include a markdown report of the run")),
)

var listToolDef = mcp.NewTool("history_list",
	mcp.WithDescription("List recorded runs, newest first."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("workspace", mcp.Description("Workspace (default: \"default\"; \"*\" for all)")),
	mcp.WithString("kind",
		mcp.Description("Only runs of this kind"),
		mcp.Enum("validate", "encode", "decode", "tally"),
	),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted runs")),
)

var deleteToolDef = mcp.NewTool("history_delete",
	mcp.WithDescription("Soft-delete a recorded run. Use history_purge to remove it permanently."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("id", mcp.Required(), mcp.Description("Run id (ULID)")),
)

var purgeToolDef = mcp.NewTool("history_purge",
	mcp.WithDescription("Permanently delete soft-deleted runs."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("workspace", mcp.Description("Only purge this workspace")),
	mcp.WithNumber("older_than_days", mcp.Description("Only purge runs deleted more than N days ago")),
)

var exportToolDef = mcp.NewTool("history_export",
	mcp.WithDescription("Export run history to a JSONL file."),
	mcp.WithString("path", mcp.Description("Destination .jsonl (default: ~/.strand/exports/<workspace>-<timestamp>.jsonl)")),
	mcp.WithString("workspace", mcp.Description("Only export this workspace")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted runs")),
)

var importToolDef = mcp.NewTool("history_import",
	mcp.WithDescription("Import runs from a JSONL export file."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Source .jsonl file")),
	mcp.WithString("mode",
		mcp.Description("On id collision: error (atomic, default), replace or skip"),
		mcp.Enum("error", "replace", "skip"),
	),
)
