package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/strand/internal/config"
	"github.com/hpungsan/strand/internal/errors"
	"github.com/hpungsan/strand/internal/ops"
	"github.com/hpungsan/strand/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config, lggr *zap.SugaredLogger) *cli.App {
	app := &cli.App{
		Name:    "strand",
		Usage:   "Bracket validation and run-length encoding",
		Version: Version,
		Commands: []*cli.Command{
			validateCmd(db, cfg),
			encodeCmd(db, cfg),
			decodeCmd(db, cfg),
			tallyCmd(db, cfg),
			batchCmd(db, cfg),
			fetchCmd(db),
			listCmd(db),
			deleteCmd(db),
			purgeCmd(db),
			exportCmd(db, cfg),
			importCmd(db, cfg),
			uiCmd(db, cfg, lggr),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// recordFlags are shared by commands that can store their run.
func recordFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "record", Aliases: []string{"r"}, Usage: "Store the run in history"},
		&cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Value: "default", Usage: "Workspace to record under"},
	}
}

func recordOptions(c *cli.Context) ops.RecordOptions {
	return ops.RecordOptions{Record: c.Bool("record"), Workspace: c.String("workspace")}
}

// sequenceCmd builds a command that takes its text from the first argument
// or from piped stdin.
func sequenceCmd(name, usage string, cfg *config.Config, extra []cli.Flag,
	run func(ctx context.Context, c *cli.Context, text string) (any, error)) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "[text]",
		Flags:     append(extra, recordFlags()...),
		Action: func(c *cli.Context) error {
			text, err := inputText(c, cfg)
			if err != nil {
				return outputError(err)
			}
			out, err := run(c.Context, c, text)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		},
	}
}

func validateCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "policy", Aliases: []string{"p"}, Usage: "Non-bracket handling: reject|ignore|implicit_close (default from config)"},
	}
	return sequenceCmd("validate", "Check that (), [] and {} are balanced", cfg, flags,
		func(ctx context.Context, c *cli.Context, text string) (any, error) {
			return ops.Validate(ctx, db, cfg, ops.ValidateInput{
				Text:          text,
				Policy:        c.String("policy"),
				RecordOptions: recordOptions(c),
			})
		})
}

func encodeCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return sequenceCmd("encode", "Run-length encode text (aaab → a3b1)", cfg, nil,
		func(ctx context.Context, c *cli.Context, text string) (any, error) {
			return ops.Encode(ctx, db, cfg, ops.EncodeInput{Text: text, RecordOptions: recordOptions(c)})
		})
}

func decodeCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return sequenceCmd("decode", "Expand run-length encoded text (a3b1 → aaab)", cfg, nil,
		func(ctx context.Context, c *cli.Context, text string) (any, error) {
			return ops.Decode(ctx, db, cfg, ops.DecodeInput{Encoded: text, RecordOptions: recordOptions(c)})
		})
}

func tallyCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return sequenceCmd("tally", "Count each distinct character (abab → a2b2)", cfg, nil,
		func(ctx context.Context, c *cli.Context, text string) (any, error) {
			return ops.Tally(ctx, db, cfg, ops.TallyInput{Text: text, RecordOptions: recordOptions(c)})
		})
}

// batchCmd creates the batch command.
func batchCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Run the items of a YAML or JSON batch file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Batch file (.yaml, .yml, .json)"},
			&cli.BoolFlag{Name: "record", Aliases: []string{"r"}, Usage: "Store every run in history"},
			&cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Usage: "Workspace to record under (overrides the file)"},
		},
		Action: func(c *cli.Context) error {
			file, err := ops.LoadBatchFile(c.String("path"), cfg)
			if err != nil {
				return outputError(err)
			}

			input := ops.BatchInput{
				Items: file.Items,
				RecordOptions: ops.RecordOptions{
					Record:    c.Bool("record") || file.Record,
					Workspace: file.Workspace,
				},
			}
			if ws := c.String("workspace"); ws != "" {
				input.Workspace = ws
			}

			output, err := ops.Batch(c.Context, db, cfg, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a recorded run by ID",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted runs"},
			&cli.BoolFlag{Name: "report", Usage: "Print the markdown report instead of JSON"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Fetch(c.Context, db, ops.FetchInput{
				ID:             c.Args().First(),
				IncludeDeleted: c.Bool("include-deleted"),
				IncludeReport:  c.Bool("report"),
			})
			if err != nil {
				return outputError(err)
			}
			if c.Bool("report") {
				_, err := io.WriteString(os.Stdout, output.Report)
				return err
			}
			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List recorded runs, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Value: "default", Usage: "Workspace name (\"*\" for all)"},
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Filter by kind: validate|encode|decode|tally"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted runs"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(c.Context, db, ops.ListInput{
				Workspace:      c.String("workspace"),
				Kind:           c.String("kind"),
				Limit:          c.Int("limit"),
				Offset:         c.Int("offset"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Soft-delete a recorded run",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Delete(c.Context, db, ops.DeleteInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete soft-deleted runs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Usage: "Filter by workspace"},
			&cli.StringFlag{Name: "older-than", Usage: "Only purge if deleted more than N days ago (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{}
			if workspace := c.String("workspace"); workspace != "" {
				input.Workspace = &workspace
			}
			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = &days
			}

			output, err := ops.Purge(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export run history to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.strand/exports/<workspace>-<timestamp>.jsonl)"},
			&cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Usage: "Filter by workspace"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted runs"},
		},
		Action: func(c *cli.Context) error {
			input := ops.ExportInput{
				Path:           c.String("path"),
				IncludeDeleted: c.Bool("include-deleted"),
			}
			if workspace := c.String("workspace"); workspace != "" {
				input.Workspace = &workspace
			}

			output, err := ops.Export(c.Context, db, cfg, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import runs from a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|replace|skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(c.Context, db, cfg, ops.ImportInput{
				Path: c.String("path"),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// uiCmd creates the ui command.
func uiCmd(db *sql.DB, cfg *config.Config, lggr *zap.SugaredLogger) *cli.Command {
	return &cli.Command{
		Name:  "ui",
		Usage: "Serve the local web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: web.DefaultPort, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			port := c.Int("port")
			if port < 1 || port > 65535 {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("port must be 1-65535, got %d", port)))
			}
			srv, err := web.NewServer(db, cfg, Version, c.String("bind"), port, lggr)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if err := web.Run(srv, lggr); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// Helper functions

// inputText returns the first positional argument, or piped stdin when there is none.
func inputText(c *cli.Context, cfg *config.Config) (string, error) {
	if c.NArg() > 1 {
		return "", errors.NewInvalidRequest("expected one text argument; quote text containing spaces")
	}
	if c.NArg() == 1 {
		return c.Args().First(), nil
	}
	if !stdinHasData() {
		return "", errors.NewInvalidRequest("text must be given as an argument or piped via stdin")
	}
	return readStdin(stdinLimit(cfg))
}

// stdinLimit is the byte budget for stdin: four bytes per allowed character.
func stdinLimit(cfg *config.Config) int64 {
	if cfg == nil || cfg.InputMaxChars <= 0 {
		return 64 << 20
	}
	return int64(cfg.InputMaxChars) * 4
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if sErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads stdin up to limit bytes and drops one trailing line ending.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("stdin exceeds %d bytes", limit))
	}
	s := strings.TrimSuffix(string(data), "\n")
	return strings.TrimSuffix(s, "\r"), nil
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
