package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/strand/internal/config"
	"github.com/hpungsan/strand/internal/db"
	"github.com/hpungsan/strand/internal/logging"
	"github.com/hpungsan/strand/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"validate": true, "encode": true, "decode": true, "tally": true, "batch": true,
	"fetch": true, "list": true, "delete": true, "purge": true,
	"export": true, "import": true, "ui": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a banner when run interactively without args.
func printBanner() {
	fmt.Println(`
       _                       _
   ___| |_ _ __ __ _ _ __   __| |
  / __| __| '__/ _' | '_ \ / _' |
  \__ \ |_| | | (_| | | | | (_| |
  |___/\__|_|  \__,_|_| |_|\__,_|

  Bracket validation and run-length encoding

  Usage: strand <command> [options]
         strand --help

  MCP server mode requires piped input.`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// warnUnknownDisabled logs config entries that match no tool or type.
func warnUnknownDisabled(cfg *config.Config, lggr *zap.SugaredLogger) {
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		lggr.Warnw("unknown tools in disabled_tools", "names", strings.Join(unknown, ", "), "valid", strings.Join(mcp.AllToolNames(), ", "))
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		lggr.Warnw("unknown types in disabled_types", "names", strings.Join(unknown, ", "), "valid", strings.Join(mcp.KnownTypes, ", "))
	}
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Help and version need no database
	if isHelpOrVersion() {
		app := newCLIApp(nil, config.DefaultConfig(), logging.Nop())
		if err := app.Run(os.Args); err != nil {
			fatal("%v", err)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fatal("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(homeDir, config.DirName)

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fatal("failed to load config: %v", err)
	}

	lggr, err := logging.New(cfg.LogLevel)
	if err != nil {
		fatal("%v", err)
	}
	defer func() { _ = lggr.Sync() }()

	database, err := db.Init(baseDir)
	if err != nil {
		fatal("failed to initialize database: %v", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	if isCLIMode() {
		app := newCLIApp(database, cfg, lggr)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintln(os.Stderr, err)
			database.Close()
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'strand --help' for usage.\n")
		os.Exit(1)
	}

	warnUnknownDisabled(cfg, lggr)
	if err := mcp.Run(database, cfg, Version, lggr); err != nil {
		lggr.Errorw("mcp server stopped", "error", err)
		database.Close()
		os.Exit(1)
	}
}
