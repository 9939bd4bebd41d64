package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/zzeiidann/DNAI/internal/backend"
	"github.com/zzeiidann/DNAI/internal/config"
	"github.com/zzeiidann/DNAI/internal/db"
	"github.com/zzeiidann/DNAI/internal/mcp"
	"github.com/zzeiidann/DNAI/internal/ops"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"add": true, "delete": true, "entries": true, "summary": true,
	"analyze": true, "chat": true, "conversations": true, "conv": true,
	"login": true, "register": true, "logout": true, "whoami": true,
	"theme": true, "export": true, "import": true, "health": true, "serve": true,
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
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
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
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

func printBanner() {
	fmt.Println(`
   ____  _   _    _    ___
  |  _ \| \ | |  / \  |_ _|
  | | | |  \| | / _ \  | |
  | |_| | |\  |/ ___ \ | |
  |____/|_| \_/_/   \_\___|

  Calorie ledger and nutrition chat

  Usage: dnai <command> [options]
         dnai serve          open the web UI
         dnai --help

  MCP server mode requires piped input.`)
}

// newLogger picks the process logger. The web server logs JSON to stderr;
// other modes stay quiet unless DNAI_DEBUG is set, since stdout carries
// command output or the MCP protocol.
func newLogger(serve bool) (*zap.Logger, error) {
	if os.Getenv("DNAI_DEBUG") != "" {
		return zap.NewDevelopment()
	}
	if serve {
		return zap.NewProduction()
	}
	return zap.NewNop(), nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Help and version need no database
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fatal("%v", err)
		}
		return
	}

	cliMode := isCLIMode()
	if !cliMode && len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'dnai --help' for usage.\n")
		os.Exit(1)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fatal("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(homeDir, ".dnai")

	if err := config.LoadDotEnv(".env"); err != nil {
		fatal("failed to read .env: %v", err)
	}
	cfg, err := config.Load(baseDir)
	if err != nil {
		fatal("failed to load config: %v", err)
	}
	config.ApplyEnv(cfg, os.LookupEnv)

	logger, err := newLogger(cliMode && os.Args[1] == "serve")
	if err != nil {
		fatal("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	database, err := db.Init(baseDir)
	if err != nil {
		fatal("failed to initialize database: %v", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	st, err := ops.LoadState(context.Background(), db.NewStore(database))
	if err != nil {
		fatal("failed to load state: %v", err)
	}

	client := backend.New(cfg.APIURL, st.Session,
		backend.WithTimeout(cfg.BackendTimeout()),
		backend.WithLogger(logger),
	)
	logger.Debug("state loaded",
		zap.String("base_dir", baseDir),
		zap.String("api_url", client.BaseURL()),
		zap.Bool("authenticated", st.Session.Authenticated()),
	)

	env := &cliEnv{st: st, cfg: cfg, backend: client, logger: logger}

	if cliMode {
		app := newCLIApp(env)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	// MCP server mode (default)
	deps := mcp.Deps{State: st, Analyzer: client, Chatter: client}
	if err := mcp.Run(deps, cfg, Version); err != nil {
		fatal("%v", err)
	}
}
