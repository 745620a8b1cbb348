// Package main is the entry point for the costorm demo.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/dshills/costorm/internal/config"
	"github.com/dshills/costorm/internal/diag"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	configPath string
	logLevel   string
	tui        bool
	watch      bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var opts options
	var showVersion, showHelp bool

	flagSet := pflag.NewFlagSet("costorm", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to a TOML or YAML config file")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")
	flagSet.BoolVar(&opts.tui, "tui", false, "draw the session in the terminal")
	flagSet.BoolVar(&opts.watch, "watch", false, "reload the peer identity when the config file changes")
	flagSet.BoolVarP(&showVersion, "version", "v", false, "show version information")
	flagSet.BoolVarP(&showHelp, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(stderr, flagSet)
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if showHelp {
		printHelp(stderr, flagSet)
		return 0
	}
	if showVersion {
		fmt.Fprintf(stdout, "costorm %s\n", version)
		fmt.Fprintf(stdout, "Commit: %s\n", commit)
		fmt.Fprintf(stdout, "Built: %s\n", date)
		return 0
	}

	command := "demo"
	if rest := flagSet.Args(); len(rest) > 0 {
		command = rest[0]
	}
	if command != "demo" {
		fmt.Fprintf(stderr, "Error: unknown command %q\n", command)
		return 2
	}
	if opts.watch && opts.configPath == "" {
		fmt.Fprintln(stderr, "Error: --watch needs --config")
		return 2
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: loading config: %v\n", err)
		return 1
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	logger, err := diag.NewLogger(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runDemo(ctx, cfg, opts, logger, stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `costorm - editor and replicated text in lockstep

Runs two in-process peers through a scripted collaborative session:
edits, remote cursors, undo and history checkout. Updates travel
between the peers by explicit export and import.

Usage: costorm [options] [demo]

Options:
`)
	flagSet.PrintDefaults()
	fmt.Fprintf(w, `
Environment:
  COSTORM_PEER_NAME, COSTORM_PEER_COLOR, COSTORM_PRESENCE_MODE,
  COSTORM_PRESENCE_TTL, COSTORM_UNDO_ENABLED, COSTORM_UNDO_MAX_ENTRIES,
  COSTORM_SYNC_CONTAINER, COSTORM_LOG_LEVEL, COSTORM_LOG_FORMAT
`)
}
