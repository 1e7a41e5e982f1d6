package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/synod-labs/synod/internal/adapter/postgres"
	"github.com/synod-labs/synod/internal/advisor"
	"github.com/synod-labs/synod/internal/config"
	"github.com/synod-labs/synod/internal/domain/advice"
	"github.com/synod-labs/synod/internal/service"
)

// runAdmin dispatches admin subcommands (sessions, convene).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "sessions":
		return runAdminSessions(args[1:])
	case "convene":
		return runAdminConvene(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: synod admin <command> [options]

Commands:
  sessions   List recorded advice sessions
  convene    Run a one-shot convene from a JSON context file or stdin
  help       Show this help message

Examples:
  synod admin sessions --limit 20
  synod admin convene --file context.json
  echo '{"type":"user-action"}' | synod admin convene
`)
}

// adminDeps wires the minimum needed for offline admin commands: config,
// the postgres store, and the synthesis service without queue, cache, hub,
// or breaker.
func adminDeps() (*service.SynthesisService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	store := postgres.NewStore(pool)
	svc := service.NewSynthesisService(advisor.Default(), store, nil, nil, nil, nil, &cfg.Engine)

	cleanup := func() {
		pool.Close()
	}
	return svc, cleanup, nil
}

func runAdminSessions(args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "maximum sessions to list")
	cursor := fs.String("cursor", "", "pagination cursor from a previous run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc, cleanup, err := adminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	page, err := svc.ListSessions(context.Background(), *cursor, *limit)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tCONFIDENCE\tDECISION\tELAPSED\tCREATED")
	for _, s := range page.Sessions {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%dms\t%s\n",
			s.ID,
			s.Decision.Type,
			s.Decision.Confidence,
			truncate(s.Decision.FinalDecision, 48),
			s.ElapsedMS,
			s.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if page.HasMore {
		fmt.Fprintf(os.Stderr, "\nMore sessions available: --cursor %s\n", page.Cursor)
	}
	return nil
}

func runAdminConvene(args []string) error {
	fs := flag.NewFlagSet("convene", flag.ContinueOnError)
	file := fs.String("file", "", "JSON context file (default: stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var data []byte
	var err error
	if *file != "" {
		data, err = os.ReadFile(*file)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("read context: %w", err)
	}

	var in advice.Context
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("parse context: %w", err)
	}

	svc, cleanup, err := adminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	dec, err := svc.Convene(context.Background(), &in)
	if err != nil {
		return fmt.Errorf("convene: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	if term.IsTerminal(int(os.Stdout.Fd())) {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(dec)
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
