// Command telecare runs the local-first state service and its maintenance
// tasks. Configuration comes from TELECARE_* environment variables.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"telecare/internal/app"
	"telecare/internal/config"
	"telecare/internal/keys"
	"telecare/internal/observability"
	"telecare/internal/persistence"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	a := newCLI(stdout, stderr)
	if err := a.Run(args); err != nil {
		fmt.Fprintln(stderr, "telecare:", err)
		return 1
	}
	return 0
}

func newCLI(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "telecare",
		Usage:     "local-first state sync for the telecare client",
		Writer:    stdout,
		ErrWriter: stderr,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and realtime bridge",
				Action: serve,
			},
			{
				Name:  "keys",
				Usage: "list persisted snapshots",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "print JSON instead of a table"},
				},
				Action: listKeys,
			},
			{
				Name:      "seed",
				Usage:     "apply a YAML seed file",
				ArgsUsage: "FILE",
				Action:    applySeed,
			},
			{
				Name:  "env",
				Usage: "describe the recognised environment variables",
				Action: func(*cli.Context) error {
					return config.Usage()
				},
			},
		},
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, c.App.ErrWriter)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()
	return a.ListenAndServe(ctx)
}

type keyRow struct {
	Key     string    `json:"key"`
	Store   string    `json:"store"`
	Scope   string    `json:"scope,omitempty"`
	Version int       `json:"version"`
	Current bool      `json:"current"`
	SavedAt time.Time `json:"savedAt"`
	Size    int       `json:"size"`
	Error   string    `json:"error,omitempty"`
}

func listKeys(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := c.Context
	storage, err := persistence.Open(ctx, cfg.Persistence())
	if err != nil {
		return err
	}
	defer storage.Close()

	rows, err := inspectKeys(ctx, storage, cfg.Namespace)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSTORE\tVERSION\tSAVED\tBYTES")
	for _, r := range rows {
		version := fmt.Sprint(r.Version)
		if !r.Current && r.Store != "" {
			version += " (stale)"
		}
		saved := r.SavedAt.Format(time.RFC3339)
		if r.Error != "" {
			saved = r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", r.Key, orDash(r.Store), version, saved, r.Size)
	}
	return tw.Flush()
}

func inspectKeys(ctx context.Context, storage persistence.Backend, namespace string) ([]keyRow, error) {
	names, err := storage.Keys(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	rows := make([]keyRow, 0, len(names))
	for _, name := range names {
		row := keyRow{Key: name}
		k, scope, known := keys.Lookup(namespace, name)
		if known {
			row.Store = k.Name
			row.Scope = scope
		}
		h, err := persistence.Inspect(ctx, storage, name)
		switch {
		case errors.Is(err, persistence.ErrNotFound):
			continue
		case err != nil:
			row.Error = err.Error()
		default:
			row.Version = h.Version
			row.SavedAt = h.SavedAt
			row.Size = h.Size
			row.Current = known && h.Version == k.Version
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func applySeed(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("seed: expected exactly one FILE argument")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, c.App.ErrWriter)
	if err != nil {
		return err
	}
	cfg.SeedFile = ""
	cfg.Backend.URL = ""
	cfg.Realtime.Driver = "memory"
	a, err := app.New(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	res, err := a.Seeds.ApplyFile(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	if !res.Applied {
		fmt.Fprintf(c.App.Writer, "seed version %d already applied\n", res.Version)
		return nil
	}
	fmt.Fprintf(c.App.Writer, "applied seed version %d (%d articles)\n", res.Version, res.Articles)
	return nil
}
