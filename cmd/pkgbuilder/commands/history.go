package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgbuilder/internal/history"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Build string        `short:"b" help:"Show every event of one build"`
	Since time.Duration `short:"s" help:"Show events newer than this age, e.g. 2h"`
	Limit int           `short:"n" help:"Maximum rows to show" default:"20"`
}

func (h *HistoryCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if cfg.History == nil {
		return errors.ConfigError("build history is not enabled; set history.path in the configuration").Build()
	}
	store, err := history.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return h.print(context.Background(), store, os.Stdout)
}

func (h *HistoryCmd) print(ctx context.Context, store history.Store, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer func() { _ = tw.Flush() }()

	switch {
	case h.Build != "":
		recs, err := store.ByBuild(ctx, h.Build)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return errors.NotFoundError("no events recorded for build " + h.Build).Build()
		}
		printRecords(tw, recs, false)
	case h.Since > 0:
		recs, err := store.Since(ctx, time.Now().Add(-h.Since), h.Limit)
		if err != nil {
			return err
		}
		printRecords(tw, recs, true)
	default:
		sums, err := store.Builds(ctx, h.Limit)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(tw, "BUILD\tSTRATEGY\tSTARTED\tDURATION\tOUTCOME\tMESSAGE")
		for _, s := range sums {
			outcome := string(s.Outcome)
			if outcome == "" {
				outcome = "running"
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.BuildID, s.Strategy,
				s.Started.Local().Format(time.DateTime), s.Finished.Sub(s.Started).Round(time.Millisecond),
				outcome, s.Message)
		}
	}
	return nil
}

func printRecords(w io.Writer, recs []history.Record, withBuild bool) {
	for _, r := range recs {
		ts := r.Time.Local().Format(time.DateTime)
		if withBuild {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ts, r.BuildID, r.Kind, r.Message)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", ts, r.Kind, r.Message)
	}
}
