package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"TWMetrics/internal/model"

	"github.com/google/subcommands"
)

type indexCmd struct {
	from    string
	to      string
	rebuild bool
}

func (*indexCmd) Name() string     { return "index" }
func (*indexCmd) Synopsis() string { return "refresh and print the broad-market index" }
func (*indexCmd) Usage() string {
	return `twmetrics index [-from <yyyy-mm-dd>] [-to <yyyy-mm-dd>] [-rebuild]

  Seeds or refreshes the index cache, fills months in the window that were
  never fetched, then prints the bars in the window (the last two weeks by
  default). -rebuild re-fetches the window first; without -to it deletes
  every bar from -from onward before re-fetching.
`
}

func (c *indexCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "first date to print")
	f.StringVar(&c.to, "to", "", "last date to print (defaults to today)")
	f.BoolVar(&c.rebuild, "rebuild", false, "delete and re-fetch the window")
}

func (c *indexCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var from, to time.Time
	var err error
	if c.from != "" {
		if from, err = model.ParseDate(c.from); err != nil {
			fmt.Println(err)
			return subcommands.ExitUsageError
		}
	}
	if c.to != "" {
		if to, err = model.ParseDate(c.to); err != nil {
			fmt.Println(err)
			return subcommands.ExitUsageError
		}
	}
	return run(func(a *app) error {
		until := to
		if until.IsZero() {
			until = a.engine.Today()
		}
		start := from
		if start.IsZero() {
			start = until.AddDate(0, 0, -14)
		}
		if err := a.engine.RefreshIndexIfStale(ctx); err != nil {
			return err
		}
		switch {
		case c.rebuild && to.IsZero():
			err = a.engine.RebuildIndexFrom(ctx, start)
		case c.rebuild:
			err = a.engine.EnsureIndexRange(ctx, start, until)
		default:
			_, err = a.engine.FillIndexGaps(ctx, start, until)
		}
		if err != nil {
			return err
		}
		bars, err := a.db.Index().ReadRange(ctx, start, until)
		if err != nil {
			return err
		}
		printMarkdown(indexMarkdown(a.cfg.DataSource.IndexSymbol, bars))
		return nil
	})
}
