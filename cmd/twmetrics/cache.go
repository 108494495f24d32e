package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"TWMetrics/internal/backfill"
	"TWMetrics/internal/model"
	"TWMetrics/internal/store"

	"github.com/google/subcommands"
)

type cacheCmd struct {
	from string
	to   string
}

func (*cacheCmd) Name() string     { return "cache" }
func (*cacheCmd) Synopsis() string { return "show which months are cached for a security" }
func (*cacheCmd) Usage() string {
	return `twmetrics cache -from <yyyy-mm-dd> [-to <yyyy-mm-dd>] <sid>

  Lists every month in the window with the time its bars were last fetched
  and whether the index has bars in it. Nothing is fetched.
`
}

func (c *cacheCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "first date of the window")
	f.StringVar(&c.to, "to", "", "last date of the window (defaults to -from)")
}

type cacheRow struct {
	Month   model.YearMonth
	Fetched *model.MonthFetchRecord
	Index   bool
}

func (c *cacheCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 || c.from == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}
	to := c.to
	if to == "" {
		to = c.from
	}
	from, until, err := backfill.ParseYearMonthRange(c.from, to)
	if err != nil {
		fmt.Println(err)
		return subcommands.ExitUsageError
	}
	sid := f.Arg(0)
	return run(func(a *app) error {
		rows, err := cacheRows(ctx, a.db, sid, from, until)
		if err != nil {
			return err
		}
		printMarkdown(cacheMarkdown(sid, rows))
		return nil
	})
}

func cacheRows(ctx context.Context, db *store.DB, sid string, from, to model.YearMonth) ([]cacheRow, error) {
	var rows []cacheRow
	for _, ym := range model.MonthRange(from, to) {
		rec, err := db.Prices().Header(ctx, sid, ym.Key())
		if err != nil {
			return nil, err
		}
		index, err := db.Index().HasMonth(ctx, ym.Key())
		if err != nil {
			return nil, err
		}
		rows = append(rows, cacheRow{Month: ym, Fetched: rec, Index: index})
	}
	return rows, nil
}

func cacheMarkdown(sid string, rows []cacheRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s cache\n\n", sid)
	b.WriteString("| Month | Fetched | Index |\n|---|---|---|\n")
	for _, r := range rows {
		fetched := "missing"
		if r.Fetched != nil {
			fetched = model.FormatTimestamp(r.Fetched.LastUpdated)
		}
		index := "no"
		if r.Index {
			index = "yes"
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", r.Month.Key(), fetched, index)
	}
	return b.String()
}
