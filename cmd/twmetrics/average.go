package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"TWMetrics/internal/calculator"
	"TWMetrics/internal/model"

	"github.com/google/subcommands"
)

type averageCmd struct {
	date   string
	n      int
	strict bool
}

func (*averageCmd) Name() string     { return "average" }
func (*averageCmd) Synopsis() string { return "print the n-day average price of a security" }
func (*averageCmd) Usage() string {
	return `twmetrics average [-d <yyyy-mm-dd>] [-n <days>] [-strict] <sid>

  Backfills the cache and prints the trailing n-day average close ending at
  the latest trading day on or before the date.
`
}

func (c *averageCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "target date (defaults to today)")
	f.IntVar(&c.n, "n", 5, "number of trading days to average")
	f.BoolVar(&c.strict, "strict", false, "fail when the date itself has no trading bar")
}

func (c *averageCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	sid := f.Arg(0)
	var target time.Time
	if c.date != "" {
		var err error
		if target, err = model.ParseDate(c.date); err != nil {
			fmt.Println(err)
			return subcommands.ExitUsageError
		}
	}
	return run(func(a *app) error {
		if target.IsZero() {
			target = a.engine.Today()
		}
		mode := calculator.Soft
		if c.strict {
			mode = calculator.Strict
		}
		q, err := a.calc.NDayAveragePrice(ctx, sid, target, c.n, mode)
		if err != nil {
			return err
		}
		fmt.Printf("%s %d-day average on %s: %.2f\n", sid, c.n, model.FormatDate(q.Date), q.Price)
		return nil
	})
}
