package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"TWMetrics/internal/model"

	"github.com/google/subcommands"
)

type backtestCmd struct {
	horizons string
	n        int
	metric   string
	adjust   bool
}

func (*backtestCmd) Name() string     { return "backtest" }
func (*backtestCmd) Synopsis() string { return "compute returns over several horizons" }
func (*backtestCmd) Usage() string {
	return `twmetrics backtest [-h 30,60,120] [-n <days>] [-metric ROI|IRR] [-adjust=true|false] <sid> <yyyy-mm-dd>

  Compares the smoothed price at the start date with the smoothed price
  each horizon later. Horizons that end after today are reported as n/a.
`
}

func (c *backtestCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.horizons, "h", "", "comma separated horizons in calendar days (defaults to config)")
	f.IntVar(&c.n, "n", 0, "n-day average used as the price (defaults to config)")
	f.StringVar(&c.metric, "metric", "", "ROI or IRR (defaults to config)")
	f.BoolVar(&c.adjust, "adjust", false, "subtract the index return over the same dates (defaults to config)")
}

func parseHorizons(s string) ([]int, error) {
	var horizons []int
	for _, part := range strings.Split(s, ",") {
		h, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: horizon %q", model.ErrInvalidInput, part)
		}
		horizons = append(horizons, h)
	}
	return horizons, nil
}

func (c *backtestCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	sid := f.Arg(0)
	start, err := model.ParseDate(f.Arg(1))
	if err != nil {
		fmt.Println(err)
		return subcommands.ExitUsageError
	}
	var horizons []int
	if c.horizons != "" {
		if horizons, err = parseHorizons(c.horizons); err != nil {
			fmt.Println(err)
			return subcommands.ExitUsageError
		}
	}
	var adjust *bool
	f.Visit(func(fl *flag.Flag) {
		if fl.Name == "adjust" {
			adjust = &c.adjust
		}
	})
	return run(func(a *app) error {
		if horizons == nil {
			horizons = a.cfg.Returns.Horizons
		}
		opts, err := a.options(c.n, c.metric, adjust)
		if err != nil {
			return err
		}
		report, err := a.calc.ComputeReturn(ctx, sid, start, horizons, opts)
		if err != nil {
			return err
		}
		printMarkdown(returnMarkdown(report))
		return nil
	})
}
