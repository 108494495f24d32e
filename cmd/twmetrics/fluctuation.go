package main

import (
	"context"
	"flag"
	"fmt"

	"TWMetrics/internal/scheduler"

	"github.com/google/subcommands"
)

type fluctuationCmd struct {
	lookbacks string
}

func (*fluctuationCmd) Name() string     { return "fluctuation" }
func (*fluctuationCmd) Synopsis() string { return "compare today's price with recent lookbacks" }
func (*fluctuationCmd) Usage() string {
	return `twmetrics fluctuation [-l 7,30,90] <sid>

  Prints the percentage change between today's close and the close each
  lookback ago.
`
}

func (c *fluctuationCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.lookbacks, "l", "", "comma separated lookbacks in calendar days")
}

func (c *fluctuationCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	sid := f.Arg(0)
	lookbacks := scheduler.DefaultLookbacks
	if c.lookbacks != "" {
		var err error
		if lookbacks, err = parseHorizons(c.lookbacks); err != nil {
			fmt.Println(err)
			return subcommands.ExitUsageError
		}
	}
	return run(func(a *app) error {
		changes, err := a.calc.RecentFluctuation(ctx, sid, lookbacks)
		if err != nil {
			return err
		}
		printMarkdown(fluctuationMarkdown(sid, changes))
		return nil
	})
}
