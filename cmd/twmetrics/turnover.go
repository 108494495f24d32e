package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type turnoverCmd struct {
	n int
}

func (*turnoverCmd) Name() string     { return "turnover" }
func (*turnoverCmd) Synopsis() string { return "show an ETF's share of constituent turnover" }
func (*turnoverCmd) Usage() string {
	return `twmetrics turnover [-n <days>] [<etf code>...]

  For each configured ETF (or the listed codes), divides the fund's
  purchase per constituent by the constituent's average daily turnover.
`
}

func (c *turnoverCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.n, "n", 5, "number of trading days to average turnover over")
}

func (c *turnoverCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		wanted := make(map[string]bool)
		for _, code := range f.Args() {
			if _, ok := a.cfg.FindETF(code); !ok {
				return fmt.Errorf("etf %s is not configured", code)
			}
			wanted[code] = true
		}
		for _, fund := range a.funds() {
			if len(wanted) > 0 && !wanted[fund.Code] {
				continue
			}
			shares, err := a.calc.TurnoverShare(ctx, fund, c.n)
			if err != nil {
				return err
			}
			printMarkdown(turnoverMarkdown(fund, c.n, shares))
		}
		return nil
	})
}
