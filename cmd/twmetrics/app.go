package main

import (
	"flag"
	"fmt"
	"os"

	"TWMetrics/internal/backfill"
	"TWMetrics/internal/calculator"
	"TWMetrics/internal/collector"
	"TWMetrics/internal/config"
	"TWMetrics/internal/store"

	"github.com/google/subcommands"
)

// as a CLI application, it has a very short lived lifecycle, so flags live in globals.
var configPath = flag.String("config", defaultConfigPath(), "Path to the YAML config file")

func defaultConfigPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "configs/config.yaml"
}

// app is the wired dependency graph shared by every subcommand.
type app struct {
	cfg    *config.Config
	db     *store.DB
	engine *backfill.Engine
	calc   *calculator.Calculator
}

func openApp() (*app, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	db, err := store.Open(cfg.Database.SQLitePath)
	if err != nil {
		return nil, err
	}

	ds := cfg.DataSource
	listed := collector.NewTWSEFetcher(ds.TWSEBaseURL, cfg.Proxy, ds.Timeout)
	otc := collector.NewTPExFetcher(ds.TPExBaseURL, cfg.Proxy, ds.Timeout)
	yahoo := collector.NewYahooFetcher(ds.YahooBaseURL, cfg.Proxy, ds.Timeout)

	engine := backfill.NewEngine(db.Prices(), db.Index(),
		collector.NewMarketRouter(listed, otc, ds.OTC), yahoo, ds.IndexSymbol)
	return &app{
		cfg:    cfg,
		db:     db,
		engine: engine,
		calc:   calculator.New(engine, engine),
	}, nil
}

func (a *app) Close() error { return a.db.Close() }

// options returns the configured return options, with flag overrides applied
// when non-zero. A nil adjust keeps the configured index adjustment.
func (a *app) options(n int, metric string, adjust *bool) (calculator.Options, error) {
	opts := calculator.Options{
		NDayAverage:   a.cfg.Returns.NDayAverage,
		AdjustByIndex: a.cfg.Returns.AdjustByIndex,
	}
	if adjust != nil {
		opts.AdjustByIndex = *adjust
	}
	if n != 0 {
		opts.NDayAverage = n
	}
	if metric == "" {
		metric = a.cfg.Returns.Metric
	}
	m, err := calculator.ParseMetric(metric)
	if err != nil {
		return opts, err
	}
	opts.Metric = m
	return opts, nil
}

// funds converts the configured ETF tables.
func (a *app) funds() []calculator.Fund {
	funds := make([]calculator.Fund, 0, len(a.cfg.ETFs))
	for _, etf := range a.cfg.ETFs {
		fund := calculator.Fund{Code: etf.Code, Cost: etf.Cost}
		for _, c := range etf.Constituents {
			fund.Constituents = append(fund.Constituents,
				calculator.Constituent{SecurityID: c.SID, Name: c.Name, Weight: c.Weight})
		}
		funds = append(funds, fund)
	}
	return funds
}

// run opens the app, runs fn and reports errors the way every subcommand does.
func run(fn func(a *app) error) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()
	if err := fn(a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
