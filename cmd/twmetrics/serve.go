package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"TWMetrics/internal/notifier"
	"TWMetrics/internal/recorder"
	"TWMetrics/internal/scheduler"

	"github.com/google/subcommands"
)

type serveCmd struct {
	runOnStart bool
	history    bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the scheduled reports and the Telegram bot" }
func (*serveCmd) Usage() string {
	return `twmetrics serve [-run-on-start] [-history=false]

  Refreshes the index and sends the watchlist report on the configured cron
  schedules, and answers Telegram commands until interrupted.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.runOnStart, "run-on-start", os.Getenv("RUN_ON_START") == "true", "send the watchlist report immediately")
	f.BoolVar(&c.history, "history", true, "record sent reports in the SQLite database")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		if err := a.cfg.ValidateTelegram(); err != nil {
			return err
		}
		log.Println("[INFO] TWMetrics starting...")

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		opts, err := a.options(0, "", nil)
		if err != nil {
			return err
		}
		tn := notifier.NewTelegramNotifier(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, a.cfg.Proxy)

		var rec recorder.Recorder = recorder.NewNoopRecorder()
		if c.history {
			sr, err := recorder.NewSQLiteRecorder(a.cfg.Database.SQLitePath)
			if err != nil {
				log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			} else {
				rec = sr
			}
		}
		defer rec.Close()

		sched := scheduler.NewScheduler(ctx, a.engine, a.calc, tn, rec, scheduler.Settings{
			Watchlist:   a.cfg.Watchlist,
			Horizons:    a.cfg.Returns.Horizons,
			Options:     opts,
			Funds:       a.funds(),
			IndexSymbol: a.cfg.DataSource.IndexSymbol,
		})
		if err := sched.RegisterAll(a.cfg.Schedule.IndexCron, a.cfg.Schedule.ReportCron); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()

		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")

		if c.runOnStart {
			log.Println("[INFO] run-on-start enabled, sending watchlist report now")
			go sched.RunReportNow()
		}

		log.Println("[INFO] TWMetrics is running. Press Ctrl+C to stop.")
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("[INFO] shutdown signal received, stopping...")
		cancel()
		return nil
	})
}
