package scheduler

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"
	"sync"
	"time"

	"TWMetrics/internal/calculator"
	"TWMetrics/internal/model"
	"TWMetrics/internal/notifier"
	"TWMetrics/internal/recorder"

	"github.com/robfig/cron/v3"
)

// DefaultLookbacks are the fluctuation windows reported by /fluct, in days.
var DefaultLookbacks = []int{7, 30, 90, 180, 365}

// IndexService refreshes and reads the broad-market index.
type IndexService interface {
	RefreshIndexIfStale(ctx context.Context) error
	IndexClose(ctx context.Context, date time.Time) (model.IndexBar, error)
	Today() time.Time
}

// Sender delivers a formatted message.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Settings are the report parameters taken from config.
type Settings struct {
	Watchlist   []string
	Horizons    []int
	Options     calculator.Options
	Funds       []calculator.Fund
	IndexSymbol string
}

// Scheduler manages the cron tasks and answers chat commands. Jobs and
// commands run one at a time against the shared store.
type Scheduler struct {
	Cron     *cron.Cron
	Index    IndexService
	Calc     *calculator.Calculator
	Notifier Sender
	Recorder recorder.Recorder
	Settings Settings
	Ctx      context.Context

	mu sync.Mutex
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, index IndexService, calc *calculator.Calculator, sender Sender, rec recorder.Recorder, settings Settings) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Index:    index,
		Calc:     calc,
		Notifier: sender,
		Recorder: rec,
		Settings: settings,
		Ctx:      ctx,
	}
}

// RegisterAll registers the index refresh and watchlist report tasks.
func (s *Scheduler) RegisterAll(indexCron, reportCron string) error {
	if _, err := s.Cron.AddFunc(indexCron, s.indexTask); err != nil {
		return fmt.Errorf("register index task: %w", err)
	}
	if _, err := s.Cron.AddFunc(reportCron, s.reportTask); err != nil {
		return fmt.Errorf("register report task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// RunReportNow executes the watchlist report immediately.
func (s *Scheduler) RunReportNow() {
	s.reportTask()
}

func (s *Scheduler) indexTask() {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.Println("[INFO] running index refresh")
	if err := s.Index.RefreshIndexIfStale(s.Ctx); err != nil {
		log.Printf("[ERROR] index refresh: %v", err)
		s.trySend(fmt.Sprintf("❌ 指數更新失敗: %v", err))
		return
	}
	bar, err := s.Index.IndexClose(s.Ctx, s.Index.Today())
	if err != nil {
		log.Printf("[ERROR] index close: %v", err)
		return
	}
	s.trySend(notifier.FormatIndex(s.Settings.IndexSymbol, bar))
}

func (s *Scheduler) reportTask() {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.Println("[INFO] running watchlist report")
	s.trySend(s.watchlistReport(s.Ctx))
}

func (s *Scheduler) watchlistReport(ctx context.Context) string {
	var snaps []calculator.Snapshot
	failed := make(map[string]error)
	for _, sid := range s.Settings.Watchlist {
		snap, err := s.Calc.Snapshot(ctx, sid)
		if err != nil {
			log.Printf("[WARN] snapshot %s: %v", sid, err)
			failed[sid] = err
			continue
		}
		snaps = append(snaps, snap)
		if err := s.Recorder.RecordSnapshot(snap); err != nil {
			log.Printf("[ERROR] record snapshot %s: %v", sid, err)
		}
	}
	return notifier.FormatWatchlistReport(s.Index.Today(), snaps, failed)
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.FormatHelp()
	}
	reply, err := s.dispatch(ctx, fields[0], fields[1:])
	if err != nil {
		log.Printf("[ERROR] command %q: %v", command, err)
		return fmt.Sprintf("❌ %s 失敗: %s", fields[0], html.EscapeString(err.Error()))
	}
	return reply
}

func (s *Scheduler) dispatch(ctx context.Context, cmd string, args []string) (string, error) {
	switch cmd {
	case "/return":
		if len(args) < 2 {
			return "用法: /return &lt;sid&gt; &lt;yyyy-mm-dd&gt; [ROI|IRR]", nil
		}
		start, err := model.ParseDate(args[1])
		if err != nil {
			return "", err
		}
		opts := s.Settings.Options
		if len(args) > 2 {
			if opts.Metric, err = calculator.ParseMetric(args[2]); err != nil {
				return "", err
			}
		}
		report, err := s.Calc.ComputeReturn(ctx, args[0], start, s.Settings.Horizons, opts)
		if err != nil {
			return "", err
		}
		if err := s.Recorder.RecordReturn(report); err != nil {
			log.Printf("[ERROR] record return %s: %v", args[0], err)
		}
		return notifier.FormatReturnReport(report), nil

	case "/fluct":
		if len(args) < 1 {
			return "用法: /fluct &lt;sid&gt;", nil
		}
		changes, err := s.Calc.RecentFluctuation(ctx, args[0], DefaultLookbacks)
		if err != nil {
			return "", err
		}
		return notifier.FormatFluctuation(args[0], changes), nil

	case "/index":
		date := s.Index.Today()
		if len(args) > 0 {
			var err error
			if date, err = model.ParseDate(args[0]); err != nil {
				return "", err
			}
		}
		bar, err := s.Index.IndexClose(ctx, date)
		if err != nil {
			return "", err
		}
		return notifier.FormatIndex(s.Settings.IndexSymbol, bar), nil

	case "/watchlist":
		return s.watchlistReport(ctx), nil

	case "/etf":
		if len(args) < 1 {
			return "用法: /etf &lt;code&gt;", nil
		}
		for _, fund := range s.Settings.Funds {
			if fund.Code != args[0] {
				continue
			}
			shares, err := s.Calc.TurnoverShare(ctx, fund, s.Settings.Options.NDayAverage)
			if err != nil {
				return "", err
			}
			return notifier.FormatTurnoverShares(fund, s.Settings.Options.NDayAverage, shares), nil
		}
		return fmt.Sprintf("未設定的 ETF: %s", args[0]), nil
	}
	return notifier.FormatHelp(), nil
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
