package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Constituent is one ETF holding. Weight is in percent.
type Constituent struct {
	SID    string  `yaml:"sid"`
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
}

// ETF describes a fund whose purchases are compared with constituent turnover.
type ETF struct {
	Code         string        `yaml:"code"`
	Cost         float64       `yaml:"cost"`
	Constituents []Constituent `yaml:"constituents"`
}

// Config holds all application configuration.
type Config struct {
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	DataSource struct {
		TWSEBaseURL  string        `yaml:"twse_base_url"`
		TPExBaseURL  string        `yaml:"tpex_base_url"`
		YahooBaseURL string        `yaml:"yahoo_base_url"`
		IndexSymbol  string        `yaml:"index_symbol"`
		Timeout      time.Duration `yaml:"timeout"`
		OTC          []string      `yaml:"otc"`
	} `yaml:"data_source"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Schedule struct {
		IndexCron  string `yaml:"index_cron"`
		ReportCron string `yaml:"report_cron"`
	} `yaml:"schedule"`
	Returns struct {
		NDayAverage   int    `yaml:"n_day_average"`
		Metric        string `yaml:"metric"`
		Horizons      []int  `yaml:"horizons"`
		AdjustByIndex bool   `yaml:"adjust_by_index"`
	} `yaml:"returns"`
	Watchlist []string `yaml:"watchlist"`
	ETFs      []ETF    `yaml:"etfs"`
	Proxy     string   `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file yields a config built from the
// environment alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	overrides := map[string]*string{
		"SQLITE_PATH":        &cfg.Database.SQLitePath,
		"TELEGRAM_BOT_TOKEN": &cfg.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &cfg.Telegram.ChatID,
		"HTTPS_PROXY":        &cfg.Proxy,
		"TWSE_BASE_URL":      &cfg.DataSource.TWSEBaseURL,
		"TPEX_BASE_URL":      &cfg.DataSource.TPExBaseURL,
		"YAHOO_BASE_URL":     &cfg.DataSource.YahooBaseURL,
		"INDEX_CRON":         &cfg.Schedule.IndexCron,
		"REPORT_CRON":        &cfg.Schedule.ReportCron,
	}
	for key, field := range overrides {
		if v := os.Getenv(key); v != "" {
			*field = v
		}
	}
	if v := os.Getenv("N_DAY_AVERAGE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("N_DAY_AVERAGE: %w", err)
		}
		cfg.Returns.NDayAverage = n
	}

	// Defaults
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/twmetrics.db"
	}
	if cfg.DataSource.TWSEBaseURL == "" {
		cfg.DataSource.TWSEBaseURL = "https://www.twse.com.tw"
	}
	if cfg.DataSource.TPExBaseURL == "" {
		cfg.DataSource.TPExBaseURL = "https://www.tpex.org.tw"
	}
	if cfg.DataSource.YahooBaseURL == "" {
		cfg.DataSource.YahooBaseURL = "https://query1.finance.yahoo.com"
	}
	if cfg.DataSource.IndexSymbol == "" {
		cfg.DataSource.IndexSymbol = "TWII"
	}
	if cfg.DataSource.Timeout == 0 {
		cfg.DataSource.Timeout = 30 * time.Second
	}
	if cfg.Schedule.IndexCron == "" {
		cfg.Schedule.IndexCron = "0 30 14 * * 1-5"
	}
	if cfg.Schedule.ReportCron == "" {
		cfg.Schedule.ReportCron = "0 0 15 * * 1-5"
	}
	if cfg.Returns.NDayAverage == 0 {
		cfg.Returns.NDayAverage = 5
	}
	if cfg.Returns.Metric == "" {
		cfg.Returns.Metric = "ROI"
	}
	if len(cfg.Returns.Horizons) == 0 {
		cfg.Returns.Horizons = []int{30, 60, 120, 180, 360}
	}

	return cfg, nil
}

// Validate checks the settings every command relies on.
func (c *Config) Validate() error {
	if c.Returns.NDayAverage <= 0 {
		return fmt.Errorf("returns.n_day_average must be positive")
	}
	switch strings.ToUpper(c.Returns.Metric) {
	case "ROI", "IRR":
	default:
		return fmt.Errorf("returns.metric must be ROI or IRR, got %q", c.Returns.Metric)
	}
	for _, h := range c.Returns.Horizons {
		if h < 0 {
			return fmt.Errorf("returns.horizons must not be negative, got %d", h)
		}
	}
	for _, etf := range c.ETFs {
		if etf.Code == "" || etf.Cost <= 0 {
			return fmt.Errorf("etfs: every fund needs a code and a positive cost")
		}
		for _, con := range etf.Constituents {
			if con.SID == "" || con.Weight <= 0 {
				return fmt.Errorf("etfs.%s: constituent %q needs a sid and a positive weight", etf.Code, con.SID)
			}
		}
	}
	return nil
}

// ValidateTelegram checks the settings required by serve mode.
func (c *Config) ValidateTelegram() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required")
	}
	return nil
}

// FindETF returns the fund with the given code.
func (c *Config) FindETF(code string) (ETF, bool) {
	for _, etf := range c.ETFs {
		if etf.Code == code {
			return etf, true
		}
	}
	return ETF{}, false
}
