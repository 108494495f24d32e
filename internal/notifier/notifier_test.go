package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"TWMetrics/internal/calculator"
	"TWMetrics/internal/model"
)

func ptr(v float64) *float64 { return &v }

func TestFormatReturnReport(t *testing.T) {
	r := &calculator.ReturnReport{
		SecurityID:  "2330",
		Metric:      calculator.MetricROI,
		NDayAverage: 5,
		Start:       calculator.Quote{Price: 600, Date: time.Date(2024, 2, 1, 0, 0, 0, 0, model.Taipei)},
		Horizons: []calculator.HorizonResult{
			{Horizon: 30, Realizable: true, EndDate: time.Date(2024, 3, 1, 0, 0, 0, 0, model.Taipei),
				EndPrice: 660, DayRange: 29, Value: ptr(10), Adjusted: ptr(7.5)},
			{Horizon: 60, Realizable: true, Err: model.ErrInsufficientHistory},
			{Horizon: 365},
		},
	}
	msg := FormatReturnReport(r)
	for _, want := range []string{"2330", "2024-02-01", "+10.00%", "超額 +7.50%", "無法計算", "尚未到期"} {
		if !strings.Contains(msg, want) {
			t.Errorf("report missing %q:\n%s", want, msg)
		}
	}

	r.StartErr = errors.New("no <bars>")
	if msg := FormatReturnReport(r); !strings.Contains(msg, "no &lt;bars&gt;") {
		t.Errorf("errors must be HTML escaped:\n%s", msg)
	}
}

func TestFormatFluctuation_SortsLookbacks(t *testing.T) {
	msg := FormatFluctuation("2330", map[int]*float64{90: nil, 7: ptr(-1.25), 30: ptr(3)})
	i7, i30, i90 := strings.Index(msg, "近7天"), strings.Index(msg, "近30天"), strings.Index(msg, "近90天")
	if i7 < 0 || i7 > i30 || i30 > i90 {
		t.Errorf("lookbacks out of order:\n%s", msg)
	}
	if !strings.Contains(msg, "-1.25%") || !strings.Contains(msg, "N/A") {
		t.Errorf("unexpected values:\n%s", msg)
	}
}

func TestFormatTurnoverShares(t *testing.T) {
	fund := calculator.Fund{Code: "00939", Cost: 5e10}
	shares := []calculator.TurnoverShare{
		{Constituent: calculator.Constituent{SecurityID: "2454", Name: "聯發科", Weight: 6.21}, AvgTurnover: 1e9, Share: ptr(310.5)},
		{Constituent: calculator.Constituent{SecurityID: "6669", Name: "緯穎", Weight: 4.84}, Err: model.ErrInsufficientHistory},
	}
	msg := FormatTurnoverShares(fund, 5, shares)
	if !strings.Contains(msg, "2454/聯發科 近5天平均成交金額: 1000000000, 占比: 310.50%") {
		t.Errorf("unexpected share line:\n%s", msg)
	}
	if !strings.Contains(msg, "6669/緯穎: 資料不足") {
		t.Errorf("missing failed constituent:\n%s", msg)
	}
}

func TestTelegramNotifier_Send(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tn := NewTelegramNotifierWithURL(srv.URL, "token", "42", "")
	if err := tn.Send(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if got["chat_id"] != "42" || got["text"] != "hello" || got["parse_mode"] != "HTML" {
		t.Errorf("unexpected payload %v", got)
	}
}

func TestTelegramNotifier_SendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewTelegramNotifierWithURL(srv.URL, "token", "42", "").Send(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Errorf("expected API error, got %v", err)
	}
}

func TestTelegramNotifier_Dispatch(t *testing.T) {
	var sent []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		sent = append(sent, body["text"])
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tn := NewTelegramNotifierWithURL(srv.URL, "token", "42", "")
	var updates []telegramUpdate
	if err := json.Unmarshal([]byte(`[
		{"update_id": 7, "message": {"text": " /fluct 2330 "}},
		{"update_id": 8},
		{"update_id": 9, "message": {"text": "/ignored"}}
	]`), &updates); err != nil {
		t.Fatal(err)
	}
	var commands []string
	offset := tn.dispatch(context.Background(), updates, 0, func(_ context.Context, cmd string) string {
		commands = append(commands, cmd)
		if cmd == "/ignored" {
			return ""
		}
		return "reply to " + cmd
	})
	if offset != 10 {
		t.Errorf("expected next offset 10, got %d", offset)
	}
	if len(commands) != 2 || commands[0] != "/fluct 2330" {
		t.Errorf("unexpected commands %v", commands)
	}
	if len(sent) != 1 || sent[0] != "reply to /fluct 2330" {
		t.Errorf("unexpected replies %v", sent)
	}
}
