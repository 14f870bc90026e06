package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
app:
  environment: test
broker:
  driver: paper
  account_kind: investor
  account_no: "0123456"
  pin: "000000"
scheduler:
  interval: 2s
  start_time: "09:55"
  end_time: "16:30:00"
execution:
  slippage_steps: 2
  round_mode: down
  order_mode: skip
signals:
  - symbol: AOT
    value: 0.25
  - symbol: PTT
    value: 0.1
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Scheduler.Interval != 2*time.Second {
		t.Errorf("unexpected interval %v", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.StartTime != "09:55" {
		t.Errorf("unexpected start time %q", cfg.Scheduler.StartTime)
	}
	if cfg.Execution.SlippageSteps != 2 || cfg.Execution.OrderMode != "skip" {
		t.Errorf("unexpected execution config %+v", cfg.Execution)
	}
	if len(cfg.Signals) != 2 || cfg.Signals[0].Symbol != "AOT" || cfg.Signals[1].Value != 0.1 {
		t.Errorf("signals not decoded in order: %+v", cfg.Signals)
	}
	if cfg.Broker.Retry.MinDelay != 500*time.Millisecond {
		t.Errorf("default retry delay not applied: %v", cfg.Broker.Retry.MinDelay)
	}
	if cfg.Realtime.PollInterval != time.Second {
		t.Errorf("default poll interval not applied: %v", cfg.Realtime.PollInterval)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("EXECUTE_EXECUTION_ORDER_MODE", "raise")
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Execution.OrderMode != "raise" {
		t.Fatalf("expected env override, got %q", cfg.Execution.OrderMode)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	body := strings.Replace(sampleYAML, `start_time: "09:55"`, `start_time: "9h"`, 1)
	body = strings.Replace(body, "order_mode: skip", "order_mode: yolo", 1)
	body = strings.Replace(body, "symbol: PTT", "symbol: aot", 1)

	_, err := Load(writeConfig(t, body))
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"scheduler.start_time", "execution.order_mode", "重复"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestValidate_InvestorNeedsPIN(t *testing.T) {
	body := strings.Replace(sampleYAML, `pin: "000000"`, `pin: ""`, 1)
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected error when investor pin is missing")
	}

	body = strings.Replace(body, "account_kind: investor", "account_kind: market_rep", 1)
	if _, err := Load(writeConfig(t, body)); err != nil {
		t.Fatalf("market_rep should not need pin: %v", err)
	}
}
