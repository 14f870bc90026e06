package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合执行器运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Paper     PaperConfig     `mapstructure:"paper"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Signals   []SignalConfig  `mapstructure:"signals"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// BrokerConfig 描述券商连接与下单账户。
type BrokerConfig struct {
	Driver        string      `mapstructure:"driver"` // paper | ccxt
	Exchange      string      `mapstructure:"exchange"`
	APIKey        string      `mapstructure:"api_key"`
	APISecret     string      `mapstructure:"api_secret"`
	APIPass       string      `mapstructure:"api_password"`
	UseSandbox    bool        `mapstructure:"use_sandbox"`
	QuoteCurrency string      `mapstructure:"quote_currency"`
	AccountKind   string      `mapstructure:"account_kind"`
	AccountNo     string      `mapstructure:"account_no"`
	PIN           string      `mapstructure:"pin"`
	Retry         RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// RealtimeConfig 控制买卖盘订阅方式。StreamURL 为空时退化为轮询。
type RealtimeConfig struct {
	StreamURL    string        `mapstructure:"stream_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// PaperConfig 为模拟券商的初始状态。
type PaperConfig struct {
	InitialCash float64            `mapstructure:"initial_cash"`
	MarketData  bool               `mapstructure:"market_data"` // 使用交易所行情撮合
	Quotes      []PaperQuoteConfig `mapstructure:"quotes"`
}

// PaperQuoteConfig 为模拟行情。
type PaperQuoteConfig struct {
	Symbol string  `mapstructure:"symbol"`
	Last   float64 `mapstructure:"last"`
	Bid    float64 `mapstructure:"bid"`
	Ask    float64 `mapstructure:"ask"`
}

// SchedulerConfig 控制执行窗口与节奏，时间为当日时刻 HH:MM[:SS]。
type SchedulerConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	StartTime string        `mapstructure:"start_time"`
	EndTime   string        `mapstructure:"end_time"`
	Timezone  string        `mapstructure:"timezone"`
}

// ExecutionConfig 控制下单行为。
type ExecutionConfig struct {
	SlippageSteps int    `mapstructure:"slippage_steps"`
	RoundMode     string `mapstructure:"round_mode"`
	OrderMode     string `mapstructure:"order_mode"`
	PriceType     string `mapstructure:"price_type"`
	Validity      string `mapstructure:"validity"`
	Strategy      string `mapstructure:"strategy"`
	TrendPeriod   int    `mapstructure:"trend_period"`
	TrendInterval string `mapstructure:"trend_interval"`
}

// SignalConfig 为单个标的的信号。
type SignalConfig struct {
	Symbol string  `mapstructure:"symbol"`
	Value  float64 `mapstructure:"value"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MetricsConfig 控制 Prometheus 指标暴露。
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

var (
	clockLayouts  = []string{"15:04:05", "15:04"}
	roundModes    = []string{"down", "up", "nearest"}
	orderModes    = []string{"none", "skip", "raise", "available"}
	strategies    = []string{"rebalance", "trend_rebalance"}
	brokerDrivers = []string{"paper", "ccxt"}
	accountKinds  = []string{"investor", "market_rep"}
)

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if !oneOf(c.Broker.Driver, brokerDrivers) {
		err = multierr.Append(err, fmt.Errorf("broker.driver 必须为 %s", strings.Join(brokerDrivers, "|")))
	}
	if strings.EqualFold(c.Broker.Driver, "ccxt") {
		if c.Broker.Exchange == "" {
			err = multierr.Append(err, errors.New("broker.exchange 不能为空"))
		}
		if c.Broker.QuoteCurrency == "" {
			err = multierr.Append(err, errors.New("broker.quote_currency 不能为空"))
		}
	}
	if !oneOf(c.Broker.AccountKind, accountKinds) {
		err = multierr.Append(err, fmt.Errorf("broker.account_kind 必须为 %s", strings.Join(accountKinds, "|")))
	}
	if c.Broker.AccountNo == "" {
		err = multierr.Append(err, errors.New("broker.account_no 不能为空"))
	}
	if strings.EqualFold(c.Broker.AccountKind, "investor") && c.Broker.PIN == "" {
		err = multierr.Append(err, errors.New("investor 账户需要配置 broker.pin"))
	}
	if c.Broker.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("broker.retry.max_attempts 必须大于0"))
	}
	if c.Broker.Retry.MinDelay <= 0 || c.Broker.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("broker.retry.delay 必须为正"))
	}
	if c.Broker.Retry.MinDelay > c.Broker.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("broker.retry.min_delay 不能大于 max_delay"))
	}
	if c.Realtime.PollInterval <= 0 {
		err = multierr.Append(err, errors.New("realtime.poll_interval 必须大于0"))
	}
	if strings.EqualFold(c.Broker.Driver, "paper") && c.Paper.InitialCash < 0 {
		err = multierr.Append(err, errors.New("paper.initial_cash 不能为负"))
	}
	if c.Scheduler.Interval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.interval 必须大于0"))
	}
	if !validClock(c.Scheduler.StartTime) {
		err = multierr.Append(err, fmt.Errorf("scheduler.start_time 格式错误 %q", c.Scheduler.StartTime))
	}
	if !validClock(c.Scheduler.EndTime) {
		err = multierr.Append(err, fmt.Errorf("scheduler.end_time 格式错误 %q", c.Scheduler.EndTime))
	}
	if c.Scheduler.Timezone != "" {
		if _, locErr := time.LoadLocation(c.Scheduler.Timezone); locErr != nil {
			err = multierr.Append(err, fmt.Errorf("scheduler.timezone 无效: %w", locErr))
		}
	}
	if c.Execution.SlippageSteps < -150 || c.Execution.SlippageSteps > 150 {
		err = multierr.Append(err, errors.New("execution.slippage_steps 应位于[-150,150]"))
	}
	if !oneOf(c.Execution.RoundMode, roundModes) {
		err = multierr.Append(err, fmt.Errorf("execution.round_mode 必须为 %s", strings.Join(roundModes, "|")))
	}
	if !oneOf(c.Execution.OrderMode, orderModes) {
		err = multierr.Append(err, fmt.Errorf("execution.order_mode 必须为 %s", strings.Join(orderModes, "|")))
	}
	if !oneOf(c.Execution.Strategy, strategies) {
		err = multierr.Append(err, fmt.Errorf("execution.strategy 必须为 %s", strings.Join(strategies, "|")))
	}
	if strings.EqualFold(c.Execution.Strategy, "trend_rebalance") && c.Execution.TrendPeriod < 2 {
		err = multierr.Append(err, errors.New("execution.trend_period 至少为2"))
	}

	seen := make(map[string]struct{}, len(c.Signals))
	for i, s := range c.Signals {
		if strings.TrimSpace(s.Symbol) == "" {
			err = multierr.Append(err, fmt.Errorf("signals[%d].symbol 不能为空", i))
			continue
		}
		key := strings.ToUpper(s.Symbol)
		if _, dup := seen[key]; dup {
			err = multierr.Append(err, fmt.Errorf("signals[%d].symbol 重复: %s", i, s.Symbol))
		}
		seen[key] = struct{}{}
	}

	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		err = multierr.Append(err, errors.New("metrics.port 无效"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(value), a) {
			return true
		}
	}
	return false
}

func validClock(s string) bool {
	for _, layout := range clockLayouts {
		if _, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return true
		}
	}
	return false
}
