package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "execute"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("broker.driver", "paper")
	v.SetDefault("broker.exchange", "binance")
	v.SetDefault("broker.use_sandbox", false)
	v.SetDefault("broker.quote_currency", "USDT")
	v.SetDefault("broker.account_kind", "investor")
	v.SetDefault("broker.retry.max_attempts", 3)
	v.SetDefault("broker.retry.min_delay", "500ms")
	v.SetDefault("broker.retry.max_delay", "5s")

	v.SetDefault("realtime.stream_url", "")
	v.SetDefault("realtime.poll_interval", "1s")

	v.SetDefault("paper.initial_cash", 1_000_000)
	v.SetDefault("paper.market_data", false)

	v.SetDefault("scheduler.interval", "10s")
	v.SetDefault("scheduler.start_time", "10:00:00")
	v.SetDefault("scheduler.end_time", "16:30:00")
	v.SetDefault("scheduler.timezone", "Asia/Bangkok")

	v.SetDefault("execution.slippage_steps", 0)
	v.SetDefault("execution.round_mode", "down")
	v.SetDefault("execution.order_mode", "none")
	v.SetDefault("execution.price_type", "Limit")
	v.SetDefault("execution.validity", "Day")
	v.SetDefault("execution.strategy", "rebalance")
	v.SetDefault("execution.trend_period", 20)
	v.SetDefault("execution.trend_interval", "1d")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9108)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
