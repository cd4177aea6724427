package config

// Config 顶层配置。字段名与 YAML 键一一对应。
type Config struct {
	App      AppConfig      `mapstructure:"app" yaml:"app"`
	Feed     FeedConfig     `mapstructure:"feed" yaml:"feed"`
	Strategy StrategyConfig `mapstructure:"strategy" yaml:"strategy"`
	Backtest BacktestConfig `mapstructure:"backtest" yaml:"backtest"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Notify   NotifyConfig   `mapstructure:"notify" yaml:"notify"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogPath  string `mapstructure:"log_path" yaml:"log_path"`
	DataRoot string `mapstructure:"data_root" yaml:"data_root"`
}

// FeedConfig 行情数据源。Source 取 yahoo / binance / csv。
type FeedConfig struct {
	Source          string        `mapstructure:"source" yaml:"source"`
	RateLimitPerMin int           `mapstructure:"rate_limit_per_min" yaml:"rate_limit_per_min"`
	MaxConcurrent   int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	Yahoo           YahooConfig   `mapstructure:"yahoo" yaml:"yahoo"`
	Binance         BinanceConfig `mapstructure:"binance" yaml:"binance"`
	CSV             CSVConfig     `mapstructure:"csv" yaml:"csv"`
}

type YahooConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

type BinanceConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

type CSVConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// StrategyConfig EMA 窗口与再平衡策略选择。
type StrategyConfig struct {
	Universe     []string    `mapstructure:"universe" yaml:"universe"`
	Interval     string      `mapstructure:"interval" yaml:"interval"`
	Spans        SpansConfig `mapstructure:"spans" yaml:"spans"`
	Policy       string      `mapstructure:"policy" yaml:"policy"`
	ProfilesPath string      `mapstructure:"profiles_path" yaml:"profiles_path,omitempty"`
}

type SpansConfig struct {
	Short  int `mapstructure:"short" yaml:"short"`
	Medium int `mapstructure:"medium" yaml:"medium"`
	Long   int `mapstructure:"long" yaml:"long"`
}

type BacktestConfig struct {
	InitialCash   float64 `mapstructure:"initial_cash" yaml:"initial_cash"`
	Start         string  `mapstructure:"start" yaml:"start"`
	End           string  `mapstructure:"end" yaml:"end"`
	ResultRoot    string  `mapstructure:"result_root" yaml:"result_root"`
	ExportDir     string  `mapstructure:"export_dir" yaml:"export_dir"`
	ChartSnapshot bool    `mapstructure:"chart_snapshot" yaml:"chart_snapshot"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

type NotifyConfig struct {
	TelegramToken  string `mapstructure:"telegram_token" yaml:"telegram_token,omitempty"`
	TelegramChatID string `mapstructure:"telegram_chat_id" yaml:"telegram_chat_id,omitempty"`
}
