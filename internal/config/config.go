// Package config
package config

import (
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

/*
YAML config example:
mode: "DRY_RUN"
exchange: "wallex"
quote_asset: "USDT"
starting_capital: 10000
risk_percent: 1.0
daily_loss_cap_percent: 3.0
monthly_drawdown_percent: 4.0
max_open_positions: 5
fee_cushion_percent: 0.15
monitor_interval: 60s
db_conn_str: "host=localhost ..."
listen_addr: ":9090"
*/

type Config struct {
	Mode     string `yaml:"mode"`
	Exchange string `yaml:"exchange"` // wallex or bybit

	WallexAPIKey   string `yaml:"wallex_api_key"`
	BybitAPIKey    string `yaml:"bybit_api_key"`
	BybitAPISecret string `yaml:"bybit_api_secret"`
	BybitCategory  string `yaml:"bybit_category"`
	BybitBaseURL   string `yaml:"bybit_base_url"`

	QuoteAsset      string  `yaml:"quote_asset"`
	StartingCapital float64 `yaml:"starting_capital"`

	RiskPercent            float64 `yaml:"risk_percent"`
	DailyLossCapPercent    float64 `yaml:"daily_loss_cap_percent"`
	MonthlyDrawdownPercent float64 `yaml:"monthly_drawdown_percent"`
	MaxOpenPositions       int     `yaml:"max_open_positions"`
	FeeCushionPercent      float64 `yaml:"fee_cushion_percent"`

	MonitorInterval time.Duration `yaml:"monitor_interval"`

	DBConnStr string `yaml:"db_conn_str"`
	DBMaxOpen int    `yaml:"db_max_open"`
	DBMaxIdle int    `yaml:"db_max_idle"`

	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`

	ListenAddr  string `yaml:"listen_addr"`
	AuditExport string `yaml:"audit_export"`
}

// Load reads flags, then an optional YAML file, then the environment. Secrets
// only ever come from the environment; a .env file is honored when present.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Config | .env not loaded: %v", err)
	}

	mode := flag.String("mode", "DRY_RUN", "Execution mode: DRY_RUN or LIVE")
	exchangeName := flag.String("exchange", "wallex", "Exchange: wallex or bybit")
	quoteAsset := flag.String("quote-asset", "USDT", "Asset capital is denominated in")
	startingCapital := flag.Float64("starting-capital", 0, "Capital used for sizing and drawdown accounting")
	riskPercent := flag.Float64("risk-percent", 1.0, "Risk percent per trade (e.g., 1.0 for 1%)")
	dailyLossCap := flag.Float64("daily-loss-cap", 3.0, "Daily realized loss cap as percent of capital")
	monthlyDrawdown := flag.Float64("monthly-drawdown", 4.0, "Monthly drawdown suspension threshold in percent")
	maxOpenPositions := flag.Int("max-open-positions", 5, "Maximum concurrent open positions")
	feeCushion := flag.Float64("fee-cushion-percent", 0.15, "Fee cushion applied to break-even stops")
	monitorInterval := flag.Duration("monitor-interval", 60*time.Second, "Stop monitor scan interval")
	telegramToken := flag.String("telegram-token", "", "Telegram bot token for notifications")
	telegramChatID := flag.String("telegram-chat", "", "Telegram chat ID for notifications")
	listenAddr := flag.String("listen", ":9090", "Address for /metrics and /healthz")
	auditExport := flag.String("audit-export", "", "Write the audit ledger to this XLSX path and exit")
	configFile := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg := Config{
		Mode:                   strings.ToUpper(*mode),
		Exchange:               *exchangeName,
		WallexAPIKey:           os.Getenv("WALLEX_API_KEY"),
		BybitAPIKey:            os.Getenv("BYBIT_API_KEY"),
		BybitAPISecret:         os.Getenv("BYBIT_API_SECRET"),
		BybitCategory:          "spot",
		QuoteAsset:             *quoteAsset,
		StartingCapital:        *startingCapital,
		RiskPercent:            *riskPercent,
		DailyLossCapPercent:    *dailyLossCap,
		MonthlyDrawdownPercent: *monthlyDrawdown,
		MaxOpenPositions:       *maxOpenPositions,
		FeeCushionPercent:      *feeCushion,
		MonitorInterval:        *monitorInterval,
		DBConnStr:              os.Getenv("DB_CONN_STR"),
		DBMaxOpen:              10,
		DBMaxIdle:              5,
		TelegramToken:          *telegramToken,
		TelegramChatID:         *telegramChatID,
		ListenAddr:             *listenAddr,
		AuditExport:            *auditExport,
	}

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			log.Fatalf("Failed to read config file: %v", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Failed to parse config file: %v", err)
		}
		cfg.Mode = strings.ToUpper(cfg.Mode)
	}

	if cfg.TelegramToken == "" {
		cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	}
	if cfg.TelegramChatID == "" {
		cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
	}
	return cfg
}
