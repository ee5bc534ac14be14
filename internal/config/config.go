package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
	Limiter LimiterConfig `mapstructure:"limiter"`
	Capital CapitalConfig `mapstructure:"capital"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type StorageConfig struct {
	StateDir string `mapstructure:"state_dir"` // capital snapshots live here
	TradeDB  string `mapstructure:"trade_db"`  // sqlite file for the trade ledger
}

type LimiterConfig struct {
	SafetyMargin float64 `mapstructure:"safety_margin"` // fraction of the nominal rate actually used

	// Per-exchange nominal request rates (req/s) overriding the built-in
	// table, e.g. limiter.rates.bybit: 2.0
	Rates map[string]float64 `mapstructure:"rates"`
}

type CapitalConfig struct {
	InitialCapital     float64 `mapstructure:"initial_capital"`
	MaxAllocationRatio float64 `mapstructure:"max_allocation_ratio"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. TRADECORE_CAPITAL_INITIAL_CAPITAL
	viper.SetEnvPrefix("tradecore")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("storage.state_dir", "data/storage")
	viper.SetDefault("storage.trade_db", "data/local_trades.db")
	viper.SetDefault("limiter.safety_margin", 0.8)
	viper.SetDefault("capital.initial_capital", 10000.0)
	viper.SetDefault("capital.max_allocation_ratio", 0.8)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
