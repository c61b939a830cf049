package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Host string `mapstructure:"host" json:"host,omitempty"`
		Port int64  `mapstructure:"port" json:"port,omitempty"`
	} `mapstructure:"server" json:"server"`

	Chain struct {
		RPCURL  string `mapstructure:"rpc_url" json:"rpc_url,omitempty"`
		ChainID int64  `mapstructure:"chain_id" json:"chain_id,omitempty"`
	} `mapstructure:"chain" json:"chain"`

	Explorer struct {
		BaseURL  string        `mapstructure:"base_url" json:"base_url,omitempty"`
		APIKey   string        `mapstructure:"api_key" json:"api_key,omitempty"`
		CacheTTL time.Duration `mapstructure:"cache_ttl" json:"cache_ttl,omitempty"`
	} `mapstructure:"explorer" json:"explorer"`

	Contracts struct {
		UniversalRouter string `mapstructure:"universal_router" json:"universal_router,omitempty"`
		Quoter          string `mapstructure:"quoter" json:"quoter,omitempty"`
		SavingsHook     string `mapstructure:"savings_hook" json:"savings_hook,omitempty"`
		StrategyStore   string `mapstructure:"strategy_store" json:"strategy_store,omitempty"`
		DCAManager      string `mapstructure:"dca_manager" json:"dca_manager,omitempty"`
	} `mapstructure:"contracts" json:"contracts"`

	Engine struct {
		SwapGasLimit    uint64        `mapstructure:"swap_gas_limit" json:"swap_gas_limit,omitempty"`
		SlippagePct     float64       `mapstructure:"slippage_pct" json:"slippage_pct,omitempty"`
		Deadline        time.Duration `mapstructure:"deadline" json:"deadline,omitempty"`
		QuoteDebounce   time.Duration `mapstructure:"quote_debounce" json:"quote_debounce,omitempty"`
		SignerKey       string        `mapstructure:"signer_key" json:"signer_key,omitempty"`
		DCAWatchedUsers []string      `mapstructure:"dca_watched_users" json:"dca_watched_users,omitempty"`
		DCACronSpec     string        `mapstructure:"dca_cron_spec" json:"dca_cron_spec,omitempty"`
	} `mapstructure:"engine" json:"engine"`

	Database struct {
		DSN string `mapstructure:"dsn" json:"dsn,omitempty"`
	} `mapstructure:"database" json:"database,omitempty"`

	Redis struct {
		Host     string `mapstructure:"host" json:"host,omitempty"`
		Port     string `mapstructure:"port" json:"port,omitempty"`
		User     string `mapstructure:"user" json:"user,omitempty"`
		Password string `mapstructure:"password" json:"password,omitempty"`
		DB       int    `mapstructure:"db" json:"db,omitempty"`
	} `mapstructure:"redis" json:"redis,omitempty"`

	Datadog struct {
		Host string `mapstructure:"host" json:"host,omitempty"`
		Port string `mapstructure:"port" json:"port,omitempty"`
	} `mapstructure:"datadog" json:"datadog"`
}

func GetConfigure() (*Config, error) {
	configName := os.Getenv("SE_CONFIG_NAME")
	if configName == "" {
		configName = "config"
	}

	return ReadConfig(configName)
}

func ReadConfig(configName string) (*Config, error) {
	viper.SetConfigName(configName)
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("chain.chain_id", 1)
	viper.SetDefault("explorer.base_url", "https://api.etherscan.io/api")
	viper.SetDefault("explorer.cache_ttl", 5*time.Minute)
	viper.SetDefault("engine.swap_gas_limit", 350_000)
	viper.SetDefault("engine.slippage_pct", 0.5)
	viper.SetDefault("engine.deadline", 20*time.Minute)
	viper.SetDefault("engine.quote_debounce", 800*time.Millisecond)
	viper.SetDefault("engine.dca_cron_spec", "@hourly")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("fail to reading config file, %w", err)
	}
	var cfg Config
	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	return &cfg, nil
}
