// Package config provides configuration management for the reports service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Redis        RedisConfig
	Etherscan    EtherscanConfig
	Dton         DtonConfig
	Tonapi       TonapiConfig
	Toncenter    ToncenterConfig
	LiteServer   LiteServerConfig
	CMC          CMCConfig
	OpenExchange OpenExchangeConfig
	Converter    ConverterConfig
	DefiLlama    DefiLlamaConfig
	Staking      StakingConfig
	Books        BooksConfig
	Logging      LoggingConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string
	Port string
}

// RedisConfig holds the fiat-rate cache backend configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// EtherscanConfig holds the EVM explorer API configuration.
type EtherscanConfig struct {
	BaseURL string
	APIKey  string
	// RequestsPerSecond throttles explorer calls (free tier allows 5/s).
	RequestsPerSecond float64
}

// DtonConfig holds the TON transaction archive (GraphQL) configuration.
// The API key is part of the URL path.
type DtonConfig struct {
	APIKey string
}

// URL returns the GraphQL endpoint for the configured key.
func (c DtonConfig) URL() string {
	return fmt.Sprintf("https://dton.co/%s/graphql", c.APIKey)
}

// TonapiConfig holds the TON token-indexer REST API configuration.
type TonapiConfig struct {
	BaseURL string
}

// ToncenterConfig holds the TON center API configuration.
type ToncenterConfig struct {
	BaseURL string
}

// LiteServerConfig holds the lite-server HTTP gateway configuration used for
// block lookups and read-only contract calls.
type LiteServerConfig struct {
	GatewayURL string
}

// CMCConfig holds the price aggregator configuration.
type CMCConfig struct {
	ProBaseURL   string
	ChartBaseURL string
	APIKey       string
}

// OpenExchangeConfig holds the fiat historical-rate API configuration.
type OpenExchangeConfig struct {
	BaseURL string
	AppID   string
}

// ConverterConfig holds the live currency converter configuration.
type ConverterConfig struct {
	BaseURL string
}

// DefiLlamaConfig holds the TVL aggregator configuration.
type DefiLlamaConfig struct {
	BaseURL  string
	Protocol string
}

// StakingConfig holds the staking pool addresses used by the yield engine and
// the transfer normalizers.
type StakingConfig struct {
	// SttonMaster is the stTON jetton master contract (raw form).
	SttonMaster string
	// PoolAddress is the staking pool account transfers are labeled against.
	PoolAddress string
	// LendingAddress is the lending protocol account (deposit/withdrawal notes).
	LendingAddress string
}

// BooksConfig holds paths to the static address-book and token-list files.
type BooksConfig struct {
	TokenListETH   string
	AddressBookETH string
	AddressBookTON string
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment. A missing .env file is not
// an error; explicitly exported variables always win.
func Load() (*Config, error) {
	loadDotenv()

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8000"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Etherscan: EtherscanConfig{
			BaseURL:           getEnv("ETHERSCAN_API_BASE_URL", "https://api.etherscan.io/api"),
			APIKey:            getEnv("ETHERSCAN_API_KEY", ""),
			RequestsPerSecond: getEnvAsFloat("ETHERSCAN_RPS", 5),
		},
		Dton: DtonConfig{
			APIKey: getEnv("DTON_API_KEY", ""),
		},
		Tonapi: TonapiConfig{
			BaseURL: getEnv("TONAPI_BASE_URL", "https://tonapi.io"),
		},
		Toncenter: ToncenterConfig{
			BaseURL: getEnv("TONCENTER_BASE_URL", "https://toncenter.com/api/v3"),
		},
		LiteServer: LiteServerConfig{
			GatewayURL: getEnv("LITESERVER_GATEWAY_URL", "http://localhost:8081"),
		},
		CMC: CMCConfig{
			ProBaseURL:   getEnv("CMC_PRO_BASE_URL", "https://pro-api.coinmarketcap.com"),
			ChartBaseURL: getEnv("CMC_CHART_BASE_URL", "https://api.coinmarketcap.com"),
			APIKey:       getEnv("CMC_API_KEY", ""),
		},
		OpenExchange: OpenExchangeConfig{
			BaseURL: getEnv("OPEN_EXCHANGE_RATE_BASE_URL", "https://openexchangerates.org"),
			AppID:   getEnv("OPEN_EXCHANGE_RATE_API_ID", ""),
		},
		Converter: ConverterConfig{
			BaseURL: getEnv("CONVERTER_BASE_URL", "https://api.coinconvert.net"),
		},
		DefiLlama: DefiLlamaConfig{
			BaseURL:  getEnv("DEFILLAMA_BASE_URL", "https://api.llama.fi"),
			Protocol: getEnv("STAKING_PROTOCOL", "bemo"),
		},
		Staking: StakingConfig{
			SttonMaster:    getEnv("STTON_ADDRESS", "0:cd872fa7c5816052acdf5332260443faec9aacc8c21cca4d92e7f47034d11892"),
			PoolAddress:    getEnv("STAKING_POOL_ADDRESS", "0:cd872fa7c5816052acdf5332260443faec9aacc8c21cca4d92e7f47034d11892"),
			LendingAddress: getEnv("LENDING_ADDRESS", "0:4e9fed5bfb7d79a2078297995f3d85b4badeac8c0d9eab82d3751bf9bc92754a"),
		},
		Books: BooksConfig{
			TokenListETH:   getEnv("TOKEN_LIST_ETH_CSV", "static/token_list_eth.csv"),
			AddressBookETH: getEnv("ADDRESS_BOOK_ETH_CSV", "static/address_book_eth.csv"),
			AddressBookTON: getEnv("ADDRESS_BOOK_TON_CSV", "static/address_book_ton.csv"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
