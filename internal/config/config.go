package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	PGDSN          string
	RPCURL         string
	PositionToken  string
	ReferenceToken string
	StableToken    string
	BurnAddress    string
	PoolAddresses  []string
	TokenDecimals  int32

	LiquidationEpsilon string
	DustThreshold      string

	PriceWorkers int
	CallTimeout  time.Duration

	RedisAddr string
	CacheTTL  time.Duration

	LogLevel string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POSENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("burn-address", "0x013b34DBA0d6c9810F530534507144a8646E3273")
	v.SetDefault("token-decimals", 18)
	v.SetDefault("liquidation-epsilon", "0.01")
	v.SetDefault("dust-threshold", "0.1")
	v.SetDefault("price-workers", 4)
	v.SetDefault("call-timeout", 10*time.Second)
	v.SetDefault("cache-ttl", 30*time.Second)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		PGDSN:              v.GetString("pg-dsn"),
		RPCURL:             v.GetString("rpc"),
		PositionToken:      v.GetString("position-token"),
		ReferenceToken:     v.GetString("reference-token"),
		StableToken:        v.GetString("stable-token"),
		BurnAddress:        v.GetString("burn-address"),
		PoolAddresses:      getStringSlice(v, "pool-address"),
		TokenDecimals:      v.GetInt32("token-decimals"),
		LiquidationEpsilon: v.GetString("liquidation-epsilon"),
		DustThreshold:      v.GetString("dust-threshold"),
		PriceWorkers:       v.GetInt("price-workers"),
		CallTimeout:        v.GetDuration("call-timeout"),
		RedisAddr:          v.GetString("redis-addr"),
		CacheTTL:           v.GetDuration("cache-ttl"),
		LogLevel:           v.GetString("log-level"),
	}

	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
