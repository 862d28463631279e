// Package config carries the settings of the onvista commands. Values come
// from defaults, an optional config file and ONVISTA_* environment
// variables, in that order.
package config

import (
    "errors"
    "fmt"
    "os"
    "strings"

    "github.com/spf13/viper"
)

type Server struct {
    Port              string `mapstructure:"port"`
    RequestTimeoutSec int    `mapstructure:"request_timeout_sec"`
}

type Client struct {
    UserAgent         string  `mapstructure:"user_agent"`
    APIBaseURL        string  `mapstructure:"api_base_url"`
    WebsiteURL        string  `mapstructure:"website_url"`
    ChartURL          string  `mapstructure:"chart_url"`
    Legacy            bool    `mapstructure:"legacy"`
    DefaultExchange   string  `mapstructure:"default_exchange"`
    TimeoutSec        int     `mapstructure:"timeout_sec"`
    CacheDir          string  `mapstructure:"cache_dir"`
    CacheValidityDays int     `mapstructure:"cache_validity_days"`
    ThrottleRPS       float64 `mapstructure:"throttle_rps"`
    ThrottleBurst     int     `mapstructure:"throttle_burst"`
}

type Store struct {
    // Backend is file, redis or none.
    Backend       string `mapstructure:"backend"`
    Dir           string `mapstructure:"dir"`
    RedisAddr     string `mapstructure:"redis_addr"`
    RedisPassword string `mapstructure:"redis_password"`
    RedisDB       int    `mapstructure:"redis_db"`
    RedisPrefix   string `mapstructure:"redis_prefix"`
}

type Config struct {
    Server Server `mapstructure:"server"`
    Client Client `mapstructure:"client"`
    Store  Store  `mapstructure:"store"`
}

func Default() Config {
    return Config{
        Server: Server{Port: "8080", RequestTimeoutSec: 15},
        Client: Client{
            UserAgent:         "onvista-go/1.0",
            DefaultExchange:   "GER",
            TimeoutSec:        10,
            CacheValidityDays: 1,
        },
        Store: Store{
            Backend: "file",
            Dir:     ".onvista",
        },
    }
}

// Load reads config from path. If path is empty, config.yaml is used when
// present. A missing file is fine, defaults and environment still apply.
func Load(path string) (Config, error) {
    cfg := Default()

    v := viper.New()
    bindDefaults(v, cfg)
    v.SetEnvPrefix("ONVISTA")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
    v.AutomaticEnv()

    if path == "" {
        if _, err := os.Stat("config.yaml"); err == nil { path = "config.yaml" }
    }
    if path != "" {
        v.SetConfigFile(path)
        if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
            return cfg, fmt.Errorf("read config: %w", err)
        }
    }

    if err := v.Unmarshal(&cfg); err != nil {
        return cfg, fmt.Errorf("parse config: %w", err)
    }
    return cfg, nil
}

// bindDefaults registers every key so AutomaticEnv picks it up.
func bindDefaults(v *viper.Viper, cfg Config) {
    v.SetDefault("server.port", cfg.Server.Port)
    v.SetDefault("server.request_timeout_sec", cfg.Server.RequestTimeoutSec)

    v.SetDefault("client.user_agent", cfg.Client.UserAgent)
    v.SetDefault("client.api_base_url", cfg.Client.APIBaseURL)
    v.SetDefault("client.website_url", cfg.Client.WebsiteURL)
    v.SetDefault("client.chart_url", cfg.Client.ChartURL)
    v.SetDefault("client.legacy", cfg.Client.Legacy)
    v.SetDefault("client.default_exchange", cfg.Client.DefaultExchange)
    v.SetDefault("client.timeout_sec", cfg.Client.TimeoutSec)
    v.SetDefault("client.cache_dir", cfg.Client.CacheDir)
    v.SetDefault("client.cache_validity_days", cfg.Client.CacheValidityDays)
    v.SetDefault("client.throttle_rps", cfg.Client.ThrottleRPS)
    v.SetDefault("client.throttle_burst", cfg.Client.ThrottleBurst)

    v.SetDefault("store.backend", cfg.Store.Backend)
    v.SetDefault("store.dir", cfg.Store.Dir)
    v.SetDefault("store.redis_addr", cfg.Store.RedisAddr)
    v.SetDefault("store.redis_password", cfg.Store.RedisPassword)
    v.SetDefault("store.redis_db", cfg.Store.RedisDB)
    v.SetDefault("store.redis_prefix", cfg.Store.RedisPrefix)
}
