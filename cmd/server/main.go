package main

import (
    "context"
    "errors"
    "flag"
    "fmt"
    "log/slog"
    "net/http"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "onvista"
    "onvista/internal/config"
    "onvista/metastore"
)

func main() {
    var configPath string
    flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.yaml (optional)")
    flag.Parse()

    logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
    slog.SetDefault(logger)

    cfg, err := config.Load(configPath)
    if err != nil {
        logger.Error("config", "err", err)
        os.Exit(1)
    }

    store, err := newStore(cfg.Store)
    if err != nil {
        logger.Error("store", "err", err)
        os.Exit(1)
    }
    client, err := newClient(cfg, store, logger)
    if err != nil {
        logger.Error("client", "err", err)
        os.Exit(1)
    }

    s := &server{
        api:     client,
        log:     logger,
        timeout: time.Duration(cfg.Server.RequestTimeoutSec) * time.Second,
    }

    srv := &http.Server{
        Addr:              ":" + cfg.Server.Port,
        Handler:           s.router(),
        ReadHeaderTimeout: 5 * time.Second,
        ReadTimeout:       15 * time.Second,
        WriteTimeout:      30 * time.Second,
        IdleTimeout:       60 * time.Second,
    }

    go func() {
        logger.Info("server listening", "addr", srv.Addr, "legacy", cfg.Client.Legacy, "store", cfg.Store.Backend)
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            logger.Error("server", "err", err)
            os.Exit(1)
        }
    }()

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()
    <-ctx.Done()

    logger.Info("shutting down")
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    _ = srv.Shutdown(shutdownCtx)
    if store != nil { _ = store.Close() }
}

func newClient(cfg config.Config, store metastore.Store, logger *slog.Logger) (*onvista.Client, error) {
    opts := []onvista.ClientOption{
        onvista.WithUserAgent(cfg.Client.UserAgent),
        onvista.WithTimeout(time.Duration(cfg.Client.TimeoutSec) * time.Second),
        onvista.WithDefaultExchange(cfg.Client.DefaultExchange),
        onvista.WithLogger(logger),
    }
    if cfg.Client.APIBaseURL != "" { opts = append(opts, onvista.WithAPIURL(cfg.Client.APIBaseURL)) }
    if cfg.Client.WebsiteURL != "" { opts = append(opts, onvista.WithWebsiteURL(cfg.Client.WebsiteURL)) }
    if cfg.Client.ChartURL != "" { opts = append(opts, onvista.WithChartURL(cfg.Client.ChartURL)) }
    if cfg.Client.Legacy { opts = append(opts, onvista.WithLegacyScraper()) }
    if cfg.Client.CacheDir != "" { opts = append(opts, onvista.WithResponseCache(cfg.Client.CacheDir, cfg.Client.CacheValidityDays)) }
    if cfg.Client.ThrottleRPS > 0 { opts = append(opts, onvista.WithThrottle(cfg.Client.ThrottleRPS, cfg.Client.ThrottleBurst)) }
    if store != nil { opts = append(opts, onvista.WithMetaStore(store)) }
    return onvista.New(opts...)
}

func newStore(cfg config.Store) (metastore.Store, error) {
    switch strings.ToLower(cfg.Backend) {
    case "", "none":
        return nil, nil
    case "file":
        return metastore.NewFileStore(cfg.Dir)
    case "redis":
        ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer cancel()
        return metastore.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
    default:
        return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
    }
}

func getenv(key, def string) string { if v := os.Getenv(key); v != "" { return v }; return def }
