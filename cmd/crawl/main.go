package main

import (
    "bufio"
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "log/slog"
    "os"
    "sort"
    "strings"
    "sync"
    "time"

    "golang.org/x/sync/errgroup"

    "onvista"
    "onvista/internal/config"
    "onvista/metastore"
)

// dumpEntry is one crawled instrument with its series.
type dumpEntry struct {
    Instrument onvista.Instrument `json:"instrument"`
    Quotes     []onvista.Quote    `json:"quotes,omitempty"`
}

func main() {
    var (
        isinsFile   string
        outPath     string
        configPath  string
        resolution  string
        concurrency int
        timeoutSec  int
        withQuotes  bool
    )
    flag.StringVar(&isinsFile, "isins-file", "isins.txt", "file with one ISIN per line, # comments allowed")
    flag.StringVar(&outPath, "out", "instruments.json", "output JSON file path, - for stdout")
    flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.yaml (optional)")
    flag.StringVar(&resolution, "resolution", "month", "series resolution: day, week, month, year, max")
    flag.IntVar(&concurrency, "concurrency", 4, "number of parallel crawls")
    flag.IntVar(&timeoutSec, "timeout", 30, "per-instrument timeout in seconds")
    flag.BoolVar(&withQuotes, "quotes", true, "also fetch the quote series per instrument")
    flag.Parse()

    slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

    cfg, err := config.Load(configPath)
    if err != nil {
        slog.Error("config", "err", err)
        os.Exit(1)
    }

    isins, err := readISINs(isinsFile)
    if err != nil {
        slog.Error("reading isins", "file", isinsFile, "err", err)
        os.Exit(1)
    }
    if len(isins) == 0 {
        slog.Error("no isins found", "file", isinsFile)
        os.Exit(1)
    }
    slog.Info("crawl starting", "isins", len(isins), "concurrency", concurrency)

    store, err := newStore(cfg.Store)
    if err != nil {
        slog.Error("store", "err", err)
        os.Exit(1)
    }
    client, err := newClient(cfg, store)
    if err != nil {
        slog.Error("client", "err", err)
        os.Exit(1)
    }
    if store != nil { defer store.Close() }

    var (
        mu      sync.Mutex
        entries []dumpEntry
        failed  int
    )
    g, ctx := errgroup.WithContext(context.Background())
    g.SetLimit(concurrency)
    for _, isin := range isins {
        g.Go(func() error {
            ictx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
            defer cancel()

            ins, err := client.Resolve(ictx, isin)
            if err != nil {
                slog.Error("resolve failed", "isin", isin, "err", err)
                mu.Lock()
                failed++
                mu.Unlock()
                return nil
            }
            entry := dumpEntry{Instrument: *ins}
            if withQuotes {
                qs, err := client.Quotes(ictx, *ins, onvista.QuoteRequest{Resolution: onvista.Resolution(resolution)})
                if err != nil {
                    slog.Error("quotes failed", "isin", isin, "err", err)
                } else {
                    entry.Quotes = qs
                }
            }
            mu.Lock()
            entries = append(entries, entry)
            mu.Unlock()
            slog.Info("crawled", "isin", isin, "name", ins.Name, "bars", len(entry.Quotes))
            return nil
        })
    }
    _ = g.Wait()

    sort.Slice(entries, func(i, j int) bool {
        return entries[i].Instrument.ISIN < entries[j].Instrument.ISIN
    })

    if err := writeDump(outPath, entries); err != nil {
        slog.Error("writing dump", "err", err)
        os.Exit(1)
    }
    slog.Info("crawl done", "ok", len(entries), "failed", failed, "out", outPath, "live_calls", client.LiveCalls())
}

func readISINs(path string) ([]string, error) {
    f, err := os.Open(path)
    if err != nil { return nil, err }
    defer f.Close()

    seen := make(map[string]bool)
    var isins []string
    sc := bufio.NewScanner(f)
    for sc.Scan() {
        line := strings.TrimSpace(sc.Text())
        if line == "" || strings.HasPrefix(line, "#") { continue }
        isin := strings.ToUpper(line)
        if seen[isin] { continue }
        seen[isin] = true
        isins = append(isins, isin)
    }
    return isins, sc.Err()
}

func writeDump(path string, entries []dumpEntry) error {
    b, err := json.MarshalIndent(entries, "", "  ")
    if err != nil { return err }
    if path == "-" {
        _, err = os.Stdout.Write(append(b, '\n'))
        return err
    }
    return os.WriteFile(path, b, 0o644)
}

func newClient(cfg config.Config, store metastore.Store) (*onvista.Client, error) {
    opts := []onvista.ClientOption{
        onvista.WithUserAgent(cfg.Client.UserAgent),
        onvista.WithTimeout(time.Duration(cfg.Client.TimeoutSec) * time.Second),
        onvista.WithDefaultExchange(cfg.Client.DefaultExchange),
        onvista.WithLogger(slog.Default()),
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
