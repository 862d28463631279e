package main

import (
    "context"
    "encoding/csv"
    "encoding/json"
    "flag"
    "fmt"
    "log"
    "os"
    "strconv"
    "strings"
    "time"

    "onvista"
    "onvista/internal/config"
    "onvista/metastore"
)

func main() {
    var (
        key        string
        resolution string
        startStr   string
        endStr     string
        exchange   string
        format     string
        configPath string
        cacheDir   string
        legacy     bool
        listOnly   bool
        timeout    int
    )
    flag.StringVar(&key, "key", getenv("ONVISTA_KEY", ""), "search term: ISIN, WKN, symbol or name")
    flag.StringVar(&resolution, "resolution", getenv("ONVISTA_RESOLUTION", "month"), "series resolution: day, week, month, year, max")
    flag.StringVar(&startStr, "start", "", "series start date (YYYY-MM-DD)")
    flag.StringVar(&endStr, "end", "", "series end date (YYYY-MM-DD)")
    flag.StringVar(&exchange, "exchange", "", "exchange code to quote on (e.g. GER, FSE)")
    flag.StringVar(&format, "format", "json", "output format: json or csv")
    flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.yaml (optional)")
    flag.StringVar(&cacheDir, "cache-dir", "", "directory for the HTTP response cache")
    flag.BoolVar(&legacy, "legacy", getenvBool("ONVISTA_LEGACY", false), "scrape the website instead of the JSON API")
    flag.BoolVar(&listOnly, "list", false, "print matching instruments and exit")
    flag.IntVar(&timeout, "timeout", 30, "overall timeout in seconds")
    flag.Parse()

    if key == "" && flag.NArg() > 0 { key = flag.Arg(0) }
    if key == "" { log.Fatal("no search key; pass -key or an argument") }

    cfg, err := config.Load(configPath)
    if err != nil { log.Fatalf("config: %v", err) }
    if legacy { cfg.Client.Legacy = true }
    if cacheDir != "" { cfg.Client.CacheDir = cacheDir }
    if exchange != "" { cfg.Client.DefaultExchange = strings.ToUpper(exchange) }

    store, err := newStore(cfg.Store)
    if err != nil { log.Fatalf("store: %v", err) }

    client, err := newClient(cfg, store)
    if err != nil { log.Fatalf("client: %v", err) }
    if store != nil { defer store.Close() }

    ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
    defer cancel()

    hits, err := client.Search(ctx, key)
    if err != nil { log.Fatalf("search: %v", err) }
    if listOnly {
        printJSON(hits)
        return
    }
    if len(hits) == 0 { log.Fatalf("no instruments match %q", key) }
    if len(hits) > 1 { log.Printf("%d instruments match, using %q (%s)", len(hits), hits[0].Name, hits[0].ISIN) }

    ins := hits[0]
    if ins.ISIN != "" {
        full, err := client.Resolve(ctx, ins.ISIN)
        if err != nil { log.Fatalf("resolve %s: %v", ins.ISIN, err) }
        ins = *full
    }

    req := onvista.QuoteRequest{Resolution: onvista.Resolution(resolution)}
    if startStr != "" { req.Start = mustDate(startStr) }
    if endStr != "" { req.End = mustDate(endStr) }
    if exchange != "" {
        n, ok := ins.NotationByExchange(strings.ToUpper(exchange))
        if !ok { log.Fatalf("%s is not quoted on %s", ins.ISIN, strings.ToUpper(exchange)) }
        req.Notation = &n
    }

    quotes, err := client.Quotes(ctx, ins, req)
    if err != nil { log.Fatalf("quotes: %v", err) }
    log.Printf("%s: %d bars", ins.ISIN, len(quotes))

    switch format {
    case "json":
        printJSON(struct {
            Instrument onvista.Instrument `json:"instrument"`
            Quotes     []onvista.Quote    `json:"quotes"`
        }{ins, quotes})
    case "csv":
        w := csv.NewWriter(os.Stdout)
        _ = w.Write([]string{"timestamp", "open", "high", "low", "close", "volume"})
        for _, q := range quotes {
            _ = w.Write([]string{
                q.Timestamp.UTC().Format(time.RFC3339),
                formatFloat(q.Open),
                formatFloat(q.High),
                formatFloat(q.Low),
                formatFloat(q.Close),
                strconv.FormatInt(q.Volume, 10),
            })
        }
        w.Flush()
        if err := w.Error(); err != nil { log.Fatalf("csv: %v", err) }
    default:
        log.Fatalf("unknown format %q (want json or csv)", format)
    }
}

func newClient(cfg config.Config, store metastore.Store) (*onvista.Client, error) {
    opts := []onvista.ClientOption{
        onvista.WithUserAgent(cfg.Client.UserAgent),
        onvista.WithTimeout(time.Duration(cfg.Client.TimeoutSec) * time.Second),
        onvista.WithDefaultExchange(cfg.Client.DefaultExchange),
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

func mustDate(s string) time.Time {
    t, err := time.Parse("2006-01-02", s)
    if err != nil { log.Fatalf("bad date %q (want YYYY-MM-DD)", s) }
    return t
}

func printJSON(v any) {
    b, _ := json.MarshalIndent(v, "", "  ")
    fmt.Println(string(b))
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func getenv(key, def string) string { if v := os.Getenv(key); v != "" { return v }; return def }
func getenvBool(key string, def bool) bool {
    if v := os.Getenv(key); v != "" {
        switch strings.ToLower(v) {
        case "1", "true", "yes", "y": return true
        case "0", "false", "no", "n": return false
        }
    }
    return def
}
