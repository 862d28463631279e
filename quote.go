package onvista

import (
    "fmt"
    "sort"
    "time"
)

// Resolution selects the granularity and span of a quote series.
type Resolution string

const (
    ResolutionDay   Resolution = "day"
    ResolutionWeek  Resolution = "week"
    ResolutionMonth Resolution = "month"
    ResolutionYear  Resolution = "year"
    ResolutionMax   Resolution = "max"
)

// rangeCode maps a resolution onto the chart range codes the API expects
// (T=Tag, M=Monat, J=Jahr).
func (r Resolution) rangeCode() (string, error) {
    switch r {
    case ResolutionDay:
        return "T1", nil
    case ResolutionWeek:
        return "T5", nil
    case ResolutionMonth:
        return "M1", nil
    case ResolutionYear:
        return "J1", nil
    case ResolutionMax:
        return "MAX", nil
    }
    return "", fmt.Errorf("onvista: unknown resolution %q", string(r))
}

// granularity maps a resolution onto the word the legacy chartdata endpoint
// takes. The old endpoint has no intraday tab, so day is not available.
func (r Resolution) granularity() (string, error) {
    switch r {
    case ResolutionWeek, ResolutionMonth, ResolutionYear:
        return string(r), nil
    case ResolutionMax:
        return "all", nil
    case ResolutionDay:
        return "", fmt.Errorf("onvista: resolution %q is not available from the website charts", string(r))
    }
    return "", fmt.Errorf("onvista: unknown resolution %q", string(r))
}

// Quote is one OHLC bar of a series.
type Quote struct {
    Timestamp  time.Time  `json:"timestamp"`
    Open       float64    `json:"open"`
    High       float64    `json:"high"`
    Low        float64    `json:"low"`
    Close      float64    `json:"close"`
    Volume     int64      `json:"volume"`
    Resolution Resolution `json:"resolution"`
}

// QuoteRequest narrows a quote series. Start and End are optional; the
// website charts ignore them upstream, so those series are windowed after
// parsing. Notation picks the venue, defaulting to the instrument's venue
// for the configured default exchange.
type QuoteRequest struct {
    Resolution Resolution
    Start      time.Time
    End        time.Time
    Notation   *Notation
}

// sortQuotes orders a series by timestamp, oldest first.
func sortQuotes(qs []Quote) {
    sort.Slice(qs, func(i, j int) bool { return qs[i].Timestamp.Before(qs[j].Timestamp) })
}

// clipQuotes windows a sorted series to [start, end]. Zero bounds are open.
func clipQuotes(qs []Quote, start, end time.Time) []Quote {
    if start.IsZero() && end.IsZero() {
        return qs
    }
    out := qs[:0:0]
    for _, q := range qs {
        if !start.IsZero() && q.Timestamp.Before(start) {
            continue
        }
        if !end.IsZero() && q.Timestamp.After(end) {
            continue
        }
        out = append(out, q)
    }
    return out
}
