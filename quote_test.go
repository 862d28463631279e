package onvista

import (
    "testing"
    "time"
)

func TestRangeCode(t *testing.T) {
    t.Parallel()

    for _, tt := range []struct {
        in   Resolution
        want string
    }{
        {ResolutionDay, "T1"},
        {ResolutionWeek, "T5"},
        {ResolutionMonth, "M1"},
        {ResolutionYear, "J1"},
        {ResolutionMax, "MAX"},
    } {
        got, err := tt.in.rangeCode()
        if err != nil {
            t.Fatalf("rangeCode(%q): %v", tt.in, err)
        }
        if got != tt.want {
            t.Errorf("rangeCode(%q) = %q, want %q", tt.in, got, tt.want)
        }
    }

    if _, err := Resolution("hour").rangeCode(); err == nil {
        t.Error("rangeCode must reject unknown resolutions")
    }
}

func TestGranularity(t *testing.T) {
    t.Parallel()

    for _, tt := range []struct {
        in   Resolution
        want string
    }{
        {ResolutionWeek, "week"},
        {ResolutionMonth, "month"},
        {ResolutionYear, "year"},
        {ResolutionMax, "all"},
    } {
        got, err := tt.in.granularity()
        if err != nil {
            t.Fatalf("granularity(%q): %v", tt.in, err)
        }
        if got != tt.want {
            t.Errorf("granularity(%q) = %q, want %q", tt.in, got, tt.want)
        }
    }

    if _, err := ResolutionDay.granularity(); err == nil {
        t.Error("the website charts have no day tab, granularity must say so")
    }
    if _, err := Resolution("hour").granularity(); err == nil {
        t.Error("granularity must reject unknown resolutions")
    }
}

func TestSortQuotes(t *testing.T) {
    t.Parallel()

    qs := []Quote{
        {Timestamp: time.Unix(300, 0)},
        {Timestamp: time.Unix(100, 0)},
        {Timestamp: time.Unix(200, 0)},
    }
    sortQuotes(qs)
    for i := 1; i < len(qs); i++ {
        if !qs[i-1].Timestamp.Before(qs[i].Timestamp) {
            t.Fatalf("series not ascending at %d: %v >= %v", i, qs[i-1].Timestamp, qs[i].Timestamp)
        }
    }
}

func TestClipQuotes(t *testing.T) {
    t.Parallel()

    series := []Quote{
        {Timestamp: time.Unix(100, 0)},
        {Timestamp: time.Unix(200, 0)},
        {Timestamp: time.Unix(300, 0)},
    }

    for _, tt := range []struct {
        name       string
        start, end time.Time
        want       int
        first      int64
    }{
        {"open bounds keep everything", time.Time{}, time.Time{}, 3, 100},
        {"start is inclusive", time.Unix(200, 0), time.Time{}, 2, 200},
        {"end is inclusive", time.Time{}, time.Unix(200, 0), 2, 100},
        {"window inside the series", time.Unix(150, 0), time.Unix(250, 0), 1, 200},
        {"window after the series", time.Unix(400, 0), time.Time{}, 0, 0},
    } {
        t.Run(tt.name, func(t *testing.T) {
            got := clipQuotes(series, tt.start, tt.end)
            if len(got) != tt.want {
                t.Fatalf("got %d quotes, want %d", len(got), tt.want)
            }
            if tt.want > 0 && got[0].Timestamp.Unix() != tt.first {
                t.Errorf("first quote at %d, want %d", got[0].Timestamp.Unix(), tt.first)
            }
        })
    }
}
