package main

import (
    "context"
    "encoding/json"
    "log/slog"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "onvista"
)

type fakeAPI struct {
    ins       *onvista.Instrument
    quotes    []onvista.Quote
    stored    []onvista.Instrument
    err       error
    refreshed int
    forgot    []string
}

func (f *fakeAPI) Search(_ context.Context, key string) ([]onvista.Instrument, error) {
    if f.err != nil { return nil, f.err }
    if f.ins == nil { return []onvista.Instrument{}, nil }
    return []onvista.Instrument{*f.ins}, nil
}

func (f *fakeAPI) Resolve(_ context.Context, isin string) (*onvista.Instrument, error) {
    if f.err != nil { return nil, f.err }
    if f.ins == nil || f.ins.ISIN != isin { return nil, onvista.ErrNotFound }
    return f.ins, nil
}

func (f *fakeAPI) Refresh(ctx context.Context, isin string) (*onvista.Instrument, error) {
    f.refreshed++
    return f.Resolve(ctx, isin)
}

func (f *fakeAPI) Quotes(_ context.Context, _ onvista.Instrument, _ onvista.QuoteRequest) ([]onvista.Quote, error) {
    if f.err != nil { return nil, f.err }
    return f.quotes, nil
}

func (f *fakeAPI) Stored(_ context.Context) ([]onvista.Instrument, error) {
    if f.err != nil { return nil, f.err }
    return f.stored, nil
}

func (f *fakeAPI) Forget(_ context.Context, isin string) error {
    f.forgot = append(f.forgot, isin)
    return f.err
}

func vwInstrument() *onvista.Instrument {
    return &onvista.Instrument{
        ISIN: "DE0007664039", WKN: "766403", Symbol: "VOW3",
        Name: "Volkswagen Vz", Type: "STOCK", UID: "87616", Currency: "EUR",
        Notations: []onvista.Notation{{ID: "310937274", Market: "Xetra", Exchange: "GER", Currency: "EUR"}},
    }
}

func serveTest(t *testing.T, api quoteAPI, method, target string) *httptest.ResponseRecorder {
    t.Helper()
    s := &server{api: api, log: slog.New(slog.DiscardHandler), timeout: 5 * time.Second}
    rr := httptest.NewRecorder()
    s.router().ServeHTTP(rr, httptest.NewRequest(method, target, nil))
    return rr
}

func TestSearchHandler(t *testing.T) {
    rr := serveTest(t, &fakeAPI{ins: vwInstrument()}, http.MethodGet, "/api/v1/search?q=volkswagen")
    if rr.Code != 200 { t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String()) }
    var resp searchResponse
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if len(resp.Instruments) != 1 || resp.Instruments[0].ISIN != "DE0007664039" {
        t.Fatalf("unexpected: %+v", resp.Instruments)
    }
}

func TestSearchHandler_MissingQuery(t *testing.T) {
    rr := serveTest(t, &fakeAPI{}, http.MethodGet, "/api/v1/search")
    if rr.Code != http.StatusBadRequest { t.Fatalf("status=%d, want 400", rr.Code) }
}

func TestSearchHandler_NoHitsIsEmptyList(t *testing.T) {
    rr := serveTest(t, &fakeAPI{}, http.MethodGet, "/api/v1/search?q=doesnotexist")
    if rr.Code != 200 { t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String()) }
    var resp searchResponse
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if resp.Instruments == nil || len(resp.Instruments) != 0 {
        t.Fatalf("want empty list, got %+v", resp.Instruments)
    }
}

func TestInstrumentHandler(t *testing.T) {
    rr := serveTest(t, &fakeAPI{ins: vwInstrument()}, http.MethodGet, "/api/v1/instruments/DE0007664039")
    if rr.Code != 200 { t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String()) }
    var ins onvista.Instrument
    if err := json.Unmarshal(rr.Body.Bytes(), &ins); err != nil { t.Fatalf("decode: %v", err) }
    if ins.Symbol != "VOW3" || ins.UID != "87616" { t.Fatalf("unexpected: %+v", ins) }
    if rr.Header().Get("X-Request-ID") == "" { t.Fatal("missing X-Request-ID header") }
}

func TestInstrumentHandler_BadISIN(t *testing.T) {
    rr := serveTest(t, &fakeAPI{ins: vwInstrument()}, http.MethodGet, "/api/v1/instruments/VOW3")
    if rr.Code != http.StatusBadRequest { t.Fatalf("status=%d, want 400", rr.Code) }
}

func TestInstrumentHandler_NotFound(t *testing.T) {
    rr := serveTest(t, &fakeAPI{}, http.MethodGet, "/api/v1/instruments/US0378331005")
    if rr.Code != http.StatusNotFound { t.Fatalf("status=%d, want 404", rr.Code) }
}

func TestQuotesHandler(t *testing.T) {
    base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
    api := &fakeAPI{ins: vwInstrument(), quotes: []onvista.Quote{
        {Timestamp: base, Open: 110, High: 115, Low: 108, Close: 112, Volume: 1000, Resolution: onvista.ResolutionMonth},
        {Timestamp: base.AddDate(0, 0, 1), Open: 112, High: 118, Low: 111, Close: 117, Volume: 1200, Resolution: onvista.ResolutionMonth},
    }}
    rr := serveTest(t, api, http.MethodGet, "/api/v1/instruments/DE0007664039/quotes?resolution=month&exchange=GER")
    if rr.Code != 200 { t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String()) }
    var resp quotesResponse
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if len(resp.Quotes) != 2 || resp.Instrument.ISIN != "DE0007664039" {
        t.Fatalf("unexpected: %+v", resp)
    }
}

func TestQuotesHandler_UnknownResolution(t *testing.T) {
    rr := serveTest(t, &fakeAPI{ins: vwInstrument()}, http.MethodGet, "/api/v1/instruments/DE0007664039/quotes?resolution=hourly")
    if rr.Code != http.StatusBadRequest { t.Fatalf("status=%d, want 400", rr.Code) }
}

func TestQuotesHandler_BadDate(t *testing.T) {
    rr := serveTest(t, &fakeAPI{ins: vwInstrument()}, http.MethodGet, "/api/v1/instruments/DE0007664039/quotes?start=01.05.2024")
    if rr.Code != http.StatusBadRequest { t.Fatalf("status=%d, want 400", rr.Code) }
}

func TestQuotesHandler_UnknownExchange(t *testing.T) {
    rr := serveTest(t, &fakeAPI{ins: vwInstrument()}, http.MethodGet, "/api/v1/instruments/DE0007664039/quotes?exchange=NYS")
    if rr.Code != http.StatusBadRequest { t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String()) }
}

func TestStoredHandler(t *testing.T) {
    api := &fakeAPI{stored: []onvista.Instrument{*vwInstrument()}}
    rr := serveTest(t, api, http.MethodGet, "/api/v1/instruments")
    if rr.Code != 200 { t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String()) }
    var resp searchResponse
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil { t.Fatalf("decode: %v", err) }
    if len(resp.Instruments) != 1 { t.Fatalf("unexpected: %+v", resp.Instruments) }
}

func TestForgetHandler(t *testing.T) {
    api := &fakeAPI{ins: vwInstrument()}
    rr := serveTest(t, api, http.MethodDelete, "/api/v1/instruments/DE0007664039")
    if rr.Code != http.StatusNoContent { t.Fatalf("status=%d, want 204", rr.Code) }
    if len(api.forgot) != 1 || api.forgot[0] != "DE0007664039" {
        t.Fatalf("forgot=%v", api.forgot)
    }
}

func TestRefreshHandler(t *testing.T) {
    api := &fakeAPI{ins: vwInstrument()}
    rr := serveTest(t, api, http.MethodPost, "/api/v1/instruments/DE0007664039/refresh")
    if rr.Code != 200 { t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String()) }
    if api.refreshed != 1 { t.Fatalf("refreshed=%d, want 1", api.refreshed) }
}

func TestHealthz(t *testing.T) {
    rr := serveTest(t, &fakeAPI{}, http.MethodGet, "/healthz")
    if rr.Code != 200 { t.Fatalf("status=%d", rr.Code) }
}

func TestMetricsEndpoint(t *testing.T) {
    rr := serveTest(t, &fakeAPI{}, http.MethodGet, "/metrics")
    if rr.Code != 200 { t.Fatalf("status=%d", rr.Code) }
}
