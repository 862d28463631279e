package main

import (
    "context"
    "errors"
    "log/slog"
    "net/http"
    "strings"
    "time"

    "github.com/go-chi/chi/v5"
    chimw "github.com/go-chi/chi/v5/middleware"
    "github.com/go-chi/render"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "onvista"
)

// quoteAPI is the slice of the onvista client the handlers need.
type quoteAPI interface {
    Search(ctx context.Context, key string) ([]onvista.Instrument, error)
    Resolve(ctx context.Context, isin string) (*onvista.Instrument, error)
    Refresh(ctx context.Context, isin string) (*onvista.Instrument, error)
    Quotes(ctx context.Context, ins onvista.Instrument, req onvista.QuoteRequest) ([]onvista.Quote, error)
    Stored(ctx context.Context) ([]onvista.Instrument, error)
    Forget(ctx context.Context, isin string) error
}

type server struct {
    api     quoteAPI
    log     *slog.Logger
    timeout time.Duration
}

type searchResponse struct {
    Instruments []onvista.Instrument `json:"instruments"`
}

type quotesResponse struct {
    Instrument onvista.Instrument `json:"instrument"`
    Quotes     []onvista.Quote    `json:"quotes"`
}

type errorResponse struct {
    Error string `json:"error"`
}

func (s *server) router() *chi.Mux {
    r := chi.NewRouter()
    r.Use(requestID)
    r.Use(chimw.RealIP)
    r.Use(structuredLogger(s.log))
    r.Use(recoverer(s.log))
    r.Use(metrics)

    r.Get("/healthz", s.handleHealth)
    r.Handle("/metrics", promhttp.Handler())

    r.Route("/api/v1", func(r chi.Router) {
        r.Use(render.SetContentType(render.ContentTypeJSON))
        r.Use(chimw.Timeout(s.timeout))
        r.Get("/search", s.handleSearch)
        r.Route("/instruments", func(r chi.Router) {
            r.Get("/", s.handleStored)
            r.Route("/{isin}", func(r chi.Router) {
                r.Get("/", s.handleInstrument)
                r.Delete("/", s.handleForget)
                r.Post("/refresh", s.handleRefresh)
                r.Get("/quotes", s.handleQuotes)
            })
        })
    })
    return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
    render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
    key := strings.TrimSpace(r.URL.Query().Get("q"))
    if key == "" {
        s.badRequest(w, r, "missing q query parameter")
        return
    }
    instruments, err := s.api.Search(r.Context(), key)
    if err != nil {
        s.renderError(w, r, err)
        return
    }
    render.JSON(w, r, searchResponse{Instruments: instruments})
}

func (s *server) handleInstrument(w http.ResponseWriter, r *http.Request) {
    isin, ok := s.isinParam(w, r)
    if !ok {
        return
    }
    ins, err := s.api.Resolve(r.Context(), isin)
    if err != nil {
        s.renderError(w, r, err)
        return
    }
    render.JSON(w, r, ins)
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
    isin, ok := s.isinParam(w, r)
    if !ok {
        return
    }
    ins, err := s.api.Refresh(r.Context(), isin)
    if err != nil {
        s.renderError(w, r, err)
        return
    }
    render.JSON(w, r, ins)
}

func (s *server) handleQuotes(w http.ResponseWriter, r *http.Request) {
    isin, ok := s.isinParam(w, r)
    if !ok {
        return
    }

    req := onvista.QuoteRequest{}
    if res := r.URL.Query().Get("resolution"); res != "" {
        switch onvista.Resolution(res) {
        case onvista.ResolutionDay, onvista.ResolutionWeek, onvista.ResolutionMonth,
            onvista.ResolutionYear, onvista.ResolutionMax:
            req.Resolution = onvista.Resolution(res)
        default:
            s.badRequest(w, r, "unknown resolution "+res)
            return
        }
    }
    if v := r.URL.Query().Get("start"); v != "" {
        t, err := time.Parse("2006-01-02", v)
        if err != nil {
            s.badRequest(w, r, "bad start date, want YYYY-MM-DD")
            return
        }
        req.Start = t
    }
    if v := r.URL.Query().Get("end"); v != "" {
        t, err := time.Parse("2006-01-02", v)
        if err != nil {
            s.badRequest(w, r, "bad end date, want YYYY-MM-DD")
            return
        }
        req.End = t
    }

    ins, err := s.api.Resolve(r.Context(), isin)
    if err != nil {
        s.renderError(w, r, err)
        return
    }
    if v := r.URL.Query().Get("exchange"); v != "" {
        n, ok := ins.NotationByExchange(strings.ToUpper(v))
        if !ok {
            s.badRequest(w, r, isin+" is not quoted on "+strings.ToUpper(v))
            return
        }
        req.Notation = &n
    }

    quotes, err := s.api.Quotes(r.Context(), *ins, req)
    if err != nil {
        s.renderError(w, r, err)
        return
    }
    render.JSON(w, r, quotesResponse{Instrument: *ins, Quotes: quotes})
}

func (s *server) handleStored(w http.ResponseWriter, r *http.Request) {
    instruments, err := s.api.Stored(r.Context())
    if err != nil {
        s.renderError(w, r, err)
        return
    }
    if instruments == nil {
        instruments = []onvista.Instrument{}
    }
    render.JSON(w, r, searchResponse{Instruments: instruments})
}

func (s *server) handleForget(w http.ResponseWriter, r *http.Request) {
    isin, ok := s.isinParam(w, r)
    if !ok {
        return
    }
    if err := s.api.Forget(r.Context(), isin); err != nil {
        s.renderError(w, r, err)
        return
    }
    render.NoContent(w, r)
}

// isinParam extracts and validates the {isin} route parameter.
func (s *server) isinParam(w http.ResponseWriter, r *http.Request) (string, bool) {
    isin := strings.ToUpper(chi.URLParam(r, "isin"))
    if !onvista.IsISIN(isin) {
        s.badRequest(w, r, isin+" is not an ISIN")
        return "", false
    }
    return isin, true
}

func (s *server) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
    render.Status(r, http.StatusBadRequest)
    render.JSON(w, r, errorResponse{Error: msg})
}

// renderError maps client errors onto HTTP statuses: unknown instruments are
// 404, upstream failures 502, timeouts 504, the rest 500.
func (s *server) renderError(w http.ResponseWriter, r *http.Request, err error) {
    var statusErr *onvista.StatusError
    var parseErr *onvista.ParseError
    switch {
    case errors.Is(err, onvista.ErrNotFound):
        render.Status(r, http.StatusNotFound)
        render.JSON(w, r, errorResponse{Error: "instrument not found"})

    case errors.As(err, &statusErr), errors.As(err, &parseErr):
        s.log.ErrorContext(r.Context(), "upstream error", "request_id", reqID(r.Context()), "err", err)
        render.Status(r, http.StatusBadGateway)
        render.JSON(w, r, errorResponse{Error: "upstream error: " + err.Error()})

    case errors.Is(err, context.DeadlineExceeded):
        render.Status(r, http.StatusGatewayTimeout)
        render.JSON(w, r, errorResponse{Error: "upstream timeout"})

    default:
        s.log.ErrorContext(r.Context(), "request failed", "request_id", reqID(r.Context()), "err", err)
        render.Status(r, http.StatusInternalServerError)
        render.JSON(w, r, errorResponse{Error: err.Error()})
    }
}
