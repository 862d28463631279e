package onvista

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// restSource speaks to the unofficial JSON API under api.onvista.de. The API
// is not documented; shapes below follow what the endpoints actually return.
type restSource struct {
	c *Client
}

// restInstrument is the instrument object as the API delivers it, both in
// search results and inside snapshots.
type restInstrument struct {
	EntityValue string `json:"entityValue"`
	EntityType  string `json:"entityType"`
	Name        string `json:"name"`
	ISIN        string `json:"isin"`
	WKN         string `json:"wkn"`
	Symbol      string `json:"symbol"`
	DisplayType string `json:"displayType"`
}

func (ri restInstrument) instrument() Instrument {
	return Instrument{
		ISIN:   ri.ISIN,
		WKN:    ri.WKN,
		Symbol: ri.Symbol,
		Name:   ri.Name,
		Type:   ri.EntityType,
		UID:    ri.EntityValue,
	}
}

type restSnapshot struct {
	Instrument restInstrument `json:"instrument"`
	Quote      *restQuote     `json:"quote"`
	QuoteList  struct {
		List []restListedQuote `json:"list"`
	} `json:"quoteList"`
}

type restQuote struct {
	Last           decimal.Decimal `json:"last"`
	Performance    decimal.Decimal `json:"performance"`
	PerformancePct decimal.Decimal `json:"performancePct"`
	Volume         int64           `json:"volume"`
	ISOCurrency    string          `json:"isoCurrency"`
	DatetimeLast   int64           `json:"datetimeLast"`
}

type restListedQuote struct {
	Market struct {
		Name         string      `json:"name"`
		CodeExchange string      `json:"codeExchange"`
		IDNotation   json.Number `json:"idNotation"`
	} `json:"market"`
	ISOCurrency string `json:"isoCurrency"`
}

// restChart is the columnar chart_history payload: parallel arrays, one
// index per bar.
type restChart struct {
	DatetimeLast []int64   `json:"datetimeLast"`
	First        []float64 `json:"first"`
	High         []float64 `json:"high"`
	Low          []float64 `json:"low"`
	Last         []float64 `json:"last"`
	Volume       []float64 `json:"volume"`
}

func (s *restSource) search(ctx context.Context, key string) ([]Instrument, error) {
	q := url.Values{}
	q.Set("limit", "20")
	q.Set("searchValue", key)
	u := fmt.Sprintf("%s/instruments/query?%s", s.c.apiURL, q.Encode())

	body, err := s.c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	var payload struct {
		List []restInstrument `json:"list"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ParseError{What: "search response", Err: err}
	}
	out := make([]Instrument, 0, len(payload.List))
	for _, ri := range payload.List {
		out = append(out, ri.instrument())
	}
	return out, nil
}

func (s *restSource) resolve(ctx context.Context, ins Instrument) (*Instrument, error) {
	if ins.UID == "" || ins.Type == "" {
		if ins.ISIN == "" {
			return nil, fmt.Errorf("onvista: resolving needs an ISIN or an API identity")
		}
		found, err := s.search(ctx, ins.ISIN)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, ErrNotFound
		}
		ins = found[0]
	}

	// Snapshots live under the pluralized entity type, e.g. stocks/87616.
	u := fmt.Sprintf("%s/%ss/%s/snapshot", s.c.apiURL, strings.ToLower(ins.Type), ins.UID)
	body, err := s.c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	var snap restSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, &ParseError{What: "snapshot response", Err: err}
	}

	full := snap.Instrument.instrument()
	if full.ISIN == "" {
		full.ISIN = ins.ISIN
	}
	for _, lq := range snap.QuoteList.List {
		full.Notations = append(full.Notations, Notation{
			ID:       lq.Market.IDNotation.String(),
			Market:   lq.Market.Name,
			Exchange: lq.Market.CodeExchange,
			Currency: lq.ISOCurrency,
		})
	}
	if snap.Quote != nil {
		full.Currency = snap.Quote.ISOCurrency
		full.Latest = &LatestQuote{
			Price:         snap.Quote.Last,
			Change:        snap.Quote.Performance,
			ChangePercent: snap.Quote.PerformancePct,
			Volume:        snap.Quote.Volume,
			Currency:      snap.Quote.ISOCurrency,
			Time:          time.Unix(snap.Quote.DatetimeLast, 0),
		}
	}
	full.UpdatedAt = time.Now()
	return &full, nil
}

func (s *restSource) quotes(ctx context.Context, ins Instrument, req QuoteRequest) ([]Quote, error) {
	code, err := req.Resolution.rangeCode()
	if err != nil {
		return nil, err
	}
	if ins.UID == "" || ins.Type == "" {
		return nil, fmt.Errorf("onvista: instrument is missing its API identity; search or resolve it first")
	}

	q := url.Values{}
	q.Set("range", code)
	if n := s.c.pickNotation(ins, req); n != nil && n.ID != "" {
		q.Set("idNotation", n.ID)
	}
	if !req.Start.IsZero() {
		q.Set("startDate", req.Start.Format("2006-01-02"))
	}
	if !req.End.IsZero() {
		q.Set("endDate", req.End.Format("2006-01-02"))
	}
	u := fmt.Sprintf("%s/instruments/%s/%s/chart_history?%s",
		s.c.apiURL, strings.ToUpper(ins.Type), ins.UID, q.Encode())

	body, err := s.c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	var chart restChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, &ParseError{What: "chart history", Err: err}
	}

	n := len(chart.DatetimeLast)
	if len(chart.First) != n || len(chart.High) != n || len(chart.Low) != n ||
		len(chart.Last) != n || len(chart.Volume) != n {
		return nil, &ParseError{What: "chart history", Err: fmt.Errorf("column lengths diverge")}
	}
	quotes := make([]Quote, 0, n)
	for i := 0; i < n; i++ {
		quotes = append(quotes, Quote{
			Timestamp:  time.Unix(chart.DatetimeLast[i], 0),
			Open:       chart.First[i],
			High:       chart.High[i],
			Low:        chart.Low[i],
			Close:      chart.Last[i],
			Volume:     int64(chart.Volume[i]),
			Resolution: req.Resolution,
		})
	}
	sortQuotes(quotes)
	return quotes, nil
}
