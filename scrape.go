package onvista

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Selectors holds the XPath expressions that locate instrument details in the
// website markup. The site reshuffles its markup from time to time; injecting
// a fresh set via WithSelectors keeps that churn out of calling code.
type Selectors struct {
	// Markets matches the venue names in the exchanges layer.
	Markets string
	// NotationIDs matches the venue links; the notation id sits behind the
	// first "=" of each href.
	NotationIDs string
	Symbol      string
	Name        string
	WKN         string
	// Type matches the inline chart script; the asset type sits in its
	// configuration object.
	Type   string
	Sector string
}

// DefaultSelectors returns the expressions matching the current stock pages.
func DefaultSelectors() Selectors {
	return Selectors{
		Markets:     `//div[@id="exchangesLayer"]/ul/li/a/text()`,
		NotationIDs: `//div[@id="exchangesLayer"]/ul/li/a/@href`,
		Symbol:      `//div[@class="WERTPAPIER_DETAILS"]/dl[2]/dd[1]/text()`,
		Name:        `//a[@class="INSTRUMENT"]/@title`,
		WKN:         `//div[@class="WERTPAPIER_DETAILS"]/dl[1]/dd[1]/input/@value`,
		Type:        `//article[@class="CHART_GRAFIK CHART CHART_BREIT"]/script/text()`,
		Sector:      `//div[@class="WERTPAPIER_DETAILS"]/dl[2]/dd[2]/text()`,
	}
}

// marketsJSON maps venue display names to their exchange acronyms. Venues
// missing from the mapping fall back to the configured default exchange.
//
//go:embed markets.json
var marketsJSON []byte

var marketCodes = sync.OnceValues(func() (map[string]string, error) {
	var m map[string]string
	if err := json.Unmarshal(marketsJSON, &m); err != nil {
		return nil, err
	}
	return m, nil
})

// legacySource scrapes the public website pages the way a browser sees them.
type legacySource struct {
	c *Client
}

func (s *legacySource) search(ctx context.Context, key string) ([]Instrument, error) {
	// The website has no machine-readable search. ISINs address a page
	// directly; anything else simply has no matches.
	key = strings.ToUpper(strings.TrimSpace(key))
	if !IsISIN(key) {
		return nil, nil
	}
	ins, err := s.resolve(ctx, Instrument{ISIN: key})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []Instrument{*ins}, nil
}

func (s *legacySource) resolve(ctx context.Context, ins Instrument) (*Instrument, error) {
	if ins.ISIN == "" {
		return nil, fmt.Errorf("onvista: website pages are addressed by ISIN")
	}
	u := fmt.Sprintf("%s/aktien/%s", s.c.websiteURL, ins.ISIN)
	body, err := s.c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{What: "instrument page", Err: err}
	}

	sel := s.c.selectors
	full := Instrument{ISIN: ins.ISIN}
	if full.Name, err = queryFirst(doc, sel.Name); err != nil {
		return nil, err
	}
	if full.Symbol, err = queryFirst(doc, sel.Symbol); err != nil {
		return nil, err
	}
	if full.WKN, err = queryFirst(doc, sel.WKN); err != nil {
		return nil, err
	}
	if full.Sector, err = queryFirst(doc, sel.Sector); err != nil {
		return nil, err
	}
	script, err := queryFirst(doc, sel.Type)
	if err != nil {
		return nil, err
	}
	if full.Type, err = chartScriptType(script); err != nil {
		return nil, err
	}
	if full.Notations, err = s.notations(doc); err != nil {
		return nil, err
	}
	full.UpdatedAt = time.Now()
	return &full, nil
}

// notations pairs the venue names of the exchanges layer with the notation
// ids hidden in the venue links. Pairing is positional, so both selectors
// must match the same anchors.
func (s *legacySource) notations(doc *html.Node) ([]Notation, error) {
	sel := s.c.selectors
	marketNodes, err := htmlquery.QueryAll(doc, sel.Markets)
	if err != nil {
		return nil, &ParseError{What: "selector " + sel.Markets, Err: err}
	}
	hrefNodes, err := htmlquery.QueryAll(doc, sel.NotationIDs)
	if err != nil {
		return nil, &ParseError{What: "selector " + sel.NotationIDs, Err: err}
	}
	if len(marketNodes) != len(hrefNodes) {
		return nil, &ParseError{What: "exchanges layer", Err: fmt.Errorf("%d venue names but %d links", len(marketNodes), len(hrefNodes))}
	}

	codes, err := marketCodes()
	if err != nil {
		return nil, &ParseError{What: "markets mapping", Err: err}
	}
	out := make([]Notation, 0, len(marketNodes))
	for i, mn := range marketNodes {
		market := strings.TrimSpace(htmlquery.InnerText(mn))
		if market == "" {
			continue
		}
		href := htmlquery.InnerText(hrefNodes[i])
		parts := strings.Split(href, "=")
		if len(parts) < 2 {
			return nil, &ParseError{What: "venue link", Err: fmt.Errorf("no notation id in %q", href)}
		}
		exchange, ok := codes[market]
		if !ok {
			exchange = s.c.defaultExchange
		}
		out = append(out, Notation{ID: parts[1], Market: market, Exchange: exchange})
	}
	return out, nil
}

func (s *legacySource) quotes(ctx context.Context, ins Instrument, req QuoteRequest) ([]Quote, error) {
	word, err := req.Resolution.granularity()
	if err != nil {
		return nil, err
	}
	tab, err := req.Resolution.rangeCode()
	if err != nil {
		return nil, err
	}
	notation := s.c.pickNotation(ins, req)
	if notation == nil {
		return nil, fmt.Errorf("onvista: instrument has no notations; resolve it first")
	}
	assetType := ins.Type
	if assetType == "" {
		assetType = "Stock"
	}

	u := fmt.Sprintf("%s/minimal/?exchange=%s&id=%s&assetType=%s&quality=realtime&callback=getChart%s%s&granularity=%s&tab=%s",
		s.c.chartURL, notation.Exchange, notation.ID, assetType, notation.ID, word, word, tab)
	raw, err := s.c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	body := string(raw)
	if !strings.Contains(body, word) {
		return nil, &ParseError{What: "chart response", Err: fmt.Errorf("no %s series in response", word)}
	}
	rows, err := chartRows(body)
	if err != nil {
		return nil, err
	}

	quotes := make([]Quote, 0, len(rows))
	var epoch int64
	for _, row := range rows {
		if len(row) < 6 {
			return nil, &ParseError{What: "chart row", Err: fmt.Errorf("want 6 columns, got %d", len(row))}
		}
		// The first row carries an absolute epoch, every later row the
		// delta to its predecessor.
		epoch += int64(row[0])
		quotes = append(quotes, Quote{
			Timestamp:  time.Unix(epoch, 0),
			Open:       row[1],
			High:       row[2],
			Low:        row[3],
			Close:      row[4],
			Volume:     int64(row[5]),
			Resolution: req.Resolution,
		})
	}
	sortQuotes(quotes)
	// The endpoint takes no date bounds, so the window is applied here.
	return clipQuotes(quotes, req.Start, req.End), nil
}

// chartRows undoes the JSONP wrapping of the chartdata payload: the callback
// shell goes, the bare data key gets quoted and the trailing chart metadata
// lines are cut until the remainder parses as JSON.
func chartRows(raw string) ([][]float64, error) {
	s := strings.ReplaceAll(raw, "data", `"data"`)
	_, after, ok := strings.Cut(s, "(")
	if !ok {
		return nil, &ParseError{What: "chart payload", Err: errors.New("no callback envelope")}
	}
	s = strings.ReplaceAll(after, ")", "")
	for i := 0; i < 5; i++ {
		idx := strings.LastIndexByte(s, '\n')
		if idx < 0 {
			break
		}
		s = s[:idx]
	}
	s = strings.TrimRight(s, ",") + "}"

	var payload struct {
		Data [][]float64 `json:"data"`
	}
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return nil, &ParseError{What: "chart payload", Err: err}
	}
	return payload.Data, nil
}

func queryFirst(doc *html.Node, selector string) (string, error) {
	node, err := htmlquery.Query(doc, selector)
	if err != nil {
		return "", &ParseError{What: "selector " + selector, Err: err}
	}
	if node == nil {
		return "", &ParseError{What: "selector " + selector, Err: errors.New("no match")}
	}
	return strings.TrimSpace(htmlquery.InnerText(node)), nil
}

// chartScriptType digs the asset type out of the inline chart configuration,
// e.g. "type: 'Stock'," yields Stock.
func chartScriptType(script string) (string, error) {
	_, after, ok := strings.Cut(script, "type: ")
	if !ok {
		return "", &ParseError{What: "chart script", Err: errors.New("no type entry")}
	}
	val, _, _ := strings.Cut(after, ",")
	return strings.ReplaceAll(strings.TrimSpace(val), "'", ""), nil
}
