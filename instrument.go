package onvista

import (
    "time"

    "github.com/shopspring/decimal"
)

// Instrument describes a tradeable security as onvista.de presents it.
// ISIN is the stable lookup key across both the website and the API.
type Instrument struct {
    ISIN      string       `json:"isin"`
    WKN       string       `json:"wkn,omitempty"`
    Symbol    string       `json:"symbol,omitempty"`
    Name      string       `json:"name"`
    Type      string       `json:"type,omitempty"`
    Sector    string       `json:"sector,omitempty"`
    UID       string       `json:"uid,omitempty"`
    Currency  string       `json:"currency,omitempty"`
    Notations []Notation   `json:"notations,omitempty"`
    Latest    *LatestQuote `json:"latest,omitempty"`
    UpdatedAt time.Time    `json:"updated_at,omitzero"`
}

// Notation ties an instrument to one trading venue. Values are kept exactly
// as delivered: upstream occasionally pairs a notation id with a market or
// exchange code that does not belong to it, and reconciling the two here
// would hide which venue actually served the data.
type Notation struct {
    ID       string `json:"id"`
    Market   string `json:"market"`
    Exchange string `json:"exchange,omitempty"`
    Currency string `json:"currency,omitempty"`
}

// LatestQuote is the most recent price snapshot the API returns alongside
// the instrument.
type LatestQuote struct {
    Price         decimal.Decimal `json:"price"`
    Change        decimal.Decimal `json:"change"`
    ChangePercent decimal.Decimal `json:"change_percent"`
    Volume        int64           `json:"volume,omitempty"`
    Currency      string          `json:"currency,omitempty"`
    Time          time.Time       `json:"time,omitzero"`
}

// NotationByExchange returns the first notation listed for the exchange code.
func (i Instrument) NotationByExchange(exchange string) (Notation, bool) {
    for _, n := range i.Notations {
        if n.Exchange == exchange {
            return n, true
        }
    }
    return Notation{}, false
}

// IsISIN reports whether s has the shape of an ISIN: a two-letter country
// prefix, nine alphanumeric characters and a check digit. The check digit
// itself is not verified.
func IsISIN(s string) bool {
    if len(s) != 12 {
        return false
    }
    for i := 0; i < 2; i++ {
        if !isUpperAlpha(s[i]) {
            return false
        }
    }
    for i := 2; i < 11; i++ {
        if !isUpperAlpha(s[i]) && !isDigit(s[i]) {
            return false
        }
    }
    return isDigit(s[11])
}

func isUpperAlpha(b byte) bool { return b >= 'A' && b <= 'Z' }
func isDigit(b byte) bool      { return b >= '0' && b <= '9' }
