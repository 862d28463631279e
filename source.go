package onvista

import "context"

// source is one way of getting data out of onvista: the JSON API or the
// website markup. Implementations return ErrNotFound for unknown
// instruments and nil slices for searches without hits.
type source interface {
	search(ctx context.Context, key string) ([]Instrument, error)
	resolve(ctx context.Context, ins Instrument) (*Instrument, error)
	quotes(ctx context.Context, ins Instrument, req QuoteRequest) ([]Quote, error)
}
