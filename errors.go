package onvista

import (
    "errors"
    "fmt"
)

// ErrNotFound is returned when the website or API has no data for the
// requested instrument.
var ErrNotFound = errors.New("onvista: not found")

// StatusError reports an unexpected upstream HTTP status.
type StatusError struct {
    Code int
    URL  string
    Body string
}

func (e *StatusError) Error() string {
    if e.Body == "" {
        return fmt.Sprintf("onvista: %s -> http %d", e.URL, e.Code)
    }
    return fmt.Sprintf("onvista: %s -> http %d: %s", e.URL, e.Code, e.Body)
}

// ParseError reports a response whose structure did not match expectations.
// There are no partial results: a response either parses fully or not at all.
type ParseError struct {
    What string
    Err  error
}

func (e *ParseError) Error() string {
    if e.Err == nil {
        return "onvista: parse " + e.What
    }
    return fmt.Sprintf("onvista: parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
