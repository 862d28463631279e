package httpx

import (
    "bytes"
    "crypto/md5"
    "encoding/hex"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "os"
    "path/filepath"
    "time"
)

// cacheTransport serves GET responses from an on-disk cache. Entries are
// keyed by the md5 of the URL and live under dir/<hash[:2]>/<hash[2:]>.
// Only 2xx responses are written; everything else passes through untouched.
type cacheTransport struct {
    base     http.RoundTripper
    dir      string
    validity time.Duration
}

type cachedResponse struct {
    SavedAt time.Time   `json:"saved_at"`
    Status  int         `json:"status"`
    Header  http.Header `json:"header"`
    Body    []byte      `json:"body"`
}

func newCacheTransport(base http.RoundTripper, dir string, validityDays int) (*cacheTransport, error) {
    if dir == "" {
        return nil, fmt.Errorf("cache dir is empty")
    }
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return nil, fmt.Errorf("create cache dir: %w", err)
    }
    return &cacheTransport{
        base:     base,
        dir:      dir,
        validity: time.Duration(validityDays) * 24 * time.Hour,
    }, nil
}

func (t *cacheTransport) RoundTrip(req *http.Request) (*http.Response, error) {
    if req.Method != http.MethodGet {
        return t.base.RoundTrip(req)
    }
    key := cacheKey(req.URL.String())
    if res := t.load(req, key); res != nil {
        return res, nil
    }

    res, err := t.base.RoundTrip(req)
    if err != nil {
        return nil, err
    }
    if res.StatusCode < 200 || res.StatusCode >= 300 {
        return res, nil
    }
    body, err := io.ReadAll(res.Body)
    res.Body.Close()
    if err != nil {
        return nil, err
    }
    // Storing is best effort; the fetched response is served either way.
    _ = t.store(key, res.StatusCode, res.Header, body)
    res.Body = io.NopCloser(bytes.NewReader(body))
    res.ContentLength = int64(len(body))
    return res, nil
}

func (t *cacheTransport) load(req *http.Request, key string) *http.Response {
    b, err := os.ReadFile(t.path(key))
    if err != nil {
        return nil
    }
    var entry cachedResponse
    if err := json.Unmarshal(b, &entry); err != nil {
        return nil
    }
    if time.Since(entry.SavedAt) > t.validity {
        return nil
    }
    return &http.Response{
        Status:        http.StatusText(entry.Status),
        StatusCode:    entry.Status,
        Proto:         "HTTP/1.1",
        ProtoMajor:    1,
        ProtoMinor:    1,
        Header:        entry.Header,
        Body:          io.NopCloser(bytes.NewReader(entry.Body)),
        ContentLength: int64(len(entry.Body)),
        Request:       req,
    }
}

func (t *cacheTransport) store(key string, status int, header http.Header, body []byte) error {
    entry := cachedResponse{SavedAt: time.Now(), Status: status, Header: header, Body: body}
    b, err := json.Marshal(entry)
    if err != nil {
        return err
    }
    path := t.path(key)
    if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
        return err
    }
    return os.WriteFile(path, b, 0o644)
}

func (t *cacheTransport) path(key string) string {
    return filepath.Join(t.dir, key[:2], key[2:])
}

func cacheKey(url string) string {
    sum := md5.Sum([]byte(url))
    return hex.EncodeToString(sum[:])
}
