package douyin

import (
	"context"
	"net/http"
	"sync"

	"douyin-image-miner/internal/httpfetch"
)

// stubFetcher serves canned responses keyed by request URL; a redirect entry
// maps a requested URL to its final URL.
type stubFetcher struct {
	mu        sync.Mutex
	redirects map[string]string
	bodies    map[string]string
	errs      map[string]error
	calls     []string
}

func (f *stubFetcher) Fetch(_ context.Context, rawURL string, _ bool) (httpfetch.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)

	final := rawURL
	if to, ok := f.redirects[rawURL]; ok {
		final = to
	}
	if err, ok := f.errs[final]; ok {
		return httpfetch.Response{}, err
	}
	body, ok := f.bodies[final]
	if !ok {
		return httpfetch.Response{}, &httpfetch.NetworkError{URL: final, Status: http.StatusNotFound}
	}
	return httpfetch.Response{FinalURL: final, Status: http.StatusOK, Body: []byte(body)}, nil
}

func (f *stubFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
