package mw

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

func (c cachedResponse) toResponse(req *http.Request) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", c.status, http.StatusText(c.status)),
		StatusCode:    c.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        c.headers.Clone(),
		Body:          io.NopCloser(bytes.NewReader(c.body)),
		ContentLength: int64(len(c.body)),
		Request:       req,
	}
}

// Cache returns a transport caching successful responses of unauthenticated GET
// requests to one of paths. Bearer-authenticated requests always go upstream.
func Cache(next http.RoundTripper, store *cache.Cache, duration time.Duration, paths ...string) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodGet || req.Header.Get("Authorization") != "" || !matchPath(req.URL.Path, paths) {
			return next.RoundTrip(req)
		}

		key := req.URL.String()
		if resp, found := store.Get(key); found {
			return resp.(cachedResponse).toResponse(req), nil
		}

		resp, err := next.RoundTrip(req)
		if err != nil {
			return nil, err
		}

		// Only cache successful responses
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp, nil
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		response := cachedResponse{
			status:  resp.StatusCode,
			headers: resp.Header.Clone(),
			body:    body,
		}
		store.Set(key, response, duration)
		return response.toResponse(req), nil
	})
}

func matchPath(path string, paths []string) bool {
	for _, p := range paths {
		if path == p {
			return true
		}
	}
	return false
}
