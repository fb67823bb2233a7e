package httpfetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/require"
)

func TestFetch_FollowsRedirectsAndSendsCookies(t *testing.T) {
	t.Parallel()

	var gotCookie, gotUA string
	mux := http.NewServeMux()
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/product/42?x=1", http.StatusFound)
	})
	mux.HandleFunc("/product/42", func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<html>ok</html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := New(Config{Cookies: "sessionid=abc", UserAgent: "test-agent"})
	resp, err := c.Fetch(context.Background(), srv.URL+"/short", true)
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/product/42?x=1", resp.FinalURL)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, "<html>ok</html>", string(resp.Body))
	require.Equal(t, "sessionid=abc", gotCookie)
	require.Equal(t, "test-agent", gotUA)
}

func TestFetch_CookieSurvivesCrossDomainRedirect(t *testing.T) {
	t.Parallel()

	var gotCookie string
	landing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
	}))
	t.Cleanup(landing.Close)
	landingURL := strings.Replace(landing.URL, "127.0.0.1", "localhost", 1)

	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, landingURL+"/detail", http.StatusFound)
	}))
	t.Cleanup(short.Close)

	resp, err := New(Config{Cookies: "sessionid=abc"}).Fetch(context.Background(), short.URL, true)
	require.NoError(t, err)
	require.Equal(t, landingURL+"/detail", resp.FinalURL)
	require.Equal(t, "sessionid=abc", gotCookie)
}

func TestFetch_TooManyRedirects(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{MaxRedirects: 3}).Fetch(context.Background(), srv.URL+"/a", true)
	var nerr *NetworkError
	require.ErrorAs(t, err, &nerr)
}

func TestFetch_NoFollowReturnsLocation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusMovedPermanently)
	}))
	t.Cleanup(srv.Close)

	resp, err := New(Config{}).Fetch(context.Background(), srv.URL+"/start", false)
	require.NoError(t, err)
	require.Equal(t, http.StatusMovedPermanently, resp.Status)
	require.Equal(t, srv.URL+"/elsewhere", resp.FinalURL)
}

func TestFetch_Non2xxIsNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{}).Fetch(context.Background(), srv.URL, true)
	var nerr *NetworkError
	require.ErrorAs(t, err, &nerr)
	require.Equal(t, http.StatusForbidden, nerr.Status)
}

func TestFetch_TimeoutIsNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(500 * time.Millisecond):
		}
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL, true)
	var nerr *NetworkError
	require.ErrorAs(t, err, &nerr)
	require.Zero(t, nerr.Status)
}

func TestFetch_TransportErrorIsNetworkError(t *testing.T) {
	t.Parallel()

	boom := errors.New("dns failure")
	c := New(Config{Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, boom
	})})

	_, err := c.Fetch(context.Background(), "http://example.test/", true)
	var nerr *NetworkError
	require.ErrorAs(t, err, &nerr)
	require.ErrorIs(t, err, boom)
}

func TestFetch_DecodesBrotli(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, err := bw.Write([]byte(`{"ok":true}`))
	require.NoError(t, err)
	require.NoError(t, bw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)

	resp, err := New(Config{}).Fetch(context.Background(), srv.URL, true)
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, string(resp.Body))
}

func TestDecodeBody_GzipAlreadyInflated(t *testing.T) {
	t.Parallel()

	out, err := decodeBody("gzip", []byte("plain"))
	require.NoError(t, err)
	require.Equal(t, "plain", string(out))
}

func TestWithQuery(t *testing.T) {
	t.Parallel()

	got, err := WithQuery("https://ec.snssdk.com/product/goods/detail/v2?a=1", map[string]string{"product_id": "7"})
	require.NoError(t, err)
	require.Equal(t, "https://ec.snssdk.com/product/goods/detail/v2?a=1&product_id=7", got)
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
