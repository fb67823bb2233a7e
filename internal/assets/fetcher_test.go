package assets

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"douyin-image-miner/internal/douyin"
	"douyin-image-miner/internal/httpfetch"

	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFetcher_CacheIdempotence(t *testing.T) {
	t.Parallel()

	body := pngBytes(t, 4, 3)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(NewMemoryStore(), httpfetch.New(httpfetch.Config{}), nil)
	ref := douyin.ImageRef{URL: srv.URL + "/0.png", Ordinal: 0}

	first, err := f.Fetch(context.Background(), 7123456789, ref)
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := f.Fetch(context.Background(), 7123456789, ref)
	require.NoError(t, err)
	require.True(t, second.Cached)

	require.Equal(t, int32(1), hits.Load())
	require.Equal(t, first.Bytes, second.Bytes)
	require.Equal(t, first.ContentHash, second.ContentHash)
	require.Len(t, first.ContentHash, 64)
}

func TestFetcher_DownloadError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	store := NewMemoryStore()
	f := NewFetcher(store, httpfetch.New(httpfetch.Config{}), nil)

	_, err := f.Fetch(context.Background(), 1, douyin.ImageRef{URL: srv.URL + "/missing.jpg", Ordinal: 3})
	require.ErrorIs(t, err, ErrDownload)

	var nerr *httpfetch.NetworkError
	require.ErrorAs(t, err, &nerr)
	require.Equal(t, http.StatusNotFound, nerr.Status)
	require.Zero(t, store.Len())
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	ref := douyin.ImageRef{URL: "https://p3.test/a.jpeg", Ordinal: 2}
	key := CacheKey(42, ref)
	require.Regexp(t, `^assets/42/2_[0-9a-f]{16}$`, key)
	require.Equal(t, key, CacheKey(42, ref))
	require.NotEqual(t, key, CacheKey(42, douyin.ImageRef{URL: "https://p3.test/b.jpeg", Ordinal: 2}))
}

func TestDecode(t *testing.T) {
	t.Parallel()

	img, err := Decode(ImageAsset{Bytes: pngBytes(t, 5, 7)})
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 5, 7), img.Bounds())

	_, err = Decode(ImageAsset{Bytes: []byte("not an image"), Ordinal: 1})
	require.ErrorIs(t, err, ErrDecode)
}
