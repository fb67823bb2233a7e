// Package assets downloads product images through a key/value cache and
// decodes them for segmentation.
package assets

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"

	"douyin-image-miner/internal/douyin"
	"douyin-image-miner/internal/httpfetch"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	_ "golang.org/x/image/webp"
)

var (
	ErrDownload = errors.New("asset download failed")
	ErrDecode   = errors.New("asset decode failed")
)

// ImageAsset is an immutable downloaded image. ContentHash is the hex
// SHA-256 of Bytes.
type ImageAsset struct {
	SourceURL   string
	Ordinal     int
	Bytes       []byte
	ContentHash string
	Cached      bool
}

// Downloader is the HTTP primitive used for cache misses.
type Downloader interface {
	Fetch(ctx context.Context, rawURL string, followRedirects bool) (httpfetch.Response, error)
}

type Fetcher struct {
	store      Store
	downloader Downloader
	logger     *zap.SugaredLogger
}

func NewFetcher(store Store, downloader Downloader, logger *zap.SugaredLogger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Fetcher{store: store, downloader: downloader, logger: logger}
}

// CacheKey is assets/<product_id>/<ordinal>_<sha1(url)[:16]>.
func CacheKey(productID uint64, ref douyin.ImageRef) string {
	sum := sha1.Sum([]byte(ref.URL))
	return fmt.Sprintf("assets/%d/%d_%s", productID, ref.Ordinal, hex.EncodeToString(sum[:])[:16])
}

// Fetch returns the asset for ref, downloading it only on a cache miss.
// Cache read/write failures degrade to a download and are logged.
func (f *Fetcher) Fetch(ctx context.Context, productID uint64, ref douyin.ImageRef) (ImageAsset, error) {
	key := CacheKey(productID, ref)

	data, ok, err := f.store.Get(ctx, key)
	if err != nil {
		f.logger.Warnw("asset_cache_get_failed", "key", key, "err", err)
	}
	if ok {
		f.logger.Debugw("asset_cache_hit", "key", key, "bytes", len(data))
		return newAsset(ref, data, true), nil
	}

	resp, err := f.downloader.Fetch(ctx, ref.URL, true)
	if err != nil {
		return ImageAsset{}, fmt.Errorf("%w: ordinal %d: %w", ErrDownload, ref.Ordinal, err)
	}
	if len(resp.Body) == 0 {
		return ImageAsset{}, fmt.Errorf("%w: ordinal %d: empty body from %s", ErrDownload, ref.Ordinal, ref.URL)
	}

	if err := f.store.Put(ctx, key, resp.Body); err != nil {
		f.logger.Warnw("asset_cache_put_failed", "key", key, "err", err)
	}
	f.logger.Debugw("asset_downloaded", "key", key, "url", ref.URL, "bytes", len(resp.Body))
	return newAsset(ref, resp.Body, false), nil
}

func newAsset(ref douyin.ImageRef, data []byte, cached bool) ImageAsset {
	sum := sha256.Sum256(data)
	return ImageAsset{
		SourceURL:   ref.URL,
		Ordinal:     ref.Ordinal,
		Bytes:       data,
		ContentHash: hex.EncodeToString(sum[:]),
		Cached:      cached,
	}
}

// Decode decodes a JPEG, PNG, GIF or WebP asset, applying EXIF orientation.
func Decode(a ImageAsset) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(a.Bytes), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: ordinal %d: %w", ErrDecode, a.Ordinal, err)
	}
	return img, nil
}
