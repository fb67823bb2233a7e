package douyin

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"douyin-image-miner/internal/httpfetch"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// DefaultDetailEndpoints are queried when the product page carries no image data.
var DefaultDetailEndpoints = []string{
	"https://www.douyin.com/aweme/v1/web/product/detail/",
	"https://ec.snssdk.com/product/goods/detail/v2",
}

type Locator struct {
	fetcher   PageFetcher
	endpoints []string
	logger    *zap.SugaredLogger
}

// NewLocator builds a Locator. A nil endpoints slice selects
// DefaultDetailEndpoints; an empty non-nil slice disables the API fallback.
func NewLocator(fetcher PageFetcher, endpoints []string, logger *zap.SugaredLogger) *Locator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if endpoints == nil {
		endpoints = DefaultDetailEndpoints
	}
	return &Locator{fetcher: fetcher, endpoints: endpoints, logger: logger}
}

// Locate returns the product's gallery in display order. The landing page
// captured during resolution is searched first; the detail endpoints are only
// queried when it yields nothing.
func (l *Locator) Locate(ctx context.Context, res Resolution) ([]ImageRef, error) {
	if !res.Product.IsProductPage || res.Product.ProductID == 0 {
		return nil, fmt.Errorf("locate: %w", ErrProductNotResolved)
	}
	productID := res.Product.ProductID

	var structureFound bool
	for _, blob := range embeddedBlobs(res.Page.Body) {
		refs, found := ExtractImages(blob)
		structureFound = structureFound || found
		if len(refs) > 0 {
			l.logger.Infow("images_located", "product_id", productID, "source", "page", "count", len(refs))
			return refs, nil
		}
	}

	refs, found, err := l.fromDetailEndpoints(ctx, productID)
	structureFound = structureFound || found
	switch {
	case len(refs) > 0:
		return refs, nil
	case structureFound:
		return nil, fmt.Errorf("product %d: %w", productID, ErrNoAssets)
	case err != nil:
		return nil, fmt.Errorf("product %d: %w (detail endpoints: %w)", productID, ErrMalformedPage, err)
	default:
		return nil, fmt.Errorf("product %d: %w", productID, ErrMalformedPage)
	}
}

func (l *Locator) fromDetailEndpoints(ctx context.Context, productID uint64) ([]ImageRef, bool, error) {
	id := strconv.FormatUint(productID, 10)
	variants := []map[string]string{
		{"product_id": id},
		{"product_id": id, "scene": "detail"},
	}

	var (
		found   bool
		lastErr error
	)
	for _, endpoint := range l.endpoints {
		for _, params := range variants {
			if err := ctx.Err(); err != nil {
				return nil, found, err
			}
			target, err := httpfetch.WithQuery(endpoint, params)
			if err != nil {
				lastErr = err
				continue
			}

			resp, err := l.fetcher.Fetch(ctx, target, true)
			if err != nil {
				l.logger.Warnw("detail_endpoint_failed", "url", target, "err", err)
				lastErr = err
				continue
			}
			if !gjson.ValidBytes(resp.Body) {
				l.logger.Warnw("detail_endpoint_invalid_json", "url", target, "body_bytes", len(resp.Body))
				lastErr = errors.New("invalid JSON from " + endpoint)
				continue
			}

			refs, ok := ExtractImages(gjson.ParseBytes(resp.Body))
			found = found || ok
			if len(refs) > 0 {
				l.logger.Infow("images_located", "product_id", productID, "source", endpoint, "count", len(refs))
				return refs, true, nil
			}
		}
	}
	return nil, found, lastErr
}
