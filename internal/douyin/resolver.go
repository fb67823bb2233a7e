package douyin

import (
	"context"
	"fmt"

	"douyin-image-miner/internal/httpfetch"

	"go.uber.org/zap"
)

// PageFetcher is the transport the resolver and locator depend on.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, followRedirects bool) (httpfetch.Response, error)
}

// Resolver turns a normalized Douyin URL into a product identifier.
// It performs exactly one redirect-following request and never retries.
type Resolver struct {
	fetcher        PageFetcher
	urlStrategies  []Strategy
	htmlStrategies []Strategy
	logger         *zap.SugaredLogger
}

func NewResolver(fetcher PageFetcher, logger *zap.SugaredLogger) *Resolver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Resolver{
		fetcher:        fetcher,
		urlStrategies:  URLStrategies(),
		htmlStrategies: HTMLStrategies(),
		logger:         logger,
	}
}

// Resolve walks START → REDIRECTED → {PRODUCT_PAGE, NON_PRODUCT_PAGE} →
// HTML_FALLBACK → RESOLVED | FAILED. The returned Resolution carries the
// trace even when err is non-nil.
func (r *Resolver) Resolve(ctx context.Context, canonicalURL string) (Resolution, error) {
	res := Resolution{Trace: []State{StateStart}}

	resp, err := r.fetcher.Fetch(ctx, canonicalURL, true)
	if err != nil {
		res.Trace = append(res.Trace, StateFailed)
		r.logger.Warnw("resolve_fetch_failed", "url", canonicalURL, "err", err)
		return res, fmt.Errorf("resolve %s: %w", canonicalURL, err)
	}

	res.Trace = append(res.Trace, StateRedirected)
	res.Page = Page{URL: resp.FinalURL, Status: resp.Status, Body: resp.Body}
	res.Product.CanonicalURL = resp.FinalURL

	if id, name, ok := runStrategies(r.urlStrategies, res.Page); ok {
		res.Trace = append(res.Trace, StateProductPage, StateResolved)
		res.Product.ProductID = id
		res.Product.IsProductPage = true
		res.Strategy = name
		r.logger.Infow("product_resolved", "product_id", id, "strategy", name, "final_url", resp.FinalURL)
		return res, nil
	}

	res.Trace = append(res.Trace, StateNonProductPage, StateHTMLFallback)
	if id, name, ok := runStrategies(r.htmlStrategies, res.Page); ok {
		res.Trace = append(res.Trace, StateResolved)
		// The landing page is a login or share wall; the input link stays canonical.
		res.Product.CanonicalURL = canonicalURL
		res.Product.ProductID = id
		res.Product.IsProductPage = true
		res.Strategy = name
		r.logger.Infow("product_resolved", "product_id", id, "strategy", name, "final_url", resp.FinalURL)
		return res, nil
	}

	res.Trace = append(res.Trace, StateFailed)
	r.logger.Warnw("product_not_resolved", "url", canonicalURL, "final_url", resp.FinalURL, "body_bytes", len(resp.Body))
	return res, fmt.Errorf("%w: landing page %s carries no product id; %s", ErrProductNotResolved, resp.FinalURL, Remediation)
}

func runStrategies(strategies []Strategy, page Page) (uint64, string, bool) {
	for _, s := range strategies {
		if id, ok := s.Extract(page); ok {
			return id, s.Name, true
		}
	}
	return 0, "", false
}
