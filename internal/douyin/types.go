package douyin

import "strings"

// ShareReference is the raw user input: a short link, long link or pasted share text.
type ShareReference string

func (s ShareReference) Valid() bool { return strings.TrimSpace(string(s)) != "" }

// ResolvedProduct identifies a product listing. ProductID is only set when
// IsProductPage is true.
type ResolvedProduct struct {
	CanonicalURL  string `json:"canonical_url"`
	ProductID     uint64 `json:"product_id,omitempty"`
	IsProductPage bool   `json:"is_product_page"`
}

// Page is a fetched landing page.
type Page struct {
	URL    string
	Status int
	Body   []byte
}

type State string

const (
	StateStart          State = "START"
	StateRedirected     State = "REDIRECTED"
	StateProductPage    State = "PRODUCT_PAGE"
	StateNonProductPage State = "NON_PRODUCT_PAGE"
	StateHTMLFallback   State = "HTML_FALLBACK"
	StateResolved       State = "RESOLVED"
	StateFailed         State = "FAILED"
)

// Resolution is the outcome of one resolver run, including the landing page
// so the locator can reuse it.
type Resolution struct {
	Product  ResolvedProduct
	Page     Page
	Strategy string
	Trace    []State
}

func (r Resolution) State() State {
	if len(r.Trace) == 0 {
		return StateStart
	}
	return r.Trace[len(r.Trace)-1]
}

// ImageRef is one gallery entry. Width, Height and Format are optional hints
// from the payload.
type ImageRef struct {
	URL     string `json:"url"`
	Ordinal int    `json:"ordinal"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Format  string `json:"format,omitempty"`
}
