package douyin

import (
	"errors"

	"douyin-image-miner/internal/httpfetch"
)

var (
	ErrNoURLFound         = errors.New("no douyin url found in share text")
	ErrProductNotResolved = errors.New("product not resolved")
	ErrMalformedPage      = errors.New("malformed product page: no image structure found")
	ErrNoAssets           = errors.New("product has no images")
)

// NetworkError is the transport failure surfaced by resolution and location.
type NetworkError = httpfetch.NetworkError

// Remediation is the guidance attached to resolution failures.
const Remediation = "supply the long product link (https://haohuo.jinritemai.com/...?id=<product_id>) or valid session cookies via --cookies / DY_COOKIES"
