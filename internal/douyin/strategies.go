package douyin

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// Strategy extracts a product id from a page. Strategies are pure and are
// tried in order until one succeeds.
type Strategy struct {
	Name    string
	Extract func(Page) (uint64, bool)
}

var productURLPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"url_product_path", regexp.MustCompile(`(?i)product/(\d+)`)},
	{"url_goods_path", regexp.MustCompile(`(?i)goods/(\d+)`)},
	{"url_item_path", regexp.MustCompile(`(?i)item/(\d+)`)},
	{"url_product_id_param", regexp.MustCompile(`(?i)product_id=(\d+)`)},
	{"url_index_id_param", regexp.MustCompile(`(?i)index\.html\?id=(\d+)`)},
}

var mallIDParamRE = regexp.MustCompile(`(?i)[?&](?:id|promotion_id)=(\d+)`)

// URLStrategies inspect the resolved URL only.
func URLStrategies() []Strategy {
	out := make([]Strategy, 0, len(productURLPatterns)+1)
	for _, p := range productURLPatterns {
		re := p.re
		out = append(out, Strategy{
			Name: p.name,
			Extract: func(page Page) (uint64, bool) {
				return firstSubmatchID(re, page.URL)
			},
		})
	}
	out = append(out, Strategy{
		Name: "url_mall_id_param",
		Extract: func(page Page) (uint64, bool) {
			if kind, err := DetectHost(page.URL); err != nil || kind != Mall {
				return 0, false
			}
			return firstSubmatchID(mallIDParamRE, page.URL)
		},
	})
	return out
}

// HTMLStrategies inspect the landing page body.
func HTMLStrategies() []Strategy {
	return []Strategy{
		{Name: "html_embedded_json", Extract: embeddedJSONProductID},
		{Name: "html_canonical_link", Extract: canonicalLinkProductID},
		{Name: "html_inline_scan", Extract: inlineScanProductID},
	}
}

// ProductIDFromURL applies the URL strategies to rawURL.
func ProductIDFromURL(rawURL string) (uint64, bool) {
	for _, s := range URLStrategies() {
		if id, ok := s.Extract(Page{URL: rawURL}); ok {
			return id, true
		}
	}
	return 0, false
}

var productIDKeys = map[string]bool{
	"product_id":     true,
	"productId":      true,
	"product_id_str": true,
	"productID":      true,
	"goods_id":       true,
}

func embeddedJSONProductID(page Page) (uint64, bool) {
	for _, blob := range embeddedBlobs(page.Body) {
		var found uint64
		walkJSON(blob, func(key string, v gjson.Result) bool {
			if !productIDKeys[key] {
				return true
			}
			if id, ok := jsonID(v); ok {
				found = id
				return false
			}
			return true
		})
		if found != 0 {
			return found, true
		}
	}
	return 0, false
}

func canonicalLinkProductID(page Page) (uint64, bool) {
	if len(page.Body) == 0 {
		return 0, false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return 0, false
	}

	var candidates []string
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		candidates = append(candidates, href)
	}
	doc.Find(`meta[property="og:url"], meta[name="og:url"]`).Each(func(_ int, s *goquery.Selection) {
		if content, ok := s.Attr("content"); ok {
			candidates = append(candidates, content)
		}
	})

	for _, c := range candidates {
		if id, ok := ProductIDFromURL(strings.TrimSpace(c)); ok {
			return id, true
		}
	}
	return 0, false
}

var inlineIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"(?:product_id|productId|product_id_str)"\s*:\s*"?(\d{6,})`),
	regexp.MustCompile(`(?:product_id|productId)(?:%22|%5C%22)(?:%3A|:)(?:%22|%5C%22)?(\d{6,})`),
}

func inlineScanProductID(page Page) (uint64, bool) {
	body := string(page.Body)
	for _, re := range inlineIDPatterns {
		if id, ok := firstSubmatchID(re, body); ok {
			return id, true
		}
	}
	return 0, false
}

func firstSubmatchID(re *regexp.Regexp, s string) (uint64, bool) {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return 0, false
	}
	return parseProductID(m[1])
}

func jsonID(v gjson.Result) (uint64, bool) {
	switch v.Type {
	case gjson.String:
		return parseProductID(strings.TrimSpace(v.Str))
	case gjson.Number:
		return parseProductID(v.Raw)
	default:
		return 0, false
	}
}

func parseProductID(s string) (uint64, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
