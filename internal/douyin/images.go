package douyin

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Known payload layouts, most specific first. Each group is evaluated like
// `a or b`: the first non-empty list in the group wins.
var imageSchemaPaths = [][]string{
	{"product.image", "product.images"},
	{"data.images", "data.image_list"},
	{"image_list"},
}

// Keys searched for anywhere in embedded page data when no known layout matches.
var imageListKeys = map[string]bool{
	"images":        true,
	"image_list":    true,
	"main_img_list": true,
	"product_imgs":  true,
	"pic_list":      true,
}

// ExtractImages returns the ordered gallery found in payload. found reports
// whether an image structure exists at all, so callers can tell an empty
// gallery from a page without one.
func ExtractImages(payload gjson.Result) (refs []ImageRef, found bool) {
	for _, group := range imageSchemaPaths {
		for _, path := range group {
			list := payload.Get(path)
			if !list.IsArray() {
				continue
			}
			found = true
			if refs = imageRefs(list); len(refs) > 0 {
				return refs, true
			}
		}
	}
	if found {
		return nil, true
	}

	walkJSON(payload, func(key string, v gjson.Result) bool {
		if !imageListKeys[key] || !v.IsArray() {
			return true
		}
		found = true
		refs = imageRefs(v)
		return len(refs) == 0
	})
	return refs, found
}

func imageRefs(list gjson.Result) []ImageRef {
	var out []ImageRef
	seen := make(map[string]bool)
	list.ForEach(func(_, item gjson.Result) bool {
		ref, ok := imageItem(item)
		if !ok || seen[ref.URL] {
			return true
		}
		seen[ref.URL] = true
		ref.Ordinal = len(out)
		out = append(out, ref)
		return true
	})
	return out
}

func imageItem(item gjson.Result) (ImageRef, bool) {
	var ref ImageRef
	switch {
	case item.Type == gjson.String:
		ref.URL = item.Str
	case item.IsObject():
		for _, key := range []string{"url", "origin_url", "image_url"} {
			if v := item.Get(key); v.Type == gjson.String && v.Str != "" {
				ref.URL = v.Str
				break
			}
		}
		if ref.URL == "" {
			item.Get("url_list").ForEach(func(_, u gjson.Result) bool {
				if u.Type == gjson.String && u.Str != "" {
					ref.URL = u.Str
					return false
				}
				return true
			})
		}
		if w := item.Get("width"); w.Type == gjson.Number {
			ref.Width = int(w.Int())
		}
		if h := item.Get("height"); h.Type == gjson.Number {
			ref.Height = int(h.Int())
		}
		for _, key := range []string{"format", "file_type"} {
			if v := item.Get(key); v.Type == gjson.String && v.Str != "" {
				ref.Format = v.Str
				break
			}
		}
	default:
		return ImageRef{}, false
	}

	ref.URL = absoluteImageURL(ref.URL)
	return ref, ref.URL != ""
}

func absoluteImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return raw
	default:
		return ""
	}
}
