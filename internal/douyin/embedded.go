package douyin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

const maxScriptBytes = 8 << 20

// embeddedBlobs returns the JSON documents inlined in the page's scripts, in
// document order. RENDER_DATA blobs are URL-encoded; assignment scripts such
// as `window._ROUTER_DATA = {...}` contribute their first object literal.
func embeddedBlobs(body []byte) []gjson.Result {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var out []gjson.Result
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text == "" || len(text) > maxScriptBytes {
			return
		}

		id, _ := s.Attr("id")
		typ, _ := s.Attr("type")
		switch {
		case id == "RENDER_DATA":
			if decoded, err := url.QueryUnescape(text); err == nil {
				text = decoded
			}
		case strings.Contains(typ, "json"), id == "__NEXT_DATA__":
		case strings.Contains(text, "window.") || strings.Contains(text, "self.__"):
		default:
			return
		}

		raw, err := extractFirstJSONObject(text)
		if err != nil {
			return
		}
		out = append(out, gjson.Parse(raw))
	})
	return out
}

// extractFirstJSONObject returns the first syntactically valid JSON object in
// raw, verbatim.
func extractFirstJSONObject(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty input")
	}

	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' {
			continue
		}

		dec := json.NewDecoder(strings.NewReader(raw[i:]))
		dec.UseNumber()

		var v map[string]any
		if err := dec.Decode(&v); err != nil {
			continue
		}
		return raw[i : i+int(dec.InputOffset())], nil
	}

	return "", fmt.Errorf("no valid JSON object found")
}

// walkJSON visits every keyed value below v depth-first in document order.
// Returning false from fn stops the walk.
func walkJSON(v gjson.Result, fn func(key string, value gjson.Result) bool) bool {
	cont := true
	switch {
	case v.IsObject():
		v.ForEach(func(k, val gjson.Result) bool {
			if !fn(k.String(), val) {
				cont = false
				return false
			}
			cont = walkJSON(val, fn)
			return cont
		})
	case v.IsArray():
		v.ForEach(func(_, val gjson.Result) bool {
			cont = walkJSON(val, fn)
			return cont
		})
	}
	return cont
}
