package douyin

import (
	"fmt"
	"net/url"
	"strings"
)

type HostKind string

const (
	ShortLink HostKind = "short_link"
	Site      HostKind = "site"
	Mall      HostKind = "mall"
)

// DetectHost classifies rawURL by its Douyin host.
func DetectHost(rawURL string) (HostKind, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid URL (missing scheme/host): %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	switch {
	case host == "v.douyin.com":
		return ShortLink, nil
	case hasDomain(host, "douyin.com"), hasDomain(host, "iesdouyin.com"):
		return Site, nil
	case hasDomain(host, "jinritemai.com"), hasDomain(host, "snssdk.com"):
		return Mall, nil
	default:
		return "", fmt.Errorf("unsupported URL host %q (only Douyin hosts are supported)", host)
	}
}

func hasDomain(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
