package douyin

import (
	"regexp"
	"strings"
)

// urlCandidateRE matches http(s) URLs and bare short links. A candidate ends
// at whitespace or the first non-ASCII rune, since share messages glue CJK
// text directly onto the link ("…/ABC123/复制此链接").
var urlCandidateRE = regexp.MustCompile(`(?i)(?:https?://|\bv\.douyin\.com/)[^\x00-\x20\x7f-\x{10FFFF}<>"']+`)

const trailingPunct = `.,;:!?)]}'"`

// Normalize returns the first Douyin URL found in raw share text.
func Normalize(raw string) (string, error) {
	for _, candidate := range urlCandidateRE.FindAllString(raw, -1) {
		candidate = strings.TrimRight(candidate, trailingPunct)
		if !strings.Contains(strings.ToLower(candidate), "://") {
			candidate = "https://" + candidate
		}
		if _, err := DetectHost(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", ErrNoURLFound
}
