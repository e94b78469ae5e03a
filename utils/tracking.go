package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var hrefPattern = regexp.MustCompile(`(?i)(<a\b[^>]*?href\s*=\s*)(["'])([^"']*)(["'])`)

// InjectTracking rewrites rendered HTML so opens and clicks become
// observable: an invisible 1x1 pixel keyed by the tracking id is added
// before the closing body tag, and every hyperlink is redirected through the
// click endpoint. The input comes from user-authored templates, so this must
// never fail; on any internal problem the original HTML is returned.
func InjectTracking(html, baseURL, trackingID string) (out string) {
	defer func() {
		if recover() != nil {
			out = html
		}
	}()

	out = injectClickTracking(html, baseURL, trackingID)

	pixel := fmt.Sprintf(
		`<img src="%s/tracking/open/%s" alt="" width="1" height="1" style="display:none">`,
		baseURL, trackingID,
	)
	if idx := strings.LastIndex(strings.ToLower(out), "</body>"); idx != -1 {
		out = out[:idx] + pixel + out[idx:]
	} else {
		out += pixel
	}
	return out
}

func injectClickTracking(html, baseURL, trackingID string) string {
	return hrefPattern.ReplaceAllStringFunc(html, func(match string) string {
		sub := hrefPattern.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		original := sub[3]
		if skipLinkTracking(original) {
			return match
		}
		tracked := fmt.Sprintf("%s/tracking/click/%s?url=%s",
			baseURL, trackingID, url.QueryEscape(original))
		return sub[1] + sub[2] + tracked + sub[4]
	})
}

// skipLinkTracking reports whether a destination must pass through
// unmodified: non-http schemes and in-page anchors would break if redirected.
func skipLinkTracking(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	if href == "" {
		return true
	}
	for _, prefix := range []string{"#", "mailto:", "tel:", "javascript:"} {
		if strings.HasPrefix(href, prefix) {
			return true
		}
	}
	return false
}
