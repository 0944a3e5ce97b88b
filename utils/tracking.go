package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildTrackingPixelURL builds the open-tracking pixel URL for a send record
func BuildTrackingPixelURL(baseURL string, recordID uint) string {
	return fmt.Sprintf("%s/track?id=%d&event=open", baseURL, recordID)
}

// BuildClickTrackURL builds a redirect-tracking URL carrying the send record
// id and the original target
func BuildClickTrackURL(baseURL string, recordID uint, originalURL string) string {
	return fmt.Sprintf("%s/track?id=%d&event=click&url=%s", baseURL, recordID, url.QueryEscape(originalURL))
}

// InjectTracking rewrites an HTML body for engagement tracking: every outbound
// hyperlink is routed through the click redirect, and a 1x1 open-tracking
// pixel is appended. Hosts matching an entry of excludedHosts are skipped
// (substring match); so are mailto:, anchors, and already-tracked links.
func InjectTracking(htmlContent, baseURL string, recordID uint, excludedHosts []string) string {
	modified := injectClickTracking(htmlContent, baseURL, recordID, excludedHosts)

	pixelURL := BuildTrackingPixelURL(baseURL, recordID)
	trackingPixel := fmt.Sprintf(`<img src="%s" alt="" width="1" height="1" style="display:none">`, pixelURL)

	return modified + trackingPixel
}

func injectClickTracking(html, baseURL string, recordID uint, excludedHosts []string) string {
	const startTag = `<a href="`
	const endTag = `"`
	offset := 0

	for {
		startIdx := strings.Index(html[offset:], startTag)
		if startIdx == -1 {
			break
		}
		startIdx += offset + len(startTag)

		endIdx := strings.Index(html[startIdx:], endTag)
		if endIdx == -1 {
			break
		}
		endIdx += startIdx

		originalURL := html[startIdx:endIdx]
		if !shouldTrackURL(originalURL, baseURL, excludedHosts) {
			offset = endIdx
			continue
		}

		trackedURL := BuildClickTrackURL(baseURL, recordID, originalURL)
		html = html[:startIdx] + trackedURL + html[endIdx:]
		offset = startIdx + len(trackedURL)
	}

	return html
}

func shouldTrackURL(rawURL, baseURL string, excludedHosts []string) bool {
	if rawURL == "" || strings.HasPrefix(rawURL, "#") || strings.HasPrefix(rawURL, "mailto:") {
		return false
	}
	if strings.HasPrefix(rawURL, baseURL) {
		return false // already tracked or points back at us
	}
	for _, host := range excludedHosts {
		if strings.Contains(rawURL, host) {
			return false
		}
	}
	return true
}
