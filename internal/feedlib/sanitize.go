package feedlib

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// imgExtSrcAttrs are lazy-loading attributes some sites use instead of src.
// They survive sanitization so the image scanner and link fixer can use them.
var imgExtSrcAttrs = []string{"data-src", "data-original", "data-origin"}

var storyPolicy = newStoryPolicy()

func newStoryPolicy() *bluemonday.Policy {
	// UGCPolicy として p, a, img, pre 等の一般的なタグを許可する
	p := bluemonday.UGCPolicy()
	p.AllowElements("picture", "source", "figure", "figcaption", "video", "audio")
	p.AllowAttrs("srcset").OnElements("img", "source")
	p.AllowAttrs(imgExtSrcAttrs...).OnElements("img")
	p.AllowAttrs("controls", "poster").OnElements("video", "audio")
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// SanitizeHTML cleans story HTML for persistence: scripts, styles, frames,
// forms and event handlers are removed, links get rel=nofollow, and the
// lazy-image attributes in imgExtSrcAttrs plus srcset are preserved.
func SanitizeHTML(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	return strings.TrimSpace(storyPolicy.Sanitize(content))
}
