package feedlib

import (
	"net/url"
	"strings"
)

// ImageRef is one image URL occurrence in story HTML. Pos and EndPos are
// byte offsets of the raw attribute value, URL is the resolved absolute
// form used for probing.
type ImageRef struct {
	Pos    int
	EndPos int
	URL    string
}

func isDataURL(u string) bool {
	return strings.HasPrefix(u, "data:")
}

// URLs already rewritten to the in-system proxy must never be picked up again.
func isProxiedImage(u string) bool {
	return strings.Contains(u, ImageProxyPath)
}

// MakeAbsoluteURL resolves u against base when u is not already absolute.
// Returns u unchanged when base is empty or either side fails to parse.
func MakeAbsoluteURL(u, base string) string {
	if base == "" {
		return u
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return u
	}
	ref, err := baseURL.Parse(u)
	if err != nil {
		return u
	}
	return ref.String()
}

// ParseStoryImages scans story HTML for img src and source srcset values,
// resolving relative URLs against storyURL. Data URLs, already-proxied URLs
// and values that do not resolve to a valid http(s) URL are skipped.
// Offsets refer to the raw attribute value so that RewriteStoryImages can
// splice replacements in place.
func ParseStoryImages(storyURL, content string) []ImageRef {
	if content == "" {
		return nil
	}
	var refs []ImageRef
	for _, m := range reImg.FindAllStringSubmatchIndex(content, -1) {
		// group 1 is img src, group 2 is source srcset
		start, end := m[2], m[3]
		if start < 0 {
			start, end = m[4], m[5]
		}
		raw := strings.TrimSpace(content[start:end])
		if raw == "" || isDataURL(raw) || isProxiedImage(raw) {
			continue
		}
		abs := MakeAbsoluteURL(raw, storyURL)
		if !validImageURL(abs) {
			continue
		}
		refs = append(refs, ImageRef{Pos: start, EndPos: end, URL: abs})
	}
	return refs
}

func validImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// RewriteStoryImages splices replacement URLs into the story HTML at the
// positions recorded by ParseStoryImages. 置換対象が無い位置は元のまま。
func RewriteStoryImages(content string, refs []ImageRef, replaces map[string]string) string {
	if len(refs) == 0 || len(replaces) == 0 {
		return content
	}
	var b strings.Builder
	b.Grow(len(content))
	begin := 0
	for _, ref := range refs {
		newURL, ok := replaces[ref.URL]
		if !ok {
			continue
		}
		b.WriteString(content[begin:ref.Pos])
		b.WriteString(newURL)
		begin = ref.EndPos
	}
	b.WriteString(content[begin:])
	return b.String()
}

// StoryImageURLs returns the distinct absolute image URLs of a story in
// first-seen order.
func StoryImageURLs(storyURL, content string) []string {
	refs := ParseStoryImages(storyURL, content)
	if len(refs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(refs))
	urls := make([]string, 0, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref.URL]; ok {
			continue
		}
		seen[ref.URL] = struct{}{}
		urls = append(urls, ref.URL)
	}
	return urls
}
