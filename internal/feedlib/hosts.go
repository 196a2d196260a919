package feedlib

import (
	"net/url"
	"regexp"
	"strings"
)

// Hosts whose RSS is known to carry the full content (or whose story pages
// are not worth fetching). Feeds matching these never enter the per-story
// webpage fetch path.
var (
	reV2EX       = regexp.MustCompile(`(?i)^https?://[a-zA-Z0-9_.\-]*\.v2ex\.com`)
	reHackerNews = regexp.MustCompile(`(?i)^https?://news\.ycombinator\.com`)
	reGitHub     = regexp.MustCompile(`(?i)^https?://github\.com`)
	rePyPI       = regexp.MustCompile(`(?i)^https?://[a-zA-Z0-9_.\-]*\.?pypi\.org`)
)

// IsV2EX matches v2ex.com subdomains, including its CDN hosts.
func IsV2EX(u string) bool { return reV2EX.MatchString(u) }

// IsHackerNews matches news.ycombinator.com exactly.
func IsHackerNews(u string) bool { return reHackerNews.MatchString(u) }

// IsGitHub matches github.com but not *.github.io pages.
func IsGitHub(u string) bool { return reGitHub.MatchString(u) }

// IsPyPI matches pypi.org and its subdomains.
func IsPyPI(u string) bool { return rePyPI.MatchString(u) }

// RefererDenyList holds host suffixes known to reject image requests that
// carry a foreign referer. Images on these hosts are proxied instead of
// probed.
const RefererDenyList = `
qpic.cn
qlogo.cn
qq.com
`

// URLBlacklist matches URLs whose host equals or is a subdomain of any
// listed suffix.
type URLBlacklist struct {
	suffixes []string
}

// CompileURLBlacklist parses a newline-separated list of host suffixes.
// Blank lines and surrounding whitespace are ignored.
func CompileURLBlacklist(text string) *URLBlacklist {
	var suffixes []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.ToLower(strings.TrimSpace(line))
		if line == "" {
			continue
		}
		suffixes = append(suffixes, line)
	}
	return &URLBlacklist{suffixes: suffixes}
}

// Match reports whether rawURL's host is covered by the blacklist.
func (b *URLBlacklist) Match(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

var refererDeny = CompileURLBlacklist(RefererDenyList)

// IsRefererDenyURL reports whether the image URL belongs to a host that
// rejects foreign-referer requests.
func IsRefererDenyURL(u string) bool {
	return refererDeny.Match(u)
}
