// Package feedfinder discovers the feed URL behind an arbitrary page URL.
// It tries the URL itself, then <link rel="alternate"> and feed-looking
// anchors when the URL serves HTML, then a handful of well-known paths.
package feedfinder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"feedpipe/internal/feedlib"
	"feedpipe/internal/infra/feedclient"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// maxTrials caps how many URLs one discovery is allowed to fetch.
const maxTrials = 10

// wellKnownPaths are probed relative to the page and to the site root when
// the page itself yields no feed links.
var wellKnownPaths = []string{
	"atom.xml", "feed.xml", "rss.xml", "index.xml",
	"feed", "rss", "atom", "feed.json",
}

// FoundFeed is a successful discovery: the parsed feed plus the response it
// was parsed from, which carries the canonical URL, ETag and encoding.
type FoundFeed struct {
	Parsed   *gofeed.Feed
	Response *feedclient.Response
}

// Finder runs feed discovery through one Reader. Safe for concurrent use.
type Finder struct {
	reader *feedclient.Reader
}

func NewFinder(reader *feedclient.Reader) *Finder {
	return &Finder{reader: reader}
}

// Find discovers the feed behind rawURL. The returned messages narrate every
// attempt in user-facing form; they are kept whether discovery succeeds or
// fails. A nil FoundFeed means no feed was found.
func (f *Finder) Find(ctx context.Context, rawURL string) (*FoundFeed, []string) {
	var messages []string
	say := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		slog.Info("feed discovery", slog.String("url", rawURL), slog.String("message", msg))
		messages = append(messages, msg)
	}

	tried := map[string]bool{}
	trials := 0
	try := func(candidate string) *FoundFeed {
		if tried[candidate] || trials >= maxTrials {
			return nil
		}
		tried[candidate] = true
		trials++

		say("fetch %s", candidate)
		resp, err := f.reader.Read(ctx, candidate, feedclient.ReadOptions{})
		if err != nil || !resp.OK() {
			say("fetch %s failed: status=%s", candidate, feedlib.StatusName(resp.Status))
			return nil
		}
		parsed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
		if err != nil {
			say("content of %s is not a feed", candidate)
			return nil
		}
		say("found feed %q at %s", parsed.Title, resp.URL)
		return &FoundFeed{Parsed: parsed, Response: resp}
	}

	say("start feed discovery for %s", rawURL)
	resp, err := f.reader.Read(ctx, rawURL, feedclient.ReadOptions{})
	if err != nil || !resp.OK() {
		say("fetch %s failed: status=%s", rawURL, feedlib.StatusName(resp.Status))
	} else {
		tried[rawURL] = true
		tried[resp.URL] = true
		trials++
		if parsed, perr := gofeed.NewParser().Parse(bytes.NewReader(resp.Body)); perr == nil {
			say("found feed %q at %s", parsed.Title, resp.URL)
			return &FoundFeed{Parsed: parsed, Response: resp}, messages
		}
		say("%s is a web page, scanning it for feed links", resp.URL)
		for _, candidate := range extractCandidates(resp.URL, resp.Body) {
			if found := try(candidate); found != nil {
				return found, messages
			}
		}
	}

	base := rawURL
	if resp != nil && resp.URL != "" {
		base = resp.URL
	}
	for _, candidate := range wellKnownCandidates(base) {
		if found := try(candidate); found != nil {
			return found, messages
		}
	}

	say("no feed found for %s", rawURL)
	return nil, messages
}

// extractCandidates pulls feed URL candidates out of an HTML page, most
// reliable sources first: typed alternate links, generic alternate links,
// then anchors whose target smells like a feed.
func extractCandidates(pageURL string, body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var candidates []string
	seen := map[string]bool{}
	add := func(href string) {
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		abs := feedlib.MakeAbsoluteURL(href, pageURL)
		if seen[abs] {
			return
		}
		if u, err := url.Parse(abs); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		seen[abs] = true
		candidates = append(candidates, abs)
	}

	doc.Find(`link[rel="alternate"]`).Each(func(_ int, sel *goquery.Selection) {
		linkType, _ := sel.Attr("type")
		linkType = strings.ToLower(linkType)
		if strings.Contains(linkType, "rss") || strings.Contains(linkType, "atom") ||
			strings.Contains(linkType, "xml") || strings.Contains(linkType, "json") {
			href, _ := sel.Attr("href")
			add(href)
		}
	})
	doc.Find(`link[rel="feed"]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		add(href)
	})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		lower := strings.ToLower(href)
		if strings.HasSuffix(lower, ".xml") || strings.HasSuffix(lower, ".rss") ||
			strings.Contains(lower, "feed") || strings.Contains(lower, "rss") ||
			strings.Contains(lower, "atom") {
			add(href)
		}
	})
	return candidates
}

// wellKnownCandidates joins the conventional feed paths onto the page URL
// and the site root.
func wellKnownCandidates(pageURL string) []string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var candidates []string
	seen := map[string]bool{}
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			candidates = append(candidates, s)
		}
	}

	pageBase := strings.TrimSuffix(pageURL, "/")
	root := u.Scheme + "://" + u.Host
	for _, path := range wellKnownPaths {
		add(pageBase + "/" + path)
	}
	if root != pageBase {
		for _, path := range wellKnownPaths {
			add(root + "/" + path)
		}
	}
	return candidates
}
