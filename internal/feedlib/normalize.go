package feedlib

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"feedpipe/internal/mq"
)

// Wire limits applied while normalizing.
const (
	maxFieldLen  = 200
	summaryWidth = 300
)

// Response is the slice of an HTTP response the normalizer consumes: the
// final URL after redirects, the raw body and the caching headers.
type Response struct {
	URL          string
	Body         []byte
	ETag         string
	LastModified string
	Encoding     string
}

// Normalize folds parser output and the HTTP response into the canonical
// feed record sent from worker to harbor. now is the clock used for
// future-timestamp clamping.
//
// Field rules:
//   - url is the unquoted final URL, content_hash_base64 the body digest
//   - link falls back to the first http(s) entry of the parser's link list
//   - title, author, version are shortened to 200 visible chars
//   - story content is sanitized; summary is the shortened text form
//   - future timestamps are dropped so "now" defaults apply downstream
func Normalize(parsed *gofeed.Feed, resp *Response, now time.Time) (*mq.FeedPayload, error) {
	if parsed == nil {
		return nil, fmt.Errorf("Normalize: nil parsed feed")
	}
	feed := &mq.FeedPayload{
		URL:               unquote(resp.URL),
		ContentHashBase64: ContentHashBase64(resp.Body),
		Title:             Shorten(parsed.Title, maxFieldLen),
		Link:              unquote(feedLink(parsed)),
		Author:            Shorten(firstAuthor(parsed.Authors), maxFieldLen),
		Description:       parsed.Description,
		Version:           Shorten(feedVersion(parsed), maxFieldLen),
		Encoding:          resp.Encoding,
		ETag:              resp.ETag,
		LastModified:      resp.LastModified,
		DTUpdated:         clampFuture(coalesceTime(parsed.UpdatedParsed, parsed.PublishedParsed), now),
	}
	if parsed.Image != nil {
		feed.Icon = parsed.Image.URL
	}
	feed.Storys = normalizeStorys(parsed.Items, now)
	if err := feed.Validate(); err != nil {
		return nil, fmt.Errorf("Normalize: %w", err)
	}
	return feed, nil
}

func normalizeStorys(items []*gofeed.Item, now time.Time) []mq.StoryPayload {
	storys := make([]mq.StoryPayload, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		content := itemContent(item)
		content = SanitizeHTML(content)
		summarySource := item.Description
		if summarySource == "" {
			summarySource = content
		}
		summary := Shorten(HTMLToText(summarySource), summaryWidth)
		title := Shorten(item.Title, maxFieldLen)
		story := mq.StoryPayload{
			UniqueID:          Shorten(storyUniqueID(item), maxFieldLen),
			Title:             title,
			Content:           content,
			Summary:           summary,
			ContentHashBase64: ContentHashBase64String(content, summary, title),
			Link:              unquote(item.Link),
			Author:            Shorten(firstAuthor(item.Authors), maxFieldLen),
			DTPublished:       clampFuture(coalesceTime(item.PublishedParsed, item.UpdatedParsed), now),
			DTUpdated:         clampFuture(coalesceTime(item.UpdatedParsed, item.PublishedParsed), now),
		}
		if story.UniqueID == "" {
			continue
		}
		storys = append(storys, story)
	}
	return storys
}

// itemContent prefers the entry's content element, falling back to the
// description. gofeed folds atom summary into Description.
func itemContent(item *gofeed.Item) string {
	if item.Content != "" {
		return item.Content
	}
	return item.Description
}

func storyUniqueID(item *gofeed.Item) string {
	uniqueID := item.GUID
	if uniqueID == "" {
		uniqueID = item.Link
	}
	return unquote(uniqueID)
}

// feedLink prefers the parser's link, but some feeds put a non-URL there;
// fall back to the first http(s) entry of the link list.
func feedLink(parsed *gofeed.Feed) string {
	if strings.HasPrefix(parsed.Link, "http") {
		return parsed.Link
	}
	for _, l := range parsed.Links {
		if strings.HasPrefix(l, "http") {
			return l
		}
	}
	return ""
}

func feedVersion(parsed *gofeed.Feed) string {
	return strings.TrimSpace(parsed.FeedType + parsed.FeedVersion)
}

func firstAuthor(authors []*gofeed.Person) string {
	for _, a := range authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}

func coalesceTime(a, b *time.Time) *time.Time {
	if a != nil {
		return a
	}
	return b
}

// clampFuture drops timestamps later than now; downstream fills defaults.
func clampFuture(t *time.Time, now time.Time) *time.Time {
	if t == nil || t.After(now) {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// unquote decodes percent-escapes, keeping the original on bad escapes.
func unquote(s string) string {
	if s == "" {
		return s
	}
	u, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return u
}
