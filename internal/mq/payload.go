package mq

import (
	"fmt"
	"net/url"
	"time"

	"feedpipe/internal/domain/entity"
)

// Wire field limits, applied by the normalizer and re-checked here.
const (
	maxTitleLen    = 200
	maxUniqueIDLen = 200
)

// validURL is a syntax-only check. SSRF and private-address guards belong
// to the HTTP layer at request time, not to message decoding.
func validURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// StoryPayload is the canonical wire form of one feed entry.
type StoryPayload struct {
	UniqueID          string     `json:"unique_id"`
	Title             string     `json:"title"`
	ContentHashBase64 string     `json:"content_hash_base64"`
	Author            string     `json:"author,omitempty"`
	Link              string     `json:"link,omitempty"`
	Summary           string     `json:"summary,omitempty"`
	Content           string     `json:"content,omitempty"`
	DTPublished       *time.Time `json:"dt_published,omitempty"`
	DTUpdated         *time.Time `json:"dt_updated,omitempty"`
}

// Validate checks the story wire schema.
func (s *StoryPayload) Validate() error {
	if s.UniqueID == "" {
		return fmt.Errorf("%w: story unique_id is required", ErrInvalidPayload)
	}
	if len([]rune(s.UniqueID)) > maxUniqueIDLen {
		return fmt.Errorf("%w: story unique_id too long", ErrInvalidPayload)
	}
	if len([]rune(s.Title)) > maxTitleLen {
		return fmt.Errorf("%w: story title too long", ErrInvalidPayload)
	}
	if s.ContentHashBase64 == "" {
		return fmt.Errorf("%w: story content_hash_base64 is required", ErrInvalidPayload)
	}
	return nil
}

// FeedPayload is the canonical wire form of a fetched feed, validated at
// the worker→harbor boundary.
type FeedPayload struct {
	URL               string         `json:"url"`
	Title             string         `json:"title"`
	ContentHashBase64 string         `json:"content_hash_base64"`
	Link              string         `json:"link,omitempty"`
	Author            string         `json:"author,omitempty"`
	Icon              string         `json:"icon,omitempty"`
	Description       string         `json:"description,omitempty"`
	Version           string         `json:"version,omitempty"`
	Encoding          string         `json:"encoding,omitempty"`
	ETag              string         `json:"etag,omitempty"`
	LastModified      string         `json:"last_modified,omitempty"`
	DTUpdated         *time.Time     `json:"dt_updated,omitempty"`
	Storys            []StoryPayload `json:"storys"`
}

// Validate checks the feed wire schema, including every story.
func (f *FeedPayload) Validate() error {
	if !validURL(f.URL) {
		return fmt.Errorf("%w: feed url %q", ErrInvalidPayload, f.URL)
	}
	if f.ContentHashBase64 == "" {
		return fmt.Errorf("%w: feed content_hash_base64 is required", ErrInvalidPayload)
	}
	for i := range f.Storys {
		if err := f.Storys[i].Validate(); err != nil {
			return fmt.Errorf("storys[%d]: %w", i, err)
		}
	}
	return nil
}

// FindFeedPayload asks the worker to discover a feed for a creation request.
type FindFeedPayload struct {
	FeedCreationID int64  `json:"feed_creation_id"`
	URL            string `json:"url"`
}

func (p *FindFeedPayload) Validate() error {
	if p.FeedCreationID <= 0 {
		return fmt.Errorf("%w: feed_creation_id is required", ErrInvalidPayload)
	}
	if !validURL(p.URL) {
		return fmt.Errorf("%w: url %q", ErrInvalidPayload, p.URL)
	}
	return nil
}

// SyncFeedPayload asks the worker to poll one feed. The optional fields
// carry the stored conditional-GET state.
type SyncFeedPayload struct {
	FeedID            int64  `json:"feed_id"`
	URL               string `json:"url"`
	ContentHashBase64 string `json:"content_hash_base64,omitempty"`
	ETag              string `json:"etag,omitempty"`
	LastModified      string `json:"last_modified,omitempty"`
}

func (p *SyncFeedPayload) Validate() error {
	if p.FeedID <= 0 {
		return fmt.Errorf("%w: feed_id is required", ErrInvalidPayload)
	}
	if !validURL(p.URL) {
		return fmt.Errorf("%w: url %q", ErrInvalidPayload, p.URL)
	}
	return nil
}

// FetchStoryPayload asks the worker to fetch one story webpage.
type FetchStoryPayload struct {
	StoryID int64  `json:"story_id"`
	URL     string `json:"url"`
}

func (p *FetchStoryPayload) Validate() error {
	if p.StoryID <= 0 {
		return fmt.Errorf("%w: story_id is required", ErrInvalidPayload)
	}
	if !validURL(p.URL) {
		return fmt.Errorf("%w: url %q", ErrInvalidPayload, p.URL)
	}
	return nil
}

// ProcessStoryWebpagePayload carries a fetched webpage to the readability
// step. URL is the final URL after redirects.
type ProcessStoryWebpagePayload struct {
	StoryID int64  `json:"story_id"`
	URL     string `json:"url"`
	Text    string `json:"text"`
}

func (p *ProcessStoryWebpagePayload) Validate() error {
	if p.StoryID <= 0 {
		return fmt.Errorf("%w: story_id is required", ErrInvalidPayload)
	}
	if !validURL(p.URL) {
		return fmt.Errorf("%w: url %q", ErrInvalidPayload, p.URL)
	}
	return nil
}

// DetectStoryImagesPayload asks the worker to probe the story's images.
type DetectStoryImagesPayload struct {
	StoryID   int64    `json:"story_id"`
	StoryURL  string   `json:"story_url"`
	ImageURLs []string `json:"image_urls"`
}

func (p *DetectStoryImagesPayload) Validate() error {
	if p.StoryID <= 0 {
		return fmt.Errorf("%w: story_id is required", ErrInvalidPayload)
	}
	if !validURL(p.StoryURL) {
		return fmt.Errorf("%w: story_url %q", ErrInvalidPayload, p.StoryURL)
	}
	return nil
}

// UpdateFeedCreationStatusPayload writes the creation lifecycle state.
type UpdateFeedCreationStatusPayload struct {
	FeedCreationID int64             `json:"feed_creation_id"`
	Status         entity.FeedStatus `json:"status"`
}

func (p *UpdateFeedCreationStatusPayload) Validate() error {
	if p.FeedCreationID <= 0 {
		return fmt.Errorf("%w: feed_creation_id is required", ErrInvalidPayload)
	}
	if !entity.ValidStatus(p.Status) {
		return fmt.Errorf("%w: status %q", ErrInvalidPayload, p.Status)
	}
	return nil
}

// SaveFeedCreationResultPayload finishes a creation request. A nil Feed
// means discovery failed; Messages is the human-readable discovery log.
type SaveFeedCreationResultPayload struct {
	FeedCreationID int64        `json:"feed_creation_id"`
	Messages       []string     `json:"messages"`
	Feed           *FeedPayload `json:"feed,omitempty"`
}

func (p *SaveFeedCreationResultPayload) Validate() error {
	if p.FeedCreationID <= 0 {
		return fmt.Errorf("%w: feed_creation_id is required", ErrInvalidPayload)
	}
	if p.Feed != nil {
		if err := p.Feed.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// UpdateFeedPayload folds a fetched feed into the stored one.
type UpdateFeedPayload struct {
	FeedID    int64        `json:"feed_id"`
	Feed      *FeedPayload `json:"feed"`
	IsRefresh bool         `json:"is_refresh,omitempty"`
}

func (p *UpdateFeedPayload) Validate() error {
	if p.FeedID <= 0 {
		return fmt.Errorf("%w: feed_id is required", ErrInvalidPayload)
	}
	if p.Feed == nil {
		return fmt.Errorf("%w: feed is required", ErrInvalidPayload)
	}
	return p.Feed.Validate()
}

// UpdateStoryPayload persists readability-extracted content for one story.
type UpdateStoryPayload struct {
	StoryID int64  `json:"story_id"`
	Content string `json:"content"`
	Summary string `json:"summary"`
	URL     string `json:"url"`
}

func (p *UpdateStoryPayload) Validate() error {
	if p.StoryID <= 0 {
		return fmt.Errorf("%w: story_id is required", ErrInvalidPayload)
	}
	if !validURL(p.URL) {
		return fmt.Errorf("%w: url %q", ErrInvalidPayload, p.URL)
	}
	return nil
}

// ImageStatus is one probe result: an HTTP status or a synthetic
// transport code.
type ImageStatus struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
}

// UpdateStoryImagesPayload applies probe results to the story HTML.
type UpdateStoryImagesPayload struct {
	StoryID  int64         `json:"story_id"`
	StoryURL string        `json:"story_url"`
	Images   []ImageStatus `json:"images"`
}

func (p *UpdateStoryImagesPayload) Validate() error {
	if p.StoryID <= 0 {
		return fmt.Errorf("%w: story_id is required", ErrInvalidPayload)
	}
	if !validURL(p.StoryURL) {
		return fmt.Errorf("%w: story_url %q", ErrInvalidPayload, p.StoryURL)
	}
	for i, img := range p.Images {
		if img.URL == "" {
			return fmt.Errorf("%w: images[%d].url is required", ErrInvalidPayload, i)
		}
	}
	return nil
}
