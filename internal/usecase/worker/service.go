// Package worker implements the I/O side of the pipeline: feed discovery,
// feed polling, story webpage fetching and image probing. Worker handlers
// own no state; everything they learn goes back to the harbor as messages.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"feedpipe/internal/domain/entity"
	"feedpipe/internal/feedlib"
	"feedpipe/internal/infra/feedclient"
	"feedpipe/internal/infra/feedfinder"
	"feedpipe/internal/mq"
	"feedpipe/internal/observability/logging"
	"feedpipe/internal/observability/metrics"
)

const (
	// summaryWidth is the visible length of a story summary.
	summaryWidth = 300

	// defaultProbeTimeout bounds one image probe batch when the message
	// carries no expire_at.
	defaultProbeTimeout = 30 * time.Second

	// defaultProbeReferer simulates a reader viewing the story in the web
	// app, so a host that denies cross-site referers fails the probe
	// exactly like it would fail in a browser.
	defaultProbeReferer = "https://feedpipe.io/story/"
)

// Reader is the outbound HTTP surface the worker needs, implemented by
// feedclient.Reader. The three reader fields of Service carry differently
// tuned instances (feed, webpage, image probe).
type Reader interface {
	Read(ctx context.Context, rawURL string, opt feedclient.ReadOptions) (*feedclient.Response, error)
}

// Discoverer runs feed discovery, implemented by feedfinder.Finder.
type Discoverer interface {
	Find(ctx context.Context, rawURL string) (*feedfinder.FoundFeed, []string)
}

// Config holds the probe knobs of the worker service.
type Config struct {
	// ProbeTimeout bounds one detect_story_images batch; the message
	// expire_at shortens it further when earlier.
	ProbeTimeout time.Duration
	// ProbeReferer is the Referer header sent with image probes.
	ProbeReferer string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ProbeTimeout: defaultProbeTimeout,
		ProbeReferer: defaultProbeReferer,
	}
}

// Service provides the worker use cases. Handlers report outcomes to the
// harbor with at-least-once sends; a send failure fails the handler so the
// bus redelivers, and the harbor's idempotent handlers absorb duplicates.
type Service struct {
	Bus    mq.Sender
	Finder Discoverer

	// FeedReader fetches feed documents, PageReader story webpages,
	// ImageReader runs headers-only image probes.
	FeedReader  Reader
	PageReader  Reader
	ImageReader Reader

	Cfg Config

	// Now is the clock used for timestamp normalization and probe
	// deadlines. Tests swap it for a fixed time.
	Now func() time.Time
}

// NewService creates a worker Service. Zero config fields fall back to
// DefaultConfig values.
func NewService(bus mq.Sender, finder Discoverer, feedReader, pageReader, imageReader Reader, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.ProbeReferer == "" {
		cfg.ProbeReferer = def.ProbeReferer
	}
	return &Service{
		Bus:         bus,
		Finder:      finder,
		FeedReader:  feedReader,
		PageReader:  pageReader,
		ImageReader: imageReader,
		Cfg:         cfg,
		Now:         time.Now,
	}
}

// Register binds every worker actor to the bus. Must be called before the
// bus starts consuming.
func (s *Service) Register(b mq.Bus) {
	b.Register(mq.WorkerFindFeed, s.HandleFindFeed)
	b.Register(mq.WorkerSyncFeed, s.HandleSyncFeed)
	b.Register(mq.WorkerFetchStory, s.HandleFetchStory)
	b.Register(mq.WorkerProcessStoryWebpage, s.HandleProcessStoryWebpage)
	b.Register(mq.WorkerDetectStoryImages, s.HandleDetectStoryImages)
}

// HandleFindFeed runs feed discovery for one creation request. The harbor
// always receives a save_feed_creation_result, with a nil feed and the
// discovery log when nothing was found.
func (s *Service) HandleFindFeed(ctx context.Context, m *mq.Message) error {
	var p mq.FindFeedPayload
	if err := m.Decode(&p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	if err := s.Bus.Tell(ctx, mq.HarborUpdateFeedCreationStatus, &mq.UpdateFeedCreationStatusPayload{
		FeedCreationID: p.FeedCreationID,
		Status:         entity.StatusUpdating,
	}); err != nil {
		return fmt.Errorf("HandleFindFeed: %w", err)
	}

	found, messages := s.Finder.Find(ctx, p.URL)

	var feed *mq.FeedPayload
	if found != nil {
		normalized, err := feedlib.Normalize(found.Parsed, clientResponse(found.Response), s.Now())
		if err != nil {
			logging.FromContext(ctx).Warn("normalize found feed failed",
				slog.Int64("feed_creation_id", p.FeedCreationID),
				slog.String("url", found.Response.URL),
				slog.Any("error", err))
			messages = append(messages, fmt.Sprintf("found feed at %s but its content could not be processed", found.Response.URL))
		} else {
			feed = normalized
		}
	}

	if err := s.Bus.Tell(ctx, mq.HarborSaveFeedCreationResult, &mq.SaveFeedCreationResultPayload{
		FeedCreationID: p.FeedCreationID,
		Messages:       messages,
		Feed:           feed,
	}); err != nil {
		return fmt.Errorf("HandleFindFeed: %w", err)
	}
	return nil
}

// HandleSyncFeed polls one feed with the stored conditional-GET state.
// Anything short of fresh parseable content is a no-op: the periodic sweep
// is the retry mechanism, so transport and parse failures only log.
func (s *Service) HandleSyncFeed(ctx context.Context, m *mq.Message) error {
	var p mq.SyncFeedPayload
	if err := m.Decode(&p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	log := logging.FromContext(ctx)
	start := time.Now()
	resp, err := s.FeedReader.Read(ctx, p.URL, feedclient.ReadOptions{
		ETag:         p.ETag,
		LastModified: p.LastModified,
	})
	metrics.RecordFetch("feed", resp.Status, time.Since(start), len(resp.Body))
	log.Info("read feed",
		slog.Int64("feed_id", p.FeedID),
		slog.String("url", p.URL),
		slog.String("status", feedlib.StatusName(resp.Status)))
	if err != nil || !resp.OK() || len(resp.Body) == 0 {
		return nil
	}

	// 内容ハッシュの比較は二段目の not modified 判定。ETag を返さない
	// サーバーでも本文が同じなら取り込みを省ける。
	if p.ContentHashBase64 != "" && feedlib.ContentHashBase64(resp.Body) == p.ContentHashBase64 {
		log.Info("feed not modified by content hash",
			slog.Int64("feed_id", p.FeedID),
			slog.String("url", p.URL))
		return nil
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		log.Warn("failed to parse feed",
			slog.Int64("feed_id", p.FeedID),
			slog.String("url", p.URL),
			slog.Any("error", err))
		return nil
	}
	feed, err := feedlib.Normalize(parsed, clientResponse(resp), s.Now())
	if err != nil {
		log.Warn("normalize feed failed",
			slog.Int64("feed_id", p.FeedID),
			slog.String("url", p.URL),
			slog.Any("error", err))
		return nil
	}

	if err := s.Bus.Tell(ctx, mq.HarborUpdateFeed, &mq.UpdateFeedPayload{
		FeedID: p.FeedID,
		Feed:   feed,
	}); err != nil {
		return fmt.Errorf("HandleSyncFeed: %w", err)
	}
	return nil
}

// HandleFetchStory fetches one story webpage, following redirects, and
// hands the final URL and body to the readability step.
func (s *Service) HandleFetchStory(ctx context.Context, m *mq.Message) error {
	var p mq.FetchStoryPayload
	if err := m.Decode(&p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	start := time.Now()
	resp, err := s.PageReader.Read(ctx, p.URL, feedclient.ReadOptions{})
	metrics.RecordFetch("story", resp.Status, time.Since(start), len(resp.Body))

	finalURL := p.URL
	if resp.URL != "" {
		finalURL = resp.URL
	}
	logging.FromContext(ctx).Info("fetch story",
		slog.Int64("story_id", p.StoryID),
		slog.String("url", finalURL),
		slog.String("status", feedlib.StatusName(resp.Status)))
	if err != nil || !resp.OK() {
		return nil
	}

	if err := s.Bus.Tell(ctx, mq.WorkerProcessStoryWebpage, &mq.ProcessStoryWebpagePayload{
		StoryID: p.StoryID,
		URL:     finalURL,
		Text:    string(resp.Body),
	}); err != nil {
		return fmt.Errorf("HandleFetchStory: %w", err)
	}
	return nil
}

// HandleProcessStoryWebpage extracts the main content of a fetched webpage
// and sends it back as the story's content, then scans it for images and
// schedules a probe batch when any are present.
func (s *Service) HandleProcessStoryWebpage(ctx context.Context, m *mq.Message) error {
	var p mq.ProcessStoryWebpagePayload
	if err := m.Decode(&p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	pageURL, err := url.Parse(p.URL)
	if err != nil {
		pageURL = nil
	}
	log := logging.FromContext(ctx)
	article, err := readability.FromReader(strings.NewReader(p.Text), pageURL)
	if err != nil || article.Content == "" {
		log.Warn("readability extraction failed",
			slog.Int64("story_id", p.StoryID),
			slog.String("url", p.URL),
			slog.Any("error", err))
		return nil
	}
	content := article.Content
	summary := feedlib.Shorten(feedlib.HTMLToText(content), summaryWidth)

	if err := s.Bus.Tell(ctx, mq.HarborUpdateStory, &mq.UpdateStoryPayload{
		StoryID: p.StoryID,
		Content: content,
		Summary: summary,
		URL:     p.URL,
	}); err != nil {
		return fmt.Errorf("HandleProcessStoryWebpage: %w", err)
	}

	imageURLs := feedlib.StoryImageURLs(p.URL, content)
	log.Info("story images found",
		slog.Int64("story_id", p.StoryID),
		slog.String("url", p.URL),
		slog.Int("images", len(imageURLs)))
	if len(imageURLs) == 0 {
		return nil
	}
	if err := s.Bus.Tell(ctx, mq.WorkerDetectStoryImages, &mq.DetectStoryImagesPayload{
		StoryID:   p.StoryID,
		StoryURL:  p.URL,
		ImageURLs: imageURLs,
	}); err != nil {
		return fmt.Errorf("HandleProcessStoryWebpage: %w", err)
	}
	return nil
}

// HandleDetectStoryImages probes every image URL of one story concurrently
// under one batch deadline and reports a status per URL, including for
// probes the deadline cut off. Referer-denied hosts are short-circuited
// without a request.
func (s *Service) HandleDetectStoryImages(ctx context.Context, m *mq.Message) error {
	var p mq.DetectStoryImagesPayload
	if err := m.Decode(&p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	deadline := s.Now().Add(s.Cfg.ProbeTimeout)
	if m.ExpireAt != nil && m.ExpireAt.Before(deadline) {
		deadline = *m.ExpireAt
	}
	probeCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	log := logging.FromContext(ctx)
	log.Info("detect story images begin",
		slog.Int64("story_id", p.StoryID),
		slog.Int("images", len(p.ImageURLs)))
	start := time.Now()

	results := make([]mq.ImageStatus, len(p.ImageURLs))
	g, gctx := errgroup.WithContext(probeCtx)
	for i, imageURL := range p.ImageURLs {
		i, imageURL := i, imageURL
		g.Go(func() error {
			results[i] = mq.ImageStatus{URL: imageURL, Status: s.probeImage(gctx, imageURL)}
			return nil
		})
	}
	// Probes never return errors; every slot holds a status once Wait
	// returns, timed-out probes a synthetic one.
	_ = g.Wait()

	numOK := 0
	for _, img := range results {
		if img.Status == 200 {
			numOK++
		}
	}
	log.Info("detect story images finished",
		slog.Int64("story_id", p.StoryID),
		slog.Int("images", len(results)),
		slog.Int("ok", numOK),
		slog.Int("error", len(results)-numOK),
		slog.Duration("duration", time.Since(start)))

	if err := s.Bus.Tell(ctx, mq.HarborUpdateStoryImages, &mq.UpdateStoryImagesPayload{
		StoryID:  p.StoryID,
		StoryURL: p.StoryURL,
		Images:   results,
	}); err != nil {
		return fmt.Errorf("HandleDetectStoryImages: %w", err)
	}
	return nil
}

// probeImage resolves one image URL to a status.
func (s *Service) probeImage(ctx context.Context, imageURL string) int {
	if feedlib.IsRefererDenyURL(imageURL) {
		return feedlib.StatusRefererDeny
	}
	start := time.Now()
	resp, _ := s.ImageReader.Read(ctx, imageURL, feedclient.ReadOptions{
		Referer:       s.Cfg.ProbeReferer,
		IgnoreContent: true,
	})
	metrics.RecordFetch("image", resp.Status, time.Since(start), 0)
	return resp.Status
}

// clientResponse converts a fetch response into the slice the normalizer
// consumes.
func clientResponse(resp *feedclient.Response) *feedlib.Response {
	return &feedlib.Response{
		URL:          resp.URL,
		Body:         resp.Body,
		ETag:         resp.ETag,
		LastModified: resp.LastModified,
		Encoding:     resp.Encoding,
	}
}
