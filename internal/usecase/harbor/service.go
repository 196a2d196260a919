// Package harbor implements the state side of the pipeline: every message
// that touches the database is handled here, one transaction per message.
//
// Handlers are idempotent. A redelivered message finds the work already done
// (creation READY, story hash unchanged, subscription present) and returns
// without side effects, which is what makes at-least-once delivery safe.
package harbor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"feedpipe/internal/domain/entity"
	"feedpipe/internal/feedlib"
	"feedpipe/internal/mq"
	"feedpipe/internal/observability/logging"
	"feedpipe/internal/observability/metrics"
	"feedpipe/internal/repository"
)

// thinStoryTextLength is the rune count under which a story is considered
// thin enough to be shown as-is, so its images get probed and rewritten
// before a reader ever loads them.
const thinStoryTextLength = 1000

// Config holds the scheduler knobs of the harbor service.
type Config struct {
	// CheckFeedInterval is the base window between two polls of one feed.
	// The effective window gets up to 10% jitter per tick.
	CheckFeedInterval time.Duration
	// CheckFeedLimit caps how many feeds one tick hands out.
	CheckFeedLimit int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		CheckFeedInterval: 30 * time.Minute,
		CheckFeedLimit:    500,
	}
}

// ImportResult is what a subscribe request produced: either an existing
// feed the user was attached to immediately, or a pending creation whose
// discovery now runs on a worker.
type ImportResult struct {
	Feed     *entity.Feed
	Creation *entity.FeedCreation
}

// Service provides the harbor use cases: the feed creation lifecycle, feed
// and story upserts, image rewriting and the two periodic sweeps.
type Service struct {
	Store repository.Store
	Bus   mq.Sender
	Cfg   Config

	// Now is the clock used for every timestamp and expiry decision.
	// Tests swap it for a fixed time.
	Now func() time.Time
}

// NewService creates a harbor Service. Zero config fields fall back to
// DefaultConfig values.
func NewService(store repository.Store, bus mq.Sender, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.CheckFeedInterval <= 0 {
		cfg.CheckFeedInterval = def.CheckFeedInterval
	}
	if cfg.CheckFeedLimit <= 0 {
		cfg.CheckFeedLimit = def.CheckFeedLimit
	}
	return &Service{Store: store, Bus: bus, Cfg: cfg, Now: time.Now}
}

// Register binds every harbor actor to the bus. Must be called before the
// bus starts consuming.
func (s *Service) Register(b mq.Bus) {
	b.Register(mq.HarborUpdateFeedCreationStatus, s.HandleUpdateFeedCreationStatus)
	b.Register(mq.HarborSaveFeedCreationResult, s.HandleSaveFeedCreationResult)
	b.Register(mq.HarborUpdateFeed, s.HandleUpdateFeed)
	b.Register(mq.HarborUpdateStory, s.HandleUpdateStory)
	b.Register(mq.HarborUpdateStoryImages, s.HandleUpdateStoryImages)
	b.Register(mq.HarborCheckFeed, s.HandleCheckFeed)
	b.Register(mq.HarborCleanFeedCreation, s.HandleCleanFeedCreation)
}

// tell emits a post-commit at-least-once message. The transaction is
// already committed, so a send failure is logged and swallowed: the
// periodic sweep re-derives lost work from the stored state.
func (s *Service) tell(ctx context.Context, name string, payload any) {
	if err := s.Bus.Tell(ctx, name, payload); err != nil {
		logging.FromContext(ctx).Warn("tell failed",
			slog.String("actor", name),
			slog.Any("error", err))
	}
}

// hope emits a post-commit best-effort message, same failure policy as tell.
func (s *Service) hope(ctx context.Context, name string, payload any, opts ...mq.SendOption) {
	if err := s.Bus.Hope(ctx, name, payload, opts...); err != nil {
		logging.FromContext(ctx).Warn("hope failed",
			slog.String("actor", name),
			slog.Any("error", err))
	}
}

// ImportFeed is the entry of the pipeline: it records one user request to
// subscribe url. When the URL already resolved to a known feed, the
// subscription is attached immediately and no discovery runs; otherwise a
// PENDING creation is stored and a worker is told to find the feed.
func (s *Service) ImportFeed(ctx context.Context, userID int64, url string, isFromBookmark bool) (*ImportResult, error) {
	if err := entity.ValidateURL(url); err != nil {
		return nil, fmt.Errorf("ImportFeed: %w", err)
	}
	r := s.Store.Repos()

	// 解決済みURLなら発見をスキップして既存フィードに直結する。
	target, err := r.FeedURLMaps.GetTarget(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("ImportFeed: %w", err)
	}
	if target != "" && target != entity.FeedURLMapNotFound {
		feed, err := r.Feeds.GetFirstByURL(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("ImportFeed: %w", err)
		}
		if feed != nil {
			if err := s.subscribe(ctx, r, userID, feed.ID, isFromBookmark); err != nil {
				return nil, fmt.Errorf("ImportFeed: %w", err)
			}
			return &ImportResult{Feed: feed}, nil
		}
	}

	creation := &entity.FeedCreation{
		UserID:         userID,
		URL:            url,
		IsFromBookmark: isFromBookmark,
		Status:         entity.StatusPending,
	}
	if err := r.FeedCreations.Create(ctx, creation); err != nil {
		return nil, fmt.Errorf("ImportFeed: %w", err)
	}
	s.tell(ctx, mq.WorkerFindFeed, &mq.FindFeedPayload{
		FeedCreationID: creation.ID,
		URL:            creation.URL,
	})
	logging.FromContext(ctx).Info("feed import started",
		slog.Int64("feed_creation_id", creation.ID),
		slog.Int64("user_id", userID),
		slog.String("url", url))
	return &ImportResult{Creation: creation}, nil
}

// subscribe attaches the user to the feed unless already subscribed.
func (s *Service) subscribe(ctx context.Context, r *repository.Repos, userID, feedID int64, isFromBookmark bool) error {
	userFeed, err := r.UserFeeds.GetByUserAndFeed(ctx, userID, feedID)
	if err != nil {
		return err
	}
	if userFeed != nil {
		logging.FromContext(ctx).Info("user feed already exists",
			slog.Int64("user_feed_id", userFeed.ID),
			slog.Int64("user_id", userID),
			slog.Int64("feed_id", feedID))
		return nil
	}
	return r.UserFeeds.Create(ctx, &entity.UserFeed{
		UserID:         userID,
		FeedID:         feedID,
		IsFromBookmark: isFromBookmark,
	})
}

// HandleUpdateFeedCreationStatus writes the creation lifecycle state.
// A missing row is ignored: the janitor may have collected it.
func (s *Service) HandleUpdateFeedCreationStatus(ctx context.Context, m *mq.Message) error {
	var p mq.UpdateFeedCreationStatusPayload
	if err := m.Decode(&p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.Store.Repos().FeedCreations.UpdateStatus(ctx, p.FeedCreationID, p.Status); err != nil {
		return fmt.Errorf("HandleUpdateFeedCreationStatus: %w", err)
	}
	return nil
}

// HandleSaveFeedCreationResult finishes a creation request with the
// discovery outcome. A nil payload feed marks the creation ERROR and
// records the URL as unresolvable; otherwise the feed row is found or
// created, the user is subscribed, and the resolution cache learns both
// the requested and the canonical URL. The fetched document is then hoped
// to update_feed so the first sync happens without waiting for a tick.
func (s *Service) HandleSaveFeedCreationResult(ctx context.Context, m *mq.Message) error {
	var p mq.SaveFeedCreationResultPayload
	if err := m.Decode(&p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	log := logging.FromContext(ctx)
	var feedID int64
	err := s.Store.InTx(ctx, func(r *repository.Repos) error {
		creation, err := r.FeedCreations.Get(ctx, p.FeedCreationID)
		if err != nil {
			return err
		}
		if creation == nil {
			log.Warn("feed creation not exists",
				slog.Int64("feed_creation_id", p.FeedCreationID))
			return nil
		}
		if creation.Status == entity.StatusReady {
			log.Info("feed creation is ready",
				slog.Int64("feed_creation_id", creation.ID))
			return nil
		}
		creation.Message = strings.Join(p.Messages, "\n\n")

		if p.Feed == nil {
			creation.Status = entity.StatusError
			if err := r.FeedCreations.Save(ctx, creation); err != nil {
				return err
			}
			return r.FeedURLMaps.Create(ctx, &entity.FeedURLMap{
				Source: creation.URL,
				Target: entity.FeedURLMapNotFound,
			})
		}

		feed, err := r.Feeds.GetFirstByURL(ctx, p.Feed.URL)
		if err != nil {
			return err
		}
		if feed == nil {
			now := s.Now()
			feed = &entity.Feed{
				URL:       p.Feed.URL,
				Status:    entity.StatusReady,
				UpdatedAt: &now,
			}
			if err := r.Feeds.Create(ctx, feed); err != nil {
				return err
			}
		}
		creation.Status = entity.StatusReady
		creation.FeedID = &feed.ID
		if err := r.FeedCreations.Save(ctx, creation); err != nil {
			return err
		}
		if err := s.subscribe(ctx, r, creation.UserID, feed.ID, creation.IsFromBookmark); err != nil {
			return err
		}
		if err := r.FeedURLMaps.Create(ctx, &entity.FeedURLMap{
			Source: creation.URL,
			Target: feed.URL,
		}); err != nil {
			return err
		}
		// 自己解決の記録。正規URLで再登録された時に発見を省ける。
		if feed.URL != creation.URL {
			if err := r.FeedURLMaps.Create(ctx, &entity.FeedURLMap{
				Source: feed.URL,
				Target: feed.URL,
			}); err != nil {
				return err
			}
		}
		feedID = feed.ID
		return nil
	})
	if err != nil {
		return fmt.Errorf("HandleSaveFeedCreationResult: %w", err)
	}
	if feedID == 0 {
		return nil
	}
	s.hope(ctx, mq.HarborUpdateFeed, &mq.UpdateFeedPayload{
		FeedID: feedID,
		Feed:   p.Feed,
	})
	return nil
}

// HandleUpdateFeed folds a fetched document into the stored feed and bulk
// saves its stories. When the document URL moved onto a URL another feed
// already owns, the stored feed is merged into that one instead.
//
// After commit each modified story either goes to fetch_story (the feed is
// known to truncate content) or through the inline image-probe path.
func (s *Service) HandleUpdateFeed(ctx context.Context, m *mq.Message) error {
	var p mq.UpdateFeedPayload
	if err := m.Decode(&p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	log := logging.FromContext(ctx)
	var (
		feed     *entity.Feed
		merged   bool
		modified []*entity.Story
	)
	err := s.Store.InTx(ctx, func(r *repository.Repos) error {
		var err error
		feed, err = r.Feeds.Get(ctx, p.FeedID)
		if err != nil {
			return err
		}
		if feed == nil {
			log.Warn("feed not exists", slog.Int64("feed_id", p.FeedID))
			return nil
		}
		if feed.URL != p.Feed.URL {
			target, err := r.Feeds.GetFirstByURL(ctx, p.Feed.URL)
			if err != nil {
				return err
			}
			if target != nil {
				merged = true
				return s.mergeFeed(ctx, r, feed, target)
			}
		}

		applyFeedPayload(feed, p.Feed)
		now := s.Now()
		if feed.UpdatedAt == nil {
			feed.UpdatedAt = &now
		}
		feed.CheckedAt = &now
		feed.SyncedAt = &now
		feed.Status = entity.StatusReady
		if err := r.Feeds.Update(ctx, feed); err != nil {
			return err
		}

		storys := storysFromPayload(p.Feed.Storys, now)
		var numReallocate int
		modified, numReallocate, err = r.Storys.BulkSaveByFeed(ctx, feed.ID, storys)
		if err != nil {
			return err
		}
		metrics.RecordStorysSaved(len(storys), len(modified), numReallocate)
		log.Info("feed storys saved",
			slog.Int64("feed_id", feed.ID),
			slog.Int("total", len(storys)),
			slog.Int("modified", len(modified)),
			slog.Int("reallocated", numReallocate))
		return nil
	})
	if err != nil {
		return fmt.Errorf("HandleUpdateFeed: %w", err)
	}
	if feed == nil || merged || len(modified) == 0 {
		return nil
	}

	counts, err := s.Store.Repos().Feeds.MonthlyStoryCount(ctx, feed.ID)
	if err != nil {
		// 取得失敗は全文扱いの判定が甘くなるだけ。取り込みは続ける。
		log.Warn("load monthly story count failed",
			slog.Int64("feed_id", feed.ID),
			slog.Any("error", err))
		counts = nil
	}
	needFetch := feedlib.FeedNeedsStoryFetch(feed.URL)
	for _, story := range modified {
		if story.Link == "" {
			continue
		}
		if needFetch && !feedlib.IsFulltextStory(counts, story) {
			s.tell(ctx, mq.WorkerFetchStory, &mq.FetchStoryPayload{
				StoryID: story.ID,
				URL:     story.Link,
			})
		} else {
			s.processStoryImages(ctx, story, p.IsRefresh)
		}
	}
	return nil
}

// mergeFeed folds src into the feed that already owns the new URL:
// subscriptions and stories move over, the resolution cache learns the
// canonical URL and the source row is destroyed.
func (s *Service) mergeFeed(ctx context.Context, r *repository.Repos, src, dst *entity.Feed) error {
	movedUsers, err := r.UserFeeds.MoveToFeed(ctx, src.ID, dst.ID)
	if err != nil {
		return err
	}
	movedStorys, err := r.Storys.MoveToFeed(ctx, src.ID, dst.ID)
	if err != nil {
		return err
	}
	if err := r.FeedURLMaps.Create(ctx, &entity.FeedURLMap{
		Source: src.URL,
		Target: dst.URL,
	}); err != nil {
		return err
	}
	if err := r.Feeds.Delete(ctx, src.ID); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("feed merged",
		slog.Int64("feed_id", src.ID),
		slog.String("url", src.URL),
		slog.Int64("target_feed_id", dst.ID),
		slog.String("target_url", dst.URL),
		slog.Int("moved_user_feeds", movedUsers),
		slog.Int("moved_storys", movedStorys))
	return nil
}

// processStoryImages runs the inline image path for one saved story.
// Refreshes always probe; otherwise only thin stories are worth it since
// fat stories go through readability and detect their images there.
func (s *Service) processStoryImages(ctx context.Context, story *entity.Story, isRefresh bool) {
	if !isRefresh && utf8.RuneCountInString(feedlib.HTMLToText(story.Content)) >= thinStoryTextLength {
		return
	}
	urls := feedlib.StoryImageURLs(story.Link, story.Content)
	logging.FromContext(ctx).Info("story images found",
		slog.Int64("story_id", story.ID),
		slog.String("link", story.Link),
		slog.Int("images", len(urls)))
	if len(urls) == 0 {
		return
	}
	s.hope(ctx, mq.WorkerDetectStoryImages, &mq.DetectStoryImagesPayload{
		StoryID:   story.ID,
		StoryURL:  story.Link,
		ImageURLs: urls,
	})
}

// HandleUpdateStory persists readability-extracted content for one story.
func (s *Service) HandleUpdateStory(ctx context.Context, m *mq.Message) error {
	var p mq.UpdateStoryPayload
	if err := m.Decode(&p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	err := s.Store.Repos().Storys.UpdateContent(ctx, p.StoryID, p.URL, p.Content, p.Summary)
	if errors.Is(err, entity.ErrNotFound) {
		logging.FromContext(ctx).Warn("story not exists", slog.Int64("story_id", p.StoryID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("HandleUpdateStory: %w", err)
	}
	return nil
}

// HandleUpdateStoryImages rewrites referer-denied image URLs in the story
// HTML to their proxied form and persists the result. Probe results that
// are not denied leave the content untouched.
func (s *Service) HandleUpdateStoryImages(ctx context.Context, m *mq.Message) error {
	var p mq.UpdateStoryImagesPayload
	if err := m.Decode(&p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	log := logging.FromContext(ctx)
	replaces := make(map[string]string)
	for _, img := range p.Images {
		metrics.RecordImageProbe(img.Status)
		if feedlib.IsRefererDenyStatus(img.Status) {
			replaces[img.URL] = feedlib.ProxyImageURL(img.URL, p.StoryURL)
		}
	}
	log.Info("story referer deny images",
		slog.Int64("story_id", p.StoryID),
		slog.String("story_url", p.StoryURL),
		slog.Int("probed", len(p.Images)),
		slog.Int("denied", len(replaces)))
	if len(replaces) == 0 {
		return nil
	}

	err := s.Store.InTx(ctx, func(r *repository.Repos) error {
		story, err := r.Storys.Get(ctx, p.StoryID)
		if err != nil {
			return err
		}
		if story == nil {
			log.Warn("story not exists", slog.Int64("story_id", p.StoryID))
			return nil
		}
		refs := feedlib.ParseStoryImages(p.StoryURL, story.Content)
		content := feedlib.RewriteStoryImages(story.Content, refs, replaces)
		return r.Storys.UpdateRewrittenContent(ctx, story.ID, content)
	})
	if err != nil {
		return fmt.Errorf("HandleUpdateStoryImages: %w", err)
	}
	return nil
}

// HandleCheckFeed is the periodic sweep: it takes every feed whose last
// check is older than the jittered window and hopes one sync_feed per feed,
// carrying the stored conditional-GET state. Each message expires at the
// end of the window, so work a worker never got to simply drops and the
// next sweep re-issues it.
func (s *Service) HandleCheckFeed(ctx context.Context, m *mq.Message) error {
	base := s.Cfg.CheckFeedInterval
	outdate := base + time.Duration(rand.Float64()*float64(base)/10)

	feeds, err := s.Store.Repos().Feeds.TakeOutdated(ctx, outdate, s.Cfg.CheckFeedLimit)
	if err != nil {
		return fmt.Errorf("HandleCheckFeed: %w", err)
	}
	logging.FromContext(ctx).Info("found feeds need sync", slog.Int("count", len(feeds)))
	metrics.RecordFeedsChecked(len(feeds))

	expireAt := s.Now().Add(outdate)
	for _, f := range feeds {
		s.hope(ctx, mq.WorkerSyncFeed, &mq.SyncFeedPayload{
			FeedID:            f.FeedID,
			URL:               f.URL,
			ContentHashBase64: f.ContentHashBase64,
			ETag:              f.ETag,
			LastModified:      f.LastModified,
		}, mq.WithExpireAt(expireAt))
	}
	return nil
}

// HandleCleanFeedCreation is the creation janitor: terminal rows past
// their survival age are deleted and stuck rows are reset to PENDING and
// sent back to discovery.
func (s *Service) HandleCleanFeedCreation(ctx context.Context, m *mq.Message) error {
	numDeleted, err := s.Store.Repos().FeedCreations.DeleteTerminalOlderThan(ctx, entity.FeedCreationSurvival)
	if err != nil {
		return fmt.Errorf("HandleCleanFeedCreation: %w", err)
	}
	logging.FromContext(ctx).Info("deleted old feed creations", slog.Int64("count", numDeleted))
	metrics.RecordFeedCreationsCleaned("deleted", int(numDeleted))

	numUpdating, err := s.retryFeedCreations(ctx, entity.StatusUpdating, entity.FeedCreationRetryUpdating)
	if err != nil {
		return fmt.Errorf("HandleCleanFeedCreation: %w", err)
	}
	metrics.RecordFeedCreationsCleaned("retry_updating", numUpdating)

	numPending, err := s.retryFeedCreations(ctx, entity.StatusPending, entity.FeedCreationRetryPending)
	if err != nil {
		return fmt.Errorf("HandleCleanFeedCreation: %w", err)
	}
	metrics.RecordFeedCreationsCleaned("retry_pending", numPending)
	return nil
}

// retryFeedCreations resets creations stuck in status for longer than age
// and re-asks a worker to run discovery. The retry is hoped with a one hour
// deadline; a dropped message is recreated by the next janitor pass.
func (s *Service) retryFeedCreations(ctx context.Context, status entity.FeedStatus, age time.Duration) (int, error) {
	r := s.Store.Repos()
	idURLs, err := r.FeedCreations.QueryIDURLsByStatus(ctx, status, age)
	if err != nil {
		return 0, err
	}
	logging.FromContext(ctx).Info("retry stuck feed creations",
		slog.String("status", string(status)),
		slog.Int("count", len(idURLs)))
	if len(idURLs) == 0 {
		return 0, nil
	}
	ids := make([]int64, 0, len(idURLs))
	for _, cu := range idURLs {
		ids = append(ids, cu.ID)
	}
	if err := r.FeedCreations.BulkSetPending(ctx, ids); err != nil {
		return 0, err
	}
	expireAt := s.Now().Add(time.Hour)
	for _, cu := range idURLs {
		s.hope(ctx, mq.WorkerFindFeed, &mq.FindFeedPayload{
			FeedCreationID: cu.ID,
			URL:            cu.URL,
		}, mq.WithExpireAt(expireAt))
	}
	return len(idURLs), nil
}

// applyFeedPayload copies the non-empty payload fields onto the stored
// feed. Empty fields keep their stored value so a parser that could not
// fill a field never erases what an earlier fetch knew.
func applyFeedPayload(feed *entity.Feed, p *mq.FeedPayload) {
	feed.URL = p.URL
	if p.Title != "" {
		feed.Title = p.Title
	}
	if p.Link != "" {
		feed.Link = p.Link
	}
	if p.Author != "" {
		feed.Author = p.Author
	}
	if p.Icon != "" {
		feed.Icon = p.Icon
	}
	if p.Description != "" {
		feed.Description = p.Description
	}
	if p.Version != "" {
		feed.Version = p.Version
	}
	if p.Encoding != "" {
		feed.Encoding = p.Encoding
	}
	if p.ETag != "" {
		feed.ETag = p.ETag
	}
	if p.LastModified != "" {
		feed.LastModified = p.LastModified
	}
	if p.ContentHashBase64 != "" {
		feed.ContentHashBase64 = p.ContentHashBase64
	}
	if p.DTUpdated != nil {
		feed.UpdatedAt = p.DTUpdated
	}
}

// storysFromPayload converts wire stories to entities, defaulting missing
// timestamps to now so monthly bucketing always has a value to work with.
func storysFromPayload(payloads []mq.StoryPayload, now time.Time) []*entity.Story {
	storys := make([]*entity.Story, 0, len(payloads))
	for i := range payloads {
		p := &payloads[i]
		published, updated := p.DTPublished, p.DTUpdated
		if published == nil {
			published = &now
		}
		if updated == nil {
			updated = &now
		}
		storys = append(storys, &entity.Story{
			UniqueID:          p.UniqueID,
			Title:             p.Title,
			Link:              p.Link,
			Author:            p.Author,
			Content:           p.Content,
			Summary:           p.Summary,
			ContentHashBase64: p.ContentHashBase64,
			PublishedAt:       published,
			UpdatedAt:         updated,
		})
	}
	return storys
}
