package worker_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/mmcdole/gofeed"

	"feedpipe/internal/domain/entity"
	"feedpipe/internal/feedlib"
	"feedpipe/internal/infra/feedclient"
	"feedpipe/internal/infra/feedfinder"
	"feedpipe/internal/mq"
	"feedpipe/internal/usecase/worker"
)

/* ───────── モック実装 ───────── */

type sentMessage struct {
	name    string
	payload any
}

type stubBus struct {
	mu      sync.Mutex
	sent    []sentMessage
	tellErr error
}

func (b *stubBus) Tell(ctx context.Context, name string, payload any, opts ...mq.SendOption) error {
	if b.tellErr != nil {
		return b.tellErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentMessage{name: name, payload: payload})
	return nil
}

// 以下は未使用だが、インターフェース満たすために実装
func (b *stubBus) Hope(ctx context.Context, name string, payload any, opts ...mq.SendOption) error {
	return b.Tell(ctx, name, payload, opts...)
}

func (b *stubBus) byName(name string) []sentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sentMessage
	for _, m := range b.sent {
		if m.name == name {
			out = append(out, m)
		}
	}
	return out
}

func (b *stubBus) total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

type readCall struct {
	url string
	opt feedclient.ReadOptions
}

// stubReader answers fetches from canned responses. Read never returns a
// nil response, matching the real client contract.
type stubReader struct {
	mu    sync.Mutex
	calls []readCall

	resp  *feedclient.Response
	byURL map[string]*feedclient.Response
	err   error
}

func (r *stubReader) Read(ctx context.Context, rawURL string, opt feedclient.ReadOptions) (*feedclient.Response, error) {
	r.mu.Lock()
	r.calls = append(r.calls, readCall{url: rawURL, opt: opt})
	r.mu.Unlock()
	if resp, ok := r.byURL[rawURL]; ok {
		return resp, r.err
	}
	if r.resp != nil {
		return r.resp, r.err
	}
	return &feedclient.Response{Status: feedlib.StatusUnknownError}, r.err
}

func (r *stubReader) calledURLs() map[string]readCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]readCall, len(r.calls))
	for _, c := range r.calls {
		out[c.url] = c
	}
	return out
}

type stubFinder struct {
	found    *feedfinder.FoundFeed
	messages []string
	calls    []string
}

func (f *stubFinder) Find(ctx context.Context, rawURL string) (*feedfinder.FoundFeed, []string) {
	f.calls = append(f.calls, rawURL)
	return f.found, f.messages
}

/* ───────── テストハーネス ───────── */

type harness struct {
	bus    *stubBus
	finder *stubFinder
	feeds  *stubReader
	pages  *stubReader
	images *stubReader
	svc    *worker.Service
}

func newHarness() *harness {
	h := &harness{
		bus:    &stubBus{},
		finder: &stubFinder{},
		feeds:  &stubReader{},
		pages:  &stubReader{},
		images: &stubReader{},
	}
	h.svc = worker.NewService(h.bus, h.finder, h.feeds, h.pages, h.images, worker.Config{
		ProbeReferer: "https://reader.example.com/story/",
	})
	return h
}

func message(t *testing.T, name string, payload any) *mq.Message {
	t.Helper()
	m, err := mq.NewMessage(name, payload)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	return m
}

/* ───────── HandleFindFeed ───────── */

func TestHandleFindFeed_Found(t *testing.T) {
	h := newHarness()
	h.finder.found = &feedfinder.FoundFeed{
		Parsed: &gofeed.Feed{
			Title:       "Example Blog",
			FeedType:    "rss",
			FeedVersion: "2.0",
			Items: []*gofeed.Item{
				{GUID: "p1", Title: "Post 1", Link: "https://blog.example.com/p/1", Description: "first post"},
			},
		},
		Response: &feedclient.Response{
			URL:  "https://blog.example.com/feed.xml",
			Body: []byte("<rss/>"),
			ETag: `W/"x1"`,
		},
	}
	h.finder.messages = []string{"start feed discovery", "found feed"}

	m := message(t, mq.WorkerFindFeed, &mq.FindFeedPayload{FeedCreationID: 10, URL: "https://blog.example.com/"})
	if err := h.svc.HandleFindFeed(context.Background(), m); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if len(h.finder.calls) != 1 || h.finder.calls[0] != "https://blog.example.com/" {
		t.Errorf("finder calls = %v", h.finder.calls)
	}

	// 先に UPDATING 遷移、次に結果報告
	status := h.bus.byName(mq.HarborUpdateFeedCreationStatus)
	if len(status) != 1 {
		t.Fatalf("status messages = %d, want 1", len(status))
	}
	sp := status[0].payload.(*mq.UpdateFeedCreationStatusPayload)
	if sp.FeedCreationID != 10 || sp.Status != entity.StatusUpdating {
		t.Errorf("status payload = %+v", sp)
	}

	saves := h.bus.byName(mq.HarborSaveFeedCreationResult)
	if len(saves) != 1 {
		t.Fatalf("save messages = %d, want 1", len(saves))
	}
	save := saves[0].payload.(*mq.SaveFeedCreationResultPayload)
	if save.FeedCreationID != 10 || save.Feed == nil {
		t.Fatalf("save payload = %+v", save)
	}
	if save.Feed.URL != "https://blog.example.com/feed.xml" {
		t.Errorf("feed url = %q, want canonical response url", save.Feed.URL)
	}
	if save.Feed.Title != "Example Blog" || save.Feed.ETag != `W/"x1"` {
		t.Errorf("feed = %+v", save.Feed)
	}
	if len(save.Feed.Storys) != 1 || save.Feed.Storys[0].UniqueID != "p1" {
		t.Errorf("storys = %+v", save.Feed.Storys)
	}
	if diff := cmp.Diff([]string{"start feed discovery", "found feed"}, save.Messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleFindFeed_NotFound(t *testing.T) {
	h := newHarness()
	h.finder.messages = []string{"start feed discovery", "no feed found"}

	m := message(t, mq.WorkerFindFeed, &mq.FindFeedPayload{FeedCreationID: 10, URL: "https://nowhere.example.com/"})
	if err := h.svc.HandleFindFeed(context.Background(), m); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	saves := h.bus.byName(mq.HarborSaveFeedCreationResult)
	if len(saves) != 1 {
		t.Fatalf("save messages = %d, want 1", len(saves))
	}
	save := saves[0].payload.(*mq.SaveFeedCreationResultPayload)
	if save.Feed != nil {
		t.Errorf("save.Feed = %+v, want nil", save.Feed)
	}
	if diff := cmp.Diff([]string{"start feed discovery", "no feed found"}, save.Messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleFindFeed_UnprocessableFeed(t *testing.T) {
	h := newHarness()
	// 最終URLが壊れていると正規化に失敗する。失敗は発見ログに載せて
	// フィード無しとして報告する。
	h.finder.found = &feedfinder.FoundFeed{
		Parsed:   &gofeed.Feed{Title: "Broken"},
		Response: &feedclient.Response{URL: "not-a-url", Body: []byte("<rss/>")},
	}
	h.finder.messages = []string{"start feed discovery"}

	m := message(t, mq.WorkerFindFeed, &mq.FindFeedPayload{FeedCreationID: 10, URL: "https://blog.example.com/"})
	if err := h.svc.HandleFindFeed(context.Background(), m); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	save := h.bus.byName(mq.HarborSaveFeedCreationResult)[0].payload.(*mq.SaveFeedCreationResultPayload)
	if save.Feed != nil {
		t.Errorf("save.Feed = %+v, want nil", save.Feed)
	}
	last := save.Messages[len(save.Messages)-1]
	if !strings.Contains(last, "could not be processed") {
		t.Errorf("last message = %q", last)
	}
}

func TestHandleFindFeed_TellFailure(t *testing.T) {
	h := newHarness()
	h.bus.tellErr = errors.New("bus down")

	// ワーカー側の送信失敗はハンドラーごと失敗させて再配達に任せる。
	m := message(t, mq.WorkerFindFeed, &mq.FindFeedPayload{FeedCreationID: 10, URL: "https://blog.example.com/"})
	if err := h.svc.HandleFindFeed(context.Background(), m); err == nil {
		t.Error("handler expected error when the report cannot be sent")
	}
}

/* ───────── HandleSyncFeed ───────── */

const syncFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Blog</title>
    <link>https://blog.example.com/</link>
    <item>
      <guid>p1</guid>
      <title>Post 1</title>
      <link>https://blog.example.com/p/1</link>
      <description>first post</description>
    </item>
  </channel>
</rss>`

func TestHandleSyncFeed_FreshContent(t *testing.T) {
	h := newHarness()
	h.feeds.resp = &feedclient.Response{
		Status:       200,
		URL:          "https://blog.example.com/feed",
		Body:         []byte(syncFeedXML),
		ETag:         `W/"fresh"`,
		LastModified: "Tue, 13 Jun 2023 00:00:00 GMT",
		Encoding:     "utf-8",
	}

	m := message(t, mq.WorkerSyncFeed, &mq.SyncFeedPayload{
		FeedID:            1,
		URL:               "https://blog.example.com/feed",
		ContentHashBase64: "stale-hash",
		ETag:              `W/"old"`,
		LastModified:      "Mon, 12 Jun 2023 00:00:00 GMT",
	})
	if err := h.svc.HandleSyncFeed(context.Background(), m); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	// 条件付きGETの状態はそのままリーダーへ渡る
	if len(h.feeds.calls) != 1 {
		t.Fatalf("reads = %d, want 1", len(h.feeds.calls))
	}
	opt := h.feeds.calls[0].opt
	if opt.ETag != `W/"old"` || opt.LastModified != "Mon, 12 Jun 2023 00:00:00 GMT" {
		t.Errorf("read options = %+v", opt)
	}

	updates := h.bus.byName(mq.HarborUpdateFeed)
	if len(updates) != 1 {
		t.Fatalf("update_feed messages = %d, want 1", len(updates))
	}
	up := updates[0].payload.(*mq.UpdateFeedPayload)
	if up.FeedID != 1 || up.Feed == nil {
		t.Fatalf("update payload = %+v", up)
	}
	if up.Feed.Title != "Example Blog" || up.Feed.URL != "https://blog.example.com/feed" {
		t.Errorf("feed = %+v", up.Feed)
	}
	if up.Feed.ETag != `W/"fresh"` || up.Feed.Encoding != "utf-8" {
		t.Errorf("conditional state = %q / %q", up.Feed.ETag, up.Feed.Encoding)
	}
	if want := feedlib.ContentHashBase64([]byte(syncFeedXML)); up.Feed.ContentHashBase64 != want {
		t.Errorf("content hash = %q, want %q", up.Feed.ContentHashBase64, want)
	}
	if len(up.Feed.Storys) != 1 || up.Feed.Storys[0].UniqueID != "p1" {
		t.Errorf("storys = %+v", up.Feed.Storys)
	}
}

func TestHandleSyncFeed_NotModified(t *testing.T) {
	h := newHarness()
	h.feeds.resp = &feedclient.Response{Status: 304, URL: "https://blog.example.com/feed"}

	m := message(t, mq.WorkerSyncFeed, &mq.SyncFeedPayload{FeedID: 1, URL: "https://blog.example.com/feed"})
	if err := h.svc.HandleSyncFeed(context.Background(), m); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if h.bus.total() != 0 {
		t.Errorf("messages = %d, want 0", h.bus.total())
	}
}

func TestHandleSyncFeed_SameContentHash(t *testing.T) {
	h := newHarness()
	h.feeds.resp = &feedclient.Response{
		Status: 200,
		URL:    "https://blog.example.com/feed",
		Body:   []byte(syncFeedXML),
	}

	// ETagを返さないサーバーでも、本文が同じなら取り込まない
	m := message(t, mq.WorkerSyncFeed, &mq.SyncFeedPayload{
		FeedID:            1,
		URL:               "https://blog.example.com/feed",
		ContentHashBase64: feedlib.ContentHashBase64([]byte(syncFeedXML)),
	})
	if err := h.svc.HandleSyncFeed(context.Background(), m); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if h.bus.total() != 0 {
		t.Errorf("messages = %d, want 0", h.bus.total())
	}
}

func TestHandleSyncFeed_UnparseableBody(t *testing.T) {
	h := newHarness()
	h.feeds.resp = &feedclient.Response{
		Status: 200,
		URL:    "https://blog.example.com/feed",
		Body:   []byte("this is not a feed"),
	}

	m := message(t, mq.WorkerSyncFeed, &mq.SyncFeedPayload{FeedID: 1, URL: "https://blog.example.com/feed"})
	if err := h.svc.HandleSyncFeed(context.Background(), m); err != nil {
		t.Fatalf("handler error = %v, want nil (sweep retries)", err)
	}
	if h.bus.total() != 0 {
		t.Errorf("messages = %d, want 0", h.bus.total())
	}
}

func TestHandleSyncFeed_TransportError(t *testing.T) {
	h := newHarness()
	h.feeds.resp = &feedclient.Response{Status: feedlib.StatusConnectionTimeout}
	h.feeds.err = errors.New("dial tcp: timeout")

	m := message(t, mq.WorkerSyncFeed, &mq.SyncFeedPayload{FeedID: 1, URL: "https://blog.example.com/feed"})
	if err := h.svc.HandleSyncFeed(context.Background(), m); err != nil {
		t.Fatalf("handler error = %v, want nil (sweep retries)", err)
	}
	if h.bus.total() != 0 {
		t.Errorf("messages = %d, want 0", h.bus.total())
	}
}

func TestHandleSyncFeed_BadPayload(t *testing.T) {
	h := newHarness()
	m := &mq.Message{Name: mq.WorkerSyncFeed, Payload: []byte(`{broken`)}
	if err := h.svc.HandleSyncFeed(context.Background(), m); !errors.Is(err, mq.ErrInvalidPayload) {
		t.Errorf("handler = %v, want ErrInvalidPayload", err)
	}
	if len(h.feeds.calls) != 0 {
		t.Error("reader must not be called for a broken payload")
	}
}

/* ───────── HandleFetchStory ───────── */

func TestHandleFetchStory_FollowsRedirect(t *testing.T) {
	h := newHarness()
	h.pages.resp = &feedclient.Response{
		Status: 200,
		URL:    "https://blog.example.com/p/1-final",
		Body:   []byte("<html><body>page</body></html>"),
	}

	m := message(t, mq.WorkerFetchStory, &mq.FetchStoryPayload{
		StoryID: entity.StoryID(1, 0),
		URL:     "https://blog.example.com/p/1",
	})
	if err := h.svc.HandleFetchStory(context.Background(), m); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	sends := h.bus.byName(mq.WorkerProcessStoryWebpage)
	if len(sends) != 1 {
		t.Fatalf("process_story_webpage messages = %d, want 1", len(sends))
	}
	p := sends[0].payload.(*mq.ProcessStoryWebpagePayload)
	if p.StoryID != entity.StoryID(1, 0) {
		t.Errorf("story id = %d", p.StoryID)
	}
	if p.URL != "https://blog.example.com/p/1-final" {
		t.Errorf("url = %q, want the redirected final url", p.URL)
	}
	if p.Text != "<html><body>page</body></html>" {
		t.Errorf("text = %q", p.Text)
	}
}

func TestHandleFetchStory_FetchFailed(t *testing.T) {
	h := newHarness()
	h.pages.resp = &feedclient.Response{Status: 404, URL: "https://blog.example.com/p/1"}

	m := message(t, mq.WorkerFetchStory, &mq.FetchStoryPayload{
		StoryID: entity.StoryID(1, 0),
		URL:     "https://blog.example.com/p/1",
	})
	if err := h.svc.HandleFetchStory(context.Background(), m); err != nil {
		t.Fatalf("handler error = %v, want nil", err)
	}
	if h.bus.total() != 0 {
		t.Errorf("messages = %d, want 0", h.bus.total())
	}
}

/* ───────── HandleProcessStoryWebpage ───────── */

func articleHTML() string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html><html><head><title>Post 1</title></head><body><article>")
	for i := 0; i < 12; i++ {
		sb.WriteString("<p>Stories about distributed pipelines tend to grow past their first design. ")
		sb.WriteString(strings.Repeat("The fetch loop hands each document to a parser, the parser emits entries, and the store folds them in. ", 3))
		sb.WriteString("</p>")
	}
	sb.WriteString("</article></body></html>")
	return sb.String()
}

func TestHandleProcessStoryWebpage(t *testing.T) {
	h := newHarness()
	m := message(t, mq.WorkerProcessStoryWebpage, &mq.ProcessStoryWebpagePayload{
		StoryID: entity.StoryID(1, 0),
		URL:     "https://blog.example.com/p/1",
		Text:    articleHTML(),
	})
	if err := h.svc.HandleProcessStoryWebpage(context.Background(), m); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	// 画像のないページは update_story 一通だけ
	if h.bus.total() != 1 {
		t.Fatalf("messages = %d, want 1", h.bus.total())
	}
	sends := h.bus.byName(mq.HarborUpdateStory)
	if len(sends) != 1 {
		t.Fatalf("update_story messages = %d, want 1", len(sends))
	}
	p := sends[0].payload.(*mq.UpdateStoryPayload)
	if p.StoryID != entity.StoryID(1, 0) || p.URL != "https://blog.example.com/p/1" {
		t.Errorf("payload = %+v", p)
	}
	if p.Content == "" {
		t.Error("extracted content is empty")
	}
	if p.Summary == "" || utf8.RuneCountInString(p.Summary) > 300 {
		t.Errorf("summary = %q (%d runes)", p.Summary, utf8.RuneCountInString(p.Summary))
	}
	if !strings.Contains(p.Summary, "distributed pipelines") {
		t.Errorf("summary = %q, want article text", p.Summary)
	}
}

func TestHandleProcessStoryWebpage_NoContent(t *testing.T) {
	h := newHarness()
	m := message(t, mq.WorkerProcessStoryWebpage, &mq.ProcessStoryWebpagePayload{
		StoryID: entity.StoryID(1, 0),
		URL:     "https://blog.example.com/p/1",
		Text:    "<html><body></body></html>",
	})
	if err := h.svc.HandleProcessStoryWebpage(context.Background(), m); err != nil {
		t.Fatalf("handler error = %v, want nil for an empty page", err)
	}
	if h.bus.total() != 0 {
		t.Errorf("messages = %d, want 0", h.bus.total())
	}
}

/* ───────── HandleDetectStoryImages ───────── */

func TestHandleDetectStoryImages(t *testing.T) {
	h := newHarness()
	h.images.byURL = map[string]*feedclient.Response{
		"https://cdn.example.com/a.png": {Status: 200},
		"https://cdn.example.com/b.png": {Status: 404},
	}

	m := message(t, mq.WorkerDetectStoryImages, &mq.DetectStoryImagesPayload{
		StoryID:  entity.StoryID(1, 0),
		StoryURL: "https://blog.example.com/p/1",
		ImageURLs: []string{
			"https://mmbiz.qpic.cn/a.jpg",
			"https://cdn.example.com/a.png",
			"https://cdn.example.com/b.png",
		},
	})
	if err := h.svc.HandleDetectStoryImages(context.Background(), m); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	// リファラー拒否ホストはリクエストせずに確定する
	called := h.images.calledURLs()
	if len(called) != 2 {
		t.Fatalf("probed urls = %v, want 2", called)
	}
	if _, ok := called["https://mmbiz.qpic.cn/a.jpg"]; ok {
		t.Error("referer-deny host must be short-circuited")
	}
	for url, call := range called {
		if call.opt.Referer != "https://reader.example.com/story/" {
			t.Errorf("probe %s referer = %q", url, call.opt.Referer)
		}
		if !call.opt.IgnoreContent {
			t.Errorf("probe %s must ignore content", url)
		}
	}

	sends := h.bus.byName(mq.HarborUpdateStoryImages)
	if len(sends) != 1 {
		t.Fatalf("update_story_images messages = %d, want 1", len(sends))
	}
	p := sends[0].payload.(*mq.UpdateStoryImagesPayload)
	if p.StoryID != entity.StoryID(1, 0) || p.StoryURL != "https://blog.example.com/p/1" {
		t.Errorf("payload = %+v", p)
	}
	want := []mq.ImageStatus{
		{URL: "https://mmbiz.qpic.cn/a.jpg", Status: feedlib.StatusRefererDeny},
		{URL: "https://cdn.example.com/a.png", Status: 200},
		{URL: "https://cdn.example.com/b.png", Status: 404},
	}
	if diff := cmp.Diff(want, p.Images); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

// slowReader hangs until the probe deadline for the listed URLs, the way a
// stalled image host would, and answers the rest from canned responses.
type slowReader struct {
	stubReader
	slow map[string]bool
}

func (r *slowReader) Read(ctx context.Context, rawURL string, opt feedclient.ReadOptions) (*feedclient.Response, error) {
	if r.slow[rawURL] {
		<-ctx.Done()
		return &feedclient.Response{Status: feedlib.StatusConnectionTimeout, URL: rawURL}, ctx.Err()
	}
	return r.stubReader.Read(ctx, rawURL, opt)
}

func TestHandleDetectStoryImages_PartialTimeout(t *testing.T) {
	h := newHarness()
	slow := &slowReader{slow: map[string]bool{
		"https://slow.example.com/a.png": true,
		"https://slow.example.com/b.png": true,
	}}
	slow.byURL = map[string]*feedclient.Response{
		"https://cdn.example.com/1.png": {Status: 200},
		"https://cdn.example.com/2.png": {Status: 200},
		"https://cdn.example.com/3.png": {Status: 200},
	}
	h.svc.ImageReader = slow
	h.svc.Cfg.ProbeTimeout = 50 * time.Millisecond

	m := message(t, mq.WorkerDetectStoryImages, &mq.DetectStoryImagesPayload{
		StoryID:  entity.StoryID(1, 0),
		StoryURL: "https://blog.example.com/p/1",
		ImageURLs: []string{
			"https://cdn.example.com/1.png",
			"https://slow.example.com/a.png",
			"https://cdn.example.com/2.png",
			"https://slow.example.com/b.png",
			"https://cdn.example.com/3.png",
		},
	})
	if err := h.svc.HandleDetectStoryImages(context.Background(), m); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	// 期限切れでも完了した分は捨てず、全URL分の結果を1通で報告する
	sends := h.bus.byName(mq.HarborUpdateStoryImages)
	if len(sends) != 1 {
		t.Fatalf("update_story_images messages = %d, want 1", len(sends))
	}
	p := sends[0].payload.(*mq.UpdateStoryImagesPayload)
	if len(p.Images) != 5 {
		t.Fatalf("results = %d, want all 5", len(p.Images))
	}
	for _, img := range p.Images {
		stalled := strings.HasPrefix(img.URL, "https://slow.")
		if stalled && img.Status == 200 {
			t.Errorf("%s: timed-out probe must carry a non-200 status", img.URL)
		}
		if !stalled && img.Status != 200 {
			t.Errorf("%s: status = %s", img.URL, feedlib.StatusName(img.Status))
		}
	}
}

func TestHandleDetectStoryImages_TellFailure(t *testing.T) {
	h := newHarness()
	h.bus.tellErr = errors.New("bus down")
	h.images.resp = &feedclient.Response{Status: 200}

	m := message(t, mq.WorkerDetectStoryImages, &mq.DetectStoryImagesPayload{
		StoryID:   entity.StoryID(1, 0),
		StoryURL:  "https://blog.example.com/p/1",
		ImageURLs: []string{"https://cdn.example.com/a.png"},
	})
	if err := h.svc.HandleDetectStoryImages(context.Background(), m); err == nil {
		t.Error("handler expected error when the report cannot be sent")
	}
}
