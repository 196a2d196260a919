package feedlib

import (
	"strings"
	"testing"
	"time"

	"feedpipe/internal/domain/entity"
)

func TestIsProductiveFeed(t *testing.T) {
	date := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)
	thisMonth := entity.MonthIDOf(date)

	tests := []struct {
		name   string
		counts entity.MonthlyStoryCount
		date   time.Time
		want   bool
	}{
		{
			name:   "no data means no signal",
			counts: nil,
			date:   date,
			want:   true,
		},
		{
			name:   "daily poster",
			counts: entity.MonthlyStoryCount{thisMonth: 31},
			date:   date,
			want:   true,
		},
		{
			name:   "exactly one story per day",
			counts: entity.MonthlyStoryCount{thisMonth: 30},
			date:   date,
			want:   true,
		},
		{
			name:   "occasional poster",
			counts: entity.MonthlyStoryCount{thisMonth - 1: 1},
			date:   date,
			want:   false,
		},
		{
			name:   "slow feed outside recent months",
			counts: entity.MonthlyStoryCount{thisMonth - 11: 5},
			date:   date,
			want:   false,
		},
		{
			name:   "old burst still counts via the 18 month average",
			counts: entity.MonthlyStoryCount{thisMonth - 11: 90},
			date:   date,
			want:   true,
		},
		{
			name:   "date before epoch",
			counts: entity.MonthlyStoryCount{0: 1},
			date:   time.Date(1969, 6, 1, 0, 0, 0, 0, time.UTC),
			want:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsProductiveFeed(tt.counts, tt.date); got != tt.want {
				t.Errorf("IsProductiveFeed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFulltextStory(t *testing.T) {
	published := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)
	// 月あたり 1 本しか出ない低頻度フィード
	sparse := entity.MonthlyStoryCount{entity.MonthIDOf(published) - 1: 1}

	tests := []struct {
		name   string
		counts entity.MonthlyStoryCount
		story  *entity.Story
		want   bool
	}{
		{
			name:   "empty content is never fulltext",
			counts: nil,
			story:  &entity.Story{Content: "", PublishedAt: &published},
			want:   false,
		},
		{
			name:   "long content",
			counts: sparse,
			story:  &entity.Story{Content: strings.Repeat("a", 2000), PublishedAt: &published},
			want:   true,
		},
		{
			name:   "no publish date",
			counts: sparse,
			story:  &entity.Story{Content: "short"},
			want:   true,
		},
		{
			name:   "productive feed ships full content",
			counts: nil,
			story:  &entity.Story{Content: "short", PublishedAt: &published},
			want:   true,
		},
		{
			name:   "two links",
			counts: sparse,
			story: &entity.Story{
				Content:     `<a href="one">a</a> and <a href="two">b</a>`,
				PublishedAt: &published,
			},
			want: true,
		},
		{
			name:   "three urls",
			counts: sparse,
			story: &entity.Story{
				Content:     "read https://a.example.com https://b.example.com https://c.example.com",
				PublishedAt: &published,
			},
			want: true,
		},
		{
			name:   "one image",
			counts: sparse,
			story: &entity.Story{
				Content:     `text <img src="https://x.example.com/a.png">`,
				PublishedAt: &published,
			},
			want: true,
		},
		{
			name:   "plain short summary",
			counts: sparse,
			story:  &entity.Story{Content: "just a sentence", PublishedAt: &published},
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFulltextStory(tt.counts, tt.story); got != tt.want {
				t.Errorf("IsFulltextStory() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFeedNeedsStoryFetch(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://blog.example.com/feed.xml", true},
		{"https://www.v2ex.com/index.xml", false},
		{"https://news.ycombinator.com/rss", false},
		{"https://github.com/golang/go/releases.atom", false},
		{"https://pypi.org/rss/project/requests/releases.xml", false},
	}
	for _, tt := range tests {
		if got := FeedNeedsStoryFetch(tt.url); got != tt.want {
			t.Errorf("FeedNeedsStoryFetch(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
