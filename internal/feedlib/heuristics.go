package feedlib

import (
	"time"
	"unicode/utf8"

	"feedpipe/internal/domain/entity"
)

// fulltextContentLength is the content size above which a story is assumed
// to be full text regardless of any other signal.
const fulltextContentLength = 2000

// IsProductiveFeed classifies news-like feeds: sites averaging at least one
// story per day over a recent window. Productive feeds are assumed to ship
// full content in the feed itself, so their stories skip webpage fetching.
//
// The window is the 18 months ending at date's month, clamped at month id 0.
// An all-zero window means no signal and counts as productive.
func IsProductiveFeed(counts entity.MonthlyStoryCount, date time.Time) bool {
	year := date.Year()
	if year < 1970 || year > 9999 {
		return true
	}
	monthID := entity.MonthID(year, int(date.Month()))
	var window [18]int
	for i := 0; i < 18; i++ {
		id := monthID - i
		if id < 0 {
			id = 0
		}
		window[17-i] = counts.Get(id)
	}
	total := 0
	for _, c := range window {
		total += c
	}
	if total <= 0 {
		return true
	}
	max3m := 0
	for _, c := range window[15:] {
		if c > max3m {
			max3m = c
		}
	}
	freq3m := float64(max3m) / 30
	sumNonZero, numNonZero := 0, 0
	for _, c := range window {
		if c > 0 {
			sumNonZero += c
			numNonZero++
		}
	}
	freq18m := float64(sumNonZero) / float64(numNonZero) / 30
	freq := freq3m
	if freq18m > freq {
		freq = freq18m
	}
	return freq >= 1
}

// IsFulltextStory detects whether the full content is already in the feed
// entry, in which case fetching the story webpage is wasted work.
//
// see also: https://github.com/pictuga/morss/issues/27
func IsFulltextStory(counts entity.MonthlyStoryCount, story *entity.Story) bool {
	if story.Content == "" {
		return false
	}
	if utf8.RuneCountInString(story.Content) >= fulltextContentLength {
		return true
	}
	if story.PublishedAt == nil {
		return true
	}
	if IsProductiveFeed(counts, *story.PublishedAt) {
		return true
	}
	if CountLinks(story.Content) >= 2 {
		return true
	}
	if CountURLs(story.Content) >= 3 {
		return true
	}
	if CountImages(story.Content) >= 1 {
		return true
	}
	return false
}

// FeedNeedsStoryFetch reports whether stories of this feed should have
// their webpages fetched at all. Known full-content hosts are excluded.
func FeedNeedsStoryFetch(feedURL string) bool {
	checkers := []func(string) bool{IsV2EX, IsHackerNews, IsGitHub, IsPyPI}
	for _, check := range checkers {
		if check(feedURL) {
			return false
		}
	}
	return true
}
