package metrics

import (
	"strconv"
	"time"

	"feedpipe/internal/feedlib"
)

// RecordMessageSent records one outgoing bus message.
// mode is "tell" or "hope"; result is "ok", "dropped" or "error".
func RecordMessageSent(actor, mode, result string) {
	MessagesSentTotal.WithLabelValues(actor, mode, result).Inc()
}

// RecordMessageHandled records one consumed bus message with its outcome
// ("ok", "error", "expired", "invalid") and handler duration.
func RecordMessageHandled(actor, result string, duration time.Duration) {
	MessagesHandledTotal.WithLabelValues(actor, result).Inc()
	MessageHandleDuration.WithLabelValues(actor).Observe(duration.Seconds())
}

// RecordFetch records one outbound fetch. kind is "feed", "webpage" or
// "image". HTTP statuses are folded into classes to bound cardinality;
// synthetic statuses keep their names.
func RecordFetch(kind string, status int, duration time.Duration, size int) {
	label := feedlib.StatusName(status)
	if status > 0 {
		label = strconv.Itoa(status/100) + "xx"
	}
	FetchesTotal.WithLabelValues(kind, label).Inc()
	FetchDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if size > 0 {
		FetchSize.WithLabelValues(kind).Observe(float64(size))
	}
}

// RecordFeedsChecked records how many feeds one check_feed run scheduled.
func RecordFeedsChecked(count int) {
	FeedsCheckedTotal.Add(float64(count))
}

// RecordStorysSaved records the outcome breakdown of one bulk save.
func RecordStorysSaved(total, modified, reallocated int) {
	if unchanged := total - modified; unchanged > 0 {
		StorysSavedTotal.WithLabelValues("unchanged").Add(float64(unchanged))
	}
	if modified > 0 {
		StorysSavedTotal.WithLabelValues("modified").Add(float64(modified))
	}
	if reallocated > 0 {
		StorysSavedTotal.WithLabelValues("reallocated").Add(float64(reallocated))
	}
}

// RecordFeedCreationsCleaned records one janitor action batch.
func RecordFeedCreationsCleaned(action string, count int) {
	if count > 0 {
		FeedCreationsCleanedTotal.WithLabelValues(action).Add(float64(count))
	}
}

// RecordImageProbe records one story image probe result.
func RecordImageProbe(status int) {
	switch {
	case status == 200:
		ImageProbesTotal.WithLabelValues("ok").Inc()
	case feedlib.IsRefererDenyStatus(status):
		ImageProbesTotal.WithLabelValues("deny").Inc()
	default:
		ImageProbesTotal.WithLabelValues("error").Inc()
	}
}

// RecordDBQuery records the duration of a database query operation.
// Operation should describe the query type (e.g., "take_outdated",
// "bulk_save_storys").
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
