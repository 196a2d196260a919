// Package resilience groups the fault tolerance patterns used around
// external systems: circuit breakers for feed, webpage and image hosts and
// for database health probing, plus retry with exponential backoff for
// message bus delivery.
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.FeedFetchConfig())
//	result, err := cb.Execute(func() (interface{}, error) {
//	    return fetchFeed()
//	})
//
//	err := retry.WithBackoff(ctx, retry.BusPublishConfig(), func() error {
//	    return publishMessage()
//	})
package resilience
