// Package retry provides backoff and retry logic for transient fetch failures.
//
// Features:
//   - Exponential (with jitter) and constant backoff strategies
//   - Context support for cancellation
//   - Configurable retry predicates
//   - A default predicate that retries only retryable fetch errors: network
//     failures, 408, 429 and 5xx responses
//
// Basic usage:
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		return fetchListing(ctx, url)
//	}, nil)
//
//	// From the configuration file
//	cfg := retry.FromSettings(conf.Retry, logger.GetLogger())
//	doc, err := retry.DoWithResult(ctx, fetchDocument, cfg)
//
// Parse errors, 404s and other permanent failures are returned after the
// first attempt.
package retry
