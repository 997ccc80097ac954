// Package ratelimit provides the outbound rate limiting for the gallery downloader.
//
// Every HTTP request issued by the fetch client, whether for a listing page,
// a landing page, a download page or an archive, takes a token from one shared
// TokenBucket. The bucket is a thin wrapper around golang.org/x/time/rate and
// is safe for concurrent use by all pipeline workers.
//
// Usage:
//
//	limiter := ratelimit.NewTokenBucket(60, 5) // 60 requests per minute, burst of 5
//
//	if err := limiter.Wait(ctx); err != nil {
//	    return err // context cancelled
//	}
//	// Proceed with request
package ratelimit
