package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrAuthorNotFound is returned by AuthorRepository.FindByID when the author
// is not registered. This is an expected outcome: posts from unknown authors
// are dropped, not retried.
var ErrAuthorNotFound = errors.New("author not found")

// ErrDuplicatePost is returned by PostRepository.CreatePost when a post with
// the same post_id already exists. Ingestion treats it as a silent skip.
var ErrDuplicatePost = errors.New("duplicate post")

// ErrSourceUnavailable indicates a transport or auth failure talking to the
// upstream source. The driver handles it by backing off and retrying; it is
// never fatal.
var ErrSourceUnavailable = errors.New("source unavailable")

// RateLimitedError indicates the upstream throttled us. RetryAfter is zero
// when the source gave no hint.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}
