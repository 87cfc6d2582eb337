package domain

import (
	"context"
	"time"
)

// PostRepository defines persistence operations for ingested posts.
type PostRepository interface {
	// CreatePost inserts a new post. Returns ErrDuplicatePost if a post
	// with the same PostID already exists; the store's uniqueness
	// constraint makes this safe under concurrent ingestion of the same
	// post from two sources.
	CreatePost(ctx context.Context, post *Post) error

	// FindByPostID retrieves a post by its source identifier. Returns
	// nil, nil when no such post exists.
	FindByPostID(ctx context.Context, postID string) (*Post, error)

	// ListRecent retrieves up to limit posts ordered by creation time
	// descending.
	ListRecent(ctx context.Context, limit int) ([]Post, error)

	// LatestCreatedAt returns the creation time of the most recent stored
	// post, used as the polling watermark. Returns the zero time when the
	// store is empty.
	LatestCreatedAt(ctx context.Context) (time.Time, error)
}

// AuthorRepository defines lookups against the tracked-account allow list.
// The pipeline only reads authors; writes happen through the out-of-band
// seeding tool.
type AuthorRepository interface {
	// FindByID retrieves an author by source identifier. Returns
	// ErrAuthorNotFound when the author is not registered.
	FindByID(ctx context.Context, authorID string) (*Author, error)

	// FindByUsername retrieves an author by username. Returns
	// ErrAuthorNotFound when the author is not registered.
	FindByUsername(ctx context.Context, username string) (*Author, error)

	// CreateAuthors inserts the given authors, skipping any whose
	// author_id already exists.
	CreateAuthors(ctx context.Context, authors []Author) error
}

// Source fetches one batch of raw posts plus the media side-table needed to
// resolve their attachments. since is a lower-bound watermark; sources that
// cannot filter by time may ignore it.
type Source interface {
	FetchBatch(ctx context.Context, since time.Time) (RawBatch, error)
}

// Broadcaster delivers an event to all currently connected subscribers.
// Delivery is best-effort and at-most-once; subscribers that connect later
// do not receive past events.
type Broadcaster interface {
	Broadcast(event string, payload any)
}
