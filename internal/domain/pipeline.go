package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// EventNewTweets is the broadcast event carrying newly stored posts. One
// event is emitted per fetch cycle with every post stored in that cycle.
const EventNewTweets = "new-tweets"

// EventStreamError is broadcast when the driver gives up on a source fetch
// so front-end clients can surface the outage.
const EventStreamError = "stream-error"

// Pipeline is the core ingestion service. It takes a raw batch from a Source
// adapter, resolves authors against the allow list, normalizes text, resolves
// media, deduplicates against the store, and broadcasts the stored posts.
type Pipeline struct {
	posts       PostRepository
	authors     AuthorRepository
	broadcaster Broadcaster
	logger      *slog.Logger

	// authorCache avoids a store read per post. Authors are seeded out of
	// band and append-only during a run, so no invalidation is needed.
	cacheMu     sync.RWMutex
	authorCache map[string]*Author
}

// NewPipeline creates a Pipeline over the given ports.
func NewPipeline(posts PostRepository, authors AuthorRepository, broadcaster Broadcaster, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		posts:       posts,
		authors:     authors,
		broadcaster: broadcaster,
		logger:      logger,
		authorCache: make(map[string]*Author),
	}
}

// ProcessBatch ingests every post in the batch and broadcasts the ones that
// were newly stored. Posts are processed concurrently; the broadcast waits
// for every per-post decision so the emitted batch is complete. A batch
// where every post is a duplicate or drop emits nothing.
//
// Per-post failures are logged and never abort processing of sibling posts.
func (p *Pipeline) ProcessBatch(ctx context.Context, batch RawBatch) []Post {
	if len(batch.Posts) == 0 {
		return nil
	}

	var (
		mu     sync.Mutex
		stored []Post
		wg     sync.WaitGroup
	)

	for _, raw := range batch.Posts {
		wg.Add(1)
		go func(raw RawPost) {
			defer wg.Done()
			post, err := p.processPost(ctx, raw, batch.Media)
			if err != nil {
				p.logger.Error("failed to process post", "post_id", raw.ID, "error", err)
				return
			}
			if post == nil {
				return
			}
			mu.Lock()
			stored = append(stored, *post)
			mu.Unlock()
		}(raw)
	}
	wg.Wait()

	if len(stored) > 0 {
		p.broadcaster.Broadcast(EventNewTweets, stored)
		p.logger.Info("batch processed", "received", len(batch.Posts), "stored", len(stored))
	}

	return stored
}

// processPost runs one post through the full pipeline. It returns nil, nil
// for the expected drop cases (unknown author, duplicate).
func (p *Pipeline) processPost(ctx context.Context, raw RawPost, includes []RawMedia) (*Post, error) {
	author, err := p.resolveAuthor(ctx, raw.AuthorID)
	if errors.Is(err, ErrAuthorNotFound) {
		p.logger.Info("author not registered, dropping post", "author_id", raw.AuthorID, "post_id", raw.ID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve author %s: %w", raw.AuthorID, err)
	}

	media, hasVideo := ExtractMedia(raw, includes)

	post := &Post{
		PostID:          raw.ID,
		AuthorID:        raw.AuthorID,
		Text:            NormalizeText(raw.Text, raw.ID),
		Username:        author.Username,
		Media:           media,
		Hashtags:        strings.Join(raw.Hashtags, ", "),
		ProfileImageURL: author.ProfileImageURL,
		RetweetCount:    raw.RetweetCount,
		LikeCount:       raw.LikeCount,
		ReplyCount:      raw.ReplyCount,
		QuoteCount:      raw.QuoteCount,
		HasVideo:        hasVideo,
		CreatedAt:       raw.CreatedAt,
	}

	if err := p.posts.CreatePost(ctx, post); err != nil {
		if errors.Is(err, ErrDuplicatePost) {
			p.logger.Debug("duplicate post, skipping", "post_id", raw.ID)
			return nil, nil
		}
		return nil, fmt.Errorf("create post %s: %w", raw.ID, err)
	}

	p.logger.Info("stored post", "post_id", post.PostID, "username", post.Username)
	return post, nil
}

// Watermark returns the lower-bound cursor for polling: the creation time of
// the most recent stored post, or the zero time when the store is empty.
func (p *Pipeline) Watermark(ctx context.Context) (time.Time, error) {
	latest, err := p.posts.LatestCreatedAt(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest created_at: %w", err)
	}
	return latest, nil
}

func (p *Pipeline) resolveAuthor(ctx context.Context, authorID string) (*Author, error) {
	p.cacheMu.RLock()
	cached, ok := p.authorCache[authorID]
	p.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	author, err := p.authors.FindByID(ctx, authorID)
	if err != nil {
		return nil, err
	}

	p.cacheMu.Lock()
	p.authorCache[authorID] = author
	p.cacheMu.Unlock()
	return author, nil
}
