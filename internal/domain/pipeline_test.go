package domain

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePostRepo struct {
	mu    sync.Mutex
	posts map[string]Post
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{posts: make(map[string]Post)}
}

func (r *fakePostRepo) CreatePost(_ context.Context, post *Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[post.PostID]; ok {
		return ErrDuplicatePost
	}
	r.posts[post.PostID] = *post
	return nil
}

func (r *fakePostRepo) FindByPostID(_ context.Context, postID string) (*Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.posts[postID]; ok {
		return &p, nil
	}
	return nil, nil
}

func (r *fakePostRepo) ListRecent(_ context.Context, limit int) ([]Post, error) {
	return nil, nil
}

func (r *fakePostRepo) LatestCreatedAt(_ context.Context) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest time.Time
	for _, p := range r.posts {
		if p.CreatedAt.After(latest) {
			latest = p.CreatedAt
		}
	}
	return latest, nil
}

type fakeAuthorRepo struct {
	mu      sync.Mutex
	authors map[string]Author
	lookups int
}

func (r *fakeAuthorRepo) FindByID(_ context.Context, authorID string) (*Author, error) {
	r.mu.Lock()
	r.lookups++
	r.mu.Unlock()
	if a, ok := r.authors[authorID]; ok {
		return &a, nil
	}
	return nil, ErrAuthorNotFound
}

func (r *fakeAuthorRepo) FindByUsername(_ context.Context, username string) (*Author, error) {
	for _, a := range r.authors {
		if a.Username == username {
			return &a, nil
		}
	}
	return nil, ErrAuthorNotFound
}

func (r *fakeAuthorRepo) CreateAuthors(_ context.Context, _ []Author) error {
	return nil
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
	bodies []any
}

func (b *recordingBroadcaster) Broadcast(event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	b.bodies = append(b.bodies, payload)
}

func testPipeline(t *testing.T) (*Pipeline, *fakePostRepo, *fakeAuthorRepo, *recordingBroadcaster) {
	t.Helper()
	posts := newFakePostRepo()
	authors := &fakeAuthorRepo{authors: map[string]Author{
		"a1": {AuthorID: "a1", Username: "alice", ProfileImageURL: "https://img/alice.jpg"},
		"a2": {AuthorID: "a2", Username: "bob", ProfileImageURL: "https://img/bob.jpg"},
	}}
	broadcaster := &recordingBroadcaster{}
	logger := slog.New(slog.DiscardHandler)
	return NewPipeline(posts, authors, broadcaster, logger), posts, authors, broadcaster
}

func rawPost(id, authorID string) RawPost {
	return RawPost{
		ID:        id,
		AuthorID:  authorID,
		Text:      "post " + id,
		CreatedAt: time.Date(2025, 5, 19, 8, 0, 0, 0, time.UTC),
	}
}

func TestProcessBatchStoresAndPublishes(t *testing.T) {
	p, posts, _, broadcaster := testPipeline(t)

	stored := p.ProcessBatch(context.Background(), RawBatch{
		Posts: []RawPost{rawPost("1", "a1"), rawPost("2", "a2")},
	})

	assert.Len(t, stored, 2)
	assert.Len(t, posts.posts, 2)
	require.Equal(t, []string{EventNewTweets}, broadcaster.events)

	published, ok := broadcaster.bodies[0].([]Post)
	require.True(t, ok)
	assert.Len(t, published, 2)
}

func TestProcessBatchIdempotence(t *testing.T) {
	p, posts, _, _ := testPipeline(t)
	batch := RawBatch{Posts: []RawPost{rawPost("1", "a1")}}

	first := p.ProcessBatch(context.Background(), batch)
	second := p.ProcessBatch(context.Background(), batch)

	assert.Len(t, first, 1)
	assert.Empty(t, second, "second ingestion of the same post is a no-op")
	assert.Len(t, posts.posts, 1)
}

func TestProcessBatchAllowListEnforcement(t *testing.T) {
	p, posts, _, broadcaster := testPipeline(t)

	stored := p.ProcessBatch(context.Background(), RawBatch{
		Posts: []RawPost{rawPost("1", "unknown")},
	})

	assert.Empty(t, stored)
	assert.Empty(t, posts.posts, "unknown author never stored")
	assert.Empty(t, broadcaster.events, "unknown author never published")
}

func TestProcessBatchPublishAtomicity(t *testing.T) {
	p, posts, _, broadcaster := testPipeline(t)

	// Pre-store two posts so they count as duplicates.
	p.ProcessBatch(context.Background(), RawBatch{
		Posts: []RawPost{rawPost("1", "a1"), rawPost("2", "a1")},
	})
	broadcaster.events = nil
	broadcaster.bodies = nil

	// 5 raw posts: 2 duplicates, 1 unknown author, 2 new.
	stored := p.ProcessBatch(context.Background(), RawBatch{
		Posts: []RawPost{
			rawPost("1", "a1"),
			rawPost("2", "a1"),
			rawPost("3", "unknown"),
			rawPost("4", "a1"),
			rawPost("5", "a2"),
		},
	})

	assert.Len(t, stored, 2)
	assert.Len(t, posts.posts, 4, "store gained exactly 2 rows")
	require.Len(t, broadcaster.events, 1, "publish called exactly once")

	published := broadcaster.bodies[0].([]Post)
	assert.Len(t, published, 2)
}

func TestProcessBatchEmptyPublishSkipped(t *testing.T) {
	p, _, _, broadcaster := testPipeline(t)
	batch := RawBatch{Posts: []RawPost{rawPost("1", "a1")}}

	p.ProcessBatch(context.Background(), batch)
	broadcaster.events = nil

	// All duplicates: no publish.
	p.ProcessBatch(context.Background(), batch)
	assert.Empty(t, broadcaster.events)

	// Empty batch: no publish.
	p.ProcessBatch(context.Background(), RawBatch{})
	assert.Empty(t, broadcaster.events)
}

func TestProcessBatchDenormalizesAuthorAndJoinsHashtags(t *testing.T) {
	p, posts, _, _ := testPipeline(t)

	raw := rawPost("1", "a1")
	raw.Text = "RT @bob: gm https://t.co/abc"
	raw.Hashtags = []string{"gm", "crypto"}

	stored := p.ProcessBatch(context.Background(), RawBatch{Posts: []RawPost{raw}})

	require.Len(t, stored, 1)
	got := posts.posts["1"]
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "https://img/alice.jpg", got.ProfileImageURL)
	assert.Equal(t, "gm, crypto", got.Hashtags)
	assert.Equal(t, "gm", got.Text)
}

func TestPipelineCachesAuthorLookups(t *testing.T) {
	p, _, authors, _ := testPipeline(t)

	p.ProcessBatch(context.Background(), RawBatch{Posts: []RawPost{rawPost("1", "a1")}})
	p.ProcessBatch(context.Background(), RawBatch{Posts: []RawPost{rawPost("2", "a1")}})

	assert.Equal(t, 1, authors.lookups, "second lookup served from cache")
}
