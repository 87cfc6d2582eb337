package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/daslan/birdwatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
	closed  bool
}

type fetchResult struct {
	batch domain.RawBatch
	err   error
}

func (s *scriptedSource) FetchBatch(ctx context.Context, _ time.Time) (domain.RawBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.results) == 0 {
		// Script exhausted; block until the driver is stopped.
		s.mu.Unlock()
		<-ctx.Done()
		s.mu.Lock()
		return domain.RawBatch{}, ctx.Err()
	}
	next := s.results[0]
	s.results = s.results[1:]
	return next.batch, next.err
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memoryRepo struct {
	mu    sync.Mutex
	posts map[string]domain.Post
}

func (r *memoryRepo) CreatePost(ctx context.Context, post *domain.Post) error {
	// The real store's ExecContext fails once ctx is done.
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[post.PostID]; ok {
		return domain.ErrDuplicatePost
	}
	r.posts[post.PostID] = *post
	return nil
}

func (r *memoryRepo) FindByPostID(_ context.Context, _ string) (*domain.Post, error) {
	return nil, nil
}

func (r *memoryRepo) ListRecent(_ context.Context, _ int) ([]domain.Post, error) {
	return nil, nil
}

func (r *memoryRepo) LatestCreatedAt(_ context.Context) (time.Time, error) {
	return time.Time{}, nil
}

type staticAuthors struct{}

func (staticAuthors) FindByID(_ context.Context, id string) (*domain.Author, error) {
	return &domain.Author{AuthorID: id, Username: "alice"}, nil
}

func (staticAuthors) FindByUsername(_ context.Context, _ string) (*domain.Author, error) {
	return nil, domain.ErrAuthorNotFound
}

func (staticAuthors) CreateAuthors(_ context.Context, _ []domain.Author) error { return nil }

type countingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *countingBroadcaster) Broadcast(event string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *countingBroadcaster) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

func testBatch(id string) domain.RawBatch {
	return domain.RawBatch{Posts: []domain.RawPost{{
		ID:        id,
		AuthorID:  "a1",
		Text:      "post",
		CreatedAt: time.Now().UTC(),
	}}}
}

func runDriver(t *testing.T, src *scriptedSource, cfg Config) (*memoryRepo, *countingBroadcaster, func()) {
	t.Helper()
	repo := &memoryRepo{posts: make(map[string]domain.Post)}
	broadcaster := &countingBroadcaster{}
	logger := slog.New(slog.DiscardHandler)
	pipeline := domain.NewPipeline(repo, staticAuthors{}, broadcaster, logger)
	d := New(src, pipeline, broadcaster, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, d.Run(ctx))
	}()

	return repo, broadcaster, func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("driver did not stop")
		}
	}
}

func TestDriverProcessesBatchesInStreamingMode(t *testing.T) {
	src := &scriptedSource{results: []fetchResult{
		{batch: testBatch("1")},
		{batch: testBatch("2")},
	}}

	repo, broadcaster, stop := runDriver(t, src, Config{
		Streaming: true,
		Backoff:   10 * time.Millisecond,
	})

	assert.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.posts) == 2
	}, 2*time.Second, 10*time.Millisecond)

	stop()
	assert.Equal(t, []string{domain.EventNewTweets, domain.EventNewTweets}, broadcaster.snapshot())
	assert.True(t, src.closed, "closable source closed on shutdown")
}

func TestDriverRetriesAfterSourceFailure(t *testing.T) {
	src := &scriptedSource{results: []fetchResult{
		{err: fmt.Errorf("dial: %w", domain.ErrSourceUnavailable)},
		{batch: testBatch("1")},
	}}

	repo, broadcaster, stop := runDriver(t, src, Config{
		Streaming: true,
		Backoff:   10 * time.Millisecond,
	})

	assert.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.posts) == 1
	}, 2*time.Second, 10*time.Millisecond)

	stop()
	events := broadcaster.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventStreamError, events[0], "outage surfaced to clients")
	assert.Equal(t, domain.EventNewTweets, events[1])
}

func TestDriverHonorsRateLimitHint(t *testing.T) {
	src := &scriptedSource{results: []fetchResult{
		{err: &domain.RateLimitedError{RetryAfter: 50 * time.Millisecond}},
		{batch: testBatch("1")},
	}}

	start := time.Now()
	repo, _, stop := runDriver(t, src, Config{
		Streaming: true,
		Backoff:   10 * time.Second, // must not be used when a hint exists
	})
	defer stop()

	assert.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.posts) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

// cancelingSource cancels the driver's context and then hands over one last
// batch, mimicking a shutdown signal arriving mid-cycle.
type cancelingSource struct {
	cancel context.CancelFunc

	mu        sync.Mutex
	delivered bool
}

func (s *cancelingSource) FetchBatch(ctx context.Context, _ time.Time) (domain.RawBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delivered {
		return domain.RawBatch{}, ctx.Err()
	}
	s.delivered = true
	s.cancel()
	return testBatch("1"), nil
}

func TestDriverFinishesInFlightBatchOnStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &cancelingSource{cancel: cancel}

	repo := &memoryRepo{posts: make(map[string]domain.Post)}
	broadcaster := &countingBroadcaster{}
	logger := slog.New(slog.DiscardHandler)
	pipeline := domain.NewPipeline(repo, staticAuthors{}, broadcaster, logger)
	d := New(src, pipeline, broadcaster, Config{Streaming: true, Backoff: 10 * time.Millisecond}, logger)

	require.NoError(t, d.Run(ctx))

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Len(t, repo.posts, 1, "batch fetched before the stop must still be persisted")
	assert.Equal(t, []string{domain.EventNewTweets}, broadcaster.snapshot())
}

func TestDriverPollingWaitsBetweenCycles(t *testing.T) {
	src := &scriptedSource{results: []fetchResult{
		{batch: testBatch("1")},
		{batch: testBatch("2")},
		{batch: testBatch("3")},
	}}

	_, _, stop := runDriver(t, src, Config{
		PollInterval: 500 * time.Millisecond,
		Backoff:      10 * time.Millisecond,
	})

	time.Sleep(200 * time.Millisecond)
	stop()

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.LessOrEqual(t, src.calls, 2, "second cycle must wait out the poll interval")
}
