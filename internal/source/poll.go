package source

import (
	"context"
	"time"

	"github.com/daslan/birdwatch/internal/domain"
	"github.com/daslan/birdwatch/internal/twitter"
)

// PollSource fetches tweets from a list on demand. The driver passes the
// most recent stored post's creation time as the since watermark so repeated
// polls only return new tweets.
type PollSource struct {
	client *twitter.Client
	listID string
}

// NewPollSource creates a polling Source over the given list.
func NewPollSource(client *twitter.Client, listID string) *PollSource {
	return &PollSource{client: client, listID: listID}
}

// FetchBatch retrieves one page of list tweets newer than since.
func (s *PollSource) FetchBatch(ctx context.Context, since time.Time) (domain.RawBatch, error) {
	page, err := s.client.ListTweets(ctx, s.listID, since)
	if err != nil {
		return domain.RawBatch{}, err
	}
	return toRawBatch(page.Tweets, page.Includes), nil
}
