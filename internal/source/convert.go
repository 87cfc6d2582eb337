// Package source provides the three Source adapters (poll, stream, scrape)
// that normalize upstream payloads into domain raw batches.
package source

import (
	"github.com/daslan/birdwatch/internal/domain"
	"github.com/daslan/birdwatch/internal/twitter"
)

// toRawBatch normalizes API wire tweets and their includes side-table into
// the source-agnostic batch shape the pipeline consumes.
func toRawBatch(tweets []twitter.Tweet, includes twitter.Includes) domain.RawBatch {
	batch := domain.RawBatch{
		Posts: make([]domain.RawPost, 0, len(tweets)),
		Media: make([]domain.RawMedia, 0, len(includes.Media)),
	}

	for _, t := range tweets {
		raw := domain.RawPost{
			ID:        t.ID,
			AuthorID:  t.AuthorID,
			Text:      t.Text,
			CreatedAt: t.CreatedAt,
		}
		if t.Attachments != nil {
			raw.MediaKeys = t.Attachments.MediaKeys
		}
		if t.Entities != nil {
			for _, h := range t.Entities.Hashtags {
				raw.Hashtags = append(raw.Hashtags, h.Tag)
			}
		}
		if t.PublicMetrics != nil {
			raw.RetweetCount = t.PublicMetrics.RetweetCount
			raw.LikeCount = t.PublicMetrics.LikeCount
			raw.ReplyCount = t.PublicMetrics.ReplyCount
			raw.QuoteCount = t.PublicMetrics.QuoteCount
		}
		batch.Posts = append(batch.Posts, raw)
	}

	for _, m := range includes.Media {
		batch.Media = append(batch.Media, domain.RawMedia{
			MediaKey:        m.MediaKey,
			Type:            m.Type,
			URL:             m.URL,
			PreviewImageURL: m.PreviewImageURL,
			AltText:         m.AltText,
		})
	}

	return batch
}
