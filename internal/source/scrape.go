package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/daslan/birdwatch/internal/domain"
	"github.com/go-resty/resty/v2"
)

// ScrapeSource extracts posts from rendered profile-page HTML served by a
// snapshot endpoint (a headless-browser sidecar that handles login and
// scrolling; that machinery stays outside this process). It parses the same
// DOM structure the upstream web client renders and synthesizes media keys,
// so scraped posts flow through the pipeline like API posts.
type ScrapeSource struct {
	http     *resty.Client
	authors  domain.AuthorRepository
	accounts []string
	logger   *slog.Logger
}

// NewScrapeSource creates a scraping Source. snapshotURL is the base URL of
// the page-snapshot endpoint; one page per tracked account is fetched at
// <snapshotURL>/<username>. The author repository maps scraped usernames
// back to author ids.
func NewScrapeSource(snapshotURL string, authors domain.AuthorRepository, accounts []string, logger *slog.Logger) *ScrapeSource {
	client := resty.New().
		SetBaseURL(snapshotURL).
		SetTimeout(30 * time.Second)

	return &ScrapeSource{
		http:     client,
		authors:  authors,
		accounts: accounts,
		logger:   logger,
	}
}

// FetchBatch scrapes one page per tracked account and returns every post
// newer than since. A page that fails to fetch or parse is logged and
// skipped; the call only fails when no page could be fetched at all.
func (s *ScrapeSource) FetchBatch(ctx context.Context, since time.Time) (domain.RawBatch, error) {
	var batch domain.RawBatch
	fetched := 0

	for _, username := range s.accounts {
		page, err := s.fetchPage(ctx, username)
		if err != nil {
			s.logger.Error("failed to fetch page snapshot", "username", username, "error", err)
			continue
		}
		fetched++

		posts, media, err := s.parsePage(ctx, page, username)
		if err != nil {
			s.logger.Error("failed to parse page snapshot", "username", username, "error", err)
			continue
		}

		for _, p := range posts {
			// Posts without a parseable timestamp pass through; the
			// store's dedup decides whether they are new.
			if !since.IsZero() && !p.CreatedAt.IsZero() && !p.CreatedAt.After(since) {
				continue
			}
			batch.Posts = append(batch.Posts, p)
		}
		batch.Media = append(batch.Media, media...)
	}

	if fetched == 0 && len(s.accounts) > 0 {
		return domain.RawBatch{}, fmt.Errorf("scrape: %w: no page snapshot reachable", domain.ErrSourceUnavailable)
	}
	return batch, nil
}

func (s *ScrapeSource) fetchPage(ctx context.Context, username string) ([]byte, error) {
	resp, err := s.http.R().
		SetContext(ctx).
		Get("/" + username)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetch snapshot: status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// parsePage walks the rendered timeline articles and lifts each one into a
// RawPost plus synthesized media side-table entries.
func (s *ScrapeSource) parsePage(ctx context.Context, page []byte, username string) ([]domain.RawPost, []domain.RawMedia, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}

	author, err := s.authors.FindByUsername(ctx, username)
	if errors.Is(err, domain.ErrAuthorNotFound) {
		// Pipeline would drop these posts anyway.
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolve author %s: %w", username, err)
	}

	var (
		posts []domain.RawPost
		media []domain.RawMedia
	)

	doc.Find(`article[data-testid="tweet"]`).Each(func(_ int, article *goquery.Selection) {
		postID := extractPostID(article)
		if postID == "" {
			return
		}

		raw := domain.RawPost{
			ID:       postID,
			AuthorID: author.AuthorID,
			Text:     article.Find(`div[data-testid="tweetText"]`).First().Text(),
		}

		if ts, ok := article.Find("time").First().Attr("datetime"); ok {
			parsed, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				s.logger.Warn("unparseable article timestamp", "post_id", postID, "datetime", ts)
			} else {
				raw.CreatedAt = parsed.UTC()
			}
		}

		article.Find(`div[data-testid="tweetPhoto"] img`).Each(func(i int, img *goquery.Selection) {
			src, ok := img.Attr("src")
			if !ok {
				return
			}
			key := fmt.Sprintf("%s_img_%d", postID, i)
			raw.MediaKeys = append(raw.MediaKeys, key)
			media = append(media, domain.RawMedia{
				MediaKey: key,
				Type:     domain.MediaTypePhoto,
				URL:      src,
				AltText:  img.AttrOr("alt", ""),
			})
		})

		if article.Find(`div[data-testid="videoPlayer"], video`).Length() > 0 {
			key := postID + "_video"
			raw.MediaKeys = append(raw.MediaKeys, key)
			entry := domain.RawMedia{
				MediaKey: key,
				Type:     domain.MediaTypeVideo,
			}
			// The snapshot cannot expose the playable URL, so the
			// poster image stands in as the preview.
			if poster, ok := article.Find("video").First().Attr("poster"); ok {
				entry.PreviewImageURL = poster
			}
			media = append(media, entry)
		}

		posts = append(posts, raw)
	})

	return posts, media, nil
}

// extractPostID pulls the status id out of the article's permalink, e.g.
// /daslan/status/1790000000000000000.
func extractPostID(article *goquery.Selection) string {
	var id string
	article.Find(`a[href*="/status/"]`).EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		_, rest, found := strings.Cut(href, "/status/")
		if !found {
			return true
		}
		id, _, _ = strings.Cut(rest, "/")
		id, _, _ = strings.Cut(id, "?")
		return id == ""
	})
	return id
}
