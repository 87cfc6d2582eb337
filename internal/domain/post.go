package domain

import "time"

// Media types reported by the upstream API.
const (
	MediaTypePhoto       = "photo"
	MediaTypeVideo       = "video"
	MediaTypeAnimatedGIF = "animated_gif"
)

// Post is the canonical tweet record persisted by the pipeline.
//
// JSON tags mirror the document shape the front-end already consumes, so the
// /api/tweets payload and broadcast events stay wire-compatible.
type Post struct {
	// PostID is the stable tweet identifier from the source and the
	// primary dedup key.
	PostID string `json:"tweet_id"`

	// AuthorID references the Author this post belongs to.
	AuthorID string `json:"author_id"`

	// Text is the normalized body (retweet prefix and self-referential
	// trailing links stripped). May be empty for media-only posts.
	Text string `json:"text"`

	// Username is denormalized from the Author at ingestion time.
	Username string `json:"username"`

	// Media is the ordered list of resolved attachments.
	Media []MediaItem `json:"media"`

	// Hashtags is the comma-joined tag list, e.g. "golang, opensource".
	Hashtags string `json:"hashtags"`

	// ProfileImageURL is denormalized from the Author.
	ProfileImageURL string `json:"profile_image_url"`

	RetweetCount int `json:"retweet_count"`
	LikeCount    int `json:"like_count"`
	ReplyCount   int `json:"reply_count"`
	QuoteCount   int `json:"quote_count"`

	// HasVideo is true iff any media item is a video or animated GIF.
	HasVideo bool `json:"hasVideo"`

	// CreatedAt is the source-reported creation time.
	CreatedAt time.Time `json:"created_at"`
}

// MediaItem is a single resolved image or video attachment.
type MediaItem struct {
	MediaKey string `json:"media_key"`

	// Type is one of photo, video or animated_gif.
	Type string `json:"type"`

	// URL is the resolved media URL. For videos this may be the
	// preview-image URL when no playable URL could be resolved.
	URL string `json:"url"`

	PreviewImageURL string `json:"preview_image_url,omitempty"`
	AltText         string `json:"alt_text,omitempty"`
}

// Author is a tracked account the pipeline is allowed to ingest posts from.
// Authors are seeded out of band (cmd/seedauthors); the pipeline only reads.
type Author struct {
	AuthorID        string `json:"author_id"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
}
