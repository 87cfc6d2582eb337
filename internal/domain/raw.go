package domain

import "time"

// RawPost is a source-agnostic post payload produced by a Source adapter.
// All three adapters (poll, stream, scrape) normalize into this shape before
// the pipeline sees it.
type RawPost struct {
	// ID is the source post identifier.
	ID string

	// AuthorID is the source author identifier.
	AuthorID string

	// Text is the unprocessed post body.
	Text string

	// MediaKeys lists attachment keys to be resolved against the batch's
	// media side-table, in display order.
	MediaKeys []string

	// Hashtags are the raw tag values (without the leading '#').
	Hashtags []string

	RetweetCount int
	LikeCount    int
	ReplyCount   int
	QuoteCount   int

	CreatedAt time.Time
}

// RawMedia is an entry in a batch's media side-table.
type RawMedia struct {
	MediaKey        string
	Type            string
	URL             string
	PreviewImageURL string
	AltText         string
}

// RawBatch is one fetch cycle's worth of posts plus the media side-table
// needed to resolve their attachment keys. Streaming sources deliver batches
// of size 1.
type RawBatch struct {
	Posts []RawPost
	Media []RawMedia
}
