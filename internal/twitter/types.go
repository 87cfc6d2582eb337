package twitter

import "time"

// Tweet is the raw API v2 tweet object, limited to the fields we request.
type Tweet struct {
	ID            string         `json:"id"`
	AuthorID      string         `json:"author_id"`
	Text          string         `json:"text"`
	CreatedAt     time.Time      `json:"created_at"`
	Attachments   *Attachments   `json:"attachments,omitempty"`
	Entities      *Entities      `json:"entities,omitempty"`
	PublicMetrics *PublicMetrics `json:"public_metrics,omitempty"`
}

// Attachments carries the media keys referencing the includes side-table.
type Attachments struct {
	MediaKeys []string `json:"media_keys"`
}

// Entities carries the parsed-out tweet entities we care about.
type Entities struct {
	Hashtags []HashtagEntity `json:"hashtags"`
}

// HashtagEntity is a single hashtag occurrence.
type HashtagEntity struct {
	Tag string `json:"tag"`
}

// PublicMetrics are the engagement counters attached to a tweet.
type PublicMetrics struct {
	RetweetCount int `json:"retweet_count"`
	ReplyCount   int `json:"reply_count"`
	LikeCount    int `json:"like_count"`
	QuoteCount   int `json:"quote_count"`
}

// Media is an entry in the includes.media side-table.
type Media struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"`
	URL             string `json:"url,omitempty"`
	PreviewImageURL string `json:"preview_image_url,omitempty"`
	AltText         string `json:"alt_text,omitempty"`
}

// User is the API v2 user object.
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
}

// Includes is the expansion side-table returned alongside tweets.
type Includes struct {
	Media []Media `json:"media"`
	Users []User  `json:"users"`
}

// TweetsPage is one page of tweets plus its includes side-table.
type TweetsPage struct {
	Tweets   []Tweet
	Includes Includes
}

// StreamRule is a filtered-stream matching rule.
type StreamRule struct {
	ID    string `json:"id,omitempty"`
	Value string `json:"value"`
	Tag   string `json:"tag,omitempty"`
}

// StreamEvent is one message from the filtered stream: a single tweet plus
// the includes needed to resolve it.
type StreamEvent struct {
	Data     *Tweet   `json:"data"`
	Includes Includes `json:"includes"`
}
