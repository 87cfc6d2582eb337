package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		postID string
		want   string
	}{
		{
			name:   "retweet prefix and trailing link stripped",
			text:   "RT @alice: hello world https://t.co/xyz",
			postID: "123",
			want:   "hello world",
		},
		{
			name:   "plain text untouched",
			text:   "just a regular tweet",
			postID: "123",
			want:   "just a regular tweet",
		},
		{
			name:   "trailing short link stripped",
			text:   "check this out https://t.co/AbC123",
			postID: "456",
			want:   "check this out",
		},
		{
			name:   "short link in the middle kept",
			text:   "see https://t.co/AbC123 for details",
			postID: "456",
			want:   "see https://t.co/AbC123 for details",
		},
		{
			name:   "self-referential photo link stripped",
			text:   "look https://twitter.com/alice/status/789/photo/1",
			postID: "789",
			want:   "look",
		},
		{
			name:   "self-referential video link on x.com stripped",
			text:   "clip https://x.com/alice/status/789/video/1",
			postID: "789",
			want:   "clip",
		},
		{
			name:   "other post's status link kept",
			text:   "related: https://x.com/bob/status/111/photo/1",
			postID: "789",
			want:   "related: https://x.com/bob/status/111/photo/1",
		},
		{
			name:   "media-only post normalizes to empty",
			text:   "https://t.co/xyz",
			postID: "123",
			want:   "",
		},
		{
			name:   "RT without mention kept as-is",
			text:   "RT is an abbreviation",
			postID: "123",
			want:   "RT is an abbreviation",
		},
		{
			name:   "bare RT not sliced out of bounds",
			text:   "RT",
			postID: "123",
			want:   "RT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.text, tt.postID))
		})
	}
}
