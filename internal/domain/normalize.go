package domain

import (
	"regexp"
	"strings"
)

// trailingShortLink matches a bare t.co token at the very end of the text.
// Twitter appends one for the post's own media or a quoted post, both of
// which are represented separately in the canonical record.
var trailingShortLink = regexp.MustCompile(`https://t\.co/\w+$`)

// statusMediaLink matches a status media permalink; only matches whose id
// segment equals the post's own id are stripped.
var statusMediaLink = regexp.MustCompile(`https://(?:x\.com|twitter\.com)/[^/]+/status/(\w+)/(?:photo|video)/\d+`)

// NormalizeText strips the retweet marker and self-referential link
// artifacts from a raw post body. An empty result is valid: a post can be
// media-only.
func NormalizeText(raw, postID string) string {
	text := raw

	// "RT @username: actual text" -> "actual text"
	if strings.HasPrefix(text, "RT") && len(text) > 3 {
		rest := text[3:]
		if strings.HasPrefix(rest, "@") {
			if colon := strings.Index(rest, ":"); colon != -1 {
				text = strings.TrimLeft(rest[colon+1:], " ")
			}
		}
	}

	if m := trailingShortLink.FindString(text); m != "" {
		text = strings.TrimSpace(strings.TrimSuffix(text, m))
	}

	if postID != "" {
		text = strings.TrimSpace(statusMediaLink.ReplaceAllStringFunc(text, func(link string) string {
			if strings.Contains(link, "/status/"+postID+"/") {
				return ""
			}
			return link
		}))
	}

	return text
}
