package domain

// ExtractMedia resolves a raw post's attachment keys against the batch's
// media side-table. Output order follows the attachment key list; keys with
// no matching side-table entry are skipped, since side-table completeness is
// not guaranteed by the source. The second return value reports whether any
// resolved item is a video or animated GIF.
func ExtractMedia(post RawPost, includes []RawMedia) ([]MediaItem, bool) {
	if len(post.MediaKeys) == 0 {
		return nil, false
	}

	byKey := make(map[string]RawMedia, len(includes))
	for _, m := range includes {
		byKey[m.MediaKey] = m
	}

	var items []MediaItem
	hasVideo := false
	for _, key := range post.MediaKeys {
		m, ok := byKey[key]
		if !ok {
			continue
		}

		item := MediaItem{
			MediaKey:        m.MediaKey,
			Type:            m.Type,
			PreviewImageURL: m.PreviewImageURL,
			AltText:         m.AltText,
		}

		switch m.Type {
		case MediaTypePhoto:
			item.URL = m.URL
		case MediaTypeVideo, MediaTypeAnimatedGIF:
			// Prefer a playable URL; fall back to the preview image
			// when the playable URL could not be resolved.
			if m.URL != "" {
				item.URL = m.URL
			} else {
				item.URL = m.PreviewImageURL
			}
			hasVideo = true
		default:
			item.URL = m.URL
		}

		items = append(items, item)
	}

	return items, hasVideo
}
