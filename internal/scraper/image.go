package scraper

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"
)

// LargestImage picks the candidate with the greatest pixel area among
// non-inline images. Inline data URIs are handled separately since their
// payloads are already on hand.
func LargestImage(candidates []ImageCandidate) *ImageCandidate {
	var best *ImageCandidate
	bestArea := 0
	for i := range candidates {
		c := &candidates[i]
		if strings.HasPrefix(c.Src, "data:") {
			continue
		}
		if area := c.Width * c.Height; area > bestArea {
			best = c
			bestArea = area
		}
	}
	return best
}

// resolveImage picks the page's best image and obtains its base64 payload.
// Every failure path degrades to an absent image.
func (s *Scraper) resolveImage(ctx context.Context, capture *PageCapture) (imageURL, imageBase64 *string) {
	largest := LargestImage(capture.Images)
	if largest == nil {
		if inline := s.inlineImage(capture.Images); inline != nil {
			return &inline.Src, inlinePayload(inline.Src)
		}
		return nil, nil
	}

	resolved := resolveRef(capture.FinalURL, largest.Src)
	if !isSafeImageURL(resolved) {
		return nil, nil
	}
	if s.remote == nil {
		return &resolved, nil
	}

	payload, err := s.remote.FetchImage(ctx, resolved)
	if err != nil {
		s.logger.Debug("image fetch failed", "url", resolved, "error", err)
		return nil, nil
	}
	return &resolved, &payload
}

// inlineImage returns the largest data-URI candidate whose decoded payload
// stays within the configured size cap.
func (s *Scraper) inlineImage(candidates []ImageCandidate) *ImageCandidate {
	var best *ImageCandidate
	bestArea := 0
	for i := range candidates {
		c := &candidates[i]
		if !strings.HasPrefix(c.Src, "data:image/") {
			continue
		}
		if inlinePayload(c.Src) == nil {
			continue
		}
		if decodedInlineSize(c.Src) > s.maxImageBytes {
			continue
		}
		if area := c.Width * c.Height; area > bestArea {
			best = c
			bestArea = area
		}
	}
	return best
}

// inlinePayload extracts the base64 body of a data URI, returning nil when
// the URI is not valid base64-encoded image data.
func inlinePayload(src string) *string {
	_, body, ok := strings.Cut(src, ",")
	if !ok || !strings.Contains(src, ";base64") {
		return nil
	}
	if _, err := base64.StdEncoding.DecodeString(body); err != nil {
		return nil
	}
	return &body
}

func decodedInlineSize(src string) int64 {
	_, body, ok := strings.Cut(src, ",")
	if !ok {
		return 0
	}
	return int64(base64.StdEncoding.DecodedLen(len(body)))
}

// isSafeImageURL admits only absolute http(s) URLs.
func isSafeImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// resolveRef resolves a possibly relative image src against the page URL.
func resolveRef(pageURL, src string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return src
	}
	ref, err := url.Parse(src)
	if err != nil {
		return src
	}
	return base.ResolveReference(ref).String()
}
