package api

import (
	"encoding/json"

	"menuwatch/pkg/types"
)

// MenuRequest asks for a full scrape-and-extract run.
type MenuRequest struct {
	URL string `json:"url"`
}

// MenuResponse is the success payload of POST /api/menu. Parsed is the raw
// validated model output kept for diagnostics.
type MenuResponse struct {
	Menu    *types.MenuDocument `json:"menu"`
	Parsed  json.RawMessage     `json:"parsed"`
	Scraped *types.ScrapeResult `json:"scraped,omitempty"`
}

// CachePutRequest stores an already extracted menu under today's key.
type CachePutRequest struct {
	URL      string          `json:"url"`
	Response json.RawMessage `json:"response"`
}

// CacheGetResponse wraps a cache lookup. Response is null on a miss.
type CacheGetResponse struct {
	Response *CachedMenu `json:"response"`
}

// CachedMenu carries the cached menu document.
type CachedMenu struct {
	Menu json.RawMessage `json:"menu"`
}

// ErrorResponse is the failure envelope. Parsed and Scraped are present only
// for AI and no-menu failures.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Parsed  any                 `json:"parsed,omitempty"`
	Menu    *types.MenuDocument `json:"menu,omitempty"`
	Scraped *types.ScrapeResult `json:"scraped,omitempty"`
}
