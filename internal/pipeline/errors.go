package pipeline

import (
	"fmt"

	"menuwatch/pkg/types"
)

// Kind classifies a pipeline failure for the HTTP layer and the logs.
type Kind string

const (
	KindUnreachableURL         Kind = "UNREACHABLE_URL"
	KindNavigationFailed       Kind = "NAVIGATION_FAILED"
	KindExtractionFailed       Kind = "EXTRACTION_FAILED"
	KindResponseNotJSON        Kind = "AI_RESPONSE_NOT_JSON"
	KindSchemaValidationFailed Kind = "AI_SCHEMA_VALIDATION_FAILED"
	KindNoMenuDetected         Kind = "NO_MENU_DETECTED"
	KindStorageFailed          Kind = "STORAGE_FAILED"
	KindUnknown                Kind = "UNKNOWN"
)

// Error is the pipeline's failure envelope. Parsed and Scraped carry
// best-effort diagnostics for AI and no-menu failures; both may be nil.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	Parsed  any
	Scraped *types.ScrapeResult
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}
