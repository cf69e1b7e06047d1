// Package extractor turns scraped menu text into structured JSON through an
// OpenAI-compatible chat model. The model is asked for JSON matching a fixed
// schema, and its answer is validated locally before anything downstream sees
// it.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"menuwatch/internal/retry"
)

// ErrResponseNotJSON reports that the model answered with something that did
// not parse as JSON at all.
var ErrResponseNotJSON = errors.New("model response is not valid json")

// SchemaError reports a parseable response that failed schema validation.
// Parsed carries the offending document for diagnostics.
type SchemaError struct {
	Errors []string
	Parsed any
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("model response failed schema validation: %s", strings.Join(e.Errors, "; "))
}

// ContentGenerator is the slice of the chat model the extractor uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Options tune the extraction call.
type Options struct {
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
}

// Extractor runs the extraction conversation against a chat model.
type Extractor struct {
	model  ContentGenerator
	opts   Options
	logger *slog.Logger
}

// New wires an Extractor around an already constructed model.
func New(model ContentGenerator, opts Options, logger *slog.Logger) *Extractor {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 2
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{model: model, opts: opts, logger: logger}
}

// NewOpenAI builds an Extractor backed by the OpenAI chat API.
func NewOpenAI(model, token string, opts Options, logger *slog.Logger) (*Extractor, error) {
	llm, err := openai.New(openai.WithModel(model), openai.WithToken(token))
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	return New(llm, opts, logger), nil
}

// Extract asks the model for the structured menu found in text. The hint is
// the restaurant name detected during scraping and imageURL, when present, is
// attached as a second content part. A nil result with nil error means the
// model produced no content, which callers treat as no menu detected.
func (x *Extractor) Extract(ctx context.Context, text, hint string, imageURL *string) (json.RawMessage, error) {
	parts := []llms.ContentPart{llms.TextPart(text)}
	if imageURL != nil && *imageURL != "" {
		parts = append(parts, llms.ImageURLPart(*imageURL))
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt(hint)),
		{Role: llms.ChatMessageTypeHuman, Parts: parts},
	}

	start := time.Now()
	resp, err := retry.WithBackoff(ctx,
		func(ctx context.Context) (*llms.ContentResponse, error) {
			return retry.WithTimeout(ctx, x.opts.Timeout,
				func(ctx context.Context) (*llms.ContentResponse, error) {
					return x.model.GenerateContent(ctx, messages,
						llms.WithTemperature(0),
						llms.WithJSONMode(),
					)
				})
		},
		retry.IsTransientNetworkError,
		x.opts.MaxAttempts,
		x.opts.RetryDelay,
	)
	if err != nil {
		return nil, fmt.Errorf("generating menu extraction: %w", err)
	}

	content := firstContent(resp)
	x.logger.Debug("model responded",
		"latency_ms", time.Since(start).Milliseconds(),
		"content_bytes", len(content),
	)
	if content == "" {
		return nil, nil
	}

	var parsed any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseNotJSON, err)
	}
	if err := menuSchema.Validate(parsed); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, &SchemaError{Errors: flattenValidationError(ve), Parsed: parsed}
		}
		return nil, &SchemaError{Errors: []string{err.Error()}, Parsed: parsed}
	}

	canonical, err := json.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("re-encoding validated menu: %w", err)
	}
	return canonical, nil
}

func firstContent(resp *llms.ContentResponse) string {
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return ""
	}
	return strings.TrimSpace(resp.Choices[0].Content)
}

func systemPrompt(restaurantHint string) string {
	var b strings.Builder
	b.WriteString("You extract restaurant lunch menus from scraped page text.\n")
	if restaurantHint != "" {
		b.WriteString("The restaurant is likely called: " + restaurantHint + ".\n")
	}
	b.WriteString(`Rules:
- Extract only the menu offered for today. Ignore permanent drink lists, opening hours, and navigation text.
- date is the menu's own date as printed on the page; weekday menus labelled only by day name count as today's when the day matches.
- If the page carries no menu for today, return an empty menu_items array and a non-null reason; otherwise reason is null.
- Prices are plain numbers without currency symbols; use null when no price is shown.
- Weights are normalized to grams as a short string, for example "150 g"; null when not shown.
- Copy allergen codes as given; use an empty array when none are listed.
- Items without a section heading go under the category "Uncategorized".
- Keep item names and categories in the page's original language.
- Fill rationale with the short ordered reasoning steps you followed.
Respond with a single JSON object that conforms exactly to this JSON Schema, with no extra keys and no surrounding prose:
`)
	b.WriteString(compactSchema())
	return b.String()
}
