package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"menuwatch/internal/extractor"
	"menuwatch/internal/scraper"
	"menuwatch/internal/store"
	"menuwatch/pkg/types"
)

type fakeScraper struct {
	result *types.ScrapeResult
	err    error
	calls  int
}

func (f *fakeScraper) Scrape(context.Context, string) (*types.ScrapeResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeExtractor struct {
	raw json.RawMessage
	err error
}

func (f *fakeExtractor) Extract(context.Context, string, string, *string) (json.RawMessage, error) {
	return f.raw, f.err
}

type fakePreflight struct{ err error }

func (f *fakePreflight) Check(context.Context, string) error { return f.err }

type fakeStore struct {
	cache   map[string]string
	polling map[string]string
	putErr  error
	putKey  string
	putName string
}

func newFakeStore() *fakeStore {
	return &fakeStore{cache: map[string]string{}, polling: map[string]string{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.cache[key]; ok {
		return v, nil
	}
	return "", store.ErrNotFound
}

func (f *fakeStore) Put(_ context.Context, key, _, restaurant, response string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.cache[key] = response
	f.putKey = key
	f.putName = restaurant
	return nil
}

func (f *fakeStore) UpsertPolling(_ context.Context, url, hash string) error {
	f.polling[url] = hash
	return nil
}

var fixedNow = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

func newService(sc PageScraper, ex MenuExtractor, pf Preflight, st CacheStore) *Service {
	return New(sc, ex, pf, st, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(func() time.Time { return fixedNow }))
}

const aiMenuJSON = `{
	"restaurant_name": "Model Name",
	"date": "2026-08-28",
	"menu_items": [{"category": "Polévky", "name": "Vývar", "price": 45, "allergens": ["9"], "weight": null}],
	"menu_type": "daily",
	"reason": null,
	"rationale": ["step"]
}`

func scrapedPage() *types.ScrapeResult {
	img := "https://x.test/menu.jpg"
	b64 := "aW1n"
	return &types.ScrapeResult{
		Text:        "Denní menu\n- Vývar 45",
		ImageURL:    &img,
		ImageBase64: &b64,
		Restaurant:  "U Lípy",
	}
}

func TestProcessCacheHitSkipsScrape(t *testing.T) {
	st := newFakeStore()
	key := store.CacheKey("https://x.test/menu", "2026-08-28")
	st.cache[key] = `{"restaurant_name":"U Lípy","date":"2026-08-28","menu_items":[{"category":"c","name":"n","price":null,"allergens":[],"weight":null}],"reason":null}`
	sc := &fakeScraper{}

	svc := newService(sc, &fakeExtractor{}, nil, st)
	res, err := svc.Process(context.Background(), "https://x.test/menu/")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.FromCache {
		t.Error("result not marked as cached")
	}
	if res.Menu.RestaurantName != "U Lípy" {
		t.Errorf("menu = %+v", res.Menu)
	}
	if sc.calls != 0 {
		t.Errorf("scraper called %d times on cache hit", sc.calls)
	}
}

func TestProcessUnreachableURL(t *testing.T) {
	svc := newService(&fakeScraper{}, &fakeExtractor{}, &fakePreflight{err: errors.New("status 500")}, newFakeStore())

	_, err := svc.Process(context.Background(), "https://down.test")
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindUnreachableURL {
		t.Fatalf("err = %v, want KindUnreachableURL", err)
	}
}

func TestProcessScrapeErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"navigation", scraper.ErrNavigationFailed, KindNavigationFailed},
		{"extraction", scraper.ErrExtractionFailed, KindExtractionFailed},
		{"other", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(&fakeScraper{err: tt.err}, &fakeExtractor{}, nil, newFakeStore())
			_, err := svc.Process(context.Background(), "https://x.test")
			var pe *Error
			if !errors.As(err, &pe) || pe.Kind != tt.want {
				t.Fatalf("err = %v, want kind %s", err, tt.want)
			}
		})
	}
}

func TestProcessSchemaFailureCarriesDiagnostics(t *testing.T) {
	se := &extractor.SchemaError{Errors: []string{"/menu_items/0/price: expected number"}, Parsed: map[string]any{"x": 1}}
	svc := newService(&fakeScraper{result: scrapedPage()}, &fakeExtractor{err: se}, nil, newFakeStore())

	_, err := svc.Process(context.Background(), "https://x.test")
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindSchemaValidationFailed {
		t.Fatalf("err = %v, want KindSchemaValidationFailed", err)
	}
	if pe.Parsed == nil || pe.Scraped == nil {
		t.Errorf("diagnostics missing: %+v", pe)
	}
}

func TestProcessNoMenuAddsWatchlistEntry(t *testing.T) {
	st := newFakeStore()
	page := scrapedPage()
	empty := json.RawMessage(`{"restaurant_name":"X","date":"2026-08-28","menu_items":[],"reason":"closed today","menu_type":"daily","rationale":[]}`)
	svc := newService(&fakeScraper{result: page}, &fakeExtractor{raw: empty}, nil, st)

	_, err := svc.Process(context.Background(), "https://x.test/menu/")
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindNoMenuDetected {
		t.Fatalf("err = %v, want KindNoMenuDetected", err)
	}
	wantHash := ContentHash(page.Text)
	if got := st.polling["https://x.test/menu"]; got != wantHash {
		t.Errorf("polling hash = %q, want %q", got, wantHash)
	}
	if pe.Parsed == nil || pe.Scraped == nil {
		t.Errorf("diagnostics missing")
	}
}

func TestProcessNilExtractionMeansNoMenu(t *testing.T) {
	st := newFakeStore()
	svc := newService(&fakeScraper{result: scrapedPage()}, &fakeExtractor{raw: nil}, nil, st)

	_, err := svc.Process(context.Background(), "https://x.test")
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindNoMenuDetected {
		t.Fatalf("err = %v, want KindNoMenuDetected", err)
	}
	if len(st.polling) != 1 {
		t.Errorf("polling = %v", st.polling)
	}
}

func TestProcessSuccess(t *testing.T) {
	st := newFakeStore()
	svc := newService(&fakeScraper{result: scrapedPage()}, &fakeExtractor{raw: json.RawMessage(aiMenuJSON)}, &fakePreflight{}, st)

	res, err := svc.Process(context.Background(), "https://x.test/menu/")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// Scraper-detected name wins over the model's.
	if res.Menu.RestaurantName != "U Lípy" {
		t.Errorf("restaurant = %q", res.Menu.RestaurantName)
	}
	if res.Menu.SourceURL != "https://x.test/menu/" {
		t.Errorf("source url = %q", res.Menu.SourceURL)
	}
	if res.Menu.ImageBase64 != "aW1n" {
		t.Errorf("image = %q", res.Menu.ImageBase64)
	}
	if st.putKey != store.CacheKey("https://x.test/menu", "2026-08-28") {
		t.Errorf("put key = %q", st.putKey)
	}
	if st.putName != "U Lípy" {
		t.Errorf("put name = %q", st.putName)
	}
	var stored types.MenuDocument
	if err := json.Unmarshal([]byte(st.cache[st.putKey]), &stored); err != nil {
		t.Fatalf("stored response not json: %v", err)
	}
	if len(stored.MenuItems) != 1 {
		t.Errorf("stored items = %d", len(stored.MenuItems))
	}
}

func TestProcessStorageFailure(t *testing.T) {
	st := newFakeStore()
	st.putErr = errors.New("disk full")
	svc := newService(&fakeScraper{result: scrapedPage()}, &fakeExtractor{raw: json.RawMessage(aiMenuJSON)}, nil, st)

	_, err := svc.Process(context.Background(), "https://x.test")
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindStorageFailed {
		t.Fatalf("err = %v, want KindStorageFailed", err)
	}
}
