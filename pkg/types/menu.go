package types

// MenuType classifies the kind of menu a restaurant publishes.
type MenuType string

const (
	MenuTypeDaily     MenuType = "daily"
	MenuTypeLaunch    MenuType = "launch"
	MenuTypeBreakfast MenuType = "breakfast"
	MenuTypeWeekly    MenuType = "weekly"
	MenuTypeWeekend   MenuType = "weekend"
	MenuTypeRegular   MenuType = "regular"
	MenuTypeSpecial   MenuType = "special"
)

// MenuTypes lists every accepted menu classification.
var MenuTypes = []MenuType{
	MenuTypeDaily,
	MenuTypeLaunch,
	MenuTypeBreakfast,
	MenuTypeWeekly,
	MenuTypeWeekend,
	MenuTypeRegular,
	MenuTypeSpecial,
}

// MenuItem is a single dish on a menu. Price is in the configured currency,
// weight is normalised to grams as a free-form string. Both may be unknown.
type MenuItem struct {
	Category  string   `json:"category"`
	Name      string   `json:"name"`
	Price     *float64 `json:"price"`
	Allergens []string `json:"allergens"`
	Weight    *string  `json:"weight"`
}

// MenuDocument is the cache-worthy representation of an extracted menu.
// Reason is non-nil only when MenuItems is empty and explains why no valid
// same-day menu was found.
type MenuDocument struct {
	RestaurantName string     `json:"restaurant_name"`
	Date           string     `json:"date"`
	DayOfWeek      string     `json:"day_of_week,omitempty"`
	SourceURL      string     `json:"source_url,omitempty"`
	MenuItems      []MenuItem `json:"menu_items"`
	MenuType       MenuType   `json:"menu_type,omitempty"`
	Reason         *string    `json:"reason"`
	ImageBase64    string     `json:"image_base64,omitempty"`
}

// HasItems reports whether the document carries at least one menu item,
// the precondition for it being cached.
func (d *MenuDocument) HasItems() bool {
	return d != nil && len(d.MenuItems) > 0
}

// ScrapeResult is the ephemeral output of one headless-browser pass over a
// URL. It is produced fresh per scrape and consumed immediately by the
// extractor; it is never persisted.
type ScrapeResult struct {
	Text        string  `json:"text"`
	ImageURL    *string `json:"image_url"`
	ImageBase64 *string `json:"image_base64"`
	Restaurant  string  `json:"restaurant"`
}

// PollingEntry marks a URL that has not yet yielded a valid menu. LastHash is
// the content hash of the last scraped text, used to skip extraction when the
// page has not changed between polling cycles.
type PollingEntry struct {
	URL      string `json:"url"`
	LastHash string `json:"last_hash"`
}
