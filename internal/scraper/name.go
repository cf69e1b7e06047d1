package scraper

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// restaurantKeywords flag anchor text that very likely names the venue.
var restaurantKeywords = []string{"restaurace", "restaurant", "bistro", "pizzeria"}

var logoWord = regexp.MustCompile(`(?i)\blogo\b`)

var innerSpace = regexp.MustCompile(`\s+`)

// RestaurantName scans home-pointing anchors in document order for the
// site's name. The first anchor whose text or image alt contains a venue
// keyword wins, text taking precedence over alt within that anchor;
// otherwise falls back to the first home anchor's alt, then its text.
// Returns "" when nothing usable is found.
func RestaurantName(pageHTML, origin string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return ""
	}

	selector := `a[rel="home"], a[href="/"]`
	if origin != "" {
		selector += fmt.Sprintf(`, a[href="%s"], a[href="%s/"]`, origin, origin)
	}
	anchors := doc.Find(selector)
	if anchors.Length() == 0 {
		return ""
	}

	var matched string
	anchors.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := cleanName(a.Text())
		alt, _ := a.Find("img").First().Attr("alt")
		alt = cleanName(alt)
		switch {
		case containsKeyword(text):
			matched = text
		case containsKeyword(alt):
			matched = alt
		}
		return matched == ""
	})
	if matched != "" {
		return matched
	}

	first := anchors.First()
	if alt, ok := first.Find("img").First().Attr("alt"); ok {
		if t := cleanName(alt); t != "" {
			return t
		}
	}
	return cleanName(first.Text())
}

func containsKeyword(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range restaurantKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// cleanName drops the word "logo", collapses whitespace, and capitalizes the
// first letter.
func cleanName(raw string) string {
	name := logoWord.ReplaceAllString(raw, "")
	name = strings.TrimSpace(innerSpace.ReplaceAllString(name, " "))
	if name == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + name[size:]
}
