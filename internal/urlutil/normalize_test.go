package urlutil

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases host", "https://Example.COM/menu", "https://example.com/menu"},
		{"strips trailing slash", "https://example.com/menu/", "https://example.com/menu"},
		{"strips repeated trailing slashes", "https://example.com/menu///", "https://example.com/menu"},
		{"root path collapses", "https://example.com/", "https://example.com"},
		{"preserves path case", "https://example.com/Denni-Menu", "https://example.com/Denni-Menu"},
		{"preserves query", "https://example.com/menu/?lang=cs", "https://example.com/menu?lang=cs"},
		{"preserves scheme", "http://example.com", "http://example.com"},
		{"non-absolute input trimmed", "  example.com/menu/ ", "example.com/menu"},
		{"empty input", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"https://Example.com/Menu/",
		"http://www.peklo-ostrava.cz/denni-menu/",
		"https://example.com/?a=1",
		"not a url at all//",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}
