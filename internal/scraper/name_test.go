package scraper

import "testing"

func TestRestaurantName(t *testing.T) {
	tests := []struct {
		name   string
		page   string
		origin string
		want   string
	}{
		{
			name: "keyword in anchor text",
			page: `<body><a href="/other">skip</a><a href="/">restaurace U Lípy</a></body>`,
			want: "Restaurace U Lípy",
		},
		{
			name: "keyword in logo alt",
			page: `<body><a rel="home"><img src="/l.png" alt="Bistro Karlín logo"></a></body>`,
			want: "Bistro Karlín",
		},
		{
			name:   "origin anchor fallback to alt",
			page:   `<body><a href="https://example.com/"><img src="/l.png" alt="u kocoura logo"></a></body>`,
			origin: "https://example.com",
			want:   "U kocoura",
		},
		{
			name: "fallback to anchor text",
			page: `<body><a href="/">penzion blanka</a></body>`,
			want: "Penzion blanka",
		},
		{
			name: "keywordless earlier anchor is passed over",
			page: `<body><a href="/"><img alt="plain logo"></a><a rel="home">Pizzeria Roma</a></body>`,
			want: "Pizzeria Roma",
		},
		{
			name: "earlier alt match wins over later text match",
			page: `<body><a href="/"><img alt="Bistro Karlín logo"></a><a rel="home">Pizzeria Roma</a></body>`,
			want: "Bistro Karlín",
		},
		{
			name: "text beats alt within the same anchor",
			page: `<body><a href="/">restaurace U Lípy<img alt="bistro logo"></a></body>`,
			want: "Restaurace U Lípy",
		},
		{
			name: "no home anchors",
			page: `<body><a href="/contact">Contact</a></body>`,
			want: "",
		},
		{
			name: "empty page",
			page: `<body></body>`,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RestaurantName(tt.page, tt.origin); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"restaurace logo", "Restaurace"},
		{"Logo of Nowhere", "Of Nowhere"},
		{"  many   spaces  ", "Many spaces"},
		{"logotype brand", "Logotype brand"},
		{"logo", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := cleanName(tt.in); got != tt.want {
			t.Errorf("cleanName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
