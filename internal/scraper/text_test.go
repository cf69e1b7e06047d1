package scraper

import "testing"

func TestExtractTextStructure(t *testing.T) {
	page := `<html><body><main>
		<h1>Menu</h1>
		<p>Soup 30</p>
		<ul><li>Pizza 150</li><li>Pasta 120</li></ul>
	</main></body></html>`

	got, err := ExtractText(page)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	want := "Menu\nSoup 30\n- Pizza 150\n- Pasta 120"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractTextSkipsScriptsAndStyles(t *testing.T) {
	page := `<main><p>Visible</p><script>var hidden = 1;</script><style>.x{color:red}</style><noscript>off</noscript></main>`

	got, err := ExtractText(page)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got != "Visible" {
		t.Errorf("got %q, want %q", got, "Visible")
	}
}

func TestExtractTextRootPrecedence(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{
			name: "main wins over section",
			page: `<body><section><p>section text</p></section><main><p>main text</p></main></body>`,
			want: "main text",
		},
		{
			name: "section wins over body",
			page: `<body><p>outside</p><section><p>inside</p></section></body>`,
			want: "inside",
		},
		{
			name: "body fallback",
			page: `<body><p>everything</p></body>`,
			want: "everything",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractText(tt.page)
			if err != nil {
				t.Fatalf("ExtractText: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractTextCollapsesWhitespace(t *testing.T) {
	page := "<main>Intro text\n\t <h2>Today</h2>\n Closing</main>"

	got, err := ExtractText(page)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	want := "Intro text\nToday\nClosing"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractTextEmptyPage(t *testing.T) {
	got, err := ExtractText(`<main><script>only()</script></main>`)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
