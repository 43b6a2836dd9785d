// Package web renders the single search page. Visual variants are themes
// applied to one template.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
)

//go:embed templates/index.html
var files embed.FS

// DefaultTheme is used for unknown or empty theme names.
const DefaultTheme = "midnight"

// Theme is the set of colour tokens the page is styled with.
type Theme struct {
	Name       string
	Background string
	Surface    string
	Text       string
	Muted      string
	Accent     string
	Warning    string
	Font       string
}

var themes = map[string]Theme{
	"midnight": {
		Name:       "midnight",
		Background: "#0b1020",
		Surface:    "#161d33",
		Text:       "#e8ecf8",
		Muted:      "#8a93b2",
		Accent:     "#7c5cff",
		Warning:    "#f5a524",
		Font:       "Inter, system-ui, sans-serif",
	},
	"pastel": {
		Name:       "pastel",
		Background: "#fdf6f0",
		Surface:    "#ffffff",
		Text:       "#3b3355",
		Muted:      "#8c84a3",
		Accent:     "#f08bb5",
		Warning:    "#e0a800",
		Font:       "Nunito, system-ui, sans-serif",
	},
	"classic": {
		Name:       "classic",
		Background: "#f8f9fa",
		Surface:    "#ffffff",
		Text:       "#212529",
		Muted:      "#6c757d",
		Accent:     "#0d6efd",
		Warning:    "#ffc107",
		Font:       "-apple-system, 'Segoe UI', Roboto, sans-serif",
	},
}

// Suggestions are example job descriptions offered under the search box.
var Suggestions = []string{
	"I'm a marketer at an e-commerce company running ad campaigns across platforms",
	"I work as an HR manager at a multinational and recruit IT specialists",
	"I'm a data analyst at a bank analysing sales trends and credit risk",
	"I run my own online gadget shop and manage the whole sales process",
	"I'm a freelance copywriter writing marketing content for many industries",
	"I'm an IT project manager coordinating development teams in agile projects",
	"I'm an accountant at a mid-sized company preparing financial reports and cost analyses",
	"I run an online fashion store, handle customers and manage logistics",
	"I'm a business consultant advising companies on digital transformation",
	"I'm a content creator producing videos and social media posts",
	"I'm a sales manager at a B2B company leading the sales team and its processes",
	"I work in customer success helping clients get value from our product",
}

// ThemeByName looks a theme up case-insensitively.
func ThemeByName(name string) (Theme, bool) {
	t, ok := themes[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// ThemeNames lists the available themes in order.
func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CSSVars renders the theme as custom property declarations.
func (t Theme) CSSVars() template.CSS {
	return template.CSS(fmt.Sprintf(
		"--bg: %s; --surface: %s; --text: %s; --muted: %s; --accent: %s; --warning: %s; --font: %s;",
		t.Background, t.Surface, t.Text, t.Muted, t.Accent, t.Warning, t.Font,
	))
}

type pageData struct {
	Theme       Theme
	Themes      []string
	Suggestions []string
}

// Page serves the search page.
type Page struct {
	tmpl         *template.Template
	defaultTheme string
}

// New parses the embedded template. An unknown defaultTheme is an error.
func New(defaultTheme string) (*Page, error) {
	if defaultTheme == "" {
		defaultTheme = DefaultTheme
	}
	if _, ok := ThemeByName(defaultTheme); !ok {
		return nil, fmt.Errorf("unknown theme %q, available: %s", defaultTheme, strings.Join(ThemeNames(), ", "))
	}
	tmpl, err := template.ParseFS(files, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("could not parse page template: %w", err)
	}
	return &Page{tmpl: tmpl, defaultTheme: strings.ToLower(defaultTheme)}, nil
}

// Render writes the page in theme, falling back to the default theme.
func (p *Page) Render(w io.Writer, theme string) error {
	t, ok := ThemeByName(theme)
	if !ok {
		t, _ = ThemeByName(p.defaultTheme)
	}
	return p.tmpl.ExecuteTemplate(w, "index.html", pageData{
		Theme:       t,
		Themes:      ThemeNames(),
		Suggestions: Suggestions,
	})
}

// ServeHTTP renders the page; ?theme= overrides the default.
func (p *Page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var buf bytes.Buffer
	if err := p.Render(&buf, r.URL.Query().Get("theme")); err != nil {
		log.Printf("web: could not render page: %v", err)
		http.Error(w, "could not render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
