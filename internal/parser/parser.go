// Package parser extracts structured page features and outbound links
// from fetched HTML.
package parser

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// PageFeatures holds the metadata extracted from one HTML document.
type PageFeatures struct {
	// Title tag content (first title wins)
	Title string

	// Meta tags
	MetaDescription string
	MetaKeywords    string
	MetaRobots      string
	Viewport        string

	// Canonical URL, resolved absolute
	Canonical string

	// Heading text in document order
	H1 []string
	H2 []string
	H3 []string

	// rel=prev/next pagination links
	PrevURL string
	NextURL string

	// Alternate language versions
	Hreflangs []Hreflang

	// Base URL if a <base> tag is present
	BaseURL string

	// Language from the html lang attribute
	DeclaredLanguage string

	// Best-effort detected content language; empty when detection is
	// off, fails or the text is too short
	DetectedLanguage string

	// Words in visible text
	WordCount int

	// Visible text. Transient: used for language detection and
	// dropped before the features are retained.
	TextContent string
}

// HeadingText joins the h1 and h2 texts for compact storage.
func (f *PageFeatures) HeadingText() string {
	parts := make([]string, 0, len(f.H1)+len(f.H2))
	parts = append(parts, f.H1...)
	parts = append(parts, f.H2...)
	return strings.Join(parts, " | ")
}

// DropText releases the visible-text buffer once detection is done.
func (f *PageFeatures) DropText() {
	f.TextContent = ""
}

// Link is one anchor found on a page, in document order. Duplicate
// targets are preserved; deduplication is the scheduler's concern.
type Link struct {
	// Resolved absolute target
	URL string

	// Anchor text
	Text string

	// Raw rel attribute
	Rel string

	// rel contains nofollow
	NoFollow bool
}

// Hreflang is one alternate-language link.
type Hreflang struct {
	Lang string
	URL  string
}

// Word tokens counted for WordCount.
var wordPattern = regexp.MustCompile(`\w+`)

// Extractor turns raw HTML into page features and links.
type Extractor struct {
	detector      LanguageDetector
	minDetectSize int
}

// NewExtractor creates an extractor. A nil detector disables language
// detection.
func NewExtractor(detector LanguageDetector) *Extractor {
	return &Extractor{
		detector:      detector,
		minDetectSize: 50,
	}
}

// Extract parses HTML and returns page features plus all outbound
// links in document order. Malformed markup degrades to empty fields
// rather than failing; the error is non-nil only when the base URL is
// unusable.
func (e *Extractor) Extract(content []byte, baseURL string) (*PageFeatures, []Link, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, nil, err
	}

	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, nil, err
	}

	features := &PageFeatures{
		H1:        make([]string, 0),
		H2:        make([]string, 0),
		H3:        make([]string, 0),
		Hreflangs: make([]Hreflang, 0),
	}
	links := make([]Link, 0)

	var textBuilder strings.Builder
	walker := &walker{base: base}
	walker.traverse(doc, features, &links, &textBuilder)

	features.TextContent = textBuilder.String()
	features.WordCount = len(wordPattern.FindAllString(features.TextContent, -1))

	if e.detector != nil && len(features.TextContent) >= e.minDetectSize {
		if code, ok := e.detector.Detect(features.TextContent); ok {
			features.DetectedLanguage = code
		}
	}

	return features, links, nil
}

// walker carries the resolution base through the recursive traversal,
// updated when a <base> tag appears.
type walker struct {
	base *url.URL
}

func (w *walker) traverse(n *html.Node, features *PageFeatures, links *[]Link, textBuilder *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "html":
			if features.DeclaredLanguage == "" {
				features.DeclaredLanguage = getAttr(n, "lang")
			}

		case "base":
			if href := getAttr(n, "href"); href != "" && features.BaseURL == "" {
				features.BaseURL = href
				if u, err := url.Parse(href); err == nil {
					w.base = w.base.ResolveReference(u)
				}
			}

		case "title":
			if features.Title == "" {
				features.Title = strings.TrimSpace(getTextContent(n))
			}

		case "meta":
			parseMeta(n, features)

		case "link":
			w.parseLinkTag(n, features)

		case "a":
			if link, ok := w.parseAnchor(n); ok {
				*links = append(*links, link)
			}

		case "h1":
			if text := strings.TrimSpace(getTextContent(n)); text != "" {
				features.H1 = append(features.H1, text)
			}

		case "h2":
			if text := strings.TrimSpace(getTextContent(n)); text != "" {
				features.H2 = append(features.H2, text)
			}

		case "h3":
			if text := strings.TrimSpace(getTextContent(n)); text != "" {
				features.H3 = append(features.H3, text)
			}
		}
	}

	if n.Type == html.TextNode {
		parent := n.Parent
		if parent != nil && parent.Data != "script" && parent.Data != "style" && parent.Data != "noscript" {
			if text := strings.TrimSpace(n.Data); text != "" {
				textBuilder.WriteString(text)
				textBuilder.WriteString(" ")
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.traverse(c, features, links, textBuilder)
	}
}

func parseMeta(n *html.Node, features *PageFeatures) {
	name := strings.ToLower(getAttr(n, "name"))
	content := getAttr(n, "content")

	switch name {
	case "description":
		features.MetaDescription = content
	case "keywords":
		features.MetaKeywords = content
	case "robots":
		features.MetaRobots = content
	case "viewport":
		features.Viewport = content
	}
}

func (w *walker) parseLinkTag(n *html.Node, features *PageFeatures) {
	rel := strings.ToLower(getAttr(n, "rel"))
	href := getAttr(n, "href")
	if href == "" {
		return
	}

	switch rel {
	case "canonical":
		features.Canonical = w.resolve(href)
	case "prev":
		features.PrevURL = w.resolve(href)
	case "next":
		features.NextURL = w.resolve(href)
	case "alternate":
		if lang := getAttr(n, "hreflang"); lang != "" {
			features.Hreflangs = append(features.Hreflangs, Hreflang{
				Lang: lang,
				URL:  w.resolve(href),
			})
		}
	}
}

func (w *walker) parseAnchor(n *html.Node) (Link, bool) {
	href := strings.TrimSpace(getAttr(n, "href"))
	rel := strings.ToLower(getAttr(n, "rel"))

	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") {
		return Link{}, false
	}

	resolved := w.resolve(href)
	if resolved == "" {
		return Link{}, false
	}

	return Link{
		URL:      resolved,
		Text:     strings.TrimSpace(getTextContent(n)),
		Rel:      rel,
		NoFollow: strings.Contains(rel, "nofollow"),
	}, true
}

func (w *walker) resolve(href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return w.base.ResolveReference(ref).String()
}

// Helper functions

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func getTextContent(n *html.Node) string {
	var buf bytes.Buffer
	collectText(n, &buf)
	return buf.String()
}

func collectText(n *html.Node, buf *bytes.Buffer) {
	if n.Type == html.TextNode {
		buf.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, buf)
	}
}
