// Package crawltest provides a scriptable HTTP site for crawl tests.
package crawltest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Site is an in-process web site. Tests register pages, status
// overrides, delays and redirects per path, then point a crawler at
// URL(). Every request is counted.
type Site struct {
	srv *httptest.Server

	mu        sync.RWMutex
	pages     map[string]*Page
	raw       map[string]rawContent
	status    map[string]int
	delays    map[string]time.Duration
	redirects map[string]string
	hits      map[string]int
}

type rawContent struct {
	body        string
	contentType string
}

// Page describes an HTML page the site serves. Zero values are
// omitted from the generated markup.
type Page struct {
	Title           string
	MetaDescription string
	Canonical       string
	Headings        []string
	Body            string
	Links           []Link
}

// Link is an anchor on a Page.
type Link struct {
	Href string
	Text string
	Rel  string
}

// NewSite starts the server. Callers own Close.
func NewSite() *Site {
	s := &Site{
		pages:     make(map[string]*Page),
		raw:       make(map[string]rawContent),
		status:    make(map[string]int),
		delays:    make(map[string]time.Duration),
		redirects: make(map[string]string),
		hits:      make(map[string]int),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handler))
	return s
}

// URL returns the site's base URL.
func (s *Site) URL() string {
	return s.srv.URL
}

// Close shuts the server down.
func (s *Site) Close() {
	s.srv.Close()
}

func (s *Site) handler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	s.mu.Lock()
	s.hits[path]++
	s.mu.Unlock()

	s.mu.RLock()
	delay := s.delays[path]
	redirect := s.redirects[path]
	status := s.status[path]
	page := s.pages[path]
	raw, hasRaw := s.raw[path]
	s.mu.RUnlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if redirect != "" {
		http.Redirect(w, r, redirect, http.StatusMovedPermanently)
		return
	}
	if status > 0 {
		w.WriteHeader(status)
		return
	}
	if hasRaw {
		w.Header().Set("Content-Type", raw.contentType)
		io.WriteString(w, raw.body)
		return
	}
	if page != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, page.render())
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

// AddPage registers an HTML page at a path.
func (s *Site) AddPage(path string, page *Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[path] = page
}

// AddRaw registers verbatim content with an explicit content type.
func (s *Site) AddRaw(path, body, contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw[path] = rawContent{body: body, contentType: contentType}
}

// SetRobots serves a robots.txt body.
func (s *Site) SetRobots(body string) {
	s.AddRaw("/robots.txt", body, "text/plain; charset=utf-8")
}

// SetStatus makes a path answer with a bare status code.
func (s *Site) SetStatus(path string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[path] = code
}

// SetDelay makes a path sleep before answering.
func (s *Site) SetDelay(path string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[path] = delay
}

// SetRedirect makes a path answer 301 to another URL.
func (s *Site) SetRedirect(from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirects[from] = to
}

// Hits returns how often a path was requested.
func (s *Site) Hits(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hits[path]
}

// render produces the page markup.
func (p *Page) render() string {
	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	if p.Title != "" {
		fmt.Fprintf(&sb, "  <title>%s</title>\n", p.Title)
	}
	if p.MetaDescription != "" {
		fmt.Fprintf(&sb, "  <meta name=%q content=%q>\n", "description", p.MetaDescription)
	}
	if p.Canonical != "" {
		fmt.Fprintf(&sb, "  <link rel=%q href=%q>\n", "canonical", p.Canonical)
	}
	sb.WriteString("</head>\n<body>\n")

	for i, heading := range p.Headings {
		tag := "h2"
		if i == 0 {
			tag = "h1"
		}
		fmt.Fprintf(&sb, "  <%s>%s</%s>\n", tag, heading, tag)
	}
	if p.Body != "" {
		sb.WriteString("  <p>")
		sb.WriteString(p.Body)
		sb.WriteString("</p>\n")
	}
	for _, link := range p.Links {
		if link.Rel != "" {
			fmt.Fprintf(&sb, "  <a href=%q rel=%q>%s</a>\n", link.Href, link.Rel, link.Text)
		} else {
			fmt.Fprintf(&sb, "  <a href=%q>%s</a>\n", link.Href, link.Text)
		}
	}

	sb.WriteString("</body>\n</html>")
	return sb.String()
}
