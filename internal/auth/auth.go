// Package auth provides authentication handling for crawling.
package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/priority-crawler/prowl/internal/config"
)

// Authenticator attaches credentials to crawl requests. Form login is
// performed once up front; other schemes are applied per request.
type Authenticator struct {
	mu sync.RWMutex

	config *config.CrawlConfig
	jar    http.CookieJar
	client *http.Client

	sessionCookies []*http.Cookie
	authenticated  bool
}

// New creates an authenticator with its own cookie jar, preloaded
// with the configured preset cookies.
func New(cfg *config.CrawlConfig) (*Authenticator, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	a := &Authenticator{
		config: cfg,
		jar:    jar,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}

	a.addConfiguredCookies()
	return a, nil
}

// addConfiguredCookies loads preset cookies into the jar.
func (a *Authenticator) addConfiguredCookies() {
	for _, cookieCfg := range a.config.Cookies {
		u, err := url.Parse("https://" + cookieCfg.Domain)
		if err != nil {
			continue
		}

		a.jar.SetCookies(u, []*http.Cookie{{
			Name:     cookieCfg.Name,
			Value:    cookieCfg.Value,
			Domain:   cookieCfg.Domain,
			Path:     cookieCfg.Path,
			Secure:   cookieCfg.Secure,
			HttpOnly: cookieCfg.HttpOnly,
		}})
	}
}

// Login performs up-front authentication. Only form auth does real
// work; the other schemes are applied per request.
func (a *Authenticator) Login(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.config.AuthType {
	case config.AuthNone, config.AuthBasic, config.AuthBearer, config.AuthCookie, "":
		a.authenticated = true
		return nil

	case config.AuthForm:
		return a.formLogin(ctx)

	default:
		return fmt.Errorf("unknown auth type: %s", a.config.AuthType)
	}
}

func (a *Authenticator) formLogin(ctx context.Context) error {
	if a.config.Auth == nil || a.config.Auth.LoginURL == "" {
		return fmt.Errorf("login URL is required for form authentication")
	}

	form := url.Values{}
	for key, value := range a.config.Auth.FormFields {
		form.Set(key, value)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.Auth.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read login response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	if a.config.Auth.SuccessURL != "" && !strings.HasPrefix(resp.Request.URL.String(), a.config.Auth.SuccessURL) {
		return fmt.Errorf("login redirect to unexpected URL: %s", resp.Request.URL)
	}

	if a.config.Auth.SuccessText != "" && !strings.Contains(string(body), a.config.Auth.SuccessText) {
		return fmt.Errorf("login response does not contain success text")
	}

	if loginURL, err := url.Parse(a.config.Auth.LoginURL); err == nil {
		a.sessionCookies = a.jar.Cookies(loginURL)
	}
	a.authenticated = true
	return nil
}

// Apply attaches the configured credentials to a request.
func (a *Authenticator) Apply(req *http.Request) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	switch a.config.AuthType {
	case config.AuthBasic:
		if a.config.Auth != nil {
			req.SetBasicAuth(a.config.Auth.Username, a.config.Auth.Password)
		}

	case config.AuthBearer:
		if a.config.Auth != nil && a.config.Auth.Token != "" {
			req.Header.Set("Authorization", "Bearer "+a.config.Auth.Token)
		}

	case config.AuthForm:
		for _, cookie := range a.sessionCookies {
			req.AddCookie(cookie)
		}
	}
}

// Authenticated reports whether Login succeeded.
func (a *Authenticator) Authenticated() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.authenticated
}

// SessionCookies returns cookies captured by form login.
func (a *Authenticator) SessionCookies() []*http.Cookie {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sessionCookies
}

// Jar exposes the cookie jar for clients that should share login
// state.
func (a *Authenticator) Jar() http.CookieJar {
	return a.jar
}
