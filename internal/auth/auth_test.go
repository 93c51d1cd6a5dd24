package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/priority-crawler/prowl/internal/config"
)

func baseConfig() *config.CrawlConfig {
	cfg := config.DefaultConfig()
	cfg.SeedURL = "https://example.com"
	return cfg
}

func TestApplyBasicAuth(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.AuthType = config.AuthBasic
	cfg.Auth = &config.AuthConfig{Username: "crawler", Password: "secret"}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
	a.Apply(req)

	user, pass, ok := req.BasicAuth()
	if !ok || user != "crawler" || pass != "secret" {
		t.Errorf("expected basic auth crawler/secret, got %q/%q ok=%v", user, pass, ok)
	}
}

func TestApplyBearerToken(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.AuthType = config.AuthBearer
	cfg.Auth = &config.AuthConfig{Token: "tok-123"}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
	a.Apply(req)

	if got := req.Header.Get("Authorization"); got != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer tok-123")
	}
}

func TestFormLoginCapturesSessionCookies(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		r.ParseForm()
		if r.Form.Get("username") != "alice" || r.Form.Get("password") != "hunter2" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc123", Path: "/"})
		fmt.Fprint(w, "Welcome back")
	}))
	defer server.Close()

	cfg := baseConfig()
	cfg.AuthType = config.AuthForm
	cfg.Auth = &config.AuthConfig{
		LoginURL:    server.URL + "/login",
		FormFields:  map[string]string{"username": "alice", "password": "hunter2"},
		SuccessText: "Welcome",
	}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !a.Authenticated() {
		t.Error("expected Authenticated() after successful login")
	}

	cookies := a.SessionCookies()
	if len(cookies) != 1 || cookies[0].Name != "sid" {
		t.Fatalf("expected captured sid cookie, got %v", cookies)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/page", nil)
	a.Apply(req)
	if got, err := req.Cookie("sid"); err != nil || got.Value != "abc123" {
		t.Errorf("expected session cookie applied to request, got %v err=%v", got, err)
	}
}

func TestFormLoginFailures(t *testing.T) {
	t.Parallel()

	t.Run("bad status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusForbidden)
		}))
		defer server.Close()

		cfg := baseConfig()
		cfg.AuthType = config.AuthForm
		cfg.Auth = &config.AuthConfig{LoginURL: server.URL}

		a, _ := New(cfg)
		if err := a.Login(context.Background()); err == nil {
			t.Error("expected error on 403 login response")
		}
	})

	t.Run("missing success text", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "Invalid credentials")
		}))
		defer server.Close()

		cfg := baseConfig()
		cfg.AuthType = config.AuthForm
		cfg.Auth = &config.AuthConfig{LoginURL: server.URL, SuccessText: "Welcome"}

		a, _ := New(cfg)
		if err := a.Login(context.Background()); err == nil {
			t.Error("expected error when success text is absent")
		}
	})

	t.Run("missing login URL", func(t *testing.T) {
		cfg := baseConfig()
		cfg.AuthType = config.AuthForm

		a, _ := New(cfg)
		if err := a.Login(context.Background()); err == nil {
			t.Error("expected error for form auth without login URL")
		}
	})
}

func TestNoneAuthIsNoop(t *testing.T) {
	t.Parallel()

	a, err := New(baseConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
	a.Apply(req)
	if len(req.Header) != 0 {
		t.Errorf("expected no headers applied for none auth, got %v", req.Header)
	}
}
