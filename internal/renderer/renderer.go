// Package renderer executes pages in headless Chromium and captures the
// DOM after JavaScript has run.
package renderer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/priority-crawler/prowl/internal/config"
)

// RenderResult holds the outcome of rendering one page.
type RenderResult struct {
	// Final HTML after JavaScript execution
	HTML string

	// Final URL after any client-side redirects
	FinalURL string

	// Page title
	Title string

	// Status of the main document response
	StatusCode int

	// Render duration
	RenderTime time.Duration
}

// Renderer drives a headless Chromium instance. Renders run one at a
// time; the crawl loop is sequential.
type Renderer struct {
	mu sync.Mutex

	cfg       *config.CrawlConfig
	allocator context.Context
	cancel    context.CancelFunc
}

// New creates a renderer with its own browser allocator.
func New(cfg *config.CrawlConfig) (*Renderer, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("window-size", "1920,1080"),
	)
	if len(cfg.UserAgents) > 0 {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgents[0]))
	}
	if cfg.ChromiumPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromiumPath))
	}

	allocator, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Renderer{
		cfg:       cfg,
		allocator: allocator,
		cancel:    cancel,
	}, nil
}

// Render navigates to the URL in a fresh tab and returns the DOM after
// the configured wait condition. It satisfies the crawl loop's renderer
// contract.
func (r *Renderer) Render(ctx context.Context, urlStr string) ([]byte, error) {
	result, err := r.RenderPage(ctx, urlStr)
	if err != nil {
		return nil, err
	}
	return []byte(result.HTML), nil
}

// RenderPage renders one page and reports what the browser saw.
func (r *Renderer) RenderPage(ctx context.Context, urlStr string) (*RenderResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tab, cancelTab := chromedp.NewContext(r.allocator)
	defer cancelTab()

	timeoutCtx, cancel := context.WithTimeout(tab, r.cfg.RenderTimeout)
	defer cancel()

	// Tear the tab down if the caller gives up first.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cancelTab()
		case <-done:
		}
	}()

	result := &RenderResult{}
	start := time.Now()

	chromedp.ListenTarget(timeoutCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if e.Type == network.ResourceTypeDocument && result.StatusCode == 0 {
				result.StatusCode = int(e.Response.Status)
			}
		case *page.EventJavascriptDialogOpening:
			go chromedp.Run(timeoutCtx, page.HandleJavaScriptDialog(true))
		}
	})

	var html string
	err := chromedp.Run(timeoutCtx,
		network.Enable(),
		chromedp.Navigate(urlStr),
		r.waitAction(),
		chromedp.Location(&result.FinalURL),
		chromedp.Title(&result.Title),
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("render failed: %w", err)
	}

	result.HTML = html
	result.RenderTime = time.Since(start)
	return result, nil
}

// waitAction maps the configured wait condition to a chromedp action.
func (r *Renderer) waitAction() chromedp.Action {
	switch r.cfg.WaitCondition {
	case config.WaitNetworkIdle:
		// Approximation: Chromium has no direct network-idle signal.
		return chromedp.Sleep(2 * time.Second)
	case config.WaitSelector:
		if r.cfg.WaitSelector != "" {
			return chromedp.WaitVisible(r.cfg.WaitSelector, chromedp.ByQuery)
		}
		return chromedp.WaitReady("body", chromedp.ByQuery)
	default:
		return chromedp.WaitReady("body", chromedp.ByQuery)
	}
}

// Close shuts the browser down.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return nil
}
