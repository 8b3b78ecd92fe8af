package fetch

import (
	"context"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// RodFetcher renders JS-heavy pages in a real browser before handing
// back HTML. It backs the per-job enable_js_rendering flag and is only
// constructed when browser rendering is enabled in configuration.
type RodFetcher struct {
	BrowserURL string
	Timeout    time.Duration
}

func NewRodFetcher(browserURL string, timeout time.Duration) *RodFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RodFetcher{BrowserURL: browserURL, Timeout: timeout}
}

func (f *RodFetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}

	browser := rod.New().Context(ctx).Timeout(f.Timeout)
	if f.BrowserURL != "" {
		browser = browser.ControlURL(f.BrowserURL)
	}
	if err := browser.Connect(); err != nil {
		return nil, err
	}
	defer browser.MustClose()

	page, err := browser.Page(proto.TargetCreateTarget{URL: u.String()})
	if err != nil {
		return nil, err
	}
	defer page.MustClose()

	if err := page.WaitLoad(); err != nil {
		return nil, err
	}

	htmlStr, err := page.HTML()
	if err != nil {
		return nil, err
	}

	return &Result{
		URL:         u.String(),
		HTML:        htmlStr,
		Status:      200,
		ContentType: "text/html",
		Engine:      "browser",
	}, nil
}
