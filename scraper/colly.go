package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"github.com/aluiziolira/go-wholesale-products/config"
	"github.com/gocolly/colly/v2"
)

// collyTransport implements the transport contract over a synchronous
// colly collector. Row processing is strictly sequential, so one
// in-flight capture at a time is an invariant, not a limitation.
type collyTransport struct {
	collector *colly.Collector
	cookies   http.CookieJar

	mu       sync.Mutex
	body     []byte
	finalURL string
	lastErr  error
	status   int
}

func newCollyTransport(cfg config.SiteConfig) (*collyTransport, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout())
	collector.IgnoreRobotsTxt = true

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	collector.SetCookieJar(jar)

	t := &collyTransport{collector: collector, cookies: jar}

	collector.OnResponse(func(r *colly.Response) {
		t.body = r.Body
		t.finalURL = r.Request.URL.String()
		t.status = r.StatusCode
	})
	collector.OnError(func(r *colly.Response, err error) {
		t.lastErr = err
		if r != nil {
			t.status = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				t.finalURL = r.Request.URL.String()
			}
		}
	})

	return t, nil
}

func (t *collyTransport) get(ctx context.Context, pageURL string) ([]byte, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	t.reset()
	if err := t.collector.Visit(pageURL); err != nil {
		return nil, "", classifyError(err, 0)
	}
	t.collector.Wait()

	if t.lastErr != nil {
		return nil, t.finalURL, classifyError(t.lastErr, t.status)
	}
	if t.status >= http.StatusBadRequest {
		return nil, t.finalURL, classifyError(nil, t.status)
	}
	return t.body, t.finalURL, nil
}

func (t *collyTransport) postForm(ctx context.Context, postURL string, form url.Values) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := make(map[string]string, len(form))
	for key := range form {
		data[key] = form.Get(key)
	}

	t.reset()
	if err := t.collector.Post(postURL, data); err != nil {
		return nil, classifyError(err, 0)
	}
	t.collector.Wait()

	if t.lastErr != nil {
		return nil, classifyError(t.lastErr, t.status)
	}
	return t.body, nil
}

func (t *collyTransport) jar() http.CookieJar {
	return t.cookies
}

func (t *collyTransport) reset() {
	t.body = nil
	t.finalURL = ""
	t.lastErr = nil
	t.status = 0
}
