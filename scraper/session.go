package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/aluiziolira/go-wholesale-products/config"
	"github.com/go-resty/resty/v2"
)

// sessionTransport drives the site with a cookie-backed resty client,
// the default engine.
type sessionTransport struct {
	client *resty.Client
}

func newSessionTransport(cfg config.SiteConfig) (*sessionTransport, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetCookieJar(jar)
	client.SetTimeout(cfg.Timeout())
	client.SetHeader("User-Agent", cfg.UserAgent)

	return &sessionTransport{client: client}, nil
}

func (t *sessionTransport) get(ctx context.Context, pageURL string) ([]byte, string, error) {
	resp, err := t.client.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return nil, "", classifyError(err, 0)
	}
	finalURL := pageURL
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		finalURL = raw.Request.URL.String()
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, finalURL, classifyError(nil, resp.StatusCode())
	}
	return resp.Body(), finalURL, nil
}

func (t *sessionTransport) postForm(ctx context.Context, postURL string, form url.Values) ([]byte, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetFormDataFromValues(form).
		Post(postURL)
	if err != nil {
		return nil, classifyError(err, 0)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, classifyError(nil, resp.StatusCode())
	}
	return resp.Body(), nil
}

func (t *sessionTransport) jar() http.CookieJar {
	return t.client.GetClient().Jar
}
