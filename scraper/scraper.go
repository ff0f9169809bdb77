// Package scraper collects product data from the wholesale site. The
// Scraper capability hides the transport so HTTP-session and collector
// based engines stay interchangeable.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-wholesale-products/config"
	"github.com/aluiziolira/go-wholesale-products/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Scraper is the capability consumed by the pipeline core.
type Scraper interface {
	// Login authenticates the session once per run. A false result means
	// the site rejected the credentials and the run must abort.
	Login(ctx context.Context) (bool, error)
	// ScrapeProduct fetches and parses one product page.
	ScrapeProduct(ctx context.Context, pageURL string) (*models.ScrapedProduct, error)
	// CookieJar exposes the authenticated session cookies for read-only
	// reuse by the image fetcher.
	CookieJar() http.CookieJar
}

// transport is a thin blocking HTTP layer beneath SiteScraper. The final
// URL after redirects is observable so login bounces can be detected.
type transport interface {
	get(ctx context.Context, pageURL string) (body []byte, finalURL string, err error)
	postForm(ctx context.Context, postURL string, form url.Values) ([]byte, error)
	jar() http.CookieJar
}

const optionCacheSize = 256

// SiteScraper scrapes the configured wholesale shop through one of the
// pluggable transports.
type SiteScraper struct {
	cfg     config.SiteConfig
	tr      transport
	metrics *Metrics
	extract *extractor
}

// New builds a SiteScraper with the transport selected by cfg.Engine.
func New(cfg config.SiteConfig, metrics *Metrics) (*SiteScraper, error) {
	var tr transport
	var err error
	switch cfg.Engine {
	case config.EngineColly:
		tr, err = newCollyTransport(cfg)
	case config.EngineSession, "":
		tr, err = newSessionTransport(cfg)
	default:
		err = fmt.Errorf("unknown scraper engine %q", cfg.Engine)
	}
	if err != nil {
		return nil, err
	}

	cache, err := lru.New[string, []int](optionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("option cache: %w", err)
	}

	s := &SiteScraper{
		cfg:     cfg,
		tr:      tr,
		metrics: metrics,
	}
	s.extract = &extractor{cfg: cfg, optionCache: cache}
	return s, nil
}

// Login posts the credential form and probes the shop index to confirm
// the session is authenticated. An unset login URL skips authentication
// entirely, for sites that expose prices publicly.
func (s *SiteScraper) Login(ctx context.Context) (bool, error) {
	if s.cfg.LoginURL == "" {
		slog.Warn("login_url not configured, skipping authentication")
		return true, nil
	}

	s.metrics.IncRequest("login")
	start := time.Now()

	// Gnuboard validates credentials on login_check.php, not login.php.
	checkURL := strings.Replace(s.cfg.LoginURL, "/login.php", "/login_check.php", 1)
	form := url.Values{}
	form.Set(s.cfg.LoginForm.IDField, s.cfg.Username)
	form.Set(s.cfg.LoginForm.PWField, s.cfg.Password)
	form.Set("url", "/shop/")

	if _, err := s.tr.postForm(ctx, checkURL, form); err != nil {
		return false, fmt.Errorf("post login form: %w", err)
	}

	_, finalURL, err := s.tr.get(ctx, strings.TrimRight(s.cfg.BaseURL, "/")+"/shop/")
	if err != nil {
		return false, fmt.Errorf("probe shop after login: %w", err)
	}
	s.metrics.ObserveDuration(time.Since(start))

	if strings.Contains(finalURL, "login.php") {
		slog.Error("login rejected, still redirected to login page")
		return false, nil
	}

	slog.Info("login ok")
	return true, nil
}

// ScrapeProduct fetches one product page, honours the politeness delay
// and extracts the configured fields. Failures come back as *ScrapeError.
func (s *SiteScraper) ScrapeProduct(ctx context.Context, pageURL string) (*models.ScrapedProduct, error) {
	productID := models.Row{URL: pageURL}.ProductID()

	s.metrics.IncRequest("product")
	start := time.Now()
	body, finalURL, err := s.tr.get(ctx, pageURL)
	s.metrics.ObserveDuration(time.Since(start))

	// The single politeness pause of the system. No retry, no backoff.
	if delay := s.cfg.Delay(); delay > 0 {
		time.Sleep(delay)
	}

	if err != nil {
		s.metrics.IncError(errorTypeLabel(err))
		return nil, &ScrapeError{URL: pageURL, Reason: err.Error(), Err: err}
	}
	if strings.Contains(finalURL, "login.php") {
		s.metrics.IncError("auth")
		return nil, &ScrapeError{URL: pageURL, Reason: "not logged in, redirected to login page"}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		s.metrics.IncError("parse")
		return nil, &ScrapeError{URL: pageURL, Reason: "parse product page", Err: err}
	}

	product, err := s.extract.product(ctx, doc, productID, pageURL, s.optionPost)
	if err != nil {
		s.metrics.IncError("parse")
		return nil, &ScrapeError{URL: pageURL, Reason: err.Error(), Err: err}
	}

	s.metrics.IncProduct()
	slog.Info("scraped product",
		slog.String("product_id", product.ProductID),
		slog.String("brand", product.Brand),
		slog.String("name", product.ProductName),
		slog.String("wholesale_price", product.WholesalePrice),
		slog.Int("sizes", len(product.Sizes)),
		slog.Int("colors", len(product.Colors)),
		slog.Int("option_prices", len(product.OptionPrices)),
		slog.Int("images", len(product.ImageURLs)),
	)
	return product, nil
}

// CookieJar returns the transport's session cookie jar.
func (s *SiteScraper) CookieJar() http.CookieJar {
	return s.tr.jar()
}

func (s *SiteScraper) optionPost(ctx context.Context, postURL string, form url.Values) ([]byte, error) {
	s.metrics.IncRequest("option")
	return s.tr.postForm(ctx, postURL, form)
}
