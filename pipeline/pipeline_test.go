package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/go-wholesale-products/config"
	"github.com/aluiziolira/go-wholesale-products/images"
	"github.com/aluiziolira/go-wholesale-products/message"
	"github.com/aluiziolira/go-wholesale-products/models"
)

type fakeScraper struct {
	loginOK    bool
	loginErr   error
	loginCalls int
	products   map[string]*models.ScrapedProduct
	failURLs   map[string]error
}

func (f *fakeScraper) Login(ctx context.Context) (bool, error) {
	f.loginCalls++
	return f.loginOK, f.loginErr
}

func (f *fakeScraper) ScrapeProduct(ctx context.Context, pageURL string) (*models.ScrapedProduct, error) {
	if err, ok := f.failURLs[pageURL]; ok {
		return nil, err
	}
	if p, ok := f.products[pageURL]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("no fixture for %s", pageURL)
}

func (f *fakeScraper) CookieJar() http.CookieJar { return nil }

type stubFetcher struct{}

func (stubFetcher) Fetch(context.Context, string) ([]byte, error) {
	return []byte("jpeg-bytes"), nil
}

type failingMaterializer struct{}

func (failingMaterializer) EnsureImages(context.Context, string, []string) ([]string, error) {
	return nil, errors.New("disk full")
}

func (failingMaterializer) ProductDir(dirName string) string { return dirName }

type failingRenderer struct{}

func (failingRenderer) Render(models.ProcessedProduct) (string, error) {
	return "", errors.New("unknown placeholder {oops}")
}

func testConfig(t *testing.T, csvBody string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "products.csv")
	if err := os.WriteFile(csvPath, []byte(csvBody), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.Site.BaseURL = "http://shop.example.test"
	cfg.Paths.InputCSV = csvPath
	cfg.Paths.OutputDir = filepath.Join(dir, "output")
	return cfg
}

func scrapedFixture(id string) *models.ScrapedProduct {
	return &models.ScrapedProduct{
		ProductID:      id,
		ProductName:    "Fleece Jacket",
		WholesalePrice: "21,000원",
		Brand:          "KidsCo",
		Sizes:          []string{"S", "M"},
		Colors:         []string{"Red"},
		ImageURLs:      []string{"http://x/1.jpg"},
	}
}

func TestRunEndToEnd(t *testing.T) {
	csvBody := strings.Join([]string{
		"url,margin",
		"http://x/item.php?it_id=1,3000",
		"http://x/item.php?it_id=2,not-a-number",
		"http://x/item.php?it_id=3,1000",
	}, "\n")
	cfg := testConfig(t, csvBody)

	s := &fakeScraper{
		loginOK: true,
		products: map[string]*models.ScrapedProduct{
			"http://x/item.php?it_id=1": scrapedFixture("1"),
		},
		failURLs: map[string]error{
			"http://x/item.php?it_id=3": errors.New("selector matched nothing"),
		},
	}
	materializer := images.NewMaterializer(cfg.Paths.OutputDir, stubFetcher{}, nil)
	renderer := message.NewRenderer("")

	var progress []string
	o := New(cfg, s, materializer, renderer, Options{
		OnProgress: func(current, total int, productID string) {
			progress = append(progress, fmt.Sprintf("%d/%d:%s", current, total, productID))
		},
	})

	results, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 (invalid margin row dropped)", len(results))
	}
	if results[0].URL != "http://x/item.php?it_id=1" || results[1].URL != "http://x/item.php?it_id=3" {
		t.Fatalf("result order broken: %+v", results)
	}

	first := results[0]
	if first.Status != models.StatusDone {
		t.Fatalf("first status = %s (%s)", first.Status, first.Error)
	}
	if first.Seq != 1 || first.WholesalePrice != 21000 || first.SellingPrice != 24000 {
		t.Fatalf("unexpected first result: %+v", first)
	}
	if first.Margin() != 3000 {
		t.Fatalf("margin = %d, want 3000", first.Margin())
	}
	if first.DirName != "001_KidsCo_Fleece Jacket" {
		t.Fatalf("dir name = %q", first.DirName)
	}

	second := results[1]
	if second.Status != models.StatusFailedScrape {
		t.Fatalf("second status = %s, want FAILED_SCRAPE", second.Status)
	}
	if second.Seq != 2 || second.Error == "" {
		t.Fatalf("unexpected second result: %+v", second)
	}

	productDir := filepath.Join(cfg.Paths.OutputDir, first.DirName)
	for _, name := range []string{"01.jpg", "message.txt"} {
		if _, err := os.Stat(filepath.Join(productDir, name)); err != nil {
			t.Fatalf("missing artifact %s: %v", name, err)
		}
	}

	summary, err := os.ReadFile(filepath.Join(cfg.Paths.OutputDir, "summary.txt"))
	if err != nil {
		t.Fatalf("summary missing: %v", err)
	}
	if !strings.Contains(string(summary), "Total: 2  Succeeded: 1  Failed: 1") {
		t.Fatalf("summary counts wrong:\n%s", summary)
	}

	messagesBody, err := os.ReadFile(filepath.Join(cfg.Paths.OutputDir, "messages.txt"))
	if err != nil {
		t.Fatalf("messages missing: %v", err)
	}
	if !strings.Contains(string(messagesBody), "===== 001 =====") {
		t.Fatalf("messages missing section header:\n%s", messagesBody)
	}
	if !strings.Contains(string(messagesBody), "KidsCo Fleece Jacket") {
		t.Fatalf("messages missing rendered content:\n%s", messagesBody)
	}
	if strings.Contains(string(messagesBody), "002") {
		t.Fatalf("failed row leaked into messages.txt:\n%s", messagesBody)
	}

	wantProgress := []string{"1/2:1", "2/2:3"}
	if len(progress) != 2 || progress[0] != wantProgress[0] || progress[1] != wantProgress[1] {
		t.Fatalf("progress = %v, want %v", progress, wantProgress)
	}
}

func TestRunLoginFailureAbortsBeforeRows(t *testing.T) {
	cfg := testConfig(t, "url,margin\nhttp://x/item.php?it_id=1,1000\n")
	s := &fakeScraper{loginOK: false}
	o := New(cfg, s, images.NewMaterializer(cfg.Paths.OutputDir, stubFetcher{}, nil), message.NewRenderer(""), Options{})

	results, err := o.Run(context.Background())
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("err = %v, want ErrLoginFailed", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %v, want none", results)
	}
	if _, statErr := os.Stat(filepath.Join(cfg.Paths.OutputDir, "summary.txt")); !os.IsNotExist(statErr) {
		t.Fatalf("no output files should be written on login failure")
	}
}

func TestRunEmptyCSVIsNoOp(t *testing.T) {
	cfg := testConfig(t, "url,margin\n")
	s := &fakeScraper{loginOK: true}
	o := New(cfg, s, images.NewMaterializer(cfg.Paths.OutputDir, stubFetcher{}, nil), message.NewRenderer(""), Options{})

	results, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("empty csv should not error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %v, want none", results)
	}
	if s.loginCalls != 0 {
		t.Fatalf("login should not run for an empty csv")
	}
}

func TestRunUnreadableCSVFails(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Paths.InputCSV = filepath.Join(t.TempDir(), "absent.csv")
	cfg.Paths.OutputDir = t.TempDir()
	o := New(cfg, &fakeScraper{loginOK: true}, failingMaterializer{}, message.NewRenderer(""), Options{})

	if _, err := o.Run(context.Background()); err == nil {
		t.Fatalf("expected error for unreadable csv")
	}
}

func TestRunImageFailureKeepsScrapedFields(t *testing.T) {
	cfg := testConfig(t, "url,margin\nhttp://x/item.php?it_id=1,3000\n")
	s := &fakeScraper{
		loginOK:  true,
		products: map[string]*models.ScrapedProduct{"http://x/item.php?it_id=1": scrapedFixture("1")},
	}
	o := New(cfg, s, failingMaterializer{}, message.NewRenderer(""), Options{})

	results, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	r := results[0]
	if r.Status != models.StatusFailedImage {
		t.Fatalf("status = %s, want FAILED_IMAGE", r.Status)
	}
	if r.Brand != "KidsCo" || r.WholesalePrice != 21000 || r.SellingPrice != 24000 {
		t.Fatalf("scraped fields lost on image failure: %+v", r)
	}
	if _, statErr := os.Stat(filepath.Join(cfg.Paths.OutputDir, "messages.txt")); !os.IsNotExist(statErr) {
		t.Fatalf("messages.txt should be skipped with zero successes")
	}
	if _, statErr := os.Stat(filepath.Join(cfg.Paths.OutputDir, "summary.txt")); statErr != nil {
		t.Fatalf("summary should still be written: %v", statErr)
	}
}

func TestRunRenderFailureMarksMessageStatus(t *testing.T) {
	cfg := testConfig(t, "url,margin\nhttp://x/item.php?it_id=1,3000\n")
	s := &fakeScraper{
		loginOK:  true,
		products: map[string]*models.ScrapedProduct{"http://x/item.php?it_id=1": scrapedFixture("1")},
	}
	o := New(cfg, s, images.NewMaterializer(cfg.Paths.OutputDir, stubFetcher{}, nil), failingRenderer{}, Options{})

	results, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 1 || results[0].Status != models.StatusFailedMessage {
		t.Fatalf("results = %+v, want one FAILED_MESSAGE", results)
	}
}
