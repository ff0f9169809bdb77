// Package pipeline sequences the per-product collection run: CSV rows in,
// scraped products, local images and rendered messages out, one Result
// per row regardless of outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aluiziolira/go-wholesale-products/config"
	"github.com/aluiziolira/go-wholesale-products/models"
	"github.com/aluiziolira/go-wholesale-products/parser"
	"github.com/aluiziolira/go-wholesale-products/scraper"
)

// ErrLoginFailed is returned when the site rejects the credentials and
// the run aborts before any row is attempted.
var ErrLoginFailed = errors.New("pipeline: login failed")

// Materializer is the image-phase collaborator.
type Materializer interface {
	EnsureImages(ctx context.Context, dirName string, imageURLs []string) ([]string, error)
	ProductDir(dirName string) string
}

// Renderer is the message-phase collaborator.
type Renderer interface {
	Render(product models.ProcessedProduct) (string, error)
}

// Options carries optional orchestrator hooks.
type Options struct {
	// OnProgress is invoked as each row's scrape begins. It runs on the
	// worker goroutine; observers must hand off, not block.
	OnProgress func(current, total int, productID string)
}

// Orchestrator owns the run: it authenticates once, walks the CSV rows
// strictly in file order and aggregates one Result per row.
type Orchestrator struct {
	cfg          *config.Config
	scraper      scraper.Scraper
	materializer Materializer
	renderer     Renderer
	onProgress   func(current, total int, productID string)
}

// New wires an orchestrator from its collaborators.
func New(cfg *config.Config, s scraper.Scraper, m Materializer, r Renderer, opts Options) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg,
		scraper:      s,
		materializer: m,
		renderer:     r,
		onProgress:   opts.OnProgress,
	}
}

// Run executes the whole pipeline and returns the ordered results. An
// empty CSV is a no-op run: (nil, nil). An unreadable CSV or a rejected
// login aborts before any row with a non-nil error and no results.
// Per-row failures never abort the batch.
func (o *Orchestrator) Run(ctx context.Context) ([]models.Result, error) {
	f, err := os.Open(o.cfg.Paths.InputCSV)
	if err != nil {
		return nil, fmt.Errorf("open input csv: %w", err)
	}
	rows, err := parser.ParseRows(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("load input csv: %w", err)
	}
	if len(rows) == 0 {
		slog.Warn("no products in csv, nothing to do")
		return nil, nil
	}
	slog.Info("loaded products from csv", slog.Int("count", len(rows)))

	ok, err := o.scraper.Login(ctx)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !ok {
		return nil, ErrLoginFailed
	}

	total := len(rows)
	results := make([]models.Result, 0, total)
	for i, row := range rows {
		seq := i + 1
		productID := row.ProductID()
		if o.onProgress != nil {
			o.onProgress(seq, total, productID)
		}
		slog.Info("processing product",
			slog.Int("current", seq),
			slog.Int("total", total),
			slog.String("url", row.URL),
		)

		result := o.processRow(ctx, row, seq)
		results = append(results, result)

		outcome := "ok"
		if !result.Status.Succeeded() {
			outcome = "fail"
		}
		slog.Info("product finished",
			slog.String("outcome", outcome),
			slog.String("product_id", result.ProductID),
			slog.String("status", string(result.Status)),
		)
	}

	reporter := NewReportWriter(o.cfg.Paths.OutputDir)
	if err := reporter.WriteSummary(results); err != nil {
		slog.Error("write summary report", slog.Any("error", err))
	}
	if err := reporter.WriteMessages(results); err != nil {
		slog.Error("write combined messages", slog.Any("error", err))
	}

	return results, nil
}

// processRow drives one row through the state machine. Every phase
// failure is converted to a Result at this boundary.
func (o *Orchestrator) processRow(ctx context.Context, row models.Row, seq int) models.Result {
	result := models.Result{
		ProductID: row.ProductID(),
		URL:       row.URL,
		Seq:       seq,
	}

	scraped, err := o.scraper.ScrapeProduct(ctx, row.URL)
	if err != nil {
		slog.Error("scrape failed", slog.String("url", row.URL), slog.Any("error", err))
		result.Status = models.StatusFailedScrape
		result.Error = err.Error()
		return result
	}

	result.Brand = scraped.Brand
	result.ProductName = scraped.ProductName
	result.DirName = parser.MakeDirName(scraped.Brand, scraped.ProductName, seq)
	result.WholesalePrice, result.SellingPrice = parser.ResolvePrice(scraped.WholesalePrice, row.Margin)

	localPaths, err := o.materializer.EnsureImages(ctx, result.DirName, scraped.ImageURLs)
	if err != nil {
		slog.Error("image materialization failed",
			slog.String("dir", result.DirName),
			slog.Any("error", err),
		)
		result.Status = models.StatusFailedImage
		result.Error = err.Error()
		return result
	}

	processed := models.ProcessedProduct{
		ProductID:       scraped.ProductID,
		ProductName:     scraped.ProductName,
		WholesalePrice:  result.WholesalePrice,
		SellingPrice:    result.SellingPrice,
		Brand:           scraped.Brand,
		Sizes:           scraped.Sizes,
		Colors:          scraped.Colors,
		OptionPrices:    scraped.OptionPrices,
		LocalImagePaths: localPaths,
	}
	rendered, err := o.renderer.Render(processed)
	if err != nil {
		slog.Error("message build failed",
			slog.String("product_id", result.ProductID),
			slog.Any("error", err),
		)
		result.Status = models.StatusFailedMessage
		result.Error = err.Error()
		return result
	}

	messagePath := filepath.Join(o.materializer.ProductDir(result.DirName), "message.txt")
	if err := os.WriteFile(messagePath, []byte(rendered), 0o644); err != nil {
		slog.Error("message write failed", slog.String("path", messagePath), slog.Any("error", err))
		result.Status = models.StatusFailedMessage
		result.Error = err.Error()
		return result
	}
	slog.Info("message saved", slog.String("path", messagePath))

	result.Status = models.StatusDone
	return result
}
