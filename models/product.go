// Package models defines data structures for the collection pipeline.
package models

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"path"
	"strings"
)

// Status is the terminal or intermediate state of one CSV row in the
// per-product state machine.
type Status string

const (
	StatusInit          Status = "INIT"
	StatusScraped       Status = "SCRAPED"
	StatusImagesSaved   Status = "IMAGES_SAVED"
	StatusDone          Status = "DONE"
	StatusFailedScrape  Status = "FAILED_SCRAPE"
	StatusFailedImage   Status = "FAILED_IMAGE"
	StatusFailedMessage Status = "FAILED_MESSAGE"
)

// Succeeded reports whether the status is the successful terminal state.
func (s Status) Succeeded() bool {
	return s == StatusDone
}

// Row is one validated CSV input line.
type Row struct {
	URL    string
	Margin int
	Line   int // 1-based line number in the source file, header included
}

// productIDKeys are checked in priority order against the URL query.
var productIDKeys = []string{"it_id", "product_no", "id"}

// ProductID derives a stable product identifier from the row URL.
// Query parameters win over the last path segment; a URL with neither
// falls back to an FNV-1a hash so the identifier stays reproducible.
func (r Row) ProductID() string {
	parsed, err := url.Parse(r.URL)
	if err == nil {
		query := parsed.Query()
		for _, key := range productIDKeys {
			if v := query.Get(key); v != "" {
				return v
			}
		}
		base := path.Base(parsed.Path)
		if base != "." && base != "/" {
			stem := strings.TrimSuffix(base, path.Ext(base))
			if stem != "" {
				return stem
			}
		}
	}
	h := fnv.New64a()
	h.Write([]byte(r.URL))
	return fmt.Sprintf("%d", h.Sum64())
}

// ScrapedProduct is the raw output of one product page scrape.
type ScrapedProduct struct {
	ProductID      string
	ProductName    string
	WholesalePrice string // raw currency-formatted text, e.g. "21,000원"
	Brand          string
	Sizes          []string
	Colors         []string
	ImageURLs      []string
	OptionPrices   []int // distinct non-zero option surcharges, sorted
}

// ProcessedProduct merges scraped fields with computed pricing, local
// image paths and the rendered outbound message. It lives only for the
// duration of one row's processing.
type ProcessedProduct struct {
	ProductID       string
	ProductName     string
	WholesalePrice  int
	SellingPrice    int
	Brand           string
	Sizes           []string
	Colors          []string
	OptionPrices    []int
	LocalImagePaths []string
	Message         string
}

// Result is the per-row outcome recorded by the orchestrator. Exactly one
// Result exists per valid CSV row, in CSV order.
type Result struct {
	ProductID string
	URL       string
	Status    Status
	Error     string
	Seq       int // 1-based position in the run

	// Populated once scraping succeeded.
	Brand          string
	ProductName    string
	WholesalePrice int
	SellingPrice   int
	DirName        string
}

// Margin is the difference between the selling and wholesale price.
func (r Result) Margin() int {
	return r.SellingPrice - r.WholesalePrice
}
