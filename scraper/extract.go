package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-wholesale-products/config"
	"github.com/aluiziolira/go-wholesale-products/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

// postFunc issues a form POST through the owning scraper's transport.
type postFunc func(ctx context.Context, postURL string, form url.Values) ([]byte, error)

// extractor pulls product fields out of a parsed page using the
// configured selectors and table labels.
type extractor struct {
	cfg config.SiteConfig

	// Option surcharge responses are static for a product within one run,
	// so repeated CSV rows for the same item skip the AJAX round trips.
	optionCache *lru.Cache[string, []int]
}

func (x *extractor) product(ctx context.Context, doc *goquery.Document, productID, pageURL string, post postFunc) (*models.ScrapedProduct, error) {
	name := x.text(doc, x.cfg.Selectors.ProductName)
	if name == "" {
		return nil, fmt.Errorf("product name selector %q matched nothing", x.cfg.Selectors.ProductName)
	}

	return &models.ScrapedProduct{
		ProductID:      productID,
		ProductName:    name,
		WholesalePrice: x.attr(doc, x.cfg.Selectors.Price, "value"),
		Brand:          x.tableValue(doc, x.cfg.Labels.Brand),
		Colors:         x.tableList(doc, x.cfg.Labels.Colors),
		Sizes:          x.tableList(doc, x.cfg.Labels.Sizes),
		OptionPrices:   x.optionPrices(ctx, doc, pageURL, post),
		ImageURLs:      x.imageURLs(doc),
	}, nil
}

func (x *extractor) text(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	text := strings.TrimSpace(doc.Find(selector).First().Text())
	if text == "" {
		slog.Warn("selector matched nothing or empty", slog.String("selector", selector))
	}
	return text
}

func (x *extractor) attr(doc *goquery.Document, selector, attr string) string {
	if selector == "" {
		return ""
	}
	value := strings.TrimSpace(doc.Find(selector).First().AttrOr(attr, ""))
	if value == "" {
		slog.Warn("selector attribute missing or empty",
			slog.String("selector", selector),
			slog.String("attr", attr),
		)
	}
	return value
}

// findTH returns the first <th> whose text contains label.
func findTH(doc *goquery.Document, label string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("th").EachWithBreak(func(_ int, th *goquery.Selection) bool {
		if strings.Contains(th.Text(), label) {
			found = th
			return false
		}
		return true
	})
	return found
}

func (x *extractor) tableValue(doc *goquery.Document, label string) string {
	if label == "" {
		return ""
	}
	if th := findTH(doc, label); th != nil {
		if text := strings.TrimSpace(th.NextFiltered("td").Text()); text != "" {
			return text
		}
	}
	slog.Warn("table header not found or empty", slog.String("label", label))
	return ""
}

func (x *extractor) tableList(doc *goquery.Document, label string) []string {
	raw := x.tableValue(doc, label)
	if raw == "" {
		return nil
	}
	var values []string
	for _, part := range strings.Split(raw, "/") {
		if v := strings.TrimSpace(part); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func (x *extractor) imageURLs(doc *goquery.Document) []string {
	if x.cfg.Selectors.DetailImages == "" {
		return nil
	}
	base, _ := url.Parse(x.cfg.BaseURL)
	var urls []string
	doc.Find(x.cfg.Selectors.DetailImages).Each(func(_ int, img *goquery.Selection) {
		src := strings.TrimSpace(img.AttrOr("src", ""))
		if src == "" {
			return
		}
		if ref, err := url.Parse(src); err == nil && base != nil {
			urls = append(urls, base.ResolveReference(ref).String())
			return
		}
		urls = append(urls, src)
	})
	return urls
}

var g5ShopURLRegex = regexp.MustCompile(`g5_shop_url\s*=\s*["']([^"']+)`)

// optionPrices collects the distinct non-zero surcharges offered by the
// Gnuboard itemoption.php endpoint. Products with fewer than two option
// selects have no surcharge tiers. Failures here are logged, never fatal:
// surcharges are informational, the base price stands on its own.
func (x *extractor) optionPrices(ctx context.Context, doc *goquery.Document, pageURL string, post postFunc) []int {
	selects := doc.Find("select.it_option")
	if selects.Length() < 2 {
		return nil
	}

	first := selects.First()
	var optionValues []string
	first.Find("option").Each(func(_ int, opt *goquery.Selection) {
		if v := strings.TrimSpace(opt.AttrOr("value", "")); v != "" {
			optionValues = append(optionValues, v)
		}
	})
	if len(optionValues) == 0 {
		return nil
	}

	itID := ""
	if parsed, err := url.Parse(pageURL); err == nil {
		itID = parsed.Query().Get("it_id")
	}
	if itID == "" {
		return nil
	}

	shopURL := strings.TrimRight(x.cfg.BaseURL, "/") + "/shop"
	doc.Find("script").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		if m := g5ShopURLRegex.FindStringSubmatch(script.Text()); len(m) > 1 {
			shopURL = m[1]
			return false
		}
		return true
	})
	postURL := shopURL + "/itemoption.php"
	opTitle := strings.TrimSpace(first.Find("option").First().Text())

	seen := make(map[int]struct{})
	for _, optValue := range optionValues {
		cacheKey := itID + "|" + optValue
		if prices, ok := x.optionCache.Get(cacheKey); ok {
			for _, p := range prices {
				seen[p] = struct{}{}
			}
			continue
		}

		form := url.Values{}
		form.Set("it_id", itID)
		form.Set("opt_id", optValue)
		form.Set("idx", "0")
		form.Set("sel_count", strconv.Itoa(selects.Length()))
		form.Set("op_title", opTitle)

		body, err := post(ctx, postURL, form)
		if err != nil {
			slog.Debug("option price request failed",
				slog.String("opt_id", optValue),
				slog.Any("error", err),
			)
			continue
		}

		prices := parseOptionResponse(body)
		x.optionCache.Add(cacheKey, prices)
		for _, p := range prices {
			seen[p] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// parseOptionResponse reads itemoption.php option values shaped as
// "name,surcharge,stock" and returns the non-zero surcharges, sorted.
func parseOptionResponse(body []byte) []int {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	seen := make(map[int]struct{})
	doc.Find("option").Each(func(_ int, opt *goquery.Selection) {
		value := strings.TrimSpace(opt.AttrOr("value", ""))
		if value == "" {
			return
		}
		parts := strings.Split(value, ",")
		if len(parts) < 2 {
			return
		}
		price, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || price == 0 {
			return
		}
		seen[price] = struct{}{}
	})
	if len(seen) == 0 {
		return nil
	}
	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
