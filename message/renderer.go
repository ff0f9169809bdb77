// Package message renders the outbound sales message for one product
// from a plain-text template with {name} placeholders.
package message

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-wholesale-products/models"
	"github.com/aluiziolira/go-wholesale-products/parser"
)

// DefaultTemplate is used when no template file is configured or the
// configured file is missing.
const DefaultTemplate = "☑️ {brand} {product_name}\n" +
	"\n" +
	"- 가격\n" +
	"{selling_price}\n" +
	"\n" +
	"- 컬러\n" +
	"{colors}\n" +
	"\n" +
	"- 사이즈\n" +
	"{sizes}\n"

var placeholderRegex = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Renderer substitutes product fields into the message template.
type Renderer struct {
	template string
}

// NewRenderer loads the template file, falling back to DefaultTemplate
// when the file does not exist.
func NewRenderer(templatePath string) *Renderer {
	if templatePath != "" {
		data, err := os.ReadFile(templatePath)
		if err == nil {
			return &Renderer{template: string(data)}
		}
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("template unreadable, using default",
				slog.String("path", templatePath),
				slog.Any("error", err),
			)
		} else {
			slog.Warn("template not found, using default", slog.String("path", templatePath))
		}
	}
	return &Renderer{template: DefaultTemplate}
}

// Render fills the template for one product. Empty product fields render
// as empty strings; an unknown placeholder is the only failure mode.
func (r *Renderer) Render(product models.ProcessedProduct) (string, error) {
	fields := map[string]string{
		"brand":         product.Brand,
		"product_name":  product.ProductName,
		"selling_price": parser.FormatPrice(product.SellingPrice, product.OptionPrices),
		"sizes":         strings.Join(product.Sizes, ","),
		"colors":        strings.Join(product.Colors, " "),
	}

	var unknown string
	rendered := placeholderRegex.ReplaceAllStringFunc(r.template, func(match string) string {
		name := match[1 : len(match)-1]
		value, ok := fields[name]
		if !ok {
			if unknown == "" {
				unknown = name
			}
			return match
		}
		return value
	})
	if unknown != "" {
		return "", fmt.Errorf("template references unknown placeholder {%s}", unknown)
	}

	return strings.TrimSpace(rendered), nil
}
