// Package parser turns raw CSV input and scraped text into validated
// pipeline values: rows, integer prices and filesystem-safe names.
package parser

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-wholesale-products/models"
)

// ParseRows reads the input CSV and returns the valid rows in file order.
// The header must contain url and margin columns. Each line is parsed in
// isolation so a quoting error in one line skips that line alone, with a
// warning; only an unreadable stream or a bad header is an error.
func ParseRows(r io.Reader) ([]models.Row, error) {
	scanner := bufio.NewScanner(r)

	urlCol, marginCol := -1, -1
	headerSeen := false
	var rows []models.Row
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		record, err := parseLine(text)
		if err != nil {
			if !headerSeen {
				return nil, fmt.Errorf("read csv header: %w", err)
			}
			slog.Warn("skipping malformed csv line",
				slog.Int("line", line),
				slog.Any("error", err),
			)
			continue
		}

		if !headerSeen {
			headerSeen = true
			for i, name := range record {
				switch strings.ToLower(strings.TrimSpace(name)) {
				case "url":
					urlCol = i
				case "margin":
					marginCol = i
				}
			}
			if urlCol < 0 || marginCol < 0 {
				return nil, fmt.Errorf("csv header must contain url and margin columns, got %v", record)
			}
			continue
		}

		url := ""
		if urlCol < len(record) {
			url = strings.TrimSpace(record[urlCol])
		}
		if url == "" {
			slog.Warn("skipping csv line with empty url", slog.Int("line", line))
			continue
		}

		marginText := ""
		if marginCol < len(record) {
			marginText = strings.TrimSpace(record[marginCol])
		}
		margin := 0
		if marginText != "" {
			margin, err = strconv.Atoi(marginText)
			if err != nil {
				slog.Warn("skipping csv line with invalid margin",
					slog.Int("line", line),
					slog.String("margin", marginText),
				)
				continue
			}
		}

		rows = append(rows, models.Row{URL: url, Margin: margin, Line: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	return rows, nil
}

// parseLine parses one physical CSV line. Quoted fields work within a
// line; there are no multi-line fields in the input schema, and keeping
// lines independent means a stray quote cannot consume following rows.
func parseLine(text string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader.Read()
}

// ResolvePrice converts the scraped wholesale price text and the row
// margin into integer currency units. Only digits count; currency symbols
// and separators are discarded, and empty or non-numeric text yields a
// zero wholesale price. Option surcharges are never folded in here.
func ResolvePrice(wholesaleText string, margin int) (wholesale, selling int) {
	var digits strings.Builder
	for _, r := range wholesaleText {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() > 0 {
		// Cannot fail: the string is all ASCII digits.
		wholesale, _ = strconv.Atoi(digits.String())
	}
	return wholesale, wholesale + margin
}

// FormatPrice renders the selling price for the outbound message, with
// option surcharges appended as alternative tiers.
func FormatPrice(selling int, surcharges []int) string {
	if len(surcharges) == 0 {
		return strconv.Itoa(selling)
	}
	parts := make([]string, 0, len(surcharges)+1)
	parts = append(parts, strconv.Itoa(selling))
	for _, s := range surcharges {
		parts = append(parts, fmt.Sprintf("+%d", s))
	}
	return strings.Join(parts, " / ")
}

const (
	dirNameMaxLen   = 120
	dirNameFallback = "product"
)

// MakeDirName builds the sanitized, sequence-prefixed product directory
// name, capped at 120 runes including the prefix. The seq prefix is the
// only collision guard between rows sharing a brand and product name, so
// callers must keep CSV ordering.
func MakeDirName(brand, name string, seq int) string {
	prefix := fmt.Sprintf("%03d_", seq)
	stem := sanitizeName(brand) + "_" + sanitizeName(name)
	stem = strings.Trim(stem, "_")
	if runes := []rune(stem); len(runes) > dirNameMaxLen-len(prefix) {
		stem = string(runes[:dirNameMaxLen-len(prefix)])
	}
	stem = strings.TrimRight(stem, " .")
	if stem == "" {
		stem = dirNameFallback
	}
	return prefix + stem
}

func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\/:*?"<>|`, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), " .\t\n")
}
