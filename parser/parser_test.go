package parser

import (
	"strings"
	"testing"
)

func TestParseRows(t *testing.T) {
	csv := strings.Join([]string{
		"url,margin",
		"https://x/item.php?it_id=1,3000",
		"https://x/item.php?it_id=2,not-a-number",
		",2000",
		"https://x/item.php?it_id=3,-500",
	}, "\n")

	rows, err := ParseRows(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parse rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].URL != "https://x/item.php?it_id=1" || rows[0].Margin != 3000 {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].Margin != -500 {
		t.Fatalf("negative margin should be accepted, got %+v", rows[1])
	}
}

func TestParseRowsEmptyMarginDefaultsToZero(t *testing.T) {
	rows, err := ParseRows(strings.NewReader("url,margin\nhttps://x/item.php?it_id=1,\n"))
	if err != nil {
		t.Fatalf("parse rows: %v", err)
	}
	if len(rows) != 1 || rows[0].Margin != 0 {
		t.Fatalf("rows = %+v, want one row with zero margin", rows)
	}
}

func TestParseRowsEmptyInput(t *testing.T) {
	rows, err := ParseRows(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty input should not error: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(rows))
	}
}

func TestParseRowsMalformedLineSkipsThatLineOnly(t *testing.T) {
	csv := strings.Join([]string{
		"url,margin",
		"https://x/item.php?it_id=1,3000",
		`https://x/item.php?it_id=2,"broken`,
		"https://x/item.php?it_id=3,1000",
		`"https://x/item.php?it_id=4",2000`,
	}, "\n")

	rows, err := ParseRows(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("one bad line must not abort the parse: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3 (malformed line skipped)", len(rows))
	}
	if rows[0].URL != "https://x/item.php?it_id=1" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].URL != "https://x/item.php?it_id=3" || rows[1].Line != 4 {
		t.Fatalf("row after the malformed line lost: %+v", rows[1])
	}
	if rows[2].URL != "https://x/item.php?it_id=4" || rows[2].Margin != 2000 {
		t.Fatalf("well-formed quoting should still parse: %+v", rows[2])
	}
}

func TestParseRowsMissingHeaderColumns(t *testing.T) {
	if _, err := ParseRows(strings.NewReader("link,price\na,b\n")); err == nil {
		t.Fatalf("expected error for header without url/margin")
	}
}

func TestResolvePrice(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		margin        int
		wantWholesale int
		wantSelling   int
	}{
		{name: "korean won", text: "21,000원", margin: 3000, wantWholesale: 21000, wantSelling: 24000},
		{name: "empty text", text: "", margin: 5000, wantWholesale: 0, wantSelling: 5000},
		{name: "non numeric", text: "문의", margin: 1000, wantWholesale: 0, wantSelling: 1000},
		{name: "plain digits", text: "9900", margin: 0, wantWholesale: 9900, wantSelling: 9900},
		{name: "negative margin", text: "10,000", margin: -2000, wantWholesale: 10000, wantSelling: 8000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wholesale, selling := ResolvePrice(tt.text, tt.margin)
			if wholesale != tt.wantWholesale || selling != tt.wantSelling {
				t.Fatalf("ResolvePrice(%q, %d) = (%d, %d), want (%d, %d)",
					tt.text, tt.margin, wholesale, selling, tt.wantWholesale, tt.wantSelling)
			}
		})
	}
}

func TestFormatPrice(t *testing.T) {
	if got := FormatPrice(24000, nil); got != "24000" {
		t.Fatalf("FormatPrice = %q, want %q", got, "24000")
	}
	if got := FormatPrice(24000, []int{3000, 5000}); got != "24000 / +3000 / +5000" {
		t.Fatalf("FormatPrice = %q, want %q", got, "24000 / +3000 / +5000")
	}
}

func TestMakeDirName(t *testing.T) {
	tests := []struct {
		name  string
		brand string
		prod  string
		seq   int
		want  string
	}{
		{name: "illegal chars stripped", brand: "A/B", prod: "Shirt:Red", seq: 3, want: "003_AB_ShirtRed"},
		{name: "trimmed dots and spaces", brand: " Nike. ", prod: " Air ", seq: 1, want: "001_Nike_Air"},
		{name: "empty after sanitize", brand: "///", prod: "???", seq: 12, want: "012_product"},
		{name: "no brand", brand: "", prod: "Hat", seq: 7, want: "007_Hat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MakeDirName(tt.brand, tt.prod, tt.seq); got != tt.want {
				t.Fatalf("MakeDirName(%q, %q, %d) = %q, want %q", tt.brand, tt.prod, tt.seq, got, tt.want)
			}
		})
	}
}

func TestMakeDirNameTruncates(t *testing.T) {
	long := strings.Repeat("a", 200)
	got := MakeDirName("Brand", long, 5)
	if len(got) != 120 {
		t.Fatalf("dir name = %d chars, want the prefix-inclusive 120 cap", len(got))
	}
	if !strings.HasPrefix(got, "005_Brand_") {
		t.Fatalf("unexpected prefix: %q", got)
	}
}
