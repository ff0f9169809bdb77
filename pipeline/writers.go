package pipeline

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aluiziolira/go-wholesale-products/models"
)

// ReportWriter produces the run-level report files under the output
// directory: summary.txt always (given results), messages.txt only when
// at least one row succeeded.
type ReportWriter struct {
	outputDir string
	now       func() time.Time
}

// NewReportWriter builds a writer rooted at outputDir.
func NewReportWriter(outputDir string) *ReportWriter {
	return &ReportWriter{outputDir: outputDir, now: time.Now}
}

// SummaryPath is where the human-readable run summary lands.
func (w *ReportWriter) SummaryPath() string {
	return filepath.Join(w.outputDir, "summary.txt")
}

// MessagesPath is where the combined outbound messages land.
func (w *ReportWriter) MessagesPath() string {
	return filepath.Join(w.outputDir, "messages.txt")
}

// WriteSummary writes the grouped success/failure report. Zero results
// mean the run aborted before processing; no file is written.
func (w *ReportWriter) WriteSummary(results []models.Result) error {
	if len(results) == 0 {
		return nil
	}
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	var succeeded, failed []models.Result
	for _, r := range results {
		if r.Status.Succeeded() {
			succeeded = append(succeeded, r)
		} else {
			failed = append(failed, r)
		}
	}

	f, err := os.Create(w.SummaryPath())
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	defer f.Close()

	out := bufio.NewWriter(f)
	fmt.Fprintf(out, "Run at: %s\n", w.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Total: %d  Succeeded: %d  Failed: %d\n", len(results), len(succeeded), len(failed))

	fmt.Fprintf(out, "\n--- Succeeded ---\n")
	for _, r := range succeeded {
		fmt.Fprintf(out, "  %03d %s %s %s (wholesale=%d selling=%d margin=%d)\n",
			r.Seq, r.ProductID, r.Brand, r.ProductName,
			r.WholesalePrice, r.SellingPrice, r.Margin(),
		)
		fmt.Fprintf(out, "      URL: %s\n", r.URL)
	}

	if len(failed) > 0 {
		fmt.Fprintf(out, "\n--- Failed ---\n")
		for _, r := range failed {
			fmt.Fprintf(out, "  %03d %s [%s] %s\n", r.Seq, r.ProductID, r.Status, r.Error)
			fmt.Fprintf(out, "      URL: %s\n", r.URL)
		}
	}

	if err := out.Flush(); err != nil {
		return fmt.Errorf("flush summary file: %w", err)
	}
	slog.Info("summary written", slog.String("path", w.SummaryPath()))
	return nil
}

// WriteMessages concatenates every DONE row's persisted message.txt in
// sequence order under zero-padded section headers. With zero successes
// the file is skipped entirely.
func (w *ReportWriter) WriteMessages(results []models.Result) error {
	var done []models.Result
	for _, r := range results {
		if r.Status.Succeeded() {
			done = append(done, r)
		}
	}
	if len(done) == 0 {
		return nil
	}
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	f, err := os.Create(w.MessagesPath())
	if err != nil {
		return fmt.Errorf("create messages file: %w", err)
	}
	defer f.Close()

	out := bufio.NewWriter(f)
	for _, r := range done {
		messagePath := filepath.Join(w.outputDir, r.DirName, "message.txt")
		body, err := os.ReadFile(messagePath)
		if err != nil {
			slog.Warn("message file unreadable, skipping section",
				slog.String("path", messagePath),
				slog.Any("error", err),
			)
			continue
		}
		fmt.Fprintf(out, "===== %03d =====\n", r.Seq)
		out.Write(body)
		fmt.Fprintf(out, "\n\n")
	}

	if err := out.Flush(); err != nil {
		return fmt.Errorf("flush messages file: %w", err)
	}
	slog.Info("combined messages written", slog.String("path", w.MessagesPath()))
	return nil
}
