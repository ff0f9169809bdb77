package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/go-wholesale-products/config"
	"github.com/aluiziolira/go-wholesale-products/images"
	"github.com/aluiziolira/go-wholesale-products/message"
	"github.com/aluiziolira/go-wholesale-products/models"
	"github.com/aluiziolira/go-wholesale-products/pipeline"
	"github.com/aluiziolira/go-wholesale-products/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run())
}

func run() int {
	settingsPath := flag.String("config", "config/settings.yaml", "Settings file path")
	credentialsPath := flag.String("credentials", "config/credentials.env", "Credentials dotenv file path")
	csvPath := flag.String("csv", "", "Input CSV path (overrides settings)")
	outputDir := flag.String("output", "", "Output directory (overrides settings)")
	templatePath := flag.String("template", "", "Message template path (overrides settings)")
	engine := flag.String("engine", "", "Scraper engine: session or colly (overrides settings)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg, err := config.Load(*settingsPath)
	if err != nil {
		slog.Error("loading settings", slog.Any("error", err))
		return 1
	}
	if err := cfg.LoadCredentials(*credentialsPath); err != nil {
		slog.Error("loading credentials", slog.Any("error", err))
		return 1
	}
	if *csvPath != "" {
		cfg.Paths.InputCSV = *csvPath
	}
	if *outputDir != "" {
		cfg.Paths.OutputDir = *outputDir
	}
	if *templatePath != "" {
		cfg.Paths.MessageTemplate = *templatePath
	}
	if *engine != "" {
		cfg.Site.Engine = *engine
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *verbose {
		cfg.Verbose = true
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}
	if cfg.Verbose {
		level.Set(slog.LevelDebug)
	}

	slog.Info("starting collection run",
		slog.String("base_url", cfg.Site.BaseURL),
		slog.String("engine", cfg.Site.Engine),
		slog.String("input_csv", cfg.Paths.InputCSV),
		slog.String("output_dir", cfg.Paths.OutputDir),
	)

	metrics := scraper.NewMetrics()
	s, err := scraper.New(cfg.Site, metrics)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		return 1
	}

	fetcher := images.NewFetcher(s.CookieJar(), cfg.Site.Timeout(), cfg.Site.UserAgent)
	materializer := images.NewMaterializer(cfg.Paths.OutputDir, fetcher, metrics)
	renderer := message.NewRenderer(cfg.Paths.MessageTemplate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	o := pipeline.New(cfg, s, materializer, renderer, pipeline.Options{
		OnProgress: func(current, total int, productID string) {
			slog.Info("progress",
				slog.Int("current", current),
				slog.Int("total", total),
				slog.String("product_id", productID),
			)
		},
	})

	startTime := time.Now()
	results, runErr := o.Run(ctx)
	duration := time.Since(startTime)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if runErr != nil {
		slog.Error("run aborted", slog.Any("error", runErr))
		return 2
	}
	if len(results) == 0 {
		slog.Warn("run produced no results")
		return 2
	}

	printSummary(results, duration, cfg.Paths.OutputDir)

	for _, r := range results {
		if !r.Status.Succeeded() {
			return 1
		}
	}
	return 0
}

func printSummary(results []models.Result, duration time.Duration, outputDir string) {
	succeeded := 0
	for _, r := range results {
		if r.Status.Succeeded() {
			succeeded++
		}
	}

	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Collection complete")
	fmt.Printf("  Total products: %d\n", len(results))
	fmt.Printf("  Succeeded:      %d\n", succeeded)
	fmt.Printf("  Failed:         %d\n", len(results)-succeeded)
	fmt.Printf("  Duration:       %v\n", duration)
	fmt.Printf("  Output dir:     %s\n", outputDir)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
