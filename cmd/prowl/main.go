// Package main is the entry point for the prowl crawler.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/priority-crawler/prowl/internal/auth"
	"github.com/priority-crawler/prowl/internal/checkpoint"
	"github.com/priority-crawler/prowl/internal/config"
	"github.com/priority-crawler/prowl/internal/perf"
	"github.com/priority-crawler/prowl/internal/renderer"
	"github.com/priority-crawler/prowl/internal/report"
	"github.com/priority-crawler/prowl/internal/robots"
	"github.com/priority-crawler/prowl/internal/scheduler"
	"github.com/priority-crawler/prowl/internal/session"
	"github.com/priority-crawler/prowl/internal/storage"
)

const statsInterval = 5 * time.Second

func main() {
	var (
		configPath    = flag.String("config", "", "config file (JSON or YAML)")
		seedURL       = flag.String("seed", "", "seed URL to start crawling from")
		maxPages      = flag.Int("max-pages", 0, "page budget override")
		maxDepth      = flag.Int("max-depth", -1, "depth bound override")
		preset        = flag.String("preset", "", "preset: fast, polite, stealth or render")
		render        = flag.Bool("render", false, "render pages with headless Chromium")
		dbPath        = flag.String("db", "", "SQLite database path")
		outputDir     = flag.String("out", "", "report output directory")
		format        = flag.String("format", "csv", "export format: csv, xlsx, json, workbook or none")
		checkpointDir = flag.String("checkpoints", "", "checkpoint directory (enables auto-save)")
		resume        = flag.Bool("resume", false, "resume from the latest checkpoint")
		robotsReport  = flag.Bool("robots-report", false, "print the robots/sitemap report for the seed and exit")
		logLevel      = flag.String("log-level", "info", "log level: debug, info, warn or error")
		saveConfig    = flag.String("save-config", "", "write the effective config to a file and exit")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: prowl -seed <url> [options]\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	setupLogging(*logLevel)

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logrus.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *preset != "" {
		p, err := presetByName(*preset)
		if err != nil {
			logrus.Fatal(err)
		}
		applyPreset(cfg, p)
	}
	if *seedURL != "" {
		cfg.SeedURL = *seedURL
	}
	if *maxPages > 0 {
		cfg.MaxPages = *maxPages
	}
	if *maxDepth >= 0 {
		cfg.MaxDepth = *maxDepth
	}
	if *render {
		cfg.RenderMode = config.RenderChrome
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *checkpointDir != "" {
		cfg.CheckpointDir = *checkpointDir
	}

	if *saveConfig != "" {
		if err := cfg.Save(*saveConfig); err != nil {
			logrus.Fatalf("Failed to save config: %v", err)
		}
		fmt.Printf("Config written to %s\n", *saveConfig)
		return
	}

	if *robotsReport {
		if cfg.SeedURL == "" {
			flag.Usage()
			os.Exit(1)
		}
		runRobotsReport(cfg)
		return
	}

	if cfg.SeedURL == "" && !*resume {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(cfg, *resume, *format); err != nil {
		logrus.Fatalf("Crawl failed: %v", err)
	}
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Warnf("Unknown log level %q, using info", level)
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
}

func presetByName(name string) (*config.CrawlConfig, error) {
	switch strings.ToLower(name) {
	case "fast":
		return config.PresetFast, nil
	case "polite":
		return config.PresetPolite, nil
	case "stealth":
		return config.PresetStealth, nil
	case "render", "rendering":
		return config.PresetRendering, nil
	}
	return nil, fmt.Errorf("unknown preset %q", name)
}

// applyPreset copies the crawl-behavior fields a preset defines over
// the current configuration. Scope, priority rules and persistence
// settings are left alone.
func applyPreset(cfg, p *config.CrawlConfig) {
	cfg.MaxPages = p.MaxPages
	cfg.MaxDepth = p.MaxDepth
	cfg.DelayMin = p.DelayMin
	cfg.DelayMax = p.DelayMax
	cfg.AdaptiveDelay = p.AdaptiveDelay
	cfg.PerHostRateLimit = p.PerHostRateLimit
	cfg.Timeout = p.Timeout
	cfg.MaxRetries = p.MaxRetries
	cfg.RetryJitter = p.RetryJitter
	cfg.RespectRobots = p.RespectRobots
	cfg.RenderMode = p.RenderMode
	if p.RenderTimeout > 0 {
		cfg.RenderTimeout = p.RenderTimeout
	}
	if p.WaitCondition != "" {
		cfg.WaitCondition = p.WaitCondition
	}
}

func run(cfg *config.CrawlConfig, resume bool, format string) error {
	var manager *checkpoint.Manager
	if cfg.CheckpointDir != "" {
		var err error
		manager, err = checkpoint.NewManager(&checkpoint.ManagerConfig{
			BaseDir:     cfg.CheckpointDir,
			MaxKeep:     5,
			Compression: true,
		})
		if err != nil {
			return err
		}
	}

	var state *checkpoint.State
	if resume {
		if manager == nil {
			return fmt.Errorf("-resume requires -checkpoints")
		}
		var err error
		state, err = manager.LoadLatest()
		if err != nil {
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if cfg.SeedURL == "" {
			cfg.SeedURL = state.SeedURL
		}
	}

	c, err := scheduler.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if state != nil {
		if err := c.Restore(state); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.AuthType != config.AuthNone {
		authenticator, err := auth.New(cfg)
		if err != nil {
			return err
		}
		if err := authenticator.Login(ctx); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		c.SetAuthorizer(authenticator)
	}

	if cfg.RenderMode == config.RenderChrome {
		r, err := renderer.New(cfg)
		if err != nil {
			return err
		}
		defer r.Close()
		c.SetRenderer(r)
	}

	var db *storage.Database
	if cfg.DatabasePath != "" {
		db, err = storage.NewDatabase(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Initialize(); err != nil {
			return err
		}
		cfgJSON, _ := json.Marshal(cfg)
		if err := db.BeginSession(c.Session().ID(), cfg.SeedURL, string(cfgJSON)); err != nil {
			return err
		}
		c.SetSink(db)
	}

	monitor := perf.NewMonitor(nil)
	monitor.OnChange(func(l perf.Level) {
		if l >= perf.LevelHigh {
			logrus.Warnf("Memory pressure %s", l)
		} else {
			logrus.Debugf("Memory pressure %s", l)
		}
	})
	monitor.Start(ctx)
	defer monitor.Stop()
	c.SetMemoryGuard(monitor)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logrus.Warn("Interrupt received, finishing current page")
		cancel()
		<-sigCh
		logrus.Error("Second interrupt, exiting now")
		os.Exit(1)
	}()

	done := make(chan struct{})
	go progressLoop(ctx, done, c, monitor, manager, cfg.CheckpointInterval)

	result, err := c.Crawl(ctx)
	close(done)
	if err != nil {
		if db != nil && result != nil {
			db.FinishSession(result, storage.SessionFailed)
		}
		return err
	}

	// An interrupted crawl leaves a checkpoint behind so -resume can
	// pick it up.
	if ctx.Err() != nil && manager != nil {
		if id, err := manager.Save(c.Checkpoint()); err != nil {
			logrus.Warnf("Checkpoint save failed: %v", err)
		} else {
			logrus.Infof("Checkpoint saved on interrupt: %s", id)
		}
	}

	if db != nil {
		if err := db.FinishSession(result, storage.SessionCompleted); err != nil {
			logrus.Warnf("Failed to finalize session row: %v", err)
		}
	}

	printSummary(result)

	if cfg.OutputDir != "" && format != "none" {
		if err := exportReports(result, cfg.OutputDir, format); err != nil {
			return err
		}
	}
	return nil
}

// progressLoop logs crawl progress and auto-saves checkpoints until
// done closes.
func progressLoop(ctx context.Context, done <-chan struct{}, c *scheduler.Crawler,
	monitor *perf.Monitor, manager *checkpoint.Manager, saveInterval time.Duration) {

	statsTicker := time.NewTicker(statsInterval)
	defer statsTicker.Stop()

	var saveCh <-chan time.Time
	if manager != nil && saveInterval > 0 {
		saveTicker := time.NewTicker(saveInterval)
		defer saveTicker.Stop()
		saveCh = saveTicker.C
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-statsTicker.C:
			stats := c.Stats()
			mem := monitor.Snapshot()
			logrus.Infof("Progress: visited=%d failed=%d queued=%d edges=%d heap=%dMB elapsed=%s",
				stats.Visited, stats.Failed, stats.Queued, stats.Edges,
				mem.Alloc>>20, stats.Elapsed.Round(time.Second))
		case <-saveCh:
			if id, err := manager.Save(c.Checkpoint()); err != nil {
				logrus.Warnf("Checkpoint save failed: %v", err)
			} else {
				logrus.Infof("Checkpoint saved: %s", id)
			}
		}
	}
}

func printSummary(result *session.Result) {
	fmt.Println("\n========== Crawl Complete ==========")
	fmt.Printf("Session:       %s\n", result.SessionID)
	fmt.Printf("Seed:          %s\n", result.SeedURL)
	fmt.Printf("Pages Visited: %d\n", result.Stats.PagesVisited)
	fmt.Printf("Pages Failed:  %d\n", result.Stats.PagesFailed)
	fmt.Printf("Edges:         %d\n", result.Stats.Edges)
	fmt.Printf("Elapsed:       %s\n", result.Duration.Round(time.Millisecond))

	top := topPages(result, 5)
	if len(top) > 0 {
		fmt.Println("\nTop pages by importance:")
		for i, page := range top {
			fmt.Printf("  %d. %.4f  %s\n", i+1, page.ImportanceScore, page.URL)
		}
	}
}

func topPages(result *session.Result, n int) []*session.PageRecord {
	pages := make([]*session.PageRecord, 0, len(result.Pages))
	for _, page := range result.Pages {
		if !page.Failed {
			pages = append(pages, page)
		}
	}
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].ImportanceScore > pages[j].ImportanceScore
	})
	if len(pages) > n {
		pages = pages[:n]
	}
	return pages
}

func exportReports(result *session.Result, outputDir, format string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	generator := report.NewGenerator(result)
	bulk := report.NewBulkExporter(generator, outputDir)

	switch format {
	case "csv":
		if err := bulk.ExportAll(report.FormatCSV); err != nil {
			return err
		}
	case "xlsx":
		if err := bulk.ExportAll(report.FormatXLSX); err != nil {
			return err
		}
	case "json":
		if err := bulk.ExportAll(report.FormatJSON); err != nil {
			return err
		}
	case "workbook":
		name := fmt.Sprintf("crawl_report_%s.xlsx", time.Now().Format("20060102_150405"))
		if err := bulk.ExportWorkbook(filepath.Join(outputDir, name)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown export format %q", format)
	}

	if err := report.ExportGraphSummary(result, filepath.Join(outputDir, "graph_summary.json")); err != nil {
		return err
	}

	logrus.Infof("Reports written to %s", outputDir)
	return nil
}

func runRobotsReport(cfg *config.CrawlConfig) {
	client := &http.Client{Timeout: cfg.Timeout}
	rep := robots.BuildReport(context.Background(), client, cfg.SeedURL, cfg.RobotsAgent)

	policy := rep.Policy
	fmt.Printf("Robots report for %s\n\n", policy.Host)
	if policy.FetchedOK {
		fmt.Printf("robots.txt:    HTTP %d\n", policy.FetchStatus)
	} else {
		fmt.Printf("robots.txt:    not available (HTTP %d), treating as allow-all\n", policy.FetchStatus)
	}
	fmt.Printf("Agent group:   %s\n", policy.Agent)
	fmt.Printf("Crawlability:  %.1f/100\n", rep.Crawlability)
	fmt.Printf("Allow rules:   %d\n", len(policy.Allow))
	fmt.Printf("Disallow rules: %d\n", len(policy.Disallow))
	if policy.CrawlDelay >= 0 {
		fmt.Printf("Crawl delay:   %s\n", policy.CrawlDelay)
	}

	inv := rep.Inventory
	fmt.Printf("\nSitemaps (%d fetched):\n", len(inv.Files))
	for _, file := range inv.Files {
		switch file.Kind {
		case "urlset":
			fmt.Printf("  %s: %d URLs\n", file.URL, file.URLCount)
		case "index":
			fmt.Printf("  %s: index\n", file.URL)
		default:
			fmt.Printf("  %s: %s\n", file.URL, file.Err)
		}
	}
	if len(inv.Classes) > 0 {
		fmt.Println("\nSitemap URL classes:")
		for _, class := range []string{"product", "category", "article", "other"} {
			if count := inv.Classes[class]; count > 0 {
				fmt.Printf("  %-10s %d\n", class, count)
			}
		}
	}
}
