package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"rental-scraper/pkg/checkpoint"
	"rental-scraper/pkg/config"
	"rental-scraper/pkg/dedupe"
	"rental-scraper/pkg/discover"
	"rental-scraper/pkg/fetch"
	"rental-scraper/pkg/scrape"
	"rental-scraper/pkg/session"
	"rental-scraper/pkg/stats"
	"rental-scraper/pkg/storage"
)

const version = "0.4.1"

const dbGCInterval = 10 * time.Minute

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "discover":
		runDiscover(os.Args[2:])
	case "scrape":
		runScrape(os.Args[2:])
	case "dedupe":
		runDedupe(os.Args[2:])
	case "import":
		runImport(os.Args[2:])
	case "summary":
		runSummary(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "version":
		fmt.Printf("rental-scraper %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `rental-scraper - Rental listing detail extraction pipeline

Usage:
  rental-scraper <command> [options]

Commands:
  discover  Build the backlog from the listing search API
  scrape    Extract details for every backlog listing
  dedupe    Collapse the dataset to one record per ref_id (most recent wins)
  import    Load the dataset into PostgreSQL
  summary   Show dataset statistics
  validate  Validate configuration file
  version   Show version info

Run 'rental-scraper <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// setupLogger creates a configured logrus.Logger with the given log level.
func setupLogger(logLevelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
	}

	return log
}

// loadAndValidateConfig loads the config file, validates it, and logs warnings.
func loadAndValidateConfig(configFile string, log *logrus.Logger) *config.AppConfig {
	log.Infof("Loading configuration from %s", configFile)
	appCfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	warnings, _ := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}

	return appCfg
}

// siteName derives the per-site state directory name from the discovery API
// host, so two sites configured side by side never share scrape status.
func siteName(cfg *config.AppConfig) string {
	if cfg.Discovery.BaseURL != "" {
		if u, err := url.Parse(cfg.Discovery.BaseURL); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return "rentals"
}

// signalContext returns a context cancelled on SIGINT/SIGTERM. A second
// signal, or a graceful-shutdown window expiring after the first, forces exit.
func signalContext(log *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	return ctx, cancel
}

// runDiscover handles the discover subcommand
func runDiscover(args []string) {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rental-scraper discover [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)

	warnings, err := appCfg.Discovery.Validate()
	if err != nil {
		log.Fatalf("Discovery config error: %v", err)
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	logEntry := log.WithField("component", "discover")
	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, logEntry)
	fetcher := fetch.NewFetcher(httpClient, appCfg, logEntry)
	limiter := fetch.NewRateLimiter(appCfg.Discovery.PageDelay, logEntry)

	d := discover.NewDiscoverer(fetcher, limiter, appCfg.Discovery, logEntry)
	refs, err := d.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Discovery failed: %v", err)
	}

	// Write whatever was discovered, even after an interrupt.
	if err := discover.WriteBacklog(appCfg.BacklogPath, refs, logEntry); err != nil {
		log.Fatalf("Failed to write backlog: %v", err)
	}
	log.Infof("Backlog ready: %d refs in %s", len(refs), appCfg.BacklogPath)
}

// runScrape handles the scrape subcommand
func runScrape(args []string) {
	fs := flag.NewFlagSet("scrape", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	force := fs.Bool("force", false, "Re-scrape listings already marked successful (backs up the previous dataset)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rental-scraper scrape [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  rental-scraper scrape -config config.yaml\n")
		fmt.Fprintf(os.Stderr, "  rental-scraper scrape -force\n")
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)

	ctx, cancel := signalContext(log)
	defer cancel()

	logEntry := log.WithField("component", "scrape")

	refs, err := discover.LoadBacklog(appCfg.BacklogPath)
	if err != nil {
		log.Fatalf("Failed to load backlog: %v (run 'rental-scraper discover' first)", err)
	}

	// force re-scrapes but keeps status history; the DB is only reset
	// when its directory is removed out of band.
	store, err := storage.NewBadgerStore(appCfg.StateDir, siteName(appCfg), false, logEntry)
	if err != nil {
		log.Fatalf("Failed to initialize scrape-status DB: %v", err)
	}
	defer store.Close()
	go store.RunGC(ctx, dbGCInterval)

	ckpt := checkpoint.NewWriter(appCfg.OutputPath, logEntry)
	factory := session.ChromeFactory(appCfg.Session, logEntry)

	orch := scrape.NewOrchestrator(*appCfg, factory, store, ckpt, *force, logEntry)
	counters, err := orch.Run(ctx, refs)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Scrape interrupted; progress was checkpointed.")
			os.Exit(0)
		}
		log.Fatalf("Scrape failed: %v", err)
	}

	log.Infof("Scrape complete: %d/%d succeeded, %d failed, %d skipped",
		counters.Success, counters.Total, counters.Failed, counters.Skipped)
}

// runDedupe handles the dedupe subcommand
func runDedupe(args []string) {
	fs := flag.NewFlagSet("dedupe", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	dryRun := fs.Bool("dry-run", false, "Report duplicates without rewriting the dataset")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rental-scraper dedupe [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)
	logEntry := log.WithField("component", "dedupe")

	records, err := checkpoint.Load(appCfg.OutputPath)
	if err != nil {
		log.Fatalf("Failed to load dataset: %v", err)
	}

	counts := dedupe.DuplicateCounts(records)
	for refID, n := range counts {
		logEntry.WithFields(logrus.Fields{"ref_id": refID, "copies": n}).Debug("Duplicate found")
	}

	canonical, removed := dedupe.Dedupe(records)
	log.Infof("Dataset: %d records, %d duplicates across %d ref_ids", len(records), removed, len(counts))

	if *dryRun {
		log.Info("Dry run: dataset left untouched")
		return
	}
	if removed == 0 {
		log.Info("No duplicates, nothing to rewrite")
		return
	}

	ckpt := checkpoint.NewWriter(appCfg.OutputPath, logEntry)
	if _, err := ckpt.Backup(time.Now()); err != nil {
		log.Fatalf("Failed to back up dataset before rewrite: %v", err)
	}
	if err := ckpt.Save(canonical); err != nil {
		log.Fatalf("Failed to write deduplicated dataset: %v", err)
	}
	log.Infof("Deduplicated: %d -> %d records", len(records), len(canonical))
}

// runImport handles the import subcommand
func runImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rental-scraper import [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)

	warnings, err := appCfg.Postgres.Validate()
	if err != nil {
		log.Fatalf("Postgres config error: %v", err)
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	logEntry := log.WithField("component", "import")

	records, err := checkpoint.Load(appCfg.OutputPath)
	if err != nil {
		log.Fatalf("Failed to load dataset: %v", err)
	}
	if len(records) == 0 {
		log.Fatal("Dataset is empty, nothing to import")
	}

	// Import the canonical view: one record per ref_id, most recent wins.
	canonical, removed := dedupe.Dedupe(records)
	if removed > 0 {
		log.Infof("Collapsed %d duplicate records before import", removed)
	}

	imp, err := storage.NewPostgresImporter(appCfg.Postgres.DSN(), logEntry)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer imp.Close()

	written, err := imp.Import(canonical)
	if err != nil {
		log.Fatalf("Import failed after %d rows: %v", written, err)
	}

	total, err := imp.Count()
	if err != nil {
		log.Warnf("Imported %d rows but could not count table: %v", written, err)
		return
	}
	log.Infof("Imported %d rows; listings table now holds %d", written, total)
}

// runSummary handles the summary subcommand
func runSummary(args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rental-scraper summary [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger("error") // summary prints its own output
	appCfg := loadAndValidateConfig(*configFile, log)

	records, err := checkpoint.Load(appCfg.OutputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	printSummary(os.Stdout, appCfg.OutputPath, stats.Summarize(records))
}

func printSummary(w io.Writer, path string, s stats.DatasetSummary) {
	fmt.Fprintf(w, "Dataset: %s\n\n", path)
	fmt.Fprintf(w, "  Records:          %d\n", s.Records)
	fmt.Fprintf(w, "  Multi-unit:       %d (%.1f%%)\n", s.MultiUnit, s.MultiUnitShare()*100)
	fmt.Fprintf(w, "  With price:       %d\n", s.WithPrice)
	if s.WithPrice > 0 {
		fmt.Fprintf(w, "  Average price:    $%.0f\n", s.AveragePrice)
	}

	fmt.Fprintf(w, "\n  By city:\n")
	for _, k := range sortedKeys(s.ByCity) {
		fmt.Fprintf(w, "    %-20s %d\n", k, s.ByCity[k])
	}

	fmt.Fprintf(w, "\n  By building type:\n")
	for _, k := range sortedKeys(s.ByBuildingType) {
		fmt.Fprintf(w, "    %-20s %d\n", k, s.ByBuildingType[k])
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rental-scraper validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, _ := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}

	// Discovery and Postgres sections are optional; validate only if present.
	if appCfg.Discovery.BaseURL != "" {
		discWarnings, err := appCfg.Discovery.Validate()
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: [discovery] %v\n", err)
			return 1
		}
		for _, w := range discWarnings {
			fmt.Fprintf(stdout, "WARN: [discovery] %s\n", w)
		}
		fmt.Fprintln(stdout, "OK: [discovery]")
	}

	if appCfg.Postgres.User != "" || appCfg.Postgres.DBName != "" {
		pgWarnings, err := appCfg.Postgres.Validate()
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: [postgres] %v\n", err)
			return 1
		}
		for _, w := range pgWarnings {
			fmt.Fprintf(stdout, "WARN: [postgres] %s\n", w)
		}
		fmt.Fprintln(stdout, "OK: [postgres]")
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}
