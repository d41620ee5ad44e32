// Package main is the shohin CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/shohin/internal/cli"
	"github.com/hyperjump/shohin/internal/config"
	"github.com/hyperjump/shohin/internal/index"
	"github.com/hyperjump/shohin/internal/ingest"
	"github.com/hyperjump/shohin/internal/models"
	"github.com/hyperjump/shohin/internal/server"
	"github.com/hyperjump/shohin/internal/watcher"
	"github.com/hyperjump/shohin/pkg/utils"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

var version = "dev"

const defaultServerURL = "http://localhost:8080"

// resolveConfigPath expands a leading "~/" in path.
func resolveConfigPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence so that commands run from a
// project directory use the project's config. It returns the config and the
// path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == config.DefaultPath {
		if cwd, err := os.Getwd(); err == nil {
			local := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(local); err == nil {
				path = local
			}
		}
	}
	path = resolveConfigPath(path)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "extract":
		runExtract()
	case "search":
		runSearch()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("shohin version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and creates the logger shared by every local command.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolved, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := setup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("Config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Bool("debug", cfg.Debug || *debug))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, index.ErrIndexInit) {
			logger.Fatal("Index unavailable", zap.Error(err))
		}
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if _, err := components.Pipeline.Reload(ctx, 0); err != nil {
		logger.Fatal("Failed to reload index", zap.Error(err))
	}

	watchSvc := watcher.New(
		cfg.Watch.Directories,
		cfg.Watch.RecursiveOrDefault(),
		components.Pipeline,
		watcher.WithLogger(logger),
		watcher.WithExtensions(cfg.Ingest.Extensions),
	)
	if err := watchSvc.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	go watchSvc.SyncExistingFiles()

	srv := server.NewServer(
		components.Engine,
		components.Pipeline,
		components.Index,
		components.Storage,
		&cfg.Server,
		logger,
		server.WithWatch(watchSvc, resolvedConfigPath, cfg),
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchSvc.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "config file path")
	recursive := fs.Bool("recursive", false, "walk subdirectories")
	pageURL := fs.String("url", "", "ingest a web page instead of a file")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	quiet := fs.Bool("quiet", false, "hide the progress bar")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *pageURL == "" && fs.NArg() < 1 {
		fmt.Println("Usage: shohin ingest [flags] <file-or-directory>\n       shohin ingest -url <page-url>")
		os.Exit(1)
	}

	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()

	var bar *progressbar.ProgressBar
	progress := func(*models.Document) {
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	components, err := initializeComponents(ctx, cfg, logger, ingest.WithProgress(progress))
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	if *pageURL != "" {
		doc, err := components.Pipeline.IngestURL(ctx, *pageURL)
		exitOnDocument(doc, err, format)
		return
	}

	path := fs.Arg(0)
	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if !info.IsDir() {
		doc, err := components.Pipeline.IngestFile(ctx, path)
		exitOnDocument(doc, err, format)
		return
	}

	paths, err := components.Pipeline.CollectFiles(path, *recursive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list %s: %v\n", path, err)
		os.Exit(1)
	}
	if !*quiet && format != cli.OutputJSON {
		bar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("Ingesting"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionShowIts(),
			progressbar.OptionClearOnFinish(),
		)
	}
	summary, err := components.Pipeline.IngestFiles(ctx, paths)
	if bar != nil {
		_ = bar.Finish()
	}
	if summary != nil {
		if werr := cli.WriteSummary(os.Stdout, summary, format); werr != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", werr)
			os.Exit(1)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
		os.Exit(1)
	}
}

// exitOnDocument prints the products of a single ingested document, or
// exits when it failed.
func exitOnDocument(doc *models.Document, err error, format cli.OutputFormat) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	if doc.Status == models.StatusError {
		fmt.Fprintf(os.Stderr, "Ingestion failed for %s: %s\n", doc.Path, doc.Error)
		os.Exit(1)
	}
	if err := cli.WriteProducts(os.Stdout, doc.Products, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// runExtract prints the products found in a file without storing or indexing them.
func runExtract() {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Println("Usage: shohin extract [flags] <file>")
		os.Exit(1)
	}

	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()

	ex, err := newExtractor(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load patterns: %v\n", err)
		os.Exit(1)
	}
	defer ex.Close()

	segments, err := newLoader().Load(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", fs.Arg(0), err)
		os.Exit(1)
	}
	var products []*models.Product
	for _, seg := range segments {
		found, err := ex.Extract(context.Background(), seg.Text, seg.SourceID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
			os.Exit(1)
		}
		products = append(products, found...)
	}
	if err := cli.WriteProducts(os.Stdout, products, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: shohin search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Stages:
  brand_matching           products whose brand matches the query
  reference_matching       products whose reference matches the query
  characteristic_matching  products whose characteristics match (threshold 0.8)
  general                  every product (default)

Examples:
  shohin search perceuse sans fil
  shohin search -stage brand_matching bosch
  shohin search -stage reference_matching GSB120-LI
  shohin search -brand BOSCH -max-price 150 perceuse
`)
}

// buildSearchQuery joins positional args so multi-word queries work with or
// without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// reorderArgs moves flags that follow positional arguments to the front,
// since flag parsing stops at the first non-flag argument.
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// optionalFloat parses s, returning nil for an empty string.
func optionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func optionalString(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

type searchFlags struct {
	stage, threshold, brand, category, minPrice, maxPrice string
	limit                                                 int
}

// newSearchQuery builds a query from command-line values.
func newSearchQuery(text string, f searchFlags) (*models.SearchQuery, error) {
	stage, err := models.ParseStage(f.stage)
	if err != nil {
		return nil, err
	}
	q := &models.SearchQuery{Query: text, Stage: stage, MaxResults: f.limit}
	if q.SimilarityThreshold, err = optionalFloat(f.threshold); err != nil {
		return nil, fmt.Errorf("invalid -threshold: %w", err)
	}
	if q.Filters.MinPrice, err = optionalFloat(f.minPrice); err != nil {
		return nil, fmt.Errorf("invalid -min-price: %w", err)
	}
	if q.Filters.MaxPrice, err = optionalFloat(f.maxPrice); err != nil {
		return nil, fmt.Errorf("invalid -max-price: %w", err)
	}
	q.Filters.BrandName = optionalString(f.brand)
	q.Filters.Category = optionalString(f.category)
	return q, nil
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = search the local store directly)")
	var f searchFlags
	fs.StringVar(&f.stage, "stage", string(models.StageGeneral), "matching stage")
	fs.IntVar(&f.limit, "limit", 0, "maximum number of results (default from config)")
	fs.StringVar(&f.threshold, "threshold", "", "similarity threshold in [0, 1] (default depends on stage)")
	fs.StringVar(&f.brand, "brand", "", "only products of this brand")
	fs.StringVar(&f.category, "category", "", "only products in this category")
	fs.StringVar(&f.minPrice, "min-price", "", "minimum price")
	fs.StringVar(&f.maxPrice, "max-price", "", "maximum price")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	text := buildSearchQuery(fs.Args())
	if text == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	query, err := newSearchQuery(text, f)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		response, err = searchViaHTTP(*serverURL, query)
	} else {
		response, err = searchDirect(*configPath, query)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// searchDirect searches the local store without a running server.
func searchDirect(configPath string, query *models.SearchQuery) (*models.SearchResponse, error) {
	cfg, _, logger := setup(configPath, false)
	defer logger.Sync()
	if query.MaxResults == 0 {
		query.MaxResults = cfg.Matching.DefaultMaxResults
	}
	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	if _, err := components.Pipeline.Reload(ctx, 0); err != nil {
		return nil, err
	}
	return components.Engine.Search(ctx, query)
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	var response models.SearchResponse
	if err := postJSON(serverURL+"/api/v1/search", query, http.StatusOK, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func postJSON(target string, body any, want int, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(target, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, want, out)
}

func getJSON(target string, out any) error {
	resp, err := http.Get(target)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, http.StatusOK, out)
}

func decodeResponse(resp *http.Response, want int, out any) error {
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the local store directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var status cli.Status
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/api/v1/stats", &status); err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		s, err := statusDirect(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *s
	}
	if err := cli.WriteStatus(os.Stdout, &status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func statusDirect(configPath string) (*cli.Status, error) {
	cfg, _, logger := setup(configPath, false)
	defer logger.Sync()
	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	if _, err := components.Pipeline.Reload(ctx, 0); err != nil {
		return nil, err
	}
	docs, err := components.Storage.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	products, err := components.Storage.CountProducts(ctx)
	if err != nil {
		return nil, err
	}
	status := &cli.Status{
		Documents:    docs,
		Products:     products,
		DatabasePath: cfg.Storage.DatabasePath,
		Index:        components.Index.Stats(),
	}
	if n, err := components.Storage.SizeBytes(); err == nil {
		status.DatabaseBytes = n
	}
	return status, nil
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = delete from the local store directly)")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: shohin delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	if *serverURL != "" {
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/documents/"+url.PathEscape(docID), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if err := decodeResponse(resp, http.StatusOK, nil); err != nil {
			fmt.Printf("Deletion failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Document deleted: %s\n", docID)
		return
	}

	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()
	store, err := newStorage(cfg)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer store.Close()
	if err := store.DeleteDocument(context.Background(), docID); err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: shohin watch <add|remove|list> [path]")
		fmt.Println("  shohin watch add <path>     Add directory to watch")
		fmt.Println("  shohin watch remove <path>  Remove directory from watch")
		fmt.Println("  shohin watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(reorderArgs(os.Args[3:]))
	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: shohin watch add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		if err := postJSON(*serverURL+"/api/v1/watch/directories", map[string]any{"path": path, "sync": true}, http.StatusCreated, nil); err != nil {
			fmt.Printf("Add failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: shohin watch remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/watch/directories?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if err := decodeResponse(resp, http.StatusOK, nil); err != nil {
			fmt.Printf("Remove failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := getJSON(*serverURL+"/api/v1/watch/directories", &out); err != nil {
			fmt.Printf("List failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`shohin - Product extraction and staged hybrid retrieval

Usage:
  shohin server [flags]             Start the HTTP server
  shohin ingest [flags] <path>      Extract and index products from a file or directory
  shohin ingest -url <page-url>     Extract and index products from a web page
  shohin extract [flags] <file>     Print the products found in a file without indexing
  shohin search [flags] <query>     Search products
  shohin delete [flags] <id>        Delete a stored document
  shohin status [flags]             Show store and index status
  shohin watch <add|remove|list>    Manage watched directories
  shohin version                    Show version
  shohin help                       Show this help

Common Flags:
  --config string    Config file path (default: ~/.shohin/config.yaml)
  --server string    Server URL for search, status and watch (default: http://localhost:8080).
                     Use --server "" to work on the local store directly.
  --output string    Output format: text, compact, or json

Search Flags:
  --stage string       brand_matching, reference_matching, characteristic_matching or general
  --limit int          Maximum number of results
  --threshold float    Similarity threshold in [0, 1]
  --brand string       Brand filter
  --category string    Category filter
  --min-price float    Minimum price
  --max-price float    Maximum price

Ingest Flags:
  --recursive        Walk subdirectories
  --quiet            Hide the progress bar

Examples:
  shohin server
  shohin ingest -recursive ./catalogs
  shohin extract fiche.pdf
  shohin search -stage brand_matching bosch
  shohin search --output json "perceuse sans fil"
  shohin status --server ""
  shohin watch add /path/to/catalogs`)
}
