package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"livetv-proxy/work/cache"
	"livetv-proxy/work/catalog"
	"livetv-proxy/work/client"
	"livetv-proxy/work/config"
	"livetv-proxy/work/handlers"
	"livetv-proxy/work/logger"
	"livetv-proxy/work/middleware"
	"livetv-proxy/work/proxy"
	"livetv-proxy/work/referer"
	"livetv-proxy/work/scraper"
	"livetv-proxy/work/sources"
)

var (
	Version = "v0.1.0" // default version
)

func main() {
	exampleConfig := flag.String("write-example-config", "", "write an example config file to this path and exit")
	flag.Parse()

	if *exampleConfig != "" {
		if err := config.CreateExampleConfig(*exampleConfig); err != nil {
			logger.Error("{main - main} Failed to write example config: %v", err)
			os.Exit(1)
		}
		return
	}

	cfg := config.LoadConfig()
	logger.SetLogLevel(cfg.LogLevel)

	httpClient := client.NewHeaderSettingClient(cfg)

	resolver, err := referer.FromConfig(cfg)
	if err != nil {
		logger.Error("{main - main} Invalid referer table: %v", err)
		os.Exit(1)
	}

	workerPool, err := ants.NewPool(cfg.WorkerThreads, ants.WithPreAlloc(true))
	if err != nil {
		logger.Error("{main - main} Failed to create worker pool: %v", err)
		os.Exit(1)
	}
	defer workerPool.Release()

	db, err := catalog.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("{main - main} Failed to open catalog: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.CatalogSeed != "" {
		if _, err := db.ImportFile(context.Background(), cfg.CatalogSeed); err != nil {
			logger.Warn("{main - main} Catalog seed not imported: %v", err)
		}
	}

	scrapeCache := cache.NewScrapeCache(cfg.CacheDuration)
	streamProxy := proxy.New(cfg, httpClient, resolver)
	discovery := scraper.New(cfg, httpClient, scrapeCache, workerPool)
	watch := sources.New(cfg, db, discovery)

	router := mux.NewRouter()
	setupRoutes(router, streamProxy, discovery, scrapeCache, db, watch)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("{main - main} Starting LiveTV Proxy %s", Version)
	logger.Info("{main - main} Server configuration:")
	logger.Info("{main - main}   - Listen Address: %s", cfg.ListenAddr)
	logger.Info("{main - main}   - Base URL: %s", cfg.BaseURL)
	logger.Info("{main - main}   - Catalog: %s", cfg.DatabasePath)
	logger.Info("{main - main}   - Referer Rules: %d (fallback %s)", len(resolver.Rules()), resolver.Fallback())
	logger.Info("{main - main}   - Discovery Strategy: %s", cfg.DiscoveryStrategy)
	logger.Info("{main - main}   - Scrape Cache Duration: %s", cfg.CacheDuration)
	logger.Info("{main - main}   - Worker Threads: %d", cfg.WorkerThreads)
	logger.Info("{main - main}   - Log Level: %s", logger.GetLogLevel())
	logger.Info("{main - main}   - URL Obfuscation: %v", cfg.ObfuscateUrls)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("{main - main} Server failed: %v", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("{main - main} Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("{main - main} Shutdown incomplete: %v", err)
	}
}

// setupRoutes registers every endpoint. JSON routes are gzip-wrapped; the proxy is not,
// since it streams media.
func setupRoutes(router *mux.Router, sp *proxy.StreamProxy, discovery *scraper.Scraper,
	scrapeCache *cache.ScrapeCache, db *catalog.DB, watch *sources.Resolver) {

	router.HandleFunc(proxy.Path, middleware.CORS(handlers.HandleProxy(sp))).Methods("GET", "OPTIONS")

	router.HandleFunc("/api/scrape-stream", middleware.CORS(middleware.GzipMiddleware(handlers.HandleDiscovery(discovery)))).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/scrape-stream/cache", middleware.CORS(middleware.GzipMiddleware(handlers.HandleCacheSnapshot(scrapeCache)))).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/channels", middleware.CORS(middleware.GzipMiddleware(handlers.HandleChannels(db)))).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/channels/{id}/sources", middleware.CORS(middleware.GzipMiddleware(handlers.HandleChannelSources(watch)))).Methods("GET", "OPTIONS")

	router.HandleFunc("/healthz", handlers.HandleHealth(db)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}
