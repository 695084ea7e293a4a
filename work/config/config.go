package config

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// Discovery strategies selectable through the discoveryStrategy setting.
const (
	StrategyEmbedded = "embedded" // return player pages for the browser to load
	StrategyDirect   = "direct"   // follow player pages down to a literal playlist URL
)

// Config holds all application configuration values for the live TV frontend backend.
// It covers the HTTP surface, the upstream request identity, the referer table and the
// discovery scraper.
type Config struct {
	ListenAddr        string            `json:"listenAddr"`        // Address the HTTP server binds to
	BaseURL           string            `json:"baseURL"`           // Public base URL for rewritten playlist entries (empty = proxy-relative URLs)
	LogLevel          string            `json:"logLevel"`          // DEBUG, INFO, WARN or ERROR
	Debug             bool              `json:"debug"`             // Forces DEBUG logging
	ObfuscateUrls     bool              `json:"obfuscateUrls"`     // Obfuscate URLs in logs
	DatabasePath      string            `json:"databasePath"`      // SQLite catalog location
	CatalogSeed       string            `json:"catalogSeed"`       // Optional JSON file imported into the catalog at startup
	UserAgent         string            `json:"userAgent"`         // User-Agent sent upstream
	AcceptLanguage    string            `json:"acceptLanguage"`    // Accept-Language sent upstream
	DefaultReferer    string            `json:"defaultReferer"`    // Fallback referer when no rule matches
	RefererRules      []RefererRule     `json:"refererRules"`      // Ordered hostname substring -> referer table
	CatalogBaseURL    string            `json:"catalogBaseURL"`    // Page root scraped for player URLs
	Channels          map[string]string `json:"channels"`          // Discovery key -> catalog path
	ScrapeAliases     map[string]string `json:"scrapeAliases"`     // Catalog channel name -> discovery key
	DirectHosts       []string          `json:"directHosts"`       // Playlist hosts the browser may load without the proxy
	DiscoveryStrategy string            `json:"discoveryStrategy"` // embedded or direct
	CacheDuration     time.Duration     `json:"cacheDuration"`     // Scrape cache TTL
	HeaderTimeout     time.Duration     `json:"headerTimeout"`     // Upstream response header timeout
	ScrapeRateLimit   int               `json:"scrapeRateLimit"`   // Scrape requests per second per upstream host
	WorkerThreads     int               `json:"workerThreads"`     // Pool size for direct playlist extraction
	MaxNestedDepth    int               `json:"maxNestedDepth"`    // Nested player pages followed by the extractor
}

// RefererRule maps a hostname substring to the referer the upstream expects.
type RefererRule struct {
	Domain  string `json:"domain"`
	Referer string `json:"referer"`
}

// ConfigFile represents the JSON file structure. Durations are strings such as "5m".
type ConfigFile struct {
	ListenAddr        string            `json:"listenAddr"`
	BaseURL           string            `json:"baseURL"`
	LogLevel          string            `json:"logLevel"`
	Debug             bool              `json:"debug"`
	ObfuscateUrls     bool              `json:"obfuscateUrls"`
	DatabasePath      string            `json:"databasePath"`
	CatalogSeed       string            `json:"catalogSeed"`
	UserAgent         string            `json:"userAgent"`
	AcceptLanguage    string            `json:"acceptLanguage"`
	DefaultReferer    string            `json:"defaultReferer"`
	RefererRules      []RefererRule     `json:"refererRules"`
	CatalogBaseURL    string            `json:"catalogBaseURL"`
	Channels          map[string]string `json:"channels"`
	ScrapeAliases     map[string]string `json:"scrapeAliases"`
	DirectHosts       []string          `json:"directHosts"`
	DiscoveryStrategy string            `json:"discoveryStrategy"`
	CacheDuration     string            `json:"cacheDuration"`
	HeaderTimeout     string            `json:"headerTimeout"`
	ScrapeRateLimit   int               `json:"scrapeRateLimit"`
	WorkerThreads     int               `json:"workerThreads"`
	MaxNestedDepth    int               `json:"maxNestedDepth"`
}

// DefaultUserAgent is a realistic desktop browser identity; several upstream CDNs reject
// anything that looks like a media player or a library.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// DefaultConfigPath is read when LIVETV_CONFIG is unset.
const DefaultConfigPath = "/settings/config.json"

var (
	configCache *Config      // Cached configuration instance (singleton)
	configMutex sync.RWMutex // Guards configCache
)

// LoadConfig loads the configuration from file or returns the cached instance.
//
// Process:
//   - Uses double-checked locking to avoid redundant reloads.
//   - Reads the path in LIVETV_CONFIG, or /settings/config.json.
//   - Falls back to the default config if the file is missing or invalid.
//   - Runs validation to ensure safe defaults.
func LoadConfig() *Config {
	configMutex.RLock()
	if configCache != nil {
		defer configMutex.RUnlock()
		return configCache
	}
	configMutex.RUnlock()

	configMutex.Lock()
	defer configMutex.Unlock()

	if configCache != nil {
		return configCache
	}

	configPath := os.Getenv("LIVETV_CONFIG")
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		log.Printf("Failed to load config from %s: %v", configPath, err)
		log.Printf("Falling back to default configuration...")
		config = getDefaultConfig()
	}

	validateAndSetDefaults(config)
	configCache = config

	return config
}

// LoadFromFile reads and parses the configuration from a JSON file. The result is not
// validated; LoadConfig does that.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return convertFromFile(&configFile)
}

// convertFromFile converts a ConfigFile to Config, parsing duration strings.
// Empty duration strings are left at zero and filled in by validateAndSetDefaults.
func convertFromFile(cf *ConfigFile) (*Config, error) {
	config := &Config{
		ListenAddr:        cf.ListenAddr,
		BaseURL:           cf.BaseURL,
		LogLevel:          cf.LogLevel,
		Debug:             cf.Debug,
		ObfuscateUrls:     cf.ObfuscateUrls,
		DatabasePath:      cf.DatabasePath,
		CatalogSeed:       cf.CatalogSeed,
		UserAgent:         cf.UserAgent,
		AcceptLanguage:    cf.AcceptLanguage,
		DefaultReferer:    cf.DefaultReferer,
		RefererRules:      cf.RefererRules,
		CatalogBaseURL:    cf.CatalogBaseURL,
		Channels:          cf.Channels,
		ScrapeAliases:     cf.ScrapeAliases,
		DirectHosts:       cf.DirectHosts,
		DiscoveryStrategy: cf.DiscoveryStrategy,
		ScrapeRateLimit:   cf.ScrapeRateLimit,
		WorkerThreads:     cf.WorkerThreads,
		MaxNestedDepth:    cf.MaxNestedDepth,
	}

	var err error
	if cf.CacheDuration != "" {
		if config.CacheDuration, err = time.ParseDuration(cf.CacheDuration); err != nil {
			return nil, fmt.Errorf("invalid cacheDuration: %w", err)
		}
	}
	if cf.HeaderTimeout != "" {
		if config.HeaderTimeout, err = time.ParseDuration(cf.HeaderTimeout); err != nil {
			return nil, fmt.Errorf("invalid headerTimeout: %w", err)
		}
	}

	if config.DiscoveryStrategy != "" {
		s := strings.ToLower(config.DiscoveryStrategy)
		if s != StrategyEmbedded && s != StrategyDirect {
			return nil, fmt.Errorf("invalid discoveryStrategy %q", config.DiscoveryStrategy)
		}
		config.DiscoveryStrategy = s
	}

	return config, nil
}

// DefaultRefererRules is the table of upstream CDNs seen in production. New CDNs need a
// new entry here or in the config file.
func DefaultRefererRules() []RefererRule {
	return []RefererRule{
		{Domain: "vipcanaisplay.site", Referer: "https://embedtvonline.com/"},
		{Domain: "imgcontent.xyz", Referer: "https://rdcanais.top/"},
		{Domain: "image-storage", Referer: "https://rdcanais.top/"},
		{Domain: "nossoplayeronlinehd", Referer: "https://nossoplayeronlinehd.online/"},
		{Domain: "meuplayeronlinehd", Referer: "https://meuplayeronlinehd.com/"},
		{Domain: "redecanaistv", Referer: "https://redecanaistv.fm/"},
		{Domain: "cloudfront-net.online", Referer: "https://multicanaishd.best/"},
	}
}

// getDefaultConfig returns a baseline configuration used when no file is present.
func getDefaultConfig() *Config {
	return &Config{
		ListenAddr:     ":8080",
		LogLevel:       "INFO",
		DatabasePath:   "/settings/catalog.db",
		UserAgent:      DefaultUserAgent,
		AcceptLanguage: "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7",
		DefaultReferer: "https://multicanaishd.best/",
		RefererRules:   DefaultRefererRules(),
		CatalogBaseURL: "https://multicanaishd.best/canal/",
		Channels: map[string]string{
			"big-brother-brasil-26": "big-brother-brasil-26",
			"bbb26":                 "big-brother-brasil-26",
		},
		ScrapeAliases: map[string]string{
			"big-brother-brasil-26": "big-brother-brasil-26",
			"big brother brasil 26": "big-brother-brasil-26",
			"big brother brasil":    "big-brother-brasil-26",
			"bbb 26":                "big-brother-brasil-26",
			"bbb26":                 "big-brother-brasil-26",
		},
		DirectHosts:       []string{".online"},
		DiscoveryStrategy: StrategyEmbedded,
		CacheDuration:     5 * time.Minute,
		HeaderTimeout:     30 * time.Second,
		ScrapeRateLimit:   2,
		WorkerThreads:     4,
		MaxNestedDepth:    2,
	}
}

// Default returns a validated default configuration. Tests and tools use it as a base.
func Default() *Config {
	cfg := getDefaultConfig()
	validateAndSetDefaults(cfg)
	return cfg
}

// validateAndSetDefaults fills in defaults for missing or invalid values.
func validateAndSetDefaults(config *Config) {
	def := getDefaultConfig()

	if config.ListenAddr == "" {
		config.ListenAddr = def.ListenAddr
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Debug {
		config.LogLevel = "DEBUG"
	}
	if config.LogLevel == "" {
		config.LogLevel = def.LogLevel
	}
	if config.DatabasePath == "" {
		config.DatabasePath = def.DatabasePath
	}
	if config.UserAgent == "" {
		config.UserAgent = def.UserAgent
	}
	if config.AcceptLanguage == "" {
		config.AcceptLanguage = def.AcceptLanguage
	}
	if u, err := url.Parse(config.DefaultReferer); err != nil || u.Scheme == "" || u.Host == "" {
		config.DefaultReferer = def.DefaultReferer
	}
	if config.RefererRules == nil {
		config.RefererRules = def.RefererRules
	}
	if config.CatalogBaseURL == "" {
		config.CatalogBaseURL = def.CatalogBaseURL
	}
	if !strings.HasSuffix(config.CatalogBaseURL, "/") {
		config.CatalogBaseURL += "/"
	}
	if config.Channels == nil {
		config.Channels = def.Channels
	}
	if config.ScrapeAliases == nil {
		config.ScrapeAliases = def.ScrapeAliases
	}
	if config.DirectHosts == nil {
		config.DirectHosts = def.DirectHosts
	}
	if config.DiscoveryStrategy == "" {
		config.DiscoveryStrategy = def.DiscoveryStrategy
	}
	if config.CacheDuration <= 0 {
		config.CacheDuration = def.CacheDuration
	}
	if config.HeaderTimeout <= 0 {
		config.HeaderTimeout = def.HeaderTimeout
	}
	if config.ScrapeRateLimit <= 0 {
		config.ScrapeRateLimit = def.ScrapeRateLimit
	}
	if config.WorkerThreads <= 0 {
		config.WorkerThreads = def.WorkerThreads
	}
	if config.MaxNestedDepth <= 0 {
		config.MaxNestedDepth = def.MaxNestedDepth
	}

	// keys are matched case-insensitively
	config.Channels = lowerKeys(config.Channels)
	config.ScrapeAliases = lowerKeys(config.ScrapeAliases)
}

func lowerKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

// CreateExampleConfig writes an example config file to path.
func CreateExampleConfig(path string) error {
	example := ConfigFile{
		ListenAddr:        ":8080",
		BaseURL:           "http://localhost:8080",
		LogLevel:          "INFO",
		ObfuscateUrls:     true,
		DatabasePath:      "/settings/catalog.db",
		UserAgent:         DefaultUserAgent,
		AcceptLanguage:    "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7",
		DefaultReferer:    "https://multicanaishd.best/",
		RefererRules:      DefaultRefererRules(),
		CatalogBaseURL:    "https://multicanaishd.best/canal/",
		Channels:          map[string]string{"bbb26": "big-brother-brasil-26"},
		ScrapeAliases:     map[string]string{"bbb 26": "bbb26"},
		DirectHosts:       []string{".online"},
		DiscoveryStrategy: StrategyEmbedded,
		CacheDuration:     "5m",
		HeaderTimeout:     "30s",
		ScrapeRateLimit:   2,
		WorkerThreads:     4,
		MaxNestedDepth:    2,
	}

	data, err := json.MarshalIndent(example, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ClearConfigCache resets the cached config, forcing a reload on the next LoadConfig call.
func ClearConfigCache() {
	configMutex.Lock()
	defer configMutex.Unlock()
	configCache = nil
}
