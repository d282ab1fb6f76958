package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/feedforge/forger/internal/model"
)

const (
	defaultCacheDir        = "cache"
	defaultOutputDir       = "outputs"
	defaultFetchConcurrent = 5
	defaultHTTPTimeoutSec  = 15
	defaultRetryAttempts   = 2
	defaultRunTimeoutMin   = 10
	defaultMaxAgeDays      = 7
	defaultPageTTLMinutes  = 30
	defaultUserAgent       = "forger/0.1"
	defaultLogLevel        = "info"
)

const (
	configFolderName  = "forger"
	configFileName    = "forger.toml"
	configPathEnvName = "XDG_CONFIG_HOME"
)

// DBFileName is the cache store file inside the cache directory.
const DBFileName = "forger.db"

type Config struct {
	CacheDir         string
	OutputDir        string
	FetchConcurrency int
	HTTPTimeout      time.Duration
	RetryAttempts    int
	RunTimeout       time.Duration
	MaxAgeDays       int
	PageTTL          time.Duration
	UserAgent        string
	LogLevel         string
	PublishBaseURL   string
	Recipes          map[string]Recipe
}

// Recipe is a named group of feed sources merged into one output artifact.
type Recipe struct {
	Name            string   `toml:"-"`
	URLs            []string `toml:"urls"`
	Filters         []Filter `toml:"filters"`
	Fulfill         bool     `toml:"fulfill"`
	IntervalMinutes int      `toml:"interval_minutes"`
	MaxAgeDays      *int     `toml:"max_age_days"`
	Auth            *Auth    `toml:"auth"`
}

// Filter matches entry titles against a case-insensitive regexp. Invert
// keeps entries that do not match.
type Filter struct {
	Title  string `toml:"title"`
	Invert bool   `toml:"invert"`
}

type Auth struct {
	Token    string `toml:"token"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// DBPath is the location of the sqlite cache store.
func (c Config) DBPath() string {
	return filepath.Join(c.CacheDir, DBFileName)
}

// MaxAge returns the entry age cutoff for a recipe, honoring the per-recipe
// override.
func (c Config) MaxAge(r Recipe) time.Duration {
	days := c.MaxAgeDays
	if r.MaxAgeDays != nil {
		days = *r.MaxAgeDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// Sources flattens the recipe map into the full fetch set, ordered by recipe
// name then URL so runs are reproducible.
func (c Config) Sources() []model.Source {
	names := make([]string, 0, len(c.Recipes))
	for name := range c.Recipes {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []model.Source
	for _, name := range names {
		recipe := c.Recipes[name]
		var auth *model.Auth
		if recipe.Auth != nil {
			auth = &model.Auth{
				Token:    recipe.Auth.Token,
				Username: recipe.Auth.Username,
				Password: recipe.Auth.Password,
			}
		}
		urls := append([]string(nil), recipe.URLs...)
		sort.Strings(urls)
		for _, u := range urls {
			out = append(out, model.Source{Recipe: name, URL: u, Auth: auth})
		}
	}
	return out
}

// SourceURLs returns every configured feed URL. Used by the clean command to
// detect orphaned cache rows.
func (c Config) SourceURLs() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, src := range c.Sources() {
		if _, ok := seen[src.URL]; ok {
			continue
		}
		seen[src.URL] = struct{}{}
		out = append(out, src.URL)
	}
	return out
}

// LoadConfig reads the config file at path, or searches the default
// locations when path is empty. Defaults are applied first, the file second,
// FORGER_* env overrides last.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		CacheDir:         defaultCacheDir,
		OutputDir:        defaultOutputDir,
		FetchConcurrency: defaultFetchConcurrent,
		HTTPTimeout:      defaultHTTPTimeoutSec * time.Second,
		RetryAttempts:    defaultRetryAttempts,
		RunTimeout:       defaultRunTimeoutMin * time.Minute,
		MaxAgeDays:       defaultMaxAgeDays,
		PageTTL:          defaultPageTTLMinutes * time.Minute,
		UserAgent:        defaultUserAgent,
		LogLevel:         defaultLogLevel,
		Recipes:          map[string]Recipe{},
	}

	hasConfig := path != ""
	if !hasConfig {
		var err error
		path, hasConfig, err = findConfigPath()
		if err != nil {
			return Config{}, err
		}
	}
	if hasConfig {
		fileCfg, err := loadFileConfig(path)
		if err != nil {
			return Config{}, err
		}
		applyFileConfig(&cfg, fileCfg)
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type fileConfig struct {
	CacheDir          *string           `toml:"cache_dir"`
	OutputDir         *string           `toml:"output_dir"`
	FetchConcurrency  *int              `toml:"fetch_concurrency"`
	HTTPTimeoutSec    *int              `toml:"http_timeout_seconds"`
	RetryAttempts     *int              `toml:"retry_attempts"`
	RunTimeoutMinutes *int              `toml:"run_timeout_minutes"`
	MaxAgeDays        *int              `toml:"max_age_days"`
	PageTTLMinutes    *int              `toml:"page_ttl_minutes"`
	UserAgent         *string           `toml:"user_agent"`
	LogLevel          *string           `toml:"log_level"`
	PublishBaseURL    *string           `toml:"publish_base_url"`
	Recipes           map[string]Recipe `toml:"recipes"`
}

func findConfigPath() (string, bool, error) {
	candidates := []string{configFileName}
	if xdgConfigHome := strings.TrimSpace(os.Getenv(configPathEnvName)); xdgConfigHome != "" {
		candidates = append(candidates, filepath.Join(xdgConfigHome, configFolderName, configFileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", configFolderName, configFileName))
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", false, fmt.Errorf("config path %q is a directory; expected a file", candidate)
			}
			return candidate, true, nil
		}
		if os.IsNotExist(err) {
			continue
		}
		return "", false, fmt.Errorf("failed to read config path %q: %w", candidate, err)
	}
	return "", false, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid config file %q: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		unknown := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			unknown = append(unknown, key.String())
		}
		sort.Strings(unknown)
		return fileConfig{}, fmt.Errorf("invalid config file %q: unknown key(s): %s", path, strings.Join(unknown, ", "))
	}
	if err := validateFileConfig(path, cfg); err != nil {
		return fileConfig{}, err
	}
	return cfg, nil
}

func validateFileConfig(path string, cfg fileConfig) error {
	if cfg.CacheDir != nil && strings.TrimSpace(*cfg.CacheDir) == "" {
		return fmt.Errorf("invalid config file %q: cache_dir must be non-empty when provided", path)
	}
	if cfg.OutputDir != nil && strings.TrimSpace(*cfg.OutputDir) == "" {
		return fmt.Errorf("invalid config file %q: output_dir must be non-empty when provided", path)
	}
	if cfg.FetchConcurrency != nil && *cfg.FetchConcurrency < 1 {
		return fmt.Errorf("invalid config file %q: fetch_concurrency must be >= 1", path)
	}
	if cfg.HTTPTimeoutSec != nil && *cfg.HTTPTimeoutSec <= 0 {
		return fmt.Errorf("invalid config file %q: http_timeout_seconds must be > 0", path)
	}
	if cfg.RetryAttempts != nil && *cfg.RetryAttempts < 0 {
		return fmt.Errorf("invalid config file %q: retry_attempts must be >= 0", path)
	}
	if cfg.RunTimeoutMinutes != nil && *cfg.RunTimeoutMinutes <= 0 {
		return fmt.Errorf("invalid config file %q: run_timeout_minutes must be > 0", path)
	}
	if cfg.MaxAgeDays != nil && *cfg.MaxAgeDays <= 0 {
		return fmt.Errorf("invalid config file %q: max_age_days must be > 0", path)
	}
	if cfg.PageTTLMinutes != nil && *cfg.PageTTLMinutes <= 0 {
		return fmt.Errorf("invalid config file %q: page_ttl_minutes must be > 0", path)
	}
	return nil
}

func applyFileConfig(cfg *Config, fileCfg fileConfig) {
	if fileCfg.CacheDir != nil {
		cfg.CacheDir = *fileCfg.CacheDir
	}
	if fileCfg.OutputDir != nil {
		cfg.OutputDir = *fileCfg.OutputDir
	}
	if fileCfg.FetchConcurrency != nil {
		cfg.FetchConcurrency = *fileCfg.FetchConcurrency
	}
	if fileCfg.HTTPTimeoutSec != nil {
		cfg.HTTPTimeout = time.Duration(*fileCfg.HTTPTimeoutSec) * time.Second
	}
	if fileCfg.RetryAttempts != nil {
		cfg.RetryAttempts = *fileCfg.RetryAttempts
	}
	if fileCfg.RunTimeoutMinutes != nil {
		cfg.RunTimeout = time.Duration(*fileCfg.RunTimeoutMinutes) * time.Minute
	}
	if fileCfg.MaxAgeDays != nil {
		cfg.MaxAgeDays = *fileCfg.MaxAgeDays
	}
	if fileCfg.PageTTLMinutes != nil {
		cfg.PageTTL = time.Duration(*fileCfg.PageTTLMinutes) * time.Minute
	}
	if fileCfg.UserAgent != nil {
		cfg.UserAgent = *fileCfg.UserAgent
	}
	if fileCfg.LogLevel != nil {
		cfg.LogLevel = *fileCfg.LogLevel
	}
	if fileCfg.PublishBaseURL != nil {
		cfg.PublishBaseURL = strings.TrimRight(*fileCfg.PublishBaseURL, "/")
	}
	for name, recipe := range fileCfg.Recipes {
		recipe.Name = name
		cfg.Recipes[name] = recipe
	}
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("FORGER_CACHE_DIR"); ok && v != "" {
		cfg.CacheDir = v
	}
	if v, ok := os.LookupEnv("FORGER_OUTPUT_DIR"); ok && v != "" {
		cfg.OutputDir = v
	}
	if v, ok := os.LookupEnv("FORGER_FETCH_CONCURRENCY"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			cfg.FetchConcurrency = n
		}
	}
	if v, ok := os.LookupEnv("FORGER_HTTP_TIMEOUT_SECONDS"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPTimeout = time.Duration(n) * time.Second
		}
	}
	if v, ok := os.LookupEnv("FORGER_RETRY_ATTEMPTS"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RetryAttempts = n
		}
	}
	if v, ok := os.LookupEnv("FORGER_RUN_TIMEOUT_MINUTES"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RunTimeout = time.Duration(n) * time.Minute
		}
	}
	if v, ok := os.LookupEnv("FORGER_MAX_AGE_DAYS"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxAgeDays = n
		}
	}
	if v, ok := os.LookupEnv("FORGER_PUBLISH_BASE_URL"); ok && v != "" {
		cfg.PublishBaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := os.LookupEnv("FORGER_USER_AGENT"); ok && v != "" {
		cfg.UserAgent = v
	}
	if v, ok := os.LookupEnv("FORGER_LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}
}

func validate(cfg *Config) error {
	if cfg.FetchConcurrency < 1 {
		cfg.FetchConcurrency = defaultFetchConcurrent
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeoutSec * time.Second
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeoutMin * time.Minute
	}

	names := make([]string, 0, len(cfg.Recipes))
	for name := range cfg.Recipes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		recipe := cfg.Recipes[name]
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("recipe with empty name")
		}
		if len(recipe.URLs) == 0 {
			return fmt.Errorf("recipe %q: urls must not be empty", name)
		}
		for _, u := range recipe.URLs {
			if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
				return fmt.Errorf("recipe %q: invalid url %q", name, u)
			}
		}
		for i, f := range recipe.Filters {
			if strings.TrimSpace(f.Title) == "" {
				return fmt.Errorf("recipe %q: filter %d: title pattern must not be empty", name, i)
			}
			if _, err := regexp.Compile("(?i)" + f.Title); err != nil {
				return fmt.Errorf("recipe %q: filter %d: invalid pattern: %w", name, i, err)
			}
		}
		if recipe.MaxAgeDays != nil && *recipe.MaxAgeDays <= 0 {
			return fmt.Errorf("recipe %q: max_age_days must be > 0", name)
		}
	}
	return nil
}
