package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// NOTE: Config is scoped to a single run. The pipeline receives it
// explicitly; nothing here is read from package-level state.

const (
	SourceTMDB   = "tmdb"
	SourceScrape = "scrape"

	DefaultAPIKeyEnv = "TMDB_API_KEY"
	DefaultOutput    = "uk-next12months.ics"
)

// TMDBConfig configures the discovery API collector.
type TMDBConfig struct {
	BaseURL  string `yaml:"base_url" json:"base_url"`
	Region   string `yaml:"region" json:"region"`
	Language string `yaml:"language" json:"language"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`

	// APIKey is resolved from APIKeyEnv at load time and never saved.
	APIKey string `yaml:"-" json:"-"`

	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	DetailConcurrency int     `yaml:"detail_concurrency" json:"detail_concurrency"`
}

// ScrapeConfig configures the listings page collector.
type ScrapeConfig struct {
	URL           string   `yaml:"url" json:"url"`
	RowSelector   string   `yaml:"row_selector" json:"row_selector"`
	DateSelector  string   `yaml:"date_selector" json:"date_selector"`
	TitleSelector string   `yaml:"title_selector" json:"title_selector"`
	IDAttr        string   `yaml:"id_attr" json:"id_attr"`
	DateLayouts   []string `yaml:"date_layouts,omitempty" json:"date_layouts,omitempty"`
	NextSelector  string   `yaml:"next_selector,omitempty" json:"next_selector,omitempty"`
	MaxPages      int      `yaml:"max_pages" json:"max_pages"`

	// Render uses headless Chromium for pages built by JavaScript.
	Render bool `yaml:"render" json:"render"`
}

// WindowConfig sets the time range of a run.
type WindowConfig struct {
	// Bucket is "month" or "year".
	Bucket string `yaml:"bucket" json:"bucket"`

	// Year pins the run to one calendar year; 0 means rolling from today.
	Year int `yaml:"year" json:"year"`

	// Month narrows a pinned year to one month (1-12).
	Month int `yaml:"month" json:"month"`

	// Months is the rolling range length.
	Months int `yaml:"months" json:"months"`
}

// SelectionConfig chooses the selector policy.
type SelectionConfig struct {
	// Mode is "rank", "threshold" or "both".
	Mode string `yaml:"mode" json:"mode"`

	// TopN caps each bucket in rank mode. Negative keeps every release.
	TopN int `yaml:"top_n" json:"top_n"`

	MinPopularity float64 `yaml:"min_popularity" json:"min_popularity"`
	MinVoteCount  int     `yaml:"min_vote_count" json:"min_vote_count"`
}

// CalendarConfig controls the generated document.
type CalendarConfig struct {
	Output    string `yaml:"output" json:"output"`
	ProductID string `yaml:"product_id" json:"product_id"`
	UIDDomain string `yaml:"uid_domain" json:"uid_domain"`

	// Description is "full", "auto" or "omit".
	Description string `yaml:"description" json:"description"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for serve mode.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// ServeConfig configures the long-running mode.
type ServeConfig struct {
	Listen string `yaml:"listen" json:"listen"`

	// Refresh is a cron expression for regeneration.
	Refresh string `yaml:"refresh" json:"refresh"`

	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	Source string       `yaml:"source" json:"source"`
	TMDB   TMDBConfig   `yaml:"tmdb" json:"tmdb"`
	Scrape ScrapeConfig `yaml:"scrape" json:"scrape"`

	Window    WindowConfig    `yaml:"window" json:"window"`
	Selection SelectionConfig `yaml:"selection" json:"selection"`

	// Enrich fetches runtime/genres/trailer per selected release.
	Enrich bool `yaml:"enrich" json:"enrich"`

	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`
	Serve    ServeConfig    `yaml:"serve" json:"serve"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig mirrors the rolling twelve month UK calendar: top five per
// month by popularity, enriched descriptions.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceTMDB,
		TMDB: TMDBConfig{
			BaseURL:           "https://api.themoviedb.org/3",
			Region:            "GB",
			Language:          "en-GB",
			APIKeyEnv:         DefaultAPIKeyEnv,
			RequestsPerSecond: 20,
			DetailConcurrency: 4,
		},
		Scrape: ScrapeConfig{
			MaxPages: 20,
		},
		Window: WindowConfig{
			Bucket: "month",
			Months: 12,
		},
		Selection: SelectionConfig{
			Mode: "rank",
			TopN: 5,
		},
		Enrich: true,
		Calendar: CalendarConfig{
			Output:      DefaultOutput,
			ProductID:   "-//UK Top Movie Releases Rolling 12 Months//EN",
			UIDDomain:   "ukmovies",
			Description: "auto",
		},
		Serve: ServeConfig{
			Listen:  "127.0.0.1:8080",
			Refresh: "0 6 * * *",
		},
		LogLevel: "info",
	}
}

// Normalize fills in missing/zero values with defaults so partially
// written files behave like the default config.
func (c *Config) Normalize() {
	d := DefaultConfig()

	if c.Source == "" {
		c.Source = d.Source
	}
	c.Source = strings.ToLower(c.Source)

	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = d.TMDB.BaseURL
	}
	if c.TMDB.Region == "" {
		c.TMDB.Region = d.TMDB.Region
	}
	if c.TMDB.Language == "" {
		c.TMDB.Language = d.TMDB.Language
	}
	if c.TMDB.APIKeyEnv == "" {
		c.TMDB.APIKeyEnv = d.TMDB.APIKeyEnv
	}
	if c.TMDB.RequestsPerSecond <= 0 {
		c.TMDB.RequestsPerSecond = d.TMDB.RequestsPerSecond
	}
	if c.TMDB.DetailConcurrency <= 0 {
		c.TMDB.DetailConcurrency = d.TMDB.DetailConcurrency
	}
	if c.Scrape.MaxPages <= 0 {
		c.Scrape.MaxPages = d.Scrape.MaxPages
	}

	if c.Window.Bucket == "" {
		c.Window.Bucket = d.Window.Bucket
	}
	if c.Window.Months <= 0 {
		c.Window.Months = d.Window.Months
	}
	if c.Selection.Mode == "" {
		c.Selection.Mode = d.Selection.Mode
	}
	if c.Selection.TopN == 0 {
		c.Selection.TopN = d.Selection.TopN
	}

	if c.Calendar.Output == "" {
		c.Calendar.Output = d.Calendar.Output
	}
	if c.Calendar.ProductID == "" {
		c.Calendar.ProductID = d.Calendar.ProductID
	}
	if c.Calendar.UIDDomain == "" {
		c.Calendar.UIDDomain = d.Calendar.UIDDomain
	}
	if c.Calendar.Description == "" {
		c.Calendar.Description = d.Calendar.Description
	}

	if c.Serve.Listen == "" {
		c.Serve.Listen = d.Serve.Listen
	}
	if c.Serve.Refresh == "" {
		c.Serve.Refresh = d.Serve.Refresh
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate reports the first configuration problem that would make a run
// fail. It expects a normalized config.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceTMDB:
		if c.TMDB.APIKey == "" {
			return fmt.Errorf("config: tmdb source needs an API key in $%s", c.TMDB.APIKeyEnv)
		}
	case SourceScrape:
		if c.Scrape.URL == "" {
			return errors.New("config: scrape.url is required for the scrape source")
		}
		if c.Scrape.RowSelector == "" || c.Scrape.DateSelector == "" || c.Scrape.TitleSelector == "" {
			return errors.New("config: scrape row_selector, date_selector and title_selector are required")
		}
	default:
		return fmt.Errorf("config: unknown source %q", c.Source)
	}

	switch c.Window.Bucket {
	case "month", "year":
	default:
		return fmt.Errorf("config: unknown window.bucket %q", c.Window.Bucket)
	}
	if c.Window.Month < 0 || c.Window.Month > 12 {
		return fmt.Errorf("config: window.month %d out of range", c.Window.Month)
	}
	if c.Window.Month > 0 && c.Window.Year == 0 {
		return errors.New("config: window.month needs window.year")
	}

	switch c.Selection.Mode {
	case "rank", "threshold", "both":
	default:
		return fmt.Errorf("config: unknown selection.mode %q", c.Selection.Mode)
	}

	switch c.Calendar.Description {
	case "full", "auto", "omit":
	default:
		return fmt.Errorf("config: unknown calendar.description %q", c.Calendar.Description)
	}
	return nil
}

// ResolveSecrets loads a .env file when present and reads the API key from
// the environment. A missing .env is not an error.
func (c *Config) ResolveSecrets(envFiles ...string) error {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load env: %w", err)
	}
	c.TMDB.APIKey = strings.TrimSpace(os.Getenv(c.TMDB.APIKeyEnv))
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If path is empty: return the normalized default config.
//   - If the file does not exist: write a default config with 0600 perms
//     and return it.
//   - Otherwise: read YAML over the defaults, normalize.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := DefaultConfig()
		cfg.Normalize()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	// Keys absent from the file keep their default values.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o600)
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".ukmoviecal-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
