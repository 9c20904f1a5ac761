package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, SourceTMDB, cfg.Source)
	assert.Equal(t, 5, cfg.Selection.TopN)
	assert.Equal(t, DefaultOutput, cfg.Calendar.Output)
}

func TestLoad_CreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "month", cfg.Window.Bucket)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoad_PartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
source: Scrape
scrape:
  url: https://films.example/releases
  row_selector: li.release
  date_selector: .date
  title_selector: a
selection:
  mode: threshold
  min_popularity: 20
  min_vote_count: 10
window:
  bucket: year
  year: 2026
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, SourceScrape, cfg.Source)
	assert.Equal(t, "threshold", cfg.Selection.Mode)
	assert.Equal(t, 20.0, cfg.Selection.MinPopularity)
	assert.Equal(t, 2026, cfg.Window.Year)
	assert.Equal(t, 20, cfg.Scrape.MaxPages)
	assert.Equal(t, "auto", cfg.Calendar.Description)
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSave_DoesNotPersistAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.TMDB.APIKey = "super-secret"

	require.NoError(t, Save(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret")
	assert.Contains(t, string(data), "api_key_env: TMDB_API_KEY")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := DefaultConfig()
		c.TMDB.APIKey = "k"
		return c
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(c *Config){
		"missing key":      func(c *Config) { c.TMDB.APIKey = "" },
		"unknown source":   func(c *Config) { c.Source = "rss" },
		"scrape no url":    func(c *Config) { c.Source = SourceScrape },
		"bad bucket":       func(c *Config) { c.Window.Bucket = "week" },
		"month no year":    func(c *Config) { c.Window.Month = 3 },
		"bad mode":         func(c *Config) { c.Selection.Mode = "random" },
		"bad description":  func(c *Config) { c.Calendar.Description = "long" },
		"month over range": func(c *Config) { c.Window.Year = 2026; c.Window.Month = 13 },
	}
	for name, mutate := range tests {
		c := valid()
		mutate(c)
		assert.Error(t, c.Validate(), name)
	}
}

func TestResolveSecrets_FromDotEnv(t *testing.T) {
	t.Setenv("UKMOVIECAL_TEST_KEY", "")
	os.Unsetenv("UKMOVIECAL_TEST_KEY")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("UKMOVIECAL_TEST_KEY=from-dotenv\n"), 0o600))

	cfg := DefaultConfig()
	cfg.TMDB.APIKeyEnv = "UKMOVIECAL_TEST_KEY"
	require.NoError(t, cfg.ResolveSecrets(envFile))
	assert.Equal(t, "from-dotenv", cfg.TMDB.APIKey)
}

func TestResolveSecrets_MissingDotEnvIsFine(t *testing.T) {
	t.Setenv("UKMOVIECAL_TEST_KEY", "from-env")

	cfg := DefaultConfig()
	cfg.TMDB.APIKeyEnv = "UKMOVIECAL_TEST_KEY"
	require.NoError(t, cfg.ResolveSecrets(filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-env", cfg.TMDB.APIKey)
}

func TestWriteFileAtomic_Replaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ics")
	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must be cleaned up")
}
