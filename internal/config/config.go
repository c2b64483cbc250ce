package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Search    SearchConfig
	Model     ModelConfig
	Corpus    CorpusConfig
	Upload    UploadConfig
	Knowledge KnowledgeConfig
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
}

type SearchConfig struct {
	Endpoint   string
	APIKey     string
	APIVersion string
	IndexName  string
}

type ModelConfig struct {
	Endpoint        string
	ChatDeployment  string
	EmbedDeployment string
}

type CorpusConfig struct {
	URL       string
	LocalPath string
}

type UploadConfig struct {
	Enabled      bool
	Cleanup      bool
	BatchSize    int
	PollInterval string
	PollTimeout  string
}

type KnowledgeConfig struct {
	SourceName         string
	BaseName           string
	RerankerThreshold  float64
	ReasoningEffort    string
	AnswerInstructions string
}

type ServerConfig struct {
	Port  int
	Token string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

const defaultCorpusURL = "https://raw.githubusercontent.com/Azure-Samples/azure-search-sample-data/refs/heads/main/nasa-e-book/earth-at-night-json/documents.json"

func defaults() Config {
	return Config{
		Search: SearchConfig{
			APIVersion: "2025-08-01-preview",
			IndexName:  "earth_at_night",
		},
		Model: ModelConfig{
			ChatDeployment:  "gpt-5-mini",
			EmbedDeployment: "text-embedding-3-large",
		},
		Corpus: CorpusConfig{
			URL: defaultCorpusURL,
		},
		Upload: UploadConfig{
			Enabled:      true,
			BatchSize:    100,
			PollInterval: "4s",
			PollTimeout:  "2m",
		},
		Knowledge: KnowledgeConfig{
			SourceName:        "earth-knowledge-source",
			BaseName:          "earth-knowledge-base",
			RerankerThreshold: 2.5,
			ReasoningEffort:   "minimal",
		},
		Server: ServerConfig{
			Port: 4800,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "earthquery-data"
		}
	}
	return filepath.Join(dir, "earthquery")
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/earthquery/config.json, then applies EARTHQUERY_*
// environment overrides. Secrets (search API key, server token) are never
// read from the file backend and must come from the environment.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Search.Endpoint == "" {
		return Config{}, fmt.Errorf("missing required config: search endpoint. " +
			"Set it via `earthquery config set search.endpoint <url>` or environment variable EARTHQUERY_SEARCH_ENDPOINT")
	}
	if cfg.Search.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: search API key. " +
			"Set it via environment variable EARTHQUERY_SEARCH_API_KEY")
	}

	return cfg, nil
}
