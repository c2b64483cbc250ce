package config

import (
	"strings"
	"testing"
)

// memBackend is an in-memory ConfigBackend for tests.
type memBackend struct {
	data map[string]any
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string]any)}
}

func (b *memBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	if s, ok := v.(string); ok {
		return s, true, nil
	}
	return "", false, nil
}

func (b *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	if i, ok := v.(int); ok {
		return i, true, nil
	}
	return 0, false, nil
}

func (b *memBackend) SetString(key, val string) error { b.data[key] = val; return nil }
func (b *memBackend) SetInt(key string, val int) error {
	b.data[key] = val
	return nil
}
func (b *memBackend) Delete(key string) error { delete(b.data, key); return nil }

func TestLoadDefaults(t *testing.T) {
	b := newMemBackend()
	b.data["search.endpoint"] = "https://example.search.windows.net"
	t.Setenv("EARTHQUERY_SEARCH_API_KEY", "test-key")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Search.IndexName != "earth_at_night" {
		t.Errorf("IndexName = %q, want earth_at_night", cfg.Search.IndexName)
	}
	if cfg.Search.APIVersion != "2025-08-01-preview" {
		t.Errorf("APIVersion = %q", cfg.Search.APIVersion)
	}
	if cfg.Upload.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.Upload.BatchSize)
	}
	if cfg.Knowledge.RerankerThreshold != 2.5 {
		t.Errorf("RerankerThreshold = %v, want 2.5", cfg.Knowledge.RerankerThreshold)
	}
	if cfg.Knowledge.SourceName != "earth-knowledge-source" {
		t.Errorf("SourceName = %q", cfg.Knowledge.SourceName)
	}
}

func TestLoadBackendValues(t *testing.T) {
	b := newMemBackend()
	b.data["search.endpoint"] = "https://example.search.windows.net"
	b.data["search.index_name"] = "custom_index"
	b.data["upload.batch_size"] = 25
	b.data["upload.enabled"] = "false"
	b.data["knowledge.reranker_threshold"] = "3.1"
	t.Setenv("EARTHQUERY_SEARCH_API_KEY", "test-key")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Search.IndexName != "custom_index" {
		t.Errorf("IndexName = %q, want custom_index", cfg.Search.IndexName)
	}
	if cfg.Upload.BatchSize != 25 {
		t.Errorf("BatchSize = %d, want 25", cfg.Upload.BatchSize)
	}
	if cfg.Upload.Enabled {
		t.Error("Upload.Enabled = true, want false")
	}
	if cfg.Knowledge.RerankerThreshold != 3.1 {
		t.Errorf("RerankerThreshold = %v, want 3.1", cfg.Knowledge.RerankerThreshold)
	}
}

func TestLoadEnvOverridesBackend(t *testing.T) {
	b := newMemBackend()
	b.data["search.endpoint"] = "https://file.search.windows.net"
	b.data["search.index_name"] = "file_index"
	t.Setenv("EARTHQUERY_SEARCH_API_KEY", "test-key")
	t.Setenv("EARTHQUERY_SEARCH_INDEX_NAME", "env_index")
	t.Setenv("EARTHQUERY_UPLOAD_POLL_INTERVAL", "250ms")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Search.IndexName != "env_index" {
		t.Errorf("IndexName = %q, want env_index", cfg.Search.IndexName)
	}
	if cfg.Upload.PollInterval != "250ms" {
		t.Errorf("PollInterval = %q, want 250ms", cfg.Upload.PollInterval)
	}
}

func TestLoadMissingEndpoint(t *testing.T) {
	t.Setenv("EARTHQUERY_SEARCH_API_KEY", "test-key")
	t.Setenv("EARTHQUERY_SEARCH_ENDPOINT", "")

	_, err := loadWith(newMemBackend())
	if err == nil {
		t.Fatal("expected error for missing endpoint")
	}
	if !strings.Contains(err.Error(), "search endpoint") {
		t.Errorf("error = %v, want mention of search endpoint", err)
	}
}

func TestLoadMissingAPIKey(t *testing.T) {
	b := newMemBackend()
	b.data["search.endpoint"] = "https://example.search.windows.net"
	t.Setenv("EARTHQUERY_SEARCH_API_KEY", "")

	_, err := loadWith(b)
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	if !strings.Contains(err.Error(), "EARTHQUERY_SEARCH_API_KEY") {
		t.Errorf("error = %v, want mention of EARTHQUERY_SEARCH_API_KEY", err)
	}
}

func TestSetKeyUnknown(t *testing.T) {
	if err := SetKey("nope.nope", "x"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidKeysExcludesSecrets(t *testing.T) {
	for _, k := range ValidKeys() {
		if k == "search.api_key" || k == "server.token" {
			t.Errorf("secret key %q listed as settable", k)
		}
	}
}

func TestShowAllExcludesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Search.APIKey = "super-secret"
	for _, info := range ShowAll(cfg) {
		if info.Value == "super-secret" {
			t.Errorf("secret value leaked through key %s", info.Key)
		}
	}
}
