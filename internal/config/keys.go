package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "search.endpoint", typ: kString, env: "EARTHQUERY_SEARCH_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Search.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.Endpoint },
	},
	{
		key: "search.api_key", typ: kString, env: "EARTHQUERY_SEARCH_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Search.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.APIKey },
	},
	{
		key: "search.api_version", typ: kString, env: "EARTHQUERY_SEARCH_API_VERSION",
		apply:   func(cfg *Config, v any) { cfg.Search.APIVersion = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.APIVersion },
	},
	{
		key: "search.index_name", typ: kString, env: "EARTHQUERY_SEARCH_INDEX_NAME",
		apply:   func(cfg *Config, v any) { cfg.Search.IndexName = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.IndexName },
	},
	{
		key: "model.endpoint", typ: kString, env: "EARTHQUERY_MODEL_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Model.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Model.Endpoint },
	},
	{
		key: "model.chat_deployment", typ: kString, env: "EARTHQUERY_MODEL_CHAT_DEPLOYMENT",
		apply:   func(cfg *Config, v any) { cfg.Model.ChatDeployment = v.(string) },
		extract: func(cfg Config) any { return cfg.Model.ChatDeployment },
	},
	{
		key: "model.embed_deployment", typ: kString, env: "EARTHQUERY_MODEL_EMBED_DEPLOYMENT",
		apply:   func(cfg *Config, v any) { cfg.Model.EmbedDeployment = v.(string) },
		extract: func(cfg Config) any { return cfg.Model.EmbedDeployment },
	},
	{
		key: "corpus.url", typ: kString, env: "EARTHQUERY_CORPUS_URL",
		apply:   func(cfg *Config, v any) { cfg.Corpus.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Corpus.URL },
	},
	{
		key: "corpus.local_path", typ: kString, env: "EARTHQUERY_CORPUS_LOCAL_PATH",
		apply:   func(cfg *Config, v any) { cfg.Corpus.LocalPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Corpus.LocalPath },
	},
	{
		key: "upload.enabled", typ: kBool, env: "EARTHQUERY_UPLOAD_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Upload.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Upload.Enabled },
	},
	{
		key: "upload.cleanup", typ: kBool, env: "EARTHQUERY_UPLOAD_CLEANUP",
		apply:   func(cfg *Config, v any) { cfg.Upload.Cleanup = v.(bool) },
		extract: func(cfg Config) any { return cfg.Upload.Cleanup },
	},
	{
		key: "upload.batch_size", typ: kInt, env: "EARTHQUERY_UPLOAD_BATCH_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Upload.BatchSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Upload.BatchSize },
	},
	{
		key: "upload.poll_interval", typ: kString, env: "EARTHQUERY_UPLOAD_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Upload.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Upload.PollInterval },
	},
	{
		key: "upload.poll_timeout", typ: kString, env: "EARTHQUERY_UPLOAD_POLL_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Upload.PollTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Upload.PollTimeout },
	},
	{
		key: "knowledge.source_name", typ: kString, env: "EARTHQUERY_KNOWLEDGE_SOURCE_NAME",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.SourceName = v.(string) },
		extract: func(cfg Config) any { return cfg.Knowledge.SourceName },
	},
	{
		key: "knowledge.base_name", typ: kString, env: "EARTHQUERY_KNOWLEDGE_BASE_NAME",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.BaseName = v.(string) },
		extract: func(cfg Config) any { return cfg.Knowledge.BaseName },
	},
	{
		key: "knowledge.reranker_threshold", typ: kFloat, env: "EARTHQUERY_KNOWLEDGE_RERANKER_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.RerankerThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Knowledge.RerankerThreshold },
	},
	{
		key: "knowledge.reasoning_effort", typ: kString, env: "EARTHQUERY_KNOWLEDGE_REASONING_EFFORT",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.ReasoningEffort = v.(string) },
		extract: func(cfg Config) any { return cfg.Knowledge.ReasoningEffort },
	},
	{
		key: "knowledge.answer_instructions", typ: kString, env: "EARTHQUERY_KNOWLEDGE_ANSWER_INSTRUCTIONS",
		apply:   func(cfg *Config, v any) { cfg.Knowledge.AnswerInstructions = v.(string) },
		extract: func(cfg Config) any { return cfg.Knowledge.AnswerInstructions },
	},
	{
		key: "server.port", typ: kInt, env: "EARTHQUERY_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "EARTHQUERY_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "storage.data_dir", typ: kString, env: "EARTHQUERY_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "EARTHQUERY_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
