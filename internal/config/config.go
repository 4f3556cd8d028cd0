package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// HashingEmbedderConfig configures the local feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty"`
}

// ChunkerConfig configures how extracted text is split into chunks.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// IndexConfig locates the persisted vector index.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// MetadataConfig locates the document metadata database.
type MetadataConfig struct {
	DBPath string `yaml:"db_path"`
}

// QueryConfig tunes retrieval and relevance ranking.
type QueryConfig struct {
	TopK           int     `yaml:"top_k"`
	HistoryWindow  int     `yaml:"history_window"`
	LexicalWeight  float64 `yaml:"lexical_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	ContextBudget  int     `yaml:"context_budget"`
}

// GeneratorConfig configures the chat-completion backend.
type GeneratorConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// ExtractConfig tunes PDF text extraction during ingestion.
type ExtractConfig struct {
	MaxPages      int    `yaml:"max_pages"`
	KeywordFilter string `yaml:"keyword_filter"`
	CleanText     bool   `yaml:"clean_text"`
}

// RedisTasksConfig contains connection details for the Redis task store.
type RedisTasksConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TasksConfig selects and configures the task result store.
type TasksConfig struct {
	Type    string            `yaml:"type"`
	TTLSecs int               `yaml:"ttl_secs"`
	Redis   *RedisTasksConfig `yaml:"redis,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Index     IndexConfig     `yaml:"index"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	Query     QueryConfig     `yaml:"query"`
	Generator GeneratorConfig `yaml:"generator"`
	Extract   ExtractConfig   `yaml:"extract"`
	Tasks     TasksConfig     `yaml:"tasks"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/docqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Embedder: EmbedderConfig{Type: "hashing"},
		Chunker:  ChunkerConfig{ChunkSize: 1000, ChunkOverlap: 200},
		Index:    IndexConfig{Path: "docqa.index"},
		Metadata: MetadataConfig{DBPath: "pdf_extracts.db"},
		Query: QueryConfig{
			TopK:           5,
			HistoryWindow:  5,
			LexicalWeight:  0.5,
			SemanticWeight: 0.5,
		},
		Generator: GeneratorConfig{
			BaseURL:   "https://openrouter.ai/api/v1",
			APIKeyEnv: "OPENROUTER_API_KEY",
			Model:     "openai/gpt-3.5-turbo",
		},
		Extract: ExtractConfig{MaxPages: 0, CleanText: true},
		Tasks:   TasksConfig{Type: "memory", TTLSecs: 3600},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
		if cfg.Chunker.ChunkOverlap == 0 {
			cfg.Chunker.ChunkOverlap = 200
		}
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = "docqa.index"
	}
	if cfg.Metadata.DBPath == "" {
		cfg.Metadata.DBPath = "pdf_extracts.db"
	}
	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 5
	}
	if cfg.Query.HistoryWindow == 0 {
		cfg.Query.HistoryWindow = 5
	}
	if cfg.Query.LexicalWeight == 0 && cfg.Query.SemanticWeight == 0 {
		cfg.Query.LexicalWeight = 0.5
		cfg.Query.SemanticWeight = 0.5
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.Generator.BaseURL == "" {
		cfg.Generator.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Generator.APIKeyEnv == "" {
		cfg.Generator.APIKeyEnv = "OPENROUTER_API_KEY"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "openai/gpt-3.5-turbo"
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 60
	}
	if cfg.Tasks.Type == "" {
		cfg.Tasks.Type = "memory"
	}
	if cfg.Tasks.TTLSecs == 0 {
		cfg.Tasks.TTLSecs = 3600
	}
}
