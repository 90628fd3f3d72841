// Package config loads the engine configuration.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("salesagent.yaml").
//	    WithEnvPrefix("SALESAGENT").
//	    Load()
//
// Precedence: defaults, then the YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tbxark/salesagent/types"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Engine    EngineConfig     `yaml:"engine" env:"ENGINE"`
	RAG       RAGConfig        `yaml:"rag" env:"RAG"`
	LLM       LLMConfig        `yaml:"llm" env:"LLM"`
	Redis     RedisConfig      `yaml:"redis" env:"REDIS"`
	Log       LogConfig        `yaml:"log" env:"LOG"`
	Metrics   MetricsConfig    `yaml:"metrics" env:"METRICS"`
	Offerings []types.Offering `yaml:"offerings"`
}

// EngineConfig holds the per-account conversation limits.
type EngineConfig struct {
	MaxRebuttalAttempts      int           `yaml:"max_rebuttal_attempts" env:"MAX_REBUTTAL_ATTEMPTS"`
	MaxSpinQuestionsPerCycle int           `yaml:"max_spin_questions_per_cycle" env:"MAX_SPIN_QUESTIONS_PER_CYCLE"`
	MaxFollowUpAttempts      int           `yaml:"max_follow_up_attempts" env:"MAX_FOLLOW_UP_ATTEMPTS"`
	FollowUpDelay            time.Duration `yaml:"follow_up_delay" env:"FOLLOW_UP_DELAY"`
	HistoryWindow            int           `yaml:"history_window" env:"HISTORY_WINDOW"`
	FallbackMessage          string        `yaml:"fallback_message" env:"FALLBACK_MESSAGE"`
	ApologyMessage           string        `yaml:"apology_message" env:"APOLOGY_MESSAGE"`
	Language                 string        `yaml:"language" env:"LANGUAGE"`
	AgentName                string        `yaml:"agent_name" env:"AGENT_NAME"`
	CompanyName              string        `yaml:"company_name" env:"COMPANY_NAME"`
}

type RAGConfig struct {
	ChunkLimit          int     `yaml:"chunk_limit" env:"CHUNK_LIMIT"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"SIMILARITY_THRESHOLD"`
	// Scope is the account partition of the knowledge base.
	Scope string `yaml:"scope" env:"SCOPE"`
}

type LLMConfig struct {
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	Model   string `yaml:"model" env:"MODEL"`
}

// RedisConfig selects the checkpoint store; an empty Addr keeps state in memory.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// Addr serves /metrics when set, e.g. ":9090".
	Addr string `yaml:"addr" env:"ADDR"`
}

func (c *Config) Validate() error {
	var errs []error
	if c.Engine.MaxRebuttalAttempts < 1 {
		errs = append(errs, fmt.Errorf("engine.max_rebuttal_attempts must be >= 1, got %d", c.Engine.MaxRebuttalAttempts))
	}
	if c.Engine.MaxSpinQuestionsPerCycle < 1 {
		errs = append(errs, fmt.Errorf("engine.max_spin_questions_per_cycle must be >= 1, got %d", c.Engine.MaxSpinQuestionsPerCycle))
	}
	if c.Engine.MaxFollowUpAttempts < 0 {
		errs = append(errs, fmt.Errorf("engine.max_follow_up_attempts must be >= 0, got %d", c.Engine.MaxFollowUpAttempts))
	}
	if c.Engine.FollowUpDelay <= 0 {
		errs = append(errs, fmt.Errorf("engine.follow_up_delay must be positive"))
	}
	if c.RAG.ChunkLimit < 1 {
		errs = append(errs, fmt.Errorf("rag.chunk_limit must be >= 1, got %d", c.RAG.ChunkLimit))
	}
	if c.RAG.SimilarityThreshold < 0 || c.RAG.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("rag.similarity_threshold must be within [0,1], got %v", c.RAG.SimilarityThreshold))
	}
	for i, o := range c.Offerings {
		if o.Name == "" {
			errs = append(errs, fmt.Errorf("offerings[%d].name is required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
