package config

import "time"

func DefaultConfig() *Config {
	return &Config{
		Engine:  DefaultEngineConfig(),
		RAG:     DefaultRAGConfig(),
		LLM:     DefaultLLMConfig(),
		Redis:   RedisConfig{KeyPrefix: "salesagent"},
		Log:     LogConfig{Level: "info"},
		Metrics: MetricsConfig{Namespace: "salesagent"},
	}
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxRebuttalAttempts:      2,
		MaxSpinQuestionsPerCycle: 5,
		MaxFollowUpAttempts:      3,
		FollowUpDelay:            30 * time.Minute,
		HistoryWindow:            20,
		FallbackMessage:          "Sorry, could you give me a moment? Let me make sure I understood you correctly.",
		ApologyMessage:           "Sorry, something went wrong on my side. Could you repeat that, please?",
		Language:                 "Brazilian Portuguese",
		AgentName:                "Ana",
		CompanyName:              "our company",
	}
}

func DefaultRAGConfig() RAGConfig {
	return RAGConfig{
		ChunkLimit:          3,
		SimilarityThreshold: 0.7,
	}
}

func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	}
}
