package model

import "time"

// ================ Config ================
type SessionConfig struct {
	Backend  string        `envconfig:"SESSION_BACKEND" default:"redis"`
	TTL      time.Duration `envconfig:"SESSION_TTL" default:"72h"`
	LockTTL  time.Duration `envconfig:"SESSION_LOCK_TTL" default:"2m"`
	LockWait time.Duration `envconfig:"SESSION_LOCK_WAIT" default:"30s"`
	// MaxPromptMessages caps the transcript tail sent to the conversation model.
	MaxPromptMessages int `envconfig:"SESSION_MAX_PROMPT_MESSAGES" default:"40"`
}

type ConversationModelConfig struct {
	Model       string  `envconfig:"CONVERSATION_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"CONVERSATION_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"CONVERSATION_TEMPERATURE" default:"0.4"`
}

type ExtractionModelConfig struct {
	Model       string  `envconfig:"EXTRACTION_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"EXTRACTION_MAX_TOKENS" default:"1000"`
	Temperature float32 `envconfig:"EXTRACTION_TEMPERATURE" default:"0"`
}

type LLMConfig struct {
	RequestsPerMinute int           `envconfig:"LLM_REQUESTS_PER_MINUTE" default:"120"`
	RetryBackoff      time.Duration `envconfig:"LLM_RETRY_BACKOFF" default:"750ms"`
	CallTimeout       time.Duration `envconfig:"LLM_CALL_TIMEOUT" default:"45s"`
}

type AnalysisConfig struct {
	ProfileTimeout      time.Duration `envconfig:"ANALYSIS_PROFILE_TIMEOUT" default:"5s"`
	DefaultRate         float64       `envconfig:"ANALYSIS_DEFAULT_RATE" default:"9.5"`
	DefaultTenureMonths int           `envconfig:"ANALYSIS_DEFAULT_TENURE_MONTHS" default:"60"`
	DownPaymentRatio    float64       `envconfig:"ANALYSIS_DOWN_PAYMENT_RATIO" default:"0.2"`
	BufferMonths        int           `envconfig:"ANALYSIS_BUFFER_MONTHS" default:"6"`
	DTICap              float64       `envconfig:"ANALYSIS_DTI_CAP" default:"0.4"`
}

// DefaultAnalysisConfig mirrors the envconfig defaults for callers that build
// the analysis agent without the environment (tests, tools).
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		ProfileTimeout:      5 * time.Second,
		DefaultRate:         9.5,
		DefaultTenureMonths: 60,
		DownPaymentRatio:    0.2,
		BufferMonths:        6,
		DTICap:              0.4,
	}
}

type DatabaseConfig struct {
	Driver string `envconfig:"DATABASE_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"DATABASE_DSN" default:"data/finbuddy.db"`
	// MaxOpenConns applies to postgres only; sqlite uses a single writer.
	MaxOpenConns int `envconfig:"DATABASE_MAX_OPEN_CONNS" default:"25"`
}
