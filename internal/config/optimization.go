package config

import (
	"time"

	"github.com/spf13/viper"
)

// OptimizationConfig holds every environment knob the optimization service
// reads at startup. It is loaded through its own viper instance, using the
// SetDefault-then-override idiom.
type OptimizationConfig struct {
	DatabaseURL string

	ArtifactsDir          string
	ArtifactStoreBackend  string // local | memory
	ManualBlueprintsRoot  string

	ExecutorMode          string // mock | external
	ExecutorAddr          string // external runtime gRPC target, when mode==external
	ExecutorTimeout       time.Duration
	ExecutorMaxRetries    int
	ExecutorRetryBackoff  time.Duration
	CircuitThreshold      int
	CircuitResetAfter     time.Duration

	JudgeBackend string // mock | llm

	AuthEnabled   bool
	APIKeysJSON   string
	JWTKeysJSON   string
	JWTIssuer     string
	JWTAudience   string
	JWTClockSkew  time.Duration
	DefaultTenant string

	DefaultDatasetSize    int
	MaxSearchRounds       int
	MaxExpansionsPerRound int
	MaxPromptCandidates   int
	TrainRatio            float64
	ValRatio              float64
	TestRatio             float64
}

// LoadOptimizationConfig reads OptimizationConfig from environment
// variables (prefix `OPT_`), falling back to defaults when unset.
func LoadOptimizationConfig() (OptimizationConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("OPT")
	v.AutomaticEnv()

	v.SetDefault("database_url", "sqlite://optimizer.db")
	v.SetDefault("artifacts_dir", "./artifacts")
	v.SetDefault("artifact_store_backend", "local")
	v.SetDefault("manual_blueprints_root", "./manual-blueprints")
	v.SetDefault("executor_mode", "mock")
	v.SetDefault("executor_addr", "localhost:7070")
	v.SetDefault("executor_timeout_ms", 30_000)
	v.SetDefault("executor_max_retries", 2)
	v.SetDefault("executor_retry_backoff_ms", 250)
	v.SetDefault("circuit_threshold", 5)
	v.SetDefault("circuit_reset_after_ms", 30_000)
	v.SetDefault("judge_backend", "mock")
	v.SetDefault("auth_enabled", false)
	v.SetDefault("api_keys_json", "{}")
	v.SetDefault("jwt_keys_json", "[]")
	v.SetDefault("jwt_issuer", "")
	v.SetDefault("jwt_audience", "")
	v.SetDefault("jwt_clock_skew_ms", 30_000)
	v.SetDefault("default_tenant", "default")
	v.SetDefault("default_dataset_size", 12)
	v.SetDefault("max_search_rounds", 8)
	v.SetDefault("max_expansions_per_round", 3)
	v.SetDefault("max_prompt_candidates", 5)
	v.SetDefault("train_ratio", 0.6)
	v.SetDefault("val_ratio", 0.2)
	v.SetDefault("test_ratio", 0.2)

	return OptimizationConfig{
		DatabaseURL:           v.GetString("database_url"),
		ArtifactsDir:          v.GetString("artifacts_dir"),
		ArtifactStoreBackend:  v.GetString("artifact_store_backend"),
		ManualBlueprintsRoot:  v.GetString("manual_blueprints_root"),
		ExecutorMode:          v.GetString("executor_mode"),
		ExecutorAddr:          v.GetString("executor_addr"),
		ExecutorTimeout:       time.Duration(v.GetInt64("executor_timeout_ms")) * time.Millisecond,
		ExecutorMaxRetries:    v.GetInt("executor_max_retries"),
		ExecutorRetryBackoff:  time.Duration(v.GetInt64("executor_retry_backoff_ms")) * time.Millisecond,
		CircuitThreshold:      v.GetInt("circuit_threshold"),
		CircuitResetAfter:     time.Duration(v.GetInt64("circuit_reset_after_ms")) * time.Millisecond,
		JudgeBackend:          v.GetString("judge_backend"),
		AuthEnabled:           v.GetBool("auth_enabled"),
		APIKeysJSON:           v.GetString("api_keys_json"),
		JWTKeysJSON:           v.GetString("jwt_keys_json"),
		JWTIssuer:             v.GetString("jwt_issuer"),
		JWTAudience:           v.GetString("jwt_audience"),
		JWTClockSkew:          time.Duration(v.GetInt64("jwt_clock_skew_ms")) * time.Millisecond,
		DefaultTenant:         v.GetString("default_tenant"),
		DefaultDatasetSize:    v.GetInt("default_dataset_size"),
		MaxSearchRounds:       v.GetInt("max_search_rounds"),
		MaxExpansionsPerRound: v.GetInt("max_expansions_per_round"),
		MaxPromptCandidates:   v.GetInt("max_prompt_candidates"),
		TrainRatio:            v.GetFloat64("train_ratio"),
		ValRatio:              v.GetFloat64("val_ratio"),
		TestRatio:             v.GetFloat64("test_ratio"),
	}, nil
}
