// Package config loads the pipeline's runtime configuration from the
// environment variables named in spec §6 (LLM_URL, LLM_KEY, CACHE_URL,
// MAX_ITERATIONS, PER_ITERATION_TIMEOUT_MS, PAIR_TIMEOUT_MS,
// MAX_IN_FLIGHT, CACHE_TTL_S), each an explicit config field with no
// implicit globals.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the validated, fully-defaulted runtime configuration threaded
// into the coordinator (C9) and down through every component.
type Config struct {
	LLMURL   string `mapstructure:"llm_url" validate:"required,url"`
	LLMKey   string `mapstructure:"llm_key" validate:"required"`
	CacheURL string `mapstructure:"cache_url"` // optional: absent => local-only (§4.4)

	MaxIterations         int `mapstructure:"max_iterations" validate:"gte=1,lte=50"`
	PerIterationTimeoutMS int `mapstructure:"per_iteration_timeout_ms" validate:"gte=1000,lte=300000"`
	PairTimeoutMS         int `mapstructure:"pair_timeout_ms" validate:"omitempty,gte=1000"`
	MaxInFlight           int `mapstructure:"max_in_flight" validate:"gte=1"`
	CacheTTLSeconds       int `mapstructure:"cache_ttl_s" validate:"gte=0"`

	// UseCache toggles cache consultation per branch analysis (§4.5 step 1,
	// §8 P8). RequireBothBranches controls §4.6's fail-fast-vs-degrade
	// behavior when one of a pair of branch analyses fails.
	UseCache            bool `mapstructure:"use_cache"`
	RequireBothBranches bool `mapstructure:"require_both_branches"`

	RepoCheckoutPath string `mapstructure:"repo_checkout_path"`
}

// Defaults per spec §4.4 (1 hour TTL), §4.5 (120s per-iteration), §4.6 (2x
// per-branch) and §5 (maxInFlight=4).
const (
	DefaultPerIterationTimeoutMS = 120_000
	DefaultMaxIterations         = 10
	DefaultMaxInFlight           = 4
	DefaultCacheTTLSeconds       = 3600
)

// PerIterationTimeout returns the configured per-iteration budget as a
// time.Duration.
func (c Config) PerIterationTimeout() time.Duration {
	return time.Duration(c.PerIterationTimeoutMS) * time.Millisecond
}

// PairTimeout returns the configured pair-wall-clock budget, defaulting to
// 2x the per-iteration timeout times max iterations worth of headroom if
// unset (§4.6: "default 2x per-branch timeout").
func (c Config) PairTimeout() time.Duration {
	if c.PairTimeoutMS > 0 {
		return time.Duration(c.PairTimeoutMS) * time.Millisecond
	}
	return 2 * c.PerIterationTimeout() * time.Duration(c.MaxIterations)
}

// CacheTTL returns the configured cache entry lifetime.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("max_iterations", DefaultMaxIterations)
	v.SetDefault("per_iteration_timeout_ms", DefaultPerIterationTimeoutMS)
	v.SetDefault("max_in_flight", DefaultMaxInFlight)
	v.SetDefault("cache_ttl_s", DefaultCacheTTLSeconds)
	v.SetDefault("pair_timeout_ms", 0) // 0 => computed by PairTimeout()
	v.SetDefault("use_cache", true)
	v.SetDefault("require_both_branches", true)
}

// Load binds the named environment variables into a validated Config.
// Viper's AutomaticEnv is scoped to this *viper.Viper instance only — no
// process-wide global state is touched (spec §9's "replace global
// singletons with explicit context" applies to configuration too).
func Load() (*Config, error) {
	v := viper.New()
	applyDefaults(v)
	v.AutomaticEnv()

	for _, key := range []string{
		"llm_url", "llm_key", "cache_url",
		"max_iterations", "per_iteration_timeout_ms", "pair_timeout_ms",
		"max_in_flight", "cache_ttl_s", "use_cache", "require_both_branches",
		"repo_checkout_path",
	} {
		_ = v.BindEnv(key, envName(key))
	}

	cfg := &Config{
		LLMURL:                v.GetString("llm_url"),
		LLMKey:                v.GetString("llm_key"),
		CacheURL:              v.GetString("cache_url"),
		MaxIterations:         v.GetInt("max_iterations"),
		PerIterationTimeoutMS: v.GetInt("per_iteration_timeout_ms"),
		PairTimeoutMS:         v.GetInt("pair_timeout_ms"),
		MaxInFlight:           v.GetInt("max_in_flight"),
		CacheTTLSeconds:       v.GetInt("cache_ttl_s"),
		UseCache:              v.GetBool("use_cache"),
		RequireBothBranches:   v.GetBool("require_both_branches"),
		RepoCheckoutPath:      v.GetString("repo_checkout_path"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// envName maps a dotted/underscored mapstructure key to its uppercase
// environment variable name (llm_url -> LLM_URL).
func envName(key string) string {
	out := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
