package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/renovate-ai/pr-analyzer/internal/analyzer"
	"github.com/renovate-ai/pr-analyzer/internal/cache"
	"github.com/renovate-ai/pr-analyzer/internal/config"
	"github.com/renovate-ai/pr-analyzer/internal/llmclient"
	"github.com/renovate-ai/pr-analyzer/internal/orchestrator"
	"github.com/renovate-ai/pr-analyzer/internal/pipeline"
	"github.com/renovate-ai/pr-analyzer/internal/types"
)

var (
	repoURL          string
	prNumber         int
	mainRef          string
	prRef            string
	primaryModel     string
	fallbackModel    string
	repoCheckoutPath string
	llmProvider      string
)

func main() {
	root := &cobra.Command{
		Use:   "analyzer",
		Short: "Compare two branches of a repo and report new/fixed/unchanged issues",
		RunE:  run,
	}

	root.Flags().StringVar(&repoURL, "repo-url", "", "repository URL (required)")
	root.Flags().IntVar(&prNumber, "pr-number", 0, "PR number, for logging/reporting only")
	root.Flags().StringVar(&mainRef, "main-ref", "main", "base branch ref to compare against")
	root.Flags().StringVar(&prRef, "pr-ref", "", "branch ref under review (required)")
	root.Flags().StringVar(&primaryModel, "model", "", "primary model id")
	root.Flags().StringVar(&fallbackModel, "fallback-model", "", "fallback model id, used when --model is empty")
	root.Flags().StringVar(&repoCheckoutPath, "checkout", ".", "local path to a checkout of repoURL, used for location validation")
	root.Flags().StringVar(&llmProvider, "llm-provider", "vllm", "provider tag forwarded to the LLM backend's chat request")

	_ = root.MarkFlagRequired("repo-url")
	_ = root.MarkFlagRequired("pr-ref")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if _, ok := os.LookupEnv("PR_ANALYZER_DEBUG"); ok {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if repoCheckoutPath != "" {
		cfg.RepoCheckoutPath = repoCheckoutPath
	}

	llm := llmclient.New(cfg.LLMURL, cfg.LLMKey, llmProvider, cfg.MaxInFlight, log)

	var remote cache.RemoteStore
	if cfg.CacheURL != "" {
		remote = cache.NewHTTPRemoteStore(cfg.CacheURL)
	}
	c, err := cache.New(remote, 1024, log)
	if err != nil {
		return fmt.Errorf("building cache: %w", err)
	}

	az := analyzer.New(llm, c, afero.NewOsFs(), log)
	orch := orchestrator.New(az, log)
	coord := pipeline.New(orch, c, log)

	req := pipeline.Request{
		RepoURL:  repoURL,
		PRNumber: prNumber,
		MainRef:  mainRef,
		PRRef:    prRef,
		ModelSelection: types.ModelSelection{
			PrimaryModelID:  primaryModel,
			FallbackModelID: fallbackModel,
		},
		RepoCheckoutPath: cfg.RepoCheckoutPath,
	}

	result, err := coord.Run(cmd.Context(), req, *cfg)
	if err != nil {
		return fmt.Errorf("running comparison: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
