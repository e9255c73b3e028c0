// Package cli implements the revpanel command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/revlab-dev/revpanel/internal/agents"
	"github.com/revlab-dev/revpanel/internal/analyzer"
	"github.com/revlab-dev/revpanel/internal/config"
	"github.com/revlab-dev/revpanel/internal/orchestrator"
)

var rootCmd = &cobra.Command{
	Use:   "revpanel",
	Short: "Multi-agent code review for diffs and pull requests",
	Long: `revpanel runs a panel of specialized review agents (logic, security,
performance, style) over a diff concurrently and merges their findings
into one ordered, deduplicated review.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to revpanel.yaml")
	rootCmd.PersistentFlags().String("provider", "", "analyzer backend: openai, openrouter, ollama, anthropic, rules")
	rootCmd.PersistentFlags().String("model", "", "model name for remote backends")

	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(prCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig resolves the effective configuration for a command invocation.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if v, _ := cmd.Flags().GetString("provider"); v != "" {
		cfg.Provider = v
	}
	if v, _ := cmd.Flags().GetString("model"); v != "" {
		cfg.Model = v
	}
	return cfg, nil
}

// buildEngine assembles the review engine a command needs: the agent panel,
// the analyzer backend, and the orchestrator tuning derived from cfg.
func buildEngine(cfg config.Config) (*agents.Registry, analyzer.Analyzer, orchestrator.Config, error) {
	registry := agents.Default()
	if cfg.AgentsFile != "" {
		var err error
		registry, err = agents.LoadFile(cfg.AgentsFile)
		if err != nil {
			return nil, nil, orchestrator.Config{}, fmt.Errorf("loading agents: %w", err)
		}
	}

	backend, err := analyzer.New(cfg.Provider, analyzer.Options{
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		return nil, nil, orchestrator.Config{}, err
	}

	ocfg := orchestrator.Config{
		MaxDiffChars:        cfg.MaxDiffChars,
		AgentTimeout:        cfg.AgentTimeout(),
		SimilarityThreshold: cfg.SimilarityThreshold,
	}
	return registry, backend, ocfg, nil
}
