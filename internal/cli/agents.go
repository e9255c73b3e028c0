package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/revlab-dev/revpanel/internal/agents"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the configured review agents",
	RunE:  runAgents,
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	registry := agents.Default()
	if cfg.AgentsFile != "" {
		registry, err = agents.LoadFile(cfg.AgentsFile)
		if err != nil {
			return fmt.Errorf("loading agents: %w", err)
		}
	}

	for _, def := range registry.List() {
		fmt.Printf("%-12s  concern=%-12s  default-severity=%s\n",
			def.Name, def.Concern, def.DefaultSeverity)
	}
	return nil
}
