package cli

import (
	"github.com/spf13/cobra"

	"github.com/revlab-dev/revpanel/internal/api"
	"github.com/revlab-dev/revpanel/internal/github"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP server exposing the review engine.

Endpoints:
  GET  /health          — Health check
  POST /api/review      — Review a raw diff
  POST /api/review/pr   — Review a GitHub pull request by URL
  POST /api/parse       — Parse a diff into structured files
  GET  /api/ws          — WebSocket reviews with per-agent progress`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	registry, backend, ocfg, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	listen := cfg.ListenAddr
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		listen = addr
	}

	srv := api.New(listen, registry, backend, ocfg, github.NewClient(cfg.GitHubToken))
	return srv.ListenAndServe()
}
