package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/revlab-dev/revpanel/internal/diff"
	"github.com/revlab-dev/revpanel/internal/github"
	"github.com/revlab-dev/revpanel/internal/tui"
)

var prCmd = &cobra.Command{
	Use:   "pr <url>",
	Short: "Review a GitHub pull request",
	Long: `Fetch a pull request's diff from GitHub and run the agent panel over
it. The PR title and description are passed to the agents as context.

Set GITHUB_TOKEN to review private repositories and to avoid rate limits.

Example:
  revpanel pr https://github.com/owner/repo/pull/42`,
	Args: cobra.ExactArgs(1),
	RunE: runPR,
}

func init() {
	prCmd.Flags().StringP("format", "f", "text", "output format: text, json, markdown")
	prCmd.Flags().Bool("tui", false, "browse the result interactively")
}

func runPR(cmd *cobra.Command, args []string) error {
	ref, err := github.ParsePRURL(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	client := github.NewClient(cfg.GitHubToken)

	raw, err := client.FetchDiff(cmd.Context(), ref)
	if err != nil {
		return err
	}

	doc, err := diff.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing PR diff: %w", err)
	}

	// Metadata is best-effort context; review the diff either way.
	var reviewCtx string
	if meta, err := client.FetchMetadata(cmd.Context(), ref); err == nil {
		reviewCtx = meta.Context()
	}

	result, err := runPanel(cmd, doc, reviewCtx)
	if err != nil {
		return err
	}

	useTUI, _ := cmd.Flags().GetBool("tui")
	if useTUI {
		return tui.Run(doc, result)
	}

	fmt.Printf("Reviewing %s\n\n", ref)
	format, _ := cmd.Flags().GetString("format")
	return outputResult(doc, result, format)
}
