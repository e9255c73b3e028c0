package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/revlab-dev/revpanel/internal/diff"
	"github.com/revlab-dev/revpanel/internal/model"
	"github.com/revlab-dev/revpanel/internal/orchestrator"
	"github.com/revlab-dev/revpanel/internal/tui"
)

var reviewCmd = &cobra.Command{
	Use:   "review [commit-range]",
	Short: "Run the agent panel over a diff",
	Long: `Run every configured review agent over a diff and print the merged
review. By default, reviews the last commit. Optionally specify a commit
range, or pipe a diff on stdin with "-".

Examples:
  revpanel review                     # last commit
  revpanel review main...HEAD         # branch vs main
  git diff | revpanel review -        # pipe any diff

Exit codes:
  0 — clean, no comments
  1 — low or medium severity comments
  2 — high or critical severity comments`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().StringP("format", "f", "text", "output format: text, json, markdown")
	reviewCmd.Flags().IntP("context", "C", 3, "lines of context around changes")
	reviewCmd.Flags().String("message", "", "extra context for the agents (PR description, intent)")
	reviewCmd.Flags().Bool("tui", false, "browse the result interactively")
}

func runReview(cmd *cobra.Command, args []string) error {
	contextLines, _ := cmd.Flags().GetInt("context")

	raw, err := getDiff(args, contextLines)
	if err != nil {
		return err
	}

	if strings.TrimSpace(raw) == "" {
		fmt.Println("No changes to review.")
		return nil
	}

	doc, err := diff.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing diff: %w", err)
	}

	reviewCtx, _ := cmd.Flags().GetString("message")
	result, err := runPanel(cmd, doc, reviewCtx)
	if err != nil {
		return err
	}

	useTUI, _ := cmd.Flags().GetBool("tui")
	if useTUI {
		return tui.Run(doc, result)
	}

	format, _ := cmd.Flags().GetString("format")
	return outputResult(doc, result, format)
}

// runPanel assembles the engine and runs one review, reporting per-agent
// completion on stderr so long remote calls show signs of life.
func runPanel(cmd *cobra.Command, doc *diff.Document, reviewCtx string) (*model.ReviewResult, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	registry, backend, ocfg, err := buildEngine(cfg)
	if err != nil {
		return nil, err
	}

	orch := orchestrator.New(registry, backend, ocfg)
	orch.ProgressFunc = func(agent string, status model.OutcomeStatus) {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", agent, status)
	}

	return orch.Review(cmd.Context(), doc, reviewCtx)
}

func getDiff(args []string, contextLines int) (string, error) {
	// Read from stdin if "-" is passed
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}

	// Find repo root
	repoDir, err := gitRepoRoot()
	if err != nil {
		return "", fmt.Errorf("not in a git repository (or git not installed): %w", err)
	}

	if len(args) == 1 {
		// Explicit commit range
		return diff.GitDiffRange(repoDir, args[0], contextLines)
	}

	// Default: HEAD vs parent
	return diff.GitDiffHead(repoDir, contextLines)
}

func gitRepoRoot() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func outputResult(doc *diff.Document, result *model.ReviewResult, format string) error {
	switch format {
	case "json":
		return outputJSON(result)
	case "markdown":
		return outputMarkdown(doc, result)
	default:
		return outputText(doc, result)
	}
}

func outputText(doc *diff.Document, result *model.ReviewResult) error {
	nFiles, added, deleted := doc.Stats()
	fmt.Printf("%d file(s) changed, +%d -%d\n\n", nFiles, added, deleted)
	fmt.Println(result.Summary)

	if len(result.Comments) > 0 {
		fmt.Println()
		for _, c := range result.Comments {
			loc := c.File
			if loc == "" {
				loc = "(general)"
			}
			if c.Line > 0 {
				loc = fmt.Sprintf("%s:%d", loc, c.Line)
			}
			agent := c.Agent
			if len(c.AlsoFlaggedBy) > 0 {
				agent += "," + strings.Join(c.AlsoFlaggedBy, ",")
			}
			fmt.Printf("  %s [%s] %s: %s\n", severityIcon(c.Severity), agent, loc, c.Message)
			if c.Suggestion != "" {
				fmt.Printf("       ↳ %s\n", c.Suggestion)
			}
		}
	}

	setExitCode(result)
	return nil
}

func outputJSON(result *model.ReviewResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	setExitCode(result)
	return nil
}

func outputMarkdown(doc *diff.Document, result *model.ReviewResult) error {
	nFiles, added, deleted := doc.Stats()
	fmt.Printf("## Review\n\n")
	fmt.Printf("**%d file(s)** changed, **+%d** insertions, **-%d** deletions\n\n", nFiles, added, deleted)
	fmt.Printf("%s\n\n", result.Summary)

	if len(result.Comments) > 0 {
		fmt.Println("| Severity | Agent | Location | Comment |")
		fmt.Println("|----------|-------|----------|---------|")
		for _, c := range result.Comments {
			loc := c.File
			if c.Line > 0 {
				loc = fmt.Sprintf("%s:%d", c.File, c.Line)
			}
			fmt.Printf("| %s | %s | `%s` | %s |\n", c.Severity, c.Agent, loc, c.Message)
		}
	}

	setExitCode(result)
	return nil
}

// setExitCode maps the worst comment onto the documented exit codes.
func setExitCode(result *model.ReviewResult) {
	max, ok := result.MaxSeverity()
	if !ok {
		return
	}
	if max >= model.SeverityHigh {
		os.Exit(2)
	}
	os.Exit(1)
}

func severityIcon(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "!!"
	case model.SeverityHigh:
		return "! "
	case model.SeverityMedium:
		return "* "
	default:
		return "- "
	}
}
