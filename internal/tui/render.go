package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/revlab-dev/revpanel/internal/diff"
	"github.com/revlab-dev/revpanel/internal/model"
)

// renderedLine is a single line of diff output ready for display.
type renderedLine struct {
	OldNum  int // 0 means not applicable (add-only)
	NewNum  int // 0 means not applicable (delete-only)
	Kind    diff.LineKind
	Content string // raw text content (no trailing newline)
	IsHunk  bool   // true if this is a hunk header

	// Syntax highlighting tokens (nil = no highlighting)
	Tokens []diff.Token

	// Review comment annotation
	IsComment  bool
	Severity   model.Severity
	CommentIdx int // index into the flat comment slice
}

// renderFile produces renderedLines for a file's hunks, weaving review
// comments in directly below the line they flag. File-level comments
// (line 0) go above the first hunk.
func renderFile(f *diff.FileChange, comments []model.ReviewComment, showSuggestions bool) []renderedLine {
	var lines []renderedLine

	name := f.Name()

	type placed struct {
		c   *model.ReviewComment
		idx int
	}
	byLine := make(map[int][]placed)
	for i := range comments {
		c := &comments[i]
		if c.File != name {
			continue
		}
		byLine[c.Line] = append(byLine[c.Line], placed{c, i})
	}

	appendComments := func(lineNo int) {
		for _, p := range byLine[lineNo] {
			lines = append(lines, commentLines(p.c, p.idx, showSuggestions)...)
		}
	}

	// File-level comments first.
	appendComments(0)

	// Collect content lines for syntax highlighting in one pass.
	var contentLines []string
	for _, h := range f.Hunks {
		for _, line := range h.Lines {
			contentLines = append(contentLines, line.Content)
		}
	}
	highlighted := diff.HighlightLines(name, contentLines)
	hlIdx := 0

	for i, h := range f.Hunks {
		lines = append(lines, renderedLine{
			IsHunk:  true,
			Content: fmt.Sprintf("@@ -%d +%d @@", h.OldStart, h.StartLine),
		})

		oldLine := h.OldStart

		for _, line := range h.Lines {
			rl := renderedLine{
				Kind:    line.Kind,
				Content: line.Content,
			}

			if hlIdx < len(highlighted) {
				rl.Tokens = highlighted[hlIdx].Tokens
				hlIdx++
			}

			switch line.Kind {
			case diff.LineContext:
				rl.OldNum = oldLine
				rl.NewNum = line.NewLine
				oldLine++
			case diff.LineRemoved:
				rl.OldNum = oldLine
				oldLine++
			case diff.LineAdded:
				rl.NewNum = line.NewLine
			}

			lines = append(lines, rl)

			if rl.NewNum > 0 {
				appendComments(rl.NewNum)
			}
		}

		if i < len(f.Hunks)-1 {
			lines = append(lines, renderedLine{Content: ""})
		}
	}

	return lines
}

func commentLines(c *model.ReviewComment, idx int, showSuggestions bool) []renderedLine {
	agent := c.Agent
	if len(c.AlsoFlaggedBy) > 0 {
		agent += ", " + strings.Join(c.AlsoFlaggedBy, ", ")
	}
	out := []renderedLine{{
		IsComment:  true,
		Severity:   c.Severity,
		CommentIdx: idx,
		Content:    fmt.Sprintf("▲ [%s] %s: %s", agent, c.Severity, c.Message),
	}}
	if showSuggestions && c.Suggestion != "" {
		out = append(out, renderedLine{
			IsComment:  true,
			Severity:   c.Severity,
			CommentIdx: idx,
			Content:    "  ↳ " + c.Suggestion,
		})
	}
	return out
}

func severityStyle(s model.Severity) lipgloss.Style {
	switch s {
	case model.SeverityCritical:
		return severityCriticalStyle
	case model.SeverityHigh:
		return severityHighStyle
	case model.SeverityMedium:
		return severityMediumStyle
	default:
		return severityLowStyle
	}
}

// renderHighlightedContent renders line content with syntax tokens.
func renderHighlightedContent(rl renderedLine, prefix string) string {
	if len(rl.Tokens) == 0 {
		return prefix + rl.Content
	}

	var b strings.Builder
	b.WriteString(prefix)

	for _, tok := range rl.Tokens {
		if tok.Color != "" && rl.Kind == diff.LineContext {
			// Apply syntax color only for context lines
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(tok.Color)).Render(tok.Text))
		} else {
			b.WriteString(tok.Text)
		}
	}

	return b.String()
}

// styleLine applies styling to a rendered line for the diff pane.
func styleLine(rl renderedLine, width int, selected bool) string {
	if rl.IsComment {
		style := severityStyle(rl.Severity)
		if strings.HasPrefix(rl.Content, "  ↳") {
			style = suggestionStyle
		}
		if selected {
			style = style.Background(colorHighlight)
		}
		text := rl.Content
		if len(text) > width-2 && width > 3 {
			text = text[:width-3] + "…"
		}
		return style.Render(text)
	}

	if rl.IsHunk {
		return hunkHeaderStyle.Width(width).Render(rl.Content)
	}

	var oldNum, newNum string
	if rl.OldNum > 0 {
		oldNum = fmt.Sprintf("%4d", rl.OldNum)
	} else {
		oldNum = "    "
	}
	if rl.NewNum > 0 {
		newNum = fmt.Sprintf("%4d", rl.NewNum)
	} else {
		newNum = "    "
	}

	lineNums := lineNumberStyle.Render(oldNum) + " " + lineNumberStyle.Render(newNum)

	var prefix string
	var style func(string) string

	switch rl.Kind {
	case diff.LineAdded:
		prefix = "+"
		style = func(s string) string { return addedLineStyle.Render(s) }
	case diff.LineRemoved:
		prefix = "-"
		style = func(s string) string { return deletedLineStyle.Render(s) }
	default:
		prefix = " "
		style = nil // context lines get syntax highlighting instead
	}

	var content string
	if style == nil {
		content = renderHighlightedContent(rl, prefix)
	} else {
		content = style(prefix + rl.Content)
	}

	// Truncate long lines
	maxContent := width - 12
	if maxContent > 0 && lipgloss.Width(content) > maxContent {
		content = truncate(prefix+rl.Content, maxContent)
		if style != nil {
			content = style(content)
		}
	}

	return lineNums + " " + content
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) > max {
		return s[:max-1] + "…"
	}
	return s
}
