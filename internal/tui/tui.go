// Package tui implements the Bubble Tea review browser.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/revlab-dev/revpanel/internal/diff"
	"github.com/revlab-dev/revpanel/internal/model"
)

// Model is the top-level Bubble Tea model for browsing a finished review:
// the merged comments on the left, the annotated diff on the right.
type Model struct {
	doc    *diff.Document
	result *model.ReviewResult

	// UI state
	width  int
	height int

	// Currently selected comment (index into result.Comments); -1 when the
	// review produced none.
	commentIndex int

	// Diff pane
	fileIndex    int
	scrollOffset int
	viewHeight   int

	// Rendered lines for the current file
	lines []renderedLine

	showSuggestions bool
	showHelp        bool
}

// New creates a new TUI model from a parsed diff and its review result.
func New(doc *diff.Document, result *model.ReviewResult) Model {
	m := Model{
		doc:             doc,
		result:          result,
		commentIndex:    -1,
		showSuggestions: true,
	}
	if len(result.Comments) > 0 {
		m.commentIndex = 0
		m.fileIndex = m.fileFor(&result.Comments[0])
	}
	m.updateLines()
	return m
}

// fileFor maps a comment to the index of the file it flags. Comments with no
// location (or a file the diff does not contain) keep the current pane.
func (m *Model) fileFor(c *model.ReviewComment) int {
	if c.File == "" {
		return m.fileIndex
	}
	for i := range m.doc.Files {
		if m.doc.Files[i].Name() == c.File {
			return i
		}
	}
	return m.fileIndex
}

func (m *Model) updateLines() {
	if len(m.doc.Files) == 0 {
		m.lines = nil
		return
	}
	m.lines = renderFile(&m.doc.Files[m.fileIndex], m.result.Comments, m.showSuggestions)
}

// selectComment moves the selection and scrolls its annotation into view.
func (m *Model) selectComment(idx int) {
	if idx < 0 || idx >= len(m.result.Comments) {
		return
	}
	m.commentIndex = idx
	if fi := m.fileFor(&m.result.Comments[idx]); fi != m.fileIndex {
		m.fileIndex = fi
		m.scrollOffset = 0
		m.updateLines()
	}
	for i, rl := range m.lines {
		if rl.IsComment && rl.CommentIdx == idx {
			m.scrollOffset = i - 3
			if m.scrollOffset < 0 {
				m.scrollOffset = 0
			}
			return
		}
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewHeight = m.height - 4 // status bar + help bar + borders
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Down):
			if m.scrollOffset < len(m.lines)-1 {
				m.scrollOffset++
			}

		case key.Matches(msg, keys.Up):
			if m.scrollOffset > 0 {
				m.scrollOffset--
			}

		case key.Matches(msg, keys.NextComment):
			m.selectComment(m.commentIndex + 1)

		case key.Matches(msg, keys.PrevComment):
			m.selectComment(m.commentIndex - 1)

		case key.Matches(msg, keys.NextHunk):
			m.jumpToNextHunk()

		case key.Matches(msg, keys.PrevHunk):
			m.jumpToPrevHunk()

		case key.Matches(msg, keys.Suggestion):
			m.showSuggestions = !m.showSuggestions
			m.updateLines()

		case key.Matches(msg, keys.Help):
			m.showHelp = !m.showHelp
		}
	}

	return m, nil
}

func (m *Model) jumpToNextHunk() {
	for i := m.scrollOffset + 1; i < len(m.lines); i++ {
		if m.lines[i].IsHunk {
			m.scrollOffset = i
			return
		}
	}
}

func (m *Model) jumpToPrevHunk() {
	for i := m.scrollOffset - 1; i >= 0; i-- {
		if m.lines[i].IsHunk {
			m.scrollOffset = i
			return
		}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	// Layout: comment list on left, diff on right
	listWidth := m.commentListWidth()
	diffWidth := m.width - listWidth - 1 // -1 for gap

	commentList := m.renderCommentList(listWidth, m.height-2)
	diffView := m.renderDiffView(diffWidth, m.height-2)

	main := lipgloss.JoinHorizontal(lipgloss.Top, commentList, " ", diffView)

	statusBar := m.renderStatusBar()

	return lipgloss.JoinVertical(lipgloss.Left, main, statusBar)
}

func (m Model) commentListWidth() int {
	w := m.width * 2 / 5
	if w > 60 {
		w = 60
	}
	if w < 24 {
		w = 24
	}
	return w
}

func (m Model) renderCommentList(width, height int) string {
	var b strings.Builder

	if len(m.result.Comments) == 0 {
		b.WriteString(commentItemStyle.Render("No comments."))
	}

	maxLine := width - 6
	for i := range m.result.Comments {
		c := &m.result.Comments[i]

		loc := c.File
		if loc == "" {
			loc = "(general)"
		}
		if c.Line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, c.Line)
		}

		line := fmt.Sprintf("%s %s — %s", severityBadge(c.Severity), loc, c.Message)
		if maxLine > 0 && len(line) > maxLine {
			line = line[:maxLine-1] + "…"
		}

		style := commentItemStyle
		if i == m.commentIndex {
			style = commentItemSelectedStyle
		}

		b.WriteString(style.Width(width - 4).Render(line))
		if i < len(m.result.Comments)-1 {
			b.WriteByte('\n')
		}
	}

	innerHeight := height - 2 // borders
	return commentListStyle.Width(width).Height(innerHeight).Render(b.String())
}

func severityBadge(s model.Severity) string {
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

func (m Model) renderDiffView(width, height int) string {
	if len(m.doc.Files) == 0 {
		return diffViewStyle.Width(width).Height(height - 2).Render("No changes")
	}

	f := &m.doc.Files[m.fileIndex]
	innerWidth := width - 4 // borders + padding
	innerHeight := height - 2

	header := fileHeaderStyle.Render(f.Name())

	visibleLines := innerHeight - 2 // header takes some space
	if visibleLines < 1 {
		visibleLines = 1
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteByte('\n')

	end := m.scrollOffset + visibleLines
	if end > len(m.lines) {
		end = len(m.lines)
	}
	for i := m.scrollOffset; i < end; i++ {
		rl := m.lines[i]
		selected := rl.IsComment && rl.CommentIdx == m.commentIndex
		b.WriteString(styleLine(rl, innerWidth, selected))
		if i < end-1 {
			b.WriteByte('\n')
		}
	}

	return diffViewStyle.Width(width).Height(innerHeight).Render(b.String())
}

func (m Model) renderStatusBar() string {
	nFiles, added, deleted := m.doc.Stats()

	left := " " + m.result.Summary
	if idx := strings.IndexByte(left, '\n'); idx > 0 {
		left = left[:idx]
	}
	if m.commentIndex >= 0 {
		left = fmt.Sprintf(" Comment %d/%d  %s", m.commentIndex+1, len(m.result.Comments),
			m.result.Comments[m.commentIndex].Agent)
	}

	right := fmt.Sprintf("%d file(s)  +%d -%d  ? help ", nFiles, added, deleted)

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderHelp() string {
	var b strings.Builder

	b.WriteString(fileHeaderStyle.Render("revpanel — Keyboard Shortcuts"))
	b.WriteString("\n\n")

	helpItems := []struct{ key, desc string }{
		{"↑/k", "Scroll up"},
		{"↓/j", "Scroll down"},
		{"n/Tab", "Next comment"},
		{"N/S-Tab", "Previous comment"},
		{"]", "Next hunk"},
		{"[", "Previous hunk"},
		{"s", "Toggle suggestions"},
		{"?", "Toggle this help"},
		{"q", "Quit"},
	}

	for _, item := range helpItems {
		b.WriteString(fmt.Sprintf("  %s  %s\n",
			helpKeyStyle.Width(12).Render(item.key),
			item.desc,
		))
	}

	b.WriteString("\n")
	b.WriteString(helpBarStyle.Render("Press ? to close help"))

	return b.String()
}

// Run starts the TUI application.
func Run(doc *diff.Document, result *model.ReviewResult) error {
	m := New(doc, result)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
