// Package diff handles parsing unified diffs into structured, line-addressable
// documents.
package diff

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// ErrMalformed is returned when the input contains no recognizable file or
// hunk headers.
var ErrMalformed = errors.New("malformed diff")

// LineKind classifies a single diff line.
type LineKind int

const (
	LineContext LineKind = iota
	LineAdded
	LineRemoved
)

func (k LineKind) String() string {
	switch k {
	case LineAdded:
		return "added"
	case LineRemoved:
		return "removed"
	default:
		return "context"
	}
}

// Line is one line of a hunk. NewLine is the line's number in the new file;
// it is 0 for removed lines, which have no position there.
type Line struct {
	Kind    LineKind
	Content string
	NewLine int
}

// Hunk is a contiguous block of changed lines anchored to a starting line
// number in the new file.
type Hunk struct {
	StartLine int // first line of the hunk in the new file
	OldStart  int
	Lines     []Line
}

// FileChange holds all hunks touching a single file.
type FileChange struct {
	Path      string
	OldPath   string
	IsNew     bool
	IsDeleted bool
	IsRenamed bool
	IsBinary  bool
	Hunks     []Hunk
	Added     int
	Deleted   int
}

// Name returns the display name for the file.
func (f *FileChange) Name() string {
	if f.IsRenamed {
		return fmt.Sprintf("%s -> %s", f.OldPath, f.Path)
	}
	if f.IsDeleted && f.Path == "" {
		return f.OldPath
	}
	return f.Path
}

// Document is the parsed, immutable representation of one diff. Analyzer
// invocations share a single Document concurrently and must not mutate it.
type Document struct {
	Files []FileChange
	raw   string
}

// Parse reads a unified diff and returns a Document. Every added and context
// line carries its resolved new-file line number, computed from the running
// counter declared in each hunk header.
func Parse(raw string) (*Document, error) {
	parsed, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("%w: no file headers found", ErrMalformed)
	}

	doc := &Document{raw: raw}
	for _, f := range parsed {
		fc := FileChange{
			Path:      f.NewName,
			OldPath:   f.OldName,
			IsNew:     f.IsNew,
			IsDeleted: f.IsDelete,
			IsRenamed: f.IsRename,
			IsBinary:  f.IsBinary,
		}

		for _, frag := range f.TextFragments {
			h := Hunk{
				StartLine: int(frag.NewPosition),
				OldStart:  int(frag.OldPosition),
			}

			lineNum := int(frag.NewPosition)
			for _, line := range frag.Lines {
				content := strings.TrimSuffix(line.Line, "\n")
				switch line.Op {
				case gitdiff.OpAdd:
					h.Lines = append(h.Lines, Line{Kind: LineAdded, Content: content, NewLine: lineNum})
					lineNum++
					fc.Added++
				case gitdiff.OpDelete:
					h.Lines = append(h.Lines, Line{Kind: LineRemoved, Content: content})
					fc.Deleted++
				default:
					h.Lines = append(h.Lines, Line{Kind: LineContext, Content: content, NewLine: lineNum})
					lineNum++
				}
			}

			fc.Hunks = append(fc.Hunks, h)
		}

		doc.Files = append(doc.Files, fc)
	}

	return doc, nil
}

// PromptText returns the canonical serialized form of the diff, as handed to
// analyzers and measured by admission control.
func (d *Document) PromptText() string {
	return d.raw
}

// Stats returns aggregate counts across all files.
func (d *Document) Stats() (files, added, deleted int) {
	files = len(d.Files)
	for i := range d.Files {
		added += d.Files[i].Added
		deleted += d.Files[i].Deleted
	}
	return
}

// Chunks splits the diff at hunk boundaries into pieces of at most maxChars
// characters, each prefixed with its file path. A single hunk larger than
// maxChars becomes its own oversized chunk rather than being split mid-hunk.
func (d *Document) Chunks(maxChars int) []string {
	if maxChars <= 0 || len(d.raw) <= maxChars {
		return []string{d.raw}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for i := range d.Files {
		f := &d.Files[i]
		for _, h := range f.Hunks {
			piece := renderHunk(f.Name(), h)
			if current.Len() > 0 && current.Len()+len(piece) > maxChars {
				flush()
			}
			current.WriteString(piece)
		}
	}
	flush()

	if len(chunks) == 0 {
		return []string{d.raw}
	}
	return chunks
}

func renderHunk(name string, h Hunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n@@ -%d +%d @@\n", name, h.OldStart, h.StartLine)
	for _, l := range h.Lines {
		switch l.Kind {
		case LineAdded:
			b.WriteByte('+')
		case LineRemoved:
			b.WriteByte('-')
		default:
			b.WriteByte(' ')
		}
		b.WriteString(l.Content)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

// GitDiff runs `git diff` with the given arguments and returns the raw output.
func GitDiff(repoDir string, args ...string) (string, error) {
	cmdArgs := append([]string{"diff"}, args...)
	cmd := exec.Command("git", cmdArgs...)
	cmd.Dir = repoDir
	cmd.Stderr = os.Stderr

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git diff: %w", err)
	}

	return string(out), nil
}

// GitDiffHead returns the diff of HEAD against its parent.
func GitDiffHead(repoDir string, contextLines int) (string, error) {
	return GitDiff(repoDir, fmt.Sprintf("-U%d", contextLines), "HEAD~1", "HEAD")
}

// GitDiffRange returns the diff for a commit range like "main...HEAD".
func GitDiffRange(repoDir string, commitRange string, contextLines int) (string, error) {
	return GitDiff(repoDir, fmt.Sprintf("-U%d", contextLines), commitRange)
}
