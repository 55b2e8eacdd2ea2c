package main

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"notechat/internal/output"
)

// renderDiff returns the lines added to and removed from before, prefixed
// with "+ " and "- ". Unchanged lines are left out.
func renderDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for _, diff := range diffs {
		var prefix string
		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		default:
			continue
		}
		for _, line := range strings.SplitAfter(diff.Text, "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(prefix)
			sb.WriteString(strings.TrimSuffix(line, "\n"))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func printDiff(p *output.Printer, before, after string) {
	diff := renderDiff(before, after)
	if diff == "" {
		p.Muted("No changes")
		return
	}
	p.Heading("Changes")
	p.Print(diff)
}
