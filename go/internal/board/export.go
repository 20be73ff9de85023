package board

import (
	"fmt"
	"strings"
	"time"

	"github.com/dhanucoding/retro-app/go/internal/models"
)

// ExportMarkdown renders the board as a plain markdown summary: sprint
// metadata, team members, and each category's items with vote counts. A
// pure projection of the board, usable offline.
func ExportMarkdown(b models.Board, now time.Time) string {
	sprintName := b.SprintName
	if sprintName == "" {
		sprintName = "Unnamed Sprint"
	}
	sprintDate := b.SprintDate
	if sprintDate == "" {
		sprintDate = "No date set"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Sprint Retrospective: %s\n", sprintName)
	fmt.Fprintf(&sb, "**Date:** %s\n\n", sprintDate)

	if len(b.TeamMembers) > 0 {
		fmt.Fprintf(&sb, "**Team Members:** %s\n\n", strings.Join(b.TeamMembers, ", "))
	}

	for i, category := range models.Categories() {
		if i > 0 {
			sb.WriteString("\n")
		}
		items := b.Items[category]
		fmt.Fprintf(&sb, "## %s (%d items)\n", category.Title(), len(items))
		for n, item := range items {
			fmt.Fprintf(&sb, "%d. %s", n+1, item.Text)
			if item.Votes > 0 {
				fmt.Fprintf(&sb, " ❤️ %d", item.Votes)
			}
			sb.WriteString("\n")
		}
	}

	fmt.Fprintf(&sb, "\n---\n*Generated on %s*", now.Format("2006-01-02 15:04:05"))
	return sb.String()
}

// ExportFilename builds the suggested download name for a summary.
func ExportFilename(b models.Board) string {
	name := b.SprintName
	if name == "" {
		name = "Unnamed Sprint"
	}
	slug := strings.ToLower(strings.Join(strings.Fields(name), "-"))
	return fmt.Sprintf("retrospective-%s-%s.md", slug, b.SprintDate)
}
