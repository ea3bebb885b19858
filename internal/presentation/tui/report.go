package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/espalier/pkg/session"
)

// ReportMarkdown formats a session's accessibility report as markdown.
func ReportMarkdown(sess *session.Session) (string, error) {
	state, err := sess.State()
	if err != nil {
		return "", err
	}
	report, err := sess.Report()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Room %s\n\n", state.RoomID)
	fmt.Fprintf(&sb, "- **Participant:** %s", sess.UserID())
	if sess.IsHost() {
		sb.WriteString(" (host)")
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "- **Host:** %s\n", state.HostUserID)
	fmt.Fprintf(&sb, "- **Current stage:** %s\n\n", state.CurrentStage)

	sb.WriteString("| Stage | Status | Notes |\n")
	sb.WriteString("|-------|--------|-------|\n")
	for _, stage := range sess.Graph().Stages() {
		status := "blocked"
		switch {
		case sess.IsVisited(stage):
			status = "visited"
		case stage == state.CurrentStage:
			status = "current"
		case report[stage].Accessible:
			status = "open"
		}
		fmt.Fprintf(&sb, "| %s | %s | %s |\n", stage, status, report[stage].Reason)
	}

	if next, ok := sess.RecommendedNext(); ok {
		fmt.Fprintf(&sb, "\nNext up: **%s**\n", next)
	}
	return sb.String(), nil
}
