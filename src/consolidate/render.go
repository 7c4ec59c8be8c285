package consolidate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stake-plus/osintops/src/shared/osint"
)

const truncatedSuffix = "\n_... report truncated_"

// RenderMarkdown formats a report for chat and terminal output. A positive
// maxLen bounds the result, cutting at a line boundary.
func RenderMarkdown(report osint.Report, maxLen int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## OSINT report: %s\n", report.Target)
	status := string(report.Status)
	var flags []string
	if report.Partial {
		flags = append(flags, "partial")
	}
	if report.DeadlineExceeded {
		flags = append(flags, "deadline exceeded")
	}
	if len(flags) > 0 {
		status += " (" + strings.Join(flags, ", ") + ")"
	}
	fmt.Fprintf(&b, "**Status:** %s\n", status)
	fmt.Fprintf(&b, "**Findings:** %d (%d corroborated)\n", report.Summary.TotalFindings, report.Summary.Corroborated)
	if tasks := taskSummary(report.Summary.Tasks); tasks != "" {
		fmt.Fprintf(&b, "**Tasks:** %s\n", tasks)
	}
	if report.Digest != "" {
		fmt.Fprintf(&b, "**Digest:** `%s`\n", report.Digest)
	}

	if len(report.Groups) == 0 {
		b.WriteString("\n_No findings._\n")
	}
	for _, group := range report.Groups {
		fmt.Fprintf(&b, "\n### %s (%d)\n", group.Category, len(group.Entries))
		for _, entry := range group.Entries {
			f := entry.Finding
			line := fmt.Sprintf("- `%s` %.2f [%s]", f.Value, f.Confidence, strings.Join(f.Sources, ", "))
			if entry.Corroborated {
				line += " **corroborated**"
			}
			if attrs := attributeSummary(f.Attributes); attrs != "" {
				line += " " + attrs
			}
			b.WriteString(line + "\n")
		}
	}

	return truncate(b.String(), maxLen)
}

func taskSummary(tasks map[osint.TaskState]int) string {
	var parts []string
	for _, state := range osint.TaskStates {
		if n := tasks[state]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", state, n))
		}
	}
	return strings.Join(parts, ", ")
}

func attributeSummary(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+attrs[k])
	}
	return "(" + strings.Join(parts, "; ") + ")"
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	limit := maxLen - len(truncatedSuffix)
	if limit <= 0 {
		return s[:maxLen]
	}
	cut := strings.LastIndex(s[:limit], "\n")
	if cut <= 0 {
		cut = limit
	}
	return s[:cut] + truncatedSuffix
}
