package run

import (
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/strand/internal/rle"
)

// maxReportRuns bounds the run table in a report.
const maxReportRuns = 50

// Report renders a run as a markdown document for display.
func Report(r *Run) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s run `%s`\n\n", r.Kind, r.ID)
	fmt.Fprintf(&b, "- **Workspace:** %s\n", r.WorkspaceRaw)
	fmt.Fprintf(&b, "- **Recorded:** %s\n", time.Unix(r.CreatedAt, 0).UTC().Format(time.RFC3339))
	if r.Policy != nil {
		fmt.Fprintf(&b, "- **Policy:** %s\n", *r.Policy)
	}
	if r.Valid != nil {
		verdict := "invalid"
		if *r.Valid {
			verdict = "valid"
		}
		fmt.Fprintf(&b, "- **Verdict:** %s", verdict)
		if r.Outcome != nil {
			fmt.Fprintf(&b, " (%s)", *r.Outcome)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "- **Size:** %d → %d chars\n", r.InputChars, r.OutputChars)
	if r.DeletedAt != nil {
		fmt.Fprintf(&b, "- **Deleted:** %s\n", time.Unix(*r.DeletedAt, 0).UTC().Format(time.RFC3339))
	}

	b.WriteString("\n## Input\n\n")
	writeCodeBlock(&b, r.InputText)

	if r.Kind != KindValidate {
		b.WriteString("\n## Output\n\n")
		writeCodeBlock(&b, r.OutputText)
	}

	if r.Kind == KindEncode || r.Kind == KindDecode {
		source := r.InputText
		if r.Kind == KindDecode {
			source = r.OutputText
		}
		writeRunTable(&b, rle.Runs(source))
	}

	return b.String()
}

func writeRunTable(b *strings.Builder, runs []rle.Run) {
	if len(runs) == 0 {
		return
	}
	b.WriteString("\n## Runs\n\n| # | Char | Count |\n|---|------|-------|\n")
	for i, r := range runs {
		if i == maxReportRuns {
			fmt.Fprintf(b, "\n_%d more runs not shown._\n", len(runs)-maxReportRuns)
			return
		}
		fmt.Fprintf(b, "| %d | %s | %d |\n", i+1, tableChar(r.Char), r.Count)
	}
}

// tableChar renders a character so it survives a markdown table cell.
func tableChar(c rune) string {
	switch c {
	case '|':
		return "`\\|`"
	case '`':
		return "`` ` ``"
	case ' ':
		return "space"
	case '\t':
		return "tab"
	case '\n':
		return "newline"
	}
	return "`" + string(c) + "`"
}

// writeCodeBlock fences text with more backticks than it contains in a row.
func writeCodeBlock(b *strings.Builder, text string) {
	fence := strings.Repeat("`", max(3, longestBacktickRun(text)+1))
	b.WriteString(fence)
	b.WriteString("text\n")
	b.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(fence)
	b.WriteString("\n")
}

func longestBacktickRun(s string) int {
	longest := 0
	for _, r := range rle.Runs(s) {
		if r.Char == '`' && r.Count > longest {
			longest = r.Count
		}
	}
	return longest
}
