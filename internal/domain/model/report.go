package model

import (
	"fmt"
	"strings"
)

// CriticalItem is one claim/evidence/impact triple extracted from a
// finished review transcript.
type CriticalItem struct {
	Index    int    `json:"index"`
	Title    string `json:"title"`
	Claim    string `json:"claim"`
	Evidence string `json:"evidence"`
	Impact   string `json:"impact"`
}

// CriticalAssessmentReport is the validated output of one successful review.
// Items carry contiguous 1-based indices. The report is never mutated after
// extraction; sinks treat it as read-only.
type CriticalAssessmentReport struct {
	Title      string         `json:"title"`
	Items      []CriticalItem `json:"items"`
	References []string       `json:"references"`
	Conclusion string         `json:"conclusion"`
}

// Markdown renders the report in the assessment document layout the agent
// itself produces, so persisted files round-trip through the extractor.
func (r *CriticalAssessmentReport) Markdown() string {
	var b strings.Builder
	if r.Title != "" {
		fmt.Fprintf(&b, "# Critical Assessment of %q\n\n", r.Title)
	} else {
		b.WriteString("# Critical Assessment\n\n")
	}
	b.WriteString("## Critical Assessment Items\n")
	for _, it := range r.Items {
		fmt.Fprintf(&b, "\n### Item %d: %s\n", it.Index, it.Title)
		fmt.Fprintf(&b, "**Claim**: %s\n", it.Claim)
		fmt.Fprintf(&b, "**Evidence**: %s\n", it.Evidence)
		fmt.Fprintf(&b, "**Impact**: %s\n", it.Impact)
	}
	if r.Conclusion != "" {
		fmt.Fprintf(&b, "\n## Conclusion\n\n%s\n", r.Conclusion)
	}
	if len(r.References) > 0 {
		b.WriteString("\n## References\n\n")
		for _, ref := range r.References {
			b.WriteString(ref)
			b.WriteString("\n")
		}
	}
	return b.String()
}
