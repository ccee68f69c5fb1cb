package usecase

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"paper-review-batch/internal/domain"
	"paper-review-batch/internal/domain/model"
)

// assessmentMarker opens a critical-assessment document. The extractor scans
// the transcript newest-first for the last message containing it.
const assessmentMarker = "# Critical Assessment"

var (
	itemHeaderRe = regexp.MustCompile(`(?m)^###\s+Item\s+(\d+)\s*:?\s*(.*)$`)
	sectionRe    = regexp.MustCompile(`(?m)^##\s[^#]`)
	referencesRe = regexp.MustCompile(`(?m)^##\s+References\s*$`)
	conclusionRe = regexp.MustCompile(`(?m)^##\s+Conclusion\s*$`)
)

// ExtractReport derives a validated report from an ordered transcript, or
// fails with a specific *domain.ExtractionError. It is pure and total: for
// any input it either returns a complete report or an error, never a
// partially populated result.
func ExtractReport(messages []model.Message, maxItems int) (*model.CriticalAssessmentReport, error) {
	if maxItems <= 0 {
		maxItems = model.DefaultMaxCriticalItems
	}

	doc := ""
	found := false
	for i := len(messages) - 1; i >= 0; i-- {
		if idx := markerIndex(messages[i].Content); idx >= 0 {
			doc = messages[i].Content[idx:]
			found = true
			break
		}
	}
	if !found {
		return nil, &domain.ExtractionError{Kind: domain.ExtractNoAssessment, Msg: "no message contains an assessment document"}
	}

	rep := &model.CriticalAssessmentReport{
		Title:      docTitle(doc),
		References: []string{},
	}

	headers := itemHeaderRe.FindAllStringSubmatchIndex(doc, -1)
	if len(headers) == 0 {
		return nil, &domain.ExtractionError{Kind: domain.ExtractItemCount, Msg: "assessment contains no item blocks"}
	}
	sections := sectionRe.FindAllStringIndex(doc, -1)

	for i, h := range headers {
		n, _ := strconv.Atoi(doc[h[2]:h[3]])
		title := strings.TrimSpace(doc[h[4]:h[5]])

		blockEnd := len(doc)
		if i+1 < len(headers) {
			blockEnd = headers[i+1][0]
		}
		if s := nextSection(sections, h[1]); s >= 0 && s < blockEnd {
			blockEnd = s
		}
		block := doc[h[1]:blockEnd]

		claim := fieldValue(block, "Claim")
		evidence := fieldValue(block, "Evidence")
		impact := fieldValue(block, "Impact")
		if claim == "" || evidence == "" || impact == "" {
			return nil, &domain.ExtractionError{
				Kind: domain.ExtractMalformedItem,
				Item: n,
				Msg:  fmt.Sprintf("claim/evidence/impact incomplete (claim=%v evidence=%v impact=%v)", claim != "", evidence != "", impact != ""),
			}
		}
		rep.Items = append(rep.Items, model.CriticalItem{
			Index:    n,
			Title:    title,
			Claim:    claim,
			Evidence: evidence,
			Impact:   impact,
		})
	}

	for i, it := range rep.Items {
		if it.Index != i+1 {
			return nil, &domain.ExtractionError{
				Kind: domain.ExtractItemSequence,
				Item: it.Index,
				Msg:  fmt.Sprintf("expected item %d, found item %d", i+1, it.Index),
			}
		}
	}

	if len(rep.Items) > maxItems {
		return nil, &domain.ExtractionError{
			Kind: domain.ExtractItemCount,
			Msg:  fmt.Sprintf("%d items exceeds limit of %d", len(rep.Items), maxItems),
		}
	}

	rep.References = sectionLines(doc, referencesRe, sections)
	rep.Conclusion = strings.TrimSpace(sectionBody(doc, conclusionRe, sections))
	return rep, nil
}

// markerIndex returns the offset of the assessment marker when it opens a
// heading line, -1 otherwise.
func markerIndex(content string) int {
	from := 0
	for {
		idx := strings.Index(content[from:], assessmentMarker)
		if idx < 0 {
			return -1
		}
		idx += from
		if idx == 0 || content[idx-1] == '\n' {
			return idx
		}
		from = idx + len(assessmentMarker)
	}
}

func docTitle(doc string) string {
	line := doc
	if i := strings.IndexByte(doc, '\n'); i >= 0 {
		line = doc[:i]
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, assessmentMarker))
	rest = strings.TrimSpace(strings.TrimPrefix(rest, "of"))
	rest = strings.TrimSpace(strings.TrimLeft(rest, ":-"))
	return strings.Trim(rest, `"“”`)
}

// nextSection returns the start of the first H2 heading at or after pos,
// or -1 when none remains.
func nextSection(sections [][]int, pos int) int {
	for _, s := range sections {
		if s[0] >= pos {
			return s[0]
		}
	}
	return -1
}

// fieldValue extracts one **Name**: value from an item block. The value runs
// until the next bold field marker on a fresh line, or the end of the block.
func fieldValue(block, name string) string {
	marker := "**" + name + "**"
	i := strings.Index(block, marker)
	if i < 0 {
		return ""
	}
	rest := strings.TrimPrefix(block[i+len(marker):], ":")
	end := len(rest)
	for _, next := range []string{"\n**Claim**", "\n**Evidence**", "\n**Impact**"} {
		if j := strings.Index(rest, next); j >= 0 && j < end {
			end = j
		}
	}
	return strings.TrimSpace(rest[:end])
}

// sectionBody returns the raw text between a section heading and the next
// H2 heading (or end of document); empty when the heading is absent.
func sectionBody(doc string, heading *regexp.Regexp, sections [][]int) string {
	loc := heading.FindStringIndex(doc)
	if loc == nil {
		return ""
	}
	end := len(doc)
	if s := nextSection(sections, loc[1]); s >= 0 {
		end = s
	}
	return doc[loc[1]:end]
}

func sectionLines(doc string, heading *regexp.Regexp, sections [][]int) []string {
	out := []string{}
	for _, line := range strings.Split(sectionBody(doc, heading, sections), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
