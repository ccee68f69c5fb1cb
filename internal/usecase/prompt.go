package usecase

import (
	"encoding/json"
	"fmt"

	"paper-review-batch/internal/domain"

	"github.com/pkoukk/tiktoken-go"
)

const promptTemplate = `Your task is to assess a research paper based on its content and the code. The evaluation criteria are two fold:
1. Validity: Does the manuscript have flaws which should prohibit its publication? If so, please provide details.
2. Data and methodology: Please comment on the validity of the approach, quality of the data and quality of presentation. Please note that we expect our reviewers to review all data, including any extended data and supplementary information. Is the reporting of data and methodology sufficiently detailed and transparent to enable reproducing the results?

-> You may criticize up to %d aspects, where we denote each aspect as an "item". An item should be consisted of a claim and an evidence. Each claim within an item should be a criticism of the paper with respect to the evaluation criteria and an evidence should be either a citation or an experimental result that you acquire by running the source code of this paper.

I will provide you the paper's extracted content, where some are provided as a url (e.g., images). You should conduct this task by downloading and reading the files from the given url or reading the text.

Paper content:
` + "```\n%s\n```" + `

Please conduct a systematic review following these steps:

1. **Setup and Code Analysis**: Clone and analyze the provided code repository
2. **Content Analysis**: Examine the paper content, figures, and methodology
3. **Literature Review**: Compare claims with established literature
4. **Reproducibility Testing**: Attempt to reproduce key results
5. **Critical Assessment**: Document your items with concrete evidence

Write the final assessment as a markdown document opening with "# Critical Assessment". For each critical item, use a "### Item N: <title>" header and provide:
- **Claim**: Specific statement from the paper being criticized
- **Evidence**: Concrete evidence from code execution, literature citations, or experimental analysis
- **Impact**: Assessment of how this affects the paper's validity

Include a "## References" section with citations to support your criticisms and close with a "## Conclusion" section.

Focus on providing concrete, evidence-based assessments rather than surface-level feedback.`

// PromptBuilder renders the review task prompt for one paper and enforces an
// optional token budget before the prompt is handed to the remote agent.
type PromptBuilder struct {
	tokenBudget int
	encoding    string
}

func NewPromptBuilder(tokenBudget int) *PromptBuilder {
	return &PromptBuilder{tokenBudget: tokenBudget, encoding: "cl100k_base"}
}

// Build renders the prompt for the given paper payload. maxItems caps how
// many critical items the agent is asked for.
func (b *PromptBuilder) Build(paperData map[string]any, maxItems int) (string, error) {
	payload, err := json.MarshalIndent(paperData, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal paper data: %w", err)
	}
	prompt := fmt.Sprintf(promptTemplate, maxItems, payload)

	if b.tokenBudget > 0 {
		n, err := b.countTokens(prompt)
		if err != nil {
			return "", fmt.Errorf("count prompt tokens: %w", err)
		}
		if n > b.tokenBudget {
			return "", fmt.Errorf("%w: %d > %d", domain.ErrPromptTooLarge, n, b.tokenBudget)
		}
	}
	return prompt, nil
}

func (b *PromptBuilder) countTokens(s string) (int, error) {
	enc, err := tiktoken.GetEncoding(b.encoding)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(s, nil, nil)), nil
}
