package prompts

import "fmt"

// researchSummaryTemplate is the prompt for condensing gathered research
// material into an assessment of one company. The format verbs are company
// name, website text, and search results JSON.
const researchSummaryTemplate = `Analyze the following research material about a company and summarize what it
tells us about them as a portfolio investment.

Company: %s

Website content:
%s

Search results:
%s

Cover, briefly:
1. What the company does
2. Signals of traction or trouble
3. Anything warranting a follow-up question

If the material is thin or contradictory, say so rather than padding.`

// ResearchSummaryPrompt returns the fully interpolated prompt for the
// research analysis. websiteData is extracted page text (possibly empty),
// searchResults is pre-marshaled JSON.
func ResearchSummaryPrompt(companyName, websiteData, searchResults string) string {
	return fmt.Sprintf(researchSummaryTemplate, companyName, websiteData, searchResults)
}
