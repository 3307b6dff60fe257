package prompts

import "fmt"

// followUpEmailTemplate is the prompt for drafting one follow-up email to a
// portfolio company. The format verbs are company name, contact email,
// action type, company status, and the reason the action was raised.
const followUpEmailTemplate = `Generate a professional follow-up email for the following situation:

Company: %s
Contact Email: %s
Action Type: %s
Company Status: %s
Reason: %s

The email should be:
1. Professional and courteous
2. Specific to the action type and reason
3. Clear about what we need from the company
4. Concise but informative
5. Signed "Brindle Capital Team"

The body is markdown. Return JSON with "subject" and "body" fields only.

JSON:`

// FollowUpEmailPrompt returns the fully interpolated prompt for drafting a
// follow-up email. When the LLM fails or returns unusable JSON, callers
// fall back to FollowUpTemplate.
func FollowUpEmailPrompt(companyName, contactEmail, actionType, status, reason string) string {
	return fmt.Sprintf(followUpEmailTemplate, companyName, contactEmail, actionType, status, reason)
}

// FollowUpTemplate returns a static subject and body for the given follow-up
// action type. These are the deterministic fallbacks used when LLM drafting
// is unavailable; the body is markdown.
func FollowUpTemplate(companyName, actionType string) (subject, body string) {
	switch actionType {
	case "overdue_response":
		return "Follow-up: Outstanding Items for " + companyName, fmt.Sprintf(`Dear %s Team,

I hope this email finds you well. I wanted to follow up on our previous communication regarding some outstanding items that require your attention.

We have not received a response to our recent request, and I wanted to ensure that our message reached you successfully. If you have any questions or need clarification on any of the items discussed, please don't hesitate to reach out.

Could you please provide an update on the status of these items at your earliest convenience?

Thank you for your continued partnership with Brindle Capital.

Best regards,
Brindle Capital Team`, companyName)

	case "declining_metrics":
		return "Performance Review Required: " + companyName, fmt.Sprintf(`Dear %s Team,

We hope this message finds you well. Our recent analysis of your company's performance metrics indicates some areas that may require attention and discussion.

We would like to schedule a meeting to discuss these findings and explore potential strategies for improvement. Our team is here to support you in addressing these challenges.

Please let us know your availability for a call or meeting in the coming days.

Best regards,
Brindle Capital Team`, companyName)

	case "missing_data":
		return "Data Update Required: " + companyName, fmt.Sprintf(`Dear %s Team,

We hope you are doing well. We noticed that we have not received your latest data updates as scheduled.

To ensure we can continue providing you with the best support and analysis, please provide the following information:

- Latest financial statements
- Updated performance metrics
- Any significant operational changes

Please submit this information at your earliest convenience.

Thank you for your cooperation.

Best regards,
Brindle Capital Team`, companyName)

	default:
		return "Follow-up Required: " + companyName, fmt.Sprintf(`Dear %s Team,

We need to follow up on some items. Please contact us.

Best regards,
Brindle Capital Team`, companyName)
	}
}
