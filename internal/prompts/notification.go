package prompts

import "fmt"

// alertNotificationTemplate is the prompt for drafting one alert
// notification email covering a severity group. The format verbs are the
// severity (upper-cased), the alert count, and the alert details JSON.
const alertNotificationTemplate = `Generate a professional alert notification email for Brindle Capital management.

Severity: %s
Number of alerts: %d
Alert details: %s

The email should include:
1. A clear subject line indicating severity
2. An executive summary of the situation
3. A breakdown of each alert
4. Recommended immediate actions

Make it professional, urgent but not panic-inducing, and actionable.
The body is markdown. Return JSON with "subject" and "body" fields only.

JSON:`

// AlertNotificationPrompt returns the fully interpolated prompt for an
// alert notification email. alertDetails is pre-marshaled JSON describing
// each alert in the severity group.
func AlertNotificationPrompt(severity string, alertCount int, alertDetails string) string {
	return fmt.Sprintf(alertNotificationTemplate, severity, alertCount, alertDetails)
}

// AlertNotificationTemplate returns a static subject and body for a severity
// group, used when LLM drafting is unavailable. The body is markdown.
func AlertNotificationTemplate(severity string, alertCount int, lines []string) (subject, body string) {
	subject = fmt.Sprintf("[%s] Portfolio Alert: %d issue(s) require attention", severity, alertCount)

	b := fmt.Sprintf(`The monitoring cycle raised %d %s alert(s):

`, alertCount, severity)
	for _, line := range lines {
		b += "- " + line + "\n"
	}
	b += `
Please review the affected companies in the alert dashboard.

Brindle Capital Monitoring`
	return subject, b
}
