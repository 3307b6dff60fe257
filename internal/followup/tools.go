package followup

import (
	"context"

	"github.com/brindle/bursar-ai-agent/internal/tools"
)

// Tools returns the follow-up agent's tool catalog.
func (a *Agent) Tools() []*tools.Tool {
	return []*tools.Tool{
		{
			Name:        "run_follow_up_process",
			Description: "Run automated follow-up process for all companies",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
				"required":   []string{},
			},
			Handler: a.handleRunProcess,
		},
		{
			Name:        "check_follow_up_conditions",
			Description: "Check which companies need follow-up actions",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
				"required":   []string{},
			},
			Handler: a.handleCheckConditions,
		},
		{
			Name:        "get_follow_up_stats",
			Description: "Get statistics about follow-up actions",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
				"required":   []string{},
			},
			Handler: a.handleStats,
		},
	}
}

func (a *Agent) handleRunProcess(ctx context.Context, args map[string]any) (string, error) {
	return a.RunAutomated(ctx).Format(), nil
}

func (a *Agent) handleCheckConditions(ctx context.Context, args map[string]any) (string, error) {
	actions, err := a.CheckConditions()
	if err != nil {
		return "", err
	}
	items := make([]string, 0, len(actions))
	for _, action := range actions {
		items = append(items, tools.JSONBlock(action))
	}
	return tools.FormatFound(items), nil
}

func (a *Agent) handleStats(ctx context.Context, args map[string]any) (string, error) {
	return a.Stats().Format(), nil
}
