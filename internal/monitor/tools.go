package monitor

import (
	"context"

	"github.com/brindle/bursar-ai-agent/internal/tools"
)

// Tools returns the monitoring agent's tool catalog.
func (a *Agent) Tools() []*tools.Tool {
	return []*tools.Tool{
		{
			Name:        "monitor_company_health",
			Description: "Monitor all companies for health issues and generate alerts",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
				"required":   []string{},
			},
			Handler: a.handleMonitorHealth,
		},
		{
			Name:        "run_monitoring_cycle",
			Description: "Run complete monitoring cycle and send alerts",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
				"required":   []string{},
			},
			Handler: a.handleRunCycle,
		},
		{
			Name:        "get_alert_dashboard",
			Description: "Get alert dashboard with current status and metrics",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
				"required":   []string{},
			},
			Handler: a.handleDashboard,
		},
	}
}

func (a *Agent) handleMonitorHealth(ctx context.Context, args map[string]any) (string, error) {
	alerts, err := a.MonitorHealth()
	if err != nil {
		return "", err
	}
	items := make([]string, 0, len(alerts))
	for _, alert := range alerts {
		items = append(items, tools.JSONBlock(alert))
	}
	return tools.FormatFound(items), nil
}

func (a *Agent) handleRunCycle(ctx context.Context, args map[string]any) (string, error) {
	return a.RunCycle(ctx).Format(), nil
}

func (a *Agent) handleDashboard(ctx context.Context, args map[string]any) (string, error) {
	return a.Dashboard().Format(), nil
}
