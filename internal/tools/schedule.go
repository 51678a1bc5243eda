package tools

import (
	"context"
	"fmt"
)

// JobScheduler is the scheduling surface the schedule tool drives.
type JobScheduler interface {
	AddJob(name, message, channel, chatID, cronExpr string, everySeconds int, at string) (string, error)
	ListJobs() (string, error)
	RemoveJob(jobID string) (string, error)
}

// ScheduleTool manages reminders and recurring tasks.
type ScheduleTool struct {
	Scheduler JobScheduler
	Channel   string
	ChatID    string
}

func (t *ScheduleTool) Name() string { return "schedule" }
func (t *ScheduleTool) Description() string {
	return "Schedule reminders and recurring tasks. Actions: add, list, remove."
}
func (t *ScheduleTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action":        map[string]any{"type": "string", "enum": []string{"add", "list", "remove"}},
			"message":       map[string]any{"type": "string", "description": "Reminder message (for add)"},
			"every_seconds": map[string]any{"type": "integer", "description": "Interval in seconds"},
			"cron_expr":     map[string]any{"type": "string", "description": "Cron expression"},
			"at":            map[string]any{"type": "string", "description": "RFC3339 datetime for one-time jobs"},
			"job_id":        map[string]any{"type": "string", "description": "Job ID (for remove)"},
		},
		"required": []string{"action"},
	}
}

// SetContext sets the delivery target for scheduled messages.
func (t *ScheduleTool) SetContext(channel, chatID string) {
	t.Channel = channel
	t.ChatID = chatID
}

func (t *ScheduleTool) Execute(_ context.Context, args map[string]any) (string, error) {
	if t.Scheduler == nil {
		return "Error: Scheduler not configured", nil
	}

	action, _ := args["action"].(string)
	switch action {
	case "add":
		message, _ := args["message"].(string)
		if message == "" {
			return "Error: message is required for add", nil
		}
		if t.Channel == "" || t.ChatID == "" {
			return "Error: no session context (channel/chat_id)", nil
		}
		everySeconds := 0
		if v, ok := args["every_seconds"].(float64); ok {
			everySeconds = int(v)
		}
		cronExpr, _ := args["cron_expr"].(string)
		at, _ := args["at"].(string)

		name := message
		if len(name) > 30 {
			name = name[:30]
		}
		return t.Scheduler.AddJob(name, message, t.Channel, t.ChatID, cronExpr, everySeconds, at)

	case "list":
		return t.Scheduler.ListJobs()

	case "remove":
		jobID, _ := args["job_id"].(string)
		if jobID == "" {
			return "Error: job_id is required for remove", nil
		}
		return t.Scheduler.RemoveJob(jobID)

	default:
		return fmt.Sprintf("Unknown action: %s", action), nil
	}
}
