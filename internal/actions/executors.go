package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jeffkos/form-ease-sub004/internal/common/errors"
	"github.com/jeffkos/form-ease-sub004/internal/common/logging"
	"github.com/jeffkos/form-ease-sub004/internal/common/utils"
	"github.com/jeffkos/form-ease-sub004/internal/connector"
	"github.com/jeffkos/form-ease-sub004/internal/triggers"
)

// Builtin action types
const (
	ActionStartWorkflow    = "start-workflow"
	ActionSendNotification = "send-notification"
	ActionWebhookCall      = "webhook-call"
	ActionDataTransform    = "data-transform"
	ActionLogEvent         = "log-event"
	ActionCallIntegration  = "call-integration"
)

// WorkflowEngine starts workflows on behalf of start-workflow actions
type WorkflowEngine interface {
	StartWorkflow(ctx context.Context, workflowID string, input map[string]interface{}) (string, error)
}

// Notification is the payload handed to the notification sender
type Notification struct {
	Template   string                 `json:"template,omitempty"`
	Type       string                 `json:"type,omitempty"`
	Recipients []string               `json:"recipients,omitempty"`
	Variables  map[string]interface{} `json:"variables,omitempty"`
}

// NotificationSender dispatches notifications, fire-and-forget from the
// trigger's point of view
type NotificationSender interface {
	Send(ctx context.Context, notification Notification) error
}

// IntegrationInvoker executes requests against connected integrations
type IntegrationInvoker interface {
	Invoke(ctx context.Context, connectionID string, req connector.Request) (*connector.Response, error)
}

// Collaborators bundles the external dependencies of the builtin executors.
// Nil members are allowed; the affected action types then fail per-action.
type Collaborators struct {
	Workflow      WorkflowEngine
	Notifications NotificationSender
	HTTPClient    *http.Client
	Integrations  IntegrationInvoker
}

// RegisterBuiltins installs the builtin executors on the dispatcher
func (d *Dispatcher) RegisterBuiltins(c Collaborators) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	d.RegisterExecutor(ActionStartWorkflow, ExecutorFunc(func(ctx context.Context, action triggers.Action, execCtx *triggers.ExecutionContext) (interface{}, error) {
		if c.Workflow == nil {
			return nil, errors.ConfigError("workflow engine not configured")
		}
		workflowID := action.Param("workflowId", "")
		if workflowID == "" {
			return nil, errors.ValidationError("start-workflow action requires workflowId")
		}
		runID, err := c.Workflow.StartWorkflow(ctx, workflowID, map[string]interface{}{
			"trigger":   execCtx.TriggerID,
			"eventData": execCtx.EventData,
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"workflowRunId": runID}, nil
	}))

	d.RegisterExecutor(ActionSendNotification, ExecutorFunc(func(ctx context.Context, action triggers.Action, execCtx *triggers.ExecutionContext) (interface{}, error) {
		if c.Notifications == nil {
			return nil, errors.ConfigError("notification sender not configured")
		}
		notification := Notification{
			Template:  action.Param("template", ""),
			Type:      action.Param("type", "info"),
			Variables: execCtx.EventData,
		}
		if raw, ok := action.Params["recipients"].([]interface{}); ok {
			for _, r := range raw {
				if s, ok := r.(string); ok {
					notification.Recipients = append(notification.Recipients, s)
				}
			}
		}
		if err := c.Notifications.Send(ctx, notification); err != nil {
			return nil, err
		}
		return map[string]interface{}{"sent": true}, nil
	}))

	d.RegisterExecutor(ActionWebhookCall, ExecutorFunc(func(ctx context.Context, action triggers.Action, execCtx *triggers.ExecutionContext) (interface{}, error) {
		return executeWebhookCall(ctx, c.HTTPClient, action, execCtx)
	}))

	d.RegisterExecutor(ActionDataTransform, ExecutorFunc(func(_ context.Context, action triggers.Action, execCtx *triggers.ExecutionContext) (interface{}, error) {
		return applyTransforms(action, execCtx.EventData), nil
	}))

	d.RegisterExecutor(ActionLogEvent, ExecutorFunc(func(_ context.Context, action triggers.Action, execCtx *triggers.ExecutionContext) (interface{}, error) {
		message := action.Param("message", "trigger event")
		d.logger.Info(message,
			logging.String("trigger_id", execCtx.TriggerID),
			logging.String("event_type", execCtx.EventType),
		)
		return map[string]interface{}{"logged": true, "message": message}, nil
	}))

	d.RegisterExecutor(ActionCallIntegration, ExecutorFunc(func(ctx context.Context, action triggers.Action, execCtx *triggers.ExecutionContext) (interface{}, error) {
		if c.Integrations == nil {
			return nil, errors.ConfigError("integration invoker not configured")
		}
		connectionID := action.Param("connectionId", "")
		if connectionID == "" {
			return nil, errors.ValidationError("call-integration action requires connectionId")
		}
		req, err := decodeRequest(action.Params["request"])
		if err != nil {
			return nil, err
		}
		resp, err := c.Integrations.Invoke(ctx, connectionID, req)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"statusCode": resp.StatusCode,
			"fromCache":  resp.FromCache,
			"body":       string(resp.Body),
		}, nil
	}))
}

func executeWebhookCall(ctx context.Context, client *http.Client, action triggers.Action, execCtx *triggers.ExecutionContext) (interface{}, error) {
	url := action.Param("url", "")
	if url == "" {
		return nil, errors.ValidationError("webhook-call action requires url")
	}
	method := strings.ToUpper(action.Param("method", http.MethodPost))

	payload := action.Params["payload"]
	if payload == nil {
		payload = map[string]interface{}{
			"triggerId": execCtx.TriggerID,
			"eventType": execCtx.EventType,
			"eventData": execCtx.EventData,
			"timestamp": execCtx.Timestamp.Format(time.RFC3339),
		}
	}

	var body io.Reader
	if method != http.MethodGet {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.ValidationError("cannot encode webhook payload").WithContext("cause", err.Error())
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.ValidationError("invalid webhook url").WithContext("cause", err.Error())
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := action.Params["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.ConnectionError("webhook call failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return nil, errors.ConnectionError(fmt.Sprintf("webhook returned status %d", resp.StatusCode), nil)
	}
	return map[string]interface{}{"statusCode": resp.StatusCode}, nil
}

// applyTransforms runs the declared transform list over a shallow copy of the
// event payload. Unknown transform or format types are no-ops.
func applyTransforms(action triggers.Action, eventData map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(eventData))
	for k, v := range eventData {
		out[k] = v
	}

	raw, ok := action.Params["transforms"].([]interface{})
	if !ok {
		return out
	}

	for _, item := range raw {
		transform, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		kind, _ := transform["type"].(string)

		switch kind {
		case "map":
			source, _ := transform["source"].(string)
			target, _ := transform["target"].(string)
			if source == "" || target == "" {
				continue
			}
			if value, ok := utils.LookupPath(out, source); ok {
				utils.SetPath(out, target, value)
			}

		case "format":
			field, _ := transform["field"].(string)
			format, _ := transform["format"].(string)
			value, ok := utils.LookupPath(out, field)
			if !ok {
				continue
			}
			s, ok := value.(string)
			if !ok {
				continue
			}
			switch format {
			case "uppercase":
				utils.SetPath(out, field, strings.ToUpper(s))
			case "lowercase":
				utils.SetPath(out, field, strings.ToLower(s))
			case "trim":
				utils.SetPath(out, field, strings.TrimSpace(s))
			}
		}
	}
	return out
}

func decodeRequest(raw interface{}) (connector.Request, error) {
	var req connector.Request
	if raw == nil {
		return req, errors.ValidationError("call-integration action requires a request object")
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return req, errors.ValidationError("cannot encode integration request").WithContext("cause", err.Error())
	}
	if err := json.Unmarshal(encoded, &req); err != nil {
		return req, errors.ValidationError("invalid integration request").WithContext("cause", err.Error())
	}
	if req.URL == "" {
		return req, errors.ValidationError("integration request requires url")
	}
	return req, nil
}
