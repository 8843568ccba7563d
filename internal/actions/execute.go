package actions

import (
	"context"
	"time"

	"github.com/ternarybob/skillet/internal/models"
)

// ServiceActionParams drives the shared broadcast-wrapped execution helper.
// Every action funnels its business logic through executeServiceAction so
// start/complete events, failure logging, and the never-mask-the-business-
// error rule live in one place.
type ServiceActionParams struct {
	// ImportID correlates the emitted events; empty suppresses broadcasting
	ImportID string
	// NoteID is attached to emitted events when known
	NoteID string
	// ContextName tags the start event (and the completion event unless a
	// separate CompletionContext is given)
	ContextName string
	// CompletionContext overrides the context on the COMPLETED event.
	// Stage-start suffixes like parse_html_start are contexts, not actions.
	CompletionContext string
	StartMessage      string
	// CompletionMessage empty skips the default COMPLETED event (the action
	// emits its own completion, usually via AdditionalBroadcasting)
	CompletionMessage string
	// SuppressDefaultBroadcast skips the default start event
	SuppressDefaultBroadcast bool

	// ServiceCall is the action's business logic
	ServiceCall func(ctx context.Context) (interface{}, error)
	// AdditionalBroadcasting emits extra events from the call's result
	// (parse/save use it for child counters)
	AdditionalBroadcasting func(ctx context.Context, result interface{}) error
}

// executeServiceAction runs the business call between its start and
// completion events. Broadcast failures are logged and never replace a
// business error; a broadcast failure with no business error propagates.
func (a *BaseAction) executeServiceAction(ctx context.Context, params ServiceActionParams) (interface{}, error) {
	broadcasting := params.ImportID != "" && a.deps.Broadcaster != nil

	if broadcasting && !params.SuppressDefaultBroadcast {
		event := models.NewStatusEvent(params.ImportID, models.StatusProcessing, params.ContextName, params.StartMessage)
		event.NoteID = params.NoteID
		event.IndentLevel = 1
		if _, err := a.deps.Broadcaster.AddStatusEventAndBroadcast(ctx, event); err != nil {
			a.logger().Error().Err(err).
				Str("action", a.name).
				Str("context", params.ContextName).
				Msg("Failed to broadcast start event")
			return nil, err
		}
	}

	result, err := params.ServiceCall(ctx)
	if err != nil {
		return nil, err
	}

	if broadcasting && params.AdditionalBroadcasting != nil {
		if err := params.AdditionalBroadcasting(ctx, result); err != nil {
			a.logger().Error().Err(err).
				Str("action", a.name).
				Str("context", params.ContextName).
				Msg("Failed to broadcast additional events")
			return nil, err
		}
	}

	if broadcasting && params.CompletionMessage != "" {
		completionContext := params.CompletionContext
		if completionContext == "" {
			completionContext = params.ContextName
		}
		event := models.NewStatusEvent(params.ImportID, models.StatusCompleted, completionContext, params.CompletionMessage)
		event.NoteID = params.NoteID
		if _, err := a.deps.Broadcaster.AddStatusEventAndBroadcast(ctx, event); err != nil {
			a.logger().Error().Err(err).
				Str("action", a.name).
				Str("context", completionContext).
				Msg("Failed to broadcast completion event")
			return nil, err
		}
	}

	return result, nil
}

// broadcast emits one event, logging (never returning) failures. Used for
// best-effort progress events where losing one update must not fail the job.
func (a *BaseAction) broadcast(ctx context.Context, event *models.StatusEvent) {
	if event.ImportID == "" || a.deps.Broadcaster == nil {
		return
	}
	if _, err := a.deps.Broadcaster.AddStatusEventAndBroadcast(ctx, event); err != nil {
		a.logger().Warn().Err(err).
			Str("action", a.name).
			Str("context", event.Context).
			Msg("Failed to broadcast progress event")
	}
}

// RetryAfterError asks the worker to redeliver the job after a delay without
// consuming the normal retry budget. Completion-check sentinels use it to
// implement their own backoff schedule.
type RetryAfterError struct {
	After time.Duration
}

func (e *RetryAfterError) Error() string {
	return "retry after " + e.After.String()
}
