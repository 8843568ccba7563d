package actions

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteServiceAction_EventOrder(t *testing.T) {
	deps, broadcaster, _, _ := testDeps()
	base := newBase("test_action", deps)

	_, err := base.executeServiceAction(context.Background(), ServiceActionParams{
		ImportID:          "imp-1",
		ContextName:       "test_action",
		StartMessage:      "starting",
		CompletionMessage: "done",
		ServiceCall: func(ctx context.Context) (interface{}, error) {
			return "result", nil
		},
		AdditionalBroadcasting: func(ctx context.Context, result interface{}) error {
			return nil
		},
	})
	require.NoError(t, err)

	events := broadcaster.all()
	require.Len(t, events, 2)
	assert.Equal(t, "starting", events[0].Message)
	assert.Equal(t, "done", events[1].Message)
}

func TestExecuteServiceAction_BusinessErrorNeverMasked(t *testing.T) {
	deps, broadcaster, _, _ := testDeps()
	base := newBase("test_action", deps)

	businessErr := fmt.Errorf("the real failure")
	_, err := base.executeServiceAction(context.Background(), ServiceActionParams{
		ImportID:     "imp-1",
		ContextName:  "test_action",
		StartMessage: "starting",
		ServiceCall: func(ctx context.Context) (interface{}, error) {
			// Broadcasts fail from here on; the business error must win
			broadcaster.fail = true
			return nil, businessErr
		},
	})
	assert.ErrorIs(t, err, businessErr)
}

func TestExecuteServiceAction_BroadcastFailureAlonePropagates(t *testing.T) {
	deps, broadcaster, _, _ := testDeps()
	broadcaster.fail = true
	base := newBase("test_action", deps)

	called := false
	_, err := base.executeServiceAction(context.Background(), ServiceActionParams{
		ImportID:     "imp-1",
		ContextName:  "test_action",
		StartMessage: "starting",
		ServiceCall: func(ctx context.Context) (interface{}, error) {
			called = true
			return "ok", nil
		},
	})
	require.Error(t, err)
	assert.False(t, called, "a failed start broadcast must stop the action")
}

func TestExecuteServiceAction_EmptyCompletionSkipsDefaultEvent(t *testing.T) {
	deps, broadcaster, _, _ := testDeps()
	base := newBase("test_action", deps)

	_, err := base.executeServiceAction(context.Background(), ServiceActionParams{
		ImportID:     "imp-1",
		ContextName:  "test_action",
		StartMessage: "starting",
		ServiceCall: func(ctx context.Context) (interface{}, error) {
			return "ok", nil
		},
	})
	require.NoError(t, err)

	events := broadcaster.all()
	require.Len(t, events, 1, "no CompletionMessage means no default COMPLETED event")
}

func TestExecuteServiceAction_NoImportIDSkipsBroadcasting(t *testing.T) {
	deps, broadcaster, _, _ := testDeps()
	base := newBase("test_action", deps)

	result, err := base.executeServiceAction(context.Background(), ServiceActionParams{
		ContextName:  "test_action",
		StartMessage: "starting",
		ServiceCall: func(ctx context.Context) (interface{}, error) {
			return "ok", nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Empty(t, broadcaster.all())
}
