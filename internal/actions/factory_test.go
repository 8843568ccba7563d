package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_RegisterRejectsDuplicates(t *testing.T) {
	f := NewFactory()
	require.NoError(t, f.Register(ActionCleanHTML, NewCleanHTMLAction))
	assert.Error(t, f.Register(ActionCleanHTML, NewCleanHTMLAction))
}

func TestFactory_CreateUnknownAction(t *testing.T) {
	f := NewFactory()
	deps, _, _, _ := testDeps()

	_, err := f.Create("no_such_action", deps)
	require.Error(t, err)
}

func TestRegisterActions_BatchIsAtomic(t *testing.T) {
	f := NewFactory()
	require.NoError(t, f.Register(ActionSaveNote, NewSaveNoteAction))

	err := RegisterActions(f, []Registration{
		{Name: ActionCleanHTML, Ctor: NewCleanHTMLAction},
		{Name: ActionSaveNote, Ctor: NewSaveNoteAction}, // collides with existing
	})
	require.Error(t, err)
	assert.False(t, f.Has(ActionCleanHTML), "failed batch must register nothing")
}

func TestRegisterActions_RejectsIntraBatchDuplicate(t *testing.T) {
	f := NewFactory()
	err := RegisterActions(f, []Registration{
		{Name: ActionCleanHTML, Ctor: NewCleanHTMLAction},
		{Name: ActionCleanHTML, Ctor: NewCleanHTMLAction},
	})
	require.Error(t, err)
	assert.False(t, f.Has(ActionCleanHTML))
}

func TestRegisterDefaults_CoversEveryAction(t *testing.T) {
	f := NewFactory()
	require.NoError(t, RegisterDefaults(f))

	for _, name := range []string{
		ActionCleanHTML, ActionParseHTML, ActionSaveNote,
		ActionScheduleFollowups, ActionProcessSource,
		ActionScheduleInstructions, ActionScheduleIngredients, ActionScheduleImages,
		ActionCheckDuplicates, ActionWaitForCategorization, ActionMarkNoteCompleted,
		ActionCheckIngredients, ActionCheckInstructions,
		ActionParseIngredientLine, ActionFormatInstructionLine, ActionSaveInstructionLine,
		ActionTrackPattern, ActionProcessImage, ActionCategorizeNote,
	} {
		assert.True(t, f.Has(name), "missing default registration for %s", name)
	}
}
