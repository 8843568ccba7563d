// Package actions implements the pipeline actions, their factory, and the
// per-queue pipeline builders. An action is a named, validated unit of work
// over a JSON payload: the worker runs a pipeline of actions sequentially,
// feeding each action's output to the next.
package actions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/interfaces"
	"github.com/ternarybob/skillet/internal/models"
)

// Canonical action names. The factory rejects registrations outside its
// registered set, so producers and builders share these constants.
const (
	ActionCleanHTML             = "clean_html"
	ActionParseHTML             = "parse_html"
	ActionSaveNote              = "save_note"
	ActionScheduleFollowups     = "schedule_all_followup_tasks"
	ActionProcessSource         = "process_source"
	ActionScheduleInstructions  = "schedule_instruction_lines"
	ActionScheduleIngredients   = "schedule_ingredient_lines"
	ActionScheduleImages        = "schedule_images"
	ActionCheckDuplicates       = "check_duplicates"
	ActionWaitForCategorization = "wait_for_categorization"
	ActionMarkNoteCompleted     = "mark_note_worker_completed"
	ActionCheckIngredients      = "check_ingredient_completion"
	ActionCheckInstructions     = "check_instruction_completion"
	ActionParseIngredientLine   = "parse_ingredient_line"
	ActionFormatInstructionLine = "format_instruction_line"
	ActionSaveInstructionLine   = "save_instruction_line"
	ActionTrackPattern          = "track_pattern"
	ActionProcessImage          = "process_image"
	ActionCategorizeNote        = "categorize_note"
)

// Action is a unit of work in a pipeline. ValidateInput is pure and
// side-effect free; Execute performs the work and returns the next stage's
// payload.
type Action interface {
	// Name is the stable action identifier
	Name() string

	// Retryable reports whether the worker may redeliver on transient failure
	Retryable() bool

	// Priority orders selection among equal jobs; lower runs first
	Priority() int

	// ValidateInput rejects malformed payloads before any work happens
	ValidateInput(data json.RawMessage) error

	// Execute runs the action and returns the enriched payload
	Execute(ctx context.Context, data json.RawMessage, actx *models.ActionContext) (json.RawMessage, error)
}

// Settings are the tunables actions read from config
type Settings struct {
	// CategorizationTimeout bounds wait_for_categorization
	CategorizationTimeout time.Duration
	// CompletionCheckBase is the first sentinel re-enqueue delay
	CompletionCheckBase time.Duration
	// CompletionCheckMax caps the sentinel re-enqueue delay
	CompletionCheckMax time.Duration
	// CompletionCheckRetries bounds sentinel re-enqueues
	CompletionCheckRetries int
}

// Dependencies is the capability bundle bound into every action. Workers
// receive a bundle at startup; tests substitute fakes per field.
type Dependencies struct {
	Logger      arbor.ILogger
	Broadcaster interfaces.StatusBroadcaster
	Queues      interfaces.QueueService
	Cache       interfaces.CacheService
	Tracker     interfaces.CompletionTracker
	Events      interfaces.EventService

	Notes    interfaces.NoteStorage
	Sources  interfaces.SourceStorage
	Imports  interfaces.ImportStorage
	Patterns interfaces.PatternStorage

	Cleaner     interfaces.HTMLCleaner
	Parser      interfaces.HTMLParser
	Ingredients interfaces.IngredientParser
	Objects     interfaces.ObjectStorageService
	Categorizer interfaces.CategorizeService

	Settings Settings
}

// BaseAction carries the identity shared by all actions
type BaseAction struct {
	name      string
	retryable bool
	priority  int
	deps      *Dependencies
}

func newBase(name string, deps *Dependencies) BaseAction {
	return BaseAction{name: name, retryable: true, deps: deps}
}

func (a *BaseAction) Name() string    { return a.name }
func (a *BaseAction) Retryable() bool { return a.retryable }
func (a *BaseAction) Priority() int   { return a.priority }

func (a *BaseAction) logger() arbor.ILogger {
	return a.deps.Logger
}

// inputValidator checks payload structs against their validate tags
var inputValidator = validator.New()
