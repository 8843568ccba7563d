package actions

import (
	"fmt"
	"sync"

	"github.com/ternarybob/skillet/internal/pipeerrors"
)

// Ctor builds one action bound to a dependency bundle
type Ctor func(deps *Dependencies) Action

// Registration pairs an action name with its constructor
type Registration struct {
	Name string
	Ctor Ctor
}

// Factory holds the registered action constructors and instantiates actions
// per job. Registration is closed before workers start; Create is read-only
// and safe for concurrent use.
type Factory struct {
	mu    sync.RWMutex
	ctors map[string]Ctor
}

// NewFactory creates an empty factory
func NewFactory() *Factory {
	return &Factory{ctors: make(map[string]Ctor)}
}

// Register adds one constructor. Registering a name twice is an error.
func (f *Factory) Register(name string, ctor Ctor) error {
	if name == "" {
		return fmt.Errorf("action name is required")
	}
	if ctor == nil {
		return fmt.Errorf("constructor for action %q is required", name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.ctors[name]; exists {
		return fmt.Errorf("action %q is already registered", name)
	}
	f.ctors[name] = ctor
	return nil
}

// Create instantiates the named action bound to the dependency bundle
func (f *Factory) Create(name string, deps *Dependencies) (Action, error) {
	f.mu.RLock()
	ctor, ok := f.ctors[name]
	f.mu.RUnlock()
	if !ok {
		return nil, pipeerrors.Newf(pipeerrors.KindProgrammingError, "factory",
			"no action registered for %q", name)
	}
	return ctor(deps), nil
}

// Has reports whether the name is registered
func (f *Factory) Has(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.ctors[name]
	return ok
}

// Names returns the registered action names
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.ctors))
	for name := range f.ctors {
		names = append(names, name)
	}
	return names
}

// RegisterActions registers a batch atomically: the whole batch is validated
// against the existing set (and itself) first, so on any failure none of the
// batch is visible.
func RegisterActions(f *Factory, regs []Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	seen := make(map[string]struct{}, len(regs))
	for _, reg := range regs {
		if reg.Name == "" {
			return fmt.Errorf("action name is required")
		}
		if reg.Ctor == nil {
			return fmt.Errorf("constructor for action %q is required", reg.Name)
		}
		if _, exists := f.ctors[reg.Name]; exists {
			return fmt.Errorf("action %q is already registered", reg.Name)
		}
		if _, dup := seen[reg.Name]; dup {
			return fmt.Errorf("action %q appears twice in batch", reg.Name)
		}
		seen[reg.Name] = struct{}{}
	}

	for _, reg := range regs {
		f.ctors[reg.Name] = reg.Ctor
	}
	return nil
}

// RegisterDefaults registers every pipeline action
func RegisterDefaults(f *Factory) error {
	return RegisterActions(f, []Registration{
		{Name: ActionCleanHTML, Ctor: NewCleanHTMLAction},
		{Name: ActionParseHTML, Ctor: NewParseHTMLAction},
		{Name: ActionSaveNote, Ctor: NewSaveNoteAction},
		{Name: ActionScheduleFollowups, Ctor: NewScheduleFollowupsAction},
		{Name: ActionProcessSource, Ctor: NewProcessSourceAction},
		{Name: ActionScheduleInstructions, Ctor: NewScheduleInstructionLinesAction},
		{Name: ActionScheduleIngredients, Ctor: NewScheduleIngredientLinesAction},
		{Name: ActionScheduleImages, Ctor: NewScheduleImagesAction},
		{Name: ActionCheckDuplicates, Ctor: NewCheckDuplicatesAction},
		{Name: ActionWaitForCategorization, Ctor: NewWaitForCategorizationAction},
		{Name: ActionMarkNoteCompleted, Ctor: NewMarkNoteCompletedAction},
		{Name: ActionCheckIngredients, Ctor: NewCheckIngredientCompletionAction},
		{Name: ActionCheckInstructions, Ctor: NewCheckInstructionCompletionAction},
		{Name: ActionParseIngredientLine, Ctor: NewParseIngredientLineAction},
		{Name: ActionFormatInstructionLine, Ctor: NewFormatInstructionLineAction},
		{Name: ActionSaveInstructionLine, Ctor: NewSaveInstructionLineAction},
		{Name: ActionTrackPattern, Ctor: NewTrackPatternAction},
		{Name: ActionProcessImage, Ctor: NewProcessImageAction},
		{Name: ActionCategorizeNote, Ctor: NewCategorizeNoteAction},
	})
}
