package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/interfaces"
	"github.com/ternarybob/skillet/internal/models"
	"github.com/ternarybob/skillet/internal/tracker"
)

// fakeBroadcaster records every event in order
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []models.StatusEvent
	fail   bool
}

func (b *fakeBroadcaster) AddStatusEventAndBroadcast(ctx context.Context, event *models.StatusEvent) (*models.StatusEvent, error) {
	if b.fail {
		return nil, fmt.Errorf("broadcast unavailable")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, *event)
	return event, nil
}

func (b *fakeBroadcaster) Subscribe(importID string) (<-chan models.StatusEvent, func()) {
	ch := make(chan models.StatusEvent)
	close(ch)
	return ch, func() {}
}

func (b *fakeBroadcaster) SubscribeAll() (<-chan models.StatusEvent, func()) {
	return b.Subscribe("")
}

func (b *fakeBroadcaster) History(importID string) []models.StatusEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.StatusEvent
	for _, e := range b.events {
		if e.ImportID == importID {
			out = append(out, e)
		}
	}
	return out
}

func (b *fakeBroadcaster) Close() error { return nil }

func (b *fakeBroadcaster) all() []models.StatusEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.StatusEvent(nil), b.events...)
}

func (b *fakeBroadcaster) contexts() []string {
	var out []string
	for _, e := range b.all() {
		out = append(out, e.Context)
	}
	return out
}

// enqueued is one recorded Add call
type enqueued struct {
	Queue   string
	Action  string
	Payload json.RawMessage
}

// fakeQueue records Add calls; Pull is unsupported
type fakeQueue struct {
	mu   sync.Mutex
	jobs []enqueued
	fail bool
}

func (q *fakeQueue) Add(ctx context.Context, queueName, actionName string, payload interface{}, opts *models.EnqueueOptions) error {
	if q.fail {
		return fmt.Errorf("queue unavailable")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, enqueued{Queue: queueName, Action: actionName, Payload: raw})
	return nil
}

func (q *fakeQueue) Pull(ctx context.Context, queueName string) (*models.Job, error) {
	return nil, fmt.Errorf("not supported")
}

func (q *fakeQueue) Ack(ctx context.Context, queueName, jobID string) error  { return nil }
func (q *fakeQueue) Depth(ctx context.Context, queueName string) (int, error) { return 0, nil }
func (q *fakeQueue) Close() error                                            { return nil }

func (q *fakeQueue) Nack(ctx context.Context, queueName, jobID, reason string, retryAfter time.Duration) error {
	return nil
}

func (q *fakeQueue) onQueue(name string) []enqueued {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []enqueued
	for _, j := range q.jobs {
		if j.Queue == name {
			out = append(out, j)
		}
	}
	return out
}

// fakeNotes is an in-memory NoteStorage covering what the actions touch
type fakeNotes struct {
	mu           sync.Mutex
	notes        map[string]*models.Note
	ingredients  map[string]map[int][4]string // noteID -> lineIndex -> qty,unit,name,status
	instructions map[string]map[int]string
	inactive     map[string]map[int]bool
	sources      map[string]string // noteID -> sourceID
	metaSources  map[string]string // metadataID -> source
	categories   map[string][]string
	duplicates   *models.DuplicateCheckResult
	failCreate   bool
}

func newFakeNotes() *fakeNotes {
	return &fakeNotes{
		notes:        make(map[string]*models.Note),
		ingredients:  make(map[string]map[int][4]string),
		instructions: make(map[string]map[int]string),
		inactive:     make(map[string]map[int]bool),
		sources:      make(map[string]string),
		metaSources:  make(map[string]string),
		categories:   make(map[string][]string),
	}
}

func (s *fakeNotes) CreateNoteWithEvernoteMetadata(ctx context.Context, file *models.ParsedFile, importID string) (*models.Note, error) {
	if s.failCreate {
		return nil, fmt.Errorf("storage unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	note := &models.Note{
		ID:       fmt.Sprintf("note-%d", len(s.notes)+1),
		Title:    file.Title,
		ImportID: importID,
	}
	if file.EvernoteMetadata.Source != "" || len(file.EvernoteMetadata.Tags) > 0 {
		note.EvernoteMetadataID = note.ID + "-meta"
	}
	s.notes[note.ID] = note
	return note, nil
}

func (s *fakeNotes) GetNoteWithEvernoteMetadata(ctx context.Context, noteID string) (*models.Note, *models.EvernoteMetadataRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notes[noteID], nil, nil
}

func (s *fakeNotes) GetNotes(ctx context.Context) ([]*models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Note
	for _, n := range s.notes {
		out = append(out, n)
	}
	return out, nil
}

func (s *fakeNotes) UpdateInstructionLine(ctx context.Context, noteID string, lineIndex int, reference, status string, isActive bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.instructions[noteID] == nil {
		s.instructions[noteID] = make(map[int]string)
		s.inactive[noteID] = make(map[int]bool)
	}
	s.instructions[noteID][lineIndex] = reference
	s.inactive[noteID][lineIndex] = !isActive
	return fmt.Sprintf("%s-ins-%d", noteID, lineIndex), nil
}

func (s *fakeNotes) UpdateIngredientLine(ctx context.Context, noteID string, lineIndex int, quantity, unit, name, status string, isActive bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ingredients[noteID] == nil {
		s.ingredients[noteID] = make(map[int][4]string)
	}
	s.ingredients[noteID][lineIndex] = [4]string{quantity, unit, name, status}
	return fmt.Sprintf("%s-ing-%d", noteID, lineIndex), nil
}

func (s *fakeNotes) GetInstructionCompletionStatus(ctx context.Context, noteID string) (*models.InstructionCompletionStatus, error) {
	return &models.InstructionCompletionStatus{}, nil
}

func (s *fakeNotes) FindDuplicates(ctx context.Context, contentHash, title, excludeNoteID string) (*models.DuplicateCheckResult, error) {
	if s.duplicates != nil {
		return s.duplicates, nil
	}
	return &models.DuplicateCheckResult{}, nil
}

func (s *fakeNotes) UpsertEvernoteMetadataSource(ctx context.Context, metadataID, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metaSources[metadataID] = source
	return nil
}

func (s *fakeNotes) ConnectNoteToSource(ctx context.Context, noteID, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[noteID] = sourceID
	return nil
}

func (s *fakeNotes) SetNoteCategories(ctx context.Context, noteID string, categories []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[noteID] = categories
	return nil
}

// fakeSources upserts sources keyed by URL or title
type fakeSources struct {
	mu      sync.Mutex
	byKey   map[string]*models.Source
	counter int
}

func newFakeSources() *fakeSources {
	return &fakeSources{byKey: make(map[string]*models.Source)}
}

func (s *fakeSources) IsValidURL(value string) bool {
	return len(value) > 8 && (value[:7] == "http://" || value[:8] == "https://")
}

func (s *fakeSources) CreateOrFindSourceWithURL(ctx context.Context, url string) (*models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byKey[url]; ok {
		return existing, nil
	}
	s.counter++
	src := &models.Source{
		ID:   fmt.Sprintf("src-%d", s.counter),
		Type: models.SourceTypeURL,
		Name: common.SiteNameFromURL(url),
		URL:  url,
	}
	s.byKey[url] = src
	return src, nil
}

func (s *fakeSources) CreateOrFindSourceWithBook(ctx context.Context, title string) (*models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byKey[title]; ok {
		return existing, nil
	}
	s.counter++
	src := &models.Source{
		ID:        fmt.Sprintf("src-%d", s.counter),
		Type:      models.SourceTypeBook,
		Name:      title,
		BookTitle: title,
	}
	s.byKey[title] = src
	return src, nil
}

func (s *fakeSources) GetSource(ctx context.Context, id string) (*models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.byKey {
		if src.ID == id {
			return src, nil
		}
	}
	return nil, nil
}

// fakePatterns records pattern saves
type fakePatterns struct {
	mu      sync.Mutex
	records []*models.PatternRecord
}

func (s *fakePatterns) SavePattern(ctx context.Context, record *models.PatternRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *fakePatterns) CountByPattern(ctx context.Context, patternKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, r := range s.records {
		if r.PatternKey == patternKey {
			count++
		}
	}
	return count, nil
}

func (s *fakePatterns) ListPatterns(ctx context.Context, matched *bool, limit int) ([]*models.PatternRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.PatternRecord(nil), s.records...), nil
}

// fakeIngredientParser splits "<qty> <unit> <name>" naively
type fakeIngredientParser struct {
	cleared bool
}

func (p *fakeIngredientParser) ParseLine(ctx context.Context, reference string) (*interfaces.ParsedIngredient, error) {
	return &interfaces.ParsedIngredient{
		Name:       reference,
		PatternKey: "name only",
		Matched:    reference != "",
	}, nil
}

func (p *fakeIngredientParser) ClearCache(ctx context.Context) error {
	p.cleared = true
	return nil
}

// testDeps builds a dependency bundle over fakes and a real tracker
func testDeps() (*Dependencies, *fakeBroadcaster, *fakeQueue, *fakeNotes) {
	logger := arbor.NewLogger()
	broadcaster := &fakeBroadcaster{}
	queue := &fakeQueue{}
	notes := newFakeNotes()
	deps := &Dependencies{
		Logger:      logger,
		Broadcaster: broadcaster,
		Queues:      queue,
		Tracker:     tracker.New(logger),
		Notes:       notes,
		Sources:     newFakeSources(),
		Patterns:    &fakePatterns{},
		Ingredients: &fakeIngredientParser{},
		Settings: Settings{
			CategorizationTimeout:  time.Second,
			CompletionCheckBase:    10 * time.Millisecond,
			CompletionCheckMax:     100 * time.Millisecond,
			CompletionCheckRetries: 5,
		},
	}
	return deps, broadcaster, queue, notes
}

func mustJSON(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
