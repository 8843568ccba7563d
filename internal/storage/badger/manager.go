package badger

import (
	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/skillet/internal/common"
	"github.com/ternarybob/skillet/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db      *BadgerDB
	note    interfaces.NoteStorage
	source  interfaces.SourceStorage
	imports interfaces.ImportStorage
	pattern interfaces.PatternStorage
	logger  arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:      db,
		note:    NewNoteStorage(db, logger),
		source:  NewSourceStorage(db, logger),
		imports: NewImportStorage(db, logger),
		pattern: NewPatternStorage(db, logger),
		logger:  logger,
	}

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

// NoteStorage returns the Note storage interface
func (m *Manager) NoteStorage() interfaces.NoteStorage {
	return m.note
}

// SourceStorage returns the Source storage interface
func (m *Manager) SourceStorage() interfaces.SourceStorage {
	return m.source
}

// ImportStorage returns the Import storage interface
func (m *Manager) ImportStorage() interfaces.ImportStorage {
	return m.imports
}

// PatternStorage returns the Pattern storage interface
func (m *Manager) PatternStorage() interfaces.PatternStorage {
	return m.pattern
}

// DB exposes the raw Badger handle so the queue service can share the
// database instead of opening a second one on the same path.
func (m *Manager) DB() *badgerdb.DB {
	return m.db.Badger()
}

// Close closes the underlying database
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing Badger storage manager")
	return m.db.Close()
}
