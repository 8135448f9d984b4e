package store

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/latticehq/lattice/internal/core/model"
	"github.com/latticehq/lattice/internal/logger"
)

// ErrNotPending is returned by guarded review updates when the row exists
// but is no longer in the pending state. Callers treat it as a lost race.
var ErrNotPending = errors.New("suggestion is not pending")

// Store is the relational index: source of truth for per-user entities,
// mentions, suggestions, people and speaker bindings.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string, baseLog *logger.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return newStore(db, baseLog)
}

// OpenSQLite opens a file-backed SQLite store. Used by tests; the schema
// and upsert SQL are shared with Postgres.
func OpenSQLite(path string, baseLog *logger.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite at '%s': %w", path, err)
	}
	return newStore(db, baseLog)
}

func newStore(db *gorm.DB, baseLog *logger.Logger) (*Store, error) {
	s := &Store{
		db:  db,
		log: baseLog.With("component", "store"),
	}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	err := s.db.AutoMigrate(
		&model.Session{},
		&model.Entity{},
		&model.EntityMention{},
		&model.RelationshipSuggestion{},
		&model.Person{},
		&model.SessionSpeaker{},
		&model.SessionPersonIndex{},
		&model.SpeakerAssignmentEvent{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for transaction composition.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
