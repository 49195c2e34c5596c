// Package postgres implements docstore.Backend on PostgreSQL JSONB columns.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/gatekeep/internal/docstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements docstore.Backend backed by a PostgreSQL database.
type Store struct {
	db *sql.DB
}

// Compile-time check that Store implements docstore.Backend.
var _ docstore.Backend = (*Store)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an already-migrated database handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn in a transaction, committing on success.
func (s *Store) inTx(ctx context.Context, fn func(tx executor) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	p, err := docstore.ParsePath(path)
	if err != nil {
		return nil, err
	}
	switch p.Kind {
	case docstore.KindGate:
		return queryGetGate(ctx, s.db, p.GateID)
	case docstore.KindUser:
		return queryGetUser(ctx, s.db, p.GateID, p.UserID)
	}
	return nil, fmt.Errorf("%w: %s is a collection", docstore.ErrInvalidPath, path)
}

func (s *Store) List(ctx context.Context, path string) (*docstore.Collection, error) {
	p, err := docstore.ParsePath(path)
	if err != nil {
		return nil, err
	}
	if !p.IsCollection() {
		return nil, fmt.Errorf("%w: %s is not a collection", docstore.ErrInvalidPath, path)
	}

	// The revision is read before the rows. A write that lands in between
	// is then announced with a higher revision and still reaches feeds.
	rev, err := queryCollectionRevision(ctx, s.db, path)
	if err != nil {
		return nil, err
	}
	var docs []docstore.Document
	if p.Kind == docstore.KindGates {
		docs, err = queryListGates(ctx, s.db)
	} else {
		docs, err = queryListUsers(ctx, s.db, p.GateID)
	}
	if err != nil {
		return nil, err
	}
	return &docstore.Collection{Path: path, Revision: rev, Docs: docs}, nil
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) (*docstore.Document, error) {
	return s.write(ctx, path, fields, false)
}

func (s *Store) Set(ctx context.Context, path string, fields map[string]any) (*docstore.Document, error) {
	return s.write(ctx, path, fields, true)
}

func (s *Store) write(ctx context.Context, path string, fields map[string]any, upsert bool) (*docstore.Document, error) {
	p, err := docstore.ParsePath(path)
	if err != nil {
		return nil, err
	}
	if p.IsCollection() {
		return nil, fmt.Errorf("%w: cannot write collection %s", docstore.ErrInvalidPath, path)
	}
	patch, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding fields: %w", err)
	}

	var doc *docstore.Document
	err = s.inTx(ctx, func(tx executor) error {
		var err error
		switch {
		case p.Kind == docstore.KindGate && upsert:
			doc, err = queryUpsertGate(ctx, tx, p.GateID, patch)
		case p.Kind == docstore.KindGate:
			doc, err = queryMergeGate(ctx, tx, p.GateID, patch)
		case upsert:
			doc, err = queryUpsertUser(ctx, tx, p.GateID, p.UserID, patch)
		default:
			doc, err = queryMergeUser(ctx, tx, p.GateID, p.UserID, patch)
		}
		if err != nil {
			return err
		}
		return queryBumpCollection(ctx, tx, p.Parent(), doc.Revision)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) Delete(ctx context.Context, path string) (int64, error) {
	p, err := docstore.ParsePath(path)
	if err != nil {
		return 0, err
	}
	if p.Kind == docstore.KindGates {
		return 0, fmt.Errorf("%w: cannot delete %s", docstore.ErrInvalidPath, path)
	}

	var rev int64
	err = s.inTx(ctx, func(tx executor) error {
		var err error
		switch p.Kind {
		case docstore.KindGate:
			_, err = tx.ExecContext(ctx, `DELETE FROM gates WHERE id = $1`, p.GateID)
		case docstore.KindUsers:
			_, err = tx.ExecContext(ctx, `DELETE FROM gate_users WHERE gate_id = $1`, p.GateID)
		case docstore.KindUser:
			_, err = tx.ExecContext(ctx, `DELETE FROM gate_users WHERE gate_id = $1 AND user_id = $2`, p.GateID, p.UserID)
		}
		if err != nil {
			return fmt.Errorf("delete %s: %w", path, err)
		}
		if rev, err = queryNextRevision(ctx, tx); err != nil {
			return err
		}
		collection := p.Parent()
		if collection == "" {
			collection = path
		}
		return queryBumpCollection(ctx, tx, collection, rev)
	})
	if err != nil {
		return 0, err
	}
	return rev, nil
}
