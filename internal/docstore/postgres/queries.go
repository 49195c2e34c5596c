package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/gatekeep/internal/docstore"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanDocument(row *sql.Row, id, path string) (*docstore.Document, error) {
	doc := &docstore.Document{ID: id}
	var data []byte
	if err := row.Scan(&data, &doc.Revision); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", path, docstore.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc.Data = data
	return doc, nil
}

func scanDocuments(rows *sql.Rows) ([]docstore.Document, error) {
	defer rows.Close()
	docs := []docstore.Document{}
	for rows.Next() {
		var (
			d    docstore.Document
			data []byte
		)
		if err := rows.Scan(&d.ID, &data, &d.Revision); err != nil {
			return nil, err
		}
		d.Data = data
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func queryGetGate(ctx context.Context, db executor, gateID string) (*docstore.Document, error) {
	row := db.QueryRowContext(ctx, `SELECT data, revision FROM gates WHERE id = $1`, gateID)
	return scanDocument(row, gateID, docstore.GatePath(gateID))
}

func queryGetUser(ctx context.Context, db executor, gateID, userID string) (*docstore.Document, error) {
	row := db.QueryRowContext(ctx, `
		SELECT data, revision FROM gate_users
		WHERE gate_id = $1 AND user_id = $2`,
		gateID, userID,
	)
	return scanDocument(row, userID, docstore.UserPath(gateID, userID))
}

func queryListGates(ctx context.Context, db executor) ([]docstore.Document, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, data, revision FROM gates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list gates: %w", err)
	}
	return scanDocuments(rows)
}

func queryListUsers(ctx context.Context, db executor, gateID string) ([]docstore.Document, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT user_id, data, revision FROM gate_users
		WHERE gate_id = $1
		ORDER BY user_id`,
		gateID,
	)
	if err != nil {
		return nil, fmt.Errorf("list users of %s: %w", gateID, err)
	}
	return scanDocuments(rows)
}

// queryCollectionRevision returns 0 for a collection that was never written.
func queryCollectionRevision(ctx context.Context, db executor, path string) (int64, error) {
	var rev int64
	err := db.QueryRowContext(ctx, `SELECT revision FROM collection_revisions WHERE path = $1`, path).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read revision of %s: %w", path, err)
	}
	return rev, nil
}

func queryNextRevision(ctx context.Context, db executor) (int64, error) {
	var rev int64
	if err := db.QueryRowContext(ctx, `SELECT nextval('doc_revision')`).Scan(&rev); err != nil {
		return 0, fmt.Errorf("allocate revision: %w", err)
	}
	return rev, nil
}

func queryBumpCollection(ctx context.Context, db executor, path string, rev int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO collection_revisions (path, revision)
		VALUES ($1, $2)
		ON CONFLICT (path) DO UPDATE
		SET revision = GREATEST(collection_revisions.revision, EXCLUDED.revision)`,
		path, rev,
	)
	if err != nil {
		return fmt.Errorf("bump revision of %s: %w", path, err)
	}
	return nil
}

func queryMergeGate(ctx context.Context, db executor, gateID string, patch []byte) (*docstore.Document, error) {
	row := db.QueryRowContext(ctx, `
		UPDATE gates
		SET data = data || $2::jsonb, revision = nextval('doc_revision'), updated_at = NOW()
		WHERE id = $1
		RETURNING data, revision`,
		gateID, patch,
	)
	return scanDocument(row, gateID, docstore.GatePath(gateID))
}

func queryUpsertGate(ctx context.Context, db executor, gateID string, patch []byte) (*docstore.Document, error) {
	row := db.QueryRowContext(ctx, `
		INSERT INTO gates (id, data, revision)
		VALUES ($1, $2::jsonb, nextval('doc_revision'))
		ON CONFLICT (id) DO UPDATE
		SET data = gates.data || EXCLUDED.data, revision = EXCLUDED.revision, updated_at = NOW()
		RETURNING data, revision`,
		gateID, patch,
	)
	return scanDocument(row, gateID, docstore.GatePath(gateID))
}

func queryMergeUser(ctx context.Context, db executor, gateID, userID string, patch []byte) (*docstore.Document, error) {
	row := db.QueryRowContext(ctx, `
		UPDATE gate_users
		SET data = data || $3::jsonb, revision = nextval('doc_revision'), updated_at = NOW()
		WHERE gate_id = $1 AND user_id = $2
		RETURNING data, revision`,
		gateID, userID, patch,
	)
	return scanDocument(row, userID, docstore.UserPath(gateID, userID))
}

func queryUpsertUser(ctx context.Context, db executor, gateID, userID string, patch []byte) (*docstore.Document, error) {
	row := db.QueryRowContext(ctx, `
		INSERT INTO gate_users (gate_id, user_id, data, revision)
		VALUES ($1, $2, $3::jsonb, nextval('doc_revision'))
		ON CONFLICT (gate_id, user_id) DO UPDATE
		SET data = gate_users.data || EXCLUDED.data, revision = EXCLUDED.revision, updated_at = NOW()
		RETURNING data, revision`,
		gateID, userID, patch,
	)
	return scanDocument(row, userID, docstore.UserPath(gateID, userID))
}
