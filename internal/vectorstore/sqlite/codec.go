// Package sqlite stores a flat index inside a single SQLite database file.
// It is an alternative to the flat binary layout for deployments that want
// to inspect the index with standard SQLite tooling.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/statementrag/rag/internal/domain"
	"github.com/statementrag/rag/internal/vectorstore/flat"
)

// Header is the prefix of every SQLite database file.
const Header = "SQLite format 3\x00"

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS vectors (
	pos       INTEGER PRIMARY KEY,
	embedding BLOB NOT NULL
);`

// Codec reads and writes a flat.Index as rows of a SQLite database.
type Codec struct{}

// WriteFile writes idx to the database at path. Existing rows are replaced.
func (Codec) WriteFile(ctx context.Context, path string, idx *flat.Index, m flat.Manifest) error {
	db, err := open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: create schema: %w", err)
	}
	return withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vectors`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM meta`); err != nil {
			return err
		}
		meta := map[string]string{
			"format":        "ragvidx-sqlite/1",
			"dimension":     strconv.Itoa(idx.Dimension()),
			"count":         strconv.Itoa(idx.Len()),
			"docstore_len":  strconv.Itoa(m.DocstoreLen),
			"docstore_hash": hex.EncodeToString(m.DocstoreSum[:]),
		}
		for k, v := range meta {
			if _, err := tx.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?, ?)`, k, v); err != nil {
				return fmt.Errorf("sqlite: insert meta %s: %w", k, err)
			}
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO vectors(pos, embedding) VALUES(?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		buf := make([]byte, 4*idx.Dimension())
		for i := 0; i < idx.Len(); i++ {
			flat.EncodeVector(buf, idx.Vector(i))
			if _, err := stmt.ExecContext(ctx, i, buf); err != nil {
				return fmt.Errorf("sqlite: insert vector %d: %w", i, err)
			}
		}
		return nil
	})
}

// ReadFile loads an index written by WriteFile.
func (Codec) ReadFile(ctx context.Context, path string) (*flat.Index, flat.Manifest, error) {
	var m flat.Manifest
	db, err := open(path)
	if err != nil {
		return nil, m, err
	}
	defer db.Close()

	meta := make(map[string]string)
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, m, fmt.Errorf("sqlite: read meta: %v: %w", err, domain.ErrStoreCorrupt)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, m, err
		}
		meta[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, m, err
	}

	dim, err := metaInt(meta, "dimension")
	if err != nil {
		return nil, m, err
	}
	count, err := metaInt(meta, "count")
	if err != nil {
		return nil, m, err
	}
	if m.DocstoreLen, err = metaInt(meta, "docstore_len"); err != nil {
		return nil, m, err
	}
	sum, err := hex.DecodeString(meta["docstore_hash"])
	if err != nil || len(sum) != len(m.DocstoreSum) {
		return nil, m, fmt.Errorf("sqlite: bad docstore_hash: %w", domain.ErrStoreCorrupt)
	}
	copy(m.DocstoreSum[:], sum)

	if dim > flat.MaxDimension {
		return nil, m, fmt.Errorf("sqlite: dimension %d out of range: %w", dim, domain.ErrStoreCorrupt)
	}
	idx, err := flat.New(dim)
	if err != nil {
		return nil, m, fmt.Errorf("sqlite: %v: %w", err, domain.ErrStoreCorrupt)
	}
	var rowCount int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&rowCount); err != nil {
		return nil, m, err
	}
	if rowCount != count {
		return nil, m, fmt.Errorf("sqlite: %d vector rows, meta says %d: %w", rowCount, count, domain.ErrStoreCorrupt)
	}
	vrows, err := db.QueryContext(ctx, `SELECT pos, embedding FROM vectors ORDER BY pos`)
	if err != nil {
		return nil, m, err
	}
	defer vrows.Close()
	vectors := make([][]float32, 0, count)
	for vrows.Next() {
		var pos int
		var blob []byte
		if err := vrows.Scan(&pos, &blob); err != nil {
			return nil, m, err
		}
		if pos != len(vectors) || len(blob) != 4*dim {
			return nil, m, fmt.Errorf("sqlite: vector row %d malformed: %w", pos, domain.ErrStoreCorrupt)
		}
		vectors = append(vectors, flat.DecodeVector(blob))
	}
	if err := vrows.Err(); err != nil {
		return nil, m, err
	}
	if len(vectors) != count {
		return nil, m, fmt.Errorf("sqlite: %d vectors, meta says %d: %w", len(vectors), count, domain.ErrStoreCorrupt)
	}
	if err := idx.Add(vectors); err != nil {
		return nil, m, err
	}
	return idx, m, nil
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// withTx commits on nil error and rolls back otherwise.
func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func metaInt(meta map[string]string, key string) (int, error) {
	v, ok := meta[key]
	if !ok {
		return 0, fmt.Errorf("sqlite: meta %q missing: %w", key, domain.ErrStoreCorrupt)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.Join(fmt.Errorf("sqlite: meta %q=%q: %w", key, v, domain.ErrStoreCorrupt), err)
	}
	return n, nil
}
