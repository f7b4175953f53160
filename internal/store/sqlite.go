package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/packmcp/packmcp/internal/content"
	pkgerr "github.com/packmcp/packmcp/internal/errors"
)

// metaDB holds record metadata, the incremental-build manifest, and
// the pinned embedding state in SQLite.
type metaDB struct {
	db *sql.DB
}

const metaSchema = `
CREATE TABLE IF NOT EXISTS records (
	identity_key TEXT PRIMARY KEY,
	parent_key   TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL,
	pack         TEXT NOT NULL,
	rel_path     TEXT NOT NULL,
	display_name TEXT NOT NULL,
	description  TEXT NOT NULL,
	excerpt      TEXT NOT NULL,
	metadata     TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_records_type ON records(content_type);
CREATE INDEX IF NOT EXISTS idx_records_pack ON records(pack);
CREATE INDEX IF NOT EXISTS idx_records_rel_path ON records(rel_path);

CREATE TABLE IF NOT EXISTS manifest (
	rel_path     TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// WAL mode must be set via PRAGMA for modernc.org/sqlite; it enables
// concurrent readers while a build writes.
var metaPragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA temp_store = MEMORY",
}

func openMetaDB(path string) (*metaDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerr.StoreUnavailable("opening metadata database", err)
	}

	for _, pragma := range metaPragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, pkgerr.StoreUnavailable("configuring metadata database", err)
		}
	}
	if _, err := db.Exec(metaSchema); err != nil {
		db.Close()
		return nil, pkgerr.New(pkgerr.ErrCodeStoreCorrupt, "applying metadata schema", err)
	}
	return &metaDB{db: db}, nil
}

// apply writes a batch of records and manifest entries in one
// transaction, deleting the superseded records of replacePaths first.
// A reader observes the whole batch or none of it. It returns the
// identity keys the deletion removed so the vector side can drop them.
func (m *metaDB) apply(records []IndexRecord, manifest map[string]string, replacePaths []string) ([]string, error) {
	tx, err := m.db.Begin()
	if err != nil {
		return nil, pkgerr.StoreUnavailable("beginning metadata transaction", err)
	}
	defer tx.Rollback()

	var removed []string
	if len(replacePaths) > 0 {
		placeholders := strings.Repeat("?,", len(replacePaths)-1) + "?"
		args := make([]any, len(replacePaths))
		for i, p := range replacePaths {
			args[i] = p
		}

		rows, err := tx.Query(fmt.Sprintf(
			"SELECT identity_key FROM records WHERE rel_path IN (%s)", placeholders), args...)
		if err != nil {
			return nil, pkgerr.StoreUnavailable("listing superseded records", err)
		}
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				rows.Close()
				return nil, pkgerr.StoreUnavailable("scanning identity key", err)
			}
			removed = append(removed, key)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, pkgerr.StoreUnavailable("listing superseded records", err)
		}

		if _, err := tx.Exec(fmt.Sprintf(
			"DELETE FROM records WHERE rel_path IN (%s)", placeholders), args...); err != nil {
			return nil, pkgerr.StoreUnavailable("deleting superseded records", err)
		}
	}

	recordStmt, err := tx.Prepare(`
		INSERT INTO records
			(identity_key, parent_key, content_type, pack, rel_path,
			 display_name, description, excerpt, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity_key) DO UPDATE SET
			parent_key = excluded.parent_key,
			content_type = excluded.content_type,
			pack = excluded.pack,
			rel_path = excluded.rel_path,
			display_name = excluded.display_name,
			description = excluded.description,
			excerpt = excluded.excerpt,
			metadata = excluded.metadata`)
	if err != nil {
		return nil, pkgerr.StoreUnavailable("preparing record upsert", err)
	}
	defer recordStmt.Close()

	for _, r := range records {
		metadata, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, pkgerr.Wrap(pkgerr.ErrCodeInternal, err)
		}
		if _, err := recordStmt.Exec(
			r.IdentityKey, r.ParentIdentityKey, string(r.ContentType),
			r.PackName, r.RelPath, r.DisplayName, r.Description,
			r.Excerpt, string(metadata)); err != nil {
			return nil, pkgerr.StoreUnavailable("upserting record", err)
		}
	}

	for relPath, hash := range manifest {
		if _, err := tx.Exec(`
			INSERT INTO manifest (rel_path, content_hash) VALUES (?, ?)
			ON CONFLICT(rel_path) DO UPDATE SET content_hash = excluded.content_hash`,
			relPath, hash); err != nil {
			return nil, pkgerr.StoreUnavailable("upserting manifest entry", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, pkgerr.StoreUnavailable("committing metadata batch", err)
	}
	return removed, nil
}

// getByKeys fetches records by identity key. Missing keys are simply
// absent from the result.
func (m *metaDB) getByKeys(keys []string) (map[string]IndexRecord, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(keys)-1) + "?"
	args := make([]any, len(keys))
	for i, key := range keys {
		args[i] = key
	}

	rows, err := m.db.Query(fmt.Sprintf(`
		SELECT identity_key, parent_key, content_type, pack, rel_path,
		       display_name, description, excerpt, metadata
		FROM records WHERE identity_key IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, pkgerr.StoreUnavailable("querying records", err)
	}
	defer rows.Close()

	out := make(map[string]IndexRecord, len(keys))
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out[record.IdentityKey] = record
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (IndexRecord, error) {
	var r IndexRecord
	var contentType, metadata string
	if err := rows.Scan(&r.IdentityKey, &r.ParentIdentityKey, &contentType,
		&r.PackName, &r.RelPath, &r.DisplayName, &r.Description,
		&r.Excerpt, &metadata); err != nil {
		return r, pkgerr.StoreUnavailable("scanning record", err)
	}
	r.ContentType = content.ContentType(contentType)
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &r.Metadata); err != nil {
			return r, pkgerr.New(pkgerr.ErrCodeStoreCorrupt, "decoding record metadata", err)
		}
	}
	return r, nil
}

// deleteByRelPaths removes every record and manifest entry for the
// given relative paths and returns the identity keys that were
// removed so the vector side can drop them too.
func (m *metaDB) deleteByRelPaths(relPaths []string) ([]string, error) {
	if len(relPaths) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(relPaths)-1) + "?"
	args := make([]any, len(relPaths))
	for i, p := range relPaths {
		args[i] = p
	}

	rows, err := m.db.Query(fmt.Sprintf(
		"SELECT identity_key FROM records WHERE rel_path IN (%s)", placeholders), args...)
	if err != nil {
		return nil, pkgerr.StoreUnavailable("listing records to prune", err)
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, pkgerr.StoreUnavailable("scanning identity key", err)
		}
		keys = append(keys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, pkgerr.StoreUnavailable("listing records to prune", err)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return nil, pkgerr.StoreUnavailable("beginning prune transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf(
		"DELETE FROM records WHERE rel_path IN (%s)", placeholders), args...); err != nil {
		return nil, pkgerr.StoreUnavailable("pruning records", err)
	}
	if _, err := tx.Exec(fmt.Sprintf(
		"DELETE FROM manifest WHERE rel_path IN (%s)", placeholders), args...); err != nil {
		return nil, pkgerr.StoreUnavailable("pruning manifest", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, pkgerr.StoreUnavailable("committing prune", err)
	}
	return keys, nil
}

// deleteByKeys removes records by identity key.
func (m *metaDB) deleteByKeys(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(keys)-1) + "?"
	args := make([]any, len(keys))
	for i, key := range keys {
		args[i] = key
	}
	if _, err := m.db.Exec(fmt.Sprintf(
		"DELETE FROM records WHERE identity_key IN (%s)", placeholders), args...); err != nil {
		return pkgerr.StoreUnavailable("deleting records", err)
	}
	return nil
}

// manifest returns the full rel_path -> content hash map.
func (m *metaDB) manifest() (map[string]string, error) {
	rows, err := m.db.Query("SELECT rel_path, content_hash FROM manifest")
	if err != nil {
		return nil, pkgerr.StoreUnavailable("reading manifest", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var relPath, hash string
		if err := rows.Scan(&relPath, &hash); err != nil {
			return nil, pkgerr.StoreUnavailable("scanning manifest entry", err)
		}
		out[relPath] = hash
	}
	return out, rows.Err()
}

// stats computes per-type document and chunk counts. A document is
// counted once regardless of how many chunks it produced.
func (m *metaDB) stats() (map[content.ContentType]TypeStats, error) {
	rows, err := m.db.Query(`
		SELECT content_type,
		       COUNT(DISTINCT COALESCE(NULLIF(parent_key, ''), identity_key)),
		       COUNT(*)
		FROM records GROUP BY content_type`)
	if err != nil {
		return nil, pkgerr.StoreUnavailable("computing stats", err)
	}
	defer rows.Close()

	out := make(map[content.ContentType]TypeStats)
	for rows.Next() {
		var typeName string
		var stats TypeStats
		if err := rows.Scan(&typeName, &stats.Documents, &stats.Chunks); err != nil {
			return nil, pkgerr.StoreUnavailable("scanning stats", err)
		}
		out[content.ContentType(typeName)] = stats
	}
	return out, rows.Err()
}

func (m *metaDB) getState(key string) (string, error) {
	var value string
	err := m.db.QueryRow("SELECT value FROM state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", pkgerr.StoreUnavailable("reading state", err)
	}
	return value, nil
}

func (m *metaDB) setState(key, value string) error {
	_, err := m.db.Exec(`
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return pkgerr.StoreUnavailable("writing state", err)
	}
	return nil
}

func (m *metaDB) close() error {
	_, _ = m.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return m.db.Close()
}
