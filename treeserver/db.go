// ABOUTME: SQLite persistence for tree nodes and their committed version history.
// ABOUTME: Node documents are stored compressed; every committed version gets a history row.

package treeserver

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/2389-research/flowgraph/tree"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

// HistoryEntry is one committed version of a node.
type HistoryEntry struct {
	ID        string    `json:"id"`
	NodeID    string    `json:"nodeId"`
	Version   int64     `json:"version"`
	Digest    string    `json:"digest"`
	Comment   string    `json:"comment,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// DB is the SQLite-backed node repository.
type DB struct {
	db *sql.DB
}

// OpenDB opens or creates the database at path and ensures the schema exists.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			parent_id TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			version INTEGER NOT NULL,
			trashed INTEGER NOT NULL DEFAULT 0,
			doc BLOB NOT NULL,
			digest TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS nodes_parent ON nodes(parent_id);

		CREATE TABLE IF NOT EXISTS history (
			id TEXT PRIMARY KEY,
			node_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			digest TEXT NOT NULL,
			doc BLOB NOT NULL,
			comment TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			UNIQUE(node_id, version),
			FOREIGN KEY (node_id) REFERENCES nodes(id)
		);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Get loads one node, trashed or not.
func (d *DB) Get(id string) (*tree.Node, string, error) {
	var blob []byte
	var dig string
	err := d.db.QueryRow(`SELECT doc, digest FROM nodes WHERE id = ?`, id).Scan(&blob, &dig)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("query node %s: %w", id, err)
	}
	n, err := decodeNode(blob)
	if err != nil {
		return nil, "", err
	}
	return n, dig, nil
}

// Children lists the direct children of parentID.
func (d *DB) Children(parentID string, includeTrashed bool) ([]*tree.Node, error) {
	query := `SELECT doc FROM nodes WHERE parent_id = ? AND trashed = 0 ORDER BY name, id`
	if includeTrashed {
		query = `SELECT doc FROM nodes WHERE parent_id = ? ORDER BY name, id`
	}
	return d.queryNodes(query, parentID)
}

// ActiveByType lists every untrashed node of type t.
func (d *DB) ActiveByType(t tree.NodeType) ([]*tree.Node, error) {
	return d.queryNodes(`SELECT doc FROM nodes WHERE type = ? AND trashed = 0 ORDER BY id`, string(t))
}

// Trashed lists every trashed node.
func (d *DB) Trashed() ([]*tree.Node, error) {
	return d.queryNodes(`SELECT doc FROM nodes WHERE trashed = 1 ORDER BY id`)
}

func (d *DB) queryNodes(query string, args ...any) ([]*tree.Node, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*tree.Node
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n, err := decodeNode(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Commit upserts n and appends a history row for its version inside one
// transaction. It returns the digest of the stored document.
func (d *DB) Commit(n *tree.Node, userID string) (string, error) {
	blob, dig, err := encodeNode(n)
	if err != nil {
		return "", err
	}
	tx, err := d.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	parent := n.ParentID
	if parent == "" {
		parent = tree.RootID
	}
	trashed := 0
	if n.Trashed() {
		trashed = 1
	}
	_, err = tx.Exec(
		`INSERT INTO nodes (id, parent_id, name, type, version, trashed, doc, digest)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			name = excluded.name,
			type = excluded.type,
			version = excluded.version,
			trashed = excluded.trashed,
			doc = excluded.doc,
			digest = excluded.digest`,
		n.ID, parent, n.Name, string(n.Type), n.Version, trashed, blob, dig,
	)
	if err != nil {
		return "", fmt.Errorf("upsert node %s: %w", n.ID, err)
	}

	_, err = tx.Exec(
		`INSERT INTO history (id, node_id, version, digest, doc, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(node_id, version) DO UPDATE SET
			digest = excluded.digest,
			doc = excluded.doc,
			user_id = excluded.user_id,
			created_at = excluded.created_at`,
		ulid.Make().String(), n.ID, n.Version, dig, blob, userID,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("append history %s@%d: %w", n.ID, n.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return dig, nil
}

// History lists the committed versions of nodeID, newest first.
func (d *DB) History(nodeID string) ([]HistoryEntry, error) {
	rows, err := d.db.Query(
		`SELECT id, node_id, version, digest, comment, user_id, created_at
		 FROM history WHERE node_id = ? ORDER BY version DESC`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var created string
		if err := rows.Scan(&e.ID, &e.NodeID, &e.Version, &e.Digest, &e.Comment, &e.UserID, &created); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Version loads the node document committed as version of nodeID.
func (d *DB) Version(nodeID string, version int64) (*tree.Node, error) {
	var blob []byte
	err := d.db.QueryRow(`SELECT doc FROM history WHERE node_id = ? AND version = ?`, nodeID, version).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query version: %w", err)
	}
	return decodeNode(blob)
}

// CommentVersion sets the comment of one history row and returns it.
func (d *DB) CommentVersion(nodeID string, version int64, comment string) (*HistoryEntry, error) {
	res, err := d.db.Exec(`UPDATE history SET comment = ? WHERE node_id = ? AND version = ?`, comment, nodeID, version)
	if err != nil {
		return nil, fmt.Errorf("comment version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	entries, err := d.History(nodeID)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Version == version {
			return &entries[i], nil
		}
	}
	return nil, ErrNotFound
}
