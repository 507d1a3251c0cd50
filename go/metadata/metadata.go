// Package metadata models the durable superblock of a tablet: its identity,
// key range, and the quorum of peers which replicate it. The superblock is
// persisted as a single row of a SQLite database, re-read on startup and
// flushed whenever consensus finalizes a new quorum.
package metadata

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // Driver of the superblock database.
)

const superblockSchema = `
CREATE TABLE IF NOT EXISTS tablet_superblock (
	oid        TEXT PRIMARY KEY NOT NULL,
	table_name TEXT NOT NULL,
	start_key  BLOB NOT NULL,
	end_key    BLOB NOT NULL,
	quorum     TEXT NOT NULL
);
`

// TabletMetadata is the tablet superblock. All accessors take a short lock
// over the in-memory image; only Flush touches the database.
type TabletMetadata struct {
	db *sql.DB

	mu        sync.Mutex
	oid       string
	tableName string
	startKey  []byte
	endKey    []byte
	quorum    Quorum
	dirty     bool
}

// Create initializes a new superblock at |path| ("file::memory:" style DSNs
// work for tests) and persists it. An empty |oid| draws a fresh UUID.
func Create(path, oid, tableName string, startKey, endKey []byte, quorum Quorum) (*TabletMetadata, error) {
	var db, err = openSuperblock(path)
	if err != nil {
		return nil, err
	}
	if oid == "" {
		oid = uuid.NewString()
	}
	var m = &TabletMetadata{
		db:        db,
		oid:       oid,
		tableName: tableName,
		startKey:  append([]byte(nil), startKey...),
		endKey:    append([]byte(nil), endKey...),
		quorum:    quorum.Copy(),
		dirty:     true,
	}
	if err = m.Flush(); err != nil {
		db.Close()
		return nil, fmt.Errorf("flushing created superblock: %w", err)
	}
	return m, nil
}

// Load reads the persisted superblock at |path|.
func Load(path string) (*TabletMetadata, error) {
	var db, err = openSuperblock(path)
	if err != nil {
		return nil, err
	}
	var m = &TabletMetadata{db: db}
	var rawQuorum string

	err = db.QueryRow(
		`SELECT oid, table_name, start_key, end_key, quorum FROM tablet_superblock`).
		Scan(&m.oid, &m.tableName, &m.startKey, &m.endKey, &rawQuorum)
	if err == sql.ErrNoRows {
		db.Close()
		return nil, fmt.Errorf("superblock %q holds no tablet", path)
	} else if err != nil {
		db.Close()
		return nil, fmt.Errorf("reading superblock: %w", err)
	}

	if err = json.Unmarshal([]byte(rawQuorum), &m.quorum); err != nil {
		db.Close()
		return nil, fmt.Errorf("decoding persisted quorum: %w", err)
	}
	return m, nil
}

func openSuperblock(path string) (*sql.DB, error) {
	var db, err = sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening superblock database: %w", err)
	}
	// The database is written from a single flush path; a second connection
	// would only contend on SQLite's file lock.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(superblockSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing superblock schema: %w", err)
	}
	return db, nil
}

// OID returns the tablet identifier.
func (m *TabletMetadata) OID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.oid
}

// TableName returns the name of the table this tablet is a partition of.
func (m *TabletMetadata) TableName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tableName
}

// StartKey returns the inclusive first key of the tablet's range.
func (m *TabletMetadata) StartKey() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.startKey...)
}

// EndKey returns the exclusive last key of the tablet's range.
func (m *TabletMetadata) EndKey() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.endKey...)
}

// Quorum returns a snapshot of the current quorum.
func (m *TabletMetadata) Quorum() Quorum {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quorum.Copy()
}

// SetQuorum replaces the in-memory quorum. The update isn't durable
// until the next Flush.
func (m *TabletMetadata) SetQuorum(q Quorum) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quorum = q.Copy()
	m.dirty = true
}

// Flush persists the superblock if it has un-flushed updates.
func (m *TabletMetadata) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirty {
		return nil
	}
	var rawQuorum, err = json.Marshal(m.quorum)
	if err != nil {
		return fmt.Errorf("encoding quorum: %w", err)
	}
	// An unbounded key is stored as an empty blob: a nil slice would bind
	// as NULL, which the NOT NULL key columns reject.
	var startKey, endKey = m.startKey, m.endKey
	if startKey == nil {
		startKey = []byte{}
	}
	if endKey == nil {
		endKey = []byte{}
	}
	if _, err = m.db.Exec(
		`INSERT INTO tablet_superblock (oid, table_name, start_key, end_key, quorum)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (oid) DO UPDATE SET
		   table_name = excluded.table_name,
		   start_key  = excluded.start_key,
		   end_key    = excluded.end_key,
		   quorum     = excluded.quorum`,
		m.oid, m.tableName, startKey, endKey, string(rawQuorum),
	); err != nil {
		return fmt.Errorf("writing superblock row: %w", err)
	}
	m.dirty = false
	return nil
}

// Close flushes pending updates and closes the superblock database.
func (m *TabletMetadata) Close() error {
	if err := m.Flush(); err != nil {
		m.db.Close()
		return err
	}
	return m.db.Close()
}
