// Package database provides the dataset store for hilbertmap.
//
// Imported prefix lists live in SQLite (WAL mode, foreign keys on). Each
// import becomes a prefix set; the map reads a set back per address family
// to build its coverage index. DBService is the primary entry point.
package database

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
	"github.com/Mr-Dark-debug/hilbertmap/pkg/timeutil"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaFS embed.FS

// ErrNotFound is returned when a prefix set does not exist.
var ErrNotFound = errors.New("not found")

// Store defines dataset persistence. The API and importer depend on this
// interface rather than on SQLite directly.
type Store interface {
	// CreateSet persists a prefix set. An existing set with the same ID has
	// its name, source and metadata replaced.
	CreateSet(set *PrefixSet) error
	// GetSet returns one set or ErrNotFound.
	GetSet(id string) (*PrefixSet, error)
	// ListSets returns sets matching the filter, newest first.
	ListSets(filter SetFilter) ([]*PrefixSet, error)
	// DeleteSet removes a set and its prefixes.
	DeleteSet(id string) error

	// InsertPrefixes adds prefixes to a set in one transaction and returns
	// how many were new.
	InsertPrefixes(setID string, prefixes []prefix.Prefix) (int, error)
	// QueryPrefixes returns a set's prefixes; family 0 means both.
	QueryPrefixes(setID string, family int) ([]prefix.Prefix, error)
	// GetSetStats returns per-family counts for a set.
	GetSetStats(setID string) (*SetStats, error)

	// WritePendingImport parks a raw payload before it is parsed.
	WritePendingImport(setID, source string, payload []byte) (int64, error)
	// CommitPendingImport marks a parked payload as done.
	CommitPendingImport(importID int64) error
	// GetPendingImports returns payloads that were never committed.
	GetPendingImports() ([]PendingImport, error)

	// Ping checks the connection.
	Ping(ctx context.Context) error
	// Close shuts down the database connection.
	Close() error
}

// ============================================================
// Domain Models
// ============================================================

// PrefixSet is one imported list of prefixes.
type PrefixSet struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Source      string            `json:"source"`
	CreatedAt   int64             `json:"created_at"`
	PrefixCount int               `json:"prefix_count"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// SetFilter narrows ListSets.
type SetFilter struct {
	Source *string `json:"source,omitempty"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// SetStats summarizes a set per address family.
type SetStats struct {
	SetID      string `json:"set_id"`
	V4Prefixes int    `json:"v4_prefixes"`
	V6Prefixes int    `json:"v6_prefixes"`
	V4MinBits  int    `json:"v4_min_bits"`
	V4MaxBits  int    `json:"v4_max_bits"`
	V6MinBits  int    `json:"v6_min_bits"`
	V6MaxBits  int    `json:"v6_max_bits"`
}

// PendingImport is a parked import payload.
type PendingImport struct {
	ImportID  int64  `json:"import_id"`
	SetID     string `json:"set_id"`
	Source    string `json:"source"`
	Payload   []byte `json:"payload"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// ============================================================
// DBService Implementation
// ============================================================

// DBService implements Store on SQLite. Writes are serialized through the
// mutex; SQLite allows a single writer.
type DBService struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string

	stmtUpsertSet     *sql.Stmt
	stmtInsertPrefix  *sql.Stmt
	stmtRecount       *sql.Stmt
	stmtInsertPending *sql.Stmt
	stmtCommitPending *sql.Stmt
}

// NewDBService opens the database at path, applies the schema and prepares
// the hot statements. Use ":memory:" in tests.
func NewDBService(path string) (*DBService, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON&_cache_size=-64000", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database at %s: %w", path, err)
	}

	// One connection: SQLite has one writer, and ":memory:" databases are
	// per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	svc := &DBService{
		db:   db,
		path: path,
	}

	if err := svc.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	if err := svc.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing statements: %w", err)
	}

	return svc, nil
}

// Path returns the database location.
func (s *DBService) Path() string { return s.path }

func (s *DBService) initSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("reading embedded schema: %w", err)
	}

	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

func (s *DBService) prepareStatements() error {
	var err error

	s.stmtUpsertSet, err = s.db.Prepare(`
		INSERT INTO prefix_sets (id, name, source, created_at, metadata)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			source = excluded.source,
			metadata = COALESCE(excluded.metadata, prefix_sets.metadata)
	`)
	if err != nil {
		return fmt.Errorf("preparing UpsertSet: %w", err)
	}

	s.stmtInsertPrefix, err = s.db.Prepare(`
		INSERT OR IGNORE INTO prefixes (set_id, prefix, family, bits) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing InsertPrefix: %w", err)
	}

	s.stmtRecount, err = s.db.Prepare(`
		UPDATE prefix_sets
		SET prefix_count = (SELECT COUNT(*) FROM prefixes WHERE set_id = ?)
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("preparing Recount: %w", err)
	}

	s.stmtInsertPending, err = s.db.Prepare(`
		INSERT INTO pending_imports (set_id, source, payload, status, created_at)
		VALUES (?, ?, ?, 'pending', ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing InsertPending: %w", err)
	}

	s.stmtCommitPending, err = s.db.Prepare(`
		UPDATE pending_imports SET status = 'committed', committed_at = ? WHERE import_id = ?
	`)
	if err != nil {
		return fmt.Errorf("preparing CommitPending: %w", err)
	}

	return nil
}

// CreateSet persists a set, stamping CreatedAt when it is zero.
func (s *DBService) CreateSet(set *PrefixSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set.CreatedAt == 0 {
		set.CreatedAt = timeutil.NowNano()
	}
	if set.Source == "" {
		set.Source = "text"
	}

	var metadataJSON *string
	if set.Metadata != nil {
		b, err := json.Marshal(set.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling set metadata: %w", err)
		}
		str := string(b)
		metadataJSON = &str
	}

	_, err := s.stmtUpsertSet.Exec(set.ID, set.Name, set.Source, set.CreatedAt, metadataJSON)
	if err != nil {
		return fmt.Errorf("inserting set %s: %w", set.ID, err)
	}
	return nil
}

// GetSet returns one set.
func (s *DBService) GetSet(id string) (*PrefixSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, name, source, created_at, prefix_count, metadata
		FROM prefix_sets WHERE id = ?
	`, id)
	set, err := scanSet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("set %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying set %s: %w", id, err)
	}
	return set, nil
}

// ListSets returns sets newest first.
func (s *DBService) ListSets(filter SetFilter) ([]*PrefixSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, name, source, created_at, prefix_count, metadata FROM prefix_sets WHERE 1=1`
	args := make([]interface{}, 0)

	if filter.Source != nil {
		query += ` AND source = ?`
		args = append(args, *filter.Source)
	}

	query += ` ORDER BY created_at DESC, id ASC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else {
		query += ` LIMIT 100`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sets: %w", err)
	}
	defer rows.Close()

	var sets []*PrefixSet
	for rows.Next() {
		set, err := scanSet(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning set row: %w", err)
		}
		sets = append(sets, set)
	}
	return sets, rows.Err()
}

// DeleteSet removes a set; its prefixes go with it.
func (s *DBService) DeleteSet(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM prefix_sets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting set %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting set %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("set %s: %w", id, ErrNotFound)
	}
	return nil
}

// InsertPrefixes adds prefixes to a set within a single transaction and
// refreshes the set's prefix count.
func (s *DBService) InsertPrefixes(setID string, prefixes []prefix.Prefix) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning prefix batch: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM prefix_sets WHERE id = ?`, setID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("checking set %s: %w", setID, err)
	}
	if exists == 0 {
		return 0, fmt.Errorf("set %s: %w", setID, ErrNotFound)
	}

	stmt := tx.Stmt(s.stmtInsertPrefix)
	added := 0
	for _, p := range prefixes {
		if !p.IsValid() {
			continue
		}
		res, err := stmt.Exec(setID, p.String(), p.Family(), p.Bits())
		if err != nil {
			return 0, fmt.Errorf("batch inserting prefix %s: %w", p, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	if _, err := tx.Stmt(s.stmtRecount).Exec(setID, setID); err != nil {
		return 0, fmt.Errorf("recounting set %s: %w", setID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing prefix batch: %w", err)
	}
	return added, nil
}

// QueryPrefixes returns a set's prefixes, shortest first.
func (s *DBService) QueryPrefixes(setID string, family int) ([]prefix.Prefix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT prefix FROM prefixes WHERE set_id = ?`
	args := []interface{}{setID}
	if family == 4 || family == 6 {
		query += ` AND family = ?`
		args = append(args, family)
	}
	query += ` ORDER BY family ASC, bits ASC, prefix ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying prefixes for set %s: %w", setID, err)
	}
	defer rows.Close()

	return scanPrefixes(rows)
}

// GetSetStats returns per-family counts and length ranges.
func (s *DBService) GetSetStats(setID string) (*SetStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &SetStats{SetID: setID}

	rows, err := s.db.Query(`
		SELECT family, COUNT(*), MIN(bits), MAX(bits)
		FROM prefixes
		WHERE set_id = ?
		GROUP BY family
	`, setID)
	if err != nil {
		return nil, fmt.Errorf("querying stats for set %s: %w", setID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var family, count, lo, hi int
		if err := rows.Scan(&family, &count, &lo, &hi); err != nil {
			return nil, fmt.Errorf("scanning stats row: %w", err)
		}
		switch family {
		case 4:
			stats.V4Prefixes, stats.V4MinBits, stats.V4MaxBits = count, lo, hi
		case 6:
			stats.V6Prefixes, stats.V6MinBits, stats.V6MaxBits = count, lo, hi
		}
	}
	return stats, rows.Err()
}

// WritePendingImport stores a raw payload for crash recovery and returns
// its ID for later commitment.
func (s *DBService) WritePendingImport(setID, source string, payload []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.stmtInsertPending.Exec(setID, source, payload, timeutil.NowNano())
	if err != nil {
		return 0, fmt.Errorf("writing pending import: %w", err)
	}
	return result.LastInsertId()
}

// CommitPendingImport marks a pending import as committed.
func (s *DBService) CommitPendingImport(importID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.stmtCommitPending.Exec(timeutil.NowNano(), importID)
	if err != nil {
		return fmt.Errorf("committing pending import %d: %w", importID, err)
	}
	return nil
}

// GetPendingImports returns all uncommitted imports, oldest first.
func (s *DBService) GetPendingImports() ([]PendingImport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT import_id, set_id, source, payload, status, created_at
		FROM pending_imports
		WHERE status = 'pending'
		ORDER BY import_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying pending imports: %w", err)
	}
	defer rows.Close()

	var imports []PendingImport
	for rows.Next() {
		var p PendingImport
		if err := rows.Scan(&p.ImportID, &p.SetID, &p.Source, &p.Payload, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning pending import: %w", err)
		}
		imports = append(imports, p)
	}
	return imports, rows.Err()
}

// Ping checks the connection.
func (s *DBService) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the prepared statements and the connection pool.
func (s *DBService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmts := []*sql.Stmt{
		s.stmtUpsertSet, s.stmtInsertPrefix, s.stmtRecount,
		s.stmtInsertPending, s.stmtCommitPending,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}

	return s.db.Close()
}

// ============================================================
// Scan Helpers
// ============================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSet(row rowScanner) (*PrefixSet, error) {
	set := &PrefixSet{}
	var metadataStr *string
	if err := row.Scan(&set.ID, &set.Name, &set.Source, &set.CreatedAt, &set.PrefixCount, &metadataStr); err != nil {
		return nil, err
	}
	if metadataStr != nil {
		set.Metadata = make(map[string]string)
		if err := json.Unmarshal([]byte(*metadataStr), &set.Metadata); err != nil {
			// Non-fatal: metadata is supplementary
			set.Metadata = map[string]string{"_raw": *metadataStr}
		}
	}
	return set, nil
}

func scanPrefixes(rows *sql.Rows) ([]prefix.Prefix, error) {
	var out []prefix.Prefix
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning prefix row: %w", err)
		}
		p, err := prefix.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("stored prefix %q: %w", s, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
