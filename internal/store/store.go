package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS policy_versions (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	logits        BLOB NOT NULL,
	updates       INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL,
	metrics_json  TEXT,
	FOREIGN KEY (parent_id) REFERENCES policy_versions(version_id)
);

CREATE TABLE IF NOT EXISTS commit_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	version_id    TEXT NOT NULL,
	trigger_type  TEXT NOT NULL,
	detail_json   TEXT,
	decision      TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS active_policy (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES policy_versions(version_id)
);

CREATE TABLE IF NOT EXISTS experience_journal (
	id                    TEXT PRIMARY KEY,
	created_at            TEXT NOT NULL,
	client_id             TEXT NOT NULL,
	frame_id              TEXT NOT NULL,
	episode_id            TEXT NOT NULL,
	action                TEXT NOT NULL,
	reward                REAL NOT NULL,
	reward_navigation     REAL NOT NULL,
	reward_battle         REAL NOT NULL,
	reward_story          REAL NOT NULL,
	scene                 TEXT NOT NULL,
	next_scene            TEXT,
	state_json            TEXT,
	prediction_confidence REAL,
	phase_durations_json  TEXT,
	metadata_json         TEXT
);

CREATE INDEX IF NOT EXISTS idx_journal_client ON experience_journal(client_id, created_at);
`

// #endregion schema

// TimeLayout is the fixed-width timestamp format of every created_at column,
// so text ordering matches time ordering.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region store-struct
// Store manages versioned policies and the experience journal in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for the journal writer and the offline tools.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region create-initial
// CreateInitial stores logits as a root version and makes it active.
func (s *Store) CreateInitial(logits [NumLogits]float64) (PolicyRecord, error) {
	rec := PolicyRecord{
		VersionID: uuid.New().String(),
		Logits:    logits,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return PolicyRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO policy_versions (version_id, parent_id, logits, updates, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.VersionID, nil, encodeLogits(logits), 0, rec.CreatedAt.UTC().Format(TimeLayout),
	)
	if err != nil {
		return PolicyRecord{}, fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_policy (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		rec.VersionID,
	)
	if err != nil {
		return PolicyRecord{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return PolicyRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// CurrentOrInitial returns the active policy, creating a zero-logit root
// when the database has none yet.
func (s *Store) CurrentOrInitial() (PolicyRecord, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM active_policy`).Scan(&n); err != nil {
		return PolicyRecord{}, fmt.Errorf("count active: %w", err)
	}
	if n == 0 {
		return s.CreateInitial([NumLogits]float64{})
	}
	return s.Current()
}

// #endregion create-initial

// #region get
// Current reads the active policy version.
func (s *Store) Current() (PolicyRecord, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_policy WHERE id = 1`).Scan(&versionID)
	if err != nil {
		return PolicyRecord{}, fmt.Errorf("get active: %w", err)
	}
	return s.Version(versionID)
}

// Version retrieves a specific policy version by ID.
func (s *Store) Version(id string) (PolicyRecord, error) {
	row := s.db.QueryRow(
		`SELECT version_id, parent_id, logits, updates, created_at, metrics_json
		 FROM policy_versions WHERE version_id = ?`, id,
	)
	rec, err := scanRecord(row)
	if err != nil {
		return PolicyRecord{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (PolicyRecord, error) {
	var rec PolicyRecord
	var parentID, metricsJSON sql.NullString
	var blob []byte
	var createdStr string

	if err := sc.Scan(&rec.VersionID, &parentID, &blob, &rec.Updates, &createdStr, &metricsJSON); err != nil {
		return PolicyRecord{}, err
	}
	if len(blob) != NumLogits*8 {
		return PolicyRecord{}, fmt.Errorf("logits blob: want %d bytes, got %d", NumLogits*8, len(blob))
	}
	rec.ParentID = parentID.String
	rec.MetricsJSON = metricsJSON.String
	rec.Logits = decodeLogits(blob)
	rec.CreatedAt, _ = time.Parse(TimeLayout, createdStr)
	return rec, nil
}

// #endregion get

// #region commit
// Commit inserts a new version and moves the active pointer to it atomically.
func (s *Store) Commit(rec PolicyRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parentPtr, metricsPtr any
	if rec.ParentID != "" {
		parentPtr = rec.ParentID
	}
	if rec.MetricsJSON != "" {
		metricsPtr = rec.MetricsJSON
	}

	_, err = tx.Exec(
		`INSERT INTO policy_versions (version_id, parent_id, logits, updates, created_at, metrics_json)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.VersionID, parentPtr, encodeLogits(rec.Logits), rec.Updates,
		rec.CreatedAt.UTC().Format(TimeLayout), metricsPtr,
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	res, err := tx.Exec(`UPDATE active_policy SET version_id = ? WHERE id = 1`, rec.VersionID)
	if err != nil {
		return fmt.Errorf("update active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update active: no active policy")
	}
	return tx.Commit()
}

// #endregion commit

// #region rollback
// Rollback sets the active pointer to a previous version.
func (s *Store) Rollback(targetVersionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM policy_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s not found", targetVersionID)
	}

	if _, err := s.db.Exec(`UPDATE active_policy SET version_id = ? WHERE id = 1`, targetVersionID); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list
// ListVersions returns the most recent policy versions, newest first.
func (s *Store) ListVersions(limit int) ([]PolicyRecord, error) {
	rows, err := s.db.Query(
		`SELECT version_id, parent_id, logits, updates, created_at, metrics_json
		 FROM policy_versions ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []PolicyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListWithCommits returns recent versions joined with the latest commit log
// row written for each.
func (s *Store) ListWithCommits(limit int) ([]VersionWithCommit, error) {
	rows, err := s.db.Query(
		`SELECT v.version_id, v.parent_id, v.logits, v.updates, v.created_at, v.metrics_json,
		        COALESCE(c.decision, ''), COALESCE(c.reason, ''), COALESCE(c.detail_json, '')
		 FROM policy_versions v
		 LEFT JOIN commit_log c ON c.id = (
		     SELECT MAX(id) FROM commit_log WHERE version_id = v.version_id)
		 ORDER BY v.created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list with commits: %w", err)
	}
	defer rows.Close()

	var out []VersionWithCommit
	for rows.Next() {
		var v VersionWithCommit
		var parentID, metricsJSON sql.NullString
		var blob []byte
		var createdStr string
		if err := rows.Scan(&v.VersionID, &parentID, &blob, &v.Updates, &createdStr, &metricsJSON,
			&v.Decision, &v.Reason, &v.DetailJSON); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		v.ParentID = parentID.String
		v.MetricsJSON = metricsJSON.String
		v.Logits = decodeLogits(blob)
		v.CreatedAt, _ = time.Parse(TimeLayout, createdStr)
		out = append(out, v)
	}
	return out, rows.Err()
}

// #endregion list

// #region logit-encoding
func encodeLogits(v [NumLogits]float64) []byte {
	buf := make([]byte, NumLogits*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeLogits(b []byte) [NumLogits]float64 {
	var v [NumLogits]float64
	for i := range v {
		if i*8+8 <= len(b) {
			v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
		}
	}
	return v
}

// #endregion logit-encoding
