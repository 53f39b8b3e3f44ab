// Package leafindex persists the triphone sets routed to each leaf so that
// context lookups do not need the forest in memory.
package leafindex

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/ieee0824/voicecluster-go/internal/logging"
	"github.com/ieee0824/voicecluster-go/triphone"
)

var log = logging.Component("leafindex")

const schema = `
CREATE TABLE IF NOT EXISTS builds (
	build_id    TEXT PRIMARY KEY,
	forest      TEXT NOT NULL,
	inventory   TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS leaves (
	build_id    TEXT NOT NULL,
	leaf        TEXT NOT NULL,
	size        INTEGER NOT NULL,
	sets_json   TEXT NOT NULL,
	PRIMARY KEY (build_id, leaf),
	FOREIGN KEY (build_id) REFERENCES builds(build_id)
);
`

// Store is a SQLite database of leaf sets grouped into builds.
type Store struct {
	db *sql.DB
}

// Build describes one stored enumeration.
type Build struct {
	ID        string    `json:"id"`
	Forest    string    `json:"forest"`
	Inventory []string  `json:"inventory"`
	CreatedAt time.Time `json:"created_at"`
	Leaves    int       `json:"leaves"`
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	s, err := NewStoreWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreWithDB runs migrations on an already open database.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores sets as a new build of forest and returns it.
func (s *Store) Save(forest string, inventory []string, sets map[string]*triphone.Set) (Build, error) {
	b := Build{
		ID:        uuid.New().String(),
		Forest:    forest,
		Inventory: inventory,
		CreatedAt: time.Now().UTC(),
		Leaves:    len(sets),
	}
	invJSON, err := sonic.Marshal(inventory)
	if err != nil {
		return Build{}, fmt.Errorf("marshal inventory: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Build{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO builds (build_id, forest, inventory, created_at) VALUES (?, ?, ?, ?)`,
		b.ID, forest, string(invJSON), b.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Build{}, fmt.Errorf("insert build: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO leaves (build_id, leaf, size, sets_json) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return Build{}, fmt.Errorf("prepare leaf insert: %w", err)
	}
	defer stmt.Close()
	for leaf, set := range sets {
		js, err := sonic.Marshal(set)
		if err != nil {
			return Build{}, fmt.Errorf("marshal leaf %s: %w", leaf, err)
		}
		if _, err := stmt.Exec(b.ID, leaf, set.Size(), string(js)); err != nil {
			return Build{}, fmt.Errorf("insert leaf %s: %w", leaf, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Build{}, fmt.Errorf("commit: %w", err)
	}
	log.WithField("build", b.ID).WithField("leaves", b.Leaves).Debug("leaf index stored")
	return b, nil
}

// Builds lists stored builds, newest first.
func (s *Store) Builds() ([]Build, error) {
	rows, err := s.db.Query(`
		SELECT b.build_id, b.forest, b.inventory, b.created_at, COUNT(l.leaf)
		FROM builds b LEFT JOIN leaves l ON l.build_id = b.build_id
		GROUP BY b.build_id
		ORDER BY b.created_at DESC, b.build_id`)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	var out []Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Build returns one build by id.
func (s *Store) Build(id string) (Build, error) {
	row := s.db.QueryRow(`
		SELECT b.build_id, b.forest, b.inventory, b.created_at, COUNT(l.leaf)
		FROM builds b LEFT JOIN leaves l ON l.build_id = b.build_id
		WHERE b.build_id = ?
		GROUP BY b.build_id`, id)
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Build{}, fmt.Errorf("%w: build %s", errs.ErrReference, id)
	}
	return b, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(r scanner) (Build, error) {
	var b Build
	var inv, created string
	if err := r.Scan(&b.ID, &b.Forest, &inv, &created, &b.Leaves); err != nil {
		return Build{}, err
	}
	if err := sonic.Unmarshal([]byte(inv), &b.Inventory); err != nil {
		return Build{}, fmt.Errorf("decode inventory of build %s: %w", b.ID, err)
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Build{}, fmt.Errorf("parse created_at of build %s: %w", b.ID, err)
	}
	b.CreatedAt = t
	return b, nil
}

// Set returns the set stored for leaf in build.
func (s *Store) Set(buildID, leaf string) (*triphone.Set, error) {
	var js string
	err := s.db.QueryRow(`SELECT sets_json FROM leaves WHERE build_id = ? AND leaf = ?`, buildID, leaf).Scan(&js)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: leaf %s in build %s", errs.ErrReference, leaf, buildID)
	}
	if err != nil {
		return nil, fmt.Errorf("query leaf: %w", err)
	}
	var set triphone.Set
	if err := sonic.Unmarshal([]byte(js), &set); err != nil {
		return nil, fmt.Errorf("decode leaf %s: %w", leaf, err)
	}
	return &set, nil
}

// Leaves returns, sorted, the leaves of build whose sets span t.
func (s *Store) Leaves(buildID string, t triphone.Triphone) ([]string, error) {
	if _, err := s.Build(buildID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT leaf, sets_json FROM leaves WHERE build_id = ? ORDER BY leaf`, buildID)
	if err != nil {
		return nil, fmt.Errorf("query leaves: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var leaf, js string
		if err := rows.Scan(&leaf, &js); err != nil {
			return nil, fmt.Errorf("scan leaf: %w", err)
		}
		var set triphone.Set
		if err := sonic.Unmarshal([]byte(js), &set); err != nil {
			return nil, fmt.Errorf("decode leaf %s: %w", leaf, err)
		}
		if set.Contains(t) {
			out = append(out, leaf)
		}
	}
	return out, rows.Err()
}

// Delete removes a build and its leaves.
func (s *Store) Delete(buildID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM leaves WHERE build_id = ?`, buildID); err != nil {
		return fmt.Errorf("delete leaves: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM builds WHERE build_id = ?`, buildID)
	if err != nil {
		return fmt.Errorf("delete build: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: build %s", errs.ErrReference, buildID)
	}
	return tx.Commit()
}
