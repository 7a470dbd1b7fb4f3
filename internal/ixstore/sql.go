package ixstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// sqlBackend persists scenarios in a relational store through sqlx. The
// same schema and statements serve the embedded sqlite driver and postgres;
// placeholders are rebound per driver.
type sqlBackend struct {
	db      *sqlx.DB
	timeout time.Duration
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS scenarios (
	id         TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	name       TEXT NOT NULL,
	version    INTEGER NOT NULL,
	commit_msg TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (model, name, version)
);
CREATE TABLE IF NOT EXISTS set_members (
	scenario_id TEXT NOT NULL,
	set_name    TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	member      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS map_members (
	scenario_id TEXT NOT NULL,
	set_name    TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	tuple_json  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS categories (
	scenario_id TEXT NOT NULL,
	set_name    TEXT NOT NULL,
	category    TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	member      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS par_rows (
	scenario_id TEXT NOT NULL,
	par_name    TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	key_json    TEXT NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	unit        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_set_members_scen ON set_members (scenario_id, set_name);
CREATE INDEX IF NOT EXISTS idx_par_rows_scen ON par_rows (scenario_id, par_name);
`

func newSQLBackend(kind, dsn string) (*sqlBackend, error) {
	driver := kind
	if kind == "sqlite" && dsn == "" {
		dsn = ":memory:"
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply store schema: %w", err)
	}
	return &sqlBackend{db: db, timeout: 10 * time.Second}, nil
}

func (b *sqlBackend) nextVersion(ctx context.Context, model, name string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var next int
	query := b.db.Rebind(`SELECT COALESCE(MAX(version), 0) + 1 FROM scenarios WHERE model = ? AND name = ?`)
	if err := b.db.QueryRowxContext(ctx, query, model, name).Scan(&next); err != nil {
		return 0, fmt.Errorf("next version: %w", err)
	}
	return next, nil
}

func (b *sqlBackend) save(ctx context.Context, s *Scenario) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO scenarios (id, model, name, version, commit_msg, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		s.ID, s.Model, s.Name, s.Version, s.commitMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert scenario row: %w", err)
	}

	setStmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO set_members (scenario_id, set_name, seq, member) VALUES (?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare set insert: %w", err)
	}
	defer setStmt.Close()
	for name, members := range s.sets {
		for i, m := range members {
			if _, err := setStmt.ExecContext(ctx, s.ID, name, i, m); err != nil {
				return fmt.Errorf("insert set member %s/%s: %w", name, m, err)
			}
		}
	}

	mapStmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO map_members (scenario_id, set_name, seq, tuple_json) VALUES (?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare map insert: %w", err)
	}
	defer mapStmt.Close()
	for name, tuples := range s.tuples {
		for i, t := range tuples {
			tj, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("marshal tuple of %s: %w", name, err)
			}
			if _, err := mapStmt.ExecContext(ctx, s.ID, name, i, string(tj)); err != nil {
				return fmt.Errorf("insert map member %s: %w", name, err)
			}
		}
	}

	catStmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO categories (scenario_id, set_name, category, seq, member) VALUES (?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare category insert: %w", err)
	}
	defer catStmt.Close()
	for setName, byCat := range s.cats {
		for c, members := range byCat {
			if len(members) == 0 {
				// Keep empty categories (e.g. a fresh "all") restorable.
				if _, err := catStmt.ExecContext(ctx, s.ID, setName, c, -1, ""); err != nil {
					return fmt.Errorf("insert empty category %s/%s: %w", setName, c, err)
				}
				continue
			}
			for i, m := range members {
				if _, err := catStmt.ExecContext(ctx, s.ID, setName, c, i, m); err != nil {
					return fmt.Errorf("insert category member %s/%s: %w", setName, c, err)
				}
			}
		}
	}

	parStmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO par_rows (scenario_id, par_name, seq, key_json, value, unit) VALUES (?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare parameter insert: %w", err)
	}
	defer parStmt.Close()
	for name, rows := range s.pars {
		for i, r := range rows {
			kj, err := json.Marshal([]string(r.Key))
			if err != nil {
				return fmt.Errorf("marshal key of %s: %w", name, err)
			}
			if _, err := parStmt.ExecContext(ctx, s.ID, name, i, string(kj), r.Value, r.Unit); err != nil {
				return fmt.Errorf("insert parameter row %s: %w", name, err)
			}
		}
	}

	return tx.Commit()
}

func (b *sqlBackend) load(ctx context.Context, p *Platform, model, name string, version int) (*Scenario, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var info ScenarioInfo
	err := b.db.QueryRowxContext(ctx, b.db.Rebind(`
		SELECT id, model, name, version, commit_msg, created_at
		FROM scenarios WHERE model = ? AND name = ? AND version = ?`),
		model, name, version).StructScan(&info)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query scenario: %w", err)
	}

	st := &storedScenario{
		info:   info,
		sets:   make(map[string][]string),
		tuples: make(map[string][][]string),
		cats:   make(map[string]map[string][]string),
		pars:   make(map[string][]ParRow),
	}

	rows, err := b.db.QueryxContext(ctx, b.db.Rebind(`
		SELECT set_name, member FROM set_members WHERE scenario_id = ? ORDER BY set_name, seq`), info.ID)
	if err != nil {
		return nil, fmt.Errorf("query set members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var setName, member string
		if err := rows.Scan(&setName, &member); err != nil {
			return nil, fmt.Errorf("scan set member: %w", err)
		}
		st.sets[setName] = append(st.sets[setName], member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate set members: %w", err)
	}

	mrows, err := b.db.QueryxContext(ctx, b.db.Rebind(`
		SELECT set_name, tuple_json FROM map_members WHERE scenario_id = ? ORDER BY set_name, seq`), info.ID)
	if err != nil {
		return nil, fmt.Errorf("query map members: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var setName, tj string
		if err := mrows.Scan(&setName, &tj); err != nil {
			return nil, fmt.Errorf("scan map member: %w", err)
		}
		var tuple []string
		if err := json.Unmarshal([]byte(tj), &tuple); err != nil {
			return nil, fmt.Errorf("unmarshal tuple of %s: %w", setName, err)
		}
		st.tuples[setName] = append(st.tuples[setName], tuple)
	}
	if err := mrows.Err(); err != nil {
		return nil, fmt.Errorf("iterate map members: %w", err)
	}

	crows, err := b.db.QueryxContext(ctx, b.db.Rebind(`
		SELECT set_name, category, seq, member FROM categories WHERE scenario_id = ? ORDER BY set_name, category, seq`), info.ID)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var setName, category, member string
		var seq int
		if err := crows.Scan(&setName, &category, &seq, &member); err != nil {
			return nil, fmt.Errorf("scan category member: %w", err)
		}
		if st.cats[setName] == nil {
			st.cats[setName] = make(map[string][]string)
		}
		if seq < 0 {
			if _, ok := st.cats[setName][category]; !ok {
				st.cats[setName][category] = nil
			}
			continue
		}
		st.cats[setName][category] = append(st.cats[setName][category], member)
	}
	if err := crows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}

	prows, err := b.db.QueryxContext(ctx, b.db.Rebind(`
		SELECT par_name, key_json, value, unit FROM par_rows WHERE scenario_id = ? ORDER BY par_name, seq`), info.ID)
	if err != nil {
		return nil, fmt.Errorf("query parameter rows: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var parName, kj, unit string
		var value float64
		if err := prows.Scan(&parName, &kj, &value, &unit); err != nil {
			return nil, fmt.Errorf("scan parameter row: %w", err)
		}
		var key []string
		if err := json.Unmarshal([]byte(kj), &key); err != nil {
			return nil, fmt.Errorf("unmarshal key of %s: %w", parName, err)
		}
		st.pars[parName] = append(st.pars[parName], ParRow{Key: key, Value: value, Unit: unit})
	}
	if err := prows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parameter rows: %w", err)
	}

	s := newScenario(p, model, name, version, info.ID)
	hydrate(s, st)
	return s, nil
}

func (b *sqlBackend) list(ctx context.Context) ([]ScenarioInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var out []ScenarioInfo
	err := b.db.SelectContext(ctx, &out, `
		SELECT id, model, name, version, commit_msg, created_at
		FROM scenarios ORDER BY model, name, version`)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	return out, nil
}

func (b *sqlBackend) close() error { return b.db.Close() }
